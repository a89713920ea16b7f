package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/boxoffice/internal/adapters/csvsource"
	"github.com/okian/boxoffice/internal/adapters/mq/worker"
	"github.com/okian/boxoffice/internal/adapters/priceindex"
	"github.com/okian/boxoffice/internal/adapters/repository"
	"github.com/okian/boxoffice/internal/adapters/tmdb"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/model"
	"github.com/okian/boxoffice/internal/synth"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var from, to, pages int
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch releases from TMDB into the dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.cfg()
			if cfg.TMDBAPIKey == "" {
				return fmt.Errorf("tmdb_api_key is not set (BOXOFFICE_TMDB_API_KEY)")
			}
			if !cmd.Flags().Changed("from") {
				from = cfg.TMDBStartYear
			}
			if !cmd.Flags().Changed("to") {
				to = cfg.TMDBEndYear
			}
			if !cmd.Flags().Changed("pages") {
				pages = cfg.TMDBPagesPerYear
			}
			client := tmdb.NewClient(cfg.TMDBAPIKey,
				tmdb.WithBaseURL(cfg.TMDBBaseURL),
				tmdb.WithLanguage(cfg.TMDBLanguage),
				tmdb.WithRegion(cfg.TMDBRegion),
				tmdb.WithRate(cfg.TMDBRatePerSecond),
			)

			var releases []model.Release
			err := ctx.withPool(cmd.Context(), func(pool *worker.Pool) error {
				f := tmdb.NewFetcher(client, tmdb.WithRunner(pool), tmdb.WithPagesPerYear(pages))
				var err error
				releases, err = f.FetchYears(cmd.Context(), from, to)
				return err
			})
			if err != nil {
				return err
			}
			return upsert(cmd, ctx, releases)
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "First release year (default tmdb_start_year)")
	cmd.Flags().IntVar(&to, "to", 0, "Last release year (default tmdb_end_year)")
	cmd.Flags().IntVar(&pages, "pages", 0, "Discover pages per year (default tmdb_pages_per_year)")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import a raw release table into the dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			releases, err := csvsource.NewReader(csvsource.WithStrict(strict)).Read(cmd.Context(), f)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return upsert(cmd, ctx, releases)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail on the first malformed row instead of skipping it")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file.csv>",
		Short: "Write the dataset as a raw release table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store *repository.SQLiteStore) error {
				releases, err := store.Releases(cmd.Context())
				if err != nil {
					return err
				}
				f, err := os.Create(args[0])
				if err != nil {
					return err
				}
				if err := csvsource.Write(f, releases); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				printf(cmd, "Exported %d releases to %s\n", len(releases), args[0])
				return nil
			})
		},
	}
}

func newPricesCommand(ctx *commandContext) *cobra.Command {
	var file string
	var bls bool
	var from, to int
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Load the consumer price index into the dataset",
		Long: "Reads annual price index values from a CSV file (year,value) or the BLS API\n" +
			"and stores them in the dataset, replacing any stored index.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.cfg()
			var src priceindex.Source
			switch {
			case file != "" && bls:
				return fmt.Errorf("--file and --bls are mutually exclusive")
			case file != "":
				src = priceindex.FileSource{Path: file}
			case bls:
				if !cmd.Flags().Changed("from") {
					from = cfg.BLSStartYear
				}
				if !cmd.Flags().Changed("to") {
					to = cfg.ReferenceYear
				}
				src = ctx.blsSource(from, to)
			default:
				return fmt.Errorf("one of --file or --bls is required")
			}

			points, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := currency.NewIndex(points); err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store *repository.SQLiteStore) error {
				if err := store.SavePriceIndex(cmd.Context(), points); err != nil {
					return err
				}
				printf(cmd, "Stored %d price index years (%d-%d)\n", len(points), points[0].Year, points[len(points)-1].Year)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "CSV file with year,value rows")
	cmd.Flags().BoolVar(&bls, "bls", false, "Fetch annual averages from the BLS API")
	cmd.Flags().IntVar(&from, "from", 0, "First BLS year (default bls_start_year)")
	cmd.Flags().IntVar(&to, "to", 0, "Last BLS year (default reference_year)")
	return cmd
}

func newSynthCommand(ctx *commandContext) *cobra.Command {
	scfg := synth.DefaultConfig()
	var out string
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic catalog and price index",
		Long: "Generates a reproducible synthetic catalog. With --out the table is written\n" +
			"as CSV; otherwise releases and the matching price index go into the dataset.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			releases, err := synth.Catalog(scfg)
			if err != nil {
				return err
			}
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := csvsource.Write(f, releases); err != nil {
					_ = f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				printf(cmd, "Wrote %d synthetic releases to %s\n", len(releases), out)
				return nil
			}
			if err := upsert(cmd, ctx, releases); err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(store *repository.SQLiteStore) error {
				return store.SavePriceIndex(cmd.Context(), synth.PriceIndex(scfg.StartYear, scfg.EndYear))
			})
		},
	}
	f := cmd.Flags()
	f.StringVarP(&out, "out", "o", "", "Write CSV to this file instead of the dataset")
	f.IntVar(&scfg.Releases, "releases", scfg.Releases, "Number of releases")
	f.IntVar(&scfg.StartYear, "from", scfg.StartYear, "First release year")
	f.IntVar(&scfg.EndYear, "to", scfg.EndYear, "Last release year")
	f.IntVar(&scfg.Directors, "directors", scfg.Directors, "Size of the director pool")
	f.IntVar(&scfg.Actors, "actors", scfg.Actors, "Size of the actor pool")
	f.Float64Var(&scfg.UnknownRevenue, "unknown-revenue", scfg.UnknownRevenue, "Share of releases without revenue")
	f.Int64Var(&scfg.Seed, "seed", scfg.Seed, "Random seed")
	return cmd
}

// upsert writes releases to the dataset and reports the counts.
func upsert(cmd *cobra.Command, ctx *commandContext, releases []model.Release) error {
	return ctx.withStore(cmd.Context(), func(store *repository.SQLiteStore) error {
		res, err := store.UpsertReleases(cmd.Context(), releases)
		if err != nil {
			return err
		}
		total, err := store.Count(cmd.Context())
		if err != nil {
			return err
		}
		printLine(cmd, renderTable(
			[]string{"Inserted", "Updated", "Total"},
			[][]string{{strconv.Itoa(res.Inserted), strconv.Itoa(res.Updated), strconv.Itoa(total)}},
			[]columnAlignment{alignRight, alignRight, alignRight},
		))
		return nil
	})
}
