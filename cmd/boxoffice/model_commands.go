package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/boxoffice/internal/adapters/http/bind"
	"github.com/okian/boxoffice/internal/adapters/mq/worker"
	"github.com/okian/boxoffice/internal/adapters/repository"
	service "github.com/okian/boxoffice/internal/app"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/domain/types"
)

func newTrainCommand(ctx *commandContext) *cobra.Command {
	var noSave, asJSON bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model artifact from the dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.cfg()
			var (
				art    *revenue.Artifact
				report service.TrainReport
			)
			err := ctx.withStore(cmd.Context(), func(store *repository.SQLiteStore) error {
				releases, err := store.Releases(cmd.Context())
				if err != nil {
					return err
				}
				points, err := ctx.priceSource(store).Load(cmd.Context())
				if err != nil {
					return fmt.Errorf("price index: %w", err)
				}
				return ctx.withPool(cmd.Context(), func(pool *worker.Pool) error {
					p := service.NewPipeline(service.WithRunner(pool))
					art, report, err = p.Train(cmd.Context(), releases, points, trainConfig(cfg))
					return err
				})
			})
			if err != nil {
				return err
			}
			if !noSave {
				if err := ctx.artifactStore().Save(cmd.Context(), art); err != nil {
					return err
				}
			}

			if asJSON {
				return writeJSON(cmd, service.Summary(art))
			}
			printTrainReport(cmd, art, report)
			if !noSave {
				printf(cmd, "Saved artifact %s to %s\n", art.ID, cfg.ArtifactPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Train and report without writing the artifact")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the model summary as JSON")
	return cmd
}

func printTrainReport(cmd *cobra.Command, art *revenue.Artifact, report service.TrainReport) {
	rejected := make([]string, 0, len(report.Rejected))
	for reason, n := range report.Rejected {
		rejected = append(rejected, fmt.Sprintf("%s=%d", reason, n))
	}
	sort.Strings(rejected)

	ev := art.Evaluation
	printLine(cmd, renderTable(
		[]string{"Input", "Rows", "Rejected", "Genres", "Features", "Trees"},
		[][]string{{
			strconv.Itoa(report.Input), strconv.Itoa(report.Rows), strings.Join(rejected, " "),
			strconv.Itoa(report.Genres), strconv.Itoa(art.Schema.Width()), strconv.Itoa(len(art.Ensemble.Trees)),
		}},
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignRight, alignRight},
	))
	printLine(cmd, renderTable(
		[]string{"Held-out", "Value"},
		[][]string{
			{"train rows", strconv.Itoa(ev.TrainRows)},
			{"test rows", strconv.Itoa(ev.TestRows)},
			{"R² (log)", decimal(ev.R2Log)},
			{"R²", decimal(ev.R2)},
			{"MAE", types.FormatMoney(ev.MAE)},
			{"RMSE", types.FormatMoney(ev.RMSE)},
		},
		[]columnAlignment{alignLeft, alignRight},
	))

	stages := []string{
		service.StageClean, service.StageNormalize, service.StageAggregate,
		service.StageAssemble, service.StageFit, service.StageSummarize,
	}
	rows := make([][]string, 0, len(stages))
	for _, s := range stages {
		if d, ok := report.Stages[s]; ok {
			rows = append(rows, []string{s, d.Round(time.Millisecond).String()})
		}
	}
	printLine(cmd, renderTable([]string{"Stage", "Elapsed"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var (
		req     types.PredictRequest
		reqFile string
		top     int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict revenue for one film with the stored model",
		Example: `  boxoffice predict --date 2025-07-04 --budget 80000000 --runtime 128 \
    --genre Action --genre Adventure --director 525 --cast 3223 --cast 16828`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reqFile != "" {
				r, err := readRequest(reqFile)
				if err != nil {
					return err
				}
				req = r
			}
			if err := bind.Get().Struct(req); err != nil {
				return err
			}
			svc, err := ctx.loadedService(cmd.Context())
			if err != nil {
				return err
			}
			p, err := svc.Predict(cmd.Context(), req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, p)
			}
			printPrediction(cmd, p, top)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&reqFile, "request", "", "Read the request from a JSON file")
	f.StringVar(&req.Title, "title", "", "Film title")
	f.StringVar(&req.ReleaseDate, "date", "", "Release date (YYYY-MM-DD)")
	f.Float64Var(&req.Budget, "budget", 0, "Production budget in nominal dollars")
	f.IntVar(&req.BudgetYear, "budget-year", 0, "Year the budget is quoted in (default release year)")
	f.StringSliceVar(&req.Genres, "genre", nil, "Genre tag (repeatable)")
	f.Float64Var(&req.Runtime, "runtime", 0, "Runtime in minutes")
	f.StringSliceVar(&req.Cast, "cast", nil, "Cast person ID in billing order (repeatable)")
	f.StringSliceVar(&req.Directors, "director", nil, "Director person ID (repeatable)")
	f.StringVar(&req.Collection, "collection", "", "Franchise or collection name")
	f.IntVar(&top, "top", 10, "Contributions to show; 0 shows all")
	f.BoolVar(&asJSON, "json", false, "Print the prediction as JSON")
	return cmd
}

func readRequest(path string) (types.PredictRequest, error) {
	var req types.PredictRequest
	f, err := os.Open(path)
	if err != nil {
		return req, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, fmt.Errorf("%w: %s: %w", bind.ErrBadJSON, path, err)
	}
	return req, nil
}

func printPrediction(cmd *cobra.Command, p types.Prediction, top int) {
	printf(cmd, "Predicted revenue: %s (%s in %d dollars)\n", p.RevenueText, formatWhole(p.Revenue), p.ReferenceYear)
	printf(cmd, "Director score:    %s\n", scoreText(p.DirectorScore))
	printf(cmd, "Cast score:        %s\n", scoreText(p.CastScore))
	if len(p.UnseenGenres) > 0 {
		printf(cmd, "Unseen genres:     %s\n", strings.Join(p.UnseenGenres, ", "))
	}

	contribs := append([]types.Contribution(nil), p.Contributions...)
	sort.SliceStable(contribs, func(i, j int) bool {
		return math.Abs(contribs[i].Contribution) > math.Abs(contribs[j].Contribution)
	})
	if top > 0 && top < len(contribs) {
		contribs = contribs[:top]
	}
	rows := [][]string{{"(baseline)", "", decimal(p.Baseline)}}
	for _, c := range contribs {
		rows = append(rows, []string{c.Feature, decimal(c.Value), signed(c.Contribution)})
	}
	rows = append(rows, []string{"(log revenue)", "", decimal(p.LogRevenue)})
	printLine(cmd, renderTable(
		[]string{"Feature", "Value", "Contribution"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
	))
}

func scoreText(v *float64) string {
	if v == nil {
		return "no history"
	}
	return types.FormatMoney(*v)
}

func formatWhole(v float64) string {
	return "$" + strconv.FormatFloat(math.Round(v), 'f', 0, 64)
}

func newImportanceCommand(ctx *commandContext) *cobra.Command {
	var top int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "importance",
		Short: "Show global feature importance of the stored model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.loadedService(cmd.Context())
			if err != nil {
				return err
			}
			imp, err := svc.Importance(cmd.Context())
			if err != nil {
				return err
			}
			if top > 0 && top < len(imp) {
				imp = imp[:top]
			}
			if asJSON {
				return writeJSON(cmd, imp)
			}
			rows := make([][]string, 0, len(imp))
			for i, im := range imp {
				rows = append(rows, []string{strconv.Itoa(i + 1), im.Feature, decimal(im.MeanAbs)})
			}
			printLine(cmd, renderTable(
				[]string{"#", "Feature", "Mean |contribution|"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&top, "top", 20, "Features to show; 0 shows all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func newModelCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Describe the stored model artifact",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.loadedService(cmd.Context())
			if err != nil {
				return err
			}
			m, err := svc.Model(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, m)
			}
			printLine(cmd, renderTable(
				[]string{"Artifact", "Created", "Reference year", "Features", "Trees", "R² (log)", "MAE"},
				[][]string{{
					m.ArtifactID, m.CreatedAt.UTC().Format(time.RFC3339), strconv.Itoa(m.ReferenceYear),
					strconv.Itoa(m.Features), strconv.Itoa(m.Trees), decimal(m.R2Log), types.FormatMoney(m.MAE),
				}},
				nil,
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
