package artifact_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/okian/boxoffice/internal/adapters/artifact"
	"github.com/okian/boxoffice/internal/domain/currency"
	"github.com/okian/boxoffice/internal/domain/features"
	"github.com/okian/boxoffice/internal/domain/gbm"
	"github.com/okian/boxoffice/internal/domain/revenue"
	"github.com/okian/boxoffice/internal/domain/talent"
	. "github.com/smartystreets/goconvey/convey"
)

func stubArtifact(id string, base float64) *revenue.Artifact {
	schema, err := features.BuildSchema([]string{"Drama"}, talent.DefaultPolicy(), 1e7, 2024)
	if err != nil {
		panic(err)
	}
	return &revenue.Artifact{
		ID:            id,
		CreatedAt:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		FormatVersion: revenue.FormatVersion,
		Schema:        schema,
		Ensemble: gbm.Ensemble{Base: base, Features: schema.Width(), Trees: []gbm.Tree{{Nodes: []gbm.Node{
			{Feature: 0, Threshold: 5e7, Left: 1, Right: 2, Cover: 10},
			{Left: -1, Right: -1, Value: -0.5, Cover: 6},
			{Left: -1, Right: -1, Value: 0.75, Cover: 4},
		}}}},
		Params:     gbm.DefaultParams(),
		PriceIndex: []currency.Point{{Year: 2000, Value: 172.2}, {Year: 2024, Value: 313.689}},
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store in an empty directory", t, func() {
		path := filepath.Join(t.TempDir(), "models", "model.json")
		s := artifact.NewFileStore(path, artifact.WithRetryDelay(5*time.Millisecond))
		So(s.Path(), ShouldEqual, path)

		Convey("When nothing has been saved", func() {
			_, err := s.Load(ctx)

			Convey("Then ErrNotFound is returned", func() {
				So(errors.Is(err, artifact.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When an artifact is saved and loaded", func() {
			So(s.Save(ctx, stubArtifact("a1", 17.5)), ShouldBeNil)
			got, err := s.Load(ctx)

			Convey("Then it comes back intact and no temp files remain", func() {
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "a1")
				So(got.Ensemble, ShouldResemble, stubArtifact("a1", 17.5).Ensemble)
				So(got.Schema.Fingerprint, ShouldEqual, stubArtifact("a1", 17.5).Schema.Fingerprint)

				entries, err := os.ReadDir(filepath.Dir(path))
				So(err, ShouldBeNil)
				for _, e := range entries {
					So(filepath.Ext(e.Name()), ShouldNotEqual, ".tmp")
				}
			})
		})

		Convey("When a second artifact replaces the first", func() {
			So(s.Save(ctx, stubArtifact("a1", 1)), ShouldBeNil)
			So(s.Save(ctx, stubArtifact("a2", 2)), ShouldBeNil)

			Convey("Then the latest one is loaded", func() {
				got, err := s.Load(ctx)
				So(err, ShouldBeNil)
				So(got.ID, ShouldEqual, "a2")
			})
		})

		Convey("When the file is corrupt", func() {
			So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
			So(os.WriteFile(path, []byte(`{"format_version":1}`), 0o600), ShouldBeNil)
			_, err := s.Load(ctx)

			Convey("Then the artifact is reported invalid", func() {
				So(errors.Is(err, revenue.ErrInvalidArtifact), ShouldBeTrue)
			})
		})

		Convey("When another process holds the write lock", func() {
			So(s.Save(ctx, stubArtifact("a1", 1)), ShouldBeNil)
			held := flock.New(path + ".lock")
			ok, err := held.TryLock()
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			defer func() { _ = held.Unlock() }()

			tctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()
			err = s.Save(tctx, stubArtifact("a2", 2))

			Convey("Then a bounded save gives up with ErrLocked", func() {
				So(errors.Is(err, artifact.ErrLocked), ShouldBeTrue)
			})
		})

		Convey("When readers and a writer race", func() {
			So(s.Save(ctx, stubArtifact("a0", 0)), ShouldBeNil)
			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := 0; i < 10; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					errs <- s.Save(ctx, stubArtifact("w", float64(i)))
				}()
				go func() {
					defer wg.Done()
					_, err := s.Load(ctx)
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)

			Convey("Then every reader sees a complete artifact", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
			})
		})
	})
}
