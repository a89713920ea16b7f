package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/boxoffice/internal/adapters/mq/worker"
	"github.com/okian/boxoffice/internal/domain/talent"
	logging "github.com/okian/boxoffice/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Compile-time check that the pool drives catalog scoring.
var _ talent.Runner = (*worker.Pool)(nil)

func quietLogs() {
	_ = logging.Init(logging.WithWriter(io.Discard))
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool", t, func() {
		quietLogs()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pool := worker.NewPool(4, 8)
		pool.Start(ctx)
		defer func() { _ = pool.Shutdown(context.Background()) }()

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When more tasks than the queue holds are run", func() {
			results := make([]int, 100)
			tasks := make([]func(context.Context) error, len(results))
			for i := range tasks {
				tasks[i] = func(context.Context) error {
					results[i] = i * i
					return nil
				}
			}
			err := pool.RunAll(ctx, tasks)

			convey.Convey("Then every task runs once and writes its own slot", func() {
				convey.So(err, convey.ShouldBeNil)
				for i, r := range results {
					convey.So(r, convey.ShouldEqual, i*i)
				}
			})
		})

		convey.Convey("When several tasks fail", func() {
			first := errors.New("first")
			tasks := []func(context.Context) error{
				func(context.Context) error { return nil },
				func(context.Context) error { return first },
				func(context.Context) error { return errors.New("second") },
			}
			err := pool.RunAll(ctx, tasks)

			convey.Convey("Then the lowest-index failure is reported", func() {
				convey.So(errors.Is(err, first), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a task panics", func() {
			err := pool.RunAll(ctx, []func(context.Context) error{
				func(context.Context) error { panic("boom") },
			})

			convey.Convey("Then the panic becomes an error and the pool keeps working", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "boom")
				convey.So(pool.RunAll(ctx, []func(context.Context) error{
					func(context.Context) error { return nil },
				}), convey.ShouldBeNil)
			})
		})

		convey.Convey("When the tasks run concurrently", func() {
			var running, peak atomic.Int32
			var mu sync.Mutex
			gate := make(chan struct{})
			tasks := make([]func(context.Context) error, 4)
			for i := range tasks {
				tasks[i] = func(context.Context) error {
					n := running.Add(1)
					mu.Lock()
					if n > peak.Load() {
						peak.Store(n)
					}
					mu.Unlock()
					if n == 4 {
						close(gate)
					}
					select {
					case <-gate:
					case <-time.After(time.Second):
					}
					running.Add(-1)
					return nil
				}
			}
			err := pool.RunAll(ctx, tasks)

			convey.Convey("Then all workers are used", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(peak.Load(), convey.ShouldEqual, 4)
			})
		})

		convey.Convey("When there is nothing to run", func() {
			convey.Convey("Then RunAll returns immediately", func() {
				convey.So(pool.RunAll(ctx, nil), convey.ShouldBeNil)
			})
		})
	})

	convey.Convey("Given a pool that has been shut down", t, func() {
		quietLogs()
		pool := worker.NewPool(2, 2)
		pool.Start(context.Background())
		convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

		convey.Convey("Then new work is refused", func() {
			err := pool.RunAll(context.Background(), []func(context.Context) error{
				func(context.Context) error { return nil },
			})
			convey.So(errors.Is(err, worker.ErrStopped), convey.ShouldBeTrue)
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker over a closed channel", t, func() {
		quietLogs()
		q := closedQueue{}
		w := worker.NewInMemoryWorker(q, worker.WithName("test-worker"))

		convey.Convey("When it runs", func() {
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()

			convey.Convey("Then it stops on its own and shuts down cleanly", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					convey.So("worker did not stop", convey.ShouldBeEmpty)
				}
				convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

type closedQueue struct{}

func (closedQueue) Dequeue(context.Context) <-chan worker.Task {
	ch := make(chan worker.Task)
	close(ch)
	return ch
}
