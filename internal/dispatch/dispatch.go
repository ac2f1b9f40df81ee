// Package dispatch fans an applied status transition out to its side
// effects. Effects run independently after the engine's commit; an effect
// failure is logged and swallowed, never propagated, never retried.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"albumline/internal/domain"
	"albumline/internal/status"
)

// Applied describes a committed status transition plus the context the
// effects need. The transition is already durable by the time effects see
// it.
type Applied struct {
	Album       domain.Album
	ProjectID   string
	ProjectName string
	CompanyID   string
	CompanyName string
	OldStatus   status.Status
	NewStatus   status.Status
	Actor       domain.Actor
	Source      domain.ChangeSource

	// Ack target; zero values for web-originated changes.
	ChatID    int64
	MessageID int
}

// Effect is one independent side effect of an applied transition.
type Effect interface {
	Name() string
	Run(ctx context.Context, ev Applied) error
}

// Dispatcher evaluates a fixed effect list for each applied transition.
// Isolation is structural: each effect gets its own goroutine and its own
// error path.
type Dispatcher struct {
	log     *zap.Logger
	effects []Effect
	wg      sync.WaitGroup
}

func New(log *zap.Logger, effects ...Effect) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{log: log, effects: effects}
}

// Dispatch triggers every effect and returns without waiting for them.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Applied) {
	for _, eff := range d.effects {
		d.wg.Add(1)
		go func(eff Effect) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.log.Error("effect panicked",
						zap.String("effect", eff.Name()),
						zap.Any("panic", r),
						zap.String("album_id", ev.Album.ID))
				}
			}()
			if err := eff.Run(ctx, ev); err != nil {
				d.log.Error("effect failed",
					zap.String("effect", eff.Name()),
					zap.String("album_id", ev.Album.ID),
					zap.String("new_status", ev.NewStatus.Code),
					zap.Error(err))
			}
		}(eff)
	}
}

// Wait blocks until all in-flight effects finish; used on shutdown and in
// tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
