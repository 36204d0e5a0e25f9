package metrics

import (
	"context"

	"github.com/kilianp07/gridsim/core/events"
	"github.com/kilianp07/gridsim/core/logger"
	coremetrics "github.com/kilianp07/gridsim/core/metrics"
	"github.com/kilianp07/gridsim/internal/eventbus"
)

// StartEventCollector forwards step events from bus to rec until ctx is
// cancelled or the bus is closed. The returned channel is closed once the
// collector has stopped.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.StepEvent], rec coremetrics.StepRecorder, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || rec == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := rec.RecordStep(ev); err != nil {
					log.Warnf("record step %d (%s): %v", ev.Step, ev.Phase, err)
				}
			}
		}
	}()
	return done
}
