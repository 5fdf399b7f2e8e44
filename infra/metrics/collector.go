package metrics

import (
	"context"

	"github.com/xuwkk/power-system-operation/core/calibrate"
	coremetrics "github.com/xuwkk/power-system-operation/core/metrics"
	"github.com/xuwkk/power-system-operation/internal/eventbus"
)

// StartEventCollector subscribes to calibration progress and records window
// and branch-limit metrics on sink. It stops when ctx is canceled or the bus
// is closed; the returned channel is closed once it has stopped.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[calibrate.Event], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	sub := bus.Subscribe(eventbus.DefaultBuffer)
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
				record(sink, ev)
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev calibrate.Event) {
	if ev.Record != nil {
		if r, ok := sink.(coremetrics.BranchLimitsRecorder); ok {
			_ = r.RecordBranchLimits(coremetrics.BranchLimitsEvent{
				RunID:    ev.RunID,
				Case:     ev.Record.Case,
				Observed: ev.Record.Observed,
				Limits:   ev.Record.Limits,
				Time:     ev.Time,
			})
		}
		return
	}
	if r, ok := sink.(coremetrics.WindowRecorder); ok {
		errStr := ""
		if ev.Err != nil {
			errStr = ev.Err.Error()
		}
		_ = r.RecordWindow(coremetrics.WindowEvent{
			RunID:     ev.RunID,
			Window:    ev.Window,
			Start:     ev.Start,
			Objective: ev.Objective,
			MaxFlow:   ev.MaxFlow,
			Duration:  ev.Duration,
			Error:     errStr,
			Time:      ev.Time,
		})
	}
}
