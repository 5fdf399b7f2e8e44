package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/xuwkk/power-system-operation/core/calibrate"
	"github.com/xuwkk/power-system-operation/core/operation"
)

// Publisher sends dispatch schedules and calibration results.
type Publisher interface {
	PublishSchedule(ctx context.Context, s *operation.Schedule) error
	PublishCalibration(ctx context.Context, r *calibrate.Record) error
	Close() error
}

// New returns a connected PahoPublisher, or a NopPublisher when cfg is
// disabled.
func New(cfg Config) (Publisher, error) {
	if !cfg.Enabled {
		return NopPublisher{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewPahoPublisher(cfg)
}

// NopPublisher drops everything.
type NopPublisher struct{}

func (NopPublisher) PublishSchedule(context.Context, *operation.Schedule) error  { return nil }
func (NopPublisher) PublishCalibration(context.Context, *calibrate.Record) error { return nil }
func (NopPublisher) Close() error                                              { return nil }

// MockPublisher records what it is asked to publish. Used in tests.
type MockPublisher struct {
	Schedules    []*operation.Schedule
	Calibrations []*calibrate.Record
	Fail         bool
	mu           sync.Mutex
}

// PublishSchedule records s or fails when configured to.
func (m *MockPublisher) PublishSchedule(_ context.Context, s *operation.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Schedules = append(m.Schedules, s)
	return nil
}

// PublishCalibration records r or fails when configured to.
func (m *MockPublisher) PublishCalibration(_ context.Context, r *calibrate.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return fmt.Errorf("publish failed")
	}
	m.Calibrations = append(m.Calibrations, r)
	return nil
}

func (m *MockPublisher) Close() error { return nil }
