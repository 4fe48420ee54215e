package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// Fixed loop delays.
const (
	// LoadToTemperatureDelay separates the two console writes of a cycle.
	LoadToTemperatureDelay = 50 * time.Millisecond

	// SampleInterval is the steady-state sampling interval.
	SampleInterval = 5 * time.Second
)

// ErrUnrecoverable is returned by Run when no GPU handle can be acquired.
var ErrUnrecoverable = errors.New("gpu monitoring cannot continue")

// State is the state of the poll loop.
type State int

const (
	StateRunning State = iota
	StateTerminated
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "terminated"
}

// Poller owns the current GPU handle and drives the refresh-read cycle.
type Poller struct {
	handles *HandleManager
	out     io.Writer
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	gpu   hardware.Hardware
	state State
}

// NewPoller creates a poller printing readings to out.
func NewPoller(handles *HandleManager, out io.Writer, log *zap.Logger) *Poller {
	return &Poller{
		handles: handles,
		out:     out,
		log:     log,
		sleep:   sleepContext,
		state:   StateRunning,
	}
}

// State returns the loop state.
func (p *Poller) State() State {
	return p.state
}

// Handle returns the current GPU handle, nil before the first acquisition.
func (p *Poller) Handle() hardware.Hardware {
	return p.gpu
}

// Run acquires a GPU handle and polls it until a read becomes unrecoverable,
// the handle fails to refresh or ctx is cancelled. Panics raised by Update are
// not recovered here.
func (p *Poller) Run(ctx context.Context) error {
	defer func() { p.state = StateTerminated }()

	if p.gpu == nil {
		if err := p.reacquire(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrUnrecoverable, err)
		}
	}

	p.log.Info("Beginning perpetual sensor querying ..")

	for {
		if err := p.gpu.Update(); err != nil {
			return fmt.Errorf("refreshing %s: %w", p.gpu.Name(), err)
		}

		if res := p.ReadSensor(ctx, hardware.SensorLoad); res.Outcome.Fatal() {
			return ErrUnrecoverable
		}

		if err := p.sleep(ctx, LoadToTemperatureDelay); err != nil {
			return err
		}

		if res := p.ReadSensor(ctx, hardware.SensorTemperature); res.Outcome.Fatal() {
			return ErrUnrecoverable
		}

		if err := p.sleep(ctx, SampleInterval); err != nil {
			return err
		}
	}
}

// Close releases the current handle.
func (p *Poller) Close() error {
	if p.gpu == nil {
		return nil
	}
	err := hardware.Release(p.gpu)
	p.gpu = nil
	return err
}

// reacquire replaces the current handle. On failure the old handle is kept.
func (p *Poller) reacquire(ctx context.Context) error {
	gpu, err := p.handles.Acquire(ctx)
	if err != nil {
		return err
	}

	if p.gpu != nil {
		if err := hardware.Release(p.gpu); err != nil {
			p.log.Warn("Failed to release previous GPU handle", zap.Error(err))
		}
	}
	p.gpu = gpu
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
