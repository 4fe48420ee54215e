package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

type fakeGPU struct {
	name    string
	kind    hardware.Type
	sensors []hardware.Sensor

	// sensorsFn overrides sensors when set
	sensorsFn func() ([]hardware.Sensor, error)
	updateFn  func() error

	updates  int
	released int
}

func newFakeGPU(name string, sensors ...hardware.Sensor) *fakeGPU {
	return &fakeGPU{name: name, kind: hardware.TypeGpuNvidia, sensors: sensors}
}

func (g *fakeGPU) Type() hardware.Type { return g.kind }
func (g *fakeGPU) Name() string        { return g.name }

func (g *fakeGPU) Sensors() ([]hardware.Sensor, error) {
	if g.sensorsFn != nil {
		return g.sensorsFn()
	}
	return g.sensors, nil
}

func (g *fakeGPU) Update() error {
	g.updates++
	if g.updateFn != nil {
		return g.updateFn()
	}
	return nil
}

func (g *fakeGPU) Release() error {
	g.released++
	return nil
}

type fakeProvider struct {
	hardware  []hardware.Hardware
	openErr   error
	openPanic any
	closed    bool
}

func (p *fakeProvider) Open(context.Context) error {
	if p.openPanic != nil {
		panic(p.openPanic)
	}
	return p.openErr
}

func (p *fakeProvider) Hardware() []hardware.Hardware { return p.hardware }

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

// providerQueue hands out providers in order; once drained it returns
// providers without hardware.
type providerQueue struct {
	mu        sync.Mutex
	providers []*fakeProvider
	opts      []hardware.Options
}

func (q *providerQueue) factory(opts hardware.Options) hardware.Provider {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.opts = append(q.opts, opts)
	if len(q.providers) == 0 {
		return &fakeProvider{}
	}
	p := q.providers[0]
	q.providers = q.providers[1:]
	return p
}

func queueOf(gpus ...hardware.Hardware) *providerQueue {
	q := &providerQueue{}
	for _, g := range gpus {
		q.providers = append(q.providers, &fakeProvider{hardware: []hardware.Hardware{g}})
	}
	return q
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func messages(logs *observer.ObservedLogs, level zapcore.Level) []string {
	var out []string
	for _, e := range logs.FilterLevelExact(level).All() {
		out = append(out, e.Message)
	}
	return out
}

// stopAfter returns a sleep function that records delays and cancels the
// loop once n delays have been requested.
func stopAfter(n int, delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		if len(*delays) >= n {
			return context.Canceled
		}
		return nil
	}
}

var errBoom = errors.New("boom")

func load(v float32) hardware.Sensor {
	return hardware.NewSensor(hardware.SensorLoad, "GPU Core", v)
}

func temp(v float32) hardware.Sensor {
	return hardware.NewSensor(hardware.SensorTemperature, "GPU Core", v)
}

func newTestPoller(t *testing.T, q *providerQueue) (*Poller, *observer.ObservedLogs, *syncBuffer) {
	t.Helper()
	log, logs := newObservedLogger()
	out := &syncBuffer{}
	return NewPoller(NewHandleManager(q.factory, time.Second, log), out, log), logs, out
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
