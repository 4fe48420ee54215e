package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

func TestAcquireTakesFirstGPU(t *testing.T) {
	t.Parallel()

	board := newFakeGPU("board")
	board.kind = hardware.TypeMotherboard
	first := newFakeGPU("first")
	first.kind = hardware.TypeGpuAmd
	second := newFakeGPU("second")

	provider := &fakeProvider{hardware: []hardware.Hardware{board, first, second}}
	q := &providerQueue{providers: []*fakeProvider{provider}}
	log, logs := newObservedLogger()

	gpu, err := NewHandleManager(q.factory, time.Second, log).Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, gpu)
	assert.Equal(t, 0, first.released)
	assert.Equal(t, 1, board.released)
	assert.Equal(t, 1, second.released)
	assert.True(t, provider.closed)
	assert.Equal(t, []hardware.Options{hardware.GPUOnly()}, q.opts)
	assert.Equal(t, []string{
		"[HARDWARE] Fetching PC hardware info ..",
		"[HARDWARE] Fetching GPU card ..",
		"[HARDWARE] GPU card found",
	}, messages(logs, zapcore.InfoLevel))
}

func TestAcquireNoGPU(t *testing.T) {
	t.Parallel()

	cpu := newFakeGPU("cpu")
	cpu.kind = hardware.TypeCPU
	q := &providerQueue{providers: []*fakeProvider{{hardware: []hardware.Hardware{cpu}}}}
	log, logs := newObservedLogger()

	var gpu hardware.Hardware
	var err error
	assert.NotPanics(t, func() {
		gpu, err = NewHandleManager(q.factory, time.Second, log).Acquire(context.Background())
	})

	assert.Nil(t, gpu)
	assert.ErrorIs(t, err, ErrNoGPU)
	assert.Equal(t, 1, cpu.released)
	assert.Equal(t, []string{"[HARDWARE] No GPU card found, unable to monitor"}, messages(logs, zapcore.ErrorLevel))
	assert.Empty(t, messages(logs, zapcore.FatalLevel))
}

func TestAcquireOpenFailure(t *testing.T) {
	t.Parallel()

	q := &providerQueue{providers: []*fakeProvider{{openErr: errBoom}}}
	log, logs := newObservedLogger()

	gpu, err := NewHandleManager(q.factory, time.Second, log).Acquire(context.Background())

	assert.Nil(t, gpu)
	assert.ErrorIs(t, err, errBoom)
	assert.EqualError(t, err, "opening hardware provider: boom")
	assert.Equal(t, []string{"[HARDWARE] Exception occurred while fetching the GPU card"}, messages(logs, zapcore.FatalLevel))
	assert.Equal(t, []string{"[HARDWARE] Failed to retrieve a GPU card, unable to continue"}, messages(logs, zapcore.ErrorLevel))
}

func TestAcquireRecoversProviderPanic(t *testing.T) {
	t.Parallel()

	q := &providerQueue{providers: []*fakeProvider{{openPanic: "driver crashed"}}}
	log, logs := newObservedLogger()

	gpu, err := NewHandleManager(q.factory, time.Second, log).Acquire(context.Background())

	assert.Nil(t, gpu)
	var fault *Fault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, "driver crashed", fault.Value)
	assert.False(t, fault.AccessViolation())
	assert.Len(t, messages(logs, zapcore.FatalLevel), 1)
}

func TestAcquireAppliesTimeout(t *testing.T) {
	t.Parallel()

	var deadline time.Time
	var hasDeadline bool
	factory := func(hardware.Options) hardware.Provider {
		return providerFunc(func(ctx context.Context) error {
			deadline, hasDeadline = ctx.Deadline()
			return nil
		})
	}
	log, _ := newObservedLogger()

	start := time.Now()
	_, err := NewHandleManager(factory, time.Minute, log).Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoGPU)
	require.True(t, hasDeadline)
	assert.WithinDuration(t, start.Add(time.Minute), deadline, 5*time.Second)
}

type providerFunc func(ctx context.Context) error

func (f providerFunc) Open(ctx context.Context) error { return f(ctx) }
func (providerFunc) Hardware() []hardware.Hardware    { return nil }
func (providerFunc) Close() error                     { return nil }
