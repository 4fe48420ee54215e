package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lab02-research/lhmtester/internal/hardware"
	"github.com/lab02-research/lhmtester/internal/telemetry"
)

type panickyGPU struct {
	released bool
}

func (*panickyGPU) Type() hardware.Type                 { return hardware.TypeGpuIntel }
func (*panickyGPU) Name() string                        { return "gpu0" }
func (*panickyGPU) Sensors() ([]hardware.Sensor, error) { return nil, nil }
func (*panickyGPU) Update() error                       { panic("refresh blew up") }
func (g *panickyGPU) Release() error {
	g.released = true
	return nil
}

type staticProvider struct {
	hw []hardware.Hardware
}

func (*staticProvider) Open(context.Context) error      { return nil }
func (p *staticProvider) Hardware() []hardware.Hardware { return p.hw }
func (*staticProvider) Close() error                    { return nil }

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func TestMonitorRecoversRefreshPanic(t *testing.T) {
	t.Parallel()

	gpu := &panickyGPU{}
	factory := func(hardware.Options) hardware.Provider {
		return &staticProvider{hw: []hardware.Hardware{gpu}}
	}
	log, _ := observed()

	err := monitor(context.Background(), factory, time.Second, log, &bytes.Buffer{})

	var fault *telemetry.Fault
	assert.True(t, errors.As(err, &fault))
	assert.Equal(t, "refresh blew up", fault.Value)
	assert.True(t, gpu.released)
}

func TestMonitorWithoutGPU(t *testing.T) {
	t.Parallel()

	factory := func(hardware.Options) hardware.Provider { return &staticProvider{} }
	log, _ := observed()

	err := monitor(context.Background(), factory, time.Second, log, &bytes.Buffer{})

	assert.ErrorIs(t, err, telemetry.ErrUnrecoverable)
	assert.ErrorIs(t, err, telemetry.ErrNoGPU)
}

func TestReport(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		err   error
		fatal []string
		info  []string
	}{
		{name: "finished", err: nil},
		{name: "interrupted", err: context.Canceled, info: []string{"Sensor querying interrupted"}},
		{name: "unrecoverable", err: telemetry.ErrUnrecoverable},
		{
			name:  "panic",
			err:   &telemetry.Fault{Value: "boom"},
			fatal: []string{"Exception occurred"},
			info:  []string{"", ""},
		},
		{
			name:  "refresh error",
			err:   errors.New("refreshing gpu0: lost"),
			fatal: []string{"Exception occurred"},
			info:  []string{"", ""},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			log, logs := observed()
			report(log, tc.err)

			assert.Equal(t, tc.fatal, messagesAt(logs, zapcore.FatalLevel))
			assert.Equal(t, tc.info, messagesAt(logs, zapcore.InfoLevel))
		})
	}
}

func TestReportAccessViolation(t *testing.T) {
	t.Parallel()

	var fault *telemetry.Fault
	func() {
		defer func() { fault = &telemetry.Fault{Value: recover()} }()
		var sensors []hardware.Sensor
		i := len(sensors) + 1
		_ = sensors[i]
	}()

	log, logs := observed()
	report(log, fault)

	assert.Equal(t, []string{"Access violation occurred"}, messagesAt(logs, zapcore.FatalLevel))
}

func TestPrintBanner(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	printBanner(&buf, "1.2.3")

	assert.Contains(t, buf.String(), "LibreHardwareMonitor Tester [1.2.3]\n")
	assert.Contains(t, buf.String(), "continuously fetch GPU load and -temperature sensors")
}

func TestWaitForKeyReturnsOnInput(t *testing.T) {
	t.Parallel()

	in := strings.NewReader("x")
	waitForKey(in)
	assert.Equal(t, 0, in.Len())

	waitForKey(strings.NewReader(""))
}

func messagesAt(logs *observer.ObservedLogs, level zapcore.Level) []string {
	var out []string
	for _, e := range logs.FilterLevelExact(level).All() {
		out = append(out, e.Message)
	}
	return out
}
