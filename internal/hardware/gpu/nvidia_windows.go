//go:build windows

// Package gpu provides NVIDIA GPU sampling for Windows.
// On Windows, we use nvidia-smi CLI tool which comes with NVIDIA drivers.
package gpu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// smiTimeout bounds a single nvidia-smi invocation.
const smiTimeout = 5 * time.Second

// smiRunner runs nvidia-smi with the given arguments and returns stdout.
type smiRunner func(ctx context.Context, args ...string) ([]byte, error)

func runNvidiaSMI(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "nvidia-smi", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("nvidia-smi failed (exit %d): %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// SMIBackend enumerates NVIDIA GPUs through nvidia-smi.
type SMIBackend struct {
	run smiRunner
	log *zap.Logger
}

// NewSMIBackend creates a new nvidia-smi based GPU backend.
func NewSMIBackend(log *zap.Logger) *SMIBackend {
	return &SMIBackend{run: runNvidiaSMI, log: log}
}

func newNVIDIABackend(log *zap.Logger) hardware.Backend {
	return NewSMIBackend(log)
}

// Name implements hardware.Backend.
func (b *SMIBackend) Name() string {
	return BackendNVIDIA
}

// Supports implements hardware.Backend.
func (b *SMIBackend) Supports(opts hardware.Options) bool {
	return opts.GPU
}

// Open implements hardware.Backend.
func (b *SMIBackend) Open(ctx context.Context) ([]hardware.Hardware, error) {
	out, err := b.run(ctx, smiListArgs...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			// NVIDIA drivers are not installed
			b.log.Debug("nvidia-smi not found")
			return nil, nil
		}
		return nil, err
	}

	listed, err := parseSMIDevices(out)
	if err != nil {
		return nil, err
	}

	devices := make([]hardware.Hardware, 0, len(listed))
	for _, d := range listed {
		devices = append(devices, &smiHandle{
			index:   d.Index,
			name:    d.Name,
			run:     b.run,
			sensors: unsampledSensors(),
		})
	}
	return devices, nil
}

// Close implements hardware.Backend. No-op as nvidia-smi is run on-demand.
func (b *SMIBackend) Close() error {
	return nil
}

type smiHandle struct {
	index int
	name  string
	run   smiRunner

	mu      sync.Mutex
	sensors []hardware.Sensor
}

func (h *smiHandle) Type() hardware.Type {
	return hardware.TypeGpuNvidia
}

func (h *smiHandle) Name() string {
	return h.name
}

func (h *smiHandle) Sensors() ([]hardware.Sensor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]hardware.Sensor, len(h.sensors))
	copy(out, h.sensors)
	return out, nil
}

func (h *smiHandle) Update() error {
	ctx, cancel := context.WithTimeout(context.Background(), smiTimeout)
	defer cancel()

	out, err := h.run(ctx, smiSampleArgs(h.index)...)
	if err != nil {
		return fmt.Errorf("gpu %d: %w", h.index, err)
	}

	sensors, err := parseSMISample(out)
	if err != nil {
		return fmt.Errorf("gpu %d: %w", h.index, err)
	}

	h.mu.Lock()
	h.sensors = sensors
	h.mu.Unlock()
	return nil
}
