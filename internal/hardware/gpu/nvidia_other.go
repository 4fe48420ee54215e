//go:build !linux && !windows

// Package gpu provides NVIDIA GPU sampling.
// This file is built on platforms other than Linux and Windows (e.g., macOS)
// where neither NVML nor nvidia-smi is available.
package gpu

import (
	"context"
	"runtime"

	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// unsupportedBackend reports no NVIDIA devices.
type unsupportedBackend struct {
	log *zap.Logger
}

func newNVIDIABackend(log *zap.Logger) hardware.Backend {
	return &unsupportedBackend{log: log}
}

func (b *unsupportedBackend) Name() string {
	return BackendNVIDIA
}

func (b *unsupportedBackend) Supports(opts hardware.Options) bool {
	return opts.GPU
}

// Open implements hardware.Backend.
// On unsupported platforms, it returns no devices.
func (b *unsupportedBackend) Open(ctx context.Context) ([]hardware.Hardware, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	b.log.Debug("NVIDIA GPU enumeration not supported",
		zap.String("os", runtime.GOOS),
	)
	return nil, nil
}

// Close releases any resources. No-op on unsupported platforms.
func (b *unsupportedBackend) Close() error {
	return nil
}
