// Package telemetry polls the load and temperature sensors of a single GPU.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
	"github.com/lab02-research/lhmtester/pkg/logger"
)

// ErrNoGPU is returned when the provider reports no GPU-class hardware.
var ErrNoGPU = errors.New("no GPU card found")

// HandleManager acquires GPU handles from a hardware provider.
type HandleManager struct {
	factory hardware.ProviderFactory
	timeout time.Duration
	log     *zap.Logger
}

// NewHandleManager creates a handle manager over the given provider factory.
// A positive timeout bounds each acquisition.
func NewHandleManager(factory hardware.ProviderFactory, timeout time.Duration, log *zap.Logger) *HandleManager {
	return &HandleManager{
		factory: factory,
		timeout: timeout,
		log:     log,
	}
}

// Acquire opens a GPU-only provider, takes the first AMD, NVIDIA or Intel GPU
// and closes the provider again. Errors and panics raised by the provider are
// logged and returned as errors.
func (m *HandleManager) Acquire(ctx context.Context) (gpu hardware.Hardware, err error) {
	defer func() {
		if r := recover(); r != nil {
			gpu = nil
			err = &Fault{Value: r}
		}
		if err != nil && !errors.Is(err, ErrNoGPU) {
			m.log.Info("")
			logger.Fault(m.log, "[HARDWARE] Exception occurred while fetching the GPU card",
				zap.Error(err),
			)
			m.log.Info("")
			m.log.Error("[HARDWARE] Failed to retrieve a GPU card, unable to continue")
		}
	}()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	return m.acquire(ctx)
}

func (m *HandleManager) acquire(ctx context.Context) (hardware.Hardware, error) {
	m.log.Info("[HARDWARE] Fetching PC hardware info ..")

	provider := m.factory(hardware.GPUOnly())
	if err := provider.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening hardware provider: %w", err)
	}

	m.log.Info("[HARDWARE] Fetching GPU card ..")

	var gpu hardware.Hardware
	for _, hw := range provider.Hardware() {
		if gpu == nil && hw.Type().IsGPU() {
			gpu = hw
			continue
		}
		// Only one handle is kept; the rest are released right away.
		if err := hardware.Release(hw); err != nil {
			m.log.Warn("[HARDWARE] Failed to release unused hardware",
				zap.String("name", hw.Name()),
				zap.Error(err),
			)
		}
	}

	if err := provider.Close(); err != nil {
		m.log.Warn("[HARDWARE] Failed to close hardware provider",
			zap.Error(err),
		)
	}

	if gpu == nil {
		m.log.Error("[HARDWARE] No GPU card found, unable to monitor")
		return nil, ErrNoGPU
	}

	m.log.Info("[HARDWARE] GPU card found",
		zap.String("name", gpu.Name()),
		zap.Stringer("type", gpu.Type()),
	)
	return gpu, nil
}
