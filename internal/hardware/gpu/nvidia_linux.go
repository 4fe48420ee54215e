//go:build linux

// Package gpu provides NVIDIA GPU sampling using NVML.
// This file is only built on Linux where NVML is fully supported.
package gpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// NVMLBackend enumerates NVIDIA GPUs using the NVML library.
//
// NVML initialization is reference counted: the backend holds one reference
// while enumerating and every device handle holds its own, so handles remain
// usable after the backend is closed.
type NVMLBackend struct {
	// initialized tracks whether the backend holds an NVML reference
	initialized bool

	// mu protects the initialized state
	mu  sync.Mutex
	log *zap.Logger
}

// NewNVMLBackend creates a new NVML-based GPU backend.
func NewNVMLBackend(log *zap.Logger) *NVMLBackend {
	return &NVMLBackend{log: log}
}

func newNVIDIABackend(log *zap.Logger) hardware.Backend {
	return NewNVMLBackend(log)
}

// Name implements hardware.Backend.
func (b *NVMLBackend) Name() string {
	return BackendNVIDIA
}

// Supports implements hardware.Backend.
func (b *NVMLBackend) Supports(opts hardware.Options) bool {
	return opts.GPU
}

// Open implements hardware.Backend.
// It initializes NVML and opens a handle for every visible device.
func (b *NVMLBackend) Open(ctx context.Context) ([]hardware.Hardware, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("nvml enumeration cancelled: %w", ctx.Err())
	default:
	}

	// A failed init means no NVIDIA driver, which is not an error here:
	// the machine may simply not have an NVIDIA GPU.
	ret := nvml.Init()
	if ret != nvml.SUCCESS {
		b.log.Debug("NVML unavailable",
			zap.String("reason", nvml.ErrorString(ret)),
		)
		return nil, nil
	}
	b.initialized = true

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get device count: %s", nvml.ErrorString(ret))
	}

	devices := make([]hardware.Hardware, 0, count)
	for i := 0; i < count; i++ {
		dev, err := openNVMLDevice(i)
		if err != nil {
			b.log.Warn("Skipping NVIDIA device",
				zap.Int("index", i),
				zap.Error(err),
			)
			continue
		}
		devices = append(devices, dev)
	}

	return devices, nil
}

// Close implements hardware.Backend. Device handles keep their own NVML
// reference and stay valid.
func (b *NVMLBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return nil
	}

	ret := nvml.Shutdown()
	if ret != nvml.SUCCESS {
		return fmt.Errorf("failed to shutdown NVML: %s", nvml.ErrorString(ret))
	}

	b.initialized = false
	return nil
}

// nvmlDevice is a handle to a single NVIDIA GPU.
type nvmlDevice struct {
	index int
	name  string
	dev   nvml.Device

	mu       sync.Mutex
	sensors  []hardware.Sensor
	released bool
}

func openNVMLDevice(index int) (*nvmlDevice, error) {
	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to get device handle: %s", nvml.ErrorString(ret))
	}

	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("failed to take NVML reference: %s", nvml.ErrorString(ret))
	}

	name, ret := device.GetName()
	if ret != nvml.SUCCESS {
		name = ""
	}

	return &nvmlDevice{
		index:   index,
		name:    deviceName(index, name),
		dev:     device,
		sensors: unsampledSensors(),
	}, nil
}

func (d *nvmlDevice) Type() hardware.Type {
	return hardware.TypeGpuNvidia
}

func (d *nvmlDevice) Name() string {
	return d.name
}

func (d *nvmlDevice) Sensors() ([]hardware.Sensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return nil, hardware.ErrReleased
	}

	out := make([]hardware.Sensor, len(d.sensors))
	copy(out, d.sensors)
	return out, nil
}

// Update samples GPU utilization and core temperature.
func (d *nvmlDevice) Update() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return hardware.ErrReleased
	}

	util, utilRet := d.dev.GetUtilizationRates()
	temp, tempRet := d.dev.GetTemperature(nvml.TEMPERATURE_GPU)

	for _, ret := range []nvml.Return{utilRet, tempRet} {
		if ret == nvml.ERROR_GPU_IS_LOST || ret == nvml.ERROR_UNINITIALIZED {
			return fmt.Errorf("gpu %d: %s", d.index, nvml.ErrorString(ret))
		}
	}

	sensors := make([]hardware.Sensor, 0, 2)
	sensors = appendSample(sensors, hardware.SensorLoad, sensorNameCoreLoad, nvmlState(utilRet), float32(util.Gpu))
	sensors = appendSample(sensors, hardware.SensorTemperature, sensorNameCoreTemp, nvmlState(tempRet), float32(temp))
	d.sensors = sensors

	return nil
}

// Release drops the device's NVML reference.
func (d *nvmlDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.released {
		return nil
	}
	d.released = true

	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("failed to release NVML reference: %s", nvml.ErrorString(ret))
	}
	return nil
}

func nvmlState(ret nvml.Return) sampleState {
	switch ret {
	case nvml.SUCCESS:
		return sampleOK
	case nvml.ERROR_NOT_SUPPORTED, nvml.ERROR_FUNCTION_NOT_FOUND:
		return sampleUnsupported
	default:
		return sampleEmpty
	}
}
