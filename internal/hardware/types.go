// Package hardware defines the hardware provider contract used by the tester.
// A Provider enumerates hardware, each Hardware exposes a list of typed
// sensor readings that are repopulated by Update.
package hardware

import (
	"context"
	"errors"
	"math"
)

// ErrReleased is returned by handles that were used after Release.
var ErrReleased = errors.New("hardware handle released")

// Type is the kind of an enumerated hardware entry.
type Type int

const (
	TypeUnknown Type = iota
	TypeCPU
	TypeGpuNvidia
	TypeGpuAmd
	TypeGpuIntel
	TypeMemory
	TypeMotherboard
	TypeController
	TypeNetwork
	TypeStorage
)

func (t Type) String() string {
	switch t {
	case TypeCPU:
		return "Cpu"
	case TypeGpuNvidia:
		return "GpuNvidia"
	case TypeGpuAmd:
		return "GpuAmd"
	case TypeGpuIntel:
		return "GpuIntel"
	case TypeMemory:
		return "Memory"
	case TypeMotherboard:
		return "Motherboard"
	case TypeController:
		return "Controller"
	case TypeNetwork:
		return "Network"
	case TypeStorage:
		return "Storage"
	default:
		return "Unknown"
	}
}

// IsGPU reports whether t is one of the GPU kinds (AMD, NVIDIA or Intel).
func (t Type) IsGPU() bool {
	return t == TypeGpuAmd || t == TypeGpuNvidia || t == TypeGpuIntel
}

// SensorType tags a sensor reading.
type SensorType int

const (
	SensorLoad SensorType = iota
	SensorTemperature
	SensorClock
	SensorPower
	SensorFan
)

func (s SensorType) String() string {
	switch s {
	case SensorLoad:
		return "Load"
	case SensorTemperature:
		return "Temperature"
	case SensorClock:
		return "Clock"
	case SensorPower:
		return "Power"
	case SensorFan:
		return "Fan"
	default:
		return "Unknown"
	}
}

// Sensor is a single reading on a hardware entry.
//
// Value is nil when the sensor has not been sampled yet. A non-nil NaN value
// means a sample was attempted but the device returned nothing.
type Sensor struct {
	Type  SensorType
	Name  string
	Value *float32
}

// NewSensor returns a sensor holding v.
func NewSensor(t SensorType, name string, v float32) Sensor {
	return Sensor{Type: t, Name: name, Value: &v}
}

// EmptySensor returns a sensor whose sample came back empty.
func EmptySensor(t SensorType, name string) Sensor {
	return NewSensor(t, name, float32(math.NaN()))
}

// IsEmpty reports whether the sensor carries a present-but-unset value.
func (s Sensor) IsEmpty() bool {
	return s.Value != nil && math.IsNaN(float64(*s.Value))
}

// Hardware is a handle to one enumerated device.
type Hardware interface {
	Type() Type
	Name() string

	// Sensors returns the readings captured by the last Update.
	Sensors() ([]Sensor, error)

	// Update repopulates sensor values from the live device.
	Update() error
}

// Releaser is implemented by handles that hold native resources.
type Releaser interface {
	Release() error
}

// Release releases h if it holds native resources.
func Release(h Hardware) error {
	if r, ok := h.(Releaser); ok {
		return r.Release()
	}
	return nil
}

// Options selects which hardware categories a provider enumerates.
type Options struct {
	CPU         bool
	GPU         bool
	Memory      bool
	Motherboard bool
	Controller  bool
	Network     bool
	Storage     bool
}

// GPUOnly returns options with only GPU enumeration enabled.
func GPUOnly() Options {
	return Options{GPU: true}
}

// Provider is an open connection to the hardware enumeration layer.
// Handles returned by Hardware stay valid after Close.
type Provider interface {
	Open(ctx context.Context) error
	Hardware() []Hardware
	Close() error
}

// ProviderFactory creates a provider for the given options.
type ProviderFactory func(opts Options) Provider
