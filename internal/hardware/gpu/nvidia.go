// Package gpu provides hardware backends that enumerate GPUs and sample their
// load and temperature sensors. NVIDIA devices are served through NVML on
// Linux and through the nvidia-smi CLI on Windows; AMD and Intel devices are
// discovered on the PCI bus and sampled through sysfs.
package gpu

import (
	"fmt"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// Sensor names reported for the core engine of a GPU.
const (
	sensorNameCoreLoad = "GPU Core"
	sensorNameCoreTemp = "GPU Core"
)

// sampleState classifies the outcome of a single native sensor query.
type sampleState int

const (
	// sampleOK means the device returned a value.
	sampleOK sampleState = iota

	// sampleUnsupported means the device does not expose the sensor at all.
	sampleUnsupported

	// sampleEmpty means the sensor exists but the query returned nothing.
	sampleEmpty
)

// appendSample adds a sensor for the given query outcome.
// Unsupported sensors are left out of the list entirely.
func appendSample(sensors []hardware.Sensor, t hardware.SensorType, name string, state sampleState, v float32) []hardware.Sensor {
	switch state {
	case sampleOK:
		return append(sensors, hardware.NewSensor(t, name, v))
	case sampleEmpty:
		return append(sensors, hardware.EmptySensor(t, name))
	default:
		return sensors
	}
}

// unsampledSensors is the sensor list of a freshly opened NVIDIA handle,
// before its first Update.
func unsampledSensors() []hardware.Sensor {
	return []hardware.Sensor{
		{Type: hardware.SensorLoad, Name: sensorNameCoreLoad},
		{Type: hardware.SensorTemperature, Name: sensorNameCoreTemp},
	}
}

// deviceName returns a display name for an NVIDIA device.
func deviceName(index int, name string) string {
	if name == "" {
		return fmt.Sprintf("NVIDIA GPU %d", index)
	}
	return name
}
