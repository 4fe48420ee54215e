package telemetry

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
	"github.com/lab02-research/lhmtester/pkg/logger"
)

// Outcome classifies a single sensor read.
type Outcome int

const (
	// OutcomeOK means a value was formatted and printed.
	OutcomeOK Outcome = iota

	// OutcomeNotFound means the handle has no sensor of the requested type.
	OutcomeNotFound

	// OutcomeNullValue means the sensor has not been sampled.
	OutcomeNullValue

	// OutcomeEmptyValue means the sensor was sampled but holds no value.
	OutcomeEmptyValue

	// OutcomeRecovered means the read faulted and a new handle was acquired.
	OutcomeRecovered

	// OutcomeUnrecoverable means the read faulted and no handle could be acquired.
	OutcomeUnrecoverable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeNullValue:
		return "null_value"
	case OutcomeEmptyValue:
		return "empty_value"
	case OutcomeRecovered:
		return "recovered"
	case OutcomeUnrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Fatal reports whether the poll loop must stop.
func (o Outcome) Fatal() bool {
	return o == OutcomeUnrecoverable
}

// Result is the outcome of ReadSensor. Value is set for OutcomeOK only.
type Result struct {
	Outcome Outcome
	Value   string
}

// Fault wraps a panic raised while talking to the hardware.
type Fault struct {
	Value any
}

func (f *Fault) Error() string {
	return fmt.Sprintf("panic: %v", f.Value)
}

// AccessViolation reports whether the panic was a runtime fault such as a nil
// dereference, as opposed to a panic raised by the provider itself.
func (f *Fault) AccessViolation() bool {
	_, ok := f.Value.(runtime.Error)
	return ok
}

// Label returns the console tag of a sensor type.
func Label(t hardware.SensorType) string {
	switch t {
	case hardware.SensorLoad:
		return "LOADSENSOR"
	case hardware.SensorTemperature:
		return "TEMPSENSOR"
	default:
		return strings.ToUpper(t.String()) + "SENSOR"
	}
}

// ReadSensor reads the first sensor of type t on the current handle and
// prints its value. Validation failures are logged and reported; a fault
// while reading triggers re-acquisition of the GPU handle.
func (p *Poller) ReadSensor(ctx context.Context, t hardware.SensorType) Result {
	label := Label(t)

	res, err := p.inspect(t, label)
	if err == nil {
		return res
	}

	p.log.Info("")
	if f, ok := err.(*Fault); ok && f.AccessViolation() {
		logger.Fault(p.log, "["+label+"] Access violation occurred", zap.Error(err))
	} else {
		logger.Fault(p.log, "["+label+"] Exception occurred", zap.Error(err))
	}
	p.log.Info("")

	p.log.Info("[" + label + "] Trying to reload GPU card ..")
	if err := p.reacquire(ctx); err != nil {
		return Result{Outcome: OutcomeUnrecoverable}
	}
	return Result{Outcome: OutcomeRecovered}
}

// inspect runs the validation steps of a read. Panics are turned into a Fault.
func (p *Poller) inspect(t hardware.SensorType, label string) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, &Fault{Value: r}
		}
	}()

	sensors, err := p.gpu.Sensors()
	if err != nil {
		return Result{}, err
	}

	var sensor *hardware.Sensor
	for i := range sensors {
		if sensors[i].Type == t {
			sensor = &sensors[i]
			break
		}
	}

	switch {
	case sensor == nil:
		p.log.Error("[" + label + "] Sensor not found")
		return Result{Outcome: OutcomeNotFound}, nil
	case sensor.Value == nil:
		p.log.Error("[" + label + "] Sensor contains null value")
		return Result{Outcome: OutcomeNullValue}, nil
	case sensor.IsEmpty():
		p.log.Error("[" + label + "] Sensor contains no value")
		return Result{Outcome: OutcomeEmptyValue}, nil
	}

	value := FormatValue(*sensor.Value)
	if _, err := fmt.Fprintf(p.out, "[%s] Value: %s\n", label, value); err != nil {
		return Result{}, fmt.Errorf("writing %s value: %w", label, err)
	}
	return Result{Outcome: OutcomeOK, Value: value}, nil
}
