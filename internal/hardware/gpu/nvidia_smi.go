package gpu

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// nvidia-smi queries used by the Windows backend.
var (
	smiListArgs = []string{
		"--query-gpu=index,name",
		"--format=csv,noheader,nounits",
	}
	smiSampleQuery = "--query-gpu=utilization.gpu,temperature.gpu"
)

// smiDevice is a row of the nvidia-smi device listing.
type smiDevice struct {
	Index int
	Name  string
}

func smiSampleArgs(index int) []string {
	return []string{
		"-i", strconv.Itoa(index),
		smiSampleQuery,
		"--format=csv,noheader,nounits",
	}
}

func readSMIRecords(out []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(out))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse nvidia-smi output: %w", err)
	}
	return records, nil
}

// parseSMIDevices parses the output of the device listing query.
func parseSMIDevices(out []byte) ([]smiDevice, error) {
	records, err := readSMIRecords(out)
	if err != nil {
		return nil, err
	}

	devices := make([]smiDevice, 0, len(records))
	for _, record := range records {
		if len(record) < 2 {
			continue // Skip malformed lines
		}

		idx, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}

		devices = append(devices, smiDevice{
			Index: idx,
			Name:  deviceName(idx, strings.TrimSpace(record[1])),
		})
	}

	return devices, nil
}

// parseSMISample parses the output of the per-device sample query into sensors.
func parseSMISample(out []byte) ([]hardware.Sensor, error) {
	records, err := readSMIRecords(out)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) < 2 {
		return nil, fmt.Errorf("unexpected nvidia-smi sample output %q", strings.TrimSpace(string(out)))
	}

	record := records[0]
	sensors := make([]hardware.Sensor, 0, 2)

	load, state := parseSMIField(record[0])
	sensors = appendSample(sensors, hardware.SensorLoad, sensorNameCoreLoad, state, load)

	temp, state := parseSMIField(record[1])
	sensors = appendSample(sensors, hardware.SensorTemperature, sensorNameCoreTemp, state, temp)

	return sensors, nil
}

// parseSMIField classifies a single nvidia-smi value.
// "[Not Supported]" drops the sensor, "[N/A]" or garbage leaves it empty.
func parseSMIField(field string) (float32, sampleState) {
	field = strings.TrimSpace(field)

	switch {
	case strings.EqualFold(field, "[Not Supported]"):
		return 0, sampleUnsupported
	case field == "", strings.EqualFold(field, "[N/A]"):
		return 0, sampleEmpty
	}

	v, err := strconv.ParseFloat(field, 32)
	if err != nil {
		return 0, sampleEmpty
	}
	return float32(v), sampleOK
}
