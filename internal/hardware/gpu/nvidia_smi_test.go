package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

func TestParseSMIDevices(t *testing.T) {
	t.Parallel()

	out := []byte("0, NVIDIA GeForce RTX 4090\n1, \nbroken\nx, NVIDIA A100\n")

	devices, err := parseSMIDevices(out)
	require.NoError(t, err)
	assert.Equal(t, []smiDevice{
		{Index: 0, Name: "NVIDIA GeForce RTX 4090"},
		{Index: 1, Name: "NVIDIA GPU 1"},
	}, devices)
}

func TestParseSMISample(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		out      string
		expErr   string
		expTypes []hardware.SensorType
		expEmpty []bool
		expLoad  float32
	}{
		"both values": {
			out:      "42, 61\n",
			expTypes: []hardware.SensorType{hardware.SensorLoad, hardware.SensorTemperature},
			expEmpty: []bool{false, false},
			expLoad:  42,
		},
		"load not available": {
			out:      "[N/A], 61\n",
			expTypes: []hardware.SensorType{hardware.SensorLoad, hardware.SensorTemperature},
			expEmpty: []bool{true, false},
		},
		"load not supported": {
			out:      "[Not Supported], 61\n",
			expTypes: []hardware.SensorType{hardware.SensorTemperature},
			expEmpty: []bool{false},
		},
		"empty output": {
			out:    "",
			expErr: `unexpected nvidia-smi sample output ""`,
		},
	}

	for name, tt := range cases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			sensors, err := parseSMISample([]byte(tt.out))
			if tt.expErr != "" {
				assert.EqualError(t, err, tt.expErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, sensors, len(tt.expTypes))

			for i, s := range sensors {
				assert.Equal(t, tt.expTypes[i], s.Type)
				require.NotNil(t, s.Value)
				assert.Equal(t, tt.expEmpty[i], s.IsEmpty())
			}
			if tt.expLoad != 0 {
				assert.Equal(t, tt.expLoad, *sensors[0].Value)
			}
		})
	}
}

func TestSMISampleArgs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"-i", "3",
		"--query-gpu=utilization.gpu,temperature.gpu",
		"--format=csv,noheader,nounits",
	}, smiSampleArgs(3))
}

func TestAppendSample(t *testing.T) {
	t.Parallel()

	var sensors []hardware.Sensor
	sensors = appendSample(sensors, hardware.SensorLoad, "a", sampleOK, 3)
	sensors = appendSample(sensors, hardware.SensorLoad, "b", sampleUnsupported, 3)
	sensors = appendSample(sensors, hardware.SensorTemperature, "c", sampleEmpty, 3)

	require.Len(t, sensors, 2)
	assert.Equal(t, "a", sensors[0].Name)
	assert.Equal(t, float32(3), *sensors[0].Value)
	assert.True(t, sensors[1].IsEmpty())
}
