package gpu

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaypipes/ghw"
	hostinfo "github.com/shirou/gopsutil/v3/host"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// sysPCIDevices is where the kernel exposes per-device sysfs attributes.
const sysPCIDevices = "/sys/bus/pci/devices"

// hwmonFallbackTimeout bounds the gopsutil temperature scan.
const hwmonFallbackTimeout = 2 * time.Second

// PCI vendor IDs of the supported GPU makers.
const (
	vendorAMD    = "1002"
	vendorIntel  = "8086"
	vendorNVIDIA = "10de"
)

// pciCard is a display controller found on the PCI bus.
type pciCard struct {
	Address string
	Kind    hardware.Type
	Name    string
}

// cardEnumerator lists display controllers.
type cardEnumerator func() ([]pciCard, error)

// temperatureScanner lists hwmon temperatures of the whole machine.
type temperatureScanner func(ctx context.Context) ([]hostinfo.TemperatureStat, error)

// vendorType maps a PCI vendor ID to a GPU kind.
func vendorType(id string) hardware.Type {
	switch strings.ToLower(strings.TrimPrefix(id, "0x")) {
	case vendorAMD:
		return hardware.TypeGpuAmd
	case vendorIntel:
		return hardware.TypeGpuIntel
	case vendorNVIDIA:
		return hardware.TypeGpuNvidia
	default:
		return hardware.TypeUnknown
	}
}

// hwmonDriver is the hwmon chip name prefix for each GPU kind.
func hwmonDriver(kind hardware.Type) string {
	switch kind {
	case hardware.TypeGpuAmd:
		return "amdgpu"
	case hardware.TypeGpuIntel:
		return "i915"
	default:
		return ""
	}
}

// ghwCards lists display controllers using ghw.
func ghwCards() ([]pciCard, error) {
	info, err := ghw.GPU(ghw.WithDisableWarnings())
	if err != nil {
		return nil, err
	}

	cards := make([]pciCard, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		deviceInfo := card.DeviceInfo
		if deviceInfo == nil || deviceInfo.Vendor == nil {
			continue
		}

		name := deviceInfo.Vendor.Name
		if deviceInfo.Product != nil && deviceInfo.Product.Name != "" {
			name = deviceInfo.Product.Name
		}

		cards = append(cards, pciCard{
			Address: card.Address,
			Kind:    vendorType(deviceInfo.Vendor.ID),
			Name:    name,
		})
	}
	return cards, nil
}

// DRMBackend enumerates AMD and Intel GPUs on the PCI bus and samples them
// through the kernel's DRM sysfs attributes. NVIDIA cards are left to the
// NVIDIA backend.
type DRMBackend struct {
	fs    afero.Fs
	root  string
	cards cardEnumerator
	temps temperatureScanner
	log   *zap.Logger
}

// NewDRMBackend creates a DRM backend reading the live sysfs tree.
func NewDRMBackend(log *zap.Logger) *DRMBackend {
	return &DRMBackend{
		fs:    afero.NewOsFs(),
		root:  sysPCIDevices,
		cards: ghwCards,
		temps: hostinfo.SensorsTemperaturesWithContext,
		log:   log,
	}
}

// Name implements hardware.Backend.
func (b *DRMBackend) Name() string {
	return BackendDRM
}

// Supports implements hardware.Backend.
func (b *DRMBackend) Supports(opts hardware.Options) bool {
	return opts.GPU
}

// Open implements hardware.Backend.
func (b *DRMBackend) Open(ctx context.Context) ([]hardware.Hardware, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("drm enumeration cancelled: %w", ctx.Err())
	default:
	}

	cards, err := b.cards()
	if err != nil {
		return nil, fmt.Errorf("enumerating display controllers: %w", err)
	}

	devices := make([]hardware.Hardware, 0, len(cards))
	for _, card := range cards {
		if card.Kind != hardware.TypeGpuAmd && card.Kind != hardware.TypeGpuIntel {
			continue
		}

		b.log.Debug("Found DRM device",
			zap.String("address", card.Address),
			zap.String("kind", card.Kind.String()),
			zap.String("name", card.Name),
		)
		devices = append(devices, &drmDevice{
			fs:    b.fs,
			dir:   path.Join(b.root, card.Address),
			kind:  card.Kind,
			name:  card.Name,
			temps: b.temps,
			sensors: []hardware.Sensor{
				{Type: hardware.SensorLoad, Name: sensorNameCoreLoad},
				{Type: hardware.SensorTemperature, Name: sensorNameCoreTemp},
			},
		})
	}
	return devices, nil
}

// Close implements hardware.Backend. Nothing is held open between reads.
func (b *DRMBackend) Close() error {
	return nil
}

// drmDevice samples one AMD or Intel GPU from sysfs.
type drmDevice struct {
	fs    afero.Fs
	dir   string
	kind  hardware.Type
	name  string
	temps temperatureScanner

	mu      sync.Mutex
	sensors []hardware.Sensor
}

func (d *drmDevice) Type() hardware.Type {
	return d.kind
}

func (d *drmDevice) Name() string {
	return d.name
}

func (d *drmDevice) Sensors() ([]hardware.Sensor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]hardware.Sensor, len(d.sensors))
	copy(out, d.sensors)
	return out, nil
}

// Update reads gpu_busy_percent and the first hwmon temperature input.
// A device whose sysfs directory vanished (hot unplug, driver reset) fails.
func (d *drmDevice) Update() error {
	exists, err := afero.DirExists(d.fs, d.dir)
	if err != nil {
		return fmt.Errorf("checking %s: %w", d.dir, err)
	}
	if !exists {
		return fmt.Errorf("device %s disappeared", path.Base(d.dir))
	}

	sensors := make([]hardware.Sensor, 0, 2)

	load, state := d.readLoad()
	sensors = appendSample(sensors, hardware.SensorLoad, sensorNameCoreLoad, state, load)

	temp, state := d.readTemperature()
	sensors = appendSample(sensors, hardware.SensorTemperature, sensorNameCoreTemp, state, temp)

	d.mu.Lock()
	d.sensors = sensors
	d.mu.Unlock()
	return nil
}

func (d *drmDevice) readLoad() (float32, sampleState) {
	file := path.Join(d.dir, "gpu_busy_percent")

	ok, err := afero.Exists(d.fs, file)
	if err != nil {
		return 0, sampleEmpty
	}
	if !ok {
		// i915 and older radeon drivers do not export a busy counter
		return 0, sampleUnsupported
	}

	return d.readNumber(file, 1)
}

func (d *drmDevice) readTemperature() (float32, sampleState) {
	inputs, err := afero.Glob(d.fs, path.Join(d.dir, "hwmon", "hwmon*", "temp1_input"))
	if err == nil && len(inputs) > 0 {
		sort.Strings(inputs)
		for _, file := range inputs {
			if v, state := d.readNumber(file, 1000); state == sampleOK {
				return v, state
			}
		}
		return 0, sampleEmpty
	}

	return d.scanTemperature()
}

// scanTemperature falls back to gopsutil's hwmon scan, matching the chip name
// of the GPU driver.
func (d *drmDevice) scanTemperature() (float32, sampleState) {
	driver := hwmonDriver(d.kind)
	if driver == "" || d.temps == nil {
		return 0, sampleUnsupported
	}

	ctx, cancel := context.WithTimeout(context.Background(), hwmonFallbackTimeout)
	defer cancel()

	// gopsutil returns partial results together with warnings
	stats, _ := d.temps(ctx)
	for _, stat := range stats {
		if strings.HasPrefix(stat.SensorKey, driver) {
			return float32(stat.Temperature), sampleOK
		}
	}
	return 0, sampleUnsupported
}

// readNumber reads an integer sysfs attribute and divides it by scale.
func (d *drmDevice) readNumber(file string, scale float64) (float32, sampleState) {
	data, err := afero.ReadFile(d.fs, file)
	if err != nil {
		return 0, sampleEmpty
	}

	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, sampleEmpty
	}
	return float32(float64(v) / scale), sampleOK
}
