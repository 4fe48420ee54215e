package gpu

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lab02-research/lhmtester/internal/hardware"
)

// Backend names accepted in configuration.
const (
	// BackendNVIDIA is NVML on Linux and nvidia-smi on Windows.
	BackendNVIDIA = "nvidia"

	// BackendDRM covers AMD and Intel GPUs via PCI enumeration and sysfs.
	BackendDRM = "drm"
)

// BackendNames lists every backend name in enumeration order.
func BackendNames() []string {
	return []string{BackendNVIDIA, BackendDRM}
}

// NewBackends creates the named backends, preserving order.
func NewBackends(names []string, log *zap.Logger) ([]hardware.Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}

	backends := make([]hardware.Backend, 0, len(names))
	for _, name := range names {
		switch name {
		case BackendNVIDIA:
			backends = append(backends, newNVIDIABackend(log.Named(name)))
		case BackendDRM:
			backends = append(backends, NewDRMBackend(log.Named(name)))
		default:
			return nil, fmt.Errorf("unknown hardware backend %q", name)
		}
	}
	return backends, nil
}
