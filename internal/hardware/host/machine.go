// Package host describes the machine the tester runs on.
// The summary is logged once at startup next to the banner.
package host

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	hostinfo "github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// Info is a short description of the host machine.
type Info struct {
	// MachineID comes from /etc/machine-id on Linux and the registry on Windows
	MachineID string

	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	KernelArch      string

	// CPUModel is the model name of the first CPU, empty when unknown
	CPUModel   string
	CPUThreads int
}

// Describer gathers host information.
type Describer struct {
	hostInfo func(ctx context.Context) (*hostinfo.InfoStat, error)
	cpuInfo  func(ctx context.Context) ([]cpu.InfoStat, error)
}

// NewDescriber creates a gopsutil-backed describer.
func NewDescriber() *Describer {
	return &Describer{
		hostInfo: hostinfo.InfoWithContext,
		cpuInfo:  cpu.InfoWithContext,
	}
}

// Describe collects the host summary. Only the host query is required; a
// failing CPU query leaves the CPU fields at their fallbacks.
func (d *Describer) Describe(ctx context.Context) (*Info, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("host description cancelled: %w", ctx.Err())
	default:
	}

	stat, err := d.hostInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get host info: %w", err)
	}

	info := &Info{
		MachineID:       stat.HostID,
		Hostname:        stat.Hostname,
		OS:              runtime.GOOS,
		Platform:        stat.Platform,
		PlatformVersion: stat.PlatformVersion,
		KernelVersion:   stat.KernelVersion,
		KernelArch:      stat.KernelArch,
		CPUThreads:      runtime.NumCPU(),
	}

	if cpus, err := d.cpuInfo(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}

	return info, nil
}

// Fields returns the summary as log fields.
func (i *Info) Fields() []zap.Field {
	return []zap.Field{
		zap.String("hostname", i.Hostname),
		zap.String("os", i.OS),
		zap.String("platform", i.Platform),
		zap.String("platform_version", i.PlatformVersion),
		zap.String("kernel", i.KernelVersion),
		zap.String("arch", i.KernelArch),
		zap.String("cpu", i.CPUModel),
		zap.Int("cpu_threads", i.CPUThreads),
		zap.String("machine_id", i.MachineID),
	}
}
