package hardware

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ErrNoBackend is returned when no configured backend serves the requested options.
var ErrNoBackend = errors.New("no hardware backend enabled for the requested categories")

// Backend enumerates one family of devices (NVML, nvidia-smi, DRM, ...).
type Backend interface {
	// Name identifies the backend in logs and configuration.
	Name() string

	// Supports reports whether the backend enumerates any category in opts.
	Supports(opts Options) bool

	// Open enumerates devices. A backend whose native library or tool is
	// missing returns an empty list, not an error.
	Open(ctx context.Context) ([]Hardware, error)

	// Close releases enumeration resources. Handles returned by Open stay valid.
	Close() error
}

// Computer is a Provider that aggregates the hardware of several backends.
type Computer struct {
	opts     Options
	backends []Backend
	log      *zap.Logger

	opened   []Backend
	hardware []Hardware
}

// NewComputer creates a provider over the given backends.
func NewComputer(opts Options, log *zap.Logger, backends ...Backend) *Computer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Computer{
		opts:     opts,
		backends: backends,
		log:      log,
	}
}

// Factory returns a ProviderFactory creating Computers over backends.
func Factory(log *zap.Logger, backends ...Backend) ProviderFactory {
	return func(opts Options) Provider {
		return NewComputer(opts, log, backends...)
	}
}

// Open implements Provider. It fails only when every eligible backend failed;
// partial failures are logged and the remaining hardware is kept.
func (c *Computer) Open(ctx context.Context) error {
	var errs error
	eligible := 0

	for _, b := range c.backends {
		if !b.Supports(c.opts) {
			continue
		}
		eligible++

		select {
		case <-ctx.Done():
			for _, h := range c.hardware {
				errs = multierr.Append(errs, Release(h))
			}
			c.hardware = nil
			return multierr.Combine(errs, c.Close(), fmt.Errorf("opening hardware: %w", ctx.Err()))
		default:
		}

		hw, err := b.Open(ctx)
		if err != nil {
			c.log.Warn("Hardware backend failed to open",
				zap.String("backend", b.Name()),
				zap.Error(err),
			)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		c.log.Debug("Hardware backend opened",
			zap.String("backend", b.Name()),
			zap.Int("devices", len(hw)),
		)
		c.opened = append(c.opened, b)
		c.hardware = append(c.hardware, hw...)
	}

	if eligible == 0 {
		return ErrNoBackend
	}
	if len(c.opened) == 0 && errs != nil {
		return errs
	}
	return nil
}

// Hardware implements Provider.
func (c *Computer) Hardware() []Hardware {
	out := make([]Hardware, len(c.hardware))
	copy(out, c.hardware)
	return out
}

// Close implements Provider.
func (c *Computer) Close() error {
	var errs error
	for _, b := range c.opened {
		if err := b.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("closing %s: %w", b.Name(), err))
		}
	}
	c.opened = nil
	return errs
}
