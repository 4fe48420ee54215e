// Package main is the entry point for the LibreHardwareMonitor Tester.
// It finds the first GPU of the machine and keeps printing its load and
// temperature until a read can no longer be recovered.

// go run ./cmd/lhmtester --backends=drm --no-wait
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lab02-research/lhmtester/internal/config"
	"github.com/lab02-research/lhmtester/internal/hardware"
	"github.com/lab02-research/lhmtester/internal/hardware/gpu"
	"github.com/lab02-research/lhmtester/internal/hardware/host"
	"github.com/lab02-research/lhmtester/internal/telemetry"
	"github.com/lab02-research/lhmtester/pkg/logger"
)

// exitDelay gives the console a moment to settle before the exit prompt.
const exitDelay = 250 * time.Millisecond

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		// Can't use logger yet, so use fmt
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	printBanner(os.Stdout, cfg.Version)

	log, cleanup, err := logger.New(logger.Options{
		DevMode: cfg.DevMode,
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug("Configuration loaded", zap.Stringer("config", cfg))

	// Cancelled on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	describeHost(ctx, log)

	backends, err := gpu.NewBackends(cfg.Backends, log)
	if err != nil {
		report(log, err)
	} else {
		factory := hardware.Factory(log, backends...)
		report(log, monitor(ctx, factory, cfg.GPUTimeout, log, os.Stdout))
	}
	stop()

	if err := cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}

	time.Sleep(exitDelay)

	fmt.Println("")
	fmt.Println("Application completed, press any key to exit ..")
	if !cfg.NoWait {
		waitForKey(os.Stdin)
	}
}

func printBanner(w io.Writer, version string) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "LibreHardwareMonitor Tester [%s]\n", version)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "This application is provided as-is for testing purposes by LAB02 Research")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "This application will continuously fetch GPU load and -temperature sensors")
	fmt.Fprintln(w, "")
}

func describeHost(ctx context.Context, log *zap.Logger) {
	info, err := host.NewDescriber().Describe(ctx)
	if err != nil {
		log.Warn("Host description failed", zap.Error(err))
		return
	}
	log.Info("Running on host", info.Fields()...)
}

// monitor runs the poll loop until it stops. A panic escaping the loop is
// returned as a *telemetry.Fault.
func monitor(ctx context.Context, factory hardware.ProviderFactory, timeout time.Duration, log *zap.Logger, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &telemetry.Fault{Value: r}
		}
	}()

	poller := telemetry.NewPoller(telemetry.NewHandleManager(factory, timeout, log), out, log)
	defer func() {
		if err := poller.Close(); err != nil {
			log.Warn("Failed to release GPU card", zap.Error(err))
		}
	}()

	return poller.Run(ctx)
}

// report logs why monitoring ended.
func report(log *zap.Logger, err error) {
	var fault *telemetry.Fault
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Info("Sensor querying interrupted")
	case errors.Is(err, telemetry.ErrUnrecoverable):
		// the failing read or acquisition has already been logged
		log.Debug("Sensor querying stopped", zap.Error(err))
	case errors.As(err, &fault) && fault.AccessViolation():
		log.Info("")
		logger.Fault(log, "Access violation occurred", zap.Error(err))
		log.Info("")
	default:
		log.Info("")
		logger.Fault(log, "Exception occurred", zap.Error(err))
		log.Info("")
	}
}

// waitForKey blocks until a single key is pressed. Without a terminal it
// reads one byte, returning at end of input.
func waitForKey(in io.Reader) {
	if f, ok := in.(*os.File); ok {
		fd := int(f.Fd())
		if term.IsTerminal(fd) {
			if state, err := term.MakeRaw(fd); err == nil {
				defer term.Restore(fd, state)
			}
		}
	}

	var b [1]byte
	_, _ = in.Read(b[:])
}
