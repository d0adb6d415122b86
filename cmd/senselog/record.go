package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/senselog/internal/link"
	"github.com/srg/senselog/internal/link/goble"
	"github.com/srg/senselog/internal/protocol"
	"github.com/srg/senselog/internal/publish"
	"github.com/srg/senselog/internal/session"
	"github.com/srg/senselog/pkg/config"
)

var (
	recordSensor          string
	recordConfigFile      string
	recordScanTimeout     time.Duration
	recordConnectTimeout  time.Duration
	recordCaseInsensitive bool
	recordRate            int
	recordOutput          string
	recordFormat          string
	recordPublish         string
)

// newTransport creates the BLE transport (overridden in tests)
var newTransport = func(logger *logrus.Logger) (link.Transport, error) {
	return goble.NewTransport(logger), nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(recordConfigFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	// Setup context cancelled by operator interrupt. Repeated signals
	// hit the same cancel, so shutdown runs exactly once.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, finalizing session...")
		cancel()
	}()

	transport, err := newTransport(logger)
	if err != nil {
		return err
	}

	return runSession(ctx, cfg, transport, logger, os.Stderr)
}

// runSession drives one full recording session over the given
// transport: discover, connect, stream until ctx is cancelled or the
// link drops, then finalize. Split from runRecord so tests can drive
// it with a fake transport and their own cancellation.
func runSession(ctx context.Context, cfg *config.Config, transport link.Transport, logger *logrus.Logger, out io.Writer) error {
	ctrl := link.NewController(
		transport,
		link.Matcher{Fragment: cfg.Sensor, CaseFold: cfg.CaseInsensitive},
		link.Options{
			ScanTimeout:    cfg.ScanTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
			SampleRate:     cfg.SampleRate,
		},
		logger,
	)

	// Discovery and connection failures abort before any data exists,
	// so no output file is written for them.
	adv, err := ctrl.Discover(ctx)
	if err != nil {
		return err
	}
	if err := ctrl.Connect(ctx, adv); err != nil {
		return err
	}

	sess := session.New(cfg.Sensor, adv.Name, adv.Address)

	if cfg.PublishBroker != "" {
		pub, err := publish.NewPublisher(cfg.PublishBroker, adv.Address, logger)
		if err != nil {
			// Live forwarding is best-effort; recording proceeds.
			logger.WithError(err).Warn("Live publishing disabled")
		} else {
			defer pub.Close()
			ctrl.OnReading(func(r protocol.Reading) {
				if err := pub.Publish(r); err != nil {
					logger.WithError(err).Debug("Failed to publish reading")
				}
			})
		}
	}

	sink, path := sinkFor(cfg, sess)
	fin := &finalizer{ctrl: ctrl, sess: sess, sink: sink, path: path, out: out}

	streamErr := ctrl.Stream(ctx, sess)
	if streamErr != nil && !errors.Is(streamErr, link.ErrLinkLost) {
		// Configure/subscribe failure: no readings were ever collected,
		// so there is nothing to persist.
		ctrl.Stop()
		return streamErr
	}

	if err := fin.Finalize(); err != nil {
		return err
	}
	// Link loss surfaces after best-effort persistence.
	return streamErr
}

// applyFlagOverrides lays explicitly set flags over the file/default
// configuration.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("sensor") {
		cfg.Sensor = recordSensor
	}
	if cmd.Flags().Changed("scan-timeout") {
		cfg.ScanTimeout = recordScanTimeout
	}
	if cmd.Flags().Changed("connect-timeout") {
		cfg.ConnectTimeout = recordConnectTimeout
	}
	if cmd.Flags().Changed("case-insensitive") {
		cfg.CaseInsensitive = recordCaseInsensitive
	}
	if cmd.Flags().Changed("rate") {
		cfg.SampleRate = recordRate
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = recordOutput
	}
	if cmd.Flags().Changed("format") {
		cfg.Format = recordFormat
	}
	if cmd.Flags().Changed("publish") {
		cfg.PublishBroker = recordPublish
	}
}

// sinkFor picks the session sink and output path for the configured
// format. An empty output path derives the documented per-session name.
func sinkFor(cfg *config.Config, sess *session.Session) (session.Sink, string) {
	path := cfg.Output
	if path == "" {
		path = sess.DefaultFileName(cfg.OutputExt())
	}
	if cfg.Format == config.FormatSQLite {
		return &session.SQLiteSink{Path: path}, path
	}
	return &session.CSVSink{Path: path}, path
}

// finalizer closes the session exactly once: stop the link, snapshot,
// persist, report counts to the operator. Safe against being invoked
// from racing shutdown paths.
type finalizer struct {
	once sync.Once
	ctrl *link.Controller
	sess *session.Session
	sink session.Sink
	path string
	out  io.Writer
	err  error
}

// Finalize runs the shutdown sequence. Repeated calls return the first
// outcome without writing the file again.
func (f *finalizer) Finalize() error {
	f.once.Do(func() {
		f.ctrl.Stop()
		f.sess.Close()

		readings := f.sess.Len()
		failures := f.sess.DecodeFailures()

		if err := f.sink.Write(f.sess); err != nil {
			// The snapshot existed; say so even though persisting failed.
			f.err = fmt.Errorf("write session output: %w (%d readings and %d decode failures were buffered)",
				err, readings, failures)
			return
		}

		green := color.New(color.FgGreen)
		_, _ = green.Fprintf(f.out, "Saved %d readings to %s (%d decode failures)\n", readings, f.path, failures)
	})
	return f.err
}
