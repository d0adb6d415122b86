package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/senselog/internal/protocol"
	"github.com/srg/senselog/internal/session"
)

// State is the controller's position in the connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateFound
	StateConnecting
	StateConfiguring
	StateSubscribed
	StateStreaming
	StateDisconnecting
	StateClosed
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateFound:
		return "found"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateDisconnecting:
		return "disconnecting"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options configures the controller's timeouts and protocol parameters.
type Options struct {
	ScanTimeout    time.Duration // bounded wait for a matching advertisement
	ConnectTimeout time.Duration // bounded wait for connection establishment
	ClientRef      byte          // reference byte stamped into command frames
	SampleRate     int           // acceleration sampling rate in Hz
}

// DefaultOptions returns the controller defaults.
func DefaultOptions() Options {
	return Options{
		ScanTimeout:    30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ClientRef:      protocol.DefaultClientRef,
		SampleRate:     protocol.DefaultSampleRate,
	}
}

// Controller owns the peripheral connection lifecycle and feeds decoded
// notifications into the session buffer. One controller drives exactly
// one session.
type Controller struct {
	transport Transport
	matcher   Matcher
	opts      Options
	logger    *logrus.Logger
	decoder   *protocol.Decoder

	state atomic.Int32

	mu       sync.Mutex
	link     Link
	stopOnce sync.Once

	onReading func(protocol.Reading)
}

// NewController creates a controller over the given transport. Zero
// option fields fall back to DefaultOptions values.
func NewController(transport Transport, matcher Matcher, opts Options, logger *logrus.Logger) *Controller {
	def := DefaultOptions()
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = def.ScanTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.ClientRef == 0 {
		opts.ClientRef = def.ClientRef
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		transport: transport,
		matcher:   matcher,
		opts:      opts,
		logger:    logger,
		decoder:   protocol.NewDecoder(opts.ClientRef),
	}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.WithFields(logrus.Fields{
			"from": old.String(),
			"to":   s.String(),
		}).Debug("Link state transition")
	}
}

// OnReading registers a hook invoked for every reading appended to the
// session, e.g. a live publisher. Must be set before Stream.
func (c *Controller) OnReading(fn func(protocol.Reading)) {
	c.onReading = fn
}

// Discover scans until the first advertisement whose name contains the
// matcher fragment, bounded by the scan timeout. Ties between multiple
// matching peripherals resolve by scan order: first seen wins.
func (c *Controller) Discover(ctx context.Context) (Advertisement, error) {
	c.setState(StateScanning)
	c.logger.WithFields(logrus.Fields{
		"fragment": c.matcher.Fragment,
		"timeout":  c.opts.ScanTimeout,
	}).Info("Scanning for sensor...")

	scanCtx, cancel := context.WithTimeout(ctx, c.opts.ScanTimeout)
	defer cancel()

	seen := hashmap.New[string, Advertisement]()
	found := make(chan Advertisement, 1)

	err := c.transport.Scan(scanCtx, func(adv Advertisement) {
		if _, dup := seen.Get(adv.Address); !dup {
			seen.Insert(adv.Address, adv)
			c.logger.WithFields(logrus.Fields{
				"name":    adv.Name,
				"address": adv.Address,
				"rssi":    adv.RSSI,
			}).Debug("Discovered device")
		}
		if c.matcher.Match(adv.Name) {
			select {
			case found <- adv:
				cancel()
			default:
				// A match already won; later matches lose by scan order.
			}
		}
	})

	select {
	case adv := <-found:
		c.setState(StateFound)
		c.logger.WithFields(logrus.Fields{
			"name":    adv.Name,
			"address": adv.Address,
		}).Info("Sensor found")
		return adv, nil
	default:
	}

	c.setState(StateError)
	if ctx.Err() != nil {
		// Operator interrupt during scan, not a discovery failure.
		return Advertisement{}, ctx.Err()
	}
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return Advertisement{}, fmt.Errorf("scan failed: %w", err)
	}
	return Advertisement{}, fmt.Errorf("%w: %q within %s", ErrDiscoveryTimeout, c.matcher.Fragment, c.opts.ScanTimeout)
}

// Connect establishes the link to the discovered peripheral, bounded by
// the connect timeout.
func (c *Controller) Connect(ctx context.Context, adv Advertisement) error {
	c.setState(StateConnecting)
	c.logger.WithField("address", adv.Address).Info("Connecting to sensor...")

	connCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	l, err := c.transport.Connect(connCtx, adv.Address)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("connect to %q: %w", adv.Address, err)
	}

	c.mu.Lock()
	c.link = l
	c.mu.Unlock()
	return nil
}

// Stream arms the sensor, subscribes to data notifications and blocks
// until the operator cancels ctx or the link is lost. Decode failures
// are counted on the session and never terminate the stream. A lost
// link returns ErrLinkLost; buffered readings stay intact either way.
func (c *Controller) Stream(ctx context.Context, sess *session.Session) error {
	c.mu.Lock()
	l := c.link
	c.mu.Unlock()
	if l == nil {
		return fmt.Errorf("not connected")
	}

	c.setState(StateConfiguring)
	cmd := protocol.SubscribeCommand(c.opts.ClientRef, c.opts.SampleRate)
	if err := l.WriteCharacteristic(protocol.ServiceUUID, protocol.CommandCharUUID, cmd, true); err != nil {
		// A mis-configured sensor would stream garbage; stop here.
		c.setState(StateError)
		return fmt.Errorf("arm sensor: %w", err)
	}

	c.setState(StateSubscribed)
	err := l.Subscribe(protocol.ServiceUUID, protocol.DataCharUUID, func(data []byte) {
		c.handleNotification(sess, data)
	})
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("subscribe to data stream: %w", err)
	}

	c.setState(StateStreaming)
	c.logger.WithField("rate_hz", c.opts.SampleRate).Info("Streaming sensor data")

	select {
	case <-ctx.Done():
		return nil
	case <-l.Disconnected():
		c.logger.Warn("Link lost mid-stream")
		return ErrLinkLost
	}
}

// handleNotification decodes one inbound notification and appends it to
// the session. One bad packet never ends the session.
func (c *Controller) handleNotification(sess *session.Session, data []byte) {
	r, err := c.decoder.Decode(data, time.Now())
	if err != nil {
		sess.RecordDecodeFailure()
		c.logger.WithError(err).WithField("len", len(data)).Warn("Dropped undecodable notification")
		return
	}

	if err := sess.Append(r); err != nil {
		// Session already closed by the finalizer; the reading is
		// excluded cleanly.
		c.logger.WithField("ts", r.SensorMillis).Debug("Reading arrived after session close")
		return
	}

	c.logger.WithFields(logrus.Fields{
		"ts": r.SensorMillis,
		"ax": r.Ax,
		"ay": r.Ay,
		"az": r.Az,
	}).Debug("Reading")

	if c.onReading != nil {
		c.onReading(r)
	}
}

// Stop tears the link down gracefully: disarm the stream, unsubscribe,
// disconnect. Idempotent, and every step is best-effort; buffered data
// must never be lost because teardown was imperfect.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		l := c.link
		c.mu.Unlock()

		if l != nil {
			c.setState(StateDisconnecting)

			disconnected := false
			select {
			case <-l.Disconnected():
				disconnected = true
			default:
			}

			if !disconnected {
				cmd := protocol.UnsubscribeCommand(c.opts.ClientRef)
				if err := l.WriteCharacteristic(protocol.ServiceUUID, protocol.CommandCharUUID, cmd, true); err != nil {
					c.logger.WithError(err).Warn("Failed to disarm sensor")
				}
				if err := l.Unsubscribe(protocol.ServiceUUID, protocol.DataCharUUID); err != nil {
					c.logger.WithError(err).Warn("Failed to unsubscribe")
				}
			}
			if err := l.Close(); err != nil {
				c.logger.WithError(err).Warn("Failed to disconnect")
			}
		}

		c.setState(StateClosed)
	})
}
