package capture

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/dermascan/internal/barcode"
	"github.com/your-org/dermascan/internal/camera"
	"github.com/your-org/dermascan/internal/observability"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("capture controller is closed")

// Decoder reads a barcode from a single image. It returns barcode.ErrNoSymbol
// when the image holds none.
type Decoder interface {
	Decode(img image.Image) (barcode.Symbol, error)
}

// Controller owns the camera for one user and runs at most one capture
// session at a time.
type Controller struct {
	source  camera.Source
	decoder Decoder
	facing  camera.Facing

	mu      sync.Mutex
	current *Session
	closed  bool
}

func NewController(source camera.Source, decoder Decoder, facing camera.Facing) *Controller {
	if facing == "" {
		facing = camera.FacingEnvironment
	}
	return &Controller{
		source:  source,
		decoder: decoder,
		facing:  facing,
	}
}

// Start begins a capture session. While a session is initializing or
// streaming it is returned as is and the camera is not acquired again.
// The session runs until it decodes, fails, is stopped, or ctx is done.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if c.current != nil && c.current.Status().Active() {
		return c.current, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		status:    Initializing,
		outcome:   make(chan Outcome, 1),
		cancel:    cancel,
		exited:    make(chan struct{}),
	}
	prev := c.current
	c.current = s

	go c.run(ctx, s, prev)

	slog.Info("capture session started", "session_id", s.ID, "facing", c.facing)
	return s, nil
}

// Current returns the most recent session, or nil if none was started.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop ends the active session, if any. It returns without waiting for the
// device to be released; use Session.Done for that.
func (c *Controller) Stop() {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s != nil && c.end(s, Idle, Outcome{}, false) {
		slog.Info("capture session stopped", "session_id", s.ID)
	}
}

// Close stops the active session, waits for the camera to be released and
// rejects further starts.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	s := c.current
	c.mu.Unlock()

	c.Stop()
	if s != nil {
		<-s.exited
	}
}

func (c *Controller) run(ctx context.Context, s *Session, prev *Session) {
	defer close(s.exited)

	// The device changes hands only after a full release.
	if prev != nil {
		<-prev.exited
	}

	stream, err := c.source.Acquire(ctx, c.facing)
	if err != nil {
		if ctx.Err() != nil {
			c.end(s, Idle, Outcome{}, false)
			return
		}
		slog.Error("camera init failed", "session_id", s.ID, "error", err)
		c.end(s, Failed, Outcome{Err: &CameraInitError{Err: err}}, true)
		return
	}
	defer func() {
		if err := stream.Release(); err != nil {
			slog.Warn("release camera", "session_id", s.ID, "error", err)
		}
	}()

	if !s.streaming() {
		return
	}

	frames := stream.Frames()
	for {
		select {
		case <-ctx.Done():
			c.end(s, Idle, Outcome{}, false)
			return
		case f, ok := <-frames:
			if !ok {
				slog.Warn("camera stream ended", "session_id", s.ID)
				c.end(s, Failed, Outcome{Err: ErrStreamEnded}, true)
				return
			}
			if s.Status() != Streaming {
				return
			}

			sym, ok := c.decode(s, f)
			if !ok {
				continue
			}
			if c.end(s, Decoded, Outcome{Symbol: sym, Frame: f}, true) {
				slog.Info("barcode decoded", "session_id", s.ID, "format", sym.Format, "frame", f.Seq)
			}
			return
		}
	}
}

func (c *Controller) end(s *Session, status Status, out Outcome, emit bool) bool {
	if !s.finish(status, out, emit) {
		return false
	}
	label := status.String()
	if status == Idle {
		label = "stopped"
	}
	observability.ScanSessions.WithLabelValues(label).Inc()
	return true
}

func (c *Controller) decode(s *Session, f *camera.Frame) (barcode.Symbol, bool) {
	observability.FramesProcessed.Inc()

	img, err := f.Image()
	if err != nil {
		slog.Debug("skip undecodable frame", "session_id", s.ID, "frame", f.Seq, "error", err)
		return barcode.Symbol{}, false
	}

	start := time.Now()
	sym, err := c.decoder.Decode(img)
	switch {
	case err == nil:
		observability.DecodeDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return sym, true
	case errors.Is(err, barcode.ErrNoSymbol):
		observability.DecodeDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds())
	default:
		observability.DecodeDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		slog.Warn("decode frame", "session_id", s.ID, "frame", f.Seq, "error", err)
	}
	return barcode.Symbol{}, false
}
