package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/your-org/dermascan/internal/barcode"
	"github.com/your-org/dermascan/internal/camera"
)

// Status is the lifecycle state of a capture session.
type Status int

const (
	Idle Status = iota
	Initializing
	Streaming
	Decoded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Streaming:
		return "streaming"
	case Decoded:
		return "decoded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Active reports whether a session in this state still owns or is acquiring
// the camera.
func (s Status) Active() bool {
	return s == Initializing || s == Streaming
}

// CameraInitMessage is shown to the user when the camera cannot be opened.
const CameraInitMessage = "Failed to initialize camera. Please grant camera permissions and try again."

// CameraInitError means the device could not be acquired. It ends the session.
type CameraInitError struct {
	Err error
}

func (e *CameraInitError) Error() string { return CameraInitMessage }

func (e *CameraInitError) Unwrap() error { return e.Err }

// ErrStreamEnded is reported when the device stops producing frames before a
// barcode was found.
var ErrStreamEnded = errors.New("camera stream ended unexpectedly")

// Outcome is the single terminal result of a session that did not end by Stop.
// Err is set for failures; otherwise Symbol holds the decoded value and Frame
// the image it was read from.
type Outcome struct {
	SessionID string
	Symbol    barcode.Symbol
	Frame     *camera.Frame
	Err       error
}

// Session is one camera acquisition. It is created by Controller.Start and
// ends on decode, failure, Stop or cancellation of its context.
type Session struct {
	ID        string
	StartedAt time.Time

	mu     sync.Mutex
	status Status
	value  *barcode.Symbol
	err    error

	outcome chan Outcome
	cancel  context.CancelFunc
	exited  chan struct{}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Value returns the decoded symbol once the session reached Decoded.
func (s *Session) Value() (barcode.Symbol, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.value == nil {
		return barcode.Symbol{}, false
	}
	return *s.value, true
}

// Err returns the failure that ended the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Outcome delivers at most one value and is then closed. A close without a
// value means the session was stopped.
func (s *Session) Outcome() <-chan Outcome {
	return s.outcome
}

// Done is closed once the capture goroutine has exited and the stream, if
// one was acquired, has been released.
func (s *Session) Done() <-chan struct{} {
	return s.exited
}

// finish performs the single terminal transition. It returns false when the
// session had already ended, in which case nothing is emitted.
func (s *Session) finish(status Status, out Outcome, emit bool) bool {
	s.mu.Lock()
	if !s.status.Active() {
		s.mu.Unlock()
		return false
	}
	s.status = status
	s.err = out.Err
	if status == Decoded {
		sym := out.Symbol
		s.value = &sym
	}
	if emit {
		out.SessionID = s.ID
		s.outcome <- out
	}
	close(s.outcome)
	s.mu.Unlock()

	s.cancel()
	return true
}

// streaming moves Initializing to Streaming. It fails if the session was
// stopped while the camera was being acquired.
func (s *Session) streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != Initializing {
		return false
	}
	s.status = Streaming
	return true
}
