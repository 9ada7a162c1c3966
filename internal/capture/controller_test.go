package capture

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/dermascan/internal/barcode"
	"github.com/your-org/dermascan/internal/camera"
)

type fakeStream struct {
	frames   chan *camera.Frame
	source   *fakeSource
	released atomic.Int32
}

func (s *fakeStream) Frames() <-chan *camera.Frame { return s.frames }

func (s *fakeStream) Release() error {
	if s.released.Add(1) == 1 {
		s.source.mu.Lock()
		s.source.held = false
		s.source.mu.Unlock()
	}
	s.source.releases.Add(1)
	return nil
}

// fakeSource hands out fakeStreams and fails if the device is acquired while
// still held.
type fakeSource struct {
	err  error
	gate chan struct{} // when set, Acquire waits on it

	acquires atomic.Int32
	releases atomic.Int32

	mu       sync.Mutex
	held     bool
	overlaps int
	streams  []*fakeStream
}

func (f *fakeSource) Acquire(ctx context.Context, _ camera.Facing) (camera.Stream, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.acquires.Add(1)
	if f.err != nil {
		return nil, f.err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held {
		f.overlaps++
	}
	f.held = true
	s := &fakeStream{frames: make(chan *camera.Frame, 8), source: f}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeSource) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		if len(f.streams) > i {
			s := f.streams[i]
			f.mu.Unlock()
			return s
		}
		f.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stream %d was never acquired", i)
	return nil
}

// fakeDecoder reports a hit for 2px wide images and a miss otherwise.
type fakeDecoder struct {
	calls atomic.Int32
	block chan struct{} // when set, hits wait on it
}

func (d *fakeDecoder) Decode(img image.Image) (barcode.Symbol, error) {
	d.calls.Add(1)
	if img.Bounds().Dx() != 2 {
		return barcode.Symbol{}, barcode.ErrNoSymbol
	}
	if d.block != nil {
		<-d.block
	}
	return barcode.Symbol{Text: "0123456789012", Format: "ean_13"}, nil
}

func hit(seq int64) *camera.Frame {
	return camera.NewImageFrame(seq, image.NewGray(image.Rect(0, 0, 2, 1)))
}

func miss(seq int64) *camera.Frame {
	return camera.NewImageFrame(seq, image.NewGray(image.Rect(0, 0, 1, 1)))
}

func waitStatus(t *testing.T, s *Session, want Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected status %s, got %s", want, s.Status())
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session goroutine did not exit")
	}
}

func TestDecodeEmitsOnce(t *testing.T) {
	src := &fakeSource{}
	dec := &fakeDecoder{}
	c := NewController(src, dec, camera.FacingEnvironment)

	s, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	st := src.stream(t, 0)
	st.frames <- miss(1)
	st.frames <- hit(2)
	st.frames <- hit(3)

	out, ok := <-s.Outcome()
	if !ok {
		t.Fatal("Expected an outcome, channel closed")
	}
	if out.Symbol.Text != "0123456789012" {
		t.Errorf("Expected '0123456789012', got '%s'", out.Symbol.Text)
	}
	if out.Frame == nil || out.Frame.Seq != 2 {
		t.Errorf("Expected frame 2 to carry the decode, got %+v", out.Frame)
	}
	if out.SessionID != s.ID {
		t.Errorf("Expected session id '%s', got '%s'", s.ID, out.SessionID)
	}
	if _, more := <-s.Outcome(); more {
		t.Error("Expected outcome channel to be closed after one value")
	}

	waitDone(t, s)
	if s.Status() != Decoded {
		t.Errorf("Expected Decoded, got %s", s.Status())
	}
	if v, ok := s.Value(); !ok || v.Text != "0123456789012" {
		t.Errorf("Expected stored value, got %v %v", v, ok)
	}
	if n := dec.calls.Load(); n != 2 {
		t.Errorf("Expected decoding to stop after the first hit (2 calls), got %d", n)
	}
	if n := src.releases.Load(); n != 1 {
		t.Errorf("Expected 1 release, got %d", n)
	}
}

func TestStartWhileActiveIsNoop(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	first, _ := c.Start(context.Background())
	waitStatus(t, first, Streaming)

	second, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if second != first {
		t.Error("Expected Start to return the running session")
	}
	if n := src.acquires.Load(); n != 1 {
		t.Errorf("Expected 1 acquire, got %d", n)
	}

	c.Close()
}

func TestStopIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	// Nothing to stop yet.
	c.Stop()

	s, _ := c.Start(context.Background())
	waitStatus(t, s, Streaming)

	c.Stop()
	c.Stop()
	waitDone(t, s)

	if _, ok := <-s.Outcome(); ok {
		t.Error("Expected outcome channel closed without a value")
	}
	if s.Status() != Idle {
		t.Errorf("Expected Idle, got %s", s.Status())
	}
	if n := src.releases.Load(); n != 1 {
		t.Errorf("Expected exactly 1 release, got %d", n)
	}
}

func TestCameraInitFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("permission denied")}
	c := NewController(src, &fakeDecoder{}, camera.FacingUser)

	s, _ := c.Start(context.Background())
	out, ok := <-s.Outcome()
	if !ok {
		t.Fatal("Expected a failure outcome")
	}

	var initErr *CameraInitError
	if !errors.As(out.Err, &initErr) {
		t.Fatalf("Expected CameraInitError, got %v", out.Err)
	}
	if initErr.Error() != CameraInitMessage {
		t.Errorf("Expected user-facing message, got '%s'", initErr.Error())
	}
	if initErr.Unwrap().Error() != "permission denied" {
		t.Errorf("Expected cause to be kept, got %v", initErr.Unwrap())
	}

	waitDone(t, s)
	if s.Status() != Failed {
		t.Errorf("Expected Failed, got %s", s.Status())
	}
	if n := src.releases.Load(); n != 0 {
		t.Errorf("Expected no release without a stream, got %d", n)
	}
}

func TestStopDuringInit(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{})}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	s, _ := c.Start(context.Background())
	if s.Status() != Initializing {
		t.Fatalf("Expected Initializing, got %s", s.Status())
	}

	c.Stop()
	close(src.gate)
	waitDone(t, s)

	if s.Status() != Idle {
		t.Errorf("Expected Idle, got %s", s.Status())
	}
	if _, ok := <-s.Outcome(); ok {
		t.Error("Expected no outcome after stop")
	}
	if a, r := src.acquires.Load(), src.releases.Load(); a != r {
		t.Errorf("Expected the late stream to be released, acquires=%d releases=%d", a, r)
	}
}

func TestDecodeAfterStopIsIgnored(t *testing.T) {
	src := &fakeSource{}
	dec := &fakeDecoder{block: make(chan struct{})}
	c := NewController(src, dec, camera.FacingEnvironment)

	s, _ := c.Start(context.Background())
	st := src.stream(t, 0)
	st.frames <- hit(1)

	for dec.calls.Load() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	close(dec.block)
	waitDone(t, s)

	if _, ok := <-s.Outcome(); ok {
		t.Error("Expected the late decode to be dropped")
	}
	if _, ok := s.Value(); ok {
		t.Error("Expected no stored value after stop")
	}
	if s.Status() != Idle {
		t.Errorf("Expected Idle, got %s", s.Status())
	}
}

func TestStreamEnded(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	s, _ := c.Start(context.Background())
	close(src.stream(t, 0).frames)

	out, ok := <-s.Outcome()
	if !ok || !errors.Is(out.Err, ErrStreamEnded) {
		t.Fatalf("Expected ErrStreamEnded, got %+v (ok=%v)", out, ok)
	}
	waitDone(t, s)
	if s.Status() != Failed {
		t.Errorf("Expected Failed, got %s", s.Status())
	}
}

func TestRestartWaitsForRelease(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	first, _ := c.Start(context.Background())
	src.stream(t, 0).frames <- hit(1)
	<-first.Outcome()

	second, err := c.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if second == first {
		t.Fatal("Expected a new session after decode")
	}
	waitStatus(t, second, Streaming)

	src.mu.Lock()
	overlaps := src.overlaps
	src.mu.Unlock()
	if overlaps != 0 {
		t.Errorf("Expected the camera to be released before reacquire, got %d overlaps", overlaps)
	}

	c.Close()
	if n := src.releases.Load(); n != 2 {
		t.Errorf("Expected 2 releases, got %d", n)
	}
}

func TestContextCancelStops(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	ctx, cancel := context.WithCancel(context.Background())
	s, _ := c.Start(ctx)
	waitStatus(t, s, Streaming)

	cancel()
	waitDone(t, s)
	if s.Status() != Idle {
		t.Errorf("Expected Idle, got %s", s.Status())
	}
	if n := src.releases.Load(); n != 1 {
		t.Errorf("Expected 1 release, got %d", n)
	}
}

func TestClose(t *testing.T) {
	src := &fakeSource{}
	c := NewController(src, &fakeDecoder{}, camera.FacingEnvironment)

	s, _ := c.Start(context.Background())
	waitStatus(t, s, Streaming)

	c.Close()
	select {
	case <-s.Done():
	default:
		t.Error("Expected Close to wait for release")
	}
	if _, err := c.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	c.Close()
}
