package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/observability"
)

var (
	ErrNoDevice   = errors.New("no camera device configured")
	ErrDeviceBusy = errors.New("camera device is already in use")
)

// maxFrameSize caps a single JPEG from the pipe.
var maxFrameSize = 10 * 1024 * 1024

// FFmpegCamera captures MJPEG frames from a local or network camera through an
// ffmpeg subprocess.
type FFmpegCamera struct {
	cfg    config.CameraConfig
	binary string
	goos   string

	mu     sync.Mutex
	active map[string]bool
}

func NewFFmpegCamera(cfg config.CameraConfig) *FFmpegCamera {
	return &FFmpegCamera{
		cfg:    cfg,
		binary: "ffmpeg",
		goos:   runtime.GOOS,
		active: make(map[string]bool),
	}
}

// Device returns the device that Acquire would open for the facing mode.
func (c *FFmpegCamera) Device(facing Facing) (string, error) {
	if dev := c.cfg.Devices[string(facing)]; dev != "" {
		return dev, nil
	}
	if c.cfg.Device != "" {
		return c.cfg.Device, nil
	}
	return "", ErrNoDevice
}

// Acquire starts ffmpeg on the device for facing and blocks until the first
// frame arrives, ctx is done, or the startup timeout elapses. A device can be
// held by one stream at a time.
func (c *FFmpegCamera) Acquire(ctx context.Context, facing Facing) (Stream, error) {
	device, err := c.Device(facing)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.active[device] {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, device)
	}
	c.active[device] = true
	c.mu.Unlock()

	s, err := c.start(device)
	if err != nil {
		c.free(device)
		return nil, err
	}

	timeout := c.cfg.StartupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.ready:
		s.mu.Lock()
		s.live = true
		s.mu.Unlock()
		observability.CameraActive.Inc()
		slog.Info("camera acquired", "device", device, "facing", facing)
		return s, nil
	case <-s.done:
		_ = s.Release()
		return nil, fmt.Errorf("camera %s produced no frames: %w", device, s.exitErr())
	case <-ctx.Done():
		_ = s.Release()
		return nil, ctx.Err()
	case <-timer.C:
		_ = s.Release()
		return nil, fmt.Errorf("camera %s: no frame within %s", device, timeout)
	}
}

func (c *FFmpegCamera) free(device string) {
	c.mu.Lock()
	delete(c.active, device)
	c.mu.Unlock()
}

func (c *FFmpegCamera) start(device string) (*ffmpegStream, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, c.binary, c.args(device)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	s := &ffmpegStream{
		device: device,
		cancel: cancel,
		cmd:    cmd,
		frames: make(chan *Frame, 2),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		onFree: func() { c.free(device) },
	}

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			s.setLastLine(line)
			slog.Warn("ffmpeg stderr", "device", device, "output", line)
		}
	}()

	go s.run(ctx, stdout, stderrDone)
	return s, nil
}

// args builds the ffmpeg command line. Local devices use the platform capture
// demuxer unless input_format overrides it; URLs get the network options.
func (c *FFmpegCamera) args(device string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	fps := strconv.Itoa(c.cfg.FPS)
	size := fmt.Sprintf("%dx%d", c.cfg.Width, c.cfg.Height)
	input := device

	switch {
	case strings.HasPrefix(device, "rtsp://") || strings.HasPrefix(device, "rtsps://"):
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000",
		)
	case strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://"):
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000",
		)
	default:
		format := c.cfg.InputFormat
		if format == "" {
			switch c.goos {
			case "darwin":
				format = "avfoundation"
			case "windows":
				format = "dshow"
			default:
				format = "v4l2"
			}
		}
		if format == "dshow" && !strings.HasPrefix(device, "video=") {
			input = "video=" + device
		}
		args = append(args, "-f", format, "-framerate", fps, "-video_size", size)
	}

	return append(args,
		"-i", input,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", c.cfg.FPS, c.cfg.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
}

type ffmpegStream struct {
	device string
	cancel context.CancelFunc
	cmd    *exec.Cmd
	onFree func()

	frames chan *Frame
	ready  chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	lastLine string
	waitErr  error

	releaseOnce sync.Once
	released    bool
	live        bool
}

func (s *ffmpegStream) Frames() <-chan *Frame {
	return s.frames
}

// Release stops ffmpeg and waits for the reader to drain.
func (s *ffmpegStream) Release() error {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		s.released = true
		live := s.live
		s.mu.Unlock()

		s.cancel()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.done
		s.onFree()
		if live {
			observability.CameraActive.Dec()
		}
		slog.Debug("camera released", "device", s.device)
	})
	return nil
}

func (s *ffmpegStream) run(ctx context.Context, stdout io.Reader, stderrDone <-chan struct{}) {
	defer close(s.done)
	defer close(s.frames)

	var seq int64
	readErr := readJPEGFrames(ctx, stdout, func(data []byte) error {
		seq++
		f := &Frame{Seq: seq, CapturedAt: time.Now(), Data: data}
		if seq == 1 {
			close(s.ready)
		}
		select {
		case s.frames <- f:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if readErr != nil {
		// Nobody reads stdout any more; stop ffmpeg before it blocks on the pipe.
		s.cancel()
	}

	<-stderrDone
	waitErr := s.cmd.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	if readErr != nil {
		s.waitErr = readErr
	} else {
		s.waitErr = waitErr
	}
	slog.Warn("camera stream ended", "device", s.device, "frames", seq, "error", s.waitErr)
}

// exitErr describes why ffmpeg ended, preferring its last stderr line since
// that is where device and permission errors show up.
func (s *ffmpegStream) exitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastLine != "" {
		return errors.New(s.lastLine)
	}
	if s.waitErr != nil {
		return s.waitErr
	}
	return io.EOF
}

func (s *ffmpegStream) setLastLine(line string) {
	s.mu.Lock()
	s.lastLine = line
	s.mu.Unlock()
}

// readJPEGFrames splits a stream of concatenated JPEG images and hands each to
// fn. It returns nil when the stream ends cleanly; an error from fn stops it.
func readJPEGFrames(ctx context.Context, r io.Reader, fn func([]byte) error) error {
	reader := bufio.NewReaderSize(r, 512*1024)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := findJPEGStart(reader); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		data, err := readUntilJPEGEnd(reader)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		if err := fn(data); err != nil {
			return err
		}
	}
}

func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
	}
}

func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %d bytes", len(data))
		}
	}
}
