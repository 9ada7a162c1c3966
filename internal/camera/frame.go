package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"
)

// Facing selects which physical camera to open.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
)

// Frame is one captured video frame. Data holds the JPEG bytes as produced by
// the device; the decoded image is built lazily on first use.
type Frame struct {
	Seq        int64
	CapturedAt time.Time
	Data       []byte

	once sync.Once
	img  image.Image
	err  error
}

// NewImageFrame wraps an already decoded image, e.g. from a still or a test.
func NewImageFrame(seq int64, img image.Image) *Frame {
	f := &Frame{Seq: seq, CapturedAt: time.Now(), img: img}
	f.once.Do(func() {})
	return f
}

// Image returns the decoded frame.
func (f *Frame) Image() (image.Image, error) {
	f.once.Do(func() {
		f.img, f.err = jpeg.Decode(bytes.NewReader(f.Data))
		if f.err != nil {
			f.err = fmt.Errorf("decode frame %d: %w", f.Seq, f.err)
		}
	})
	return f.img, f.err
}

// Stream is a live, exclusively owned camera stream.
// Frames is closed when the stream ends, either by Release or because the
// device stopped producing. Release is safe to call more than once.
type Stream interface {
	Frames() <-chan *Frame
	Release() error
}

// Source opens camera streams.
type Source interface {
	Acquire(ctx context.Context, facing Facing) (Stream, error)
}
