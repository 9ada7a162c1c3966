package barcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
)

// ErrNoSymbol is returned when none of the configured symbologies validates
// against a frame.
var ErrNoSymbol = errors.New("no barcode found in frame")

// Symbol is one decoded barcode. Text is exactly what the symbology yielded;
// no padding or stripping is applied.
type Symbol struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

type reader struct {
	name   string
	reader gozxing.Reader
}

// Decoder tries a fixed, ordered list of 1D symbologies against each image and
// returns the first one whose checksum validates.
type Decoder struct {
	readers []reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewDecoder builds a decoder for the given format names, in order.
// Known names: ean_13, ean_8, upc_a, upc_e, code_128, code_39.
func NewDecoder(formats []string, tryHarder bool) (*Decoder, error) {
	if len(formats) == 0 {
		return nil, errors.New("at least one barcode format is required")
	}

	d := &Decoder{hints: map[gozxing.DecodeHintType]interface{}{}}
	if tryHarder {
		d.hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	seen := make(map[string]bool, len(formats))
	for _, f := range formats {
		name := strings.ToLower(strings.TrimSpace(f))
		if seen[name] {
			continue
		}
		r, err := newReader(name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		d.readers = append(d.readers, reader{name: name, reader: r})
	}
	return d, nil
}

func newReader(name string) (gozxing.Reader, error) {
	switch name {
	case "ean_13":
		return oned.NewEAN13Reader(), nil
	case "ean_8":
		return oned.NewEAN8Reader(), nil
	case "upc_a":
		return oned.NewUPCAReader(), nil
	case "upc_e":
		return oned.NewUPCEReader(), nil
	case "code_128":
		return oned.NewCode128Reader(), nil
	case "code_39":
		// Code39's mod-43 check character is optional in the symbology,
		// so only start/stop and character validation apply.
		return oned.NewCode39Reader(), nil
	default:
		return nil, fmt.Errorf("unsupported barcode format: %s", name)
	}
}

// Formats returns the configured symbology order.
func (d *Decoder) Formats() []string {
	names := make([]string, len(d.readers))
	for i, r := range d.readers {
		names[i] = r.name
	}
	return names
}

// Decode runs every configured reader over img and returns the first match.
func (d *Decoder) Decode(img image.Image) (Symbol, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Symbol{}, fmt.Errorf("binarize frame: %w", err)
	}

	for _, r := range d.readers {
		result, err := r.reader.Decode(bmp, d.hints)
		r.reader.Reset()
		if err != nil {
			continue
		}
		return Symbol{Text: result.GetText(), Format: r.name}, nil
	}
	return Symbol{}, ErrNoSymbol
}

// DecodeJPEG decodes a JPEG frame and runs Decode over it.
func (d *Decoder) DecodeJPEG(data []byte) (Symbol, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return Symbol{}, fmt.Errorf("decode jpeg: %w", err)
	}
	return d.Decode(img)
}
