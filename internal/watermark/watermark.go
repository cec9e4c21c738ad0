// Package watermark stamps generated images with a visible disclosure bar and
// an embedded PNG text marker.
package watermark

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

// DefaultText is the disclosure stamped on every generated image.
const DefaultText = "AI-Generated"

// MIMEType is the content type of every watermarked image.
const MIMEType = "image/png"

// MarkerKeyword is the PNG tEXt keyword carrying the disclosure.
const MarkerKeyword = "Comment"

// ErrDecode is returned when the input is not a decodable image.
var ErrDecode = errors.New("watermark: cannot decode image")

// Options controls the bar geometry and label.
type Options struct {
	Text      string
	Label     string
	BarHeight int
	Padding   int
	BarAlpha  uint8
}

// DefaultOptions returns the stock geometry: a 36px translucent black bar
// along the bottom edge with 12px text padding.
func DefaultOptions() Options {
	return Options{
		Text:      DefaultText,
		BarHeight: 36,
		Padding:   12,
		BarAlpha:  90,
	}
}

// Caption returns the text drawn on the bar.
func (o Options) Caption() string {
	text := strings.TrimSpace(o.Text)
	if text == "" {
		text = DefaultText
	}
	if label := strings.TrimSpace(o.Label); label != "" {
		return text + " - " + label
	}
	return text
}

var textColor = color.NRGBA{R: 255, G: 255, B: 255, A: 220}

// Apply decodes data, draws the disclosure bar and returns a PNG carrying the
// disclosure in a tEXt chunk. Apply is deterministic for equal inputs.
func Apply(data []byte, opts Options) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if opts.BarHeight <= 0 {
		opts.BarHeight = DefaultOptions().BarHeight
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}

	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	barH := min(opts.BarHeight, dst.Bounds().Dy())
	bar := image.Rect(0, dst.Bounds().Dy()-barH, dst.Bounds().Dx(), dst.Bounds().Dy())
	shade := image.NewUniform(color.NRGBA{A: opts.BarAlpha})
	draw.Draw(dst, bar, shade, image.Point{}, draw.Over)

	face := basicfont.Face7x13
	metrics := face.Metrics()
	textH := (metrics.Ascent + metrics.Descent).Ceil()
	baseline := bar.Min.Y + (barH-textH)/2 + metrics.Ascent.Ceil()
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(textColor),
		Face: face,
		Dot:  fixed.P(bar.Min.X+opts.Padding, baseline),
	}
	drawer.DrawString(opts.Caption())

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("watermark: encode png: %w", err)
	}
	return withTextChunk(buf.Bytes(), MarkerKeyword, strings.TrimSpace(opts.Caption()))
}

// pngHeaderLen covers the 8 byte signature plus the 25 byte IHDR chunk.
const pngHeaderLen = 8 + 4 + 4 + 13 + 4

// withTextChunk inserts a tEXt chunk right after IHDR.
func withTextChunk(encoded []byte, keyword, text string) ([]byte, error) {
	if len(encoded) < pngHeaderLen || string(encoded[12:16]) != "IHDR" {
		return nil, errors.New("watermark: unexpected png layout")
	}

	payload := make([]byte, 0, len(keyword)+1+len(text))
	payload = append(payload, keyword...)
	payload = append(payload, 0)
	payload = append(payload, text...)

	chunk := make([]byte, 0, 12+len(payload))
	chunk = binary.BigEndian.AppendUint32(chunk, uint32(len(payload)))
	chunk = append(chunk, "tEXt"...)
	chunk = append(chunk, payload...)
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(encoded)+len(chunk))
	out = append(out, encoded[:pngHeaderLen]...)
	out = append(out, chunk...)
	out = append(out, encoded[pngHeaderLen:]...)
	return out, nil
}

// Marked reports whether data is a PNG carrying the disclosure marker.
func Marked(data []byte) bool {
	return bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) &&
		bytes.Contains(data, []byte("tEXt"+MarkerKeyword+"\x00"+DefaultText))
}
