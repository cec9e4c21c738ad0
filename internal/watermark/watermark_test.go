package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestApplyEmbedsMarker(t *testing.T) {
	out, err := Apply(solidPNG(t, 120, 80, color.White), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, Marked(out))
	assert.Contains(t, string(out), DefaultText)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 120, 80), decoded.Bounds())
}

func TestApplyDarkensBottomBar(t *testing.T) {
	out, err := Apply(solidPNG(t, 200, 100, color.White), DefaultOptions())
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	top := color.NRGBAModel.Convert(decoded.At(5, 5)).(color.NRGBA)
	assert.Equal(t, uint8(255), top.R)

	// Right edge of the bar stays clear of the caption.
	inBar := color.NRGBAModel.Convert(decoded.At(198, 95)).(color.NRGBA)
	assert.Less(t, inBar.R, uint8(255))
	assert.Greater(t, inBar.R, uint8(100))
}

func TestApplyDrawsCaption(t *testing.T) {
	plain := DefaultOptions()
	labeled := DefaultOptions()
	labeled.Label = "Dawn Palace"

	a, err := Apply(solidPNG(t, 300, 100, color.Black), plain)
	require.NoError(t, err)
	b, err := Apply(solidPNG(t, 300, 100, color.Black), labeled)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "AI-Generated - Dawn Palace", labeled.Caption())
	assert.True(t, Marked(b))
}

func TestApplyIsDeterministic(t *testing.T) {
	in := solidPNG(t, 64, 64, color.RGBA{R: 30, G: 90, B: 160, A: 255})
	a, err := Apply(in, DefaultOptions())
	require.NoError(t, err)
	b, err := Apply(in, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestApplyAcceptsJPEGAndTinyImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := Apply(buf.Bytes(), DefaultOptions())
	require.NoError(t, err)
	assert.True(t, Marked(out))
}

func TestApplyRejectsGarbage(t *testing.T) {
	_, err := Apply([]byte("not an image"), DefaultOptions())
	require.ErrorIs(t, err, ErrDecode)
	assert.False(t, Marked([]byte("not an image")))
}
