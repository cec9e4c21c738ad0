package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type part struct {
	field    string
	filename string
	data     []byte
}

func multipartRequest(t *testing.T, parts []part, values map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, p := range parts {
		fw, err := writer.CreateFormFile(p.field, p.filename)
		require.NoError(t, err)
		_, err = fw.Write(p.data)
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/generate", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestParseUploadAcceptsTwoImages(t *testing.T) {
	req := multipartRequest(t, []part{
		{FieldSelfies, "a.jpg", jpegBytes(t, 64, 48)},
		{FieldSelfies, "b.png", pngBytes(t, 32, 32)},
	}, nil)

	session, err := ParseUpload(req, DefaultLimits())
	require.NoError(t, err)
	defer session.Release()

	refs := session.References()
	require.Len(t, refs, 2)
	assert.Equal(t, "image/jpeg", refs[0].MIMEType)
	assert.Equal(t, 64, refs[0].Width)
	assert.Equal(t, 48, refs[0].Height)
	assert.Equal(t, "a.jpg", refs[0].Filename)
	assert.Equal(t, "image/png", refs[1].MIMEType)
	assert.NotEmpty(t, session.ID)
}

func TestParseUploadAcceptsSingleSelfieField(t *testing.T) {
	req := multipartRequest(t, []part{{"selfie", "a.jpg", jpegBytes(t, 16, 16)}}, nil)

	session, err := ParseUpload(req, DefaultLimits())
	require.NoError(t, err)
	defer session.Release()
	assert.Equal(t, 1, session.Len())
}

func TestParseUploadRejectsBadCounts(t *testing.T) {
	img := jpegBytes(t, 16, 16)
	cases := map[string][]part{
		"none":  nil,
		"three": {{FieldSelfies, "1.jpg", img}, {FieldSelfies, "2.jpg", img}, {FieldSelfies, "3.jpg", img}},
	}
	for name, parts := range cases {
		t.Run(name, func(t *testing.T) {
			req := multipartRequest(t, parts, map[string]string{"exact_character": "on"})
			session, err := ParseUpload(req, DefaultLimits())
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, session)
		})
	}
}

func TestParseUploadRejectsNonImages(t *testing.T) {
	req := multipartRequest(t, []part{{FieldSelfies, "notes.jpg", []byte("definitely not an image")}}, nil)

	_, err := ParseUpload(req, DefaultLimits())
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "unsupported type")
}

func TestParseUploadRejectsEmptyFile(t *testing.T) {
	req := multipartRequest(t, []part{{FieldSelfies, "empty.jpg", nil}}, nil)

	_, err := ParseUpload(req, DefaultLimits())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseUploadRejectsOversizedFile(t *testing.T) {
	data := jpegBytes(t, 64, 64)
	req := multipartRequest(t, []part{{FieldSelfies, "big.jpg", data}}, nil)

	_, err := ParseUpload(req, Limits{MaxFileBytes: int64(len(data) - 1)})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseUploadRejectsBodyOverLimit(t *testing.T) {
	limits := Limits{MaxFileBytes: 1024}
	data := make([]byte, limits.MaxBodyBytes()+1024)
	req := multipartRequest(t, []part{{FieldSelfies, "huge.jpg", data}}, nil)
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, limits.MaxBodyBytes())

	_, err := ParseUpload(req, limits)
	require.ErrorIs(t, err, ErrTooLarge)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseUploadRejectsUnexpectedFileField(t *testing.T) {
	req := multipartRequest(t, []part{{"avatar", "a.jpg", jpegBytes(t, 16, 16)}}, nil)

	_, err := ParseUpload(req, DefaultLimits())
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "avatar")
}

func TestParseUploadCollectsFormValues(t *testing.T) {
	req := multipartRequest(t, []part{{FieldSelfies, "a.jpg", jpegBytes(t, 16, 16)}},
		map[string]string{"exact_character": "on", "character": "joker"})

	session, err := ParseUpload(req, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "on", session.Value("exact_character"))
	assert.Equal(t, "joker", session.Value("character"))
	assert.Empty(t, session.Value("missing"))

	session.Release()
	assert.Empty(t, session.Value("exact_character"))
}

func TestParseUploadLeavesNoCopyOnRequest(t *testing.T) {
	upload := jpegBytes(t, 40, 40)
	req := multipartRequest(t, []part{{FieldSelfies, "a.jpg", upload}}, map[string]string{"exact_character": "on"})

	session, err := ParseUpload(req, DefaultLimits())
	require.NoError(t, err)
	refs := session.References()
	require.Len(t, refs, 1)
	held := refs[0].Data
	require.Equal(t, upload, held)

	session.Release()

	if req.MultipartForm != nil {
		assert.Empty(t, req.MultipartForm.File)
		assert.Empty(t, req.MultipartForm.Value)
	}
	assert.Nil(t, req.Form)
	assert.Nil(t, req.PostForm)
	assert.Equal(t, make([]byte, len(upload)), held)
	assert.Empty(t, session.References())
}

func TestReadOwnedGrowsAndCaps(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 100<<10)

	got, err := readOwned(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	capped, err := readOwned(bytes.NewReader(data), 10)
	require.NoError(t, err)
	assert.Len(t, capped, 11)
}

func TestWipeClearsDecodedPixels(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range rgba.Pix {
		rgba.Pix[i] = 0xaa
	}
	ycc := image.NewYCbCr(image.Rect(0, 0, 4, 4), image.YCbCrSubsampleRatio420)
	for i := range ycc.Y {
		ycc.Y[i] = 0xaa
	}
	for i := range ycc.Cb {
		ycc.Cb[i], ycc.Cr[i] = 0xbb, 0xcc
	}

	wipe(rgba)
	wipe(ycc)

	assert.Equal(t, make([]byte, len(rgba.Pix)), rgba.Pix)
	assert.Equal(t, make([]byte, len(ycc.Y)), ycc.Y)
	assert.Equal(t, make([]byte, len(ycc.Cb)), ycc.Cb)
	assert.Equal(t, make([]byte, len(ycc.Cr)), ycc.Cr)
}

func TestParseUploadRejectsNonMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/generate", bytes.NewBufferString(`{"selfies":[]}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := ParseUpload(req, DefaultLimits())
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseUploadDownscalesLargeImages(t *testing.T) {
	req := multipartRequest(t, []part{{FieldSelfies, "wide.png", pngBytes(t, 400, 200)}}, nil)

	session, err := ParseUpload(req, Limits{MaxFileBytes: DefaultMaxFileBytes, MaxSide: 100})
	require.NoError(t, err)
	defer session.Release()

	ref := session.References()[0]
	assert.Equal(t, "image/jpeg", ref.MIMEType)
	assert.Equal(t, 100, ref.Width)
	assert.Equal(t, 50, ref.Height)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(ref.Data))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestSessionReleaseZeroesBuffers(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	session := NewSession(Reference{Data: data})

	session.Release()
	session.Release()

	assert.Equal(t, []byte{0, 0, 0, 0}, data)
	assert.Equal(t, 0, session.Len())
	assert.True(t, session.Released())
	assert.Empty(t, session.References())
}

func TestParseFlag(t *testing.T) {
	for value, want := range map[string]bool{
		"on": true, "true": true, "1": true, "YES": true,
		"": false, "off": false, "false": false, "maybe": false,
	} {
		assert.Equal(t, want, ParseFlag(value), "value %q", value)
	}
}
