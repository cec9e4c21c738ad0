package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	// ErrInvalidInput marks uploads that fail count, size or format checks.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTooLarge is an ErrInvalidInput raised when the request body exceeds the limit.
	ErrTooLarge = fmt.Errorf("%w: upload too large", ErrInvalidInput)
)

const (
	// FieldSelfies is the repeatable multipart field carrying the selfies.
	FieldSelfies = "selfies"
	fieldSelfie  = "selfie"

	MaxFiles            = 2
	DefaultMaxFileBytes = 8 << 20
	DefaultMaxSide      = 768

	reencodeQuality = 90
	initialReadSize = 32 << 10
	maxFieldBytes   = 1 << 10
	maxFields       = 16
)

var allowedMIME = []string{"image/jpeg", "image/png", "image/webp"}

// Limits bounds an upload.
type Limits struct {
	MaxFileBytes int64
	// MaxSide is the longest edge a reference may keep; larger images are downscaled.
	// Zero disables downscaling.
	MaxSide int
}

// DefaultLimits returns the stock limits.
func DefaultLimits() Limits {
	return Limits{MaxFileBytes: DefaultMaxFileBytes, MaxSide: DefaultMaxSide}
}

// MaxBodyBytes is the largest request body worth reading.
func (l Limits) MaxBodyBytes() int64 {
	return l.fileLimit()*MaxFiles + (1 << 20)
}

func (l Limits) fileLimit() int64 {
	if l.MaxFileBytes <= 0 {
		return DefaultMaxFileBytes
	}
	return l.MaxFileBytes
}

// ParseUpload streams the multipart selfies into a new Session. Parts are read
// straight into buffers the session owns; nothing is kept on the request and
// nothing touches the disk. Small text fields such as exact_character are read
// from the same stream and exposed through Session.Value. On error no session
// is returned and every buffer read so far is zeroed.
func ParseUpload(r *http.Request, limits Limits) (*Session, error) {
	if r.ContentLength > limits.MaxBodyBytes() {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrTooLarge, limits.MaxBodyBytes())
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse form: %v", ErrInvalidInput, err)
	}

	session := NewSession()
	if err := readParts(reader, session, limits); err != nil {
		session.Release()
		return nil, err
	}
	if session.Len() == 0 {
		session.Release()
		return nil, fmt.Errorf("%w: at least one selfie is required", ErrInvalidInput)
	}
	return session, nil
}

func readParts(reader *multipart.Reader, session *Session, limits Limits) error {
	files, fields := 0, 0
	for {
		p, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return streamError(err)
		}

		name := p.FormName()
		switch {
		case name == FieldSelfies || name == fieldSelfie:
			files++
			if files > MaxFiles {
				p.Close()
				return fmt.Errorf("%w: at most %d selfies are accepted", ErrInvalidInput, MaxFiles)
			}
			ref, err := readReference(p, limits)
			p.Close()
			if err != nil {
				return fmt.Errorf("selfie %d (%s): %w", files, p.FileName(), err)
			}
			session.add(ref)
		case p.FileName() != "":
			p.Close()
			return fmt.Errorf("%w: unexpected file field %q", ErrInvalidInput, name)
		default:
			fields++
			if fields > maxFields {
				p.Close()
				return fmt.Errorf("%w: too many form fields", ErrInvalidInput)
			}
			value, err := readOwned(p, maxFieldBytes)
			p.Close()
			if err != nil {
				return streamError(err)
			}
			if len(value) > maxFieldBytes {
				return fmt.Errorf("%w: field %q is too long", ErrInvalidInput, name)
			}
			session.setValue(name, string(value))
		}
	}
}

func streamError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("%w (max %d bytes)", ErrTooLarge, tooLarge.Limit)
	}
	return fmt.Errorf("%w: could not read form: %v", ErrInvalidInput, err)
}

func readReference(p *multipart.Part, limits Limits) (Reference, error) {
	maxBytes := limits.fileLimit()
	data, err := readOwned(p, maxBytes)
	if err != nil {
		return Reference{}, streamError(err)
	}
	if len(data) == 0 {
		return Reference{}, fmt.Errorf("%w: empty file", ErrInvalidInput)
	}
	if int64(len(data)) > maxBytes {
		clear(data)
		return Reference{}, fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidInput, maxBytes)
	}

	ref, err := inspect(data, limits.MaxSide)
	if err != nil {
		clear(data)
		return Reference{}, err
	}
	ref.Filename = p.FileName()
	return ref, nil
}

// readOwned reads up to limit+1 bytes so callers can detect overflow. Buffers
// outgrown on the way are zeroed before being dropped.
func readOwned(r io.Reader, limit int64) ([]byte, error) {
	buf := make([]byte, 0, min(limit+1, initialReadSize))
	lr := io.LimitReader(r, limit+1)
	for {
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), 2*cap(buf))
			copy(grown, buf)
			clear(buf)
			buf = grown
		}
		n, err := lr.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			clear(buf)
			return nil, err
		}
	}
}

// inspect sniffs the content type, verifies the image decodes and downscales it
// when its longest side exceeds maxSide. The client-declared type is ignored.
func inspect(data []byte, maxSide int) (Reference, error) {
	detected := mimetype.Detect(data)
	mime := ""
	for _, allowed := range allowedMIME {
		if detected.Is(allowed) {
			mime = allowed
			break
		}
	}
	if mime == "" {
		return Reference{}, fmt.Errorf("%w: unsupported type %s (allowed: %s)", ErrInvalidInput, detected.String(), strings.Join(allowedMIME, ", "))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Reference{}, fmt.Errorf("%w: not a decodable image: %v", ErrInvalidInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Reference{}, fmt.Errorf("%w: image has no pixels", ErrInvalidInput)
	}

	ref := Reference{MIMEType: mime, Width: cfg.Width, Height: cfg.Height, Data: data}
	if maxSide <= 0 || max(cfg.Width, cfg.Height) <= maxSide {
		return ref, nil
	}

	scaled, w, h, err := downscale(data, maxSide)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	clear(data)
	return Reference{MIMEType: "image/jpeg", Width: w, Height: h, Data: scaled}, nil
}

// downscale fits the image inside maxSide×maxSide keeping the aspect ratio.
func downscale(data []byte, maxSide int) ([]byte, int, int, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	scale := float64(max(b.Dx(), b.Dy())) / float64(maxSide)
	w := max(1, int(float64(b.Dx())/scale))
	h := max(1, int(float64(b.Dy())/scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	wipe(src)
	defer wipe(dst)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: reencodeQuality}); err != nil {
		return nil, 0, 0, fmt.Errorf("encode scaled image: %w", err)
	}
	return buf.Bytes(), w, h, nil
}

// wipe zeroes the pixel storage of the decoded image types the allowed formats produce.
func wipe(img image.Image) {
	switch m := img.(type) {
	case *image.RGBA:
		clear(m.Pix)
	case *image.NRGBA:
		clear(m.Pix)
	case *image.RGBA64:
		clear(m.Pix)
	case *image.NRGBA64:
		clear(m.Pix)
	case *image.Gray:
		clear(m.Pix)
	case *image.Gray16:
		clear(m.Pix)
	case *image.CMYK:
		clear(m.Pix)
	case *image.Paletted:
		clear(m.Pix)
		clear(m.Palette)
	case *image.YCbCr:
		clear(m.Y)
		clear(m.Cb)
		clear(m.Cr)
	case *image.NYCbCrA:
		clear(m.Y)
		clear(m.Cb)
		clear(m.Cr)
		clear(m.A)
	}
}

// ParseFlag reads an HTML checkbox or boolean form value. Unknown spellings are false.
func ParseFlag(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	switch value {
	case "on", "yes", "y":
		return true
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
