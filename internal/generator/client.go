package generator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"celebSnap/internal/media"
	"celebSnap/internal/prompts"
)

// Image is the raw image returned by the model.
type Image struct {
	Data     []byte
	MIMEType string
}

// Backend performs a single outbound generation call.
type Backend interface {
	Generate(ctx context.Context, refs []media.Reference, prompt string) (Image, error)
}

// Options tunes the call policy.
type Options struct {
	// Timeout bounds each outbound call.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure (0 or 1).
	MaxRetries int
	// Limiter paces calls across all requests. Nil disables pacing.
	Limiter *rate.Limiter
	// MaxPacingWait caps how long a call waits on the limiter before going anyway.
	MaxPacingWait time.Duration
	Logger        zerolog.Logger
}

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxPacingWait = 3 * time.Second
)

// NewLimiter builds the process-wide pacing limiter: one call per interval with
// a burst large enough for the two scenes of a single request.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 2)
}

// Client wraps a Backend with the fast-fail call policy: a per-call timeout, at
// most one retry for timeouts and generic failures, and no retry on quota errors.
type Client struct {
	backend    Backend
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	maxWait    time.Duration
	logger     zerolog.Logger
}

// NewClient constructs a client around backend.
func NewClient(backend Backend, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries > 1 {
		opts.MaxRetries = 1
	}
	if opts.MaxPacingWait <= 0 {
		opts.MaxPacingWait = defaultMaxPacingWait
	}
	return &Client{
		backend:    backend,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		limiter:    opts.Limiter,
		maxWait:    opts.MaxPacingWait,
		logger:     opts.Logger,
	}
}

// Render produces the image for one scene. Failures are returned as *Error.
func (c *Client) Render(ctx context.Context, req prompts.SceneRequest) (Image, error) {
	if c == nil || c.backend == nil {
		return Image{}, &Error{Kind: ErrUpstream, Scene: req.Scene, Err: errors.New("model client not configured")}
	}

	logger := c.loggerFor(ctx).With().Str("scene", string(req.Scene)).Logger()
	prompt := req.Prompt

	var (
		lastErr  error
		lastKind error
		attempts int
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.Likeness && errors.Is(lastKind, ErrUpstream) && req.FallbackPrompt != "" {
			prompt = req.FallbackPrompt
			logger.Info().Msg("retrying with look-alike prompt")
		}

		if err := c.pace(ctx); err != nil {
			lastErr = err
			lastKind = Classify(err)
			break
		}
		attempts++
		start := time.Now()
		img, err := c.call(ctx, req.References, prompt)
		if err == nil {
			logger.Debug().
				Int("attempt", attempts).
				Dur("elapsed", time.Since(start)).
				Int("bytes", len(img.Data)).
				Msg("scene rendered")
			return img, nil
		}

		lastErr = err
		lastKind = Classify(err)
		logger.Warn().
			Err(err).
			Int("attempt", attempts).
			Str("kind", KindOf(lastKind)).
			Dur("elapsed", time.Since(start)).
			Msg("model call failed")

		if errors.Is(lastKind, ErrQuota) || ctx.Err() != nil {
			break
		}
	}

	return Image{}, &Error{Kind: lastKind, Scene: req.Scene, Attempts: attempts, Err: lastErr}
}

func (c *Client) call(ctx context.Context, refs []media.Reference, prompt string) (Image, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	img, err := c.backend.Generate(callCtx, refs, prompt)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Image{}, fmt.Errorf("%w after %s: %v", ErrTimeout, c.timeout, err)
		}
		return Image{}, err
	}
	if len(img.Data) == 0 {
		return Image{}, ErrNoImage
	}
	return img, nil
}

// pace waits for the shared limiter, never longer than maxWait. When the cap is
// hit the call proceeds anyway so a busy process degrades into upstream 429s
// rather than long user waits. A caller that gives up returns its reservation.
func (c *Client) pace(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	reservation := c.limiter.Reserve()
	if !reservation.OK() {
		return nil
	}
	delay := min(reservation.Delay(), c.maxWait)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		reservation.Cancel()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &c.logger
}
