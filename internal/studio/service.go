// Package studio turns an upload session into the two watermarked scene images.
package studio

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"celebSnap/internal/generator"
	"celebSnap/internal/media"
	"celebSnap/internal/prompts"
	"celebSnap/internal/watermark"
)

// Renderer produces the raw image for one scene.
type Renderer interface {
	Render(ctx context.Context, req prompts.SceneRequest) (generator.Image, error)
}

// GeneratedImage is one watermarked scene, kept in memory only.
type GeneratedImage struct {
	Scene    prompts.Scene
	Raw      generator.Image
	Data     []byte
	MIMEType string
}

// SceneFailure records why a scene produced no image.
type SceneFailure struct {
	Scene prompts.Scene
	Err   error
}

// Result holds every scene outcome in scene order.
type Result struct {
	Images   []GeneratedImage
	Failures []SceneFailure
}

// Partial reports whether some but not all scenes succeeded.
func (r Result) Partial() bool {
	return len(r.Images) > 0 && len(r.Failures) > 0
}

// Options are the per-request choices sent with the upload.
type Options struct {
	Likeness  bool
	Companion prompts.Companion
}

// Service runs the scenes of one request.
type Service struct {
	renderer  Renderer
	watermark watermark.Options
	scenes    []prompts.Scene
	logger    zerolog.Logger
}

// NewService builds a service rendering every fixed scene through renderer.
func NewService(renderer Renderer, wm watermark.Options, logger zerolog.Logger) *Service {
	return &Service{
		renderer:  renderer,
		watermark: wm,
		scenes:    prompts.Scenes(),
		logger:    logger,
	}
}

// Generate renders all scenes concurrently. Outcomes are collected best-effort;
// an error is returned only when no scene succeeded, carrying the most severe
// failure kind.
func (s *Service) Generate(ctx context.Context, session *media.Session, opts Options) (Result, error) {
	if session == nil || session.Len() == 0 {
		return Result{}, fmt.Errorf("%w: no references", media.ErrInvalidInput)
	}
	refs := session.References()

	type outcome struct {
		image *GeneratedImage
		err   error
	}
	outcomes := make([]outcome, len(s.scenes))

	var g errgroup.Group
	g.SetLimit(2)
	for i, scene := range s.scenes {
		g.Go(func() error {
			req, err := prompts.BuildFor(scene, opts.Companion, refs, opts.Likeness)
			if err != nil {
				outcomes[i].err = &generator.Error{Kind: generator.ErrUpstream, Scene: scene, Err: err}
				return nil
			}
			img, err := s.renderScene(ctx, req)
			if err != nil {
				outcomes[i].err = err
				return nil
			}
			outcomes[i].image = &img
			return nil
		})
	}
	_ = g.Wait()

	var result Result
	for i, o := range outcomes {
		if o.image != nil {
			result.Images = append(result.Images, *o.image)
			continue
		}
		result.Failures = append(result.Failures, SceneFailure{Scene: s.scenes[i], Err: o.err})
	}

	if len(result.Images) == 0 {
		return result, mostSevere(result.Failures)
	}
	return result, nil
}

func (s *Service) renderScene(ctx context.Context, req prompts.SceneRequest) (GeneratedImage, error) {
	raw, err := s.renderer.Render(ctx, req)
	if err != nil {
		return GeneratedImage{}, err
	}

	stamped, err := watermark.Apply(raw.Data, s.watermark)
	if err != nil {
		s.logger.Warn().Err(err).Str("scene", string(req.Scene)).Msg("watermark failed")
		return GeneratedImage{}, &generator.Error{Kind: generator.ErrUpstream, Scene: req.Scene, Attempts: 1, Err: err}
	}

	return GeneratedImage{
		Scene:    req.Scene,
		Raw:      raw,
		Data:     stamped,
		MIMEType: watermark.MIMEType,
	}, nil
}

var severity = []error{generator.ErrQuota, generator.ErrTimeout, generator.ErrUpstream}

func mostSevere(failures []SceneFailure) error {
	for _, kind := range severity {
		for _, f := range failures {
			if errors.Is(f.Err, kind) {
				return f.Err
			}
		}
	}
	for _, f := range failures {
		if f.Err != nil {
			return f.Err
		}
	}
	return generator.ErrUpstream
}
