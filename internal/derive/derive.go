// Package derive generates thumbnails and preview clips from original
// media assets.
package derive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/scale-search/scalesearch/internal/domain"
)

// Derivatives holds local paths of generated auxiliary assets.
type Derivatives struct {
	ThumbnailPath string
	PreviewPath   string
}

// Config holds derivative generation settings.
type Config struct {
	ThumbnailMaxPx   int // bounded-box size, e.g. 300x300
	ThumbnailQuality int // JPEG quality
	PreviewSeconds   int // preview clip length from the start
	// GenerateTimeout kills an ffmpeg invocation that runs longer.
	// Zero leaves invocations unbounded.
	GenerateTimeout time.Duration
}

// Generator produces derivatives via image resizing and ffmpeg.
type Generator struct {
	cfg Config
}

// New creates a derivative generator.
func New(cfg Config) *Generator {
	return &Generator{cfg: cfg}
}

// Image generates a JPEG thumbnail for an image original. A file that
// does not decode as an image is a validation failure, not a transient
// tool error.
func (g *Generator) Image(ctx context.Context, srcPath string) (Derivatives, error) {
	if err := ctx.Err(); err != nil {
		return Derivatives{}, domain.TransientError(err)
	}

	img, err := imaging.Open(srcPath)
	if err != nil {
		return Derivatives{}, domain.PermanentError(
			fmt.Errorf("%w: decode image: %v", domain.ErrMediaUndecodable, err))
	}

	thumb := imaging.Fit(img, g.cfg.ThumbnailMaxPx, g.cfg.ThumbnailMaxPx, imaging.Lanczos)

	out := derivedPath(srcPath, "_thumb.jpg")
	if err := imaging.Save(thumb, out, imaging.JPEGQuality(g.cfg.ThumbnailQuality)); err != nil {
		return Derivatives{}, domain.TransientError(fmt.Errorf("save thumbnail: %w", err))
	}

	return Derivatives{ThumbnailPath: out}, nil
}

// Video generates a first-frame JPEG thumbnail and a short re-encoded
// preview clip for a video original. ffmpeg invocation failures are
// transient by default and retried under the stage retry policy.
func (g *Generator) Video(ctx context.Context, srcPath string) (Derivatives, error) {
	if err := ctx.Err(); err != nil {
		return Derivatives{}, domain.TransientError(err)
	}

	preview := derivedPath(srcPath, "_preview.mp4")
	err := ffmpeg.Input(srcPath, ffmpeg.KwArgs{"ss": 0}).
		Output(preview, ffmpeg.KwArgs{
			"t":      g.cfg.PreviewSeconds,
			"c:v":    "libx264",
			"c:a":    "aac",
			"preset": "veryfast",
		}).
		OverWriteOutput().
		WithTimeout(g.cfg.GenerateTimeout).
		Silent(true).
		Run()
	if err != nil {
		return Derivatives{}, domain.TransientError(fmt.Errorf("transcode preview: %w", err))
	}

	frame := derivedPath(srcPath, "_frame.jpg")
	err = ffmpeg.Input(srcPath, ffmpeg.KwArgs{"ss": 0}).
		Output(frame, ffmpeg.KwArgs{"vframes": 1}).
		OverWriteOutput().
		WithTimeout(g.cfg.GenerateTimeout).
		Silent(true).
		Run()
	if err != nil {
		return Derivatives{}, domain.TransientError(fmt.Errorf("extract frame: %w", err))
	}

	img, err := imaging.Open(frame)
	if err != nil {
		return Derivatives{}, domain.TransientError(fmt.Errorf("decode frame: %w", err))
	}
	thumbImg := imaging.Fit(img, g.cfg.ThumbnailMaxPx, g.cfg.ThumbnailMaxPx, imaging.Lanczos)

	thumb := derivedPath(srcPath, "_thumb.jpg")
	if err := imaging.Save(thumbImg, thumb, imaging.JPEGQuality(g.cfg.ThumbnailQuality)); err != nil {
		return Derivatives{}, domain.TransientError(fmt.Errorf("save thumbnail: %w", err))
	}

	return Derivatives{ThumbnailPath: thumb, PreviewPath: preview}, nil
}

// derivedPath places a derived file next to the source, replacing the
// extension with suffix.
func derivedPath(srcPath, suffix string) string {
	if i := strings.LastIndex(srcPath, "."); i > strings.LastIndex(srcPath, "/") {
		return srcPath[:i] + suffix
	}
	return srcPath + suffix
}
