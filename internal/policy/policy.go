// Package policy holds the review policy constants that gate amendment and
// upload input. Defaults apply unless a YAML policy file overrides them.
package policy

import (
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	pstrings "kycreview/pkg/platform/strings"
)

// Review captures the tunable review policy.
type Review struct {
	// MinReasonLength is the minimum length of a reviewer's amendment reason.
	MinReasonLength int `yaml:"min_reason_length"`
	// MinResponseCommentLength is the minimum length of a branch response comment.
	MinResponseCommentLength int `yaml:"min_response_comment_length"`
	// MaxFileBytes caps a single uploaded file.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// MaxFilesPerCall caps the files supplied to one submit or resolve call.
	MaxFilesPerCall int `yaml:"max_files_per_call"`
	// MaxImagePixels caps width*height of an image before it is decoded.
	MaxImagePixels int64 `yaml:"max_image_pixels"`
	// AllowedMediaTypes is the set of accepted document formats.
	AllowedMediaTypes []string `yaml:"allowed_media_types"`
	// PreviewSessionTTL is how long an idle preview session survives.
	PreviewSessionTTL time.Duration `yaml:"preview_session_ttl"`
	// PreviewSweepInterval is how often the janitor looks for idle sessions.
	PreviewSweepInterval time.Duration `yaml:"preview_sweep_interval"`
}

// Default returns the built-in review policy.
func Default() Review {
	return Review{
		MinReasonLength:          5,
		MinResponseCommentLength: 10,
		MaxFileBytes:             10 << 20,
		MaxFilesPerCall:          20,
		MaxImagePixels:           20_000_000,
		AllowedMediaTypes:        []string{"application/pdf", "image/jpeg", "image/png"},
		PreviewSessionTTL:        30 * time.Minute,
		PreviewSweepInterval:     time.Minute,
	}
}

// Load reads a YAML policy file on top of Default. An empty path returns the defaults.
func Load(path string) (Review, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Review{}, fmt.Errorf("read policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Review{}, fmt.Errorf("parse policy file: %w", err)
	}
	p.AllowedMediaTypes = pstrings.DedupeAndTrimLower(p.AllowedMediaTypes)
	if err := p.Validate(); err != nil {
		return Review{}, err
	}
	return p, nil
}

func (p Review) Validate() error {
	switch {
	case p.MinReasonLength < 1:
		return fmt.Errorf("min_reason_length must be positive")
	case p.MinResponseCommentLength < 1:
		return fmt.Errorf("min_response_comment_length must be positive")
	case p.MaxFileBytes < 1:
		return fmt.Errorf("max_file_bytes must be positive")
	case p.MaxFilesPerCall < 1:
		return fmt.Errorf("max_files_per_call must be positive")
	case p.MaxImagePixels < 1:
		return fmt.Errorf("max_image_pixels must be positive")
	case len(p.AllowedMediaTypes) == 0:
		return fmt.Errorf("allowed_media_types cannot be empty")
	case p.PreviewSessionTTL <= 0:
		return fmt.Errorf("preview_session_ttl must be positive")
	case p.PreviewSweepInterval <= 0:
		return fmt.Errorf("preview_sweep_interval must be positive")
	}
	return nil
}

// AllowsMediaType reports whether format is an accepted document format.
func (p Review) AllowsMediaType(format string) bool {
	return slices.Contains(p.AllowedMediaTypes, format)
}
