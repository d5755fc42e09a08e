package plant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/teslashibe/go-plantid/pkg/photo"
)

// DefaultTimeout bounds a single identification.
const DefaultTimeout = 30 * time.Second

// Option configures an Identifier.
type Option func(*Identifier)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(i *Identifier) { i.timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(i *Identifier) { i.logger = l }
}

// Identifier is the identification adapter: one model call per Identify,
// no internal retry.
type Identifier struct {
	model   Model
	timeout time.Duration
	logger  *slog.Logger
}

// NewIdentifier creates an identifier around model.
func NewIdentifier(model Model, opts ...Option) *Identifier {
	i := &Identifier{
		model:   model,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("component", "plant")
	return i
}

// Identify sends img to the model and parses the reply. Errors are always
// *Failure.
func (i *Identifier) Identify(ctx context.Context, img *photo.Image) (*Record, error) {
	if img == nil || img.Len() == 0 {
		return nil, newFailure(ReasonInvalidImage, ErrNoImage)
	}
	if i.model == nil {
		return nil, newFailure(ReasonConfig, ErrNoAPIKey)
	}

	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := i.model.Generate(ctx, Request{
		Prompt:   Prompt,
		Image:    img.Bytes(),
		MIMEType: img.MIMEType(),
	})
	if err != nil {
		f := classify(err)
		i.logger.Warn("identification failed",
			"reason", f.Reason,
			"error", err,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		return nil, f
	}

	if strings.TrimSpace(text) == "" {
		i.logger.Warn("model returned empty response", "model", i.model.Name())
		return nil, newFailure(ReasonEmpty, ErrEmptyResponse)
	}

	rec := ParseResponse(text)
	rec.Model = i.model.Name()
	rec.Raw = text

	i.logger.Info("plant identified",
		"name", rec.Name,
		"scientific_name", rec.ScientificName,
		"complete", rec.Complete(),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return &rec, nil
}

// Model returns the underlying model.
func (i *Identifier) Model() Model {
	return i.model
}
