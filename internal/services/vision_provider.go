package services

import (
	"context"
	"errors"
	"time"

	"github.com/platewise/platewise-backend/internal/clients/openai"
	pkgerrors "github.com/platewise/platewise-backend/internal/pkg/errors"
	"github.com/platewise/platewise-backend/internal/pkg/httpx"
	"github.com/platewise/platewise-backend/internal/pkg/logger"
)

// VisionService is the vision-AI port. Each call is bounded by the
// configured timeout; a hung provider surfaces as a retryable failure
// instead of requiring mid-flight cancellation.
type VisionService interface {
	Analyze(ctx context.Context, imageURL string, spec PromptSpec) (map[string]any, error)
}

type visionService struct {
	log     *logger.Logger
	ai      openai.Client
	timeout time.Duration
}

func NewVisionService(baseLog *logger.Logger, ai openai.Client, timeout time.Duration) VisionService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &visionService{
		log:     baseLog.With("service", "VisionService"),
		ai:      ai,
		timeout: timeout,
	}
}

func (s *visionService) Analyze(ctx context.Context, imageURL string, spec PromptSpec) (map[string]any, error) {
	if imageURL == "" {
		return nil, &pkgerrors.VisionServiceError{Retryable: false, Reason: "no image reference"}
	}
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	raw, err := s.ai.GenerateJSONWithImage(callCtx, spec.System, spec.User, openai.ImageInput{ImageURL: imageURL}, spec.SchemaName, spec.Schema)
	if err != nil {
		return nil, s.classify(err)
	}
	s.log.Debug("Vision analysis returned", "elapsed", time.Since(started).String())
	return raw, nil
}

// classify maps provider failures onto the pipeline taxonomy: hard
// rejections are terminal, everything transport-shaped is retryable.
func (s *visionService) classify(err error) error {
	var refusal *openai.RefusalError
	if errors.As(err, &refusal) {
		return &pkgerrors.VisionServiceError{Retryable: false, Reason: "provider rejected the image", Err: err}
	}
	var httpErr *openai.HTTPError
	if errors.As(err, &httpErr) {
		return &pkgerrors.VisionServiceError{
			Retryable: httpx.IsRetryableHTTPStatus(httpErr.StatusCode),
			Reason:    "provider error",
			Err:       err,
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &pkgerrors.VisionServiceError{Retryable: true, Reason: "vision call timed out", Err: err}
	}
	return &pkgerrors.VisionServiceError{Retryable: true, Reason: "provider call failed", Err: err}
}
