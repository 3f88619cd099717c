package scanning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/pocketbooks_backend/config"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/models"
	"bitbucket.org/mmdatafocus/pocketbooks_backend/utils"
	"github.com/sirupsen/logrus"
)

// ExtractionTimeout bounds the single suspension point in the pipeline. A
// response arriving after the deadline is discarded; there is no late
// write-back and no automatic retry.
const ExtractionTimeout = 30 * time.Second

// VisionClient is the raw call to the external model service.
type VisionClient interface {
	GenerateText(ctx context.Context, imageData []byte, contentType string, prompt string) (string, error)
}

// Engine orchestrates one extraction: bounded external call, tolerant parse,
// per-field validation, and the non-production canned fallback.
type Engine struct {
	client        VisionClient
	timeout       time.Duration
	allowFallback bool
	logger        *logrus.Logger
}

func NewEngine(client VisionClient) *Engine {
	return &Engine{
		client:        client,
		timeout:       ExtractionTimeout,
		allowFallback: !isProduction(),
		logger:        config.GetLogger(),
	}
}

// NewEngineFromEnv builds the engine on the real vision client. When the
// client cannot be constructed (missing key, unreachable service) the
// engine still works in non-production through the canned fallback.
func NewEngineFromEnv(ctx context.Context, logger *logrus.Logger) (*Engine, error) {
	gem, err := NewGeminiFromEnv(ctx)
	if err != nil {
		return NewEngineWith(nil, ExtractionTimeout, !isProduction(), logger), err
	}
	return NewEngineWith(gem, ExtractionTimeout, !isProduction(), logger), nil
}

// NewEngineWith is the fully-injected constructor used by tests.
func NewEngineWith(client VisionClient, timeout time.Duration, allowFallback bool, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Engine{client: client, timeout: timeout, allowFallback: allowFallback, logger: logger}
}

func isProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

// Extract runs the vision call for one receipt image and returns the
// validated output plus the method tag that produced it.
func (e *Engine) Extract(ctx context.Context, imageURL string, imageData []byte, contentType string) (*models.ExtractionOutput, models.ExtractionMethod, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.client == nil {
		return e.degrade(imageURL, errors.New("vision client not configured"), callCtx)
	}

	text, err := e.client.GenerateText(callCtx, imageData, contentType, receiptScanPrompt)
	if err != nil {
		return e.degrade(imageURL, err, callCtx)
	}

	payload, err := ExtractJSONPayload(text)
	if err != nil {
		return e.degrade(imageURL, err, callCtx)
	}

	out, kept := models.SanitizeExtractionPayload(payload)
	e.logger.WithFields(logrus.Fields{
		"image_url":   imageURL,
		"kept_fields": kept,
	}).Info("[scanning.extract]")
	return out, models.ExtractionMethodVision, nil
}

// degrade converts any extraction failure into either the deterministic
// canned payload (development/test) or a classified error (production).
func (e *Engine) degrade(imageURL string, cause error, callCtx context.Context) (*models.ExtractionOutput, models.ExtractionMethod, error) {
	if e.allowFallback {
		e.logger.WithFields(logrus.Fields{
			"image_url": imageURL,
			"cause":     cause.Error(),
		}).Warn("[scanning.fallback]")
		out, _ := models.SanitizeExtractionPayload(cannedPayloadFor(imageURL))
		return out, models.ExtractionMethodCanned, nil
	}

	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, models.ExtractionMethodVision, fmt.Errorf("%w: %v", utils.ErrExtractionTimeout, cause)
	}
	return nil, models.ExtractionMethodVision, fmt.Errorf("%w: %v", utils.ErrExtractionFailed, cause)
}

// Close releases the underlying vision client, if any.
func (e *Engine) Close() {
	if closer, ok := e.client.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
}
