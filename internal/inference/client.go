package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/time/rate"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
	"github.com/joseph-ayodele/tools-tracker/internal/metrics"
)

const (
	endpointRecognize = "recognize"
	endpointCut       = "video_cut"
	endpointEnrich    = "enrich"
)

type Config struct {
	PreprocessURL string
	InferenceURL  string
	Timeout       time.Duration
	RPS           float64 // 0 disables rate limiting
}

// Client is the HTTP implementation of Recognizer.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger

	recognize *jsonschema.Schema
	cut       *jsonschema.Schema
	enrich    *jsonschema.Schema
}

var _ Recognizer = (*Client)(nil)

// NewClient builds a client. httpClient may be nil, in which case a client with cfg.Timeout
// and the default transport is used.
func NewClient(cfg Config, httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		cfg:     cfg,
		http:    httpClient,
		metrics: m,
		logger:  logger,
	}
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	var err error
	if c.recognize, err = compileSchema("recognize.json", recognizeSchema()); err != nil {
		return nil, err
	}
	if c.cut, err = compileSchema("cut.json", cutSchema()); err != nil {
		return nil, err
	}
	if c.enrich, err = compileSchema("enrich.json", enrichSchema()); err != nil {
		return nil, err
	}
	return c, nil
}

// Recognize asks the preprocess service to find tools in the raw image stored under rawKey.
// A 422 answer means nothing was recognized and yields ErrNoDetections.
func (c *Client) Recognize(ctx context.Context, rawKey string) (RecognizeResult, error) {
	var out RecognizeResult
	err := c.call(ctx, endpointRecognize, keyURL(c.cfg.PreprocessURL, "/recognize", rawKey), nil, c.recognize, &out)
	if err != nil {
		return RecognizeResult{}, err
	}
	if out.Results == nil {
		out.Results = map[string]RecognizedObject{}
	}
	return out, nil
}

// CutVideo asks the preprocess service to split the video stored under rawKey into frames.
func (c *Client) CutVideo(ctx context.Context, rawKey string) (CutResult, error) {
	var out CutResult
	err := c.call(ctx, endpointCut, keyURL(c.cfg.PreprocessURL, "/video/cut", rawKey), nil, c.cut, &out)
	if err != nil {
		return CutResult{}, err
	}
	if out.Status == "error" {
		return CutResult{}, common.NewAppError("INFERENCE_ERROR", "video cut failed: "+out.Message, common.ErrUnavailable)
	}
	return out, nil
}

// Enrich asks the inference service for the marking on a processed object. A nil marking
// means none was found.
func (c *Client) Enrich(ctx context.Context, req EnrichRequest) (*string, error) {
	if c.cfg.InferenceURL == "" {
		return nil, nil
	}
	var out EnrichResponse
	if err := c.call(ctx, endpointEnrich, c.cfg.InferenceURL+"/enrich", req, c.enrich, &out); err != nil {
		return nil, err
	}
	if out.Marking != nil && *out.Marking == "" {
		return nil, nil
	}
	return out.Marking, nil
}

func (c *Client) call(ctx context.Context, endpoint, target string, body any, schema *jsonschema.Schema, out any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordInferenceRequest(endpoint, time.Since(start), err)
	}()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	raw, code, err := postJSON(ctx, c.http, target, body, c.logger)
	if err != nil {
		return c.classify(ctx, endpoint, code, err)
	}
	if err := decodeValidated(schema, raw, out); err != nil {
		c.logger.Warn("inference.response.invalid", "endpoint", endpoint, "error", err)
		return common.NewAppError("INFERENCE_BAD_RESPONSE", endpoint+" returned an unexpected body", errors.Join(common.ErrInternal, err))
	}
	return nil
}

func (c *Client) classify(ctx context.Context, endpoint string, code int, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", endpoint, ctxErr)
	}
	var se *statusError
	if !errors.As(err, &se) {
		return common.NewAppError("INFERENCE_UNAVAILABLE", "cannot reach "+endpoint+" service", errors.Join(common.ErrUnavailable, err))
	}
	switch {
	case code == http.StatusUnprocessableEntity && endpoint == endpointRecognize:
		return ErrNoDetections
	case code >= 500:
		return common.NewAppError("INFERENCE_UNAVAILABLE", fmt.Sprintf("%s service failed with status %d", endpoint, code), errors.Join(common.ErrUnavailable, err))
	default:
		return common.NewAppError("INFERENCE_REJECTED", fmt.Sprintf("%s service rejected the request with status %d", endpoint, code), errors.Join(common.ErrInternal, err))
	}
}

func keyURL(base, path, key string) string {
	return base + path + "?" + url.Values{"key": {key}}.Encode()
}
