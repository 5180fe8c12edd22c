package inference

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

const (
	preprocessURL = "http://preprocess.test"
	inferenceURL  = "http://inference.test"
)

func setupHTTPMock(t *testing.T) {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := NewClient(Config{
		PreprocessURL: preprocessURL,
		InferenceURL:  inferenceURL,
		Timeout:       5 * time.Second,
	}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return c
}

func TestRecognize_Success(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/recognize\?key=raw%2Fphoto\.jpg$`,
		httpmock.NewStringResponder(http.StatusOK, `{
  "status": "ok",
  "results": {
    "processed/b.jpg": {"microClass": "Пассатижи", "confidence": 0.7},
    "processed/a.jpg": {"microClass": "Отвертка «-»", "confidence": 0.93, "bbox": [1, 2, 30, 40]}
  }
}`))

	c := newTestClient(t)
	res, err := c.Recognize(context.Background(), "raw/photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, []string{"processed/a.jpg", "processed/b.jpg"}, res.Keys())
	a := res.Results["processed/a.jpg"]
	assert.Equal(t, "Отвертка «-»", a.MicroClass)
	assert.InDelta(t, 0.93, a.Confidence, 1e-9)
	assert.Equal(t, []float64{1, 2, 30, 40}, a.BBox)
	assert.Empty(t, res.Results["processed/b.jpg"].BBox)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestRecognize_UnprocessableMeansNoDetections(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/recognize`,
		httpmock.NewStringResponder(http.StatusUnprocessableEntity, `{"detail":"nothing found"}`))

	c := newTestClient(t)
	_, err := c.Recognize(context.Background(), "raw/empty.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDetections)
}

func TestRecognize_StatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"bad_request", http.StatusBadRequest, common.ErrInternal},
		{"internal_server_error", http.StatusInternalServerError, common.ErrUnavailable},
		{"bad_gateway", http.StatusBadGateway, common.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupHTTPMock(t)
			httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/recognize`,
				httpmock.NewStringResponder(tt.status, `{}`))

			c := newTestClient(t)
			_, err := c.Recognize(context.Background(), "raw/x.png")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.NotErrorIs(t, err, ErrNoDetections)
		})
	}
}

func TestRecognize_SchemaMismatchRejected(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/recognize`,
		httpmock.NewStringResponder(http.StatusOK,
			`{"status":"ok","results":{"processed/a.jpg":{"microClass":"x","confidence":"high"}}}`))

	c := newTestClient(t)
	_, err := c.Recognize(context.Background(), "raw/x.png")
	require.Error(t, err)
	assert.Equal(t, "INFERENCE_BAD_RESPONSE", common.CodeOf(err))
}

func TestRecognize_ConnectionFailure(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/recognize`,
		httpmock.NewErrorResponder(errors.New("connection refused")))

	c := newTestClient(t)
	_, err := c.Recognize(context.Background(), "raw/x.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnavailable)
	assert.Equal(t, "INFERENCE_UNAVAILABLE", common.CodeOf(err))
}

func TestRecognize_CanceledContext(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/recognize`,
		httpmock.NewStringResponder(http.StatusOK, `{"results":{}}`))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestClient(t)
	_, err := c.Recognize(ctx, "raw/x.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCutVideo(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/video/cut\?key=raw%2Fclip\.mp4$`,
		httpmock.NewStringResponder(http.StatusOK,
			`{"status":"ok","results":{"frame_0":"raw/clip_0.jpg","frame_1":"raw/clip_1.jpg"},"size":2,"message":null}`))

	c := newTestClient(t)
	res, err := c.CutVideo(context.Background(), "raw/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Size)
	assert.Equal(t, "raw/clip_1.jpg", res.Results["frame_1"])
}

func TestCutVideo_ErrorStatusInBody(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", `=~^http://preprocess\.test/video/cut`,
		httpmock.NewStringResponder(http.StatusOK, `{"status":"error","results":{},"size":0,"message":"codec"}`))

	c := newTestClient(t)
	_, err := c.CutVideo(context.Background(), "raw/clip.mp4")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestEnrich(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", inferenceURL+"/enrich",
		func(req *http.Request) (*http.Response, error) {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			if string(body) != `{"raw_file_key":"raw/a.jpg","processed_file_key":"processed/a.jpg"}` {
				return httpmock.NewStringResponse(http.StatusBadRequest, ""), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{"marking":"AB-12"}`), nil
		})

	c := newTestClient(t)
	marking, err := c.Enrich(context.Background(), EnrichRequest{RawFileKey: "raw/a.jpg", ProcessedFileKey: "processed/a.jpg"})
	require.NoError(t, err)
	require.NotNil(t, marking)
	assert.Equal(t, "AB-12", *marking)
}

func TestEnrich_EmptyMarkingIsNil(t *testing.T) {
	setupHTTPMock(t)
	httpmock.RegisterResponder("POST", inferenceURL+"/enrich",
		httpmock.NewStringResponder(http.StatusOK, `{"marking":""}`))

	c := newTestClient(t)
	marking, err := c.Enrich(context.Background(), EnrichRequest{RawFileKey: "r", ProcessedFileKey: "p"})
	require.NoError(t, err)
	assert.Nil(t, marking)
}
