package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/jizizr/lobechat-image-plugin/internal/domain"
	"github.com/jizizr/lobechat-image-plugin/internal/imagegen"
	"github.com/jizizr/lobechat-image-plugin/internal/middleware"
	"github.com/jizizr/lobechat-image-plugin/internal/plugin"
	"github.com/jizizr/lobechat-image-plugin/internal/providers/hunyuan"
	"github.com/jizizr/lobechat-image-plugin/internal/tc3"
)

const validSettings = `{"TENCENT_SECRET_ID":"AKIDtest","TENCENT_SECRET_KEY":"secret-test"}`

type stubGenerator struct {
	res   *imagegen.Result
	err   error
	calls int
	cred  tc3.Credential
	req   imagegen.Request
}

func (s *stubGenerator) Generate(ctx context.Context, cred tc3.Credential, req imagegen.Request) (*imagegen.Result, error) {
	s.calls++
	s.cred = cred
	s.req = req
	return s.res, s.err
}

// instantClock never blocks so full poll windows run instantly.
type instantClock struct{ sleeps atomic.Int32 }

func (c *instantClock) Now() time.Time { return time.Unix(1700000000, 0) }

func (c *instantClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps.Add(1)
	return ctx.Err()
}

func doGenerate(t *testing.T, h http.Handler, settings, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if settings != "" {
		req.Header.Set(plugin.SettingsHeader, settings)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func stack(app *App) http.Handler {
	return middleware.Locale(language.Chinese)(http.HandlerFunc(app.Generate))
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}

func TestGenerateReturnsMarkdown(t *testing.T) {
	gen := &stubGenerator{res: &imagegen.Result{
		JobID:         "job-1",
		ImageURLs:     []string{"https://img/1.png"},
		RevisedPrompt: "a cat",
		Request:       imagegen.Request{Prompt: "a cat", Resolution: "1024:1024"},
	}}
	rec := doGenerate(t, stack(NewApp(gen)), validSettings, `{"Prompt":"a cat"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "![Generated Image](https://img/1.png)\n*提示词: a cat*\n*分辨率: 1024:1024*", body.MarkdownResponse)
	assert.Equal(t, "AKIDtest", gen.cred.SecretID)
	assert.Equal(t, "a cat", gen.req.Prompt)
}

func TestGenerateUsesEnglishLabels(t *testing.T) {
	gen := &stubGenerator{res: &imagegen.Result{
		ImageURLs: []string{"https://img/1.png"},
		Request:   imagegen.Request{Prompt: "a cat", Resolution: "768:768"},
	}}
	rec := doGenerate(t, stack(NewApp(gen)), validSettings, `{"Prompt":"a cat"}`, "Accept-Language", "en-US")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "*Resolution: 768:768*")
}

func TestGenerateRejectsMissingSettings(t *testing.T) {
	gen := &stubGenerator{}
	tests := []struct {
		name     string
		settings string
		message  string
	}{
		{"absent", "", "Plugin settings not found."},
		{"malformed", "{not json", "Plugin settings not found."},
		{"empty key", `{"TENCENT_SECRET_ID":"id"}`, "Tencent Cloud credentials are required."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doGenerate(t, stack(NewApp(gen)), tt.settings, `{"Prompt":"a cat"}`)

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			var body struct {
				ErrorType string            `json:"errorType"`
				Body      map[string]string `json:"body"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "PluginSettingsInvalid", body.ErrorType)
			assert.Equal(t, tt.message, body.Body["message"])
		})
	}
	assert.Zero(t, gen.calls)
}

func TestGenerateRejectsInvalidBody(t *testing.T) {
	gen := &stubGenerator{}
	app := NewApp(gen)

	rec := doGenerate(t, stack(app), validSettings, `{"Prompt":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body.", decodeMessage(t, rec))

	rec = doGenerate(t, stack(app), validSettings, `{"Style":"riman"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "Prompt is required")

	rec = doGenerate(t, stack(app), validSettings, `{"Prompt":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "Prompt is required")

	rec = doGenerate(t, stack(app), validSettings, `{"Prompt":"x","Num":9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "Num failed lte")

	assert.Zero(t, gen.calls)
}

func TestErrorResponseMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"submit api error", &hunyuan.APIError{Action: hunyuan.ActionSubmit, Message: "quota exceeded"}, 400, "API Error: quota exceeded"},
		{"query api error", &hunyuan.APIError{Action: hunyuan.ActionQuery, Message: "job not found"}, 400, "API Error during query: job not found"},
		{"blank prompt", hunyuan.ErrPromptRequired, 400, "Invalid request: Prompt is required"},
		{"job failed", &hunyuan.JobError{JobID: "j", Message: "content rejected"}, 400, "Image generation failed: content rejected"},
		{"timeout", fmt.Errorf("wrap: %w", domain.ErrTimeout), 408, "Image generation timed out."},
		{"missing job id", hunyuan.ErrMissingJobID, 500, "Failed to get job ID from API response."},
		{"missing wrapper", hunyuan.ErrInvalidResponse, 500, "Invalid response from API."},
		{"unknown status", fmt.Errorf("job: %w", hunyuan.ErrUnknownStatus), 500, "Invalid response from API."},
		{"empty result", fmt.Errorf("job: %w", domain.ErrEmptyResult), 500, "No images were generated."},
		{"query http error", &hunyuan.HTTPError{Action: hunyuan.ActionQuery, StatusCode: 502, Body: "bad gateway"}, 500, "Failed to generate image: API Error: bad gateway"},
		{"network", errors.New("dial tcp: refused"), 500, "Failed to generate image: dial tcp: refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := errorResponse(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, msg)
		})
	}
}

func TestGenerateWritesMappedError(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("hunyuan: %w", domain.ErrTimeout)}
	rec := doGenerate(t, stack(NewApp(gen)), validSettings, `{"Prompt":"a cat"}`)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "Image generation timed out.", decodeMessage(t, rec))
}

func TestGenerateLogsWithoutSecret(t *testing.T) {
	var buf strings.Builder
	logger := zerolog.New(&buf)
	gen := &stubGenerator{err: &hunyuan.APIError{Action: hunyuan.ActionSubmit, Message: "AuthFailure"}}

	h := middleware.RequestID(logger)(stack(NewApp(gen)))
	rec := doGenerate(t, h, validSettings, `{"Prompt":"a cat"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, buf.String(), "image generation failed")
	assert.NotContains(t, buf.String(), "secret-test")
}

// hunyuanStub answers Submit and Query the way the remote does.
type hunyuanStub struct {
	submit  string
	query   func(n int32) string
	queries atomic.Int32
	lastReq atomic.Value
}

func (s *hunyuanStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.Header.Get("X-TC-Action") {
	case hunyuan.ActionSubmit:
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		s.lastReq.Store(payload)
		_, _ = w.Write([]byte(s.submit))
	case hunyuan.ActionQuery:
		n := s.queries.Add(1)
		_, _ = w.Write([]byte(s.query(n)))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newEndToEnd(t *testing.T, stub *hunyuanStub) (http.Handler, *instantClock) {
	t.Helper()
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	clock := &instantClock{}
	client, err := hunyuan.NewClient(hunyuan.Options{Endpoint: srv.URL, Clock: clock})
	require.NoError(t, err)
	return stack(NewApp(client)), clock
}

const submitOK = `{"Response":{"JobId":"job-42","RequestId":"r1"}}`

func TestGenerateEndToEndCompletes(t *testing.T) {
	stub := &hunyuanStub{submit: submitOK, query: func(n int32) string {
		if n < 3 {
			return `{"Response":{"JobStatusCode":"2","RequestId":"r"}}`
		}
		return `{"Response":{"JobStatusCode":"5","ResultImage":["https://cdn/img.png"],"RevisedPrompt":["a fluffy cat"],"RequestId":"r"}}`
	}}
	h, clock := newEndToEnd(t, stub)

	rec := doGenerate(t, h, validSettings, `{"Prompt":"a cat"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body generateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.MarkdownResponse, "![Generated Image](https://cdn/img.png)"))
	assert.Contains(t, body.MarkdownResponse, "*分辨率: 1024:1024*")
	assert.Contains(t, body.MarkdownResponse, "a fluffy cat")
	assert.EqualValues(t, 3, stub.queries.Load())
	assert.EqualValues(t, 2, clock.sleeps.Load())

	payload := stub.lastReq.Load().(map[string]any)
	assert.Equal(t, "1024:1024", payload["Resolution"])
}

func TestGenerateEndToEndTimesOut(t *testing.T) {
	stub := &hunyuanStub{submit: submitOK, query: func(int32) string {
		return `{"Response":{"JobStatusCode":"1","RequestId":"r"}}`
	}}
	h, _ := newEndToEnd(t, stub)

	rec := doGenerate(t, h, validSettings, `{"Prompt":"a cat"}`)

	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
	assert.Equal(t, "Image generation timed out.", decodeMessage(t, rec))
	assert.EqualValues(t, hunyuan.MaxPollAttempts, stub.queries.Load())
}

func TestGenerateEndToEndMissingJobID(t *testing.T) {
	stub := &hunyuanStub{submit: `{"Response":{"RequestId":"r1"}}`, query: func(int32) string {
		return `{"Response":{"JobStatusCode":"5","ResultImage":["https://cdn/img.png"]}}`
	}}
	h, _ := newEndToEnd(t, stub)

	rec := doGenerate(t, h, validSettings, `{"Prompt":"a cat"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to get job ID from API response.", decodeMessage(t, rec))
	assert.Zero(t, stub.queries.Load())
}

func TestGenerateEndToEndBlankPromptNeverReachesRemote(t *testing.T) {
	stub := &hunyuanStub{submit: submitOK, query: func(int32) string {
		return `{"Response":{"JobStatusCode":"5","ResultImage":["https://cdn/img.png"]}}`
	}}
	h, _ := newEndToEnd(t, stub)

	rec := doGenerate(t, h, validSettings, `{"Prompt":" \n\t "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeMessage(t, rec), "Prompt is required")
	assert.Nil(t, stub.lastReq.Load())
	assert.Zero(t, stub.queries.Load())
}

func TestGenerateEndToEndEmptyResult(t *testing.T) {
	stub := &hunyuanStub{submit: submitOK, query: func(int32) string {
		return `{"Response":{"JobStatusCode":"5","ResultImage":[]}}`
	}}
	h, _ := newEndToEnd(t, stub)

	rec := doGenerate(t, h, validSettings, `{"Prompt":"a cat"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "No images were generated.", decodeMessage(t, rec))
	assert.NotContains(t, rec.Body.String(), "![")
}
