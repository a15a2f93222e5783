package hunyuan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"

	"github.com/jizizr/lobechat-image-plugin/internal/domain"
	"github.com/jizizr/lobechat-image-plugin/internal/imagegen"
	"github.com/jizizr/lobechat-image-plugin/internal/infra"
	"github.com/jizizr/lobechat-image-plugin/internal/tc3"
)

const (
	ActionSubmit = "SubmitHunyuanImageJob"
	ActionQuery  = "QueryHunyuanImageJob"

	// PollInterval and MaxPollAttempts bound a job wait to roughly 30s.
	PollInterval    = 500 * time.Millisecond
	MaxPollAttempts = 60

	unknownErrorMessage = "Unknown error"
)

// DefaultService is the Hunyuan endpoint identity used for signing.
var DefaultService = tc3.Service{
	Host:    "hunyuan.tencentcloudapi.com",
	Name:    "hunyuan",
	Region:  "ap-guangzhou",
	Version: "2023-09-01",
}

// JobStatus is the JobStatusCode reported by QueryHunyuanImageJob.
type JobStatus string

const (
	StatusWaiting   JobStatus = "1"
	StatusRunning   JobStatus = "2"
	StatusFailed    JobStatus = "4"
	StatusCompleted JobStatus = "5"
)

// Pending reports whether the job has not reached a terminal state yet.
func (s JobStatus) Pending() bool {
	return s == StatusWaiting || s == StatusRunning
}

// Options configures the Hunyuan job client.
type Options struct {
	// Endpoint defaults to https://<Service.Host>.
	Endpoint       string
	Service        tc3.Service
	HTTPClient     *http.Client
	Logger         *infra.Logger
	Clock          infra.Clock
	RequestTimeout time.Duration
}

// Client submits Hunyuan image jobs and polls them to completion.
type Client struct {
	endpoint   string
	signer     *tc3.Signer
	httpClient *http.Client
	logger     *infra.Logger
	clock      infra.Clock
}

// JobResult is the decoded state of a job from one query.
type JobResult struct {
	JobID         string
	Status        JobStatus
	StatusMsg     string
	ErrorCode     string
	ErrorMsg      string
	ResultImage   []string
	ResultDetails []string
	RevisedPrompt []string
	RequestID     string
}

type submitResponse struct {
	Response struct {
		JobID     string `json:"JobId"`
		RequestID string `json:"RequestId"`
	} `json:"Response"`
}

type queryRequest struct {
	JobID string `json:"JobId"`
}

type queryResponse struct {
	Response struct {
		JobStatusCode string   `json:"JobStatusCode"`
		JobStatusMsg  string   `json:"JobStatusMsg"`
		JobErrorCode  string   `json:"JobErrorCode"`
		JobErrorMsg   string   `json:"JobErrorMsg"`
		ResultImage   []string `json:"ResultImage"`
		ResultDetails []string `json:"ResultDetails"`
		RevisedPrompt []string `json:"RevisedPrompt"`
		RequestID     string   `json:"RequestId"`
	} `json:"Response"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	service := opts.Service
	if service == (tc3.Service{}) {
		service = DefaultService
	}
	endpoint := strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/")
	if endpoint == "" {
		endpoint = "https://" + service.Host
	}
	if parsed, err := url.Parse(endpoint); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("hunyuan: invalid endpoint %q", endpoint)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	clock := opts.Clock
	if clock == nil {
		clock = infra.SystemClock{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{
		endpoint:   endpoint,
		signer:     tc3.NewSigner(service, clock.Now),
		httpClient: httpClient,
		logger:     logger,
		clock:      clock,
	}, nil
}

// Generate submits req, waits for the job and assembles the result.
func (c *Client) Generate(ctx context.Context, cred tc3.Credential, req imagegen.Request) (*imagegen.Result, error) {
	if !cred.Valid() {
		return nil, fmt.Errorf("hunyuan: %w", domain.ErrSettingsMissing)
	}
	normalized := req.Normalize()
	jobID, err := c.Submit(ctx, cred, normalized)
	if err != nil {
		return nil, err
	}
	job, err := c.Wait(ctx, cred, jobID)
	if err != nil {
		return nil, err
	}
	urls := lo.Compact(job.ResultImage)
	if len(urls) == 0 {
		return nil, fmt.Errorf("hunyuan: job %s: %w", jobID, domain.ErrEmptyResult)
	}
	revised := lo.FirstOrEmpty(job.RevisedPrompt)
	if revised == "" {
		revised = normalized.Prompt
	}
	return &imagegen.Result{
		JobID:         jobID,
		ImageURLs:     urls,
		RevisedPrompt: revised,
		Request:       normalized,
	}, nil
}

// Submit creates a generation job and returns its id.
func (c *Client) Submit(ctx context.Context, cred tc3.Credential, req imagegen.Request) (string, error) {
	req = req.Normalize()
	if strings.TrimSpace(req.Prompt) == "" {
		return "", ErrPromptRequired
	}
	status, raw, err := c.post(ctx, cred, ActionSubmit, req)
	if err != nil {
		return "", err
	}
	if apiErr := embeddedError(ActionSubmit, status, raw); apiErr != nil {
		return "", apiErr
	}
	if status < 200 || status >= 300 {
		return "", &APIError{Action: ActionSubmit, StatusCode: status, Message: unknownErrorMessage}
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("hunyuan: decode submit response: %w: %w", ErrMissingJobID, err)
	}
	jobID := strings.TrimSpace(decoded.Response.JobID)
	if jobID == "" {
		return "", ErrMissingJobID
	}
	c.log(ctx).Info().
		Str("job_id", jobID).
		Str("request_id", decoded.Response.RequestID).
		Str("resolution", req.Resolution).
		Int("num", req.Num).
		Msg("hunyuan: job submitted")
	return jobID, nil
}

// Query fetches the current state of jobID once.
func (c *Client) Query(ctx context.Context, cred tc3.Credential, jobID string) (*JobResult, error) {
	status, raw, err := c.post(ctx, cred, ActionQuery, queryRequest{JobID: jobID})
	if err != nil {
		return nil, err
	}
	if apiErr := embeddedError(ActionQuery, status, raw); apiErr != nil {
		return nil, apiErr
	}
	if status < 200 || status >= 300 {
		return nil, &HTTPError{Action: ActionQuery, StatusCode: status, Body: strings.TrimSpace(string(raw))}
	}
	if !gjson.GetBytes(raw, "Response").IsObject() {
		return nil, ErrInvalidResponse
	}
	var decoded queryResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("hunyuan: decode query response: %w: %w", ErrInvalidResponse, err)
	}
	r := decoded.Response
	return &JobResult{
		JobID:         jobID,
		Status:        JobStatus(r.JobStatusCode),
		StatusMsg:     r.JobStatusMsg,
		ErrorCode:     r.JobErrorCode,
		ErrorMsg:      r.JobErrorMsg,
		ResultImage:   r.ResultImage,
		ResultDetails: r.ResultDetails,
		RevisedPrompt: r.RevisedPrompt,
		RequestID:     r.RequestID,
	}, nil
}

// Wait polls jobID every PollInterval until it completes, fails, or
// MaxPollAttempts queries have been issued. It never re-submits the job.
func (c *Client) Wait(ctx context.Context, cred tc3.Credential, jobID string) (*JobResult, error) {
	for attempt := 1; attempt <= MaxPollAttempts; attempt++ {
		job, err := c.Query(ctx, cred, jobID)
		if err != nil {
			return nil, err
		}
		c.log(ctx).Debug().
			Str("job_id", jobID).
			Int("attempt", attempt).
			Str("status", string(job.Status)).
			Str("status_msg", job.StatusMsg).
			Str("request_id", job.RequestID).
			Msg("hunyuan: job polled")

		switch {
		case job.Status == StatusCompleted:
			return job, nil
		case job.Status == StatusFailed:
			msg := job.ErrorMsg
			if msg == "" {
				msg = unknownErrorMessage
			}
			return nil, &JobError{JobID: jobID, Code: job.ErrorCode, Message: msg}
		case job.Status.Pending():
			if err := c.clock.Sleep(ctx, PollInterval); err != nil {
				return nil, fmt.Errorf("hunyuan: wait for job %s: %w", jobID, err)
			}
		default:
			return nil, fmt.Errorf("hunyuan: job %s reported %q: %w", jobID, job.Status, ErrUnknownStatus)
		}
	}
	return nil, fmt.Errorf("hunyuan: job %s unfinished after %d polls: %w", jobID, MaxPollAttempts, domain.ErrTimeout)
}

func (c *Client) post(ctx context.Context, cred tc3.Credential, action string, payload any) (int, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("hunyuan: encode %s request: %w", action, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("hunyuan: build request: %w", err)
	}
	httpReq.Header = c.signer.Headers(cred, action, body)
	httpReq.Host = c.signer.Service().Host

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("hunyuan: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("hunyuan: read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// embeddedError extracts Response.Error from raw, if present.
func embeddedError(action string, status int, raw []byte) *APIError {
	errNode := gjson.GetBytes(raw, "Response.Error")
	if !errNode.Exists() {
		return nil
	}
	msg := strings.TrimSpace(errNode.Get("Message").String())
	if msg == "" {
		msg = unknownErrorMessage
	}
	return &APIError{
		Action:     action,
		StatusCode: status,
		Code:       errNode.Get("Code").String(),
		Message:    msg,
		RequestID:  gjson.GetBytes(raw, "Response.RequestId").String(),
	}
}

func (c *Client) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return c.logger
}

var _ imagegen.Generator = (*Client)(nil)
