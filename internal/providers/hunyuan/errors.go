package hunyuan

import (
	"errors"
	"fmt"

	"github.com/jizizr/lobechat-image-plugin/internal/domain"
)

var (
	// ErrPromptRequired rejects a request whose prompt is empty or blank.
	ErrPromptRequired = errors.New("hunyuan: prompt is required")
	// ErrMissingJobID means the submit response carried no Response.JobId.
	ErrMissingJobID = fmt.Errorf("%w: submit response has no job id", domain.ErrProtocol)
	// ErrInvalidResponse means a response had no Response wrapper.
	ErrInvalidResponse = fmt.Errorf("%w: response wrapper missing", domain.ErrProtocol)
	// ErrUnknownStatus means the job reported a status code outside the documented set.
	ErrUnknownStatus = fmt.Errorf("%w: unknown job status", domain.ErrProtocol)
)

// APIError is an error object embedded in a Tencent Cloud API response, or a
// rejected submission.
type APIError struct {
	Action     string
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hunyuan: %s: %s (%s)", e.Action, e.Message, e.Code)
	}
	return fmt.Sprintf("hunyuan: %s: %s", e.Action, e.Message)
}

func (e *APIError) Is(target error) bool { return target == domain.ErrRemote }

// JobError reports a job that finished with the failed status.
type JobError struct {
	JobID   string
	Code    string
	Message string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("hunyuan: job %s failed: %s", e.JobID, e.Message)
}

func (e *JobError) Is(target error) bool { return target == domain.ErrJobFailed }

// HTTPError is a non-2xx response that carried no API error object.
type HTTPError struct {
	Action     string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("hunyuan: %s: status %d: %s", e.Action, e.StatusCode, e.Body)
}
