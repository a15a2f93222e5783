package imagegen

import (
	"context"
	"strings"

	"github.com/jizizr/lobechat-image-plugin/internal/tc3"
)

const (
	DefaultResolution = "1024:1024"
	DefaultNum        = 1
	DefaultRevise     = 1
)

// ContentImage references a source image for image-to-image generation.
type ContentImage struct {
	ImageURL string `json:"ImageUrl" validate:"omitempty,url"`
}

// Request is the generation request accepted from the plugin host and
// forwarded to the remote job API. Field names follow the remote API.
type Request struct {
	Prompt         string        `json:"Prompt" validate:"required,notblank"`
	NegativePrompt string        `json:"NegativePrompt,omitempty"`
	Style          string        `json:"Style,omitempty"`
	Resolution     string        `json:"Resolution,omitempty"`
	Num            int           `json:"Num,omitempty" validate:"gte=0,lte=4"`
	Clarity        string        `json:"Clarity,omitempty"`
	ContentImage   *ContentImage `json:"ContentImage,omitempty"`
	Revise         *int          `json:"Revise,omitempty" validate:"omitempty,oneof=0 1"`
	Seed           *int          `json:"Seed,omitempty"`
}

// Normalize returns a copy with defaults applied: Resolution 1024:1024,
// Num 1 and Revise 1 when absent.
func (r Request) Normalize() Request {
	out := r
	if strings.TrimSpace(out.Resolution) == "" {
		out.Resolution = DefaultResolution
	}
	if out.Num <= 0 {
		out.Num = DefaultNum
	}
	if out.Revise == nil {
		revise := DefaultRevise
		out.Revise = &revise
	}
	if out.ContentImage != nil {
		img := *out.ContentImage
		out.ContentImage = &img
	}
	return out
}

// Result is a completed generation.
type Result struct {
	JobID         string
	ImageURLs     []string
	RevisedPrompt string
	// Request is the normalized request the job was submitted with.
	Request Request
}

// Generator runs a generation request to completion with the caller's credentials.
type Generator interface {
	Generate(ctx context.Context, cred tc3.Credential, req Request) (*Result, error)
}
