package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/jizizr/lobechat-image-plugin/internal/domain"
	"github.com/jizizr/lobechat-image-plugin/internal/imagegen"
	"github.com/jizizr/lobechat-image-plugin/internal/middleware"
	"github.com/jizizr/lobechat-image-plugin/internal/plugin"
	"github.com/jizizr/lobechat-image-plugin/internal/providers/hunyuan"
)

const maxRequestBody = 1 << 20

type generateResponse struct {
	MarkdownResponse string `json:"markdownResponse"`
}

// Generate runs one image job for the plugin gateway and replies with
// markdown. Credentials are read from the settings header for this request
// only.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	settings, err := plugin.SettingsFromRequest(r)
	if err != nil {
		a.settingsError(w, err)
		return
	}

	var req imagegen.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		a.message(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.message(w, http.StatusBadRequest, "Invalid request: "+describeValidation(err))
		return
	}

	res, err := a.Images.Generate(r.Context(), settings.Credential(), req)
	if err != nil {
		if errors.Is(err, domain.ErrSettingsMissing) {
			a.settingsError(w, err)
			return
		}
		status, msg := errorResponse(err)
		logger.Error().Err(err).Int("status", status).Msg("image generation failed")
		a.message(w, status, msg)
		return
	}

	logger.Info().
		Str("job_id", res.JobID).
		Int("images", len(res.ImageURLs)).
		Msg("image generated")
	a.json(w, http.StatusOK, generateResponse{
		MarkdownResponse: imagegen.BuildMarkdown(res, middleware.LocaleFromContext(r.Context())),
	})
}

func (a *App) settingsError(w http.ResponseWriter, err error) {
	msg := "Plugin settings not found."
	var se *plugin.SettingsError
	if errors.As(err, &se) {
		msg = se.Message
	}
	plugin.WriteError(w, plugin.ErrorSettingsInvalid, msg)
}

// errorResponse maps a generation failure to its HTTP status and message.
func errorResponse(err error) (int, string) {
	var (
		apiErr  *hunyuan.APIError
		jobErr  *hunyuan.JobError
		httpErr *hunyuan.HTTPError
	)
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Action == hunyuan.ActionQuery {
			return http.StatusBadRequest, "API Error during query: " + apiErr.Message
		}
		return http.StatusBadRequest, "API Error: " + apiErr.Message
	case errors.Is(err, hunyuan.ErrPromptRequired):
		return http.StatusBadRequest, "Invalid request: Prompt is required"
	case errors.As(err, &jobErr):
		return http.StatusBadRequest, "Image generation failed: " + jobErr.Message
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusRequestTimeout, "Image generation timed out."
	case errors.Is(err, hunyuan.ErrMissingJobID):
		return http.StatusInternalServerError, "Failed to get job ID from API response."
	case errors.Is(err, domain.ErrProtocol):
		return http.StatusInternalServerError, "Invalid response from API."
	case errors.Is(err, domain.ErrEmptyResult):
		return http.StatusInternalServerError, "No images were generated."
	case errors.As(err, &httpErr):
		return http.StatusInternalServerError, "Failed to generate image: API Error: " + httpErr.Body
	default:
		return http.StatusInternalServerError, "Failed to generate image: " + err.Error()
	}
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			parts = append(parts, fe.Field()+" is required")
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
