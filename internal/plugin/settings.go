// Package plugin reads the per-request settings a LobeChat plugin gateway
// forwards and writes its error envelope.
package plugin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jizizr/lobechat-image-plugin/internal/domain"
	"github.com/jizizr/lobechat-image-plugin/internal/tc3"
)

// SettingsHeader carries the user's plugin settings as JSON.
const SettingsHeader = "X-Lobe-Plugin-Settings"

// ErrorType names the gateway error categories understood by the host.
type ErrorType string

const (
	ErrorSettingsInvalid ErrorType = "PluginSettingsInvalid"
)

// Settings are the user-provided plugin settings.
type Settings struct {
	TencentSecretID  string `json:"TENCENT_SECRET_ID"`
	TencentSecretKey string `json:"TENCENT_SECRET_KEY"`
}

// Credential returns the signing credential held by the settings.
func (s Settings) Credential() tc3.Credential {
	return tc3.Credential{
		SecretID:  strings.TrimSpace(s.TencentSecretID),
		SecretKey: strings.TrimSpace(s.TencentSecretKey),
	}
}

// SettingsError explains why the settings could not be used.
type SettingsError struct {
	Message string
}

func (e *SettingsError) Error() string { return "plugin: " + e.Message }

func (e *SettingsError) Is(target error) bool { return target == domain.ErrSettingsMissing }

// SettingsFromRequest decodes the settings header. A missing or malformed
// header and missing credential fields all report domain.ErrSettingsMissing.
func SettingsFromRequest(r *http.Request) (Settings, error) {
	raw := strings.TrimSpace(r.Header.Get(SettingsHeader))
	if raw == "" {
		return Settings{}, &SettingsError{Message: "Plugin settings not found."}
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Settings{}, &SettingsError{Message: "Plugin settings not found."}
	}
	if !s.Credential().Valid() {
		return Settings{}, &SettingsError{Message: "Tencent Cloud credentials are required."}
	}
	return s, nil
}

// ErrorResponse is the gateway error envelope.
type ErrorResponse struct {
	ErrorType ErrorType `json:"errorType"`
	Body      any       `json:"body"`
}

// StatusFor maps an error type to the HTTP status the gateway expects.
func StatusFor(t ErrorType) int {
	switch t {
	case ErrorSettingsInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes the envelope for errType with a message body.
func WriteError(w http.ResponseWriter, errType ErrorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(errType))
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		ErrorType: errType,
		Body:      map[string]string{"message": message},
	})
}
