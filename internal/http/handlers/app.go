package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/jizizr/lobechat-image-plugin/internal/imagegen"
)

type App struct {
	Images   imagegen.Generator
	Validate *validator.Validate
}

func NewApp(images imagegen.Generator) *App {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return &App{Images: images, Validate: v}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type messageResponse struct {
	Message string `json:"message"`
}

func (a *App) message(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, messageResponse{Message: msg})
}
