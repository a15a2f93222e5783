package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/jizizr/lobechat-image-plugin/internal/http/handlers"
	"github.com/jizizr/lobechat-image-plugin/internal/middleware"
)

// Options configures the middleware stack.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   language.Tag
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID(opts.Logger),
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger,
		middleware.CORS(opts.AllowedOrigins),
		middleware.Locale(opts.DefaultLocale),
	)

	// Health
	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		r.Post("/generate", app.Generate)
	})

	return r
}
