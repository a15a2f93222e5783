package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jizizr/lobechat-image-plugin/internal/http/handlers"
	httpapi "github.com/jizizr/lobechat-image-plugin/internal/http/httpapi"
	"github.com/jizizr/lobechat-image-plugin/internal/infra"
	"github.com/jizizr/lobechat-image-plugin/internal/middleware"
	"github.com/jizizr/lobechat-image-plugin/internal/providers/hunyuan"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	client, err := hunyuan.NewClient(hunyuan.Options{
		Endpoint:       cfg.HunyuanEndpoint,
		Logger:         &logger,
		Clock:          infra.SystemClock{},
		RequestTimeout: cfg.HunyuanHTTPTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build hunyuan client")
	}

	app := handlers.NewApp(client)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   middleware.ParseLocale(cfg.DefaultLocale),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("endpoint", cfg.HunyuanEndpoint).
			Str("region", hunyuan.DefaultService.Region).
			Msg("plugin API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPWriteTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
