package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/genflow/internal/api"
	apiMiddleware "github.com/phrazzld/genflow/internal/api/middleware"
)

// setupRouter builds the HTTP routes and middleware chain.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(apiMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)

	generationHandler := api.NewGenerationHandler(app.generationService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.tokenValidator)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/generations/text-to-image", generationHandler.TextToImage)
		r.Post("/generations/image-to-video", generationHandler.ImageToVideo)
		r.Post("/generations/video-upscale", generationHandler.VideoUpscale)

		r.Get("/jobs", generationHandler.ListJobs)
		r.Get("/jobs/{id}", generationHandler.GetJob)
		r.Post("/jobs/{id}/cancel", generationHandler.CancelJob)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
