package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-results-api/internal/config"
	"github.com/noah-isme/gema-results-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ResultHandler       *handler.ResultHandler
	AttemptHandler      *handler.AttemptHandler
	ScoreHandler        *handler.ScoreHandler
	ActivityHandler     *handler.ActivityHandler
	WrongNoteHandler    *handler.WrongNoteHandler
	GradingEventHandler *handler.GradingEventHandler
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
	InternalMiddleware  fiber.Handler
	MetricsHandler      fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.MetricsHandler != nil {
		app.Get("/metrics", deps.MetricsHandler)
	}
	if cfg.PDFOutputDir != "" {
		app.Static("/files", cfg.PDFOutputDir, fiber.Static{Browse: false})
	}

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	results := api.Group("/results", jwtMiddleware)
	exams := results.Group("/exams")
	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(exams)
	}
	if deps.AttemptHandler != nil {
		deps.AttemptHandler.Register(exams)
	}
	if deps.ScoreHandler != nil {
		deps.ScoreHandler.Register(exams)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(exams)
	}
	if deps.WrongNoteHandler != nil {
		deps.WrongNoteHandler.Register(results.Group("/wrong-notes"))
	}

	if deps.GradingEventHandler != nil && deps.InternalMiddleware != nil {
		deps.GradingEventHandler.Register(api.Group("/internal", deps.InternalMiddleware))
	}
}
