package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suwandre/fundarb/api/handlers"
)

func SetupRoutes(app *fiber.App, finder handlers.Finder, sched handlers.StateReporter) {
	arbitrageHandler := handlers.NewArbitrageHandler(finder)
	healthHandler := handlers.NewHealthHandler(sched)

	app.Get("/arbitrage", arbitrageHandler.GetOpportunities)
	app.Get("/healthz", healthHandler.GetHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
