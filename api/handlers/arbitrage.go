package handlers

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundarb/internal/arbitrage"
)

type Finder interface {
	Find(ctx context.Context, q arbitrage.Query) (arbitrage.Page, error)
}

type ArbitrageHandler struct {
	finder Finder
}

func NewArbitrageHandler(finder Finder) *ArbitrageHandler {
	return &ArbitrageHandler{finder}
}

// Handles GET /arbitrage?page=&limit=&min=.
func (h *ArbitrageHandler) GetOpportunities(c fiber.Ctx) error {
	q := arbitrage.ParseQuery(c.Query("page"), c.Query("limit"), c.Query("min"))

	page, err := h.finder.Find(c.Context(), q)
	if err != nil {
		log.Error().Err(err).Msg("arbitrage query failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to compute arbitrage opportunities",
		})
	}

	log.Debug().
		Int("page", q.Page).
		Int("limit", q.Limit).
		Float64("min", q.Min).
		Int("total", page.Total).
		Msg("arbitrage query served")

	return c.Status(fiber.StatusOK).JSON(page)
}
