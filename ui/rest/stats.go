package rest

import (
	"github.com/wafilter/wafilter/config"
	domainStats "github.com/wafilter/wafilter/domains/stats"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Stats struct {
	Service domainStats.IStatsUsecase
}

func InitRestStats(app fiber.Router, service domainStats.IStatsUsecase) Stats {
	rest := Stats{Service: service}

	app.Get("/stats", rest.Snapshot)
	app.Get("/events", rest.Events)

	return rest
}

func (handler *Stats) Snapshot(c *fiber.Ctx) error {
	snapshot, err := handler.Service.Snapshot(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Statistics retrieved",
		Results: snapshot,
	})
}

func (handler *Stats) Events(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", config.RecentEventsLimit)
	offset := c.QueryInt("offset", 0)
	kind := c.Query("event")

	page, err := handler.Service.Recent(c.UserContext(), limit, offset, kind)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Recent events retrieved",
		Results: page,
	})
}
