package rest

import (
	"github.com/wafilter/wafilter/config"
	domainHistory "github.com/wafilter/wafilter/domains/history"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type History struct {
	Service domainHistory.IHistoryUsecase
}

func InitRestHistory(app fiber.Router, service domainHistory.IHistoryUsecase) History {
	rest := History{Service: service}

	app.Get("/messages", rest.Sources)
	app.Get("/messages/:source", rest.Messages)
	app.Delete("/messages/:source", rest.DeleteSource)
	app.Get("/media/:handle", rest.Media)

	return rest
}

func (handler *History) Sources(c *fiber.Ctx) error {
	sources, err := handler.Service.Sources(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sources retrieved",
		Results: sources,
	})
}

func (handler *History) Messages(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", config.MessagesPerSource)
	offset := c.QueryInt("offset", 0)

	page, err := handler.Service.Messages(c.UserContext(), c.Params("source"), limit, offset)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Messages retrieved",
		Results: page,
	})
}

func (handler *History) DeleteSource(c *fiber.Ctx) error {
	removed, err := handler.Service.DeleteSource(c.UserContext(), c.Params("source"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message history deleted",
		Results: map[string]any{
			"removed": removed,
		},
	})
}

func (handler *History) Media(c *fiber.Ctx) error {
	file, err := handler.Service.Media(c.UserContext(), c.Params("handle"))
	utils.PanicIfNeeded(err)

	if err := c.SendFile(file.Path); err != nil {
		return err
	}
	// SendFile derives the type from the extension; the index knows better.
	if file.Mime != "" {
		c.Response().Header.SetContentType(file.Mime)
	}
	return nil
}
