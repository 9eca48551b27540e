package rest

import (
	domainSend "github.com/wafilter/wafilter/domains/send"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Send struct {
	Service domainSend.ISendUsecase
}

func InitRestSend(app fiber.Router, service domainSend.ISendUsecase) Send {
	rest := Send{Service: service}

	app.Post("/send/text", rest.SendText)
	app.Post("/send/media", rest.SendMedia)

	return rest
}

func (handler *Send) SendText(c *fiber.Ctx) error {
	var request domainSend.TextRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.SendText(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
		Results: response,
	})
}

func (handler *Send) SendMedia(c *fiber.Ctx) error {
	var request domainSend.MediaRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	response, err := handler.Service.SendMedia(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Media sent",
		Results: response,
	})
}
