package rest

import (
	domainConnection "github.com/wafilter/wafilter/domains/connection"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Connection struct {
	Service domainConnection.IConnectionUsecase
}

func InitRestConnection(app fiber.Router, service domainConnection.IConnectionUsecase) Connection {
	rest := Connection{Service: service}

	app.Get("/connection", rest.Status)
	app.Get("/connection/qr", rest.QR)
	app.Post("/connection/reconnect", rest.Reconnect)
	app.Post("/connection/logout", rest.Logout)

	return rest
}

func (handler *Connection) Status(c *fiber.Ctx) error {
	status, err := handler.Service.Status(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Connection status retrieved",
		Results: status,
	})
}

func (handler *Connection) QR(c *fiber.Ctx) error {
	path, err := handler.Service.QRImage(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.SendFile(path)
}

func (handler *Connection) Reconnect(c *fiber.Ctx) error {
	err := handler.Service.Reconnect(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reconnect requested",
	})
}

func (handler *Connection) Logout(c *fiber.Ctx) error {
	err := handler.Service.Logout(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Logged out, session wiped",
	})
}
