package rest

import (
	domainRouting "github.com/wafilter/wafilter/domains/routing"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type Routing struct {
	Service domainRouting.IRoutingUsecase
}

func InitRestRouting(app fiber.Router, service domainRouting.IRoutingUsecase) Routing {
	rest := Routing{Service: service}

	app.Get("/contacts", rest.Contacts)
	app.Post("/contacts", rest.AddContact)
	app.Put("/contacts/:phone", rest.UpdateContact)
	app.Delete("/contacts/:phone", rest.DeleteContact)

	app.Get("/groups", rest.Groups)
	app.Post("/groups", rest.AddGroup)
	app.Put("/groups/:id", rest.UpdateGroup)
	app.Delete("/groups/:id", rest.DeleteGroup)

	app.Get("/types", rest.CustomTypes)
	app.Put("/types", rest.SetCustomType)
	app.Delete("/types/:name", rest.DeleteCustomType)

	return rest
}

func (handler *Routing) Contacts(c *fiber.Ctx) error {
	contacts, err := handler.Service.Contacts(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Allowed contacts retrieved",
		Results: contacts,
	})
}

func (handler *Routing) AddContact(c *fiber.Ctx) error {
	var request domainRouting.AddContactRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	contact, err := handler.Service.AddContact(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Contact added to allow list",
		Results: contact,
	})
}

func (handler *Routing) UpdateContact(c *fiber.Ctx) error {
	var request domainRouting.UpdateContactRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	request.Phone = c.Params("phone")

	contact, err := handler.Service.UpdateContact(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Contact updated",
		Results: contact,
	})
}

func (handler *Routing) DeleteContact(c *fiber.Ctx) error {
	err := handler.Service.DeleteContact(c.UserContext(), c.Params("phone"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Contact removed from allow list",
	})
}

func (handler *Routing) Groups(c *fiber.Ctx) error {
	groups, err := handler.Service.Groups(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Allowed groups retrieved",
		Results: groups,
	})
}

func (handler *Routing) AddGroup(c *fiber.Ctx) error {
	var request domainRouting.AddGroupRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	group, err := handler.Service.AddGroup(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Group added to allow list",
		Results: group,
	})
}

func (handler *Routing) UpdateGroup(c *fiber.Ctx) error {
	var request domainRouting.UpdateGroupRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)
	request.ID = c.Params("id")

	group, err := handler.Service.UpdateGroup(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Group updated",
		Results: group,
	})
}

func (handler *Routing) DeleteGroup(c *fiber.Ctx) error {
	err := handler.Service.DeleteGroup(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Group removed from allow list",
	})
}

func (handler *Routing) CustomTypes(c *fiber.Ctx) error {
	types, err := handler.Service.CustomTypes(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Custom types retrieved",
		Results: types,
	})
}

func (handler *Routing) SetCustomType(c *fiber.Ctx) error {
	var request domainRouting.SetCustomTypeRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.SetCustomType(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Custom type saved",
	})
}

func (handler *Routing) DeleteCustomType(c *fiber.Ctx) error {
	err := handler.Service.DeleteCustomType(c.UserContext(), c.Params("name"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Custom type removed",
	})
}
