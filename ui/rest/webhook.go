package rest

import (
	"context"

	domainRouting "github.com/wafilter/wafilter/domains/routing"
	"github.com/wafilter/wafilter/infrastructure/webhook"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// WebhookReporter is the slice of the dispatcher the admin API needs:
// delivery health and the manual test shot.
type WebhookReporter interface {
	Health() webhook.HealthReport
	Test(ctx context.Context, entityType string) (webhook.Delivery, error)
}

type Webhook struct {
	Service    domainRouting.IRoutingUsecase
	Dispatcher WebhookReporter
}

func InitRestWebhook(app fiber.Router, service domainRouting.IRoutingUsecase, dispatcher WebhookReporter) Webhook {
	rest := Webhook{Service: service, Dispatcher: dispatcher}

	app.Get("/webhooks", rest.Settings)
	app.Put("/webhooks", rest.SetDefault)
	app.Put("/webhooks/secondary", rest.SetSecondary)
	app.Put("/webhooks/types", rest.SetTypeRoute)
	app.Post("/webhooks/test", rest.Test)

	return rest
}

func (handler *Webhook) Settings(c *fiber.Ctx) error {
	settings, err := handler.Service.WebhookSettings(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Webhook settings retrieved",
		Results: map[string]any{
			"settings": settings,
			"health":   handler.Dispatcher.Health(),
		},
	})
}

func (handler *Webhook) SetDefault(c *fiber.Ctx) error {
	var request domainRouting.SetWebhookRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.SetDefaultWebhook(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Default webhook updated",
	})
}

func (handler *Webhook) SetSecondary(c *fiber.Ctx) error {
	var request domainRouting.SetWebhookRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	err = handler.Service.SetSecondaryWebhook(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Secondary webhook updated",
	})
}

// SetTypeRoute sets or clears one per-type destination. An empty url removes
// the route.
func (handler *Webhook) SetTypeRoute(c *fiber.Ctx) error {
	var request domainRouting.SetTypeRouteRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	if request.URL == "" {
		err = handler.Service.DeleteTypeRoute(c.UserContext(), request.Type)
		utils.PanicIfNeeded(err)

		return c.JSON(utils.ResponseData{
			Status:  200,
			Code:    "SUCCESS",
			Message: "Webhook route removed",
		})
	}

	err = handler.Service.SetTypeRoute(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Webhook route updated",
	})
}

func (handler *Webhook) Test(c *fiber.Ctx) error {
	var request struct {
		EntityType string `json:"entityType"`
	}
	if len(c.Body()) > 0 {
		err := c.BodyParser(&request)
		utils.PanicIfNeeded(err)
	}

	delivery, testErr := handler.Dispatcher.Test(c.UserContext(), request.EntityType)
	results := fiber.Map{
		"delivered":   testErr == nil,
		"destination": delivery.Destination,
	}
	message := "Webhook test delivered"
	if testErr != nil {
		results["error"] = testErr.Error()
		message = "Webhook test failed"
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
		Results: results,
	})
}
