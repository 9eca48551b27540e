package rest

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	domainEvents "github.com/wafilter/wafilter/domains/events"
	"github.com/wafilter/wafilter/engine"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// configSaveEvery is the ingress autosave safety net: one config flush per
// this many received events.
const configSaveEvery = 100

type EventRouter interface {
	Route(ctx context.Context, env domainEvents.Envelope) domainEvents.Result
}

type ConfigSaver interface {
	Save() error
}

// Filter is the inbound ingress for Baileys-style event payloads. It is
// registered outside the authenticated API group; upstream bridges post
// here directly.
type Filter struct {
	Router   EventRouter
	Config   ConfigSaver
	received uint64
}

func InitRestFilter(app fiber.Router, router EventRouter, saver ConfigSaver) *Filter {
	rest := &Filter{Router: router, Config: saver}

	app.Post("/filter", rest.Ingest)
	app.Post("/filter/:event", rest.Ingest)

	return rest
}

func (handler *Filter) Ingest(c *fiber.Ctx) error {
	raw := c.Body()
	if !json.Valid(raw) {
		return c.Status(400).JSON(utils.ResponseData{
			Status:  400,
			Code:    "VALIDATION_ERROR",
			Message: "body is not valid JSON",
		})
	}

	kind := domainEvents.MessagesUpsert
	if event := c.Params("event"); event != "" {
		kind = strings.ToUpper(strings.ReplaceAll(event, "-", "_"))
	} else if detected := engine.DetectKind(raw); detected != "" {
		kind = detected
	}

	// Fiber reuses the body buffer once the handler returns; the envelope
	// (and anything downstream that keeps the payload) needs its own copy.
	data := make([]byte, len(raw))
	copy(data, raw)

	result := handler.Router.Route(c.UserContext(), domainEvents.Envelope{
		Kind:     kind,
		Data:     data,
		Origin:   domainEvents.OriginIngress,
		Received: time.Now().UTC(),
	})
	if result.Err != nil {
		logrus.Debugf("[INGRESS] %s handled with error: %v", kind, result.Err)
	}

	if n := atomic.AddUint64(&handler.received, 1); n%configSaveEvery == 0 {
		if err := handler.Config.Save(); err != nil {
			logrus.Warnf("[INGRESS] periodic config save failed: %v", err)
		}
	}

	return c.JSON(fiber.Map{
		"status": "processed",
		"event":  kind,
	})
}
