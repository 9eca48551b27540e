package middleware

import (
	"github.com/wafilter/wafilter/pkg/ipfilter"
	"github.com/wafilter/wafilter/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// IPAllowlist rejects requests whose client address is not on the list.
// A nil list disables the check entirely.
func IPAllowlist(list *ipfilter.Allowlist) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if list.Allowed(ctx.IP()) {
			return ctx.Next()
		}

		logrus.Warnf("[SECURITY] rejected request from %s to %s", ctx.IP(), ctx.Path())
		return ctx.Status(fiber.StatusForbidden).JSON(utils.ResponseData{
			Status:  403,
			Code:    "FORBIDDEN",
			Message: "address not allowed",
		})
	}
}
