package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequirePrivileged ensures the caller is a request handler.
func RequirePrivileged() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if !actor.Privileged {
			return fiber.NewError(http.StatusForbidden, "handler role required")
		}
		return c.Next()
	}
}

// RequireActor ensures the caller is authenticated.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := ActorFromContext(c); !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		return c.Next()
	}
}
