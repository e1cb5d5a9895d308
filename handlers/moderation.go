// handlers/moderation.go
package handlers

import (
	"pft-node-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupModerationRoutes(app *fiber.App, authService *services.AuthorizationService) {
	moderation := app.Group("/moderation")

	moderation.Post("/authorize", authService.HandleAuthorize)
	moderation.Post("/deauthorize", authService.HandleDeauthorize)
	moderation.Post("/flag", authService.HandleFlag)
	moderation.Post("/clear-flag", authService.HandleClearFlag)
	moderation.Get("/flag-status", authService.HandleFlagStatus)
	moderation.Get("/status/:address", authService.HandleAuthorizationStatus)
}
