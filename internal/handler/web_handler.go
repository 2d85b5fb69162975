package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"commission-web/internal/models"
	"commission-web/internal/service"
	"commission-web/internal/utils"
)

// WebHandler serves the browser-facing auth endpoints. Pages are guarded
// by the server-side session; the page scripts still use a bearer token
// for the JSON API, so login establishes both.
type WebHandler struct {
	authService *service.AuthService
	store       *session.Store
}

func NewWebHandler(authService *service.AuthService, store *session.Store) *WebHandler {
	return &WebHandler{
		authService: authService,
		store:       store,
	}
}

func (h *WebHandler) Login(c *fiber.Ctx) error {
	var req models.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	if _, err := h.authService.WebLogin(req, c, h.store); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, err.Error(), nil)
	}

	// Token for the page scripts talking to /api/v1.
	resp, err := h.authService.Login(req)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, err.Error(), nil)
	}
	return utils.SuccessResponse(c, "Login successful", resp)
}

func (h *WebHandler) Logout(c *fiber.Ctx) error {
	if err := h.authService.WebLogout(c, h.store); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to end session", err)
	}
	return c.Redirect("/login")
}

func (h *WebHandler) CurrentUser(c *fiber.Ctx) error {
	user, err := h.authService.GetCurrentUser(c, h.store)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Not logged in", nil)
	}
	return utils.SuccessResponse(c, "User retrieved", user)
}
