package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"commission-web/internal/config"
	"commission-web/internal/handler"
	"commission-web/internal/middleware"
	"commission-web/internal/repository"
	"commission-web/internal/service"
)

func Setup(app *fiber.App, db *sqlx.DB, redisClient *redis.Client, cfg *config.Config) {
	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"app":    cfg.AppName,
		})
	})

	// Web routes (HTML)
	store := session.New()
	authService := service.NewAuthService(repository.NewUserRepository(db), cfg)
	setupWebRoutes(app.Group(""), handler.NewWebHandler(authService, store), store)

	// API routes (JSON)
	api := app.Group("/api/v1")
	SetupAPIRoutes(api, db, redisClient, cfg)
}

func setupWebRoutes(router fiber.Router, webHandler *handler.WebHandler, store *session.Store) {
	router.Get("/login", middleware.GuestMiddleware(store), func(c *fiber.Ctx) error {
		return c.Render("auth/login", fiber.Map{
			"Title": "Login",
		})
	})
	router.Post("/login", webHandler.Login)
	router.Get("/logout", webHandler.Logout)
	router.Get("/session/user", webHandler.CurrentUser)

	pages := router.Group("", middleware.WebAuthMiddleware(store))

	pages.Get("/", func(c *fiber.Ctx) error {
		return c.Render("imports/index", fiber.Map{
			"Title": "Statement Imports",
		})
	})

	pages.Get("/imports", func(c *fiber.Ctx) error {
		return c.Render("imports/index", fiber.Map{
			"Title": "Statement Imports",
		})
	})

	pages.Get("/imports/new", func(c *fiber.Ctx) error {
		return c.Render("imports/new", fiber.Map{
			"Title": "Upload Statement",
		})
	})

	pages.Get("/imports/:id", func(c *fiber.Ctx) error {
		return c.Render("imports/detail", fiber.Map{
			"Title": "Import Detail",
		})
	})
}
