package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"commission-web/internal/config"
	"commission-web/internal/handler"
	"commission-web/internal/middleware"
	"commission-web/internal/repository"
	"commission-web/internal/service"
	"commission-web/internal/utils"
)

func SetupAPIRoutes(
	router fiber.Router,
	db *sqlx.DB,
	redisClient *redis.Client,
	cfg *config.Config,
) {
	// Repositories
	userRepo := repository.NewUserRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	revenueRepo := repository.NewRevenueRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	mappingRepo := repository.NewMappingRepository(db)

	// Services
	authService := service.NewAuthService(userRepo, cfg)
	statementService := service.NewStatementService()
	orchestrator := service.NewImportOrchestrator(
		statementService,
		employeeRepo,
		revenueRepo,
		batchRepo,
		mappingRepo,
		utils.GetLogger(),
	)

	// Asynq client, only when Redis is available
	var asynqClient *asynq.Client
	if redisClient != nil {
		asynqClient = asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.AsynqRedisAddr,
			Password: cfg.AsynqRedisPassword,
			DB:       cfg.AsynqRedisDB,
		})
	}

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	importHandler := handler.NewImportHandler(batchRepo, orchestrator, statementService, asynqClient, redisClient, cfg)
	employeeHandler := handler.NewEmployeeHandler(employeeRepo, revenueRepo)
	mappingHandler := handler.NewMappingHandler(mappingRepo)

	// Public routes
	auth := router.Group("/auth")
	auth.Post("/login", authHandler.Login)
	auth.Post("/register", authHandler.Register)
	auth.Post("/logout", authHandler.Logout)

	// Protected routes
	protected := router.Group("", middleware.AuthMiddleware(cfg))

	protected.Get("/auth/me", authHandler.Me)

	// Statement import routes
	imports := protected.Group("/imports")
	imports.Post("/", importHandler.UploadStatement)
	imports.Get("/", importHandler.GetBatches)
	imports.Get("/:id", importHandler.GetBatchDetail)
	imports.Post("/:id/validate", importHandler.ValidateBatch)
	imports.Post("/:id/import", importHandler.RunImport)
	imports.Get("/:id/progress", importHandler.GetProgress)
	imports.Get("/:id/error-report", importHandler.DownloadErrorReport)

	// Employee directory routes
	employees := protected.Group("/employees")
	employees.Get("/", employeeHandler.GetEmployees)
	employees.Get("/:id/entries", employeeHandler.GetEmployeeEntries)

	// Code table administration, admins only
	mappings := protected.Group("/mappings", middleware.AdminOnly())
	mappings.Post("/categories", mappingHandler.CreateCategoryMapping)
	mappings.Post("/provision-types", mappingHandler.CreateProvisionTypeMapping)
}
