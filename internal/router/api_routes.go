package router

import (
	"datalabel-backend/internal/app"
	"datalabel-backend/internal/handlers"
	"datalabel-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAPIRoutes registers the /api and /ws routes
func SetupAPIRoutes(r *gin.Engine, c *app.ServiceContainer, localhostOnly *middleware.LocalhostOnly) {
	logger := c.Logger
	authMiddleware := middleware.NewAuthMiddleware(c.AuthService, logger)
	adminMiddleware := middleware.NewAdminAuthMiddleware(c.AdminTokens, logger)

	authHandler := handlers.NewAuthHandler(c.AuthService, logger)
	adminAuthHandler := handlers.NewAdminAuthHandler(c.Config.Admin, c.AdminTokens, logger)
	adminHandler := handlers.NewAdminHandler(c.UserService, c.Store, logger)
	userHandler := handlers.NewUserHandler(c.UserService, logger)
	taskHandler := handlers.NewTaskHandler(c.TaskService, c.UserService, logger)
	ledgerHandler := handlers.NewLedgerHandler(c.Store, c.SettlementService, logger)
	statisticsHandler := handlers.NewStatisticsHandler(c.Store, logger)
	uploadHandler := handlers.NewFileUploadHandler(c.Artifacts, c.Config.IPFS.Gateway, logger)
	wsHandler := handlers.NewWebSocketHandler(c.WebSocketPushService, c.AuthService, logger)

	api := r.Group("/api")
	{
		// ============ Wallet sign-in ============
		auth := api.Group("/auth")
		{
			auth.GET("/nonce", authHandler.NonceHandler)
			auth.POST("/login", authHandler.LoginHandler)
		}

		// ============ Admin ============
		admin := api.Group("/admin")
		{
			admin.POST("/login", adminAuthHandler.AdminLoginHandler)
			admin.GET("/totp/generate", localhostOnly.Restrict(), adminAuthHandler.GenerateTOTPSecretHandler)

			protected := admin.Group("")
			protected.Use(localhostOnly.Restrict(), adminMiddleware.RequireAdminAuth())
			{
				protected.GET("/users", adminHandler.ListUsersHandler)
				protected.PUT("/users/:wallet/role", adminHandler.SetUserRoleHandler)
				protected.GET("/settlements", adminHandler.ListSettlementsHandler)
			}
		}

		// ============ Users ============
		users := api.Group("/users")
		users.Use(authMiddleware.RequireAuth())
		{
			users.POST("", userHandler.CreateUserHandler)
			users.GET("", userHandler.GetUserHandler)
			users.PUT("/role", userHandler.SelectRoleHandler)
		}

		// ============ Tasks (public reads) ============
		api.GET("/tasks", authMiddleware.OptionalAuth(), taskHandler.ListTasksHandler)
		api.GET("/tasks/:id", taskHandler.GetTaskHandler)

		// ============ Tasks ============
		tasks := api.Group("/tasks")
		tasks.Use(authMiddleware.RequireAuth())
		{
			tasks.POST("", taskHandler.CreateTaskHandler)
			tasks.PATCH("/:id", taskHandler.UpdateTaskHandler)
			tasks.DELETE("/:id", taskHandler.DeleteTaskHandler)
			tasks.POST("/:id/accept", taskHandler.AcceptTaskHandler)
			tasks.POST("/:id/submissions", taskHandler.SubmitWorkHandler)
			tasks.GET("/:id/submissions", taskHandler.GetSubmissionHandler)
			tasks.POST("/:id/approve", taskHandler.ApproveTaskHandler)
			tasks.POST("/:id/reject", taskHandler.RejectTaskHandler)
			tasks.GET("/:id/instructions/:kind", taskHandler.InstructionHandler)
		}

		// ============ Ledger ============
		api.GET("/transactions", authMiddleware.RequireAuth(), ledgerHandler.ListTransactionsHandler)
		api.GET("/wallet/:address/balance", ledgerHandler.BalanceHandler)

		// ============ Artifacts ============
		api.POST("/artifacts", authMiddleware.RequireAuth(), uploadHandler.UploadImageHandler)

		// ============ Statistics ============
		api.GET("/statistics/overview", statisticsHandler.GetStatisticsHandler)
	}

	// ============ WebSocket ============
	r.GET("/ws", wsHandler.HandleWebSocket)
}
