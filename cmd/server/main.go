package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rentora-system/config"
	"rentora-system/internal/database"
	"rentora-system/internal/gateway/handlers"
	"rentora-system/internal/gateway/middleware"
	"rentora-system/internal/notify"
	"rentora-system/internal/scheduler"
	availability "rentora-system/internal/services/availability/handler"
	catalog "rentora-system/internal/services/catalog/handler"
	rental "rentora-system/internal/services/rental/handler"
	"rentora-system/internal/utils"
	"rentora-system/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()
	zlog := logger.Must(logger.New())
	defer zlog.Sync()

	utils.SetJWTSecret(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)
	notifier := notify.New(cfg.Notify.WebhookURL, logger.Named(zlog, "notify"))

	availabilityHandler := availability.NewAvailabilityHandler(db, redisClient)
	catalogHandler := catalog.NewCatalogHandler(db, redisClient)
	rentalHandler := rental.NewRentalHandler(db, redisClient, notifier,
		logger.Named(zlog, "rental"), cfg.Rental.InternalDiscountRate)

	sched := scheduler.NewScheduler(db, notifier, logger.Named(zlog, "scheduler"), cfg.Scheduler.OverdueCron)
	sched.Start()
	defer sched.Stop()

	availabilityHTTP := handlers.NewAvailabilityHTTPHandler(availabilityHandler)
	catalogHTTP := handlers.NewCatalogHTTPHandler(catalogHandler)
	rentalHTTP := handlers.NewRentalHTTPHandler(rentalHandler)
	lostItemHTTP := handlers.NewLostItemHTTPHandler(rentalHandler)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// --- Public API Group ---
	public := r.Group("/api/v1")
	{
		if cfg.Auth.DevTokens {
			authHTTP := handlers.NewAuthHTTPHandler(db, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour)
			public.POST("/auth/token", authHTTP.IssueToken)
		}
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(middleware.JWTAuth())
	{
		items := protected.Group("/items")
		{
			items.GET("", catalogHTTP.ListItems)
			items.GET("/:id", catalogHTTP.GetItem)
			items.POST("", catalogHTTP.CreateItem)
			items.POST("/:id/adjust-stock", catalogHTTP.AdjustStock)
			items.POST("/:id/retire", catalogHTTP.RetireItem)
			items.POST("/:id/reactivate", catalogHTTP.ReactivateItem)
		}

		kits := protected.Group("/kits")
		{
			kits.GET("", catalogHTTP.ListKits)
			kits.GET("/:id", catalogHTTP.GetKit)
		}

		avail := protected.Group("/availability")
		{
			avail.GET("", availabilityHTTP.ListAvailability)
			avail.GET("/items/:id", availabilityHTTP.ItemAvailability)
			avail.GET("/kits/:id", availabilityHTTP.KitAvailability)
		}

		orders := protected.Group("/orders")
		{
			orders.POST("", rentalHTTP.CreateOrder)
			orders.GET("", rentalHTTP.ListOrders)
			orders.GET("/:id", rentalHTTP.GetOrder)
			orders.PUT("/:id/lines", rentalHTTP.UpdateOrderLines)
			orders.POST("/:id/approve", rentalHTTP.ApproveOrder)
			orders.POST("/:id/issue", rentalHTTP.IssueOrder)
			orders.POST("/:id/declare-return", rentalHTTP.DeclareReturn)
			orders.POST("/:id/checkin", rentalHTTP.CheckinOrder)
			orders.POST("/:id/cancel", rentalHTTP.CancelOrder)
		}

		lostItems := protected.Group("/lost-items")
		{
			lostItems.GET("", lostItemHTTP.ListLostItems)
			lostItems.GET("/:id", lostItemHTTP.GetLostItem)
			lostItems.POST("/:id/resolve", lostItemHTTP.ResolveLostItem)
			lostItems.POST("/:id/reopen", lostItemHTTP.ReopenLostItem)
		}
	}

	zlog.Info("server starting", zap.String("addr", cfg.Server.Addr))
	if err := r.Run(cfg.Server.Addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
