package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/factunabo/factunabo-service/internal/api"
	"github.com/factunabo/factunabo-service/internal/config"
	"github.com/factunabo/factunabo-service/internal/database"
	"github.com/factunabo/factunabo-service/internal/services"
	"github.com/factunabo/factunabo-service/internal/transport"
)

func main() {
	// Cargar configuración
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	// Configurar logging
	logger := setupLogger(cfg)
	logger.Info("Starting FactuNabo service...")

	// Configurar modo de Gin
	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Abrir la base de datos y aplicar migraciones
	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatalf("Error connecting to database: %v", err)
	}
	defer db.Close()

	// Inicializar servicios
	processing := services.NewProcessingService(logger)
	historyService := services.NewHistoryService(db, processing, logger)
	sender := transport.NewHTTPSender(&cfg.API, logger)
	offlineService := services.NewOfflineService(db, sender, cfg.Queue.MaxRetries, logger)
	statsService := services.NewStatsService(db, cfg.Stats.CacheTTL, logger)

	// Inicializar API
	apiHandler := api.NewAPI(processing, historyService, offlineService, statsService, logger)

	// Configurar router
	router := setupRouter(apiHandler, db, cfg)

	// Crear servidor HTTP
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Drenado periódico de la cola offline
	drainCtx, stopDrain := context.WithCancel(context.Background())
	go runDrainLoop(drainCtx, offlineService, statsService, cfg, logger)

	// Canal para señales de terminación
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Iniciar servidor en goroutine
	go func() {
		logger.Infof("Server starting on %s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	// Esperar señal de terminación
	<-quit
	logger.Info("Shutting down server...")
	stopDrain()

	// Contexto con timeout para shutdown graceful
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// runDrainLoop reprocesa la cola offline cada DrainInterval hasta que
// el contexto se cancela
func runDrainLoop(ctx context.Context, offlineService *services.OfflineService, statsService *services.StatsService, cfg *config.Config, logger *logrus.Logger) {
	ticker := time.NewTicker(cfg.Queue.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := offlineService.GetTotalPending()
			if err != nil {
				logger.Errorf("Error checking pending queue items: %v", err)
				continue
			}
			if pending == 0 {
				continue
			}

			result, err := offlineService.Drain(ctx, cfg.Queue.DrainLimit)
			if err != nil {
				logger.Errorf("Error draining offline queue: %v", err)
				continue
			}
			if result.Processed > 0 {
				statsService.Invalidate()
			}
		}
	}
}

// setupLogger configura el logger según la configuración
func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// setupRouter configura el router principal
func setupRouter(apiHandler *api.API, db *database.DB, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Middleware global
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if err := db.HealthCheck(); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().UTC(),
			"service":   "factunabo-service",
		})
	})

	// API v1
	v1 := router.Group("/v1")
	{
		// Lotes de facturas
		v1.POST("/batches/validate", apiHandler.ValidateBatch)
		v1.POST("/batches/totals", apiHandler.CalculateTotals)
		v1.POST("/batches/invoices", apiHandler.AssembleInvoices)

		// Historial de envíos
		v1.POST("/history", apiHandler.RecordHistory)
		v1.GET("/history", apiHandler.GetHistory)
		v1.GET("/history/stats", apiHandler.GetHistoryStats)
		v1.GET("/history/companies", apiHandler.GetCompanies)
		v1.GET("/history/customers", apiHandler.GetCustomers)
		v1.POST("/history/pdf-paths", apiHandler.BackfillPDFPaths)
		v1.DELETE("/history", apiHandler.ClearHistory)

		// Panel
		v1.GET("/dashboard", apiHandler.GetDashboard)

		// Cola offline
		v1.POST("/queue", apiHandler.EnqueueItem)
		v1.POST("/queue/drain", apiHandler.DrainQueue)
		v1.GET("/queue/stats", apiHandler.GetQueueStats)
		v1.DELETE("/queue/sent", apiHandler.ClearSentItems)
	}

	return router
}
