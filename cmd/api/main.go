package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/veselinppetkov/orders-app-sub000/internal/cloud"
	"github.com/veselinppetkov/orders-app-sub000/internal/config"
	"github.com/veselinppetkov/orders-app-sub000/internal/database"
	"github.com/veselinppetkov/orders-app-sub000/internal/eventbus"
	"github.com/veselinppetkov/orders-app-sub000/internal/handler"
	"github.com/veselinppetkov/orders-app-sub000/internal/history"
	"github.com/veselinppetkov/orders-app-sub000/internal/lifecycle"
	"github.com/veselinppetkov/orders-app-sub000/internal/localstore"
	"github.com/veselinppetkov/orders-app-sub000/internal/model"
	"github.com/veselinppetkov/orders-app-sub000/internal/module"
	"github.com/veselinppetkov/orders-app-sub000/internal/state"
	"github.com/veselinppetkov/orders-app-sub000/internal/websocket"
)

func main() {
	cfg := config.Load()
	log := buildLogger(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	// Cloud tier.
	db, err := database.NewConnection(cfg.DSN(), log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	log.Info("connected to PostgreSQL")

	// Local tier. A broken SQLite file degrades to in-memory so the process
	// still serves reads.
	var kv localstore.DurableKV
	if err := os.MkdirAll(filepath.Dir(cfg.LocalStorePath), 0o755); err != nil {
		log.Warn("local store dir failed", zap.Error(err))
	}
	sqlite, err := localstore.OpenSQLite(cfg.LocalStorePath)
	if err != nil {
		log.Error("local store unavailable, falling back to memory", zap.Error(err))
		kv = localstore.NewMemoryKV()
	} else {
		kv = sqlite
	}
	defer func() { _ = kv.Close() }()
	local := localstore.NewPersistence(kv, log)

	bus := eventbus.New(log)
	defer bus.Destroy()
	st := state.New(log)
	hydrate(st, local, log)

	gateway := cloud.New(db, []byte(cfg.JWTSecret), log)

	deps := module.Deps{Bus: bus, State: st, Local: local, Cloud: gateway, Log: log}
	orders := module.NewOrders(deps)
	clients := module.NewClients(deps)
	expenses := module.NewExpenses(deps)
	inventory := module.NewInventory(deps)
	settings := module.NewSettings(deps)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 15*time.Second)
	settings.Reload(bootCtx)
	cancelBoot()

	undoLog := history.New(bus, st, local, log)
	defer undoLog.Close()

	guard := lifecycle.New(bus, st, local, log, lifecycle.Options{
		ExportDir:        cfg.ExportDir,
		AutosaveDebounce: time.Duration(cfg.AutosaveDebounceSec) * time.Second,
	})
	guard.Start()

	// WebSocket event stream.
	wsHub := websocket.NewHub(log)
	wsHub.AttachBus(bus)
	go wsHub.Run()

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, []byte(cfg.JWTSecret))
	})

	root := router.Group("")
	handler.NewOrderHandler(orders).RegisterRoutes(root)
	handler.NewClientHandler(clients).RegisterRoutes(root)
	handler.NewExpenseHandler(expenses).RegisterRoutes(root)
	handler.NewInventoryHandler(inventory).RegisterRoutes(root)
	handler.NewSettingsHandler(settings).RegisterRoutes(root)
	handler.NewHistoryHandler(undoLog, guard).RegisterRoutes(root)
	handler.NewImageHandler(gateway).RegisterRoutes(root)
	handler.NewSystemHandler(gateway, local, st, handler.ModuleSet{
		Orders:    orders,
		Clients:   clients,
		Expenses:  expenses,
		Inventory: inventory,
		Settings:  settings,
	}).RegisterRoutes(root)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Flush everything before the process dies.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	guard.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	log.Info("bye")
}

// hydrate seeds state from the local tier so the process serves data before
// the first cloud round-trip.
func hydrate(st *state.Store, local *localstore.Persistence, log *zap.Logger) {
	if monthly, err := local.LoadMonthlyData(); err != nil {
		log.Warn("monthlyData hydrate failed", zap.Error(err))
	} else if len(monthly) > 0 {
		_ = st.Set(state.KeyMonthlyData, monthly)
	}
	if clients, err := local.LoadClientsData(); err != nil {
		log.Warn("clientsData hydrate failed", zap.Error(err))
	} else if len(clients) > 0 {
		_ = st.Set(state.KeyClientsData, clients)
	}
	if inv, err := local.LoadInventory(); err != nil {
		log.Warn("inventory hydrate failed", zap.Error(err))
	} else if len(inv) > 0 {
		_ = st.Set(state.KeyInventory, inv)
	}
	if settings, err := local.LoadSettings(); err != nil {
		log.Warn("settings hydrate failed", zap.Error(err))
	} else if settings != nil {
		_ = st.Set(state.KeySettings, settings)
	}
	if month, err := local.LoadCurrentMonth(); err == nil && model.ValidMonthKey(month) {
		_ = st.Set(state.KeyCurrentMonth, month)
	}
	if months, err := local.LoadAvailableMonths(); err == nil && len(months) > 0 {
		_ = st.Set(state.KeyAvailableMonths, months)
	}
}

func buildLogger(level string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
