package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"ve-ledger/bank"
	"ve-ledger/db"
	"ve-ledger/handlers"
	"ve-ledger/ledger"
	"ve-ledger/logger"
	"ve-ledger/repository"
	"ve-ledger/routers"
)

func main() {
	// Load config
	viper.SetConfigFile("config/config.yaml")
	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	appLogFile := viper.GetString("log.app_log_file")
	logLevel := viper.GetString("log.level")

	if err := logger.InitLogger(appLogFile, logLevel); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	logger.Logger.Info("Starting vote-escrow ledger server...")

	// Connect to LevelDB
	leveldbPath := viper.GetString("leveldb.path")
	ldb, err := db.NewLevelDB(leveldbPath)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	// Initialize repository and token bank over the same store
	repo := repository.NewLedgerRepository(ldb)
	tokenBank := bank.NewLevelBank(ldb)

	// Initialize the ledger service
	led := ledger.NewLedger(repo, tokenBank, viper.GetInt64("ledger.epoch_start"))

	// Initialize HTTP handlers
	h := handlers.NewHandler(led, tokenBank)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	// HTTP Server with panic recovery
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", viper.GetInt("server.port")),
		Handler: ghandlers.RecoveryHandler()(r),
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", viper.GetInt("server.port")))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	srv.Close()
}
