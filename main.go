package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wfunc/territory/config"
	"github.com/wfunc/territory/logger"
	"github.com/wfunc/territory/monitor"
	"github.com/wfunc/territory/persistence"
	"github.com/wfunc/territory/room"
	"github.com/wfunc/territory/rpc"
	"github.com/wfunc/territory/server"
	"github.com/wfunc/territory/services"
)

func openDatabase(cfg config.DatabaseConfig) (persistence.Database, error) {
	switch cfg.Driver {
	case "gorm":
		return persistence.NewGormPostgreSQL(cfg.Postgres.DSN())
	case "postgres":
		return persistence.NewPostgreSQL(cfg.Postgres.DSN())
	default:
		return persistence.NewMemory(), nil
	}
}

func main() {
	// .env is optional
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Init("info", false)
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()
	if envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		logger.Log.Warnf("Error loading .env file: %v", envErr)
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infof("Match history stored with the %s driver", cfg.Database.Driver)

	mon := monitor.NewMonitor("territory")
	mon.PublishExpvar()

	matches := services.NewMatchService(db, 128, mon)
	rooms := room.NewRoomManager(room.Options{
		Territories: cfg.Room.Territories,
		MaxPlayers:  cfg.Room.MaxPlayers,
		InboxSize:   cfg.Room.InboxSize,
		Observer:    mon,
		Recorder:    matches,
	}, cfg.Room.MaxRooms, cfg.Room.DefaultName)

	var rpcServer *rpc.Server
	if cfg.Server.RPCAddress != "" {
		rpcServer, err = rpc.NewServer(cfg.Server.RPCAddress)
		if err != nil {
			logger.Log.Fatalf("Failed to create RPC server: %v", err)
		}
	}

	gameServer := server.NewGameServer(cfg, server.Deps{
		Rooms:   rooms,
		Matches: matches,
		Monitor: mon,
		RPC:     rpcServer,
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- gameServer.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Log.Infof("Received %v, shutting down", sig)
	case err := <-errChan:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := gameServer.Shutdown(ctx); err != nil {
		logger.Log.Errorf("Shutdown incomplete: %v", err)
	}
	logger.Log.Info("Server exited")
}
