package main

import (
	"time"

	"github.com/greenloop/ecotrack/config"
	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/routes"
	"github.com/greenloop/ecotrack/services"
	"github.com/greenloop/ecotrack/store"
	"github.com/greenloop/ecotrack/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(&models.User{}, &models.Habit{}, &models.BadgeUnlock{}, &models.UsageDay{})

	st := store.New(db)
	hub := services.NewHub()
	manager := services.NewManager(st, hub.BroadcastSnapshot)
	// Drop sessions nobody has touched or watched for a while
	manager.StartReaper(5*time.Minute, 30*time.Minute)

	r := routes.SetupRouter(db, st, manager, hub)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
