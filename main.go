package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"simonair-telemetry-service/config"
	"simonair-telemetry-service/internal"
	"simonair-telemetry-service/internal/services"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
)

const LOGO = `
   _____ ______  _______  _   _____    ________
  / ___//  _/  |/  / __ \/ | / /   |  /  _/ __ \
  \__ \ / // /|_/ / / / /  |/ / /| |  / // /_/ /
 ___/ // // /  / / /_/ / /|  / ___ |_/ // _, _/
/____/___/_/  /_/\____/_/ |_/_/  |_/___/_/ |_|

`

const SERVICENAME = "SIMONAIR Telemetry Service"
const VERSION = "v1.0.0"

func main() {
	fmt.Print(LOGO + SERVICENAME + " " + VERSION + "\n\n")

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	// Load the configuration
	cfg := config.LoadConfig()

	// Create a context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling to gracefully shut down on interrupt
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	// Create MQTT client
	log.Info("Setup MQTT Service")
	mqttClient, err := services.NewMqttClient(ctx, cfg.MQTT, log)
	if err != nil {
		log.Error("Error creating MQTT client", "error", err)
		os.Exit(1)
	}

	// Create Redis client
	log.Info("Setup Redis Service")
	redisClient, err := services.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Error("Error creating Redis client", "error", err)
		os.Exit(1)
	}

	// Create registry client
	log.Info("Setup Registry Service")
	registryClient := services.NewRegistryClient(cfg.Registry)

	// Start the service
	svc := internal.NewService(ctx, mqttClient, redisClient, registryClient, cfg, log)
	if err := svc.Start(); err != nil {
		log.Error("Error starting service", "error", err)
		os.Exit(1)
	}

	log.Info("Service started. Waiting for shutdown signal.")

	// Wait for context cancellation
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	svc.Close(shutdownCtx)
	services.DisconnectMQTTClient(mqttClient)
	log.Info("Shutting down service...")
}
