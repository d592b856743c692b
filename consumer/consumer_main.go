package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tnqbao/gau-property-media/config"
	"github.com/tnqbao/gau-property-media/consumer/worker"
	infraPkg "github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/repository"
	"github.com/tnqbao/gau-property-media/service"
)

func main() {
	err := godotenv.Load("../staging.env")
	if err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}

	cfg := config.NewConfig()
	infra := infraPkg.InitInfra(cfg)
	repo := repository.InitRepository(infra)
	pipeline := service.InitImagePipeline(cfg, infra, repo)

	// Initialize context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start Image Consumer (transcode + upload)
	imageConsumer := worker.NewImageConsumer(infra.RabbitMQ.Channel, infra, repo, cfg)
	if err := imageConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Image consumer: %v", err)
		log.Fatalf("Failed to start Image consumer: %v", err)
	}

	// Start Object Consumer (for async directory deletion)
	objectConsumer := worker.NewObjectConsumer(infra.RabbitMQ.Channel, infra, cfg)
	if err := objectConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Object consumer: %v", err)
		log.Fatalf("Failed to start Object consumer: %v", err)
	}

	// Start Batch Consumer (manifest write gate + sweeper)
	batchConsumer := worker.NewBatchConsumer(infra.RabbitMQ.Channel, infra, pipeline, cfg)
	if err := batchConsumer.Start(ctx); err != nil {
		infra.Logger.ErrorWithContextf(ctx, err, "Failed to start Batch consumer: %v", err)
		log.Fatalf("Failed to start Batch consumer: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	infra.Logger.InfoWithContextf(ctx, "Shutting down consumer...")
	cancel() // Cancel context to stop consumers

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := infra.Telemetry.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to flush telemetry: %v", err)
	}
	_ = infra.RabbitMQ.Close()

	infra.Logger.InfoWithContextf(shutdownCtx, "Consumer exited properly")
	_ = infra.Logger.Shutdown(shutdownCtx)
}
