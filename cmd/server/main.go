package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bridgr/realtime/internal/server"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	cfg := server.NewConfigFromEnv()
	server.SetConfig(cfg)

	if cfg.RedisURL != "" {
		redisClient, err := server.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to create redis client: %v", err)
		}
		defer redisClient.Close()

		server.GetHub().SetMirror(server.NewPresenceMirror(redisClient))
		log.Println("Presence mirroring to Redis enabled")
	}

	server.StartHub()

	router := server.SetupRoutes()
	httpServer := server.CreateServer(cfg.Port, router)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		if err := server.ShutdownServer(httpServer, 10*time.Second); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}()

	if err := server.StartServer(httpServer); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	if err := server.GetHub().Shutdown(5 * time.Second); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
