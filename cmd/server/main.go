package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/sketchroom/internal/auth"
	"github.com/Tyrowin/sketchroom/internal/server"
	"github.com/Tyrowin/sketchroom/internal/store"
)

func main() {
	log.Println("Starting Sketchroom Server...")

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := server.NewConfigFromEnv()
	if config.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	db, err := store.Open(config.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	srv := server.New(config, db, auth.NewGate(config.JWTSecret))
	srv.StartHub()

	httpServer := server.CreateServer(config.Port, srv.SetupRoutes())
	go func() {
		if err := server.StartServer(httpServer); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// One operation so the HTTP listener stops before the hub and the store
	// closes last.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"sketchroom": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				if err := server.ShutdownServer(ctx, httpServer, config.ShutdownTimeout); err != nil {
					log.Printf("HTTP shutdown error: %v", err)
				}
				if err := srv.Shutdown(config.ShutdownTimeout); err != nil {
					log.Printf("Hub shutdown error: %v", err)
				}
				return db.Close()
			},
		},
	)

	exitCode := <-wait
	log.Printf("Server exited with code: %d", exitCode)
	os.Exit(exitCode)
}
