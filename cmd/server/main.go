package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-server/auth"
	"chat-server/infrastructure/ws"
	"chat-server/internal"
	"chat-server/queue"
	"chat-server/repositories"
	"chat-server/runtime"
	"chat-server/runtime/workers"
	"chat-server/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close included) runs
// before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := config.Logger()

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Storage & runtime wiring
	messageRepository := repositories.NewMessageRepository(db, log)
	groupRepository := repositories.NewGroupRepository(db)
	userRepository := repositories.NewUserRepository(db)
	offlineQueue := queue.NewOfflineQueue(db, log, config.SinkTimeout)

	registry := runtime.NewRegistry()
	hub := runtime.NewHub(log, registry, offlineQueue, config.DrainTimeout, config.PresenceBufferSize)
	router := runtime.NewRouter(log, registry, offlineQueue, messageRepository,
		groupRepository, userRepository, config.SinkTimeout)
	receipts := runtime.NewReceiptTracker(log, registry, messageRepository,
		groupRepository, config.SinkTimeout)
	typing := runtime.NewTypingBroadcaster(log, registry, groupRepository, config.SinkTimeout)

	// 4. Services
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	chatService := services.NewChatService(hub, router, receipts, typing,
		messageRepository, groupRepository)
	authService := services.NewAuthService(userRepository, tokens)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Background workers under supervision
	sup := workers.NewSupervisor(log)
	sup.Add(
		workers.NewPresenceWorker(log, hub, registry, userRepository, config.SinkTimeout),
		workers.NewMaintenanceWorker(log, db, registry, config.MaintenanceInterval),
	)
	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 7. HTTP server
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := ws.NewServer(log, chatService, authService, tokens,
		config.ConnectionBufferSize, config.HistoryLimit)
	httpServer := &http.Server{
		Addr:    address,
		Handler: server.Routes(),
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting chat server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
