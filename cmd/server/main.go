package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/auth"
	"chat-relay/contract"
	"chat-relay/infrastructure/httpapi"
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the function returns.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for HTTP and background workers.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	if config.JWTSecret != "" {
		auth.SetSigningKey([]byte(config.JWTSecret))
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, log, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	stats := observability.NewChatStats(log)

	if log.Enabled(ctx, slog.LevelDebug) && config.DebugPort > 0 {
		url := fmt.Sprintf("http://localhost:%d/inspect", config.DebugPort)
		log.Info("Debug Badger inspector available", "url", url)
		internal.StartDebugServer(db, config.DebugPort, internal.MessageMapper, stats.Provider)
	}

	// 3. Moderation (optional)
	var censor *moderation.Moderator
	if config.EnableModeration {
		charReplacement, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		data, err := runtime.NewCensoredLoader().LoadAll("censored")
		if err != nil {
			return exitRuntime, fmt.Errorf("censored words loading failed: %w", err)
		}
		moderator, err := moderation.NewModerator(data.Words, charReplacement, log)
		if err != nil {
			return exitRuntime, fmt.Errorf("moderator init failed: %w", err)
		}
		censor = &moderator
		log.Info("Moderation enabled", "words", len(data.Words), "languages", data.Languages)
	}

	// 4. Repositories, Supervision & Dispatchers
	messageRepository := repositories.NewMessageRepository(db, log)
	userRepository := repositories.NewUserRepository(db)
	defer func() {
		log.Info("Releasing message sequences...")
		_ = messageRepository.Close()
	}()

	sup := workers.NewSupervisor(log, config.RestartInterval)
	factory := func(room string, mailbox chan runtime.Command) contract.Worker {
		return runtime.NewRoomWorker(room, mailbox, runtime.RoomWorkerOptions{
			Store:        messageRepository,
			Censor:       censor,
			Stats:        stats,
			HistoryLimit: config.HistoryLimit,
			TypingTTL:    config.TypingTTL,
			SweepEvery:   config.SweepInterval,
			Log:          log,
		})
	}
	registry := runtime.NewRegistry(log, sup, factory, stats, config.RoomBufferSize)

	// 5. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	registry.Bind(ctx)

	// 6. Services & HTTP server
	chatService := services.NewChatService(registry, messageRepository, stats, log)
	authService := services.NewAuthService(userRepository, config.AuthTokenDuration, log)
	gateway := ws.NewGateway(ctx, authService, chatService, stats, log, config.ConnectionBufferSize)
	handlers := httpapi.NewHandlers(authService, chatService, stats, log)
	router := httpapi.SetupRouter(handlers, gateway, authService, log,
		log.Enabled(ctx, slog.LevelDebug))

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	// In-flight requests get a grace period; room dispatchers stop when the
	// signal context cancels and are awaited before the store closes.
	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Wait()
	log.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, log *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if log.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
