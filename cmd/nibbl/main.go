// Nibbl - Household Dinner Planning Agent
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/nibbl/internal/api"
	"github.com/ashureev/nibbl/internal/config"
	"github.com/ashureev/nibbl/internal/conversation"
	"github.com/ashureev/nibbl/internal/domain"
	"github.com/ashureev/nibbl/internal/export"
	"github.com/ashureev/nibbl/internal/imessage"
	"github.com/ashureev/nibbl/internal/llm"
	"github.com/ashureev/nibbl/internal/middleware"
	"github.com/ashureev/nibbl/internal/orchestrator"
	"github.com/ashureev/nibbl/internal/picnic"
	"github.com/ashureev/nibbl/internal/planner"
	"github.com/ashureev/nibbl/internal/scheduler"
	"github.com/ashureev/nibbl/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting agent", "port", cfg.Port, "language", cfg.Language)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Sync the configured household roster into the store.
	for _, fm := range cfg.Family {
		member := domain.NewMember(fm.Name, fm.IMessageID, fm.Role)
		if err := repo.UpsertMember(context.Background(), member); err != nil {
			slog.Error("Failed to sync family member", "member", fm.Name, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Family roster synced", "members", len(cfg.Family))

	// iMessage plumbing: reader cursor resumes from the persisted position,
	// or starts at the current end of chat.db on first run.
	reader := imessage.NewReader(cfg.ChatDBPath)
	if saved, err := repo.GetState(context.Background(), store.StateKeyCursor); err != nil {
		slog.Error("Failed to load message cursor", "error", err)
		os.Exit(1)
	} else if saved != "" {
		rowID, err := strconv.ParseInt(saved, 10, 64)
		if err != nil {
			slog.Error("Corrupt message cursor", "value", saved, "error", err)
			os.Exit(1)
		}
		reader.SetLastRowID(rowID)
		slog.Info("Resumed message cursor", "last_rowid", rowID)
	} else {
		if err := reader.InitializeCursor(context.Background()); err != nil {
			slog.Warn("Could not initialize message cursor, starting at zero", "error", err)
		}
		slog.Info("Initialized message cursor", "last_rowid", reader.LastRowID())
	}

	handler := imessage.NewHandler(reader, imessage.NewSender(), cfg.SelfID, cfg.GroupChatID, cfg.SendGracePeriod)

	// LLM-backed components.
	claude := llm.NewClient(cfg.Anthropic.APIKey).WithTimeout(cfg.CapabilityTimeout)
	mealPlanner := planner.NewMealPlanner(claude, planner.Models{
		Planning:   cfg.Anthropic.PlanningModel,
		Extraction: cfg.Anthropic.ExtractionModel,
	})
	prefEngine := planner.NewPreferenceEngine(claude, cfg.Anthropic.ExtractionModel, repo)
	conv := conversation.NewManager(repo)

	// Picnic is optional: a failed login disables cart filling but never
	// blocks planning.
	var cart orchestrator.CartFiller
	if cfg.Picnic.Username != "" {
		picnicClient := picnic.NewClient(cfg.Picnic.Username, cfg.Picnic.Password, cfg.Picnic.CountryCode)
		if err := picnicClient.Login(context.Background()); err != nil {
			slog.Warn("Picnic login failed, cart filling disabled", "error", err)
		} else {
			cart = picnic.NewCartFiller(picnicClient, claude, cfg.Anthropic.ExtractionModel)
			slog.Info("Picnic connected")
		}
	} else {
		slog.Info("Picnic credentials not set, cart filling disabled")
	}

	var exporter orchestrator.Exporter
	if cfg.Export.Enabled {
		exporter = export.NewMarkdownExporter(cfg.Export, cfg.Language)
	}

	hub := api.NewEventHub()

	orch := orchestrator.New(orchestrator.Deps{
		Config:       cfg,
		Repo:         repo,
		Messenger:    handler,
		Planner:      mealPlanner,
		Preferences:  prefEngine,
		Conversation: conv,
		Cart:         cart,
		Exporter:     exporter,
		Events:       hub,
	})

	if err := orch.LoadActiveSession(context.Background()); err != nil {
		slog.Error("Failed to resume session", "error", err)
		os.Exit(1)
	}

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS)

	apiHandler := api.NewHandler(repo, orch)
	apiHandler.RegisterRoutes(r)
	r.Get("/ws/events", hub.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event stream connections stay open
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Weekly automatic trigger.
	sched := scheduler.New(cfg.Schedule, func(ctx context.Context) {
		if err := orch.StartSession(ctx, nil); err != nil {
			slog.Warn("Scheduled trigger skipped", "error", err)
		}
	})
	go sched.Start(ctx)

	go pollLoop(ctx, cfg, repo, handler, orch)

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Agent stopped successfully")
}

// pollLoop drives the agent: drain new messages, fire timed transitions,
// persist the cursor after each processed batch.
func pollLoop(ctx context.Context, cfg *config.Config, repo store.Repository, handler *imessage.Handler, orch *orchestrator.Orchestrator) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	persisted := handler.Reader().LastRowID()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, msg := range handler.Poll(ctx) {
			orch.HandleMessage(ctx, msg)
		}

		orch.CheckTimeouts(ctx)

		// The cursor also moves past skipped and undecodable records, so
		// persist on any movement, not just on handled messages.
		if cursor := handler.Reader().LastRowID(); cursor != persisted {
			if err := repo.SetState(ctx, store.StateKeyCursor, strconv.FormatInt(cursor, 10)); err != nil {
				slog.Error("Failed to persist message cursor", "error", err)
			} else {
				persisted = cursor
			}
		}
	}
}
