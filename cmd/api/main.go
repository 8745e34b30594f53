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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"

	_ "github.com/bizmatters/plc-copilot/context-engine/docs" // swagger docs
	"github.com/bizmatters/plc-copilot/context-engine/internal/auth"
	"github.com/bizmatters/plc-copilot/context-engine/internal/config"
	"github.com/bizmatters/plc-copilot/context-engine/internal/conversation"
	"github.com/bizmatters/plc-copilot/context-engine/internal/extraction"
	"github.com/bizmatters/plc-copilot/context-engine/internal/gateway"
	"github.com/bizmatters/plc-copilot/context-engine/internal/llm"
	"github.com/bizmatters/plc-copilot/context-engine/internal/metrics"
	"github.com/bizmatters/plc-copilot/context-engine/internal/notify"
)

// @title PLC Copilot Context Engine API
// @version 1.0
// @description Conversation engine that turns operator messages and uploaded documents
// @description into a structured PLC project context, then drives code generation and refinement.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

func main() {
	v := config.New()
	cfg, err := config.Load(v)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var logLevel slog.LevelVar
	level, _ := config.ParseLevel(cfg.Logging.Level)
	logLevel.Set(level)
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel})))
	config.WatchLogLevel(v, &logLevel)

	tp, err := initTracer()
	if err != nil {
		slog.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = connectDatabase(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database after retries", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
	}

	turnMetrics, err := metrics.NewTurnMetrics()
	if err != nil {
		slog.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	notifiers := notify.Fanout{notify.NewLogNotifier(slog.Default())}
	var operators gateway.Authenticator
	if pool != nil {
		ledger := notify.NewPostgresNotifier(pool)
		if err := ledger.EnsureSchema(context.Background()); err != nil {
			slog.Error("failed to prepare incident ledger", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, ledger)

		if err := auth.EnsureOperatorSchema(context.Background(), pool); err != nil {
			slog.Error("failed to prepare operators table", "error", err)
			os.Exit(1)
		}
		operators = auth.NewOperatorStore(pool)
	}
	if cfg.Incidents.SQLitePath != "" {
		local, err := notify.OpenSQLiteNotifier(cfg.Incidents.SQLitePath)
		if err != nil {
			slog.Error("failed to open local incident ledger", "path", cfg.Incidents.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer local.Close()
		notifiers = append(notifiers, local)
	}

	// Model backends: claude-* ids go to Anthropic, everything else to the OpenAI-compatible API
	backend := llm.NewRouter(llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey))
	if cfg.LLM.AnthropicAPIKey != "" {
		backend.Route("claude", llm.NewAnthropicClient(cfg.LLM.AnthropicBaseURL, cfg.LLM.AnthropicAPIKey))
	}
	completions := llm.NewGateway(backend, llm.NewSelector(cfg.LLM.Cascade), notifiers, cfg.LLM.CallTimeout)
	completions.SetObserver(turnMetrics)

	extractors := extraction.Chain{extraction.UTF8Extractor{}}
	if cfg.Extractor.URL != "" {
		extractors = append(extractors, extraction.NewHTTPExtractor(cfg.Extractor.URL, cfg.Extractor.Timeout))
	}
	pipeline := extraction.NewPipeline(extractors, completions, cfg.LLM.DocumentModel, cfg.Extractor.MaxConcurrency)

	store := conversation.NewMemoryStore(cfg.Convo.HistoryWindow)
	service := conversation.NewService(
		completions,
		pipeline,
		store,
		conversation.NewModelSettings(cfg.LLM.ConversationModel, cfg.LLM.CodeGenerationModel, cfg.LLM.RefinementModel),
	)
	service.SetRecorder(turnMetrics)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	janitor := conversation.NewJanitor(store, cfg.Convo.EvictSchedule, cfg.Convo.IdleTTL)
	if err := janitor.Start(janitorCtx); err != nil {
		slog.Error("failed to start conversation janitor", "error", err)
		os.Exit(1)
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret)
	if err != nil {
		slog.Error("failed to initialize JWT manager", "error", err)
		os.Exit(1)
	}

	handler := gateway.NewHandler(service, jwtManager, operators, cfg.Convo.MaxUploadBytes)
	stream := gateway.NewConversationStream(service, cfg.Convo.MaxUploadBytes*2) // base64 frames

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(structuredLoggingMiddleware())
	httpMetrics := metrics.NewHTTPMetrics(nil)
	router.Use(httpMetrics.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if pool != nil {
			if err := pool.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "not ready",
					"error":  "database connection failed",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":          "ready",
			"model_selection": completions.Selector().State(),
			"conversations":   store.Len(),
		})
	})
	router.GET("/metrics", gin.WrapH(httpMetrics.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/api")
	api.POST("/auth/login", handler.Login)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	protected := api.Group("")
	protected.Use(auth.RequireAuth(jwtManager))
	protected.POST("/context/update", handler.UpdateContext)
	protected.POST("/context/transition", handler.Transition)
	protected.GET("/conversations", handler.ListConversations)
	protected.GET("/conversations/:id", handler.GetConversation)
	protected.DELETE("/conversations/:id", handler.DeleteConversation)
	protected.GET("/conversations/:id/messages", handler.GetMessages)
	protected.GET("/conversations/:id/stage/suggestions", handler.SuggestStage)
	protected.POST("/conversations/:id/reset", handler.ResetConversation)
	protected.GET("/ws/conversations/:id", stream.Stream)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.TurnBudget(),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("starting context engine", "port", cfg.Port, "cascade", cfg.LLM.Cascade)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	janitor.Stop()
	if err := tp.Shutdown(ctx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}
	slog.Info("server exited")
}

// connectDatabase retries the initial connection while the database starts
func connectDatabase(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	var pool *pgxpool.Pool
	var err error
	for i := 0; i < 10; i++ {
		pool, err = pgxpool.New(ctx, dbURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				slog.Info("connected to PostgreSQL database")
				return pool, nil
			}
			pool.Close()
		}
		slog.Warn("waiting for database", "attempt", i+1, "error", err)
		time.Sleep(3 * time.Second)
	}
	return nil, err
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// structuredLoggingMiddleware writes one JSON log record per request
func structuredLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if operatorID, ok := c.Get(auth.OperatorIDKey); ok {
			attrs = append(attrs, "operator_id", operatorID)
		}
		if conversationID, ok := c.Get(gateway.ConversationIDKey); ok {
			attrs = append(attrs, "conversation_id", conversationID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		slog.Info("request", attrs...)
	}
}
