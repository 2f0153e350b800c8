package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/studybuddy/backend/config"
	"github.com/studybuddy/backend/internal/chat"
	"github.com/studybuddy/backend/internal/conversation"
	"github.com/studybuddy/backend/internal/ingest"
	"github.com/studybuddy/backend/internal/runtime"
	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/vectorstore"
	"github.com/studybuddy/backend/provider"
)

// Run wires the full service and blocks serving HTTP until the listener
// fails.
func Run(cfg *config.Config, addr string) error {
	if err := cfg.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval config: %w", err)
	}
	if err := cfg.Summary.Validate(); err != nil {
		return fmt.Errorf("summary config: %w", err)
	}
	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	// Unified HTTP error handler with structured JSON and logging
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	dsn, err := cfg.Databases.Postgres.DSN()
	if err != nil {
		return err
	}
	if err := Migrate("file://migrations", dsn, "up", 0); err != nil {
		log.Printf("migrations: %v", err)
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}
	vectors := vectorstore.NewPgStore(st.DB)

	llm, err := provider.NewProvider(cfg.Providers.OpenAI)
	if err != nil {
		return err
	}

	manager := conversation.NewManager(
		st,
		conversation.NewLLMClassifier(llm),
		conversation.NewLLMSummarizer(llm),
		conversation.NewLLMTitler(llm),
		cfg.Retrieval.MaxSessionMessages,
		cfg.Summary.TokenBudget,
		cfg.Summary.MinSummaryForTitle,
		nil,
	)

	// deferred work rides the Redis queue when Redis is configured,
	// otherwise it runs inline on the request goroutine
	var queue conversation.Queue
	var worker *conversation.Worker
	if cfg.Databases.Redis.Host != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Databases.Redis.Addr(),
			Password: cfg.Databases.Redis.Password,
			DB:       cfg.Databases.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
		}
		rq := conversation.NewRedisQueue(rdb)
		queue = rq
		worker = conversation.NewWorker(rq, manager, nil)
		worker.Start()
		defer worker.Stop()
	} else {
		log.Printf("redis not configured, processing conversations inline")
		queue = conversation.NewInlineQueue(manager)
	}

	assembler := chat.NewAssembler(llm, vectors, st,
		cfg.Retrieval.TopK, cfg.Retrieval.RelevanceThreshold, cfg.Retrieval.HistoryWindow, nil)
	// the manager doubles as the inline fallback: if Redis goes away
	// mid-flight the exchange is processed on the request goroutine
	chatSvc := chat.NewService(assembler, llm, queue, manager, cfg.Providers.OpenAI.MaxOutputTokens, nil)
	pipeline := ingest.NewPipeline(ingest.TextExtractor{}, llm, vectors, st, nil)

	api := e.Group("/api")
	(&AuthHandler{Store: st, Secret: []byte(secret)}).Register(api.Group("/auth"))

	authed := runtime.EchoAuthMiddleware([]byte(secret))
	(&QueryHandler{Chat: chatSvc}).Register(api.Group("/query", authed))
	(&UploadHandler{Pipeline: pipeline, MaxFiles: cfg.Uploads.MaxFiles}).Register(api.Group("/upload", authed))
	(&SessionsHandler{Store: st}).Register(api.Group("/chat-sessions", authed))
	(&DocumentsHandler{Store: st, Vectors: vectors, Logger: baseLogger}).Register(api.Group("/documents", authed))

	if addr == "" {
		addr = cfg.General.Listen
		if addr != "" && addr[0] != ':' {
			addr = ":" + addr
		}
		if addr == "" {
			addr = ":10001"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
