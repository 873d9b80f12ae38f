package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/ai"
	"github.com/pulsecoach/backend/internal/chat"
	"github.com/pulsecoach/backend/internal/classify"
	"github.com/pulsecoach/backend/internal/config"
	"github.com/pulsecoach/backend/internal/db"
	"github.com/pulsecoach/backend/internal/httpapi"
	"github.com/pulsecoach/backend/internal/httpapi/handlers"
	"github.com/pulsecoach/backend/internal/intent"
	"github.com/pulsecoach/backend/internal/program"
	"github.com/pulsecoach/backend/internal/store/rabbitmq"
	"github.com/pulsecoach/backend/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal("db migrate failed", zap.Error(err))
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	var publisher chat.JobPublisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		// Chat still works without the queue; program side effects from
		// chat are skipped until rabbit is reachable.
		log.Warn("rabbit connect failed, program jobs disabled", zap.Error(err))
	} else {
		defer pub.Close()
		publisher = pub
	}

	registry := ai.NewRegistry()
	registry.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model), nil
	})

	ctx := context.Background()
	replyProvider, err := registry.Get(ctx, cfg.AIProvider, cfg.ReplyModel)
	if err != nil {
		log.Fatal("reply provider init failed", zap.Error(err))
	}
	classifierProvider, err := registry.Get(ctx, cfg.AIProvider, cfg.ClassifierModel)
	if err != nil {
		log.Fatal("classifier provider init failed", zap.Error(err))
	}
	generatorProvider, err := registry.Get(ctx, cfg.AIProvider, cfg.GeneratorModel)
	if err != nil {
		log.Fatal("generator provider init failed", zap.Error(err))
	}

	programRepo := program.NewRepo(gdb)
	generator := program.NewGenerator(generatorProvider, log)
	programSvc := program.NewService(programRepo, generator, rds, cfg.ProgramDebounceWindow, log)

	classifier := classify.New(classifierProvider, log)
	detector := intent.New(classifierProvider, log)

	orc := chat.NewOrchestrator(
		chat.NewRepo(gdb),
		replyProvider,
		classifier,
		detector,
		programSvc,
		publisher,
		&http.Client{Timeout: 30 * time.Second},
		cfg.SelfBaseURL,
		cfg.CoachUserID,
		cfg.ChatContextWindowSize,
		log,
	)

	h := handlers.NewHandler(orc, programSvc, log)
	r := httpapi.NewRouter(h, log)

	log.Info("server listening", zap.String("addr", cfg.HTTPAddr))
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
