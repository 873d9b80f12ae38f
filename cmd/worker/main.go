package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pulsecoach/backend/internal/agent"
	"github.com/pulsecoach/backend/internal/ai"
	"github.com/pulsecoach/backend/internal/config"
	"github.com/pulsecoach/backend/internal/db"
	"github.com/pulsecoach/backend/internal/program"
	"github.com/pulsecoach/backend/internal/store/rabbitmq"
	"github.com/pulsecoach/backend/internal/store/redisstore"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

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

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	registry := ai.NewRegistry()
	registry.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, model), nil
	})
	provider, err := registry.Get(context.Background(), cfg.AIProvider, cfg.GeneratorModel)
	if err != nil {
		log.Fatal("generator provider init failed", zap.Error(err))
	}

	repo := program.NewRepo(gdb)
	generator := program.NewGenerator(provider, log)
	svc := program.NewService(repo, generator, rds, cfg.ProgramDebounceWindow, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal("rabbit dial failed", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal("rabbit channel failed", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal("queue declare failed", zap.Error(err))
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal("qos failed", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal("consume failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Warn("bad job message", zap.Int("worker", workerID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID); err != nil {
					log.Warn("job failed",
						zap.Int("worker", workerID),
						zap.String("job_id", m.JobID),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					log.Warn("ack failed", zap.String("job_id", m.JobID), zap.Error(err))
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob executes one queued program side effect. Generation and
// persistence errors mark the job failed; the chat that triggered it has
// long since been answered.
func handleJob(ctx context.Context, svc *program.Service, repo *program.Repo, jobID string) error {
	_ = repo.UpdateJobStatusRunning(ctx, jobID)

	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	switch j.Kind {
	case program.JobCreate:
		cat := agent.Parse(j.Payload.Agent)
		p, _, err := svc.Create(ctx, program.CreateRequest{
			UserID:            j.UserID,
			Type:              cat.ProgramType(),
			StartDate:         j.Payload.StartDate,
			PeriodLengthWeeks: j.Payload.DurationWeeks,
			Spec: program.Spec{
				Source:       "chat",
				RawRequest:   j.Payload.RequestText,
				Agent:        string(cat),
				Modalities:   j.Payload.Modalities,
				DaysPerWeek:  j.Payload.DaysPerWeek,
				TrainingDays: j.Payload.TrainingDays,
				SpecVersion:  1,
			},
		})
		if err != nil {
			_ = repo.MarkJobFailed(ctx, jobID, err.Error())
			return err
		}
		return repo.MarkJobSucceeded(ctx, jobID, p.ProgramID)

	case program.JobChange:
		if j.ProgramID == nil {
			err := repo.MarkJobFailed(ctx, jobID, "change job missing program_id")
			if err != nil {
				return err
			}
			return nil
		}
		_, err := svc.ApplyChange(ctx, *j.ProgramID, program.ChangeRequest{
			EffectiveDate:  j.Payload.EffectiveDate,
			RequestText:    j.Payload.RequestText,
			NewPeriodWeeks: j.Payload.NewPeriodWeeks,
			SpecPatch:      changeSpecPatch(j.Payload),
		})
		if err != nil {
			_ = repo.MarkJobFailed(ctx, jobID, err.Error())
			return err
		}
		return repo.MarkJobSucceeded(ctx, jobID, *j.ProgramID)

	default:
		return repo.MarkJobFailed(ctx, jobID, "unknown job kind "+string(j.Kind))
	}
}

// changeSpecPatch lifts the fields a change job carries into a spec
// patch so regeneration uses the requested cadence and wording instead
// of the original creation request.
func changeSpecPatch(p program.JobPayload) *program.Spec {
	if p.RequestText == "" && p.DaysPerWeek == 0 &&
		len(p.Modalities) == 0 && len(p.TrainingDays) == 0 {
		return nil
	}
	return &program.Spec{
		RawRequest:   p.RequestText,
		DaysPerWeek:  p.DaysPerWeek,
		Modalities:   p.Modalities,
		TrainingDays: p.TrainingDays,
	}
}
