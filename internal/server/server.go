package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/quizbot/internal/admin"
	"github.com/victornm/quizbot/internal/api"
	"github.com/victornm/quizbot/internal/event"
	"github.com/victornm/quizbot/internal/game"
	"github.com/victornm/quizbot/internal/leaderboard"
	"github.com/victornm/quizbot/internal/notify"
	"github.com/victornm/quizbot/internal/question"
	"github.com/victornm/quizbot/internal/schedule"
	"github.com/victornm/quizbot/internal/score"
	"github.com/victornm/quizbot/internal/storage"
	"github.com/victornm/quizbot/internal/storage/memory"
	"github.com/victornm/quizbot/internal/storage/postgres"
	redisstore "github.com/victornm/quizbot/internal/storage/redis"
	"github.com/victornm/quizbot/internal/storage/sqlite"
	"github.com/victornm/quizbot/internal/telemetry"
	"github.com/victornm/quizbot/internal/user"
	"github.com/victornm/quizbot/internal/window"
)

const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	TransportLog    = "log"
	TransportTwilio = "twilio"
	TransportPubsub = "pubsub"
)

type RedisConfig struct {
	Addrs  []string
	Pass   string
	Prefix string
}

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		Level  string
		Format string
	}

	Storage struct {
		Driver string
		Redis  RedisConfig

		Postgres struct {
			Addr string
			User string
			Pass string
			Name string
		}

		SQLite struct {
			DSN string
		}
	}

	Twilio struct {
		AccountSID        string
		AuthToken         string
		From              string
		ValidateSignature bool
		WebhookURL        string
	}

	Notify struct {
		Transport     string
		AdminAddress  string
		NotifyWinners bool
		Pubsub        RedisConfig
	}

	Admin struct {
		Identity      string
		Token         string
		TelegramToken string
	}

	Quiz struct {
		Timezone            string
		QuestionTimer       time.Duration
		MaxQuestionsPerGame int
		TopN                int
		DailyReset          string
		SeedFile            string
	}

	Schedule schedule.Specs
}

// DefaultConfig returns the configuration used for keys missing from the
// file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Storage.Driver = DriverMemory
	c.Storage.Redis.Prefix = "quizbot"
	c.Storage.SQLite.DSN = "file:quizbot.db"
	c.Notify.Transport = TransportLog
	c.Notify.NotifyWinners = true
	c.Notify.Pubsub.Prefix = "quizbot"
	c.Quiz.Timezone = "Asia/Kolkata"
	c.Quiz.QuestionTimer = window.DefaultDuration
	c.Quiz.TopN = 10
	c.Quiz.DailyReset = string(score.ResetToday)
	c.Schedule = schedule.DefaultSpecs()
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		store  storage.Store
		pubsub redis.UniversalClient
	}

	service struct {
		questions   *question.Service
		users       *user.Repository
		game        *game.Service
		score       *score.Service
		leaderboard *leaderboard.Service
		admin       *admin.Service
		notifier    *notify.Notifier
		scheduler   *schedule.Scheduler
	}

	telegram *admin.TelegramBot

	http *http.Server
	grpc *grpc.Server

	shutdownOnce sync.Once
}

// Init connects the infrastructure and wires every service. It does not
// start serving.
func Init(ctx context.Context, c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()
	telemetry.SubscribeScoreEvents(s.eb)

	if err := s.initInfra(ctx); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()

	if c.Quiz.SeedFile != "" {
		if err := s.seedIfEmpty(ctx, c.Quiz.SeedFile); err != nil {
			return nil, fmt.Errorf("server: seed: %w", err)
		}
	}

	return s, nil
}

func (s *Server) initInfra(ctx context.Context) error {
	store, err := s.openStore(ctx)
	if err != nil {
		return fmt.Errorf("storage %s: %w", s.c.Storage.Driver, err)
	}
	s.infra.store = store

	if s.c.Notify.Transport == TransportPubsub {
		s.infra.pubsub, err = connectRedis(ctx, s.c.Notify.Pubsub)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	}

	return nil
}

func (s *Server) openStore(ctx context.Context) (storage.Store, error) {
	switch s.c.Storage.Driver {
	case DriverMemory, "":
		slog.WarnContext(ctx, "server: using in-memory storage, state is lost on restart")
		return memory.NewStore(), nil

	case DriverRedis:
		r, err := connectRedis(ctx, s.c.Storage.Redis)
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(redisstore.Config{Redis: r, Prefix: s.c.Storage.Redis.Prefix}), nil

	case DriverPostgres:
		db, err := connectPostgres(ctx, s.c.Storage.Postgres.Addr, s.c.Storage.Postgres.User, s.c.Storage.Postgres.Pass, s.c.Storage.Postgres.Name)
		if err != nil {
			return nil, err
		}
		st := postgres.NewStore(postgres.Config{DB: db})
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return st, nil

	case DriverSQLite:
		return sqlite.Open(ctx, s.c.Storage.SQLite.DSN)

	default:
		return nil, fmt.Errorf("unknown driver %q", s.c.Storage.Driver)
	}
}

func connectRedis(ctx context.Context, c RedisConfig) (redis.UniversalClient, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    c.Addrs,
		Password: c.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return nil, err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return r, nil
}

func connectPostgres(ctx context.Context, addr, user, pass, name string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", user, pass, addr, name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() error {
	loc, err := time.LoadLocation(s.c.Quiz.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", s.c.Quiz.Timezone, err)
	}

	policy := score.DailyResetPolicy(strings.ToLower(s.c.Quiz.DailyReset))
	if policy != score.ResetToday && policy != score.ResetAll {
		return fmt.Errorf("unknown daily reset policy %q", s.c.Quiz.DailyReset)
	}

	// Score buckets are local dates, so the evening jobs read the day that is ending.
	clock := func() time.Time { return time.Now().In(loc) }

	s.service.questions = question.NewService(question.Config{
		Store: s.infra.store,
	})

	s.service.users = user.NewRepository(user.Config{
		Store: s.infra.store,
	})

	s.service.game = game.NewService(game.Config{
		EventBus: s.eb,
		Users:    s.service.users,
		Now:      clock,
		Engine: game.NewEngine(game.EngineConfig{
			Questions:    s.service.questions,
			Window:       s.c.Quiz.QuestionTimer,
			MaxQuestions: s.c.Quiz.MaxQuestionsPerGame,
		}),
	})

	s.service.score = score.NewService(score.Config{
		Users:       s.service.users,
		DailyPolicy: policy,
		Now:         clock,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus: s.eb,
		Users:    s.service.users,
		Store:    s.infra.store,
		TopN:     s.c.Quiz.TopN,
		Now:      clock,
	})

	s.service.admin = admin.NewService(admin.Config{
		Identity:  s.c.Admin.Identity,
		EventBus:  s.eb,
		Questions: s.service.questions,
		Users:     s.service.users,
	})

	sender, err := s.sender()
	if err != nil {
		return err
	}
	s.service.notifier = notify.NewNotifier(notify.Config{
		EventBus:      s.eb,
		Sender:        sender,
		Transport:     s.c.Notify.Transport,
		AdminAddress:  s.c.Notify.AdminAddress,
		NotifyWinners: s.c.Notify.NotifyWinners,
	})

	s.service.scheduler, err = schedule.New(schedule.Config{
		Trigger: schedule.NewCronTrigger(loc),
		Jobs:    schedule.StandardJobs(s.c.Schedule, s.service.leaderboard, s.service.score),
	})
	if err != nil {
		return err
	}

	return nil
}

func (s *Server) sender() (notify.Sender, error) {
	switch s.c.Notify.Transport {
	case TransportLog, "":
		return notify.LogSender{}, nil
	case TransportTwilio:
		return notify.NewTwilioSender(notify.TwilioConfig{
			AccountSID: s.c.Twilio.AccountSID,
			AuthToken:  s.c.Twilio.AuthToken,
			From:       s.c.Twilio.From,
		}), nil
	case TransportPubsub:
		return notify.NewPubsubSender(s.infra.pubsub, s.c.Notify.Pubsub.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown notify transport %q", s.c.Notify.Transport)
	}
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Engine:      e,
		Game:        s.service.game,
		Admin:       s.service.admin,
		Leaderboard: s.service.leaderboard,
		Jobs:        s.service.scheduler,
		AdminToken:  s.c.Admin.Token,
		Twilio: api.TwilioConfig{
			AuthToken:         s.c.Twilio.AuthToken,
			ValidateSignature: s.c.Twilio.ValidateSignature,
			WebhookURL:        s.c.Twilio.WebhookURL,
		},
	})

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(), telemetry.GRPCStreamInterceptor())
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.grpc, hs)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) seedIfEmpty(ctx context.Context, file string) error {
	n, err := s.service.questions.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "server: questions present, seeding skipped", "count", n)
		return nil
	}
	_, err = s.Seed(ctx, file)
	return err
}

// Seed loads the questions of a YAML file into the question store.
func (s *Server) Seed(ctx context.Context, file string) (int, error) {
	qs, err := question.LoadFile(file)
	if err != nil {
		return 0, err
	}

	n, err := s.service.questions.Seed(ctx, qs)
	if err != nil {
		return n, err
	}

	slog.InfoContext(ctx, "server: questions seeded", "file", file, "count", n)
	return n, nil
}

// RunJob runs one scheduled job synchronously. Notifications it triggered are
// delivered by the time Shutdown returns.
func (s *Server) RunJob(ctx context.Context, name string) (string, error) {
	return s.service.scheduler.Run(ctx, name)
}

// JobNames returns the names accepted by RunJob.
func (s *Server) JobNames() []string {
	return s.service.scheduler.Names()
}

// Start serves until ctx is done or a component fails.
func (s *Server) Start(ctx context.Context) error {
	// The bot authenticates against Telegram, so only the serving process builds it.
	if s.c.Admin.TelegramToken != "" {
		bot, err := admin.NewTelegramBot(s.c.Admin.TelegramToken, s.service.admin)
		if err != nil {
			return fmt.Errorf("telegram bot: %w", err)
		}
		s.telegram = bot
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		return fmt.Errorf("grpc server: listen: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := s.service.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	if s.telegram != nil {
		eg.Go(func() error {
			return s.telegram.Run(ctx)
		})
	}

	eg.Go(func() error {
		<-ctx.Done()
		s.Shutdown()
		return nil
	})

	return eg.Wait()
}

// Shutdown stops serving, waits for running jobs and pending notifications,
// then closes the storage. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
		}
	}

	s.service.scheduler.Stop(ctx)
	s.eb.Stop()

	if err := s.infra.store.Close(); err != nil {
		slog.ErrorContext(ctx, "server: close storage failed", "error", err)
	}
	if s.infra.pubsub != nil {
		_ = s.infra.pubsub.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
