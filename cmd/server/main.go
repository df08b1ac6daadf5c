// Command server runs the customer hub HTTP API.
//
// @title          Customer Hub API
// @version        1.0
// @description    Scores inbound WeChat messages, tracks conversation threads and drafts replies.
// @BasePath       /api/hub
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	httpapi "github.com/tbourn/go-customer-hub/internal/http"
	"github.com/tbourn/go-customer-hub/internal/config"
	"github.com/tbourn/go-customer-hub/internal/dedup"
	"github.com/tbourn/go-customer-hub/internal/kb"
	"github.com/tbourn/go-customer-hub/internal/llm"
	"github.com/tbourn/go-customer-hub/internal/notify"
	"github.com/tbourn/go-customer-hub/internal/observability"
	"github.com/tbourn/go-customer-hub/internal/repo"
	"github.com/tbourn/go-customer-hub/internal/scoring"
	"github.com/tbourn/go-customer-hub/internal/services"
	"github.com/tbourn/go-customer-hub/internal/statemachine"
	"github.com/tbourn/go-customer-hub/internal/sysutil"
	"github.com/tbourn/go-customer-hub/internal/triggers"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	appVersion := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTEL, appVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	db, err := repo.Open(repo.Options{
		Driver:   cfg.DB.Driver,
		Path:     cfg.DB.Path,
		DSN:      cfg.DB.DSN,
		Tracing:  cfg.OTEL.Enabled,
		Silent:   !sysutil.IsTruthy(os.Getenv("DB_DEBUG")),
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	svc, purge, closeFn := buildService(ctx, cfg, db)
	defer closeFn()

	r := gin.New()
	httpapi.RegisterRoutes(r, svc, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go runSweeper(ctx, svc, purge, cfg.RecalcInterval)

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("base_path", cfg.APIBasePath).
			Str("version", appVersion).
			Msg("customer hub listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// buildService wires the hub service from cfg. purge drops expired dedup
// records (nil when the store expires keys itself); closeFn releases the
// external clients.
func buildService(ctx context.Context, cfg config.Config, db *gorm.DB) (svc *services.CustomerHubService, purge func(context.Context) (int64, error), closeFn func()) {
	closeFn = func() {}

	rules := scoring.DefaultRules()
	if cfg.RulesFile != "" {
		loaded, err := scoring.LoadRules(cfg.RulesFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.RulesFile).Msg("load scoring rules")
		}
		rules = loaded
	}
	scorer := scoring.NewEngine(rules, cfg.Location())

	machine := statemachine.New(statemachine.SLAConfig{
		NeedReplyMinutes:     cfg.SLA.NeedReplyMinutes,
		FollowUpHours:        cfg.SLA.FollowUpHours,
		DefaultSnoozeMinutes: cfg.SLA.DefaultSnoozeMinutes,
	})

	var engine triggers.Engine = triggers.MockEngine{}
	if cfg.LLM.Enabled() {
		client, err := llm.NewClient(llm.Config{
			Primary:     llm.Provider{APIKey: cfg.LLM.Primary.APIKey, BaseURL: cfg.LLM.Primary.BaseURL, Model: cfg.LLM.Primary.Model},
			Fallback:    llm.Provider{APIKey: cfg.LLM.Fallback.APIKey, BaseURL: cfg.LLM.Fallback.BaseURL, Model: cfg.LLM.Fallback.Model},
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: float32(cfg.LLM.Temperature),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("llm client")
		}
		engine = triggers.NewLLMEngine(client)
		log.Info().Str("model", cfg.LLM.Primary.Model).Msg("reply workflows use the LLM engine")
	} else {
		log.Warn().Msg("no LLM provider configured, reply workflows use the mock engine")
	}

	svc = services.NewCustomerHubService(db, httpapi.NewHubRepo(), scorer, machine, engine)
	svc.Location = cfg.Location()
	svc.DedupTTL = cfg.DedupTTL
	svc.TriggerTimeout = cfg.TriggerTimeout
	if cfg.ThreadUpdateRetries > 0 {
		svc.MaxRetries = cfg.ThreadUpdateRetries
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping")
		}
		svc.Dedup = dedup.NewRedisStore(rdb)
		closeFn = func() { _ = rdb.Close() }
	} else {
		store := dedup.NewDBStore(db)
		svc.Dedup = store
		purge = store.Purge
	}

	if cfg.Escalation.SendGridAPIKey != "" {
		svc.Notifier = notify.NewSendGrid(cfg.Escalation.SendGridAPIKey, cfg.Escalation.From, cfg.Escalation.To)
	}

	if cfg.KBPath != "" {
		idx, err := kb.NewIndexFromMarkdown(cfg.KBPath, kb.WithThreshold(cfg.KBThreshold))
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.KBPath).Msg("load knowledge base")
		}
		svc.KB = idx
	}
	return svc, purge, closeFn
}

// runSweeper recalculates open threads every interval until ctx ends.
func runSweeper(ctx context.Context, svc *services.CustomerHubService, purge func(context.Context) (int64, error), interval time.Duration) {
	if interval <= 0 {
		log.Info().Msg("background sweep disabled")
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sum, err := svc.RecalcAllThreads(ctx)
			if err != nil {
				log.Error().Err(err).Msg("sweep failed")
			} else {
				log.Debug().Interface("summary", sum).Msg("sweep done")
			}
			if purge != nil {
				if n, err := purge(ctx); err != nil {
					log.Warn().Err(err).Msg("purge delivery records")
				} else if n > 0 {
					log.Debug().Int64("purged", n).Msg("expired delivery records removed")
				}
			}
		}
	}
}
