package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	flowconfig "github.com/voicetyped/supportflow/config"
	"github.com/voicetyped/supportflow/internal/connectutil"
	"github.com/voicetyped/supportflow/internal/flow/flowrpc"
	flowhandler "github.com/voicetyped/supportflow/internal/flow/handler"
	"github.com/voicetyped/supportflow/pkg/events"
	"github.com/voicetyped/supportflow/pkg/flow"
	"github.com/voicetyped/supportflow/pkg/handoff"
	handoffapi "github.com/voicetyped/supportflow/pkg/handoff/api"
	"github.com/voicetyped/supportflow/pkg/phrases"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[flowconfig.FlowConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("supportflow"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.WorkerPoolCount),
			workerpool.WithSinglePoolCapacity(cfg.WorkerPoolCapacity),
		),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	pub := events.NewPublisher(srv.QueueManager(), "flow", eventRef)

	// --- Phrases ---
	loader := phrases.NewLoader(cfg.PhrasesDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading phrases: %v", err)
	}
	loader.OnReload(func(c *phrases.Catalog) {
		if err := pub.Emit(ctx, events.PhrasesReloaded, "", events.PhrasesReloadedData{
			Catalog: c.Name,
			Version: c.Version,
			Keys:    len(c.Phrases),
		}); err != nil {
			util.Log(ctx).WithError(err).Error("failed to publish phrases reload")
		}
	})
	_ = pool.Submit(ctx, func() {
		if err := loader.WatchAndReload(ctx.Done()); err != nil {
			util.Log(ctx).WithError(err).Error("phrase watcher stopped")
		}
	})

	speaker := phrases.NewSpeaker(loader, phrases.NewSeededPicker(cfg.PhraseSeed))

	// --- Flow engine ---
	engine := flow.NewEngine(speaker,
		flow.WithPublisher(pub),
		flow.WithShards(cfg.SessionShards),
	)
	orch := flow.NewOrchestrator(engine, pub)

	// --- HTTP Mux ---
	mux := http.NewServeMux()

	opts := connectutil.DefaultOptions()
	if cfg.RequireAuth {
		opts, err = connectutil.AuthenticatedOptions(ctx, authenticator)
		if err != nil {
			log.Fatalf("setting up auth interceptors: %v", err)
		}
	}

	// --- Hand-off ---
	var (
		tickets    handoff.TicketStore
		subscriber *handoff.Subscriber
	)
	if cfg.HandoffEnabled {
		repo := handoff.NewRepository(srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"))
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("migrating hand-off tickets: %v", err)
		}
		tickets = repo

		var notifier *handoff.Notifier
		if cfg.DeskEnabled() {
			notifier, err = handoff.NewNotifier(handoff.NotifierConfig{
				URL:              cfg.DeskURL,
				Secret:           cfg.DeskSecret,
				MaxAttempts:      cfg.DeskMaxAttempts,
				Timeout:          time.Duration(cfg.DeskTimeoutSec) * time.Second,
				BackoffInitial:   time.Duration(cfg.DeskBackoffSec) * time.Second,
				BackoffMax:       time.Duration(cfg.DeskBackoffMaxSec) * time.Second,
				BreakerThreshold: cfg.CBFailThreshold,
				BreakerReset:     time.Duration(cfg.CBResetTimeoutSec) * time.Second,
				AllowPrivate:     cfg.DeskAllowPrivate,
			}, repo)
			if err != nil {
				log.Fatalf("configuring operator desk: %v", err)
			}
		}

		subscriber = &handoff.Subscriber{
			Store:    repo,
			Notifier: notifier,
			Pool:     pool,
		}

		restMux := http.NewServeMux()
		handoffapi.NewHandler(repo, notifier).RegisterRoutes(restMux)
		if cfg.RequireAuth {
			mux.Handle("/api/", connectutil.AuthenticatedHTTPMiddleware(restMux, authenticator))
		} else {
			mux.Handle("/api/", restMux)
		}
	}

	flowHdlr := flowhandler.NewFlowHandler(orch, tickets, pool)
	path, h := flowrpc.NewFlowServiceHandler(flowHdlr, opts...)
	mux.Handle(path, h)

	flowHdlr.StartReaper(ctx, cfg.ReaperInterval(), cfg.SessionMaxInactive())

	initOpts := []frame.Option{frame.WithHTTPHandler(connectutil.H2CHandler(mux))}
	if subscriber != nil {
		initOpts = append(initOpts, frame.WithRegisterSubscriber(eventRef+".handoff", eventURL, subscriber))
	}
	srv.Init(ctx, initOpts...)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
