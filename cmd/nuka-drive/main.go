package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/nuka-drive/internal/api"
	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/bus"
	"github.com/nidhogg/nuka-drive/internal/command"
	"github.com/nidhogg/nuka-drive/internal/config"
	"github.com/nidhogg/nuka-drive/internal/creation"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"github.com/nidhogg/nuka-drive/internal/provider"
	msgrouter "github.com/nidhogg/nuka-drive/internal/router"
	"github.com/nidhogg/nuka-drive/internal/store"
	"github.com/nidhogg/nuka-drive/internal/world"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/nuka-drive.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()

	logger.Info("Starting Nuka Drive...", zap.String("config", cfgPath))

	loc, err := cfg.Autonomy.Location()
	if err != nil {
		logger.Fatal("invalid timezone", zap.Error(err))
	}
	ctx := context.Background()

	// Provider router
	providers := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		p, err := provider.New(provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Models: pc.Models, Extra: pc.Extra,
		}, logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.Error(err))
			continue
		}
		providers.Register(p)
	}

	// State store
	var base store.StateStore
	if cfg.Database.Postgres.DSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Database.Postgres.DSN, logger)
		if err != nil {
			logger.Fatal("PostgreSQL unavailable", zap.Error(err))
		}
		if err := pg.Migrate(ctx, "migrations"); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		base = pg
	} else {
		path := cfg.Database.SQLite.Path
		if path == "" {
			path = "nuka-drive.db"
		}
		sq, err := store.NewSQLite(path, logger)
		if err != nil {
			logger.Fatal("SQLite unavailable", zap.String("path", path), zap.Error(err))
		}
		base = sq
	}
	states := base
	if url := cfg.Database.Redis.URL; url != "" && cfg.Database.Redis.CacheTTLSeconds > 0 {
		ttl := time.Duration(cfg.Database.Redis.CacheTTLSeconds) * time.Second
		cache, err := store.NewCache(ctx, base, url, ttl, logger)
		if err != nil {
			logger.Warn("Redis cache unavailable, reading state directly", zap.Error(err))
		} else {
			states = cache
		}
	}

	// Event bus
	var events *bus.Bus
	if cfg.Database.Redis.URL != "" {
		events, err = bus.New(ctx, cfg.Database.Redis.URL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, running without event bus", zap.Error(err))
			events = nil
		}
	}

	// Contact graph
	var contacts *world.ContactGraph
	if cfg.Database.Neo4j.URI != "" {
		contacts, err = world.NewContactGraph(ctx, cfg.Database.Neo4j.URI,
			cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, 0.001, logger)
		if err != nil {
			logger.Warn("Neo4j unavailable, running without contact graph", zap.Error(err))
			contacts = nil
		}
	}

	// World clock and agents
	clock := world.NewWorldClock(time.Now().In(loc), cfg.Autonomy.Tick(), cfg.Autonomy.Scale(), logger)
	agents, err := buildAgents(ctx, cfg, clock, states, logger)
	if err != nil {
		logger.Fatal("failed to build agents", zap.Error(err))
	}
	growth := world.NewGrowthTracker(nil, logger)

	// Gateway. The handler must be set before adapters register.
	gw := gateway.NewGateway(logger)
	broadcaster := gateway.NewBroadcaster(gw, logger)

	commands := command.NewRegistry()
	command.RegisterBuiltins(commands, gw)
	command.RegisterMentorCommands(commands, &command.Mentor{
		Agents:    agents,
		Growth:    growth,
		Store:     states,
		Announcer: broadcaster,
		Logger:    logger,
	})

	var recorder msgrouter.ContactRecorder
	if contacts != nil {
		recorder = contacts
	}
	router := msgrouter.New(gw, commands, agents, recorder, logger)
	gw.SetHandler(router.Handle)

	rest := gateway.NewRESTAdapter(30*time.Second, logger)
	gw.Register(rest)
	if s := cfg.Gateway.Slack; s.Enabled && s.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(s.BotToken, s.AppToken, s.Channel, logger))
	}
	if d := cfg.Gateway.Discord; d.Enabled && d.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(d.BotToken, d.Channel, logger))
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	// Autopilot
	creatorOpts := []creation.Option{creation.WithAnnouncer(broadcaster)}
	autopilotOpts := []world.AutopilotOption{world.WithStore(states)}
	if events != nil {
		creatorOpts = append(creatorOpts, creation.WithPublisher(events))
		autopilotOpts = append(autopilotOpts, world.WithPublisher(events))
	}
	if contacts != nil {
		creatorOpts = append(creatorOpts, creation.WithContacts(contacts))
		autopilotOpts = append(autopilotOpts, world.WithContacts(contacts))
	}
	creator := creation.NewCreator(providers, logger, creatorOpts...)
	for _, ac := range cfg.Autonomy.Agents {
		creator.SetPersona(ac.ID, creation.Persona{Name: ac.Name, Personality: ac.Personality})
	}
	autopilotOpts = append(autopilotOpts, world.WithPerformer(creator))

	kinds, err := cfg.Autonomy.ActivityKinds()
	if err != nil {
		logger.Fatal("invalid activity list", zap.Error(err))
	}
	autopilot := world.NewAutopilot(agents, kinds, logger, autopilotOpts...)

	heartbeat := world.NewHeartbeat(cfg.Autonomy.Heartbeat(), autopilot.Beat, agents.IDs, logger)
	clock.AddListener(heartbeat)
	clock.AddListener(world.NewAlteredTicker(func() []world.AlteredStateHolder {
		engines := agents.List()
		out := make([]world.AlteredStateHolder, len(engines))
		for i, e := range engines {
			out[i] = e
		}
		return out
	}, logger))
	if contacts != nil {
		clock.AddListener(contacts)
	}

	consumeCtx, stopConsumers := context.WithCancel(ctx)
	if events != nil {
		for _, id := range agents.IDs() {
			go events.ConsumeFeedback(consumeCtx, agents, id)
		}
	}

	clock.Start()
	logger.Info("World clock started",
		zap.Time("world_time", clock.Now()),
		zap.Float64("speed", clock.Speed()),
		zap.Duration("heartbeat", heartbeat.Interval()),
	)

	handler := api.NewHandler(api.Deps{
		Agents:      agents,
		Store:       states,
		Growth:      growth,
		Clock:       clock,
		Heartbeat:   heartbeat,
		Gateway:     gw,
		Broadcaster: broadcaster,
		REST:        rest,
	}, logger)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Nuka Drive listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Nuka Drive...")
	clock.Stop()
	stopConsumers()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	for _, e := range agents.List() {
		if err := states.Save(shutdownCtx, e.State()); err != nil {
			logger.Warn("failed to persist agent", zap.String("agent", e.ID()), zap.Error(err))
		}
	}
	gw.Close()
	if contacts != nil {
		contacts.Close(shutdownCtx)
	}
	if events != nil {
		events.Close()
	}
	states.Close()
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		zc := zap.NewProductionConfig()
		if lvl, perr := zapcore.ParseLevel(level); perr == nil && level != "" {
			zc.Level = zap.NewAtomicLevelAt(lvl)
		}
		logger, err = zc.Build()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// buildAgents creates one engine per configured agent, restoring any
// persisted state over the configured seed.
func buildAgents(ctx context.Context, cfg *config.Config, clock *world.WorldClock,
	states store.StateStore, logger *zap.Logger) (*autonomy.Registry, error) {
	defs, err := cfg.Autonomy.AlteredDefinitions()
	if err != nil {
		return nil, err
	}
	reg := autonomy.NewRegistry()
	for _, ac := range cfg.Autonomy.Agents {
		seed, err := ac.SeedFields()
		if err != nil {
			return nil, err
		}
		e := autonomy.New(autonomy.Options{
			ID:       ac.ID,
			Clock:    clock,
			Altered:  defs,
			Cooldown: cfg.Autonomy.Cooldown(),
		}, logger)
		for f, v := range seed {
			if _, err := e.SetTrait(f, v, "seed"); err != nil {
				return nil, fmt.Errorf("seed %s: %w", ac.ID, err)
			}
		}

		st, err := states.Load(ctx, ac.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			logger.Warn("failed to load agent state", zap.String("agent", ac.ID), zap.Error(err))
		default:
			if err := e.RestoreState(st); err != nil {
				logger.Warn("discarding persisted state", zap.String("agent", ac.ID), zap.Error(err))
			} else {
				logger.Info("restored agent state", zap.String("agent", ac.ID))
			}
		}
		reg.Register(e)
	}
	logger.Info("agents ready", zap.Strings("ids", reg.IDs()))
	return reg, nil
}
