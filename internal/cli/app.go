package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/tripdesk/internal/agent"
	"github.com/soyeahso/tripdesk/internal/booking"
	"github.com/soyeahso/tripdesk/internal/config"
	"github.com/soyeahso/tripdesk/internal/dialog"
	"github.com/soyeahso/tripdesk/internal/hooks"
	"github.com/soyeahso/tripdesk/internal/llm"
	"github.com/soyeahso/tripdesk/internal/logging"
	"github.com/soyeahso/tripdesk/internal/media"
	"github.com/soyeahso/tripdesk/internal/memory"
	"github.com/soyeahso/tripdesk/internal/metrics"
	"github.com/soyeahso/tripdesk/internal/store"
	"github.com/soyeahso/tripdesk/internal/travel"
)

// app holds every long-lived component of a tripdesk process. Components are
// opened by buildApp and released in reverse order by Close.
type app struct {
	cfg      config.Config
	log      *logging.Logger
	metrics  *metrics.Collectors
	hooks    *hooks.Manager
	bookings booking.Store
	recall   *memory.Recall
	catalog  *memory.Catalog
	media    *media.Adapter
	router   *dialog.Router // nil when no model provider could be built

	closers []func() error
}

// appOptions overrides parts of the assembly, mainly for tests.
type appOptions struct {
	client llm.Client // used instead of the configured providers
}

// buildApp wires config into stores, agents and the dialog router.
func buildApp(ctx context.Context, cfg config.Config, p config.Paths, log *logging.Logger, opts appOptions) (_ *app, err error) {
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		hooks:   hooks.NewManager(log),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if n := hooks.RegisterConfig(a.hooks, cfg.Hooks); n > 0 {
		log.Info().Int("hooks", n).Msg("command hooks registered")
	}

	if err := a.openBookings(ctx); err != nil {
		return nil, err
	}

	var db *store.DB
	openDB := func() (*store.DB, error) {
		if db != nil {
			return db, nil
		}
		path := cfg.Checkpoint.Path
		if path == "" {
			if err := p.EnsureDirs(); err != nil {
				return nil, err
			}
			path = p.Database()
		}
		d, err := store.Open(path, log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.closers = append(a.closers, d.Close)
		db = d
		return db, nil
	}

	client := opts.client
	if client == nil {
		client, err = newModelClient(ctx, cfg.LLM, log)
		if err != nil {
			log.Warn().Err(err).Str("provider", cfg.LLM.Provider).Msg("no usable model provider")
		}
	}

	embedder, err := memory.NewEmbedder(ctx, cfg.Memory, cfg.LLM.APIKey)
	if err != nil {
		return nil, err
	}
	if cfg.Memory.Embedder == config.EmbedderHash {
		log.Warn().Msg("no embedding provider configured, recall uses the offline hash embedder")
	}
	memStore, err := a.openMemoryStore(ctx, openDB)
	if err != nil {
		return nil, err
	}
	recallOpts := []memory.RecallOption{
		memory.WithK(cfg.Memory.K),
		memory.WithHooks(a.hooks),
		memory.WithMetrics(a.metrics),
	}
	if cfg.Memory.Analyze && client != nil {
		recallOpts = append(recallOpts, memory.WithAnalyzer(client, cfg.LLM.Model))
	}
	a.recall = memory.NewRecall(memStore, embedder, log, recallOpts...)

	a.catalog = memory.NewCatalog(memory.NewInMemoryStore(), embedder, log)
	if _, err := a.catalog.LoadFile(ctx, cfg.Memory.DestinationsFile); err != nil {
		return nil, err
	}

	a.media = media.FromConfig(cfg.Media, log)

	if client == nil {
		return a, nil
	}

	graph, err := travel.NewGraph(travel.Deps{Bookings: a.bookings, Memories: a.recall, Destinations: a.catalog})
	if err != nil {
		return nil, err
	}

	var checkpoints dialog.Checkpoints
	switch cfg.Checkpoint.Store {
	case "sqlite":
		d, err := openDB()
		if err != nil {
			return nil, err
		}
		checkpoints = store.NewCheckpointStore(d)
	default:
		checkpoints = dialog.NewMemoryCheckpoints()
	}

	invoker := agent.NewInvoker(client, agent.InvokerConfig{
		MaxAttempts: cfg.Agents.MaxAttempts,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}, a.metrics, log)

	routerOpts := []dialog.RouterOption{dialog.WithHooks(a.hooks), dialog.WithMetrics(a.metrics)}
	if cfg.Memory.Enabled {
		routerOpts = append(routerOpts, dialog.WithMemory(a.recall))
	}
	a.router = dialog.NewRouter(graph, invoker, checkpoints, dialog.Config{
		MaxToolRounds:  cfg.Agents.MaxToolRounds,
		TurnTimeout:    cfg.Agents.TurnTimeoutDuration(),
		AnalyzeTimeout: cfg.Memory.AnalyzeTimeoutDuration(),
		FallbackReply:  cfg.Agents.FallbackReply,
		FailureReply:   cfg.Agents.FailureReply,
	}, log, routerOpts...)

	return a, nil
}

// newModelClient builds the provider chain from the llm config.
func newModelClient(ctx context.Context, cfg config.LLMConfig, log *logging.Logger) (llm.Client, error) {
	registry, err := llm.NewRegistryFromConfig(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	primary, fallbacks := llm.ModelChain(cfg)
	return agent.NewFailoverClient(registry, primary, fallbacks, log), nil
}

func (a *app) openBookings(ctx context.Context) error {
	switch a.cfg.Booking.Store {
	case "mongo":
		s, err := booking.NewMongoStore(ctx, a.cfg.Booking.MongoURI, a.cfg.Booking.Database, a.log)
		if err != nil {
			return fmt.Errorf("connecting booking store: %w", err)
		}
		a.closers = append(a.closers, func() error { return s.Close(context.Background()) })
		a.bookings = s
	default:
		s := booking.NewMemoryStore()
		if err := s.Seed(ctx, booking.SampleData(time.Now())); err != nil {
			return err
		}
		a.bookings = s
	}
	return nil
}

func (a *app) openMemoryStore(ctx context.Context, openDB func() (*store.DB, error)) (memory.Store, error) {
	mc := a.cfg.Memory
	switch mc.Store {
	case "sqlite":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		return store.NewVectorStore(db), nil
	case "mongo":
		s, err := memory.NewMongoStore(ctx, mc.MongoURI, mc.Database, mc.Collection, mc.VectorIndex)
		if err != nil {
			return nil, fmt.Errorf("connecting memory store: %w", err)
		}
		a.closers = append(a.closers, func() error { return s.Close(context.Background()) })
		return s, nil
	default:
		return memory.NewInMemoryStore(), nil
	}
}

// Close waits for background work and releases every opened resource.
func (a *app) Close() error {
	if a.router != nil {
		a.router.Wait()
	}
	a.hooks.Wait()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
