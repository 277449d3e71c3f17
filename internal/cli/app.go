package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tOgg1/pagechat/internal/auth"
	"github.com/tOgg1/pagechat/internal/cache"
	"github.com/tOgg1/pagechat/internal/config"
	"github.com/tOgg1/pagechat/internal/db"
	"github.com/tOgg1/pagechat/internal/events"
	"github.com/tOgg1/pagechat/internal/graph"
	"github.com/tOgg1/pagechat/internal/inbox"
	"github.com/tOgg1/pagechat/internal/logging"
)

// app holds the shared services a command runs against.
type app struct {
	cfg       *config.Config
	db        *db.DB
	publisher *events.InMemoryPublisher
	redis     *redis.Client
	nats      *nats.Conn
	forwarder *events.NATSForwarder
}

func openDatabase(ctx context.Context, cfg *config.Config) (*db.DB, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	database, err := db.Open(db.Config{
		Path:          cfg.DatabasePath(),
		BusyTimeoutMs: cfg.Database.BusyTimeoutMs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	applied, err := database.MigrateUp(ctx)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if applied > 0 {
		logging.Debug().Int("migrations", applied).Msg("database migrated")
	}
	return database, nil
}

// newApp opens the database and connects the optional redis and NATS
// backends in parallel. Every event published on the app is appended to
// the event log.
func newApp(ctx context.Context) (*app, error) {
	cfg := GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}

	a := &app{cfg: cfg}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		database, err := openDatabase(gctx, cfg)
		if err != nil {
			return err
		}
		a.db = database
		return nil
	})
	if cfg.Cache.RedisURL != "" {
		g.Go(func() error {
			client, err := cache.Connect(gctx, cfg.Cache.RedisURL)
			if err != nil {
				return err
			}
			a.redis = client
			return nil
		})
	}
	if cfg.Events.NATSURL != "" {
		g.Go(func() error {
			conn, err := events.ConnectNATS(cfg.Events.NATSURL)
			if err != nil {
				return err
			}
			a.nats = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.Close()
		return nil, err
	}

	a.publisher = events.NewInMemoryPublisher(events.WithRepository(db.NewEventRepository(a.db)))
	if a.nats != nil {
		a.forwarder = events.NewNATSForwarder(a.nats, cfg.Events.SubjectPrefix)
		if err := a.forwarder.Attach(a.publisher); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to attach event bridge: %w", err)
		}
	}
	return a, nil
}

// Close releases every backend the app opened.
func (a *app) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.nats != nil {
		if err := a.nats.Drain(); err != nil {
			a.nats.Close()
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

// requireOperator blocks until the sign-in state is known and fails when
// sign-in is required and nobody is signed in.
func (a *app) requireOperator(ctx context.Context) (*auth.User, error) {
	if !a.cfg.Auth.Required {
		return nil, nil
	}
	gate := newGate(a.cfg)
	gate.Resolve(ctx)
	user, err := gate.Require(ctx)
	if err != nil {
		var redirect *auth.RedirectError
		if errors.As(err, &redirect) {
			return nil, &PreflightError{
				Message:  "sign-in required",
				Hint:     "this pagechat is configured with auth.required",
				NextStep: "pagechat login",
			}
		}
		return nil, err
	}
	return user, nil
}

func newGate(cfg *config.Config) *auth.Gate {
	store := auth.NewSessionStore(filepath.Join(cfg.Global.ConfigDir, "session.yaml"))
	return auth.NewGate(auth.NewLocalAuthenticator(cfg.Auth.Operators, store))
}

func (a *app) graphClient() (*graph.Client, error) {
	if err := a.cfg.ValidateGraph(); err != nil {
		return nil, &PreflightError{
			Message:  err.Error(),
			Hint:     "set graph.page_id and graph.access_token in config.yaml or PAGECHAT_GRAPH_* variables",
			NextStep: "pagechat config show",
		}
	}
	return graph.NewClient(graph.Config{
		BaseURL:     a.cfg.Graph.BaseURL,
		PageID:      a.cfg.Graph.PageID,
		AccessToken: a.cfg.Graph.AccessToken,
		Timeout:     a.cfg.Graph.Timeout,
	})
}

// viewStore picks the shared redis store when configured, otherwise the
// local database.
func (a *app) viewStore(pageID string) inbox.ViewStore {
	if a.redis != nil {
		return cache.NewViewMarkStore(a.redis, pageID, a.cfg.Cache.ViewMarkTTL)
	}
	return db.NewViewMarkRepository(a.db, pageID)
}

func pollingConfig(cfg *config.Config) inbox.Config {
	return inbox.Config{
		ConversationInterval: cfg.Polling.ConversationInterval,
		MessageInterval:      cfg.Polling.MessageInterval,
		StalenessPageSize:    cfg.Polling.StalenessPageSize,
		SendSettleDelay:      cfg.Polling.SendSettleDelay,
	}
}

// newSession builds an inbox session over the Graph API with view marks
// loaded from the configured store.
func (a *app) newSession(ctx context.Context) (*inbox.Session, error) {
	client, err := a.graphClient()
	if err != nil {
		return nil, err
	}
	session := inbox.NewSession(client, pollingConfig(a.cfg),
		inbox.WithPublisher(a.publisher),
		inbox.WithViewStore(a.viewStore(client.PageID())),
	)
	if err := session.Views().Load(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to load view marks")
	}
	return session, nil
}
