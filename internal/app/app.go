// Package app wires configuration into the substrate, the core services and
// the notification sinks. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/boddenberg/burger-place-bfa-go/internal/config"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/client"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/dynamo"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/kv"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/mongostore"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/notify"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/observability"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/burger-place-bfa-go/internal/infra/supabase"
	"github.com/boddenberg/burger-place-bfa-go/internal/port"
	"github.com/boddenberg/burger-place-bfa-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// App holds the wired core.
type App struct {
	Substrate port.Substrate
	Store     *service.Store
	Orders    *service.OrderEngine
	Sessions  *service.SessionManager
	Cart      *service.CartService
	Inbox     *notify.Inbox
	Metrics   *observability.Metrics

	closers []func(context.Context) error
}

// Close releases backend connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}

// New builds the substrate selected by cfg and the services on top of it.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *zap.Logger) (*App, error) {
	a := &App{Metrics: metrics}

	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	substrate, err := a.openSubstrate(ctx, cfg, httpClient, resilienceCfg, logger)
	if err != nil {
		return nil, err
	}
	a.Substrate = substrate

	adminHash := cfg.AdminPasswordHash
	if adminHash == "" {
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), cfg.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash admin password: %w", err)
		}
		adminHash = string(h)
	}

	keys := service.NewKeys(cfg.StoragePrefix)
	a.Store = service.NewStore(substrate, service.StoreOptions{
		Keys:          keys,
		ActivityLimit: cfg.ActivityLimit,
		BcryptCost:    cfg.BcryptCost,
	}, metrics, logger.Named("store"))

	a.Inbox = notify.NewInbox(logger.Named("notify"))
	var whatsapp port.Notifier
	if cfg.WhatsAppWebhookURL != "" {
		whatsapp = client.NewWhatsAppClient(httpClient, cfg.WhatsAppWebhookURL,
			resilience.NewGuard("whatsapp", resilienceCfg, logger))
		logger.Info("whatsapp notifications enabled")
	}

	a.Orders = service.NewOrderEngine(a.Store, notify.NewFanout(a.Inbox, whatsapp), service.OrderEngineOptions{
		DefaultEtaMinutes: cfg.DefaultEtaMinutes,
		AllowRollback:     cfg.AllowStatusRollback,
	}, metrics, logger.Named("orders"))

	a.Sessions = service.NewSessionManager(substrate, a.Store, service.SessionConfig{
		Secret:            cfg.SessionSecret,
		IdleTimeout:       cfg.AdminIdleTimeout,
		CustomerTTL:       cfg.CustomerTTL,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: adminHash,
		Keys:              keys,
	}, metrics, logger.Named("sessions"))

	a.Cart = service.NewCartService(substrate, a.Store, a.Orders, metrics, logger.Named("cart"))
	return a, nil
}

func (a *App) openSubstrate(ctx context.Context, cfg *config.Config, httpClient *http.Client, rc resilience.Config, logger *zap.Logger) (port.Substrate, error) {
	logger.Info("opening storage", zap.String("backend", cfg.StorageBackend))

	switch cfg.StorageBackend {
	case config.BackendMemory:
		return kv.NewMemory(cfg.MemoryMaxBytes), nil

	case config.BackendFile:
		return kv.NewFile(cfg.StorageDir)

	case config.BackendSupabase:
		c := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey, logger.Named("supabase"))
		return supabase.NewKVStore(c, cfg.SupabaseKVTable, resilience.NewGuard("supabase", rc, logger)), nil

	case config.BackendDynamoDB:
		ddb, err := dynamo.NewClient(ctx, dynamo.ClientConfig{
			Region:          cfg.AWSRegion,
			Endpoint:        cfg.DynamoEndpoint,
			AccessKeyID:     cfg.AWSAccessKey,
			SecretAccessKey: cfg.AWSSecretKey,
		})
		if err != nil {
			return nil, err
		}
		return dynamo.NewStore(ddb, cfg.DynamoTable, resilience.NewGuard("dynamodb", rc, logger)), nil

	case config.BackendMongo:
		mc, err := mongostore.Connect(ctx, cfg.MongoURI, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mc.Disconnect)
		coll := mc.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		return mongostore.NewStore(coll, resilience.NewGuard("mongo", rc, logger)), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}
