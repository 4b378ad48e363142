package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"outbound-crm/internal/association"
	"outbound-crm/internal/audit"
	"outbound-crm/internal/calls"
	"outbound-crm/internal/config"
	"outbound-crm/internal/domain"
	"outbound-crm/internal/eligibility"
	"outbound-crm/internal/events"
	"outbound-crm/internal/httpapi"
	"outbound-crm/internal/reporting"
	"outbound-crm/internal/resolver"
	"outbound-crm/internal/store"
	"outbound-crm/internal/store/memory"
	"outbound-crm/internal/store/postgres"
	"outbound-crm/internal/terminal"
	"outbound-crm/pkg/logger"
	"outbound-crm/pkg/utils"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
)

const syncStreamMaxLen = 100_000

// Container is the process dependency graph. Providers are lazy: a resource is
// opened the first time something invokes it, and only opened resources are closed.
type Container struct {
	*do.Injector

	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func (c *Container) onClose(name string, fn func(ctx context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Close releases resources in reverse order of construction. The event dispatcher
// drains before the connections its sink writes to are closed.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	closers := slices.Clone(c.closers)
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", closers[i].name, err))
		}
	}
	return errors.Join(errs...)
}

func New(cfg config.Config, log *slog.Logger) *Container {
	c := &Container{Injector: do.New()}
	inj := c.Injector
	log = logger.OrDefault(log)

	do.ProvideValue(inj, cfg)
	do.ProvideValue(inj, log)
	do.ProvideValue(inj, cfg.DomainPolicy())

	// Postgres
	do.Provide(inj, func(i *do.Injector) (*sql.DB, error) {
		cfg := do.MustInvoke[config.Config](i)
		ctx := context.Background()
		db, err := utils.OpenPostgres(ctx, postgres.DriverName, cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			return nil, err
		}
		if cfg.DB.AutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("schema migrated")
		}
		c.onClose("postgres", func(context.Context) error { return db.Close() })
		return db, nil
	})

	// Store
	do.Provide(inj, func(i *do.Injector) (store.Store, error) {
		cfg := do.MustInvoke[config.Config](i)
		switch cfg.Store.Driver {
		case config.StoreDriverMemory:
			log.Warn("using in-memory store; data is lost on restart")
			return memory.New(), nil
		case config.StoreDriverPostgres:
			return postgres.New(do.MustInvoke[*sql.DB](i)), nil
		default:
			return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
		}
	})

	// Audit
	do.Provide(inj, func(i *do.Injector) (audit.Repository, error) {
		cfg := do.MustInvoke[config.Config](i)
		if cfg.Store.Driver == config.StoreDriverMemory {
			return audit.NewMemoryRepo(), nil
		}
		return audit.NewPostgresRepo(do.MustInvoke[*sql.DB](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*audit.Service, error) {
		return audit.NewService(do.MustInvoke[audit.Repository](i)), nil
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[config.Config](i)
		rdb, err := utils.OpenRedis(context.Background(), utils.RedisConfig{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
		})
		if err != nil {
			return nil, err
		}
		c.onClose("redis", func(context.Context) error { return rdb.Close() })
		return rdb, nil
	})

	// RabbitMQ
	do.Provide(inj, func(i *do.Injector) (*amqp.Connection, error) {
		cfg := do.MustInvoke[config.Config](i)
		conn, err := amqp.Dial(cfg.Sync.AMQPURL)
		if err != nil {
			return nil, fmt.Errorf("amqp dial: %w", err)
		}
		c.onClose("amqp", func(context.Context) error { return conn.Close() })
		return conn, nil
	})

	// CRM sync
	do.Provide(inj, func(i *do.Injector) (events.Sink, error) {
		cfg := do.MustInvoke[config.Config](i)
		switch cfg.Sync.Sink {
		case config.SinkLog:
			return events.NewLogSink(log), nil
		case config.SinkRedis:
			return events.NewRedisSink(do.MustInvoke[*redis.Client](i), cfg.Sync.RedisStream, syncStreamMaxLen), nil
		case config.SinkAMQP:
			sink, err := events.NewAMQPSink(do.MustInvoke[*amqp.Connection](i), cfg.Sync.AMQPExchange)
			if err != nil {
				return nil, err
			}
			return sink, nil
		default:
			return nil, fmt.Errorf("no sink for SYNC_SINK=%q", cfg.Sync.Sink)
		}
	})
	do.Provide(inj, func(i *do.Injector) (events.Publisher, error) {
		cfg := do.MustInvoke[config.Config](i)
		if cfg.Sync.Sink == config.SinkNone {
			return events.Nop{}, nil
		}
		sink, err := do.Invoke[events.Sink](i)
		if err != nil {
			return nil, err
		}
		d := events.NewDispatcher(sink, cfg.Sync.Buffer, log)
		d.Start()
		c.onClose("crm sync", d.Close)
		return d, nil
	})

	// Services
	do.Provide(inj, func(i *do.Injector) (*resolver.ProjectService, error) {
		return resolver.NewProjectService(do.MustInvoke[store.Store](i), do.MustInvoke[events.Publisher](i), log), nil
	})
	do.Provide(inj, func(i *do.Injector) (*resolver.ContactService, error) {
		svc := resolver.NewContactService(do.MustInvoke[store.Store](i), do.MustInvoke[events.Publisher](i), log)
		svc.RejectAmbiguous = do.MustInvoke[config.Config](i).Policy.RejectAmbiguousContacts
		return svc, nil
	})
	do.Provide(inj, func(i *do.Injector) (*association.Manager, error) {
		return association.NewManager(do.MustInvoke[store.Store](i), do.MustInvoke[events.Publisher](i), log), nil
	})
	do.Provide(inj, func(i *do.Injector) (*terminal.Registry, error) {
		return terminal.NewRegistry(
			do.MustInvoke[store.Store](i),
			do.MustInvoke[*audit.Service](i),
			do.MustInvoke[events.Publisher](i),
			log,
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*calls.Ledger, error) {
		return calls.NewLedger(
			do.MustInvoke[store.Store](i),
			do.MustInvoke[*association.Manager](i),
			do.MustInvoke[domain.Policy](i),
			do.MustInvoke[events.Publisher](i),
			log,
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*eligibility.Engine, error) {
		cfg := do.MustInvoke[config.Config](i)
		return eligibility.NewEngine(
			do.MustInvoke[store.Store](i),
			do.MustInvoke[*terminal.Registry](i),
			do.MustInvoke[domain.Policy](i),
			eligibility.Options{
				BulkDefaultLimit: cfg.Policy.BulkDefaultLimit,
				BulkConcurrency:  cfg.Policy.BulkConcurrency,
				Logger:           log,
			},
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*reporting.Service, error) {
		return reporting.NewService(do.MustInvoke[store.Store](i)), nil
	})

	// HTTP
	do.Provide(inj, func(i *do.Injector) (httpapi.Handlers, error) {
		st := do.MustInvoke[store.Store](i)
		h := httpapi.Handlers{
			Projects:    do.MustInvoke[*resolver.ProjectService](i),
			Contacts:    do.MustInvoke[*resolver.ContactService](i),
			Links:       do.MustInvoke[*association.Manager](i),
			Ledger:      do.MustInvoke[*calls.Ledger](i),
			Terminals:   do.MustInvoke[*terminal.Registry](i),
			Eligibility: do.MustInvoke[*eligibility.Engine](i),
			Reports:     do.MustInvoke[*reporting.Service](i),
		}
		if p, ok := st.(interface{ Ping(context.Context) error }); ok {
			h.Ping = p.Ping
		}
		return h, nil
	})

	return c
}
