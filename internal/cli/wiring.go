package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/config"
	amqpbus "classroom-quiz-service/internal/infra/amqp"
	"classroom-quiz-service/internal/infra/memory"
	"classroom-quiz-service/internal/infra/postgres"
	redisinfra "classroom-quiz-service/internal/infra/redis"
	"classroom-quiz-service/internal/infra/slots"
	"classroom-quiz-service/internal/infra/sqlite"
	"classroom-quiz-service/internal/realtime"
)

// backends holds everything opened for one process so it can be closed in one place.
type backends struct {
	store     app.Store
	publisher app.Publisher
	redis     *redis.Client
	// listeners run until ctx is cancelled and forward remote events locally.
	listeners []func(ctx context.Context) error
	closers   []func()
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (b *backends) redisClient(cfg config.Config) *redis.Client {
	if b.redis == nil {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		client := b.redis
		b.closers = append(b.closers, func() { _ = client.Close() })
	}
	return b.redis
}

// openBackends opens the configured store and event bus. One-shot commands
// pass a nil hub: they still publish to a shared bus but never consume it.
func openBackends(ctx context.Context, cfg config.Config, hub *realtime.Hub) (*backends, error) {
	b := &backends{publisher: app.NopPublisher{}}
	if err := b.openStore(ctx, cfg); err != nil {
		b.Close()
		return nil, err
	}
	if err := b.openBus(cfg, hub); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *backends) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		if err := postgres.Migrate(ctx, cfg.Postgres.URL); err != nil {
			return err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, pool.Close)
		b.store = postgres.NewStore(pool)

	case config.StorageSQLite:
		store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = store.Close() })
		b.store = store

	case config.StorageSlotsMemory:
		b.store = watch(slots.New(memory.NewBackend()))

	case config.StorageSlotsRedis:
		client := b.redisClient(cfg)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		backend := redisinfra.NewSlotBackend(client, cfg.Redis.KeyPrefix)
		store := watch(slots.New(backend))
		b.listeners = append(b.listeners, func(ctx context.Context) error {
			return backend.Listen(ctx, func(slot string) {
				store.Notify(slots.Change{Slot: slot, Origin: slots.OriginRemote})
			}, nil)
		})
		b.store = store

	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	log.Infof("using %s storage", cfg.Storage.Driver)
	return nil
}

// watch logs slot changes; remote ones mean another instance wrote shared state.
func watch(store *slots.Store) *slots.Store {
	store.Subscribe(func(c slots.Change) {
		log.WithFields(log.Fields{"slot": c.Slot, "origin": c.Origin}).Debug("slot changed")
	})
	return store
}

func (b *backends) openBus(cfg config.Config, hub *realtime.Hub) error {
	switch cfg.Events.Driver {
	case config.EventsMemory:
		if hub != nil {
			b.publisher = hub
		}

	case config.EventsRedis:
		bus := redisinfra.NewBus(b.redisClient(cfg), cfg.Redis.KeyPrefix)
		b.publisher = bus
		if hub != nil {
			b.listeners = append(b.listeners, func(ctx context.Context) error {
				return bus.Run(ctx, hub, nil)
			})
		}

	case config.EventsAMQP:
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = amqpbus.DefaultExchange
		}
		bus, err := amqpbus.Dial(cfg.AMQP.URL, exchange)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = bus.Close() })
		b.publisher = bus
		if hub != nil {
			b.listeners = append(b.listeners, func(ctx context.Context) error {
				return bus.Run(ctx, hub)
			})
		}

	default:
		return fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
	}
	log.Infof("using %s event bus", cfg.Events.Driver)
	return nil
}
