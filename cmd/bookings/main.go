package main

import (
	"context"
	"fmt"

	"labslot/internal/bookings/handler"
	"labslot/internal/bookings/repository"
	"labslot/internal/bookings/service"
	"labslot/internal/bookings/validator"
	"labslot/internal/membership"
	"labslot/internal/notify"
	"labslot/pkg/app"
	"labslot/pkg/config"
	"labslot/pkg/contracts"
	"labslot/pkg/kafka"
	kafka_config "labslot/pkg/kafka/config"
	kafka_middleware "labslot/pkg/kafka/middleware"
	"labslot/pkg/model"
	"labslot/pkg/rabbitmq"
)

const ServiceName = "bookings"

type stores struct {
	bookings  repository.BookingRepository
	resources repository.ResourceRepository
	directory membership.Directory
	checks    map[string]handler.ReadinessCheck
}

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()

	cfg.Log.Info("Starting Bookings service")
	serverApp := app.NewApplication(cfg)

	st := initStores(cfg)
	dispatcher := initDispatcher(cfg, serverApp)
	serverApp.OnShutdown("store", contracts.CloserFunc(func() error {
		cfg.GracefulShutdown()
		return nil
	}))
	bookingService := initServices(cfg, st, dispatcher)

	serverApp.SetApp(
		handler.NewHealthHandler(st.checks, cfg.Log),
		handler.NewBookingHandler(bookingService, validator.NewBookingValidator(cfg.Log), cfg.Log),
	)
	serverApp.Run()
}

func initStores(cfg *config.Config) stores {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		db := cfg.Client.Postgres
		return stores{
			bookings:  repository.NewPostgresBookingRepository(db, cfg.ReadTimeout, cfg.WriteTimeout),
			resources: repository.NewPostgresResourceRepository(db, cfg.ReadTimeout),
			directory: membership.NewPostgresDirectory(db, cfg.ReadTimeout),
			checks: map[string]handler.ReadinessCheck{
				"postgres": func(ctx context.Context) error {
					sqlDB, err := db.DB()
					if err != nil {
						return err
					}
					return sqlDB.PingContext(ctx)
				},
			},
		}

	case config.StoreMemory:
		store := repository.NewMemoryStore()
		store.AddResource(model.Resource{ID: "demo-bench", Name: "Demo bench", AllowQueueing: true})
		cfg.Log.Warn("Using in-memory store; data is lost on restart", "seeded_resource", "demo-bench")
		return stores{
			bookings:  store,
			resources: store.Resources(),
			directory: membership.NewMemoryDirectory(),
			checks:    map[string]handler.ReadinessCheck{},
		}

	default:
		return stores{
			bookings:  repository.NewMongoBookingRepository(cfg),
			resources: repository.NewMongoResourceRepository(cfg),
			directory: membership.NewMongoDirectory(cfg),
			checks: map[string]handler.ReadinessCheck{
				"mongo": func(ctx context.Context) error {
					return cfg.Client.Mongo.Ping(ctx, nil)
				},
			},
		}
	}
}

func initDispatcher(cfg *config.Config, serverApp *app.Application) *notify.Dispatcher {
	sink, afterClose, err := initSink(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize dispatch sink", "backend", cfg.DispatchBackend, "error", err)
	}
	dispatcher := notify.NewDispatcher(sink, cfg)

	serverApp.OnShutdown("dispatcher", dispatcher)
	if afterClose != nil {
		serverApp.OnShutdown("dispatch-metrics", afterClose)
	}
	cfg.Log.Info("Dispatcher initialized", "backend", cfg.DispatchBackend)
	return dispatcher
}

// initSink builds the transport for the configured dispatch backend. The
// returned closer, when set, runs after the dispatcher has drained.
func initSink(cfg *config.Config) (notify.Sink, contracts.Closer, error) {
	switch cfg.DispatchBackend {
	case config.DispatchRabbitMQ:
		publisher, err := rabbitmq.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, nil, err
		}
		cfg.Log.Info("RabbitMQ publisher ready", "exchange", publisher.Exchange())
		return notify.NewRabbitSink(publisher), nil, nil

	case config.DispatchLog:
		return notify.NewLogSink(cfg.Log), nil, nil

	default:
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			return nil, nil, err
		}
		kafkaCfg.LogConfiguration(cfg.Log)

		metrics := kafka_middleware.NewMetrics()
		var producers []*kafka.Producer
		for _, topic := range []string{cfg.NotificationTopic, cfg.AuditTopic} {
			producer, err := kafka.NewProducer(kafkaCfg, topic, cfg.DispatchDLQTopic, cfg.Log)
			if err != nil {
				for _, p := range producers {
					_ = p.Close()
				}
				return nil, nil, fmt.Errorf("producer for %s: %w", topic, err)
			}
			producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
			producer.Use(metrics.ProducerMiddleware())
			producers = append(producers, producer)
		}

		logMetrics := contracts.CloserFunc(func() error {
			metrics.Log(cfg.Log)
			return nil
		})
		return notify.NewKafkaSink(producers...), logMetrics, nil
	}
}

func initServices(cfg *config.Config, st stores, dispatcher *notify.Dispatcher) service.BookingService {
	resolver := membership.NewResolver(st.directory, cfg.Log)
	promoter := service.NewPromoter(st.bookings, st.resources, resolver, dispatcher, cfg)
	bookingService := service.NewBookingService(st.bookings, st.resources, promoter, dispatcher, cfg)

	cfg.Log.Info("Booking service initialized", "store_backend", cfg.StoreBackend)
	return bookingService
}
