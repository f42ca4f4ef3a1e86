package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/config"
	"github.com/suhasdevmane/Abacws/internal/datastore"
	"github.com/suhasdevmane/Abacws/internal/httpapi"
	"github.com/suhasdevmane/Abacws/internal/ingest"
	"github.com/suhasdevmane/Abacws/internal/logger"
	"github.com/suhasdevmane/Abacws/internal/mirror"
	"github.com/suhasdevmane/Abacws/internal/notify"
	"github.com/suhasdevmane/Abacws/internal/rules"
	"github.com/suhasdevmane/Abacws/internal/service"
	"github.com/suhasdevmane/Abacws/internal/stream"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "abacws-api")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// datastore engine
	var store datastore.Datastore
	var redisClient *redis.Client
	newMirror := func() datastore.Mirror {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Mirror.Addr,
			Password: cfg.Mirror.Password,
			DB:       cfg.Mirror.DB,
		})
		log.Info("registry mirror enabled", zap.String("addr", cfg.Mirror.Addr))
		return mirror.NewRedisMirror(redisClient, log)
	}
	switch cfg.Engine {
	case "disabled":
		log.Warn("running without a datastore backend")
		store = datastore.NewDisabled()
	case "mysql":
		my := datastore.NewMySQL(cfg.MySQL, cfg.Retry, cfg.SeedDevices, log)
		if cfg.Mirror.Enabled {
			my.SetMirror(newMirror())
		}
		my.Connect(ctx)
		store = my
	default:
		pg := datastore.NewPostgres(cfg.Database, cfg.Retry, cfg.SeedDevices, log)
		if cfg.Mirror.Enabled {
			pg.SetMirror(newMirror())
		}
		pg.Connect(ctx)
		store = pg
	}

	engine := rules.NewEngine(store, log)

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Webhook.URL != "" {
		notifier = notify.NewWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout, log)
		log.Info("rule webhook enabled", zap.String("url", cfg.Webhook.URL))
	}

	broker := stream.NewBroker(ctx, store, engine, notifier, cfg.Stream.Interval, log)

	var bridge *ingest.Bridge
	if cfg.MQTT.Enabled {
		bridge = ingest.NewBridge(store, ingest.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, log)
		if err := bridge.Start(); err != nil {
			log.Error("mqtt ingest failed to start", zap.Error(err))
			bridge = nil
		}
	}

	router := httpapi.NewRouter(log)
	router.RegisterDeviceRoutes(httpapi.NewDevicesHandler(store, log))
	router.RegisterDataSourceRoutes(httpapi.NewDataSourcesHandler(store, log))
	router.RegisterMappingRoutes(httpapi.NewMappingsHandler(store, log))
	router.RegisterRuleRoutes(httpapi.NewRulesHandler(store, engine, log))
	router.RegisterStreamRoutes(httpapi.NewStreamHandler(store, broker, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, cfg.HTTP.ShutdownTimeout, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		cancel()
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
		cancel()
	}

	_ = srv.Stop()
	if bridge != nil {
		bridge.Stop()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	_ = store.Close()
}
