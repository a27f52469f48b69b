package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"usergrid/internal/api"
	"usergrid/internal/config"
	"usergrid/internal/datasource"
	"usergrid/internal/grid"
	"usergrid/internal/layout"
	"usergrid/internal/logger"
	"usergrid/internal/ops"
	"usergrid/internal/presence"
	"usergrid/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load() // optional .env for local dev

	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, "usergrid")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)

	layouts := layout.NewManager(kv, log)
	layouts.Load(context.Background())

	client := api.NewClient(cfg.API.BaseURL, log)

	controller := grid.New(grid.Config{
		Fetcher:  client,
		Deleter:  client,
		Layouts:  layouts,
		Events:   logEvents{log},
		Notifier: logNotifier{log},
		InitialQuery: datasource.Query{
			Page:      1,
			PageSize:  cfg.Grid.PageSize,
			SortField: cfg.Grid.SortField,
			SortDesc:  cfg.Grid.SortDesc,
		},
		Logger: log,
	}, client)

	source, err := presenceSource(cfg, log)
	if err != nil {
		log.Fatal("presence source setup failed", zap.Error(err))
	}
	controller.Subscribe(source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go controller.Run(ctx)

	if err := source.Connect(); err != nil {
		// the grid stays usable with stale presence
		log.Warn("presence feed unavailable at startup", zap.Error(err))
	}

	controller.Refresh(ctx)

	opsServer := ops.NewServer(cfg.Ops.Addr, log)
	go opsServer.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	_ = source.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = opsServer.Shutdown(shutdownCtx)
}

// presenceSource picks the configured transport. The websocket endpoint is
// derived from the console origin, never hard-coded.
func presenceSource(cfg *config.Config, log *zap.Logger) (presence.Source, error) {
	if cfg.Presence.Transport == "mqtt" {
		return presence.NewMQTTSource(presence.MQTTOptions{
			Broker:   cfg.Presence.MQTT.Broker,
			ClientID: cfg.Presence.MQTT.ClientID,
			Username: cfg.Presence.MQTT.Username,
			Password: cfg.Presence.MQTT.Password,
			Topic:    cfg.Presence.MQTT.Topic,
			QoS:      cfg.Presence.MQTT.QoS,
		}, log), nil
	}

	url, err := presence.FeedURL(cfg.Console.Origin, cfg.Console.APIPort)
	if err != nil {
		return nil, err
	}
	return presence.NewChannel(presence.Options{
		URL:         url,
		BaseDelay:   cfg.Presence.BaseDelay,
		MaxDelay:    cfg.Presence.MaxDelay,
		MaxAttempts: cfg.Presence.MaxAttempts,
	}, log), nil
}

// logEvents and logNotifier stand in for the host application's modal and
// toast surfaces when the engine runs as a bare daemon.
type logEvents struct{ log *zap.Logger }

func (e logEvents) OnRowSelected(id string) { e.log.Info("row selected", zap.String("row_id", id)) }
func (e logEvents) OnRowDeleted(id string)  { e.log.Info("row deleted", zap.String("row_id", id)) }
func (e logEvents) OnEditFullProfile(id string) {
	e.log.Info("edit full profile requested", zap.String("row_id", id))
}

type logNotifier struct{ log *zap.Logger }

func (n logNotifier) Success(msg string) { n.log.Info("notify", zap.String("message", msg)) }
func (n logNotifier) Error(msg string)   { n.log.Warn("notify", zap.String("message", msg)) }
