package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Singhary/chaty/api/handlers"
	"github.com/Singhary/chaty/api/middleware"
	"github.com/Singhary/chaty/api/routes"
	"github.com/Singhary/chaty/config"
	"github.com/Singhary/chaty/db"
	"github.com/Singhary/chaty/logging"
	"github.com/Singhary/chaty/services"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const redisRelayPrefix = "chaty:events:"

type backends struct {
	store services.Store
	relay services.Relay
	redis *redis.Client
}

func (b *backends) close(log *zap.Logger) {
	if b.relay != nil {
		if err := b.relay.Close(); err != nil {
			log.Warn("failed to close relay", zap.Error(err))
		}
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}
	// RedisStore closes the client it was built on
	if _, shared := b.store.(*services.RedisStore); b.redis != nil && !shared {
		_ = b.redis.Close()
	}
}

func (b *backends) redisClient(conf *config.ConfigSchema) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	client, err := services.NewRedisClient(conf.Redis)
	if err != nil {
		return nil, err
	}
	b.redis = client
	return client, nil
}

func openStore(conf *config.ConfigSchema, b *backends, log *zap.Logger) error {
	switch conf.Store.Driver {
	case "redis":
		client, err := b.redisClient(conf)
		if err != nil {
			return err
		}
		b.store = services.NewRedisStore(client)
	case "rest":
		b.store = services.NewRESTStore(conf.REST.URL, conf.REST.Token)
	case "sql":
		orm, err := db.Connect(conf, log)
		if err != nil {
			return err
		}
		b.store = services.NewSQLStore(orm)
	}
	log.Info("store ready", zap.String("driver", conf.Store.Driver))
	return nil
}

func openRelay(conf *config.ConfigSchema, b *backends, log *zap.Logger) error {
	switch conf.Relay.Driver {
	case "rabbitmq":
		relay, err := services.NewRabbitRelay(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange, log)
		if err != nil {
			return err
		}
		b.relay = relay
	case "redis":
		client, err := b.redisClient(conf)
		if err != nil {
			return err
		}
		b.relay = services.NewRedisRelay(client, redisRelayPrefix, log)
	case "local":
		b.relay = services.NewLocalRelay()
	}
	log.Info("relay ready", zap.String("driver", conf.Relay.Driver))
	return nil
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "etc/app.yaml", "Path to the configuration file")
	flag.Parse()

	if err := config.LoadConfig(configPath); err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	conf := config.AppConfig

	log, err := logging.New(conf.Logs.Level)
	if err != nil {
		panic("Failed to build logger: " + err.Error())
	}
	defer func() { _ = log.Sync() }()

	if err := run(conf, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(conf *config.ConfigSchema, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := &backends{}
	defer b.close(log)
	if err := openStore(conf, b, log); err != nil {
		return err
	}
	if err := openRelay(conf, b, log); err != nil {
		return err
	}

	users := services.NewUserService(b.store)
	friends := services.NewFriendService(b.store, users, b.relay, log)
	groups := services.NewGroupService(b.store, users, friends, b.relay, log)
	messages := services.NewMessageService(b.store, users, friends, groups, b.relay, log)
	hub := services.NewHub(services.NewTopicPolicy(friends, groups), log)

	if err := b.relay.Start(ctx, hub); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	h := handlers.New(handlers.Deps{
		Store:    b.store,
		Users:    users,
		Friends:  friends,
		Groups:   groups,
		Messages: messages,
		Hub:      hub,
		Log:      log,
	})
	router := routes.NewRouter(h, users, middleware.AuthOptions{
		JWTSecret:       []byte(conf.Auth.JWTSecret),
		AllowTestTokens: conf.Auth.AllowTestTokens,
	}, log)

	srv := &http.Server{
		Addr:              conf.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
