package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/zulandar/soundcheck/internal/config"
	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/ledger"
	"github.com/zulandar/soundcheck/internal/notify"
	"github.com/zulandar/soundcheck/internal/notify/discord"
	"github.com/zulandar/soundcheck/internal/notify/mail"
	"github.com/zulandar/soundcheck/internal/notify/slack"
	"github.com/zulandar/soundcheck/internal/reaper"
	"github.com/zulandar/soundcheck/internal/review"
	"github.com/zulandar/soundcheck/internal/stats"
	"gorm.io/gorm"
)

func connectFromConfig(configPath string) (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, gormDB, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// buildSinks returns a fanout over every configured sink. The log sink is
// always present.
func buildSinks(cfg *config.Config) (*notify.Fanout, error) {
	sinks := []notify.Sink{notify.LogSink{}}
	n := cfg.Notify
	if n.Slack.BotToken != "" {
		s, err := slack.New(slack.Opts{BotToken: n.Slack.BotToken, Channel: n.Slack.Channel})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if n.Discord.BotToken != "" {
		s, err := discord.New(discord.Opts{BotToken: n.Discord.BotToken, Channel: n.Discord.Channel})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if n.SMTP.Host != "" {
		s, err := mail.New(mail.Opts{
			Host:     n.SMTP.Host,
			Port:     n.SMTP.Port,
			Username: n.SMTP.Username,
			Password: n.SMTP.Password,
			From:     n.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return notify.NewFanout(sinks...), nil
}

// buildEmitter returns the emitter for post-commit facts. With notify.async
// set, events are enqueued for `sc worker`; otherwise they are delivered
// inline. The returned closer releases the queue client.
func buildEmitter(cfg *config.Config) (notify.Emitter, io.Closer, error) {
	if cfg.Notify.Async {
		client := asynq.NewClient(redisOpt(cfg))
		return notify.NewQueue(client), client, nil
	}
	fan, err := buildSinks(cfg)
	if err != nil {
		return nil, nil, err
	}
	return fan, nopCloser{}, nil
}

// buildStats returns a stats reader backed by redis when configured.
func buildStats(cfg *config.Config, gormDB *gorm.DB) (*stats.Reader, io.Closer) {
	r := &stats.Reader{DB: gormDB, TTL: cfg.Scheduler.StatsTTL}
	if cfg.Redis.Addr == "" {
		r.Cache = stats.NewMemoryCache(nil)
		return r, nopCloser{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	r.Cache = stats.NewRedisCache(client)
	return r, client
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// schedulerOpts derives the per-package operation options from cfg.
func schedulerOpts(cfg *config.Config, emitter notify.Emitter) (review.Opts, ledger.Opts, reaper.Opts) {
	ro := review.OptsFromConfig(cfg, emitter)
	lo := ledger.Opts{
		Catalog: ro.Catalog,
		Assign:  ro.AssignOpts(),
		Emitter: emitter,
	}
	return ro, lo, reaper.Opts{Assign: ro.AssignOpts()}
}
