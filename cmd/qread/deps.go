// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/account/postgres"
	"github.com/qread/qread/internal/admin"
	"github.com/qread/qread/internal/auth"
	"github.com/qread/qread/internal/config"
	"github.com/qread/qread/internal/credential"
	"github.com/qread/qread/internal/notify"
	"github.com/qread/qread/internal/observability"
	"github.com/qread/qread/internal/provision"
	"github.com/qread/qread/internal/secret"
	"github.com/qread/qread/internal/store"
)

// components are the wired services of one process.
type components struct {
	pool       *pgxpool.Pool
	redis      *redis.Client
	memCache   *secret.MemoryCache
	accounts   account.Repository
	tx         account.Transactor
	cache      secret.Cache
	dispatcher *notify.Dispatcher
	auth       *auth.Service
	provision  *provision.Service
	admin      *admin.Service
}

// openStorage connects the account store. Without a database URL accounts
// live in memory for the life of the process.
func (c *components) openStorage(ctx context.Context, cfg store.PoolConfig, logger *slog.Logger) error {
	if cfg.URL == "" {
		logger.Warn("no database configured, accounts are kept in memory")
		mem := account.NewMemoryStore()
		c.accounts, c.tx = mem, mem
		return nil
	}

	pool, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	c.pool = pool
	c.accounts = postgres.NewAccountRepository(pool)
	c.tx = store.NewTransactor(pool, logger)
	logger.Info("connected to database")
	return nil
}

func (c *components) openCache(ctx context.Context, cfg config.CacheConfig, logger *slog.Logger) error {
	if cfg.Backend == config.CacheMemory {
		c.memCache = secret.NewMemoryCache()
		c.cache = c.memCache
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return oops.Code("CACHE_CONNECT_FAILED").With("addr", cfg.RedisAddr).Wrap(err)
	}
	c.redis = client
	c.cache = secret.NewRedisCache(client, cfg.KeyPrefix)
	logger.Info("connected to redis", "addr", cfg.RedisAddr)
	return nil
}

func newSender(cfg config.MailConfig, logger *slog.Logger) (notify.Sender, error) {
	if cfg.Backend == config.MailSMTP {
		return notify.NewSMTPSender(cfg.SMTP())
	}
	return notify.NewLogSender(logger), nil
}

// newComponents wires every service from cfg. On error, whatever was
// opened is closed again.
func newComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.AuthMetrics) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			c.close(context.Background(), logger)
		}
	}()

	if err = c.openStorage(ctx, cfg.Database, logger); err != nil {
		return nil, err
	}
	if err = c.openCache(ctx, cfg.Cache, logger); err != nil {
		return nil, err
	}

	sender, err := newSender(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}
	if c.dispatcher, err = notify.NewDispatcher(sender, cfg.Mail.Dispatch(), logger, metrics); err != nil {
		return nil, err
	}

	hasher := credential.NewArgon2idHasher(cfg.Auth.Hashing())
	c.auth, err = auth.NewService(cfg.Auth.Service(), auth.Deps{
		Accounts: c.accounts,
		Tx:       c.tx,
		Hasher:   hasher,
		Cache:    c.cache,
		Notifier: c.dispatcher,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}
	c.provision, err = provision.NewService(cfg.Auth.Provisioning(), provision.Deps{
		Accounts: c.accounts,
		Tx:       c.tx,
		Hasher:   hasher,
		Actions:  secret.NewActions(c.cache),
		Notifier: c.dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if c.admin, err = admin.NewService(c.accounts, c.tx, logger); err != nil {
		return nil, err
	}
	return c, nil
}

// ready reports whether the backing stores answer.
func (c *components) ready(ctx context.Context) error {
	if c.pool != nil {
		if err := c.pool.Ping(ctx); err != nil {
			return oops.With("dependency", "postgres").Wrap(err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Ping(ctx).Err(); err != nil {
			return oops.With("dependency", "redis").Wrap(err)
		}
	}
	return nil
}

// close drains outbound mail and releases connections.
func (c *components) close(ctx context.Context, logger *slog.Logger) {
	c.drainMail(ctx, logger)
	c.release(logger)
}

func (c *components) drainMail(ctx context.Context, logger *slog.Logger) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Close(ctx); err != nil {
		logger.Warn("error draining mail", "error", err)
	}
}

func (c *components) release(logger *slog.Logger) {
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}
	if c.pool != nil {
		c.pool.Close()
	}
}
