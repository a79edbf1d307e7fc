// Package cache fronts a functions.Registry with redis. Redis is never the
// source of truth: any redis error falls back to the wrapped registry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/husseinmohab/radical-faas/internal/config"
	"github.com/husseinmohab/radical-faas/internal/core/functions"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "radical-faas:function:"

type Registry struct {
	next functions.Registry
	rdb  *redis.Client
	ttl  time.Duration
	lg   zerolog.Logger
}

func New(next functions.Registry, cfg config.Config, lg zerolog.Logger) *Registry {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	return newRegistry(next, rdb, cfg.RedisTTL, lg)
}

func newRegistry(next functions.Registry, rdb *redis.Client, ttl time.Duration, lg zerolog.Logger) *Registry {
	return &Registry{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
		lg:   lg.With().Str("adapter", "cache").Logger(),
	}
}

func key(name string) string { return keyPrefix + name }

// Ping reports whether redis is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Registry) Get(ctx context.Context, name string) (*functions.FunctionRecord, error) {
	b, err := r.rdb.Get(ctx, key(name)).Bytes()
	switch {
	case err == nil:
		var rec functions.FunctionRecord
		if jerr := json.Unmarshal(b, &rec); jerr == nil {
			return &rec, nil
		}
		r.lg.Warn().Str("function", name).Msg("discarding undecodable cache entry")
		r.invalidate(ctx, name)
	case errors.Is(err, redis.Nil):
	default:
		r.lg.Warn().Err(err).Str("function", name).Msg("cache read failed")
	}

	rec, err := r.next.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	// SETNX: an Upsert that raced this read has already written a newer entry
	if b, err := json.Marshal(rec); err == nil {
		if err := r.rdb.SetNX(ctx, key(name), b, r.ttl).Err(); err != nil {
			r.lg.Warn().Err(err).Str("function", name).Msg("cache write failed")
		}
	}
	return rec, nil
}

// Upsert writes through, so a concurrent Get can never repopulate the key
// with the record being replaced.
func (r *Registry) Upsert(ctx context.Context, rec *functions.FunctionRecord) error {
	if err := r.next.Upsert(ctx, rec); err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err == nil {
		err = r.rdb.Set(ctx, key(rec.Name), b, r.ttl).Err()
	}
	if err != nil {
		r.lg.Warn().Err(err).Str("function", rec.Name).Msg("cache write failed")
		r.invalidate(ctx, rec.Name)
	}
	return nil
}

func (r *Registry) List(ctx context.Context) ([]functions.FunctionRecord, error) {
	return r.next.List(ctx)
}

func (r *Registry) Delete(ctx context.Context, name string) error {
	if err := r.next.Delete(ctx, name); err != nil {
		return err
	}
	r.invalidate(ctx, name)
	return nil
}

func (r *Registry) invalidate(ctx context.Context, name string) {
	if err := r.rdb.Del(ctx, key(name)).Err(); err != nil {
		r.lg.Warn().Err(err).Str("function", name).Msg("cache invalidation failed")
	}
}

func (r *Registry) Close() error {
	if err := r.rdb.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
