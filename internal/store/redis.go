package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/go-redis/redis/v8"

	"procodus.dev/hardwater/pkg/water"
)

const redisPrefix = "water_data"

// RedisConfig holds the redis connection settings.
type RedisConfig struct {
	Logger   *slog.Logger
	Addr     string
	Password string
	DB       int
}

// Redis is a Store laid out as one set of areas, and per area a sorted set of
// storage keys (all scored 0, ordered lexically) plus a hash of key to JSON.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to redis and verifies the connection.
func NewRedis(cfg *RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, errors.New("redis config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	cfg.Logger.Info("connecting to redis", "addr", cfg.Addr, "db", cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	r := &Redis{client: client, logger: cfg.Logger}
	if err := r.Ping(context.Background()); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	cfg.Logger.Info("redis connection established")
	return r, nil
}

// areasKey cannot collide with a per-area key: an AreaID never starts with an
// underscore and never contains a colon.
func areasKey() string {
	return redisPrefix + ":_areas"
}

func indexKey(area water.AreaID) string {
	return redisPrefix + ":" + area.String() + ":keys"
}

func dataKey(area water.AreaID) string {
	return redisPrefix + ":" + area.String()
}

func (r *Redis) Put(ctx context.Context, area water.AreaID, key string, reading water.Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, areasKey(), area.String())
		pipe.ZAdd(ctx, indexKey(area), &redis.Z{Score: 0, Member: key})
		pipe.HSet(ctx, dataKey(area), key, payload)
		return nil
	})
	if err != nil {
		return unavailable("put reading", err)
	}
	return nil
}

func (r *Redis) GetRange(ctx context.Context, area water.AreaID, limit int) ([]StoredReading, error) {
	if err := validLimit(limit); err != nil {
		return nil, err
	}

	keys, err := r.client.ZRangeByLex(ctx, indexKey(area), &redis.ZRangeBy{
		Min:   "-",
		Max:   "+",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, unavailable("get range", err)
	}
	if len(keys) == 0 {
		return []StoredReading{}, nil
	}

	values, err := r.client.HMGet(ctx, dataKey(area), keys...).Result()
	if err != nil {
		return nil, unavailable("get range", err)
	}

	out := make([]StoredReading, 0, len(keys))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			r.logger.Warn("index entry without data", "area", area, "key", keys[i])
			continue
		}
		var reading water.Reading
		if err := json.Unmarshal([]byte(raw), &reading); err != nil {
			r.logger.Warn("skipping undecodable reading", "area", area, "key", keys[i], "error", err)
			continue
		}
		out = append(out, StoredReading{Key: keys[i], Reading: reading})
	}
	return out, nil
}

func (r *Redis) ListAreas(ctx context.Context) ([]water.AreaID, error) {
	members, err := r.client.SMembers(ctx, areasKey()).Result()
	if err != nil {
		return nil, unavailable("list areas", err)
	}

	areas := make([]water.AreaID, 0, len(members))
	for _, m := range members {
		areas = append(areas, water.AreaID(m))
	}
	slices.Sort(areas)
	return areas, nil
}

func (r *Redis) Clear(ctx context.Context) error {
	areas, err := r.ListAreas(ctx)
	if err != nil {
		return err
	}

	keys := []string{areasKey()}
	for _, a := range areas {
		keys = append(keys, indexKey(a), dataKey(a))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable("clear", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (r *Redis) Close() error {
	r.logger.Info("closing redis connection")
	return r.client.Close()
}
