package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"sportclub/internal/config"
	"sportclub/internal/schedule"

	"github.com/redis/go-redis/v9"
)

// RedisAvailabilityCache хранит рассчитанные слоты и счетчики запросов в Redis.
type RedisAvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisAvailabilityCache(client *redis.Client, ttl time.Duration) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{
		client: client,
		ttl:    ttl,
	}
}

// generationTTL держит счетчик поколений дольше любого запроса в полете
const generationTTL = 24 * time.Hour

// setIfGeneration пишет слоты, только если поколение ключа не изменилось
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if (cur or '0') ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

func availabilityKey(fieldID int64, date string) string {
	return fmt.Sprintf("availability:%d:%s", fieldID, date)
}

func generationKey(fieldID int64, date string) string {
	return fmt.Sprintf("availability:gen:%d:%s", fieldID, date)
}

func (r *RedisAvailabilityCache) GetSlots(ctx context.Context, fieldID int64, date string) ([]schedule.Slot, int64, bool, error) {
	if r.client == nil {
		return nil, 0, false, fmt.Errorf("redis client is nil")
	}
	vals, err := r.client.MGet(ctx, availabilityKey(fieldID, date), generationKey(fieldID, date)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get slots from redis: %w", err)
	}

	var gen int64
	if raw, ok := vals[1].(string); ok {
		gen, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, false, fmt.Errorf("failed to parse slots generation: %w", err)
		}
	}
	val, ok := vals[0].(string)
	if !ok {
		return nil, gen, false, nil
	}

	var slots []schedule.Slot
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		return nil, 0, false, fmt.Errorf("failed to unmarshal slots: %w", err)
	}
	return slots, gen, true, nil
}

// SetSlots пишет слоты атомарно со сверкой поколения, прочитанного в GetSlots
func (r *RedisAvailabilityCache) SetSlots(ctx context.Context, fieldID int64, date string, gen int64, slots []schedule.Slot) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if slots == nil {
		slots = []schedule.Slot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("failed to marshal slots: %w", err)
	}
	keys := []string{availabilityKey(fieldID, date), generationKey(fieldID, date)}
	err = setIfGeneration.Run(ctx, r.client, keys, strconv.FormatInt(gen, 10), data, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to set slots in redis: %w", err)
	}
	return nil
}

// Invalidate удаляет слоты и сдвигает поколение ключа
func (r *RedisAvailabilityCache) Invalidate(ctx context.Context, fieldID int64, date string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	genKey := generationKey(fieldID, date)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, availabilityKey(fieldID, date))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete slots from redis: %w", err)
	}
	return nil
}

func (r *RedisAvailabilityCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	rlKey := "rate_limit:" + key
	count, err := r.client.Incr(ctx, rlKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, rlKey, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
