package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/ingestion/types"
	"github.com/zsiec/udplog/internal/logger"
)

const keyPrefix = "udplog:instances:"

// NewClient builds the Redis client described by cfg.
func NewClient(cfg *config.RegistryConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.DialTimeout,
	})
}

// RedisRegistry implements Registry on Redis. Each instance lives under
// udplog:instances:<id> with a TTL; udplog:instances:active indexes the IDs.
type RedisRegistry struct {
	client redis.UniversalClient
	logger logger.Logger
	prefix string
	ttl    time.Duration
}

// NewRedisRegistry creates a new Redis-backed registry
func NewRedisRegistry(client redis.UniversalClient, log logger.Logger, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &RedisRegistry{
		client: client,
		logger: logger.WithComponent(log, "registry"),
		prefix: keyPrefix,
		ttl:    ttl,
	}
}

func (r *RedisRegistry) key(id string) string {
	return r.prefix + id
}

func (r *RedisRegistry) activeKey() string {
	return r.prefix + "active"
}

func (r *RedisRegistry) Register(ctx context.Context, inst *Instance) error {
	if inst == nil || inst.ID == "" {
		return fmt.Errorf("instance must have an ID")
	}
	inst.LastHeartbeat = time.Now()

	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(inst.ID), data, r.ttl)
		pipe.SAdd(ctx, r.activeKey(), inst.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register instance: %w", err)
	}

	r.logger.WithFields(logger.Fields{
		"instance_id": inst.ID,
		"listen_addr": inst.ListenAddr,
	}).Info("Instance registered")
	return nil
}

// Heartbeat does an optimistic read-modify-write so a concurrent Unregister
// is never resurrected.
func (r *RedisRegistry) Heartbeat(ctx context.Context, id string, stats types.Stats) error {
	key := r.key(id)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if stderrors.Is(err, redis.Nil) {
			return ErrInstanceNotFound
		}
		if err != nil {
			return err
		}

		var inst Instance
		if err := json.Unmarshal(data, &inst); err != nil {
			return fmt.Errorf("failed to unmarshal instance: %w", err)
		}
		inst.Stats = stats
		inst.LastHeartbeat = time.Now()

		updated, err := json.Marshal(&inst)
		if err != nil {
			return fmt.Errorf("failed to marshal instance: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, r.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, ErrInstanceNotFound):
		return fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
	default:
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
}

func (r *RedisRegistry) Unregister(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.key(id))
		pipe.SRem(ctx, r.activeKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to unregister instance: %w", err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
	}

	r.logger.WithField("instance_id", id).Info("Instance unregistered")
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, id string) (*Instance, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("instance %s: %w", id, ErrInstanceNotFound)
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return &inst, nil
}

// listScript returns every live record and prunes IDs whose key expired.
var listScript = redis.NewScript(`
	local active_key = KEYS[1]
	local prefix = ARGV[1]
	local active = redis.call('SMEMBERS', active_key)
	local result = {}
	local to_remove = {}

	for i, id in ipairs(active) do
		local inst = redis.call('GET', prefix .. id)
		if inst then
			table.insert(result, inst)
		else
			table.insert(to_remove, id)
		end
	end

	for i, id in ipairs(to_remove) do
		redis.call('SREM', active_key, id)
	end

	return result
`)

func (r *RedisRegistry) List(ctx context.Context) ([]*Instance, error) {
	res, err := listScript.Run(ctx, r.client, []string{r.activeKey()}, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result type from script")
	}

	instances := make([]*Instance, 0, len(values))
	for _, val := range values {
		data, ok := val.(string)
		if !ok {
			r.logger.Warn("Invalid data type in result")
			continue
		}

		var inst Instance
		if err := json.Unmarshal([]byte(data), &inst); err != nil {
			r.logger.WithError(err).Warn("Failed to unmarshal instance")
			continue
		}
		instances = append(instances, &inst)
	}
	return instances, nil
}

// Close closes the Redis client connection
func (r *RedisRegistry) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
