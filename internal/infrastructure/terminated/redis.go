package terminated

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ersonp/stinet/internal/domain/entities"
	"github.com/ersonp/stinet/internal/infrastructure/config"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisSet shares the terminated set between processes simulating different nodes.
// Each step is a hash keyed <prefix>:<run>:terminated:<step> mapping relationship id to node id.
// Steps are synchronous: every process has finished step t-1 before any advances to t.
type RedisSet struct {
	client   *redis.Client
	prefix   string
	runID    string
	ttl      time.Duration
	step     int64
	previous map[entities.Suid]struct{}
	logger   *zap.Logger
}

// NewRedisClient creates a redis client from the configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisSet creates a set for one run.
func NewRedisSet(client *redis.Client, cfg config.RedisConfig, runID string, logger *zap.Logger) *RedisSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "stinet"
	}
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisSet{
		client:   client,
		prefix:   prefix,
		runID:    runID,
		ttl:      ttl,
		step:     -1,
		previous: make(map[entities.Suid]struct{}),
		logger:   logger,
	}
}

// Ping checks the connection.
func (s *RedisSet) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (s *RedisSet) key(step int64) string {
	return s.prefix + ":" + s.runID + ":terminated:" + strconv.FormatInt(step, 10)
}

// Advance loads the relationships terminated during step-1 and starts collecting for step.
func (s *RedisSet) Advance(ctx context.Context, step int64) error {
	s.step = step
	s.previous = make(map[entities.Suid]struct{})

	fields, err := s.client.HKeys(ctx, s.key(step-1)).Result()
	if err != nil {
		return fmt.Errorf("loading terminated set of step %d: %w", step-1, err)
	}
	for _, f := range fields {
		id, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing terminated relationship id %q: %w", f, err)
		}
		s.previous[entities.Suid(id)] = struct{}{}
	}

	s.logger.Debug("terminated set advanced",
		zap.Int64("step", step),
		zap.Int("visible", len(s.previous)),
	)
	return nil
}

// Add records that relID was terminated in nodeID during the current step.
func (s *RedisSet) Add(ctx context.Context, nodeID, relID entities.Suid) error {
	key := s.key(s.step)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.FormatUint(uint64(relID), 10), uint64(nodeID))
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("adding %s to terminated set: %w", relID, err)
	}
	return nil
}

// WasTerminatedLastStep reports whether relID was added during the previous step.
func (s *RedisSet) WasTerminatedLastStep(_ context.Context, relID entities.Suid) (bool, error) {
	_, ok := s.previous[relID]
	return ok, nil
}
