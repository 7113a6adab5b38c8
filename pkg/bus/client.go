// Package bus wraps the Redis connection shared by the pipeline services:
// stream append/consume through consumer groups, the deduplication set, and
// publish markers. Stream names live in pkg/models; key names belong to the
// services that own them.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ravedigest/ravedigest/pkg/config"
)

var (
	// ErrNoStream is returned when a stream key does not exist yet.
	ErrNoStream = errors.New("stream not found")
	// ErrNoGroup is returned when a consumer group has not been created on
	// the stream.
	ErrNoGroup = errors.New("consumer group not found")
)

// Client is the Redis client used by every service. Methods are safe for
// concurrent use.
type Client struct {
	rdb    *redis.Client
	maxLen int64
}

// NewClient connects to Redis and verifies the connection with a ping.
func NewClient(ctx context.Context, redisCfg config.RedisSettings, svc config.ServiceSettings) (*Client, error) {
	opts, err := redis.ParseURL(redisCfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.PoolSize = 20
	opts.DialTimeout = svc.RedisTimeout
	opts.ReadTimeout = svc.RedisTimeout
	opts.WriteTimeout = svc.RedisTimeout

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Client{rdb: rdb, maxLen: svc.StreamMaxLength}, nil
}

// Append adds fields as a new entry on stream, trimming the stream to
// approximately the configured maximum length.
func (c *Client) Append(ctx context.Context, stream string, fields map[string]string) (string, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: c.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to append to %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group on stream, creating the stream
// itself when missing. The group starts at the beginning of the stream; an
// already existing group is not an error.
func (c *Client) EnsureGroup(ctx context.Context, stream, group string) error {
	err := c.rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup blocks up to block waiting for entries never delivered to the
// group. A timeout with no traffic returns an empty slice, not an error.
func (c *Client) ReadGroup(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if isNoGroupErr(err) {
			return nil, ErrNoGroup
		}
		return nil, fmt.Errorf("failed to read %s: %w", stream, err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

// Pending lists up to limit entries delivered to the group but never
// acknowledged, across all consumers.
func (c *Client) Pending(ctx context.Context, stream, group string, limit int64) ([]redis.XPendingExt, error) {
	entries, err := c.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Start:  "-",
		End:    "+",
		Count:  limit,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if isNoGroupErr(err) {
			return nil, ErrNoGroup
		}
		return nil, fmt.Errorf("failed to list pending on %s: %w", stream, err)
	}
	return entries, nil
}

// Entry fetches a single stream entry by ID. A trimmed-away entry returns
// nil without error.
func (c *Client) Entry(ctx context.Context, stream, id string) (*redis.XMessage, error) {
	msgs, err := c.rdb.XRange(ctx, stream, id, id).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s entry %s: %w", stream, id, err)
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return &msgs[0], nil
}

// Ack acknowledges processed entries for the group.
func (c *Client) Ack(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.rdb.XAck(ctx, stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack on %s: %w", stream, err)
	}
	return nil
}

// IsMember reports whether member is in the set at key.
func (c *Client) IsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := c.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check membership in %s: %w", key, err)
	}
	return ok, nil
}

// AddMember adds member to the set at key.
func (c *Client) AddMember(ctx context.Context, key, member string) error {
	if err := c.rdb.SAdd(ctx, key, member).Err(); err != nil {
		return fmt.Errorf("failed to add member to %s: %w", key, err)
	}
	return nil
}

// GetString returns the value at key; found is false for an absent key.
func (c *Client) GetString(ctx context.Context, key string) (value string, found bool, err error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, true, nil
}

// SetString stores value at key. A positive ttl expires the key; zero
// keeps it forever.
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GroupStatus is a consumer group's progress snapshot. It backs the
// /status endpoints the scheduler polls between pipeline stages.
type GroupStatus struct {
	Stream          string `json:"stream"`
	Group           string `json:"group"`
	Length          int64  `json:"length"`
	LastGeneratedID string `json:"last_generated_id"`
	LastDeliveredID string `json:"last_delivered_id"`
	Pending         int64  `json:"pending"`
	Lag             int64  `json:"lag"`
	Idle            bool   `json:"is_idle"`
}

// Status inspects the group's progress on stream. The group is idle when
// it has been delivered everything ever appended and nothing is pending.
// Returns ErrNoStream or ErrNoGroup when either does not exist yet.
func (c *Client) Status(ctx context.Context, stream, group string) (GroupStatus, error) {
	info, err := c.rdb.XInfoStream(ctx, stream).Result()
	if err != nil {
		if isNoKeyErr(err) {
			return GroupStatus{}, ErrNoStream
		}
		return GroupStatus{}, fmt.Errorf("failed to inspect %s: %w", stream, err)
	}
	groups, err := c.rdb.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return GroupStatus{}, fmt.Errorf("failed to inspect groups on %s: %w", stream, err)
	}
	for _, g := range groups {
		if g.Name != group {
			continue
		}
		status := GroupStatus{
			Stream:          stream,
			Group:           group,
			Length:          info.Length,
			LastGeneratedID: info.LastGeneratedID,
			LastDeliveredID: g.LastDeliveredID,
			Pending:         g.Pending,
			Lag:             g.Lag,
		}
		status.Idle = status.LastGeneratedID == status.LastDeliveredID && status.Pending == 0
		return status, nil
	}
	return GroupStatus{}, ErrNoGroup
}

// Health verifies the connection.
func (c *Client) Health(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func isNoGroupErr(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}

func isNoKeyErr(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
