// Package chat implements the Redis group chat that agents use to
// coordinate. Each room is a capped Redis list of JSON records, newest
// first; reads return chronological order. Every agent in a swarm —
// root and clones alike — posts to and reads from the same room.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultPrefix namespaces chat keys in a shared Redis instance.
	DefaultPrefix = "kage:groupchat"
	// DefaultRoom is the room agents join when none is configured.
	DefaultRoom = "lobby"
	// DefaultMaxMessages caps the retained history per room.
	DefaultMaxMessages = 200
)

// Config holds Redis connection settings for the group chat.
type Config struct {
	Addr        string // host:port, e.g. "localhost:6379"
	Password    string
	DB          int
	Prefix      string // key prefix (default DefaultPrefix)
	MaxMessages int    // per-room history cap (default DefaultMaxMessages)
}

// Record is a single chat message as stored in Redis.
type Record struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	TS      int64  `json:"ts"` // unix milliseconds
}

// Client posts to and reads from group chat rooms.
type Client struct {
	rdb    *redis.Client
	prefix string
	max    int64
}

// New creates a chat client. The connection is established lazily on
// first use; call Ping to verify reachability up front.
func New(cfg Config) *Client {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	max := int64(cfg.MaxMessages)
	if max <= 0 {
		max = DefaultMaxMessages
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Client{rdb: rdb, prefix: prefix, max: max}
}

// Ping verifies the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) key(room string) string {
	if room == "" {
		room = DefaultRoom
	}
	return c.prefix + ":" + room
}

// Post appends a message to a room and trims the room to its cap.
func (c *Client) Post(ctx context.Context, room, sender, message string) error {
	rec := Record{Sender: sender, Message: message, TS: time.Now().UnixMilli()}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal chat record: %w", err)
	}
	key := c.key(room)
	if err := c.rdb.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("post to %s: %w", key, err)
	}
	if err := c.rdb.LTrim(ctx, key, 0, c.max-1).Err(); err != nil {
		return fmt.Errorf("trim %s: %w", key, err)
	}
	return nil
}

// History returns up to limit messages from a room in chronological
// order (oldest first). limit <= 0 means the full retained history.
// Records that fail to decode are skipped.
func (c *Client) History(ctx context.Context, room string, limit int) ([]Record, error) {
	end := int64(limit) - 1
	if limit <= 0 {
		end = c.max - 1
	}
	vals, err := c.rdb.LRange(ctx, c.key(room), 0, end).Result()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.key(room), err)
	}
	records := make([]Record, 0, len(vals))
	// LPUSH stores newest first; walk backwards for chronological order.
	for i := len(vals) - 1; i >= 0; i-- {
		var rec Record
		if err := json.Unmarshal([]byte(vals[i]), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// FormatHistory renders records as one "[HH:MM:SS] sender: message"
// line per record, for inclusion in an agent's identity message.
func FormatHistory(records []Record) string {
	if len(records) == 0 {
		return "(no messages yet)"
	}
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		ts := time.UnixMilli(rec.TS).Format("15:04:05")
		fmt.Fprintf(&b, "[%s] %s: %s", ts, rec.Sender, rec.Message)
	}
	return b.String()
}
