package valkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"
)

const (
	// DefaultConnectTimeout bounds the initial ping in NewClient.
	DefaultConnectTimeout = 5 * time.Second

	// scanBatch is the COUNT hint sent with every SCAN page.
	scanBatch = 100
	// delBatch caps the number of keys sent in one DEL.
	delBatch = 500
)

// Config holds the connection settings of the remote pool backend.
type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration // Optional, defaults to DefaultConnectTimeout
}

// Client wraps valkey-go with the key layout shared by every remote pool.
// Create it with NewClient and hand it to the stores that need it.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings the server within the configured timeout.
// The caller must Close it.
func NewClient(cfg Config) (*Client, error) {
	opts := valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	inner, err := valkeylib.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = DefaultConnectTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := inner.Do(ctx, inner.B().Ping().Build()).Error(); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey (timeout: %v): %w", timeout, err)
	}

	return &Client{
		inner:     inner,
		keyPrefix: normalizePrefix(cfg.KeyPrefix),
	}, nil
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

// Inner returns the raw valkey-go client for commands the wrapper does not cover.
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

// Close releases the connection. It is safe on a client that failed to connect.
func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts under the client prefix: Key("pool", "user") -> "azcache:pool:user".
func (c *Client) Key(parts ...string) string {
	if len(parts) == 0 {
		return strings.TrimSuffix(c.keyPrefix, ":")
	}
	return c.keyPrefix + strings.Join(parts, ":")
}

// PoolPrefix is the namespace holding every entry of one pool, trailing
// separator included: "azcache:pool:user:".
func (c *Client) PoolPrefix(pool string) string {
	return c.Key("pool", pool) + ":"
}

// KeyPrefix returns the normalized prefix, always ending in ':' when set.
func (c *Client) KeyPrefix() string {
	return c.keyPrefix
}

// Ping checks the connection within the deadline of ctx.
func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsConnected pings with a short timeout.
func (c *Client) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return c.Ping(ctx) == nil
}

// ScanPrefix walks every key starting with prefix using SCAN and returns them
// with the prefix stripped. Glob characters in prefix match literally.
func (c *Client) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var cursor uint64
	match := EscapeMatch(prefix) + "*"

	for {
		cmd := c.inner.B().Scan().Cursor(cursor).Match(match).Count(scanBatch).Build()
		result, err := c.inner.Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s*: %w", prefix, err)
		}
		for _, k := range result.Elements {
			if len(k) > len(prefix) {
				keys = append(keys, k[len(prefix):])
			}
		}
		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// DeleteKeys removes fully qualified keys in DEL batches and returns how many
// existed. A failed batch stops the walk and reports what was deleted so far.
func (c *Client) DeleteKeys(ctx context.Context, keys []string) (int64, error) {
	var deleted int64
	for start := 0; start < len(keys); start += delBatch {
		end := start + delBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := c.inner.Do(ctx, c.inner.B().Del().Key(keys[start:end]...).Build()).AsInt64()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %d keys: %w", end-start, err)
		}
		deleted += n
	}
	return deleted, nil
}

// EscapeMatch quotes the glob characters SCAN MATCH understands.
func EscapeMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsNil reports whether err is a Valkey NIL reply.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
