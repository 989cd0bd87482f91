package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrAssetNotFound = errors.New("asset not found")

// RedisHost stores uploaded invitation images in Redis hashes and serves them
// from PublicBaseURL + "/assets/<key>".
type RedisHost struct {
	Client        *redis.Client
	PublicBaseURL string
	Prefix        string        // key prefix, e.g. "invites:asset:"
	TTL           time.Duration // 0 keeps assets until evicted by policy
}

func NewRedisHost(client *redis.Client, publicBaseURL string, ttl time.Duration) *RedisHost {
	return &RedisHost{Client: client, PublicBaseURL: publicBaseURL, Prefix: "invites:asset:", TTL: ttl}
}

// Upload stores d under namespace plus a content hash, so a changed design
// image gets a new URL while re-uploads of the same bytes are idempotent.
func (h *RedisHost) Upload(ctx context.Context, namespace string, d *DataURL) (string, error) {
	sum := sha256.Sum256(d.Data)
	key := strings.Trim(namespace, "/") + "/" + hex.EncodeToString(sum[:8])

	pipe := h.Client.TxPipeline()
	pipe.HSet(ctx, h.Prefix+key, "type", d.MediaType, "body", d.Data)
	if h.TTL > 0 {
		pipe.Expire(ctx, h.Prefix+key, h.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("redis asset upload: %w", err)
	}
	return strings.TrimRight(h.PublicBaseURL, "/") + "/assets/" + key, nil
}

// Fetch returns a stored asset's media type and bytes.
func (h *RedisHost) Fetch(ctx context.Context, key string) (string, []byte, error) {
	vals, err := h.Client.HGetAll(ctx, h.Prefix+strings.Trim(key, "/")).Result()
	if err != nil {
		return "", nil, err
	}
	body, ok := vals["body"]
	if !ok {
		return "", nil, ErrAssetNotFound
	}
	return vals["type"], []byte(body), nil
}

func (h *RedisHost) Ping(ctx context.Context) error {
	return h.Client.Ping(ctx).Err()
}
