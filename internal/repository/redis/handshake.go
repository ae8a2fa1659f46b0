package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/tolibear/evolving-site-sub001/internal/core/port"
)

const defaultHandshakePrefix = "board:oauth_state"

// HandshakeStore claims OAuth states with SET NX so each callback completes at most once.
type HandshakeStore struct {
	client *red.Client
	prefix string
}

// NewHandshakeStore constructs a Redis-backed replay marker store.
func NewHandshakeStore(client *red.Client, keyPrefix string) *HandshakeStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultHandshakePrefix
	}
	return &HandshakeStore{client: client, prefix: prefix}
}

// Consume claims the state. It returns false when another callback already claimed it.
func (s *HandshakeStore) Consume(ctx context.Context, state string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(state) == "" {
		return false, fmt.Errorf("state is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("ttl must be positive")
	}

	claimed, err := s.client.SetNX(ctx, s.key(state), time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return claimed, nil
}

// key stores only a digest of the state so markers never hold a live value.
func (s *HandshakeStore) key(state string) string {
	sum := sha256.Sum256([]byte(state))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

var _ port.HandshakeStore = (*HandshakeStore)(nil)
