package adblock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"browserstealth/pkg/logger"
)

// FilterSource fetches the text of one filter list.
type FilterSource interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const maxListSize = 32 << 20

type HTTPSource struct {
	client *http.Client
}

// NewHTTPSource downloads lists with client, or a client with a one minute
// timeout when nil.
func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListSize))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	return string(body), nil
}

// RedisSource caches list text from another source in Redis.
type RedisSource struct {
	next   FilterSource
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewRedisSource connects to redisURL and wraps next. Cache errors are
// logged and fall through to next.
func NewRedisSource(redisURL string, ttl time.Duration, next FilterSource, log logger.Logger) (*RedisSource, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	if log == nil {
		log = logger.Nop()
	}

	return &RedisSource{next: next, client: client, ttl: ttl, log: log}, nil
}

func (s *RedisSource) Fetch(ctx context.Context, url string) (string, error) {
	key := listKey(url)

	text, err := s.client.Get(ctx, key).Result()
	if err == nil {
		return text, nil
	}
	if err != redis.Nil {
		s.log.Warn("filter list cache get failed", "url", url, "error", err)
	}

	text, err = s.next.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	if err := s.client.Set(ctx, key, text, s.ttl).Err(); err != nil {
		s.log.Warn("filter list cache set failed", "url", url, "error", err)
	}
	return text, nil
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}

func listKey(url string) string {
	hash := sha256.Sum256([]byte(url))
	return "adblock:list:" + hex.EncodeToString(hash[:])
}

// SourceBuilder returns a BuildFunc that fetches every list configured for
// a mode from src and compiles them into one blocker.
func SourceBuilder(src FilterSource, lists map[Mode][]string) BuildFunc {
	return func(ctx context.Context, mode Mode) (Blocker, error) {
		if mode == ModeNone {
			return nopBlocker{}, nil
		}

		urls, ok := lists[mode]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
		}

		var sb strings.Builder
		for _, url := range urls {
			text, err := src.Fetch(ctx, url)
			if err != nil {
				return nil, err
			}
			sb.WriteString(text)
			sb.WriteByte('\n')
		}

		return NewFilterBlocker(sb.String())
	}
}

// StaticSource serves lists from memory, keyed by URL.
type StaticSource map[string]string

func (s StaticSource) Fetch(_ context.Context, url string) (string, error) {
	text, ok := s[url]
	if !ok {
		return "", fmt.Errorf("no filter list for %s", url)
	}
	return text, nil
}
