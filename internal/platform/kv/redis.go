package kv

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

const redisScanBatch = 200

type Redis struct {
	client *redis.Client
}

func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Get(ctx context.Context, key Key, out any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	value, err := r.client.Get(ctx, encoded).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return unmarshal(value, out)
}

func (r *Redis) Set(ctx context.Context, key Key, value any) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	payload, err := marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, encoded, payload, 0).Err()
}

func (r *Redis) Delete(ctx context.Context, key Key) error {
	encoded, err := key.encode()
	if err != nil {
		return err
	}
	return r.client.Del(ctx, encoded).Err()
}

func (r *Redis) List(ctx context.Context, prefix Key) ([]Entry, error) {
	encodedPrefix, err := prefix.encodePrefix()
	if err != nil {
		return nil, err
	}
	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(encodedPrefix)+"*", redisScanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	keys = uniqueSorted(keys)
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(keys))
	for i, value := range values {
		// deleted between SCAN and MGET
		s, ok := value.(string)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: decodeKey(keys[i]), Value: []byte(s)})
	}
	return entries, nil
}

// uniqueSorted sorts keys and drops duplicates, which SCAN may return.
func uniqueSorted(keys []string) []string {
	sort.Strings(keys)
	out := keys[:0]
	for _, k := range keys {
		if len(out) > 0 && out[len(out)-1] == k {
			continue
		}
		out = append(out, k)
	}
	return out
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch ch {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
