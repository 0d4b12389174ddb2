package similarity

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyNamespace = "libraryops:emb"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	MGet(context.Context, ...string) *redis.SliceCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
}

// RedisVectorStore keeps vectors as little-endian float32 blobs under
// libraryops:emb:{model}:{hash}.
type RedisVectorStore struct {
	store cmdable
	ttl   time.Duration
}

func NewRedisVectorStore(client *redis.Client, ttl time.Duration) *RedisVectorStore {
	return &RedisVectorStore{store: client, ttl: ttl}
}

// Ping checks connectivity at startup.
func (s *RedisVectorStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx).Err()
}

func (s *RedisVectorStore) Key(model, hash string) string {
	return fmt.Sprintf("%s:%s:%s", keyNamespace, model, hash)
}

func (s *RedisVectorStore) GetVectors(ctx context.Context, model string, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = s.Key(model, h)
	}
	vals, err := s.store.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		vec, err := decodeVector([]byte(raw))
		if err != nil {
			continue
		}
		out[hashes[i]] = vec
	}
	return out, nil
}

func (s *RedisVectorStore) PutVectors(ctx context.Context, model string, vecs map[string][]float32) error {
	for hash, vec := range vecs {
		if err := s.store.Set(ctx, s.Key(model, hash), encodeVector(vec), s.ttl).Err(); err != nil {
			return fmt.Errorf("redis set: %w", err)
		}
	}
	return nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector payload has %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
