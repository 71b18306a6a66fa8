package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis persists snapshots in a redis hash, one field per dot path with a
// JSON-encoded value. Each save replaces the hash wholesale.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis creates a redis sink under the given hash key.
func NewRedis(client *redis.Client, key string) *Redis {
	return &Redis{client: client, key: key}
}

// Save replaces the hash with the snapshot.
func (r *Redis) Save(ctx context.Context, snapshot map[string]any) error {
	fields := make(map[string]string, len(snapshot))
	for path, value := range snapshot {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", path, err)
		}
		fields[path] = string(data)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.key)
	if len(fields) > 0 {
		pipe.HSet(ctx, r.key, fields)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Load reads the last snapshot. A missing key is an empty snapshot.
func (r *Redis) Load(ctx context.Context) (map[string]any, error) {
	fields, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]any, len(fields))
	for path, data := range fields {
		var value any
		if err := json.Unmarshal([]byte(data), &value); err != nil {
			return nil, fmt.Errorf("decode %q: %w", path, err)
		}
		snapshot[path] = value
	}
	return snapshot, nil
}
