package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"yard-monitor/tracking/internal/config"
	"yard-monitor/tracking/internal/domain"
)

const (
	stateTTL        = 24 * time.Hour
	stateChannel    = "yard:state"
	alertChannel    = "yard:alerts"
	operatorKeyFmt  = "operator:auth:%s"
	vehicleStateFmt = "vehicle:%s:state"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// PublishVehicleState mirrors a vehicle's current location state into a
// hash the dashboard reads, and announces the change on the state channel.
func (r *RedisStore) PublishVehicleState(ctx context.Context, st domain.VehicleState) error {
	stateData := map[string]interface{}{
		"vehicle_id":   st.VehicleID,
		"current_zone": st.CurrentZone,
		"on_premises":  st.OnPremises(),
		"last_movement": func() int64 {
			if st.LastMovementAt.IsZero() {
				return 0
			}
			return st.LastMovementAt.Unix()
		}(),
	}

	pubPayload, err := json.Marshal(stateData)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	stateKey := fmt.Sprintf(vehicleStateFmt, st.VehicleID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, stateTTL)
	pipe.Publish(ctx, stateChannel, pubPayload)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// PublishAlert puts a notified alert on the alert channel for downstream
// notification dispatch.
func (r *RedisStore) PublishAlert(ctx context.Context, a domain.Alert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"alert_id":   a.ID,
		"kind":       string(a.Kind),
		"severity":   string(a.Severity),
		"vehicle_id": a.VehicleID,
		"plate":      a.Plate,
		"title":      a.Title,
		"created_at": a.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return r.client.Publish(ctx, alertChannel, payload).Err()
}

// GetAPIKey resolves an operator API key to its principal name, empty when
// unknown. Keys are seeded by scripts/seed_redis.
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf(operatorKeyFmt, apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}
