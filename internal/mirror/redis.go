// Package mirror keeps a best-effort snapshot of the device registry in a
// secondary store so external collaborators can read it without touching the
// primary backend. Writes are fire-and-forget: failures are logged and never
// surfaced to the caller.
package mirror

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/suhasdevmane/Abacws/internal/domain"
)

// snapshot hash: field = device name, value = device JSON.
const devicesKey = "abacws:devices"

type RedisMirror struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisMirror(client *redis.Client, logger *zap.Logger) *RedisMirror {
	return &RedisMirror{client: client, logger: logger}
}

func (m *RedisMirror) UpsertDevice(ctx context.Context, dev domain.Device) {
	payload, err := json.Marshal(dev)
	if err != nil {
		m.logger.Warn("device snapshot not serializable",
			zap.String("device", dev.Name),
			zap.Error(err),
		)
		return
	}
	if err := m.client.HSet(ctx, devicesKey, dev.Name, payload).Err(); err != nil {
		m.logger.Warn("device snapshot write failed",
			zap.String("device", dev.Name),
			zap.Error(err),
		)
	}
}

// Devices reads the whole snapshot back, mainly for tests and debugging.
func (m *RedisMirror) Devices(ctx context.Context) ([]domain.Device, error) {
	raw, err := m.client.HGetAll(ctx, devicesKey).Result()
	if err != nil {
		return nil, err
	}
	devices := make([]domain.Device, 0, len(raw))
	for _, v := range raw {
		var dev domain.Device
		if err := json.Unmarshal([]byte(v), &dev); err != nil {
			continue
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

func (m *RedisMirror) Close() error { return m.client.Close() }
