// Package storage содержит разделы хранилища снимка сессии:
// durable в Redis и ephemeral в памяти процесса.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	storagePorts "authkeeper/internal/client/ports/storage"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodSave  = "save"
	LogMethodLoad  = "load"
	LogMethodClear = "clear"

	ErrorFailedToEncode = "failed to encode session snapshot"
	ErrorFailedToDecode = "failed to decode session snapshot"
	ErrorFailedToSave   = "failed to save session snapshot to redis"
	ErrorFailedToLoad   = "failed to load session snapshot from redis"
	ErrorFailedToClear  = "failed to clear session snapshot in redis"
)

// RedisPartition хранит снимок сессии в Redis под одним ключом.
// Переживает перезапуск клиента, поэтому используется для режима Durable.
type RedisPartition struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
	sealer *Sealer
}

var _ storagePorts.Partition = (*RedisPartition)(nil)

// NewRedisPartition создает раздел. ttl = 0 хранит снимок бессрочно; sealer может быть nil.
func NewRedisPartition(client redis.Cmdable, key string, ttl time.Duration, sealer *Sealer) *RedisPartition {
	return &RedisPartition{
		client: client,
		key:    key,
		ttl:    ttl,
		sealer: sealer,
	}
}

// Save записывает снимок, заменяя предыдущий.
func (p *RedisPartition) Save(ctx context.Context, snapshot storagePorts.Snapshot) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodSave), zap.String("key", p.key))

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrorFailedToEncode, err)
	}

	if p.sealer != nil {
		if data, err = p.sealer.Seal(data); err != nil {
			return fmt.Errorf("%s: %w", ErrorFailedToEncode, err)
		}
	}

	if err := p.client.Set(ctx, p.key, data, p.ttl).Err(); err != nil {
		log.Error(ctx, ErrorFailedToSave, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorFailedToSave, err)
	}

	log.Debug(ctx, "session snapshot saved", zap.Stringer("mode", snapshot.Mode))
	return nil
}

// Load читает снимок. Поврежденный снимок удаляется и считается отсутствующим.
func (p *RedisPartition) Load(ctx context.Context) (storagePorts.Snapshot, bool, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodLoad), zap.String("key", p.key))

	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return storagePorts.Snapshot{}, false, nil
		}
		log.Error(ctx, ErrorFailedToLoad, zap.Error(err))
		return storagePorts.Snapshot{}, false, fmt.Errorf("%s: %w", ErrorFailedToLoad, err)
	}

	snapshot, err := p.decode(data)
	if err != nil {
		log.Warn(ctx, ErrorFailedToDecode, zap.Error(err))
		if clearErr := p.Clear(ctx); clearErr != nil {
			return storagePorts.Snapshot{}, false, clearErr
		}
		return storagePorts.Snapshot{}, false, nil
	}

	return snapshot, true, nil
}

// Clear удаляет снимок.
func (p *RedisPartition) Clear(ctx context.Context) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodClear), zap.String("key", p.key))

	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		log.Error(ctx, ErrorFailedToClear, zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorFailedToClear, err)
	}
	return nil
}

func (p *RedisPartition) decode(data []byte) (storagePorts.Snapshot, error) {
	if p.sealer != nil {
		opened, err := p.sealer.Open(data)
		if err != nil {
			return storagePorts.Snapshot{}, err
		}
		data = opened
	}

	var snapshot storagePorts.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return storagePorts.Snapshot{}, fmt.Errorf("%s: %w", ErrorFailedToDecode, err)
	}
	return snapshot, nil
}
