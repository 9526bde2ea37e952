// Package app содержит ядро клиента аутентификации: хранилище токенов,
// машину состояний второго фактора, менеджер жизненного цикла сессии и
// координатор входа.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"authkeeper/internal/client/domain/entities"
	"authkeeper/internal/client/ports/storage"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/logger"
)

// Константы для логирования.
const (
	LogMethodEstablish = "establish"
	LogMethodRefresh   = "refresh"
	LogMethodClear     = "clear"
	LogMethodRestore   = "restore"

	ErrorPersistSnapshot = "failed to persist session snapshot"
	ErrorClearPartition  = "failed to clear storage partition"
	ErrorRestoreSnapshot = "failed to restore session snapshot"
	ErrorRefreshDropped  = "refresh result discarded after session end"
)

const refreshKey = "refresh"

// Refresher обменивает refresh-токен на новый access-токен.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (entities.RefreshedToken, error)
}

// TokenStore владеет парой токенов, профилем и режимом хранения.
// Снимок лежит ровно в одном разделе: при установке сессии второй раздел очищается.
type TokenStore struct {
	durable   storage.Partition
	ephemeral storage.Partition
	refresher Refresher
	clock     clock.Clock

	mu         sync.RWMutex
	active     bool
	mode       entities.PersistenceMode
	tokens     entities.TokenPair
	user       entities.User
	generation uint64

	// persistMu упорядочивает запись в разделы относительно Clear.
	persistMu sync.Mutex
	group     singleflight.Group
}

// NewTokenStore создает хранилище токенов.
func NewTokenStore(durable, ephemeral storage.Partition, refresher Refresher, clk clock.Clock) *TokenStore {
	return &TokenStore{
		durable:   durable,
		ephemeral: ephemeral,
		refresher: refresher,
		clock:     clk,
	}
}

func (s *TokenStore) partition(mode entities.PersistenceMode) storage.Partition {
	if mode == entities.Durable {
		return s.durable
	}
	return s.ephemeral
}

// Establish сохраняет новую сессию в разделе режима mode и очищает другой раздел.
// Состояние в памяти обновляется даже при ошибке записи.
func (s *TokenStore) Establish(ctx context.Context, mode entities.PersistenceMode, pair entities.TokenPair, user entities.User) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodEstablish), zap.Stringer("mode", mode))

	issuedAt, expiresAt := accessClaims(pair.AccessToken)
	if issuedAt.IsZero() {
		issuedAt = s.clock.Now()
	}
	pair.IssuedAt = issuedAt
	if pair.AccessExpiresAt.IsZero() {
		pair.AccessExpiresAt = expiresAt
	}

	s.mu.Lock()
	s.active = true
	s.mode = mode
	s.tokens = pair
	s.user = user
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	snapshot := storage.Snapshot{Mode: mode, Tokens: pair, User: user}
	if err := s.persist(ctx, generation, snapshot); err != nil {
		log.Error(ctx, ErrorPersistSnapshot, zap.Error(err))
		return err
	}

	if err := s.partition(mode.Other()).Clear(ctx); err != nil {
		log.Error(ctx, ErrorClearPartition, zap.Stringer("partition", mode.Other()), zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorClearPartition, err)
	}

	log.Info(ctx, "session established", zap.String("user_id", user.ID))
	return nil
}

// persist записывает снимок, если с момента generation сессия не была очищена или заменена.
func (s *TokenStore) persist(ctx context.Context, generation uint64, snapshot storage.Snapshot) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	current := s.generation
	s.mu.RUnlock()
	if current != generation {
		return nil
	}

	if err := s.partition(snapshot.Mode).Save(ctx, snapshot); err != nil {
		return fmt.Errorf("%s: %w", ErrorPersistSnapshot, err)
	}
	return nil
}

// AccessToken возвращает текущий access-токен.
func (s *TokenStore) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken, s.active && s.tokens.AccessToken != ""
}

// AccessExpiresAt возвращает срок действия access-токена или нулевое время, если он неизвестен.
func (s *TokenStore) AccessExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessExpiresAt
}

// Pair возвращает копию пары токенов.
func (s *TokenStore) Pair() entities.TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

// User возвращает кэшированный профиль.
func (s *TokenStore) User() (entities.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.active
}

// Mode возвращает режим хранения текущей сессии.
func (s *TokenStore) Mode() entities.PersistenceMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Active сообщает, установлена ли сессия.
func (s *TokenStore) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Refresh обновляет access-токен после того, как сервис отверг rejected.
// Параллельные вызовы ждут один общий обмен. Если текущий токен уже отличается от
// rejected, он возвращается без обращения к сервису. При RefreshInvalid токены
// очищаются до возврата; результат, пришедший после Clear, отбрасывается.
func (s *TokenStore) Refresh(ctx context.Context, rejected string) (string, error) {
	s.mu.RLock()
	active, current, refreshToken := s.active, s.tokens.AccessToken, s.tokens.RefreshToken
	s.mu.RUnlock()

	if !active || refreshToken == "" {
		return "", entities.ErrNotAuthenticated
	}
	if rejected != "" && current != "" && current != rejected {
		return current, nil
	}

	ch := s.group.DoChan(refreshKey, func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		token, _ := res.Val.(string)
		return token, nil
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	}
}

func (s *TokenStore) refresh(ctx context.Context) (string, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodRefresh))

	s.mu.RLock()
	generation, refreshToken := s.generation, s.tokens.RefreshToken
	s.mu.RUnlock()

	if refreshToken == "" {
		return "", entities.ErrNotAuthenticated
	}

	result, err := s.refresher.RefreshAccessToken(ctx, refreshToken)

	s.mu.Lock()
	if s.generation != generation || !s.active {
		s.mu.Unlock()
		log.Info(ctx, ErrorRefreshDropped)
		return "", entities.ErrSessionEnded
	}
	if err != nil {
		if errors.Is(err, entities.ErrRefreshInvalid) {
			s.tokens.AccessToken = ""
			s.tokens.RefreshToken = ""
			s.tokens.AccessExpiresAt = time.Time{}
		}
		s.mu.Unlock()
		log.Warn(ctx, "token refresh failed", zap.Error(err))
		return "", err
	}

	issuedAt, expiresAt := accessClaims(result.AccessToken)
	if issuedAt.IsZero() {
		issuedAt = s.clock.Now()
	}
	if !result.ExpiresAt.IsZero() {
		expiresAt = result.ExpiresAt
	}
	s.tokens.AccessToken = result.AccessToken
	s.tokens.IssuedAt = issuedAt
	s.tokens.AccessExpiresAt = expiresAt
	snapshot := storage.Snapshot{Mode: s.mode, Tokens: s.tokens, User: s.user}
	s.mu.Unlock()

	if err := s.persist(ctx, generation, snapshot); err != nil {
		log.Warn(ctx, ErrorPersistSnapshot, zap.Error(err))
	}

	log.Debug(ctx, "access token refreshed")
	return result.AccessToken, nil
}

// Clear удаляет токены и профиль из памяти и из раздела текущего режима.
// Обмен refresh-токена, завершившийся после Clear, будет отброшен.
func (s *TokenStore) Clear(ctx context.Context) error {
	log := logger.Log(ctx).With(zap.String("method", LogMethodClear))

	s.mu.Lock()
	mode := s.mode
	s.active = false
	s.tokens = entities.TokenPair{}
	s.user = entities.User{}
	s.generation++
	s.mu.Unlock()

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.partition(mode).Clear(ctx); err != nil {
		log.Error(ctx, ErrorClearPartition, zap.Stringer("partition", mode), zap.Error(err))
		return fmt.Errorf("%s: %w", ErrorClearPartition, err)
	}
	return nil
}

// Restore загружает сохраненную сессию: сначала из durable-раздела, затем из ephemeral.
// Режим берется из снимка, а не из того, какой раздел ответил.
func (s *TokenStore) Restore(ctx context.Context) (bool, error) {
	log := logger.Log(ctx).With(zap.String("method", LogMethodRestore))

	for _, partition := range []storage.Partition{s.durable, s.ephemeral} {
		snapshot, ok, err := partition.Load(ctx)
		if err != nil {
			log.Error(ctx, ErrorRestoreSnapshot, zap.Error(err))
			return false, fmt.Errorf("%s: %w", ErrorRestoreSnapshot, err)
		}
		if !ok || snapshot.Tokens.Empty() {
			continue
		}

		s.mu.Lock()
		s.active = true
		s.mode = snapshot.Mode
		s.tokens = snapshot.Tokens
		s.user = snapshot.User
		s.generation++
		s.mu.Unlock()

		log.Info(ctx, "session restored", zap.Stringer("mode", snapshot.Mode), zap.String("user_id", snapshot.User.ID))
		return true, nil
	}

	return false, nil
}
