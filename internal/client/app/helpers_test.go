package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/adapters/storage"
	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/clock"
	"authkeeper/pkg/eventbus"
)

var startTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type mockAuthAPI struct {
	mock.Mock
}

func (m *mockAuthAPI) Login(ctx context.Context, creds entities.Credentials) (entities.LoginOutcome, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(entities.LoginOutcome), args.Error(1)
}

func (m *mockAuthAPI) VerifyTwoFactor(ctx context.Context, challengeToken, code string) (entities.Authenticated, error) {
	args := m.Called(ctx, challengeToken, code)
	return args.Get(0).(entities.Authenticated), args.Error(1)
}

func (m *mockAuthAPI) ResendTwoFactorCode(ctx context.Context, challengeToken string) error {
	args := m.Called(ctx, challengeToken)
	return args.Error(0)
}

func (m *mockAuthAPI) RefreshAccessToken(ctx context.Context, refreshToken string) (entities.RefreshedToken, error) {
	args := m.Called(ctx, refreshToken)
	return args.Get(0).(entities.RefreshedToken), args.Error(1)
}

func (m *mockAuthAPI) Logout(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

// eventRecorder подписывается на все темы сессии в отдельной шине.
type eventRecorder struct {
	mu     sync.Mutex
	events []entities.SessionEvent
}

func newEventRecorder(t *testing.T) (eventbus.Bus, *eventRecorder) {
	t.Helper()

	bus := eventbus.New()
	recorder := &eventRecorder{}
	for _, topic := range []string{entities.TopicSessionWarning, entities.TopicSessionTimeout, entities.TopicSessionRevoked} {
		require.NoError(t, bus.Subscribe(topic, recorder.record))
	}
	return bus, recorder
}

func (r *eventRecorder) record(event entities.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, event := range r.events {
		if event.Topic == topic {
			n++
		}
	}
	return n
}

func (r *eventRecorder) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := make([]string, 0, len(r.events))
	for _, event := range r.events {
		topics = append(topics, event.Topic)
	}
	return topics
}

type partitions struct {
	durable   *storage.MemoryPartition
	ephemeral *storage.MemoryPartition
}

func newStore(t *testing.T, refresher app.Refresher, clk clock.Clock) (*app.TokenStore, partitions) {
	t.Helper()

	p := partitions{durable: storage.NewMemoryPartition(), ephemeral: storage.NewMemoryPartition()}
	return app.NewTokenStore(p.durable, p.ephemeral, refresher, clk), p
}

func hasSnapshot(t *testing.T, partition *storage.MemoryPartition) bool {
	t.Helper()

	_, ok, err := partition.Load(context.Background())
	require.NoError(t, err)
	return ok
}

func mintJWT(t *testing.T, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

func testPair(access string) entities.TokenPair {
	return entities.TokenPair{AccessToken: access, RefreshToken: "refresh-" + access}
}
