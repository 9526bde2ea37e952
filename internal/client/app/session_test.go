package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/clock"
)

type sessionFixture struct {
	api      *mockAuthAPI
	clock    *clock.Fake
	store    *app.TokenStore
	parts    partitions
	events   *eventRecorder
	sessions *app.SessionManager
}

func newSession(t *testing.T, mode entities.PersistenceMode) sessionFixture {
	t.Helper()

	f := sessionFixture{api: &mockAuthAPI{}, clock: clock.NewFake(startTime)}
	f.store, f.parts = newStore(t, f.api, f.clock)
	bus, recorder := newEventRecorder(t)
	f.events = recorder
	f.sessions = app.NewSessionManager(context.Background(), app.DefaultSessionConfig(), f.store, f.api, bus, f.clock)

	require.NoError(t, f.store.Establish(context.Background(), mode, testPair("a1"), entities.User{ID: "u1"}))
	f.sessions.Start(mode)
	return f
}

func TestSessionInactivityTimeline(t *testing.T) {
	f := newSession(t, entities.Ephemeral)
	f.api.On("Logout", mock.Anything, "a1").Return(nil).Once()

	f.clock.Advance(13*time.Minute - time.Second)
	assert.Empty(t, f.events.topics())

	f.clock.Advance(time.Second)
	assert.Equal(t, []string{entities.TopicSessionWarning}, f.events.topics())
	snapshot := f.sessions.Snapshot()
	assert.Equal(t, app.SessionWarning, snapshot.State)
	require.NotNil(t, snapshot.Clock.WarningFiredAt)
	assert.Equal(t, 2*time.Minute, snapshot.Remaining)

	f.clock.Advance(2 * time.Minute)
	assert.Equal(t, []string{entities.TopicSessionWarning, entities.TopicSessionTimeout}, f.events.topics())
	assert.Equal(t, app.SessionExpired, f.sessions.Snapshot().State)

	_, ok := f.store.AccessToken()
	assert.False(t, ok)
	assert.False(t, hasSnapshot(t, f.parts.ephemeral))
	f.api.AssertExpectations(t)

	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.events.count(entities.TopicSessionTimeout))
	assert.Equal(t, 1, f.events.count(entities.TopicSessionWarning))
	assert.Zero(t, f.clock.Pending())
}

func TestSessionActivityPostponesTimers(t *testing.T) {
	f := newSession(t, entities.Ephemeral)

	f.clock.Advance(10 * time.Minute)
	require.True(t, f.sessions.RecordActivity(entities.ActivityKeyDown))

	f.clock.Advance(12 * time.Minute)
	assert.Empty(t, f.events.topics())

	snapshot := f.sessions.Snapshot()
	assert.Equal(t, startTime.Add(10*time.Minute), snapshot.Clock.LastActivityAt)
	assert.Equal(t, startTime.Add(25*time.Minute), snapshot.Clock.ExpiresAt)

	f.clock.Advance(time.Minute)
	assert.Equal(t, []string{entities.TopicSessionWarning}, f.events.topics())
}

func TestSessionIgnoresNonQualifyingActivity(t *testing.T) {
	f := newSession(t, entities.Ephemeral)

	f.clock.Advance(time.Minute)
	assert.False(t, f.sessions.RecordActivity(entities.ActivityKind("mouse-move")))
	assert.Equal(t, startTime, f.sessions.Snapshot().Clock.LastActivityAt)
}

func TestSessionActivityDuringWarningIsIgnored(t *testing.T) {
	f := newSession(t, entities.Ephemeral)
	f.api.On("Logout", mock.Anything, "a1").Return(nil).Once()

	f.clock.Advance(13 * time.Minute)
	require.Equal(t, app.SessionWarning, f.sessions.Snapshot().State)

	f.clock.Advance(time.Minute)
	assert.False(t, f.sessions.RecordActivity(entities.ActivityPointerDown))
	assert.Equal(t, startTime.Add(15*time.Minute), f.sessions.Snapshot().Clock.ExpiresAt)

	f.clock.Advance(time.Minute)
	assert.Equal(t, app.SessionExpired, f.sessions.Snapshot().State)
}

func TestSessionExtend(t *testing.T) {
	t.Run("restarts both timers from warning", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)

		f.clock.Advance(14 * time.Minute)
		require.True(t, f.sessions.Extend())

		snapshot := f.sessions.Snapshot()
		assert.Equal(t, app.SessionActive, snapshot.State)
		assert.Nil(t, snapshot.Clock.WarningFiredAt)
		assert.Equal(t, startTime.Add(29*time.Minute), snapshot.Clock.ExpiresAt)

		f.clock.Advance(12 * time.Minute)
		assert.Equal(t, 1, f.events.count(entities.TopicSessionWarning))
		f.clock.Advance(time.Minute)
		assert.Equal(t, 2, f.events.count(entities.TopicSessionWarning))
		assert.Zero(t, f.events.count(entities.TopicSessionTimeout))
	})

	t.Run("no-op outside warning", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)

		f.clock.Advance(5 * time.Minute)
		assert.False(t, f.sessions.Extend())
		assert.Equal(t, startTime.Add(15*time.Minute), f.sessions.Snapshot().Clock.ExpiresAt)
	})
}

func TestSessionDurableNeverTimesOut(t *testing.T) {
	f := newSession(t, entities.Durable)

	assert.Zero(t, f.clock.Pending())
	f.clock.Advance(30 * 24 * time.Hour)
	assert.Empty(t, f.events.topics())

	require.True(t, f.sessions.RecordActivity(entities.ActivityScroll))
	snapshot := f.sessions.Snapshot()
	assert.Equal(t, app.SessionActive, snapshot.State)
	assert.Equal(t, f.clock.Now(), snapshot.Clock.LastActivityAt)
	assert.True(t, hasSnapshot(t, f.parts.durable))
}

func TestSessionEnd(t *testing.T) {
	t.Run("voluntary logout publishes nothing", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)

		require.NoError(t, f.sessions.End(context.Background(), false))

		assert.Equal(t, app.SessionLoggedOut, f.sessions.Snapshot().State)
		assert.Empty(t, f.events.topics())
		assert.Zero(t, f.clock.Pending())
		assert.False(t, f.store.Active())
		f.api.AssertNotCalled(t, "Logout", mock.Anything, mock.Anything)
	})

	t.Run("timeout publishes once", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)

		require.NoError(t, f.sessions.End(context.Background(), true))

		assert.Equal(t, app.SessionExpired, f.sessions.Snapshot().State)
		assert.Equal(t, []string{entities.TopicSessionTimeout}, f.events.topics())

		f.clock.Advance(time.Hour)
		assert.Equal(t, 1, f.events.count(entities.TopicSessionTimeout))
	})
}

func TestSessionResyncAfterSleep(t *testing.T) {
	t.Run("expired while asleep", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)
		f.api.On("Logout", mock.Anything, "a1").Return(nil).Once()

		f.clock.Jump(20 * time.Minute)
		assert.Empty(t, f.events.topics())

		f.sessions.Resync()
		assert.Equal(t, []string{entities.TopicSessionTimeout}, f.events.topics())
		assert.False(t, f.store.Active())
		f.api.AssertExpectations(t)
	})

	t.Run("warning due after sleep", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)

		f.clock.Jump(14 * time.Minute)
		f.sessions.Resync()
		assert.Equal(t, []string{entities.TopicSessionWarning}, f.events.topics())

		f.clock.Advance(time.Minute - time.Millisecond)
		assert.Zero(t, f.events.count(entities.TopicSessionTimeout))

		f.api.On("Logout", mock.Anything, "a1").Return(nil).Once()
		f.clock.Advance(time.Millisecond)
		assert.Equal(t, 1, f.events.count(entities.TopicSessionTimeout))
	})

	t.Run("activity after sleep fires the overdue timeout", func(t *testing.T) {
		f := newSession(t, entities.Ephemeral)
		f.api.On("Logout", mock.Anything, "a1").Return(nil).Once()

		f.clock.Jump(time.Hour)
		assert.False(t, f.sessions.RecordActivity(entities.ActivityKeyDown))
		assert.Equal(t, []string{entities.TopicSessionTimeout}, f.events.topics())
		assert.Equal(t, app.SessionExpired, f.sessions.Snapshot().State)
	})
}

func TestSessionRevoke(t *testing.T) {
	f := newSession(t, entities.Ephemeral)

	require.True(t, f.sessions.Revoke(context.Background(), app.ReasonUnauthorized))
	assert.False(t, f.sessions.Revoke(context.Background(), app.ReasonUnauthorized))

	assert.Equal(t, []string{entities.TopicSessionRevoked}, f.events.topics())
	assert.False(t, f.store.Active())
	assert.Zero(t, f.clock.Pending())
}

func TestSessionClose(t *testing.T) {
	f := newSession(t, entities.Ephemeral)

	f.sessions.Close()

	assert.Zero(t, f.clock.Pending())
	assert.Equal(t, app.SessionInactive, f.sessions.Snapshot().State)
	assert.True(t, hasSnapshot(t, f.parts.ephemeral))
}
