package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
	"authkeeper/pkg/eventbus"
)

// DefaultRelaySize - емкость очереди сообщений по умолчанию.
const DefaultRelaySize = 64

// AuthenticatedMsg - сессия установлена, в том числе автоотправкой кода.
type AuthenticatedMsg struct {
	User entities.User
}

// RejectedMsg - автоматически отправленный код отклонен.
type RejectedMsg struct {
	Err error
}

// ReloginMsg - нужно вернуться к форме входа.
type ReloginMsg struct {
	Reason error
}

// SessionEventMsg - событие шины сессии.
type SessionEventMsg struct {
	Event entities.SessionEvent
}

// Relay доставляет в программу сообщения, которые ядро порождает в своих горутинах.
// Send не вызывает Program.Send напрямую: тот блокируется до чтения циклом событий,
// а хуки могут сработать внутри Update.
type Relay struct {
	queue chan tea.Msg
}

// NewRelay создает очередь емкостью size.
func NewRelay(size int) *Relay {
	if size <= 0 {
		size = DefaultRelaySize
	}
	return &Relay{queue: make(chan tea.Msg, size)}
}

// Send ставит сообщение в очередь.
func (r *Relay) Send(msg tea.Msg) {
	r.queue <- msg
}

// Messages возвращает очередь для чтения.
func (r *Relay) Messages() <-chan tea.Msg {
	return r.queue
}

// Run передает сообщения в send до отмены ctx.
func (r *Relay) Run(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			send(msg)
		}
	}
}

// Hooks возвращает хуки ядра, пишущие в очередь.
func (r *Relay) Hooks() app.AuthenticatorHooks {
	return app.AuthenticatorHooks{
		Authenticated:     func(user entities.User) { r.Send(AuthenticatedMsg{User: user}) },
		TwoFactorRejected: func(err error) { r.Send(RejectedMsg{Err: err}) },
		ReloginRequired:   func(reason error) { r.Send(ReloginMsg{Reason: reason}) },
	}
}

// Subscribe подписывает очередь на темы сессии. Возвращенная функция отписывает.
func (r *Relay) Subscribe(bus eventbus.Bus) (func(), error) {
	sub, err := eventbus.Listen(bus, func(event entities.SessionEvent) {
		r.Send(SessionEventMsg{Event: event})
	}, entities.TopicSessionWarning, entities.TopicSessionTimeout, entities.TopicSessionRevoked)
	if err != nil {
		return nil, fmt.Errorf("subscribing relay: %w", err)
	}
	return sub.Close, nil
}
