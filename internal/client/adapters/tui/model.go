// Package tui - терминальная оболочка клиента: форма входа, ввод кода второго
// фактора и экран сессии с предупреждением о бездействии.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
)

// Сообщения пользователю, не связанные с ошибками ядра.
const (
	MessageMissingCredentials = "Enter your email and password."
	MessageCodeResent         = "A new code has been sent."
	MessageSignedOut          = "You have been signed out."
	MessageTimedOut           = "Your session timed out due to inactivity."
)

const tickInterval = time.Second

// Core - операции ядра, которые вызывает оболочка.
type Core interface {
	Login(ctx context.Context, creds entities.Credentials) (entities.LoginOutcome, error)
	VerifyTwoFactor(ctx context.Context, code string) (entities.Authenticated, error)
	ResendTwoFactorCode(ctx context.Context) error
	CancelTwoFactor()
	Logout(ctx context.Context) error
}

// CodeEntry - ввод кода второго фактора.
type CodeEntry interface {
	TypeDigit(r rune) bool
	Backspace() bool
	Paste(s string) bool
	FocusSlot(i int) bool
	Resync()
	Snapshot() app.TwoFactorSnapshot
}

// Presence - учет активности установленной сессии.
type Presence interface {
	RecordActivity(kind entities.ActivityKind) bool
	Extend() bool
	Resync()
	Snapshot() app.SessionSnapshot
}

// Deps - зависимости модели.
type Deps struct {
	Core     Core
	Code     CodeEntry
	Presence Presence
}

// DepsFor собирает зависимости из ядра.
func DepsFor(a *app.Authenticator) Deps {
	return Deps{Core: a, Code: a.TwoFactor(), Presence: a.Session()}
}

type screen int

const (
	screenLogin screen = iota
	screenTwoFactor
	screenSession
)

const (
	fieldIdentifier = iota
	fieldSecret
	fieldRememberMe
	fieldCount
)

type (
	loginResultMsg struct {
		outcome entities.LoginOutcome
		err     error
	}
	verifyResultMsg struct {
		user entities.User
		err  error
	}
	resendResultMsg struct{ err error }
	logoutResultMsg struct{}
	tickMsg         time.Time
)

// Model - модель bubbletea.
type Model struct {
	ctx    context.Context
	deps   Deps
	styles styles

	screen     screen
	identifier textinput.Model
	secret     textinput.Model
	rememberMe bool
	field      int
	busy       bool
	resending  bool

	user   entities.User
	notice string
	info   string

	width  int
	height int
}

// NewModel создает модель на экране входа.
func NewModel(ctx context.Context, deps Deps) Model {
	identifier := textinput.New()
	identifier.Placeholder = "you@example.com"
	identifier.Prompt = "> "
	identifier.CharLimit = 254
	identifier.Width = 40

	secret := textinput.New()
	secret.Placeholder = "password"
	secret.Prompt = "> "
	secret.CharLimit = 256
	secret.Width = 40
	secret.EchoMode = textinput.EchoPassword
	secret.EchoCharacter = '•'

	m := Model{
		ctx:        ctx,
		deps:       deps,
		styles:     defaultStyles(),
		identifier: identifier,
		secret:     secret,
	}
	m.setField(fieldIdentifier)
	return m
}

// WithUser открывает экран восстановленной сессии.
func (m Model) WithUser(user entities.User) Model {
	m.toSession(user)
	return m
}

// Init запускает мигание курсора и тикер обратных отсчетов.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update обрабатывает сообщения.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case screenLogin:
			return m.updateLogin(msg)
		case screenTwoFactor:
			return m.updateTwoFactor(msg)
		default:
			return m.updateSession(msg)
		}

	case tea.MouseMsg:
		if m.screen == screenSession {
			return m, m.recordMouse(msg)
		}
		return m, nil

	case tickMsg:
		// Тикер идет по настенным часам и догоняет сроки после сна хоста.
		code, presence := m.deps.Code, m.deps.Presence
		return m, tea.Batch(func() tea.Msg {
			code.Resync()
			presence.Resync()
			return nil
		}, tick())

	case loginResultMsg:
		return m.onLogin(msg)

	case verifyResultMsg:
		m.busy = false
		if msg.err != nil {
			if !errors.Is(msg.err, entities.ErrRequestInFlight) && m.screen == screenTwoFactor {
				m.notice = entities.UserMessage(msg.err)
			}
			return m, nil
		}
		m.toSession(msg.user)
		return m, nil

	case resendResultMsg:
		m.resending = false
		if msg.err != nil {
			m.notice, m.info = entities.UserMessage(msg.err), ""
		} else {
			m.notice, m.info = "", MessageCodeResent
		}
		return m, nil

	case logoutResultMsg:
		cmd := m.toLogin("")
		m.info = MessageSignedOut
		return m, cmd

	case AuthenticatedMsg:
		m.toSession(msg.User)
		return m, nil

	case RejectedMsg:
		if m.screen == screenTwoFactor {
			m.notice, m.info = entities.UserMessage(msg.Err), ""
		}
		return m, nil

	case ReloginMsg:
		if m.screen == screenLogin {
			return m, nil
		}
		return m, m.toLogin(entities.UserMessage(msg.Reason))

	case SessionEventMsg:
		return m.onSessionEvent(msg.Event)
	}

	if m.screen == screenLogin {
		return m.updateInputs(msg)
	}
	return m, nil
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		return m, m.setField((m.field + 1) % fieldCount)
	case tea.KeyShiftTab, tea.KeyUp:
		return m, m.setField((m.field + fieldCount - 1) % fieldCount)
	case tea.KeyEnter:
		return m.submitLogin()
	case tea.KeySpace:
		if m.field == fieldRememberMe {
			m.rememberMe = !m.rememberMe
			return m, nil
		}
	}
	return m.updateInputs(msg)
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.field {
	case fieldIdentifier:
		m.identifier, cmd = m.identifier.Update(msg)
	case fieldSecret:
		m.secret, cmd = m.secret.Update(msg)
	}
	return m, cmd
}

func (m Model) submitLogin() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	creds := entities.Credentials{
		Identifier: strings.TrimSpace(m.identifier.Value()),
		Secret:     m.secret.Value(),
		RememberMe: m.rememberMe,
	}
	if creds.Identifier == "" || creds.Secret == "" {
		m.notice, m.info = MessageMissingCredentials, ""
		return m, nil
	}

	m.busy = true
	m.notice, m.info = "", ""
	ctx, core := m.ctx, m.deps.Core
	return m, func() tea.Msg {
		outcome, err := core.Login(ctx, creds)
		return loginResultMsg{outcome: outcome, err: err}
	}
}

func (m Model) onLogin(msg loginResultMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	switch {
	case msg.err != nil:
		m.notice = entities.UserMessage(msg.err)
	case msg.outcome.RequiresTwoFactor():
		m.screen = screenTwoFactor
		m.secret.Reset()
		m.identifier.Blur()
		m.secret.Blur()
		m.notice, m.info = "", ""
	case msg.outcome.Authenticated != nil:
		m.toSession(msg.outcome.Authenticated.User)
	}
	return m, nil
}

func (m Model) updateTwoFactor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	code := m.deps.Code
	snapshot := code.Snapshot()

	switch msg.Type {
	case tea.KeyEsc:
		m.deps.Core.CancelTwoFactor()
		return m, m.toLogin("")
	case tea.KeyCtrlR:
		return m.resend()
	case tea.KeyEnter:
		return m.submitCode(snapshot)
	case tea.KeyBackspace:
		code.Backspace()
	case tea.KeyLeft:
		code.FocusSlot(snapshot.Focus - 1)
	case tea.KeyRight:
		code.FocusSlot(snapshot.Focus + 1)
	case tea.KeyRunes:
		accepted := false
		switch len(msg.Runes) {
		case 0:
		case 1:
			accepted = code.TypeDigit(msg.Runes[0])
		default:
			// Вставка из буфера приходит одним событием со всеми символами.
			accepted = code.Paste(string(msg.Runes))
		}
		if accepted {
			m.notice = ""
		}
	}
	return m, nil
}

func (m Model) submitCode(snapshot app.TwoFactorSnapshot) (tea.Model, tea.Cmd) {
	if m.busy || snapshot.Submitting || snapshot.State != app.TwoFactorPending {
		return m, nil
	}

	code := strings.Join(snapshot.Digits[:], "")
	if !app.ValidCode(code) {
		m.notice, m.info = entities.UserMessage(entities.ErrMalformedCode), ""
		return m, nil
	}

	m.busy = true
	ctx, core := m.ctx, m.deps.Core
	return m, func() tea.Msg {
		authenticated, err := core.VerifyTwoFactor(ctx, code)
		return verifyResultMsg{user: authenticated.User, err: err}
	}
}

func (m Model) resend() (tea.Model, tea.Cmd) {
	if m.resending {
		return m, nil
	}
	m.resending = true
	ctx, core := m.ctx, m.deps.Core
	return m, func() tea.Msg {
		return resendResultMsg{err: core.ResendTwoFactorCode(ctx)}
	}
}

func (m Model) updateSession(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	presence := m.deps.Presence

	// Во время предупреждения активность не продлевает сессию: нужен явный выбор.
	if presence.Snapshot().State == app.SessionWarning {
		switch {
		case msg.Type == tea.KeyEnter, msg.String() == "e":
			presence.Extend()
		case msg.String() == "l":
			return m.logout()
		}
		return m, nil
	}

	if msg.Type == tea.KeyCtrlX {
		return m.logout()
	}
	return m, recordActivity(presence, entities.ActivityKeyDown)
}

func (m Model) recordMouse(msg tea.MouseMsg) tea.Cmd {
	switch {
	case tea.MouseEvent(msg).IsWheel():
		return recordActivity(m.deps.Presence, entities.ActivityScroll)
	case msg.Action == tea.MouseActionPress:
		return recordActivity(m.deps.Presence, entities.ActivityPointerDown)
	default:
		return nil
	}
}

// recordActivity отмечает активность вне Update: просроченная сессия при этом
// завершается вместе с вызовом выхода на сервисе.
func recordActivity(presence Presence, kind entities.ActivityKind) tea.Cmd {
	return func() tea.Msg {
		presence.RecordActivity(kind)
		return nil
	}
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.busy = true
	ctx, core := m.ctx, m.deps.Core
	return m, func() tea.Msg {
		// Локальный выход выполняется всегда, ошибка уже записана в лог ядром.
		_ = core.Logout(ctx)
		return logoutResultMsg{}
	}
}

func (m Model) onSessionEvent(event entities.SessionEvent) (tea.Model, tea.Cmd) {
	if m.screen != screenSession {
		return m, nil
	}
	switch event.Topic {
	case entities.TopicSessionTimeout:
		return m, m.toLogin(MessageTimedOut)
	case entities.TopicSessionRevoked:
		return m, m.toLogin(entities.UserMessage(entities.ErrSessionEnded))
	}
	return m, nil
}

func (m *Model) toLogin(notice string) tea.Cmd {
	m.screen = screenLogin
	m.busy, m.resending = false, false
	m.user = entities.User{}
	m.secret.Reset()
	m.notice, m.info = notice, ""

	if strings.TrimSpace(m.identifier.Value()) == "" {
		return m.setField(fieldIdentifier)
	}
	return m.setField(fieldSecret)
}

func (m *Model) toSession(user entities.User) {
	m.screen = screenSession
	m.busy, m.resending = false, false
	m.user = user
	m.secret.Reset()
	m.identifier.Blur()
	m.secret.Blur()
	m.notice, m.info = "", ""
}

func (m *Model) setField(field int) tea.Cmd {
	m.field = field
	m.identifier.Blur()
	m.secret.Blur()
	switch field {
	case fieldIdentifier:
		return m.identifier.Focus()
	case fieldSecret:
		return m.secret.Focus()
	}
	return nil
}
