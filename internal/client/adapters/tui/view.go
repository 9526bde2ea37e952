package tui

import (
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/lipgloss"

	"authkeeper/internal/client/app"
	"authkeeper/internal/client/domain/entities"
)

// View отрисовывает текущий экран.
func (m Model) View() string {
	var body string
	switch m.screen {
	case screenLogin:
		body = m.viewLogin()
	case screenTwoFactor:
		body = m.viewTwoFactor()
	default:
		body = m.viewSession()
	}

	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

func (m Model) viewLogin() string {
	s := m.styles
	parts := []string{
		s.title.Render("Sign in"),
		"",
		m.fieldLabel(fieldIdentifier, "Email"),
		m.identifier.View(),
		"",
		m.fieldLabel(fieldSecret, "Password"),
		m.secret.View(),
		"",
	}

	box := "[ ]"
	if m.rememberMe {
		box = "[x]"
	}
	parts = append(parts, m.fieldLabel(fieldRememberMe, box+" Remember me"), "")

	if m.busy {
		parts = append(parts, s.label.Render("Signing in..."))
	}
	parts = append(parts, m.status()...)
	parts = append(parts, s.hint.Render("tab: next field  space: toggle  enter: sign in  ctrl+c: quit"))

	return s.panel.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) fieldLabel(field int, text string) string {
	if m.field == field {
		return m.styles.focused.Render(text)
	}
	return m.styles.label.Render(text)
}

func (m Model) viewTwoFactor() string {
	s := m.styles
	snapshot := m.deps.Code.Snapshot()

	slots := make([]string, 0, len(snapshot.Digits))
	for i, digit := range snapshot.Digits {
		style := s.slot
		if i == snapshot.Focus && snapshot.State == app.TwoFactorPending {
			style = s.slotOn
		}
		if digit == "" {
			digit = " "
		}
		slots = append(slots, style.Render(digit))
	}

	parts := []string{
		s.title.Render("Two-factor verification"),
		s.label.Render("Enter the 6-digit code sent to your device."),
		"",
		lipgloss.JoinHorizontal(lipgloss.Top, slots...),
		"",
	}

	switch snapshot.State {
	case app.TwoFactorPending:
		parts = append(parts,
			s.label.Render("Code expires in ")+s.countdown.Render(formatCountdown(snapshot.ExpiresIn)),
			s.label.Render(fmt.Sprintf("Attempts remaining: %d", snapshot.RemainingAttempts)),
		)
		if snapshot.ResendIn > 0 {
			parts = append(parts, s.label.Render(fmt.Sprintf("Resend available in %ds", ceilSeconds(snapshot.ResendIn))))
		} else {
			parts = append(parts, s.label.Render("ctrl+r: resend code"))
		}
		if snapshot.Submitting || m.busy {
			parts = append(parts, s.label.Render("Verifying..."))
		}
	case app.TwoFactorExpired:
		parts = append(parts, s.notice.Render(entities.UserMessage(entities.ErrChallengeExpired)))
	case app.TwoFactorExhausted:
		parts = append(parts, s.notice.Render(entities.UserMessage(entities.ErrTooManyAttempts)))
	}

	parts = append(parts, "")
	parts = append(parts, m.status()...)
	parts = append(parts, s.hint.Render("enter: verify  esc: cancel"))

	return s.panel.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) viewSession() string {
	s := m.styles
	snapshot := m.deps.Presence.Snapshot()

	if snapshot.State == app.SessionWarning {
		return m.viewWarning(snapshot.Remaining)
	}

	parts := []string{
		s.title.Render("Signed in"),
		"",
		s.label.Render("User: ") + m.user.DisplayName(),
		s.label.Render("Mode: ") + snapshot.Mode.String(),
	}
	if snapshot.Mode == entities.Ephemeral && snapshot.State.Live() {
		parts = append(parts, s.label.Render("Inactivity timeout in ")+formatCountdown(snapshot.Remaining))
	}
	parts = append(parts, "")
	parts = append(parts, m.status()...)
	parts = append(parts, s.hint.Render("ctrl+x: sign out  ctrl+c: quit"))

	return s.panel.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) viewWarning(remaining time.Duration) string {
	s := m.styles
	content := lipgloss.JoinVertical(lipgloss.Center,
		s.countdown.Render("Session Timeout Warning"),
		"",
		s.label.Render("Your session will expire in ")+s.countdown.Render(formatCountdown(remaining)),
		"",
		s.hint.Render("enter: stay signed in  l: sign out"),
	)
	return s.warning.Render(content)
}

func (m Model) status() []string {
	var lines []string
	if m.notice != "" {
		lines = append(lines, m.styles.notice.Render(m.notice))
	}
	if m.info != "" {
		lines = append(lines, m.styles.info.Render(m.info))
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	return lines
}

// formatCountdown форматирует остаток как M:SS, округляя секунды вверх.
func formatCountdown(d time.Duration) string {
	total := ceilSeconds(d)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
