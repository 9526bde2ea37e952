package entities

// OutcomeKind - вариант результата входа.
type OutcomeKind int

// Варианты результата входа.
const (
	OutcomeAuthenticated OutcomeKind = iota
	OutcomeRequiresTwoFactor
)

// Authenticated - полностью установленная сессия: токены и профиль.
type Authenticated struct {
	Tokens TokenPair
	User   User
}

// LoginOutcome - размеченное объединение RequiresTwoFactor{ChallengeToken} | Authenticated{Tokens, User}.
type LoginOutcome struct {
	Kind           OutcomeKind
	ChallengeToken string
	Authenticated  *Authenticated
}

// RequiresTwoFactor сообщает, что для завершения входа нужен второй фактор.
func (o LoginOutcome) RequiresTwoFactor() bool {
	return o.Kind == OutcomeRequiresTwoFactor
}
