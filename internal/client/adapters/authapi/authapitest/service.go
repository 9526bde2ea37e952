// Package authapitest предоставляет поддельный сервис аутентификации для тестов:
// учетные записи, TOTP-коды второго фактора, JWT access-токены и защищенный ресурс.
package authapitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

// Пути поддельного сервиса.
const (
	PathLogin     = "/auth/login"
	PathVerify    = "/auth/2fa/verify"
	PathResend    = "/auth/2fa/resend"
	PathRefresh   = "/auth/token/refresh"
	PathLogout    = "/auth/logout"
	PathProtected = "/api/resource"
)

// DefaultAttempts - число попыток ввода кода на один challenge.
const DefaultAttempts = 5

var signingKey = []byte("authapitest-signing-key")

type account struct {
	secret      string
	twoFactor   bool
	totpSecret  string
	profileJSON string
}

type challenge struct {
	identifier string
	remaining  int
	expiresAt  time.Time
}

// Options управляет поведением сервиса.
type Options struct {
	// AccessTTL - срок жизни выпускаемых access-токенов.
	AccessTTL time.Duration
	// ChallengeTTL - срок жизни challenge второго фактора.
	ChallengeTTL time.Duration
	// LegacyKeys включает ответы с ключами access/refresh и access_token_expiry.
	LegacyKeys bool
	// OmitRemaining убирает remainingAttempts из ответа на неверный код.
	OmitRemaining bool
	// Throttle, если задан, возвращается на вход как 429 в формате троттлинга.
	Throttle time.Duration
	// RejectRefresh заставляет token/refresh отвечать 401.
	RejectRefresh bool
	// RefreshDelay задерживает ответ token/refresh.
	RefreshDelay time.Duration
	// AlwaysUnauthorized заставляет защищенный ресурс всегда отвечать 401.
	AlwaysUnauthorized bool
}

// Service - поддельный сервис аутентификации поверх httptest.Server.
type Service struct {
	Server *httptest.Server

	mu         sync.Mutex
	opts       Options
	accounts   map[string]*account
	challenges map[string]*challenge
	refresh    map[string]string
	revoked    map[string]bool
	calls      map[string]int
}

// New запускает сервис и останавливает его по завершении теста.
func New(t testing.TB) *Service {
	t.Helper()

	s := &Service{
		accounts:   make(map[string]*account),
		challenges: make(map[string]*challenge),
		refresh:    make(map[string]string),
		revoked:    make(map[string]bool),
		calls:      make(map[string]int),
		opts: Options{
			AccessTTL:    15 * time.Minute,
			ChallengeTTL: 5 * time.Minute,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(PathLogin, s.handleLogin)
	mux.HandleFunc(PathVerify, s.handleVerify)
	mux.HandleFunc(PathResend, s.handleResend)
	mux.HandleFunc(PathRefresh, s.handleRefresh)
	mux.HandleFunc(PathLogout, s.handleLogout)
	mux.HandleFunc(PathProtected, s.handleProtected)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Server.Close)
	return s
}

// Update меняет поведение сервиса.
func (s *Service) Update(fn func(opts *Options)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.opts)
}

// URL возвращает базовый адрес сервиса.
func (s *Service) URL() string {
	return s.Server.URL
}

// AddUser регистрирует учетную запись. Для twoFactor генерируется TOTP-секрет.
func (s *Service) AddUser(t testing.TB, identifier, secret string, twoFactor bool) {
	t.Helper()

	acc := &account{
		secret:      secret,
		twoFactor:   twoFactor,
		profileJSON: fmt.Sprintf(`{"id":%q,"email":%q,"first_name":"Test","last_name":"User"}`, uuid.NewString(), identifier),
	}
	if twoFactor {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "authapitest", AccountName: identifier})
		if err != nil {
			t.Fatalf("generating totp secret: %v", err)
		}
		acc.totpSecret = key.Secret()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[identifier] = acc
}

// Code возвращает текущий верный код второго фактора для учетной записи.
func (s *Service) Code(t testing.TB, identifier string) string {
	t.Helper()

	s.mu.Lock()
	acc, ok := s.accounts[identifier]
	s.mu.Unlock()
	if !ok || acc.totpSecret == "" {
		t.Fatalf("no two-factor account %q", identifier)
	}

	code, err := totp.GenerateCode(acc.totpSecret, time.Now())
	if err != nil {
		t.Fatalf("generating totp code: %v", err)
	}
	return code
}

// WrongCode возвращает шестизначный код, заведомо отличный от текущего верного.
func (s *Service) WrongCode(t testing.TB, identifier string) string {
	t.Helper()
	if s.Code(t, identifier) == "000000" {
		return "111111"
	}
	return "000000"
}

// Calls возвращает число обращений к пути.
func (s *Service) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// ExpireChallenges делает все выданные challenge просроченными.
func (s *Service) ExpireChallenges() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.challenges {
		c.expiresAt = time.Now().Add(-time.Second)
	}
}

// RevokeAccess отзывает access-токен: защищенный ресурс ответит на него 401.
func (s *Service) RevokeAccess(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[token] = true
}

// IssueTokens выпускает пару токенов для учетной записи без входа.
func (s *Service) IssueTokens(t testing.TB, identifier string) (string, string) {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()

	access, err := s.issueAccess(identifier)
	if err != nil {
		t.Fatalf("issuing access token: %v", err)
	}
	refresh := uuid.NewString()
	s.refresh[refresh] = identifier
	return access, refresh
}

func (s *Service) issueAccess(identifier string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   identifier,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
	})
	return token.SignedString(signingKey)
}

func (s *Service) count(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[path]++
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.count(PathLogin)

	var req struct {
		Identifier string `json:"identifier"`
		Secret     string `json:"secret"`
		RememberMe bool   `json:"rememberMe"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opts.Throttle > 0 {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"detail": fmt.Sprintf("Request was throttled. Expected available in %d seconds.", int(s.opts.Throttle.Seconds())),
		})
		return
	}

	acc, ok := s.accounts[req.Identifier]
	if !ok || acc.secret != req.Secret {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid credentials"})
		return
	}

	if acc.twoFactor {
		token := uuid.NewString()
		s.challenges[token] = &challenge{
			identifier: req.Identifier,
			remaining:  DefaultAttempts,
			expiresAt:  time.Now().Add(s.opts.ChallengeTTL),
		}
		writeJSON(w, http.StatusOK, map[string]any{"requires2FA": true, "twoFactorToken": token})
		return
	}

	s.writeTokens(w, req.Identifier, acc)
}

func (s *Service) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.count(PathVerify)

	var req struct {
		Token string `json:"token"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[req.Token]
	if !ok || time.Now().After(c.expiresAt) {
		delete(s.challenges, req.Token)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid or expired token"})
		return
	}
	if c.remaining <= 0 {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "Too many attempts"})
		return
	}

	acc := s.accounts[c.identifier]
	if !totp.Validate(req.Code, acc.totpSecret) {
		c.remaining--
		body := map[string]any{"error": "Invalid 2FA code"}
		if !s.opts.OmitRemaining {
			body["remainingAttempts"] = c.remaining
		}
		writeJSON(w, http.StatusUnauthorized, body)
		return
	}

	delete(s.challenges, req.Token)
	s.writeTokens(w, c.identifier, acc)
}

func (s *Service) handleResend(w http.ResponseWriter, r *http.Request) {
	s.count(PathResend)

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.challenges[req.Token]; !ok || time.Now().After(c.expiresAt) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid or expired token"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.count(PathRefresh)

	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Refresh token required"})
		return
	}

	s.mu.Lock()
	delay := s.opts.RefreshDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	identifier, ok := s.refresh[req.Refresh]
	if !ok || s.opts.RejectRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid refresh token"})
		return
	}

	access, err := s.issueAccess(identifier)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	if s.opts.LegacyKeys {
		writeJSON(w, http.StatusOK, map[string]any{"access": access, "access_token_expiry": int(s.opts.AccessTTL.Seconds())})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessToken": access})
}

func (s *Service) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.count(PathLogout)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Successfully logged out"})
}

func (s *Service) handleProtected(w http.ResponseWriter, r *http.Request) {
	s.count(PathProtected)

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

	s.mu.Lock()
	unauthorized := !ok || s.opts.AlwaysUnauthorized || s.revoked[raw]
	s.mu.Unlock()

	if !unauthorized {
		_, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) { return signingKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		unauthorized = err != nil
	}
	if unauthorized {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Given token not valid for any token type"})
		return
	}

	var body any
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed body"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "echo": body})
}

// writeTokens вызывается под s.mu.
func (s *Service) writeTokens(w http.ResponseWriter, identifier string, acc *account) {
	access, err := s.issueAccess(identifier)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	refresh := uuid.NewString()
	s.refresh[refresh] = identifier

	body := map[string]any{"user": json.RawMessage(acc.profileJSON)}
	if s.opts.LegacyKeys {
		body["access"] = access
		body["refresh"] = refresh
		body["access_token_expiry"] = int(s.opts.AccessTTL.Seconds())
	} else {
		body["accessToken"] = access
		body["refreshToken"] = refresh
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
