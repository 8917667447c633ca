package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
	"github.com/AltairaLabs/convostream/runtime/events"
	"github.com/AltairaLabs/convostream/runtime/logger"
)

// ErrNoCredential is returned by a Store that holds no credential.
var ErrNoCredential = errors.New("no stored credential")

// Store persists the signed-in credential.
type Store interface {
	// Load returns the stored credential or ErrNoCredential.
	Load(ctx context.Context) (Credential, error)
	Save(ctx context.Context, cred Credential) error
	// Delete removes the stored credential. Deleting nothing is not an error.
	Delete(ctx context.Context) error
}

// Manager holds the current credential and refreshes it lazily: only when a
// caller asks for it and it has expired or its last refresh failed.
// Concurrent callers share one refresh exchange.
type Manager struct {
	refresher Refresher
	store     Store
	now       func() time.Time
	emitter   *events.Emitter

	mu   sync.RWMutex
	cred *Credential

	group singleflight.Group
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithStore persists the credential to store.
func WithStore(store Store) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithEventBus publishes auth events to bus.
func WithEventBus(bus *events.EventBus) ManagerOption {
	return func(m *Manager) { m.emitter = events.NewEmitter(bus, "", "") }
}

// NewManager creates a manager that refreshes through refresher.
func NewManager(refresher Refresher, opts ...ManagerOption) *Manager {
	m := &Manager{
		refresher: refresher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore loads a previously persisted credential. An empty store is not an error.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	cred, err := m.store.Load(ctx)
	if errors.Is(err, ErrNoCredential) {
		return nil
	}
	if err != nil {
		return pkgerrors.New(component, "Restore", err)
	}
	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()
	return nil
}

// SignIn replaces the current credential with one built from a token pair.
func (m *Manager) SignIn(ctx context.Context, accessToken, refreshToken string) (Credential, error) {
	cred, err := NewCredential(accessToken, refreshToken)
	if err != nil {
		return Credential{}, err
	}

	m.mu.Lock()
	m.cred = &cred
	m.mu.Unlock()

	m.persist(ctx, cred)
	logger.InfoContext(logger.WithSubject(ctx, cred.Subject), "signed in", "expires_at", cred.ExpiresAt())
	m.emitter.AuthSignedIn(cred.Subject, cred.ExpiresAt())
	return cred, nil
}

// SignInCallback signs in with the tokens carried by a sign-in redirect URL.
func (m *Manager) SignInCallback(ctx context.Context, rawURL string) (Credential, error) {
	access, refresh, err := ParseCallback(rawURL)
	if err != nil {
		return Credential{}, err
	}
	return m.SignIn(ctx, access, refresh)
}

// Credential returns the current credential without refreshing it.
func (m *Manager) Credential() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cred == nil {
		return Credential{}, false
	}
	return *m.cred, true
}

// Current returns a usable credential, refreshing it first when needed.
// It fails with KindUnauthorized when nobody is signed in and with
// KindRefreshFailed when the refresh exchange failed; in the latter case the
// returned credential still carries the refresh token.
func (m *Manager) Current(ctx context.Context) (Credential, error) {
	cred, ok := m.Credential()
	if !ok {
		return Credential{}, ErrUnauthorized
	}
	if cred.NeedsRefresh(m.now()) {
		cred = m.Refresh(ctx)
	}
	if cred.LastError != ErrorNone {
		return cred, pkgerrors.New(component, "Current", errors.New("credential refresh failed")).
			WithKind(pkgerrors.KindRefreshFailed)
	}
	if !cred.Usable(m.now()) {
		return cred, ErrUnauthorized
	}
	return cred, nil
}

// Refresh runs the refresh exchange now and returns the resulting credential.
// Concurrent calls share one exchange. It never returns an error; inspect
// LastError on the result.
func (m *Manager) Refresh(ctx context.Context) Credential {
	v, _, _ := m.group.Do("refresh", func() (any, error) {
		cred, ok := m.Credential()
		if !ok {
			return Credential{}, nil
		}

		start := m.now()
		next := m.refresher.Refresh(ctx, cred)
		elapsed := m.now().Sub(start)

		// A sign-out or a new sign-in during the exchange wins over its result.
		m.mu.Lock()
		superseded := m.cred == nil || m.cred.RefreshToken != cred.RefreshToken
		var current Credential
		if superseded {
			if m.cred != nil {
				current = *m.cred
			}
		} else {
			m.cred = &next
		}
		m.mu.Unlock()

		if superseded {
			return current, nil
		}

		m.persist(ctx, next)
		if next.LastError != ErrorNone {
			m.emitter.AuthRefreshFailed(next.Subject, elapsed)
		} else {
			m.emitter.AuthRefreshed(next.Subject, next.ExpiresAt(), elapsed)
		}
		return next, nil
	})
	return v.(Credential)
}

// SignOut destroys the credential in memory and in the store.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	var subject string
	if m.cred != nil {
		subject = m.cred.Subject
	}
	m.cred = nil
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx); err != nil {
			return pkgerrors.New(component, "SignOut", err)
		}
	}
	logger.InfoContext(logger.WithSubject(ctx, subject), "signed out")
	m.emitter.AuthSignedOut(subject)
	return nil
}

func (m *Manager) persist(ctx context.Context, cred Credential) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, cred); err != nil {
		logger.WarnContext(ctx, "failed to persist credential", "error", err)
	}
}

// TokenSource adapts the manager to oauth2.TokenSource. Each Token call goes
// through Current, so an expired credential is refreshed on demand.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, m: m}
}

type managerTokenSource struct {
	ctx context.Context
	m   *Manager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	cred, err := s.m.Current(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: cred.AccessToken,
		TokenType:   "Bearer",
		Expiry:      cred.ExpiresAt(),
	}, nil
}
