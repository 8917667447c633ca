package auth_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/AltairaLabs/convostream/pkg/errors"
	"github.com/AltairaLabs/convostream/pkg/testutil"
	"github.com/AltairaLabs/convostream/runtime/auth"
	"github.com/AltairaLabs/convostream/runtime/auth/credstore"
	"github.com/AltairaLabs/convostream/runtime/events"
)

// fakeRefresher returns a fresh token expiring at exp, or fails when fail is set.
type fakeRefresher struct {
	calls   atomic.Int32
	fail    atomic.Bool
	exp     time.Time
	release chan struct{}
}

func (f *fakeRefresher) Refresh(_ context.Context, cred auth.Credential) auth.Credential {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.fail.Load() {
		cred.LastError = auth.ErrorRefreshFailed
		return cred
	}
	next, err := auth.NewCredential(testutil.MintToken(cred.Subject, f.exp), cred.RefreshToken)
	if err != nil {
		panic(err)
	}
	return next
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

var (
	t0        = time.Unix(1_700_000_000, 0)
	firstExp  = t0.Add(15 * time.Minute)
	secondExp = t0.Add(45 * time.Minute)
)

func newManager(t *testing.T, opts ...auth.ManagerOption) (*auth.Manager, *fakeRefresher, *clock, *credstore.MemoryStore) {
	t.Helper()
	refresher := &fakeRefresher{exp: secondExp}
	clk := &clock{now: t0}
	store := credstore.NewMemoryStore()
	all := append([]auth.ManagerOption{auth.WithClock(clk.Now), auth.WithStore(store)}, opts...)
	return auth.NewManager(refresher, all...), refresher, clk, store
}

func TestManagerSignInAndCurrent(t *testing.T) {
	m, refresher, _, store := newManager(t)
	ctx := context.Background()

	_, err := m.Current(ctx)
	assert.True(t, pkgerrors.Is(err, pkgerrors.KindUnauthorized))

	cred, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Subject)

	got, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred, got)
	assert.Zero(t, refresher.calls.Load(), "a fresh credential is not refreshed")

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred, stored)
}

func TestManagerRefreshesLazilyAtExpiry(t *testing.T) {
	m, refresher, clk, store := newManager(t)
	ctx := context.Background()
	_, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)

	clk.Set(firstExp)
	got, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, secondExp.UnixMilli(), got.AccessTokenExpiresAtMillis)
	assert.Equal(t, "refresh-1", got.RefreshToken)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, stored)
}

func TestManagerRefreshFailureKeepsTokens(t *testing.T) {
	m, refresher, clk, store := newManager(t)
	ctx := context.Background()
	signed, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)

	refresher.fail.Store(true)
	clk.Set(firstExp.Add(time.Second))

	got, err := m.Current(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.KindRefreshFailed))
	assert.Equal(t, auth.ErrorRefreshFailed, got.LastError)
	assert.Equal(t, signed.AccessToken, got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.ErrorRefreshFailed, stored.LastError)

	// The retained refresh token can be retried.
	refresher.fail.Store(false)
	got, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, auth.ErrorNone, got.LastError)
	assert.Equal(t, int32(2), refresher.calls.Load())
}

func TestManagerConcurrentCallersShareOneRefresh(t *testing.T) {
	m, refresher, clk, _ := newManager(t)
	refresher.release = make(chan struct{})
	ctx := context.Background()
	_, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)
	clk.Set(firstExp)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]auth.Credential, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = m.Current(ctx)
		}(i)
	}

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(refresher.release)
	wg.Wait()

	assert.Equal(t, int32(1), refresher.calls.Load())
	for _, r := range results {
		assert.Equal(t, secondExp.UnixMilli(), r.AccessTokenExpiresAtMillis)
	}
}

func TestManagerSignOut(t *testing.T) {
	m, _, _, store := newManager(t)
	ctx := context.Background()
	_, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)

	require.NoError(t, m.SignOut(ctx))
	_, ok := m.Credential()
	assert.False(t, ok)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, auth.ErrNoCredential)

	_, err = m.Current(ctx)
	assert.True(t, pkgerrors.Is(err, pkgerrors.KindUnauthorized))
}

func TestManagerSignOutDuringRefresh(t *testing.T) {
	m, refresher, clk, store := newManager(t)
	refresher.release = make(chan struct{})
	ctx := context.Background()
	_, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)
	clk.Set(firstExp)

	type result struct {
		cred auth.Credential
		err  error
	}
	done := make(chan result, 1)
	go func() {
		cred, err := m.Current(ctx)
		done <- result{cred, err}
	}()

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, m.SignOut(ctx))
	close(refresher.release)

	r := <-done
	assert.True(t, pkgerrors.Is(r.err, pkgerrors.KindUnauthorized))
	assert.Empty(t, r.cred.AccessToken, "no token is handed out after sign-out")
	_, ok := m.Credential()
	assert.False(t, ok)
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, auth.ErrNoCredential, "the refreshed credential is not persisted")
}

func TestManagerSignInDuringRefresh(t *testing.T) {
	m, refresher, clk, _ := newManager(t)
	refresher.release = make(chan struct{})
	ctx := context.Background()
	_, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)
	clk.Set(firstExp)

	done := make(chan auth.Credential, 1)
	go func() {
		cred, _ := m.Current(ctx)
		done <- cred
	}()

	require.Eventually(t, func() bool { return refresher.calls.Load() == 1 }, time.Second, time.Millisecond)
	bob, err := m.SignIn(ctx, testutil.MintToken("bob", secondExp), "refresh-2")
	require.NoError(t, err)
	close(refresher.release)

	got := <-done
	assert.Equal(t, bob.AccessToken, got.AccessToken)
	assert.Equal(t, "bob", got.Subject)
}

func TestManagerRestore(t *testing.T) {
	m, _, _, store := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.Restore(ctx), "empty store restores nothing")

	cred, err := auth.NewCredential(testutil.MintToken("carol", firstExp), "refresh-9")
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cred))

	require.NoError(t, m.Restore(ctx))
	got, ok := m.Credential()
	require.True(t, ok)
	assert.Equal(t, "carol", got.Subject)
}

func TestManagerSignInCallback(t *testing.T) {
	m, _, _, _ := newManager(t)
	access := testutil.MintToken("dave", firstExp)

	cred, err := m.SignInCallback(context.Background(),
		"http://localhost:3000/auth/callback?access_token="+access+"&refresh_token=r")
	require.NoError(t, err)
	assert.Equal(t, "dave", cred.Subject)

	_, err = m.SignInCallback(context.Background(), "http://localhost:3000/auth/callback")
	assert.True(t, pkgerrors.Is(err, pkgerrors.KindUnauthorized))
}

func TestManagerPublishesEvents(t *testing.T) {
	bus := events.NewEventBus()
	var got []events.EventType
	bus.SubscribeAll(func(e *events.Event) { got = append(got, e.Type) })

	m, refresher, clk, _ := newManager(t, auth.WithEventBus(bus))
	ctx := context.Background()
	_, err := m.SignIn(ctx, testutil.MintToken("alice", firstExp), "refresh-1")
	require.NoError(t, err)

	clk.Set(firstExp)
	m.Refresh(ctx)
	refresher.fail.Store(true)
	m.Refresh(ctx)
	require.NoError(t, m.SignOut(ctx))
	bus.Close()

	assert.Equal(t, []events.EventType{
		events.EventAuthSignedIn,
		events.EventAuthRefreshed,
		events.EventAuthRefreshFailed,
		events.EventAuthSignedOut,
	}, got)
}

func TestManagerTokenSource(t *testing.T) {
	m, _, _, _ := newManager(t)
	ctx := context.Background()

	_, err := m.TokenSource(ctx).Token()
	assert.Error(t, err)

	access := testutil.MintToken("alice", firstExp)
	_, err = m.SignIn(ctx, access, "refresh-1")
	require.NoError(t, err)

	tok, err := m.TokenSource(ctx).Token()
	require.NoError(t, err)
	assert.Equal(t, access, tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, firstExp, tok.Expiry)
}
