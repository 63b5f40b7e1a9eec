package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/contestauth/internal/config"
	"github.com/dtroode/contestauth/internal/identity"
	servermocks "github.com/dtroode/contestauth/internal/mocks"
	"github.com/dtroode/contestauth/internal/model"
	"github.com/dtroode/contestauth/internal/repository/sqlstore"
	"github.com/dtroode/contestauth/internal/storage/memory"
	"github.com/dtroode/contestauth/internal/testutil"
)

type providerMode int

const (
	remoteDisabled providerMode = iota
	remoteEnabled
	remoteDown
)

type coordinatorEnv struct {
	coord    *Coordinator
	accounts *sqlstore.AccountRepository
	sessions *sqlstore.SessionRepository
	otp      *OTPStore
	remote   *testutil.FakeProvider
}

func newCoordinatorEnv(t *testing.T, mode providerMode) *coordinatorEnv {
	t.Helper()

	conn, err := sqlstore.NewConnection(context.Background(), sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	fp := testutil.NewFakeProvider(t)
	cfg := config.Provider{
		Enabled:     mode != remoteDisabled,
		APIKey:      testutil.FakeAPIKey,
		IdentityURL: fp.IdentityURL(),
		TokenURL:    fp.TokenURL(),
		Timeout:     5 * time.Second,
	}
	if mode == remoteDown {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		cfg.IdentityURL = dead.URL + "/v1"
		cfg.TokenURL = dead.URL + "/token/v1"
	}

	log := testutil.MakeNoopLogger()
	provider := identity.New(cfg, log)
	accounts := sqlstore.NewAccountRepository(conn)
	sessions := sqlstore.NewSessionRepository(conn)
	otp := NewOTPStore(memory.NewStore(), 10*time.Minute, log)

	return &coordinatorEnv{
		coord:    NewCoordinator(accounts, NewSessionManager(sessions, provider, log), provider, otp, log, 0),
		accounts: accounts,
		sessions: sessions,
		otp:      otp,
		remote:   fp,
	}
}

func (e *coordinatorEnv) seed(t *testing.T, username, password, email, uid string) {
	t.Helper()
	require.NoError(t, e.accounts.Create(context.Background(), model.NewLocalAccount(username, password, email, uid, "", time.Now())))
}

func TestCoordinator_RegisterThenLoginLocal(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteDisabled)

	out := env.coord.Register(ctx, "a@b.com", "abcdef", "", false)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "Registration successful!", out.Message)
	require.NotNil(t, out.Account)
	assert.Equal(t, "a", out.Account.Username)
	assert.Equal(t, "a", out.Account.FullName)
	assert.Equal(t, model.DefaultRating, out.Account.CurrentRating)
	assert.Empty(t, out.Account.RemoteUID)

	out = env.coord.Login(ctx, "a", "abcdef", false)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "Login successful (local).", out.Message)
	require.NotNil(t, out.Session)
	assert.Empty(t, out.Session.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(model.LocalSessionDuration), out.Session.TokenExpiry, time.Minute)

	out = env.coord.Login(ctx, "a@b.com", "abcdef", false)
	assert.True(t, out.Success, "login by email")

	assert.Zero(t, env.remote.Requests())
}

func TestCoordinator_LoginLocalFailures(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteDisabled)
	env.seed(t, "a", "abcdef", "a@b.com", "")

	tests := []struct {
		name       string
		identifier string
		password   string
	}{
		{"wrong password", "a", "wrong"},
		{"unknown user", "nobody", "abcdef"},
		{"empty password", "a", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := env.coord.Login(ctx, tt.identifier, tt.password, false)
			assert.False(t, out.Success)
			assert.Equal(t, "Invalid username or password", out.Message)
			assert.Equal(t, model.KindLocalBadPassword, out.Kind)
			assert.Nil(t, out.Account)
		})
	}
}

func TestCoordinator_RegisterValidation(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteDisabled)
	env.seed(t, "taken", "abcdef", "", "")
	env.seed(t, "other", "abcdef", "mail@b.com", "")

	tests := []struct {
		name     string
		email    string
		password string
		kind     model.ErrorKind
	}{
		{"no at sign", "plainname", "abcdef", model.KindInvalidEmailFormat},
		{"empty local part", "@b.com", "abcdef", model.KindInvalidEmailFormat},
		{"short password", "new@b.com", "abc", model.KindWeakPassword},
		{"username taken", "taken@elsewhere.com", "abcdef", model.KindUsernameTaken},
		{"email taken", "mail@b.com", "abcdef", model.KindUsernameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := env.coord.Register(ctx, tt.email, tt.password, "", false)
			assert.False(t, out.Success)
			assert.Equal(t, tt.kind, out.Kind)
		})
	}
}

func TestCoordinator_RegisterRemote(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteEnabled)

	out := env.coord.Register(ctx, "bob@x.io", "secret1", "Bob Stone", true)
	require.True(t, out.Success, out.Message)
	require.True(t, env.remote.HasAccount("bob@x.io"))

	account, err := env.accounts.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.NotEmpty(t, account.RemoteUID)
	assert.Equal(t, "bob@x.io", account.Email)
	assert.Equal(t, "Bob Stone", account.FullName)

	session, err := env.sessions.GetMostRecentRemembered(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", session.Username)
	assert.Equal(t, account.RemoteUID, session.RemoteUID)
	assert.NotEmpty(t, session.IDToken)
	assert.NotEmpty(t, session.RefreshToken)
}

func TestCoordinator_RegisterExistingRemoteEmail(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteEnabled)
	env.remote.AddAccount("bob@x.io", "secret1")

	out := env.coord.Register(ctx, "bob@x.io", "secret1", "", false)
	assert.False(t, out.Success)
	assert.Equal(t, model.KindEmailExists, out.Kind)
	assert.Equal(t, "This email is already registered. Please sign in or use a different email.", out.Message)

	_, err := env.accounts.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCoordinator_RegisterRemoteWeakPassword(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteEnabled)

	out := env.coord.Register(ctx, "bob@x.io", "abc", "", false)
	assert.False(t, out.Success)
	assert.Equal(t, model.KindWeakPassword, out.Kind)

	_, err := env.accounts.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCoordinator_LoginRemoteCreatesMirror(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteEnabled)
	uid := env.remote.AddAccount("carol@x.io", "secret1")

	out := env.coord.Login(ctx, "carol@x.io", "secret1", true)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "Login successful.", out.Message)
	require.NotNil(t, out.Account)
	assert.Equal(t, "carol", out.Account.Username)
	assert.Equal(t, uid, out.Account.RemoteUID)

	account, err := env.accounts.GetByEmail(ctx, "carol@x.io")
	require.NoError(t, err)
	assert.Equal(t, "secret1", account.Password)

	out = env.coord.AutoLogin(ctx)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "carol", out.Account.Username)
}

func TestCoordinator_LoginRemoteBackfillsIdentity(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteEnabled)
	env.seed(t, "dave", "secret1", "", "")
	uid := env.remote.AddAccount("dave@x.io", "secret1")

	out := env.coord.Login(ctx, "dave@x.io", "secret1", false)
	require.True(t, out.Success, out.Message)

	account, err := env.accounts.GetByUsername(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, uid, account.RemoteUID)
	assert.Equal(t, "dave@x.io", account.Email)
}

func TestCoordinator_LoginFallsBackToLocal(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteDown)
	env.seed(t, "erin", "secret1", "erin@x.io", "uid-1")

	out := env.coord.Login(ctx, "erin@x.io", "secret1", false)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "Login successful (local).", out.Message)

	out = env.coord.Login(ctx, "erin@x.io", "wrong", false)
	assert.False(t, out.Success)
	assert.Equal(t, model.KindNetwork, out.Kind)
	assert.Contains(t, out.Message, "Network error")
}

func TestCoordinator_LoginRemoteRejectedNoLocal(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteEnabled)
	env.remote.AddAccount("frank@x.io", "secret1")

	out := env.coord.Login(ctx, "frank@x.io", "wrong", false)
	assert.False(t, out.Success)
	assert.Equal(t, model.KindBadPassword, out.Kind)
	assert.Equal(t, "Incorrect password. Please try again.", out.Message)
}

func TestCoordinator_AutoLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing remembered", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteDisabled)
		env.seed(t, "a", "abcdef", "a@b.com", "")
		require.True(t, env.coord.Login(ctx, "a", "abcdef", false).Success)

		out := env.coord.AutoLogin(ctx)
		assert.False(t, out.Success)
		assert.Equal(t, model.KindLocalNotFound, out.Kind)
	})

	t.Run("local session", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteDisabled)
		env.seed(t, "a", "abcdef", "a@b.com", "")
		require.True(t, env.coord.Login(ctx, "a", "abcdef", true).Success)

		out := env.coord.AutoLogin(ctx)
		require.True(t, out.Success, out.Message)
		assert.Equal(t, "a", out.Account.Username)
	})

	t.Run("expired remote session refreshed", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		env.remote.AddAccount("gus@x.io", "secret1")
		env.seed(t, "gus", "secret1", "gus@x.io", "uid-gus")

		_, err := env.coord.sessions.Save(ctx, model.SessionRecord{
			Username:     "gus",
			Email:        "gus@x.io",
			IDToken:      "stale",
			RefreshToken: env.remote.IssueRefreshToken("gus@x.io"),
			TokenExpiry:  time.Now().Add(-time.Hour),
			RememberMe:   true,
		})
		require.NoError(t, err)

		out := env.coord.AutoLogin(ctx)
		require.True(t, out.Success, out.Message)
		assert.NotEqual(t, "stale", out.Session.IDToken)
		assert.True(t, out.Session.TokenExpiry.After(time.Now()))

		stored, err := env.sessions.GetMostRecentRemembered(ctx)
		require.NoError(t, err)
		assert.Equal(t, out.Session.IDToken, stored.IDToken)
	})

	t.Run("refresh rejected drops session", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		env.seed(t, "gus", "secret1", "gus@x.io", "uid-gus")

		_, err := env.coord.sessions.Save(ctx, model.SessionRecord{
			Username:     "gus",
			RefreshToken: "revoked",
			TokenExpiry:  time.Now().Add(-time.Hour),
			RememberMe:   true,
		})
		require.NoError(t, err)

		out := env.coord.AutoLogin(ctx)
		assert.False(t, out.Success)

		_, err = env.sessions.GetMostRecentRemembered(ctx)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestCoordinator_Logout(t *testing.T) {
	ctx := context.Background()
	env := newCoordinatorEnv(t, remoteDisabled)
	env.seed(t, "a", "abcdef", "a@b.com", "")
	env.seed(t, "b", "abcdef", "b@b.com", "")

	require.True(t, env.coord.Login(ctx, "a", "abcdef", true).Success)
	require.True(t, env.coord.Login(ctx, "b", "abcdef", true).Success)

	require.True(t, env.coord.Logout(ctx, "b").Success)
	out := env.coord.AutoLogin(ctx)
	require.True(t, out.Success)
	assert.Equal(t, "a", out.Account.Username)

	require.True(t, env.coord.LogoutAll(ctx).Success)
	assert.False(t, env.coord.AutoLogin(ctx).Success)
}

func TestCoordinator_SyncAndUpdatePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("remote disabled", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteDisabled)
		env.seed(t, "a", "abcdef", "a@b.com", "")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.False(t, out.RemoteSynced)
		assert.Equal(t, "Password updated locally. Remote sync not enabled, updated locally only.", out.Message)
		assert.True(t, env.coord.Login(ctx, "a", "newpass1", false).Success)
		assert.False(t, env.coord.Login(ctx, "a", "abcdef", false).Success)
	})

	t.Run("unknown email", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteDisabled)

		out := env.coord.SyncAndUpdatePassword(ctx, "ghost@b.com", "newpass1", "")
		assert.False(t, out.Success)
		assert.Equal(t, model.KindLocalNotFound, out.Kind)
		assert.Equal(t, "User not found with email: ghost@b.com", out.Message)
	})

	t.Run("found by derived username and email backfilled", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteDisabled)
		env.seed(t, "a", "abcdef", "", "")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)

		account, err := env.accounts.GetByUsername(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", account.Email)
	})

	t.Run("no remote account yet", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		env.seed(t, "a", "abcdef", "a@b.com", "")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.True(t, out.RemoteSynced)
		assert.Equal(t, "Password updated locally. Remote account created and synced!", out.Message)

		pw, ok := env.remote.Password("a@b.com")
		require.True(t, ok)
		assert.Equal(t, "newpass1", pw)

		account, err := env.accounts.GetByUsername(ctx, "a")
		require.NoError(t, err)
		assert.NotEmpty(t, account.RemoteUID)
	})

	t.Run("remote exists with same password", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		env.seed(t, "a", "abcdef", "a@b.com", "")
		uid := env.remote.AddAccount("a@b.com", "abcdef")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.True(t, out.RemoteSynced)
		assert.Equal(t, "Password updated locally. Remote password updated!", out.Message)

		pw, _ := env.remote.Password("a@b.com")
		assert.Equal(t, "newpass1", pw)

		account, err := env.accounts.GetByUsername(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, uid, account.RemoteUID)
	})

	t.Run("remote exists with other password", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		env.seed(t, "a", "abcdef", "a@b.com", "")
		env.remote.AddAccount("a@b.com", "different")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.False(t, out.RemoteSynced)
		assert.Contains(t, out.Message, "Password reset email sent")

		pw, _ := env.remote.Password("a@b.com")
		assert.Equal(t, "different", pw)
	})

	t.Run("linked account uses old password", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		uid := env.remote.AddAccount("a@b.com", "typedold")
		env.seed(t, "a", "storedold", "a@b.com", uid)

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "typedold")
		require.True(t, out.Success, out.Message)
		assert.True(t, out.RemoteSynced)

		pw, _ := env.remote.Password("a@b.com")
		assert.Equal(t, "newpass1", pw)
	})

	t.Run("linked account deleted remotely", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		env.seed(t, "a", "abcdef", "a@b.com", "stale-uid")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.True(t, out.RemoteSynced)
		assert.Equal(t, "Password updated locally. Remote account recreated!", out.Message)

		account, err := env.accounts.GetByUsername(ctx, "a")
		require.NoError(t, err)
		assert.NotEqual(t, "stale-uid", account.RemoteUID)
	})

	t.Run("linked account with unknown password", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteEnabled)
		uid := env.remote.AddAccount("a@b.com", "different")
		env.seed(t, "a", "abcdef", "a@b.com", uid)

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.False(t, out.RemoteSynced)
		assert.Equal(t, "Password updated locally. Password reset email sent. Please also reset via email link.", out.Message)
	})

	t.Run("network down", func(t *testing.T) {
		env := newCoordinatorEnv(t, remoteDown)
		env.seed(t, "a", "abcdef", "a@b.com", "uid-a")

		out := env.coord.SyncAndUpdatePassword(ctx, "a@b.com", "newpass1", "")
		require.True(t, out.Success, out.Message)
		assert.False(t, out.RemoteSynced)
		assert.Contains(t, out.Message, "Remote sync failed: Network error")

		account, err := env.accounts.GetByUsername(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "newpass1", account.Password)
		assert.Equal(t, "uid-a", account.RemoteUID)
	})
}

func TestCoordinator_StorageErrors(t *testing.T) {
	ctx := context.Background()
	log := testutil.MakeNoopLogger()

	accounts := &servermocks.AccountStore{}
	provider := &servermocks.IdentityProvider{}
	provider.On("Enabled").Return(false)
	accounts.On("GetByUsername", mock.Anything, mock.Anything).Return(model.LocalAccount{}, assert.AnError)
	accounts.On("GetByEmail", mock.Anything, mock.Anything).Return(model.LocalAccount{}, assert.AnError)

	c := NewCoordinator(accounts, NewSessionManager(&servermocks.SessionStore{}, provider, log), provider, nil, log, 0)

	out := c.Login(ctx, "a", "abcdef", false)
	assert.Equal(t, model.KindLocalStorage, out.Kind)

	out = c.Register(ctx, "a@b.com", "abcdef", "", false)
	assert.Equal(t, model.KindLocalStorage, out.Kind)

	reset := c.SyncAndUpdatePassword(ctx, "a@b.com", "abcdef", "")
	assert.Equal(t, model.KindLocalStorage, reset.Kind)
}

func TestCoordinator_RegisterRemoteCreateFails(t *testing.T) {
	ctx := context.Background()
	log := testutil.MakeNoopLogger()

	accounts := &servermocks.AccountStore{}
	provider := &servermocks.IdentityProvider{}
	provider.On("Enabled").Return(true)
	provider.On("SignUp", ctx, "a@b.com", "abcdef").Return(model.RemoteResult{Success: true, UID: "uid-a"}).Once()
	accounts.On("GetByUsername", ctx, "a").Return(model.LocalAccount{}, model.ErrNotFound)
	accounts.On("GetByEmail", ctx, "a@b.com").Return(model.LocalAccount{}, model.ErrNotFound)
	accounts.On("Create", ctx, mock.Anything).Return(model.ErrConflict).Once()

	c := NewCoordinator(accounts, NewSessionManager(&servermocks.SessionStore{}, provider, log), provider, nil, log, 0)

	out := c.Register(ctx, "a@b.com", "abcdef", "", false)
	assert.False(t, out.Success)
	assert.Equal(t, model.KindUsernameTaken, out.Kind)
	accounts.AssertExpectations(t)
}

func TestCoordinator_RecoversFromPanic(t *testing.T) {
	ctx := context.Background()
	log := testutil.MakeNoopLogger()

	accounts := &servermocks.AccountStore{}
	provider := &servermocks.IdentityProvider{}
	sessions := &servermocks.SessionStore{}
	provider.On("Enabled").Return(false)
	accounts.On("GetByUsername", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).
		Return(model.LocalAccount{}, nil)
	accounts.On("GetByEmail", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).
		Return(model.LocalAccount{}, nil)
	sessions.On("GetMostRecentRemembered", mock.Anything).
		Run(func(mock.Arguments) { panic("boom") }).
		Return(model.SessionRecord{}, nil)

	c := NewCoordinator(accounts, NewSessionManager(sessions, provider, log), provider, nil, log, 0)

	for name, out := range map[string]model.Outcome{
		"login":      c.Login(ctx, "a", "abcdef", false),
		"register":   c.Register(ctx, "a@b.com", "abcdef", "", false),
		"auto login": c.AutoLogin(ctx),
		"sync":       c.SyncAndUpdatePassword(ctx, "a@b.com", "abcdef", "").Outcome,
	} {
		assert.False(t, out.Success, name)
		assert.Equal(t, model.KindUnknown, out.Kind, name)
	}
}
