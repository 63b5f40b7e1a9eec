package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dtroode/contestauth/internal/logger"
	"github.com/dtroode/contestauth/internal/model"
)

// MinPasswordLength is enforced for passwords set without the remote provider.
const MinPasswordLength = 6

const (
	msgInvalidCredentials = "Invalid username or password"
	msgUsernameTaken      = "Username already exists. Please use a different email."
	msgEmailTaken         = "This email already belongs to a local account. Please sign in instead."
	msgShortPassword      = "Password must be at least 6 characters"
	msgInvalidEmail       = "Invalid email format. Please enter a valid email address."
	msgStorageFailure     = "Local account storage is unavailable. Please try again."
	msgInternal           = "internal error"
)

// Coordinator decides between the remote provider and the local store for
// every credential operation and keeps the two in step.
// No error or panic escapes its exported methods; failures come back as outcomes.
type Coordinator struct {
	accounts        model.AccountStore
	sessions        *SessionManager
	provider        model.IdentityProvider
	otp             *OTPStore
	logger          *logger.Logger
	localSessionTTL time.Duration
	now             func() time.Time
}

func NewCoordinator(
	accounts model.AccountStore,
	sessions *SessionManager,
	provider model.IdentityProvider,
	otp *OTPStore,
	logger *logger.Logger,
	localSessionTTL time.Duration,
) *Coordinator {
	if localSessionTTL <= 0 {
		localSessionTTL = model.LocalSessionDuration
	}

	return &Coordinator{
		accounts:        accounts,
		sessions:        sessions,
		provider:        provider,
		otp:             otp,
		logger:          logger,
		localSessionTTL: localSessionTTL,
		now:             time.Now,
	}
}

// Login authenticates identifier, which may be a username or an email.
// The remote provider is tried first; the local store is the fallback.
func (c *Coordinator) Login(ctx context.Context, identifier, password string, rememberMe bool) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = c.panicked("login", r)
		}
	}()

	c.logger.Debug("Coordinator: login started", "identifier", identifier)

	var remote *model.RemoteResult
	if c.provider.Enabled() {
		res := c.provider.SignIn(ctx, identifier, password)
		if res.Success {
			return c.completeRemoteLogin(ctx, identifier, password, rememberMe, res)
		}
		c.logger.Info("Coordinator: remote login failed, trying local store",
			"identifier", identifier,
			"kind", res.Kind)
		remote = &res
	}

	account, kind, err := c.matchLocal(ctx, identifier, password)
	if err != nil {
		c.logger.Error("Coordinator: local lookup failed",
			"identifier", identifier,
			"error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}
	if kind != model.KindNone {
		c.logger.Debug("Coordinator: local login rejected", "identifier", identifier, "reason", kind)
		if remote != nil && remote.Message != "" {
			return remote.Outcome()
		}
		return model.Failed(model.KindLocalBadPassword, msgInvalidCredentials)
	}

	session, err := c.sessions.Save(ctx, model.SessionRecord{
		Username:    account.Username,
		Email:       account.Email,
		TokenExpiry: c.now().Add(c.localSessionTTL),
		RememberMe:  rememberMe,
	})
	if err != nil {
		c.logger.Warn("Coordinator: failed to persist local session",
			"username", account.Username,
			"error", err.Error())
	}

	c.logger.Info("Coordinator: local login succeeded", "username", account.Username)

	out = model.Succeeded("Login successful (local).")
	out.Account = &account
	out.Session = sessionOrNil(session, err)
	return out
}

// completeRemoteLogin mirrors a remote identity locally and stores its session.
func (c *Coordinator) completeRemoteLogin(ctx context.Context, identifier, password string, rememberMe bool, res model.RemoteResult) model.Outcome {
	email := res.Email
	if email == "" {
		email = identifier
	}

	account, err := c.mirror(ctx, email, password, "", res.UID)
	if err != nil {
		c.logger.Error("Coordinator: failed to mirror remote account",
			"email", email,
			"error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}

	session, err := c.sessions.Save(ctx, c.remoteSession(account.Username, email, rememberMe, res))
	if err != nil {
		c.logger.Warn("Coordinator: failed to persist remote session",
			"username", account.Username,
			"error", err.Error())
	}

	c.logger.Info("Coordinator: remote login succeeded", "username", account.Username)

	out := model.Succeeded("Login successful.")
	out.Account = &account
	out.Session = sessionOrNil(session, err)
	return out
}

// mirror finds the local account for a remote identity, creating or backfilling it as needed.
func (c *Coordinator) mirror(ctx context.Context, email, password, fullName, uid string) (model.LocalAccount, error) {
	account, err := c.accounts.GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNotFound) {
		account, err = c.accounts.GetByUsername(ctx, model.DeriveUsername(email))
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		account = model.NewLocalAccount(model.DeriveUsername(email), password, email, uid, fullName, c.now())
		if err := c.accounts.Create(ctx, account); err != nil {
			return model.LocalAccount{}, fmt.Errorf("create mirror: %w", err)
		}
		c.logger.Info("Coordinator: local mirror created", "username", account.Username)
		return account, nil
	case err != nil:
		return model.LocalAccount{}, fmt.Errorf("find mirror: %w", err)
	}

	if account.RemoteUID != "" && account.Email != "" {
		return account, nil
	}

	backfillEmail, backfillUID := "", ""
	if account.Email == "" {
		backfillEmail = email
	}
	if account.RemoteUID == "" {
		backfillUID = uid
	}
	if err := c.accounts.UpdateRemoteIdentity(ctx, account.Username, backfillEmail, backfillUID); err != nil {
		// the login itself already succeeded
		c.logger.Warn("Coordinator: failed to backfill remote identity",
			"username", account.Username,
			"error", err.Error())
		return account, nil
	}

	if backfillEmail != "" {
		account.Email = backfillEmail
	}
	if backfillUID != "" {
		account.RemoteUID = backfillUID
	}
	return account, nil
}

// matchLocal checks password against the account found by username, email or derived username.
// It returns KindNone on a match and KindLocalNotFound or KindLocalBadPassword otherwise.
func (c *Coordinator) matchLocal(ctx context.Context, identifier, password string) (model.LocalAccount, model.ErrorKind, error) {
	lookups := []func(context.Context, string) (model.LocalAccount, error){
		c.accounts.GetByUsername,
		c.accounts.GetByEmail,
		func(ctx context.Context, id string) (model.LocalAccount, error) {
			return c.accounts.GetByUsername(ctx, model.DeriveUsername(id))
		},
	}

	for _, lookup := range lookups {
		account, err := lookup(ctx, identifier)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return model.LocalAccount{}, model.KindNone, err
		}

		if !passwordsEqual(account.Password, password) {
			return model.LocalAccount{}, model.KindLocalBadPassword, nil
		}
		return account, model.KindNone, nil
	}

	return model.LocalAccount{}, model.KindLocalNotFound, nil
}

// Register creates an account from email. With the remote provider enabled the
// local mirror is created only after the remote account exists.
func (c *Coordinator) Register(ctx context.Context, email, password, fullName string, rememberMe bool) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = c.panicked("register", r)
		}
	}()

	username := model.DeriveUsername(email)
	if !strings.Contains(email, "@") || username == "" {
		return model.Failed(model.KindInvalidEmailFormat, msgInvalidEmail)
	}

	c.logger.Debug("Coordinator: registration started", "username", username)

	if _, err := c.accounts.GetByUsername(ctx, username); err == nil {
		c.logger.Info("Coordinator: username already exists", "username", username)
		return model.Failed(model.KindUsernameTaken, msgUsernameTaken)
	} else if !errors.Is(err, model.ErrNotFound) {
		c.logger.Error("Coordinator: failed to check username", "username", username, "error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}

	if _, err := c.accounts.GetByEmail(ctx, email); err == nil {
		c.logger.Info("Coordinator: email already attached to a local account", "email", email)
		return model.Failed(model.KindUsernameTaken, msgEmailTaken)
	} else if !errors.Is(err, model.ErrNotFound) {
		c.logger.Error("Coordinator: failed to check email", "email", email, "error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}

	var (
		remote  model.RemoteResult
		session model.SessionRecord
	)
	if c.provider.Enabled() {
		remote = c.provider.SignUp(ctx, email, password)
		if !remote.Success {
			c.logger.Info("Coordinator: remote registration failed",
				"email", email,
				"kind", remote.Kind)
			return remote.Outcome()
		}
		session = c.remoteSession(username, email, rememberMe, remote)
	} else {
		if len(password) < MinPasswordLength {
			return model.Failed(model.KindWeakPassword, msgShortPassword)
		}
		session = model.SessionRecord{
			Username:    username,
			Email:       email,
			TokenExpiry: c.now().Add(c.localSessionTTL),
			RememberMe:  rememberMe,
		}
	}

	account := model.NewLocalAccount(username, password, email, remote.UID, fullName, c.now())
	if err := c.accounts.Create(ctx, account); err != nil {
		c.logger.Error("Coordinator: failed to create local account",
			"username", username,
			"remote_created", remote.Success,
			"error", err.Error())
		if errors.Is(err, model.ErrConflict) {
			return model.Failed(model.KindUsernameTaken, msgUsernameTaken)
		}
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}

	saved, err := c.sessions.Save(ctx, session)
	if err != nil {
		c.logger.Warn("Coordinator: failed to persist session after registration",
			"username", username,
			"error", err.Error())
	}

	c.logger.Info("Coordinator: registration succeeded",
		"username", username,
		"remote", remote.Success)

	out = model.Succeeded("Registration successful!")
	out.Account = &account
	out.Session = sessionOrNil(saved, err)
	return out
}

// AutoLogin resumes the most recent remembered session.
func (c *Coordinator) AutoLogin(ctx context.Context) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = c.panicked("auto login", r)
		}
	}()

	session, err := c.sessions.LoadMostRecentRemembered(ctx)
	if err != nil {
		c.logger.Error("Coordinator: failed to load remembered session", "error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}
	if session == nil {
		return model.Failed(model.KindLocalNotFound, "No remembered session.")
	}

	if !c.sessions.IsValid(ctx, session) {
		return model.Failed(model.KindLocalNotFound, "Session expired. Please log in again.")
	}

	account, err := c.accounts.GetByUsername(ctx, session.Username)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			c.logger.Warn("Coordinator: remembered session has no account", "username", session.Username)
			return model.Failed(model.KindLocalNotFound, "No remembered session.")
		}
		c.logger.Error("Coordinator: failed to load account", "username", session.Username, "error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}

	if err := c.sessions.Touch(ctx, session.Username); err != nil {
		c.logger.Warn("Coordinator: failed to update last login", "username", session.Username, "error", err.Error())
	}

	c.logger.Info("Coordinator: auto login succeeded", "username", account.Username)

	out = model.Succeeded(fmt.Sprintf("Welcome back, %s.", account.FullName))
	out.Account = &account
	out.Session = session
	return out
}

// Logout forgets the session of username.
func (c *Coordinator) Logout(ctx context.Context, username string) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = c.panicked("logout", r)
		}
	}()

	if err := c.sessions.Clear(ctx, username); err != nil {
		c.logger.Error("Coordinator: logout failed", "username", username, "error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}
	return model.Succeeded("Logged out.")
}

// LogoutAll forgets every stored session.
func (c *Coordinator) LogoutAll(ctx context.Context) (out model.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = c.panicked("logout all", r)
		}
	}()

	if err := c.sessions.ClearAll(ctx); err != nil {
		c.logger.Error("Coordinator: logout of all sessions failed", "error", err.Error())
		return model.Failed(model.KindLocalStorage, msgStorageFailure)
	}
	return model.Succeeded("All sessions cleared.")
}

// SyncAndUpdatePassword sets a new password locally and makes a best effort to
// bring the remote account in line. oldPassword may be empty, in which case the
// stored local password is replayed to the provider.
// The local update happens whatever the remote calls return.
func (c *Coordinator) SyncAndUpdatePassword(ctx context.Context, email, newPassword, oldPassword string) (out model.ResetOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = model.ResetOutcome{Outcome: c.panicked("password sync", r)}
		}
	}()

	account, err := c.findForReset(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ResetOutcome{Outcome: model.Failed(model.KindLocalNotFound, "User not found with email: "+email)}
		}
		c.logger.Error("Coordinator: failed to find account for reset", "email", email, "error", err.Error())
		return model.ResetOutcome{Outcome: model.Failed(model.KindLocalStorage, msgStorageFailure)}
	}

	credential := oldPassword
	if credential == "" {
		credential = account.Password
	}

	sync := c.syncRemotePassword(ctx, account, email, newPassword, credential)

	if err := c.accounts.UpdatePassword(ctx, account.Username, newPassword); err != nil {
		c.logger.Error("Coordinator: failed to update local password",
			"username", account.Username,
			"remote_synced", sync.synced,
			"error", err.Error())
		return model.ResetOutcome{
			Outcome:      model.Failed(model.KindLocalStorage, "Failed to update password locally. "+sync.message),
			RemoteSynced: sync.synced,
		}
	}
	account.Password = newPassword

	backfillEmail, backfillUID := "", ""
	if account.Email == "" {
		backfillEmail = email
	}
	if sync.uid != "" && sync.uid != account.RemoteUID {
		backfillUID = sync.uid
	}
	if backfillEmail != "" || backfillUID != "" {
		if err := c.accounts.UpdateRemoteIdentity(ctx, account.Username, backfillEmail, backfillUID); err != nil {
			c.logger.Warn("Coordinator: failed to record remote identity",
				"username", account.Username,
				"error", err.Error())
		} else {
			if backfillEmail != "" {
				account.Email = backfillEmail
			}
			if backfillUID != "" {
				account.RemoteUID = backfillUID
			}
		}
	}

	c.logger.Info("Coordinator: password updated",
		"username", account.Username,
		"remote_synced", sync.synced)

	out.Outcome = model.Succeeded("Password updated locally. " + sync.message)
	out.Outcome.Account = &account
	out.RemoteSynced = sync.synced
	return out
}

type remoteSync struct {
	synced  bool
	message string
	uid     string
}

// syncRemotePassword runs the remote half of a password reset.
func (c *Coordinator) syncRemotePassword(ctx context.Context, account model.LocalAccount, email, newPassword, credential string) remoteSync {
	if !c.provider.Enabled() {
		return remoteSync{message: "Remote sync not enabled, updated locally only."}
	}

	if account.RemoteUID == "" {
		up := c.provider.SignUp(ctx, email, newPassword)
		switch {
		case up.Success:
			return remoteSync{synced: true, message: "Remote account created and synced!", uid: up.UID}
		case up.Kind == model.KindEmailExists:
			c.logger.Info("Coordinator: remote account exists, updating its password", "email", email)
			return c.replayAndUpdate(ctx, email, newPassword, credential,
				"Password reset email sent by the remote provider. Please also reset via email.")
		default:
			return remoteSync{message: "Remote sync failed: " + up.Message}
		}
	}

	in := c.provider.SignIn(ctx, email, credential)
	if in.Success {
		return c.updateWithToken(ctx, in, newPassword)
	}

	// the remote account may have been deleted out of band
	c.logger.Info("Coordinator: remote sign-in failed, recreating account", "email", email, "kind", in.Kind)
	up := c.provider.SignUp(ctx, email, newPassword)
	switch {
	case up.Success:
		return remoteSync{synced: true, message: "Remote account recreated!", uid: up.UID}
	case up.Kind == model.KindEmailExists:
		c.sendResetEmail(ctx, email)
		return remoteSync{message: "Password reset email sent. Please also reset via email link."}
	default:
		return remoteSync{message: "Remote sync failed: " + up.Message}
	}
}

func (c *Coordinator) replayAndUpdate(ctx context.Context, email, newPassword, credential, fallbackMessage string) remoteSync {
	in := c.provider.SignIn(ctx, email, credential)
	if !in.Success {
		c.sendResetEmail(ctx, email)
		return remoteSync{message: fallbackMessage}
	}
	return c.updateWithToken(ctx, in, newPassword)
}

func (c *Coordinator) updateWithToken(ctx context.Context, in model.RemoteResult, newPassword string) remoteSync {
	upd := c.provider.UpdatePassword(ctx, in.IDToken, newPassword)
	if !upd.Success {
		return remoteSync{message: "Remote update failed: " + upd.Message}
	}
	return remoteSync{synced: true, message: "Remote password updated!", uid: in.UID}
}

func (c *Coordinator) sendResetEmail(ctx context.Context, email string) {
	res := c.provider.SendPasswordResetEmail(ctx, email)
	if !res.Success {
		c.logger.Warn("Coordinator: password reset email not sent", "email", email, "kind", res.Kind)
	}
}

// findForReset looks an account up by email, then username, then derived username.
func (c *Coordinator) findForReset(ctx context.Context, email string) (model.LocalAccount, error) {
	account, err := c.accounts.GetByEmail(ctx, email)
	if !errors.Is(err, model.ErrNotFound) {
		return account, err
	}

	account, err = c.accounts.GetByUsername(ctx, email)
	if !errors.Is(err, model.ErrNotFound) {
		return account, err
	}

	return c.accounts.GetByUsername(ctx, model.DeriveUsername(email))
}

func (c *Coordinator) remoteSession(username, email string, rememberMe bool, res model.RemoteResult) model.SessionRecord {
	lifetime := res.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}

	return model.SessionRecord{
		Username:     username,
		RemoteUID:    res.UID,
		Email:        email,
		IDToken:      res.IDToken,
		RefreshToken: res.RefreshToken,
		TokenExpiry:  c.now().Add(lifetime),
		RememberMe:   rememberMe,
	}
}

func (c *Coordinator) panicked(op string, r any) model.Outcome {
	c.logger.Error("Coordinator: recovered from panic", "operation", op, "panic", fmt.Sprint(r))
	return model.Failed(model.KindUnknown, msgInternal)
}

func sessionOrNil(session model.SessionRecord, err error) *model.SessionRecord {
	if err != nil {
		return nil
	}
	return &session
}

func passwordsEqual(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
