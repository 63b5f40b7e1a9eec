package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dtroode/contestauth/internal/model"
)

// ResetState is the position of a PasswordReset in its flow.
type ResetState int

const (
	ResetIdle ResetState = iota
	ResetOTPIssued
	ResetOTPVerified
	ResetCompleted
)

func (s ResetState) String() string {
	switch s {
	case ResetIdle:
		return "idle"
	case ResetOTPIssued:
		return "otp_issued"
	case ResetOTPVerified:
		return "otp_verified"
	case ResetCompleted:
		return "completed"
	default:
		return fmt.Sprintf("ResetState(%d)", int(s))
	}
}

// PasswordReset drives one OTP-gated reset for a single email:
// Issue, then Verify until accepted, then Complete.
// Verify may be retried without limit while the code is live.
type PasswordReset struct {
	c     *Coordinator
	email string

	mu    sync.Mutex
	state ResetState
}

// BeginPasswordReset starts a reset flow for email.
func (c *Coordinator) BeginPasswordReset(email string) *PasswordReset {
	return &PasswordReset{c: c, email: strings.TrimSpace(email)}
}

func (r *PasswordReset) Email() string {
	return r.email
}

func (r *PasswordReset) State() ResetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Issue stores a fresh code for the email and returns it.
// Issuing again replaces the previous code and requires a new verification.
func (r *PasswordReset) Issue(ctx context.Context) (code string, out model.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			code, out = "", r.c.panicked("otp issue", p)
		}
	}()

	if !strings.Contains(r.email, "@") || !strings.Contains(r.email, ".") {
		return "", model.Failed(model.KindInvalidEmailFormat, msgInvalidEmail)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == ResetCompleted {
		return "", model.Failed(model.KindInvalidState, "Password reset already completed.")
	}

	code, err := r.c.otp.Issue(ctx, r.email)
	if err != nil {
		r.c.logger.Error("Coordinator: failed to issue reset code", "email", r.email, "error", err.Error())
		return "", model.Failed(model.KindNetwork, "Could not create a reset code. Please try again.")
	}

	r.state = ResetOTPIssued
	return code, model.Succeeded("Reset code generated. It expires in 10 minutes.")
}

// Verify checks code against the stored challenge. A wrong or expired code
// leaves the flow where it was.
func (r *PasswordReset) Verify(ctx context.Context, code string) (out model.Outcome) {
	defer func() {
		if p := recover(); p != nil {
			out = r.c.panicked("otp verify", p)
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != ResetOTPIssued && r.state != ResetOTPVerified {
		return model.Failed(model.KindInvalidState, "Request a reset code first.")
	}

	ok, err := r.c.otp.Verify(ctx, r.email, strings.TrimSpace(code))
	if err != nil {
		r.c.logger.Error("Coordinator: failed to verify reset code", "email", r.email, "error", err.Error())
		return model.Failed(model.KindNetwork, "Could not check the reset code. Please try again.")
	}
	if !ok {
		return model.Failed(model.KindOTPRejected, "Invalid or expired code.")
	}

	r.state = ResetOTPVerified
	return model.Succeeded("Code verified.")
}

// Complete sets newPassword once the code has been verified. oldPassword is
// optional and only used to sign in to the remote provider.
func (r *PasswordReset) Complete(ctx context.Context, newPassword, oldPassword string) (out model.ResetOutcome) {
	defer func() {
		if p := recover(); p != nil {
			out = model.ResetOutcome{Outcome: r.c.panicked("password reset", p)}
		}
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != ResetOTPVerified {
		return model.ResetOutcome{Outcome: model.Failed(model.KindInvalidState, "Verify the reset code first.")}
	}
	if len(newPassword) < MinPasswordLength {
		return model.ResetOutcome{Outcome: model.Failed(model.KindWeakPassword, msgShortPassword)}
	}

	out = r.c.SyncAndUpdatePassword(ctx, r.email, newPassword, oldPassword)
	if !out.Success {
		return out
	}

	if err := r.c.otp.Consume(ctx, r.email); err != nil {
		r.c.logger.Warn("Coordinator: failed to consume reset code", "email", r.email, "error", err.Error())
	}
	r.state = ResetCompleted
	return out
}
