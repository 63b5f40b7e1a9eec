package model

// ErrorKind classifies a failed operation.
type ErrorKind string

// Remote taxonomy, assigned only by the identity client.
const (
	KindNone               ErrorKind = ""
	KindNetwork            ErrorKind = "network_error"
	KindEmailExists        ErrorKind = "email_exists"
	KindWeakPassword       ErrorKind = "weak_password"
	KindEmailNotFound      ErrorKind = "email_not_found"
	KindBadPassword        ErrorKind = "bad_password"
	KindInvalidEmailFormat ErrorKind = "invalid_email_format"
	KindAccountDisabled    ErrorKind = "account_disabled"
	KindRateLimited        ErrorKind = "rate_limited"
	KindNotConfigured      ErrorKind = "not_configured"
	KindUnknown            ErrorKind = "unknown"
)

// Local path failures.
const (
	KindLocalNotFound    ErrorKind = "local_not_found"
	KindLocalBadPassword ErrorKind = "local_bad_password"
	KindUsernameTaken    ErrorKind = "username_taken"
	KindOTPRejected      ErrorKind = "otp_rejected"
	KindInvalidState     ErrorKind = "invalid_state"
	KindLocalStorage     ErrorKind = "local_storage"
)

// Outcome is the uniform result of every coordinator operation.
type Outcome struct {
	Success bool
	Account *LocalAccount
	Session *SessionRecord
	Message string
	Kind    ErrorKind
	// Code holds the raw provider code when Kind is KindUnknown.
	Code string
}

// ResetOutcome is the result of a password reconciliation.
type ResetOutcome struct {
	Outcome
	RemoteSynced bool
}

// Succeeded builds a successful outcome.
func Succeeded(message string) Outcome {
	return Outcome{Success: true, Message: message}
}

// Failed builds a failed outcome of the given kind.
func Failed(kind ErrorKind, message string) Outcome {
	return Outcome{Kind: kind, Message: message}
}
