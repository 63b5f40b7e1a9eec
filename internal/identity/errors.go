package identity

import (
	"fmt"
	"strings"

	"github.com/dtroode/contestauth/internal/model"
)

// Provider error codes.
const (
	codeEmailExists        = "EMAIL_EXISTS"
	codeWeakPassword       = "WEAK_PASSWORD"
	codeEmailNotFound      = "EMAIL_NOT_FOUND"
	codeUserNotFound       = "USER_NOT_FOUND"
	codeInvalidPassword    = "INVALID_PASSWORD"
	codeInvalidCredentials = "INVALID_LOGIN_CREDENTIALS"
	codeInvalidEmail       = "INVALID_EMAIL"
	codeUserDisabled       = "USER_DISABLED"
	codeTooManyAttempts    = "TOO_MANY_ATTEMPTS_TRY_LATER"
	codeOperationDisabled  = "OPERATION_NOT_ALLOWED"
)

const (
	msgNotConfigured = "Remote authentication is not configured."
	msgWeakPassword  = "Password is too weak. Please use at least 6 characters."
)

// classify maps a provider error message onto the closed taxonomy.
// Messages may carry a detail suffix, as in "WEAK_PASSWORD : Password should be at least 6 characters".
func classify(providerMessage string) (model.ErrorKind, string, string) {
	code := strings.TrimSpace(providerMessage)
	if i := strings.Index(code, " : "); i >= 0 {
		code = strings.TrimSpace(code[:i])
	}

	switch code {
	case codeEmailExists:
		return model.KindEmailExists, "This email is already registered. Please sign in or use a different email.", code
	case codeWeakPassword:
		return model.KindWeakPassword, msgWeakPassword, code
	case codeEmailNotFound, codeUserNotFound:
		return model.KindEmailNotFound, "No account found with this email. Please register first.", code
	case codeInvalidPassword:
		return model.KindBadPassword, "Incorrect password. Please try again.", code
	case codeInvalidCredentials:
		return model.KindBadPassword, "Invalid email or password. Please check your credentials.", code
	case codeInvalidEmail:
		return model.KindInvalidEmailFormat, "Invalid email format. Please enter a valid email address.", code
	case codeUserDisabled:
		return model.KindAccountDisabled, "This account has been disabled. Please contact support.", code
	case codeTooManyAttempts:
		return model.KindRateLimited, "Too many failed attempts. Please try again later.", code
	case codeOperationDisabled:
		return model.KindUnknown, "Email/password authentication is not enabled. Please contact admin.", code
	default:
		return model.KindUnknown, fmt.Sprintf("Authentication error: %s", code), code
	}
}

func failure(providerMessage string) model.RemoteResult {
	kind, msg, code := classify(providerMessage)
	return model.RemoteResult{Kind: kind, Message: msg, Code: code}
}

func networkFailure(err error) model.RemoteResult {
	return model.RemoteResult{Kind: model.KindNetwork, Message: fmt.Sprintf("Network error: %v", err)}
}

func notConfigured() model.RemoteResult {
	return model.RemoteResult{Kind: model.KindNotConfigured, Message: msgNotConfigured}
}
