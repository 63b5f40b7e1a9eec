package identity

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type updateRequest struct {
	IDToken           string `json:"idToken"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
}

type accountResponse struct {
	IDToken      string  `json:"idToken"`
	RefreshToken string  `json:"refreshToken"`
	LocalID      string  `json:"localId"`
	Email        string  `json:"email"`
	ExpiresIn    seconds `json:"expiresIn"`
}

type refreshResponse struct {
	IDToken      string  `json:"id_token"`
	RefreshToken string  `json:"refresh_token"`
	UserID       string  `json:"user_id"`
	ExpiresIn    seconds `json:"expires_in"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// seconds decodes a lifetime sent either as a JSON number or a numeric string.
type seconds time.Duration

func (s *seconds) UnmarshalJSON(b []byte) error {
	raw := bytes.Trim(b, `"`)
	if len(raw) == 0 || string(raw) == "null" {
		*s = 0
		return nil
	}

	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lifetime %q: %w", b, err)
	}

	*s = seconds(time.Duration(n) * time.Second)
	return nil
}
