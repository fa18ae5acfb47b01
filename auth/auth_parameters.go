package auth

// Credential is what a caller supplies to log in. It is sent once and never persisted.
type Credential struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// TwoFactorCode is the current authenticator code, when the account has 2FA enabled.
	TwoFactorCode string `json:"twoFactorCode,omitempty"`

	// TwoFactorRecoveryCode can be used instead of TwoFactorCode.
	TwoFactorRecoveryCode string `json:"twoFactorRecoveryCode,omitempty"`
}

// String never includes the password or codes.
func (c Credential) String() string {
	return "Credential{" + c.Email + "}"
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// State is where the session sits in its lifecycle.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticating
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	}
	return "unknown"
}
