package auth

// Credentials are what the user typed into the login form. They live only
// for the duration of one login attempt and are never stored.
type Credentials struct {
	Identifier string // phone number
	Secret     string // password
	ContextID  string // optional chat id the user was heading to
}

// Valid reports whether both required fields are present. No format checks
// are applied to the phone number.
func (c Credentials) Valid() bool {
	return c.Identifier != "" && c.Secret != ""
}

// ExternalUser is the user object returned by the external system.
type ExternalUser struct {
	ID       string
	Username string
	Role     string
}

// ExternalIdentity is the result of a successful credential exchange. Its
// AccessToken belongs to the external system and must never become the
// internal session token.
type ExternalIdentity struct {
	Provider    string // exchanger variant that produced it
	Identifier  string // identifier the credentials were exchanged for
	AccessToken string
	User        ExternalUser
}

// Discard zeroes the external access token once the identity has been used.
func (i *ExternalIdentity) Discard() {
	if i != nil {
		i.AccessToken = ""
	}
}

// RegistrationPayload is the body sent to the internal register-or-login
// endpoint.
type RegistrationPayload struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	Password          string `json:"password"`
	InterfaceLanguage string `json:"interface_language"`
}

// Grant holds the internal session credentials issued by the chat backend.
type Grant struct {
	AccessToken  string
	RefreshToken string
}
