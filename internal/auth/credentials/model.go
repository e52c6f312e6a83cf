package credentials

// Account is a fixture login accepted by the development exchanger.
type Account struct {
	Identifier   string
	PasswordHash string
	HashVersion  string
	UserID       string
	Username     string
	Role         string
}
