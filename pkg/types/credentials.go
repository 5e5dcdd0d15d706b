package types

// Credentials is what a vault resolves a site label to. Any field may be
// empty; a token-only entry is common for API-driven sites.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Empty reports whether no field is populated.
func (c Credentials) Empty() bool {
	return c.Username == "" && c.Password == "" && c.Token == ""
}
