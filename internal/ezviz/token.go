package ezviz

// Token is the session issued by the cloud on login.
//
// SessionID doubles as the bearer token for image downloads. APIURL is
// the host the account was assigned to, which can differ from the region
// default after a redirect.
type Token struct {
	SessionID        string `json:"session_id" yaml:"session_id"`
	RefreshSessionID string `json:"rf_session_id" yaml:"rf_session_id"`
	Username         string `json:"username" yaml:"username"`
	APIURL           string `json:"api_url" yaml:"api_url"`
}

// Valid reports whether t carries a usable session.
func (t *Token) Valid() bool {
	return t != nil && t.SessionID != ""
}

// AccessToken returns the credential used for authenticated media fetches.
func (t *Token) AccessToken() string {
	if t == nil {
		return ""
	}
	return t.SessionID
}

func (t *Token) clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
