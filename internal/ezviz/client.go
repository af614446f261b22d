package ezviz

import (
	"context"
	"crypto/md5" // #nosec G501 -- the cloud login API requires an MD5 password digest
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultImageTimeout = 15 * time.Second
	defaultUserAgent    = "EZVIZ/5.0"

	// maxLoginRedirects bounds how often the cloud may move the account to
	// another region host during one login.
	maxLoginRedirects = 3

	headerSessionID   = "sessionId"
	jsonContentType   = "application/json"
	headerFeatureCode = "featureCode"

	pathLogin  = "/v3/users/login/v5"
	pathLogout = "/v3/users/logout/v2"
)

// Result codes carried in the meta block of every cloud response.
const (
	codeOK             = 200
	codeSessionExpired = 401
	codeRegionRedirect = 1100
)

// authFailureCodes are login result codes that mean the credentials, not
// the transport, are the problem.
var authFailureCodes = map[int]string{
	1012: "invalid verification code",
	1013: "incorrect username",
	1014: "incorrect password",
	1015: "captcha required",
	1226: "account locked",
	6002: "multi-factor authentication required",
}

// Logger is the logging interface used by the client.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Client.
type Options struct {
	// Username and Password are the EZVIZ account credentials. They may be
	// empty when Token is set, in which case an expired session cannot be
	// renewed.
	Username string
	Password string

	// Region selects the initial API host (eu, us, cn, as, sa, ru).
	Region string

	// Token is a previously issued session to reuse instead of logging in.
	Token *Token

	// UserAgent is sent on every request. Defaults to "EZVIZ/5.0".
	UserAgent string

	// Timeout bounds API calls; ImageTimeout bounds image downloads.
	Timeout      time.Duration
	ImageTimeout time.Duration

	// Location is the timezone the device reports alarm times in.
	Location *time.Location

	// BaseURL replaces "https://<host>" for every API call. Used by tests
	// and for routing through a proxy.
	BaseURL string

	// Now overrides the clock used for trigger ages.
	Now func() time.Time
}

// Client talks to the EZVIZ cloud on behalf of one account.
type Client struct {
	http        *resty.Client
	opts        Options
	featureCode string

	mu      sync.RWMutex
	token   *Token
	onLogin func(*Token)

	logger Logger
}

// New creates a client. It does not contact the cloud; call Login unless
// opts.Token already holds a session.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ImageTimeout <= 0 {
		opts.ImageTimeout = defaultImageTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	featureCode := strings.ReplaceAll(uuid.NewString(), "-", "")

	r := resty.New()
	r.SetTimeout(opts.Timeout)
	r.SetHeader("User-Agent", opts.UserAgent)
	r.SetHeader("Accept", "application/json")
	r.SetHeaders(map[string]string{
		"clientType":      "3",
		"customNo":        "1000001",
		"lang":            "en",
		headerFeatureCode: featureCode,
	})

	return &Client{
		http:        r,
		opts:        opts,
		featureCode: featureCode,
		token:       opts.Token.clone(),
		logger:      noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Token returns a copy of the current session, or nil before login.
func (c *Client) Token() *Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.clone()
}

// SetToken replaces the session, for example with one restored from a
// token store. A nil token clears the session.
func (c *Client) SetToken(t *Token) {
	c.setToken(t.clone())
}

// OnLogin registers a callback invoked with a copy of every new session,
// including sessions renewed after expiry.
func (c *Client) OnLogin(fn func(*Token)) {
	c.mu.Lock()
	c.onLogin = fn
	c.mu.Unlock()
}

func (c *Client) setToken(t *Token) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

// canLogin reports whether the client holds credentials to renew a session.
func (c *Client) canLogin() bool {
	return c.opts.Username != "" && c.opts.Password != ""
}

type apiMeta struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (m apiMeta) meta() apiMeta { return m }

type envelope interface {
	meta() apiMeta
}

type loginResponse struct {
	apiMeta `json:"meta"`

	LoginSession struct {
		SessionID   string `json:"sessionId"`
		RFSessionID string `json:"rfSessionId"`
	} `json:"loginSession"`
	LoginUser struct {
		Username string `json:"username"`
	} `json:"loginUser"`
	LoginArea struct {
		APIDomain string `json:"apiDomain"`
	} `json:"loginArea"`
}

// Login authenticates the account and stores the issued session.
//
// The cloud may answer with a redirect to the account's home region; the
// client follows it and records the final host in Token.APIURL.
//
// Parameters:
//   - ctx: Cancels the login requests
//
// Returns:
//   - *Token: Copy of the new session
//   - error: ErrAuthentication for rejected credentials, ErrRequestFailed otherwise
func (c *Client) Login(ctx context.Context) (*Token, error) {
	if !c.canLogin() {
		return nil, fmt.Errorf("%w: username and password are required", ErrAuthentication)
	}

	digest := md5.Sum([]byte(c.opts.Password)) // #nosec G401 -- protocol requirement
	form := map[string]string{
		"account":     c.opts.Username,
		"password":    hex.EncodeToString(digest[:]),
		"featureCode": c.featureCode,
		"msgType":     "0",
		"bizType":     "",
		"cuName":      "SGFzc2lv",
		"smsCode":     "",
	}

	host := RegionHost(c.opts.Region)
	for range maxLoginRedirects {
		result := &loginResponse{}
		resp, err := c.http.R().
			SetContext(ctx).
			SetFormData(form).
			ForceContentType(jsonContentType).
			SetResult(result).
			Post(c.endpoint(host, pathLogin))
		if err != nil {
			return nil, fmt.Errorf("%w: login: %v", ErrRequestFailed, err)
		}
		if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
			return nil, fmt.Errorf("%w: login: http %d", ErrAuthentication, resp.StatusCode())
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: login: http %d", ErrRequestFailed, resp.StatusCode())
		}

		switch code := result.Code; {
		case code == codeOK:
			if result.LoginSession.SessionID == "" {
				return nil, fmt.Errorf("%w: login succeeded without a session id", ErrRequestFailed)
			}
			apiHost := result.LoginArea.APIDomain
			if apiHost == "" {
				apiHost = host
			}
			username := result.LoginUser.Username
			if username == "" {
				username = c.opts.Username
			}
			tok := &Token{
				SessionID:        result.LoginSession.SessionID,
				RefreshSessionID: result.LoginSession.RFSessionID,
				Username:         username,
				APIURL:           apiHost,
			}
			c.setToken(tok)
			c.logger.Debug("ezviz login succeeded", "api_url", apiHost)

			c.mu.RLock()
			onLogin := c.onLogin
			c.mu.RUnlock()
			if onLogin != nil {
				onLogin(tok.clone())
			}
			return tok.clone(), nil

		case code == codeRegionRedirect:
			if result.LoginArea.APIDomain == "" || result.LoginArea.APIDomain == host {
				return nil, fmt.Errorf("%w: login: region redirect without a new host", ErrRequestFailed)
			}
			c.logger.Debug("ezviz login redirected", "from", host, "to", result.LoginArea.APIDomain)
			host = result.LoginArea.APIDomain

		default:
			if reason, ok := authFailureCodes[code]; ok {
				return nil, fmt.Errorf("%w: %s", ErrAuthentication, reason)
			}
			return nil, fmt.Errorf("%w: login: code %d: %s", ErrRequestFailed, code, result.Message)
		}
	}

	return nil, fmt.Errorf("%w: login: too many region redirects", ErrRequestFailed)
}

// Logout ends the current session. The local token is dropped even when
// the cloud call fails. Logging out without a session is a no-op.
func (c *Client) Logout(ctx context.Context) error {
	tok := c.Token()
	if !tok.Valid() {
		return nil
	}
	c.setToken(nil)

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(headerSessionID, tok.SessionID).
		Delete(c.endpoint(tok.APIURL, pathLogout))
	if err != nil {
		return fmt.Errorf("%w: logout: %v", ErrRequestFailed, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: logout: http %d", ErrRequestFailed, resp.StatusCode())
	}
	return nil
}

// call performs an authenticated API request and decodes the response
// into out. An expired session is renewed once when credentials are
// available.
func (c *Client) call(ctx context.Context, method, path string, prepare func(*resty.Request), out envelope) error {
	renewed := false
	for {
		tok := c.Token()
		if !tok.Valid() {
			return ErrNotLoggedIn
		}

		req := c.http.R().
			SetContext(ctx).
			SetHeader(headerSessionID, tok.SessionID).
			ForceContentType(jsonContentType).
			SetResult(out)
		if prepare != nil {
			prepare(req)
		}

		resp, err := req.Execute(method, c.endpoint(tok.APIURL, path))
		if err != nil {
			return fmt.Errorf("%w: %s %s: %v", ErrRequestFailed, method, path, err)
		}

		expired := resp.StatusCode() == http.StatusUnauthorized ||
			(!resp.IsError() && out.meta().Code == codeSessionExpired)
		if expired {
			if renewed || !c.canLogin() {
				return fmt.Errorf("%w: session expired", ErrAuthentication)
			}
			c.logger.Warn("ezviz session expired, logging in again")
			if _, err := c.Login(ctx); err != nil {
				return err
			}
			renewed = true
			continue
		}

		if resp.StatusCode() == http.StatusNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		if resp.IsError() {
			return fmt.Errorf("%w: %s %s: http %d", ErrRequestFailed, method, path, resp.StatusCode())
		}
		if m := out.meta(); m.Code != codeOK {
			return fmt.Errorf("%w: %s: code %d: %s", ErrRequestFailed, path, m.Code, m.Message)
		}
		return nil
	}
}

// endpoint builds the absolute URL for path on host.
func (c *Client) endpoint(host, path string) string {
	if c.opts.BaseURL != "" {
		return c.opts.BaseURL + path
	}
	if host == "" {
		host = RegionHost(c.opts.Region)
	}
	return "https://" + host + path
}
