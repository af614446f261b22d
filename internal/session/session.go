package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/command"
	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
)

const (
	defaultDeviceName = "Device"

	// storeTimeout bounds token store writes made from login callbacks.
	storeTimeout = 5 * time.Second

	// longSerialLength is the length from which a serial is treated as a
	// stable long identifier.
	longSerialLength = 12
)

// Client is the part of the cloud client a session needs.
type Client interface {
	Login(ctx context.Context) (*ezviz.Token, error)
	Logout(ctx context.Context) error
	Token() *ezviz.Token
	SetToken(t *ezviz.Token)
	OnLogin(fn func(*ezviz.Token))
	DeviceInfos(ctx context.Context) (map[string]ezviz.DeviceInfo, error)
}

// Logger is the logging interface used by the session.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures Open.
type Options struct {
	// Account is the EZVIZ account username, used as the fallback actor id
	// and as the token store key.
	Account string
	Region  string

	// Store persists sessions; nil disables persistence.
	Store TokenStore

	Logger Logger
}

// Session is an authenticated cloud session for one account.
type Session struct {
	client Client
	opts   Options
}

// Device is one entry of the account's device list.
type Device struct {
	// Serial is the identifier used to poll the device.
	Serial string `json:"serial"`

	// DisplaySerial is the serial shown to users, the long form when the
	// cloud provides one.
	DisplaySerial string `json:"display_serial"`

	Name     string `json:"name"`
	UniqueID string `json:"unique_id"`
	Label    string `json:"label"`
}

// Open establishes the session.
//
// A token already held by the client (from configuration) is used as-is.
// Otherwise a stored token is restored, and only if there is none does
// Open log in. An expired token is renewed transparently by the client on
// first use.
//
// Parameters:
//   - ctx: Cancels the login
//   - client: Cloud client for the account
//   - opts: Session options
//
// Returns:
//   - *Session: Ready session
//   - error: Wrapping ezviz.ErrAuthentication when the credentials are rejected
func Open(ctx context.Context, client Client, opts Options) (*Session, error) {
	if client == nil {
		return nil, errors.New("session: client is required")
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	s := &Session{client: client, opts: opts}

	if opts.Store != nil {
		client.OnLogin(s.persist)
	}

	if client.Token().Valid() {
		opts.Logger.Debug("using configured cloud session")
		return s, nil
	}

	if opts.Store != nil {
		stored, err := opts.Store.Load(ctx, opts.Account, opts.Region)
		if err != nil {
			opts.Logger.Warn("could not load stored cloud session", "error", err)
		} else if stored.Valid() {
			client.SetToken(stored)
			opts.Logger.Debug("restored cloud session from store")
			return s, nil
		}
	}

	if _, err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("session: login: %w", err)
	}
	opts.Logger.Info("logged in to EZVIZ cloud", "region", opts.Region)
	return s, nil
}

// persist writes a new session to the store.
func (s *Session) persist(token *ezviz.Token) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.opts.Store.Save(ctx, s.opts.Account, s.opts.Region, token); err != nil {
		s.opts.Logger.Warn("could not store cloud session", "error", err)
	}
}

// Token returns a copy of the current cloud session.
func (s *Session) Token() *ezviz.Token {
	return s.client.Token()
}

// UserID returns the actor id for commands: the session username, or the
// account username when the session carries none.
func (s *Session) UserID() string {
	if tok := s.client.Token(); tok != nil && tok.Username != "" {
		return tok.Username
	}
	return s.opts.Account
}

// DetectCapabilities probes the device and reports its unlock actions.
//
// The cloud does not expose which locks are wired, so both door and gate
// are always reported. The probe result is only logged.
func (s *Session) DetectCapabilities(ctx context.Context, serial string) command.Capabilities {
	infos, err := s.client.DeviceInfos(ctx)
	if err != nil {
		s.opts.Logger.Debug("capability probe failed", "serial", serial, "error", err)
	} else {
		info, found := infos[serial]
		s.opts.Logger.Debug("capability probe finished",
			"serial", serial,
			"found", found,
			"category", info.Category,
			"sub_category", info.SubCategory,
		)
	}
	return command.Capabilities{Door: true, Gate: true}
}

// DisplayName returns the device name from the cloud, falling back to
// the device model name and then to "Device".
func (s *Session) DisplayName(ctx context.Context, serial string) string {
	infos, err := s.client.DeviceInfos(ctx)
	if err != nil {
		s.opts.Logger.Debug("device name lookup failed", "serial", serial, "error", err)
		return defaultDeviceName
	}
	return deviceName(infos[serial])
}

// ListDevices returns the account's devices for selection, sorted by
// display serial.
//
// The long serial is shown when the cloud provides one. Entries pointing
// at the same physical device (same unique id or display serial) are
// listed once.
func (s *Session) ListDevices(ctx context.Context) ([]Device, error) {
	infos, err := s.client.DeviceInfos(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list devices: %w", err)
	}

	serials := make([]string, 0, len(infos))
	for serial := range infos {
		serials = append(serials, serial)
	}
	slices.Sort(serials)

	var devices []Device
	seenSerial := make(map[string]bool)
	seenUnique := make(map[string]bool)
	for _, serial := range serials {
		info := infos[serial]

		shown := serial
		if !looksLikeLongSerial(serial) && info.FullSerial != "" {
			shown = info.FullSerial
		}
		unique := cmp.Or(info.DeviceID, info.UUID, info.FullSerial, shown)

		if seenSerial[shown] || seenUnique[unique] {
			continue
		}
		seenSerial[shown] = true
		seenUnique[unique] = true

		name := deviceName(info)
		devices = append(devices, Device{
			Serial:        serial,
			DisplaySerial: shown,
			Name:          name,
			UniqueID:      unique,
			Label:         fmt.Sprintf("%s (%s)", name, shown),
		})
	}

	slices.SortFunc(devices, func(a, b Device) int { return strings.Compare(a.DisplaySerial, b.DisplaySerial) })
	return devices, nil
}

// Close logs out of the cloud and forgets the stored session.
func (s *Session) Close(ctx context.Context) error {
	err := s.client.Logout(ctx)
	if s.opts.Store != nil {
		if delErr := s.opts.Store.Delete(ctx, s.opts.Account, s.opts.Region); delErr != nil {
			s.opts.Logger.Warn("could not delete stored cloud session", "error", delErr)
		}
	}
	if err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

func deviceName(info ezviz.DeviceInfo) string {
	name := cmp.Or(strings.TrimSpace(info.Name), strings.TrimSpace(info.DeviceName))
	if name == "" {
		return defaultDeviceName
	}
	return name
}

// looksLikeLongSerial reports whether serial looks like a stable long
// identifier rather than the short printed serial.
func looksLikeLongSerial(serial string) bool {
	return strings.Contains(serial, "-") || len(serial) >= longSerialLength
}
