package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nerrad567/gray-logic-ezviz/internal/ezviz"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-ezviz/migrations"
)

// mockClient implements Client without a network.
type mockClient struct {
	token    *ezviz.Token
	loginTok *ezviz.Token
	loginErr error
	logins   int
	logouts  int
	infos    map[string]ezviz.DeviceInfo
	infosErr error
	onLogin  func(*ezviz.Token)
}

func (m *mockClient) Login(context.Context) (*ezviz.Token, error) {
	m.logins++
	if m.loginErr != nil {
		return nil, m.loginErr
	}
	m.token = m.loginTok
	if m.onLogin != nil {
		m.onLogin(m.loginTok)
	}
	return m.loginTok, nil
}

func (m *mockClient) Logout(context.Context) error {
	m.logouts++
	m.token = nil
	return nil
}

func (m *mockClient) Token() *ezviz.Token           { return m.token }
func (m *mockClient) SetToken(t *ezviz.Token)       { m.token = t }
func (m *mockClient) OnLogin(fn func(*ezviz.Token)) { m.onLogin = fn }

func (m *mockClient) DeviceInfos(context.Context) (map[string]ezviz.DeviceInfo, error) {
	return m.infos, m.infosErr
}

func openTestStore(t *testing.T) *SQLiteTokenStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteTokenStore(db.DB)
}

func TestOpen_UsesConfiguredToken(t *testing.T) {
	c := &mockClient{token: &ezviz.Token{SessionID: "configured"}}
	if _, err := Open(context.Background(), c, Options{Account: "user"}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.logins != 0 {
		t.Errorf("logins = %d, want 0", c.logins)
	}
}

func TestOpen_LogsInAndPersists(t *testing.T) {
	store := openTestStore(t)
	c := &mockClient{loginTok: &ezviz.Token{SessionID: "fresh", Username: "cloud-user", APIURL: "apiieu.ezvizlife.com"}}

	s, err := Open(context.Background(), c, Options{Account: "user", Region: "eu", Store: store})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.logins != 1 {
		t.Errorf("logins = %d, want 1", c.logins)
	}
	if s.Token().SessionID != "fresh" {
		t.Errorf("Token() = %+v", s.Token())
	}

	stored, err := store.Load(context.Background(), "user", "eu")
	if err != nil || stored == nil || stored.SessionID != "fresh" || stored.APIURL != "apiieu.ezvizlife.com" {
		t.Errorf("stored = %+v, %v", stored, err)
	}
}

func TestOpen_RestoresStoredToken(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, "user", "eu", &ezviz.Token{SessionID: "stored", Username: "u"}); err != nil {
		t.Fatal(err)
	}

	c := &mockClient{}
	if _, err := Open(ctx, c, Options{Account: "user", Region: "eu", Store: store}); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if c.logins != 0 || c.token.SessionID != "stored" {
		t.Errorf("logins = %d, token = %+v", c.logins, c.token)
	}
}

func TestOpen_AuthenticationFailure(t *testing.T) {
	c := &mockClient{loginErr: fmt.Errorf("%w: incorrect password", ezviz.ErrAuthentication)}
	_, err := Open(context.Background(), c, Options{Account: "user"})
	if !errors.Is(err, ezviz.ErrAuthentication) {
		t.Errorf("Open() error = %v, want ErrAuthentication", err)
	}
}

func TestSession_UserID(t *testing.T) {
	c := &mockClient{token: &ezviz.Token{SessionID: "s", Username: "cloud-user"}}
	s, _ := Open(context.Background(), c, Options{Account: "account@example.com"})
	if s.UserID() != "cloud-user" {
		t.Errorf("UserID() = %q, want token username", s.UserID())
	}

	c.token = &ezviz.Token{SessionID: "s"}
	if s.UserID() != "account@example.com" {
		t.Errorf("UserID() = %q, want account fallback", s.UserID())
	}
}

func TestSession_DetectCapabilitiesAlwaysTrue(t *testing.T) {
	for _, infosErr := range []error{nil, errors.New("cloud down")} {
		c := &mockClient{token: &ezviz.Token{SessionID: "s"}, infosErr: infosErr}
		s, _ := Open(context.Background(), c, Options{})
		caps := s.DetectCapabilities(context.Background(), "BE1234567")
		if !caps.Door || !caps.Gate {
			t.Errorf("DetectCapabilities() = %+v with probe error %v", caps, infosErr)
		}
	}
}

func TestSession_DisplayName(t *testing.T) {
	c := &mockClient{
		token: &ezviz.Token{SessionID: "s"},
		infos: map[string]ezviz.DeviceInfo{
			"A": {Serial: "A", Name: " Front Door "},
			"B": {Serial: "B", DeviceName: "HP7"},
			"C": {Serial: "C"},
		},
	}
	s, _ := Open(context.Background(), c, Options{})

	tests := map[string]string{"A": "Front Door", "B": "HP7", "C": "Device", "missing": "Device"}
	for serial, want := range tests {
		if got := s.DisplayName(context.Background(), serial); got != want {
			t.Errorf("DisplayName(%s) = %q, want %q", serial, got, want)
		}
	}

	c.infosErr = errors.New("timeout")
	if got := s.DisplayName(context.Background(), "A"); got != "Device" {
		t.Errorf("DisplayName() on error = %q, want Device", got)
	}
}

func TestSession_ListDevices(t *testing.T) {
	c := &mockClient{
		token: &ezviz.Token{SessionID: "s"},
		infos: map[string]ezviz.DeviceInfo{
			"BE1234567":          {Serial: "BE1234567", Name: "Front Door", FullSerial: "HP7-BE1234567-ABCD"},
			"HP7-BE1234567-ABCD": {Serial: "HP7-BE1234567-ABCD", Name: "Front Door (dup)"},
			"CS-C6N-A0-1C2WFR":   {Serial: "CS-C6N-A0-1C2WFR", Name: "Garage", DeviceID: "dev-9"},
			"Q1234":              {Serial: "Q1234", DeviceName: "Chime"},
		},
	}
	s, _ := Open(context.Background(), c, Options{})

	devices, err := s.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("ListDevices() = %+v, want 3 devices", devices)
	}

	byDisplay := make(map[string]Device)
	for _, d := range devices {
		byDisplay[d.DisplaySerial] = d
	}

	door := byDisplay["HP7-BE1234567-ABCD"]
	if door.Serial != "BE1234567" || door.Label != "Front Door (HP7-BE1234567-ABCD)" {
		t.Errorf("door = %+v", door)
	}
	if garage := byDisplay["CS-C6N-A0-1C2WFR"]; garage.UniqueID != "dev-9" {
		t.Errorf("garage = %+v", garage)
	}
	if chime := byDisplay["Q1234"]; chime.Name != "Chime" || chime.UniqueID != "Q1234" {
		t.Errorf("chime = %+v", chime)
	}
}

func TestSession_CloseLogsOutAndForgetsToken(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	c := &mockClient{loginTok: &ezviz.Token{SessionID: "fresh"}}

	s, err := Open(ctx, c, Options{Account: "user", Region: "eu", Store: store})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.logouts != 1 {
		t.Errorf("logouts = %d, want 1", c.logouts)
	}
	if tok, _ := store.Load(ctx, "user", "eu"); tok != nil {
		t.Errorf("stored token after Close = %+v", tok)
	}
}

func TestLooksLikeLongSerial(t *testing.T) {
	tests := map[string]bool{
		"BE1234567":          false,
		"BE1234567890":       true,
		"HP7-BE1234567-ABCD": true,
		"A-1":                true,
		"":                   false,
	}
	for in, want := range tests {
		if got := looksLikeLongSerial(in); got != want {
			t.Errorf("looksLikeLongSerial(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSQLiteTokenStore_RejectsEmptyToken(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(context.Background(), "u", "eu", &ezviz.Token{}); err == nil {
		t.Error("Save() with empty token should fail")
	}
	if tok, err := store.Load(context.Background(), "nobody", "eu"); tok != nil || err != nil {
		t.Errorf("Load() for unknown account = %+v, %v", tok, err)
	}
}
