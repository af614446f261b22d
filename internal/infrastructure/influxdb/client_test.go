package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	writes []string
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasSuffix(r.URL.Path, "/ping"):
		w.WriteHeader(http.StatusNoContent)
	case strings.HasSuffix(r.URL.Path, "/api/v2/write"):
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.writes = append(f.writes, string(body))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(f.writes, "\n")
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "test-token",
		Org:           "graylogic",
		Bucket:        "ezviz",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(context.Background(), config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := influxdb.Connect(ctx, testConfig(srv.URL))
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteObservation(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	at := time.Unix(1700000000, 0)
	if !client.WriteObservation("Q123", "signal", 72.0, at) {
		t.Error("WriteObservation(float) = false")
	}
	if !client.WriteObservation("Q123", "motion", true, at) {
		t.Error("WriteObservation(bool) = false")
	}
	if client.WriteObservation("Q123", "name", "Front door", at) {
		t.Error("WriteObservation(string) = true, want skipped")
	}
	client.WriteAlarm("Q123", "doorbell_ringing", "Your doorbell is ringing", at)
	client.WriteUnlock("Q123", "unlock_door", true, at)
	client.WritePoll("Q123", true, 150*time.Millisecond, at)
	client.Flush()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(fake.body(), "ezviz_poll") {
		time.Sleep(20 * time.Millisecond)
	}

	body := fake.body()
	for _, want := range []string{
		"ezviz_observation,key=signal,serial=Q123 value=72",
		"ezviz_observation,key=motion,serial=Q123 value=true",
		"ezviz_alarm,category=doorbell_ringing,serial=Q123",
		"ezviz_unlock,action=unlock_door,serial=Q123",
		"ezviz_poll,serial=Q123",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("written data missing %q\n%s", want, body)
		}
	}
}

func TestClosedClientIgnoresWrites(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if client.WriteObservation("Q123", "signal", 50.0, time.Now()) {
		t.Error("WriteObservation() after Close = true")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
	client.Flush()
}

func TestWriteErrorsReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/ping") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"invalid","message":"bad point"}`))
	}))
	defer srv.Close()

	client, err := influxdb.Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	reported := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case reported <- err:
		default:
		}
	})

	client.WriteUnlock("Q123", "unlock_gate", false, time.Now())
	client.Flush()

	select {
	case err := <-reported:
		if err == nil {
			t.Error("reported nil error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("write error was not reported")
	}
	if client.WriteErrors() == 0 {
		t.Error("WriteErrors() = 0, want the failed batch counted")
	}
}
