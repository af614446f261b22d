package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-ezviz/internal/status"
)

// SnapshotSource provides the latest device snapshot.
type SnapshotSource interface {
	Serial() string
	Snapshot() (status.Snapshot, bool)
}

var (
	deviceUpDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "device", "up"),
		"1 when the cloud reports the device online.",
		[]string{"serial"}, nil,
	)
	wifiSignalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "device", "wifi_signal_percent"),
		"Wi-Fi signal strength reported by the device.",
		[]string{"serial"}, nil,
	)
	triggerAgeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "device", "seconds_since_last_trigger"),
		"Seconds since the device last raised an alarm.",
		[]string{"serial"}, nil,
	)
	snapshotAgeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "snapshot", "age_seconds"),
		"Age of the latest successful status snapshot.",
		[]string{"serial"}, nil,
	)
)

// SnapshotCollector turns the latest snapshot into gauges at scrape time.
type SnapshotCollector struct {
	source SnapshotSource
	now    func() time.Time
}

// NewSnapshotCollector creates a collector reading from source.
func NewSnapshotCollector(source SnapshotSource) *SnapshotCollector {
	return &SnapshotCollector{source: source, now: time.Now}
}

// Describe implements prometheus.Collector.
func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- deviceUpDesc
	ch <- wifiSignalDesc
	ch <- triggerAgeDesc
	ch <- snapshotAgeDesc
}

// Collect implements prometheus.Collector. Nothing is emitted before the
// first successful poll.
func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snap, ok := c.source.Snapshot()
	if !ok {
		return
	}
	serial := c.source.Serial()

	up := 0.0
	if status.OnlineState(snap.Get(status.FieldStatus)) == "online" {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(deviceUpDesc, prometheus.GaugeValue, up, serial)

	if v, ok := status.Number(snap.Get(status.FieldSignal)).(float64); ok {
		ch <- prometheus.MustNewConstMetric(wifiSignalDesc, prometheus.GaugeValue, v, serial)
	}
	if v, ok := status.Number(snap.Get(status.FieldSecondsLastTrigger)).(float64); ok {
		ch <- prometheus.MustNewConstMetric(triggerAgeDesc, prometheus.GaugeValue, v, serial)
	}

	age := c.now().Sub(snap.FetchedAt()).Seconds()
	ch <- prometheus.MustNewConstMetric(snapshotAgeDesc, prometheus.GaugeValue, age, serial)
}
