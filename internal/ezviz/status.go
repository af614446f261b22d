package ezviz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	pathAlarms = "/v3/alarms/v2/advanced"

	// motionWindow is how recent the last alarm must be for Motion_Trigger.
	motionWindow = 60 * time.Second

	// upgradeAvailable is the UPGRADE.isNeedUpgrade value for a pending update.
	upgradeAvailable = 3

	alarmTimeLayout = "2006-01-02 15:04:05"
)

// Alarm is the most recent alarm recorded for a device.
type Alarm struct {
	StartTime  string `json:"alarmStartTimeStr"`
	PictureURL string `json:"picUrl"`
	SampleName string `json:"sampleName"`
	Type       int    `json:"alarmType"`
}

type alarmsResponse struct {
	apiMeta `json:"meta"`

	Alarms []Alarm `json:"alarms"`
}

// Status returns the raw status of one device as a flat map.
//
// Keys follow the vendor naming: name, version, status, upgrade_available,
// wan_ip, local_ip, PIR_Status, Motion_Trigger, Seconds_Last_Trigger,
// last_alarm_time, last_alarm_pic, last_alarm_type_name and a nested WIFI
// map (ssid, signal, address). Keys the cloud did not report are omitted.
//
// Parameters:
//   - ctx: Cancels the underlying requests
//   - serial: Device serial as bound to the account
//
// Returns:
//   - map[string]any: Raw status
//   - error: ErrNotFound if the serial is not on the account, or a request error
func (c *Client) Status(ctx context.Context, serial string) (map[string]any, error) {
	devices, err := c.pageList(ctx)
	if err != nil {
		return nil, err
	}
	device, ok := devices[serial]
	if !ok {
		return nil, fmt.Errorf("%w: device %s", ErrNotFound, serial)
	}

	alarm, err := c.LastAlarm(ctx, serial)
	if err != nil {
		return nil, err
	}

	return buildStatus(device, alarm, c.opts.Now(), c.opts.Location), nil
}

// LastAlarm returns the newest alarm of serial, or nil when there is none.
func (c *Client) LastAlarm(ctx context.Context, serial string) (*Alarm, error) {
	result := &alarmsResponse{}
	err := c.call(ctx, resty.MethodGet, pathAlarms, func(r *resty.Request) {
		r.SetQueryParams(map[string]string{
			"deviceSerials": serial,
			"queryType":     "-1",
			"limit":         "1",
			"stype":         "-1",
		})
	}, result)
	if err != nil {
		return nil, err
	}
	if len(result.Alarms) == 0 {
		return nil, nil
	}
	alarm := result.Alarms[0]
	return &alarm, nil
}

// buildStatus flattens the device resources and its last alarm.
func buildStatus(d *deviceResources, alarm *Alarm, now time.Time, loc *time.Location) map[string]any {
	raw := map[string]any{
		"name":           d.info.Name,
		"version":        d.info.Version,
		"status":         d.info.Status,
		"Motion_Trigger": false,
	}

	if v, ok := d.upgrade["isNeedUpgrade"]; ok {
		raw["upgrade_available"] = toFloat(v) == upgradeAvailable
	}
	if v, ok := d.connection["netIp"]; ok {
		raw["wan_ip"] = v
	}
	if v, ok := d.connection["localIp"]; ok {
		raw["local_ip"] = v
	}
	if v, ok := d.status["pirStatus"]; ok {
		raw["PIR_Status"] = v
	}
	if d.wifi != nil {
		raw["WIFI"] = map[string]any{
			"ssid":    d.wifi["ssid"],
			"signal":  d.wifi["signal"],
			"address": d.wifi["address"],
		}
	}

	if alarm == nil {
		return raw
	}

	raw["last_alarm_time"] = alarm.StartTime
	raw["last_alarm_pic"] = alarm.PictureURL
	raw["last_alarm_type_name"] = alarm.SampleName

	if started, err := time.ParseInLocation(alarmTimeLayout, alarm.StartTime, loc); err == nil {
		age := max(now.Sub(started), 0)
		raw["Seconds_Last_Trigger"] = float64(int64(age / time.Second))
		raw["Motion_Trigger"] = age < motionWindow
	}

	return raw
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	}
	return 0
}
