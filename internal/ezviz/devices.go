package ezviz

import (
	"context"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const (
	pathPageList = "/v3/userdevices/v1/resources/pagelist"

	pageListLimit    = 30
	pageListMaxPages = 20

	// pageListFilter selects the resource sections returned with each device.
	pageListFilter = "CONNECTION,STATUS,WIFI,UPGRADE,SWITCH,FEATURE_INFO"
)

// DeviceInfo describes one device bound to the account.
type DeviceInfo struct {
	Serial      string `json:"deviceSerial"`
	FullSerial  string `json:"fullSerial"`
	DeviceID    string `json:"deviceId"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	DeviceName  string `json:"deviceName"`
	Version     string `json:"version"`
	Status      int    `json:"status"`
	Category    string `json:"deviceCategory"`
	SubCategory string `json:"deviceSubCategory"`
	Type        string `json:"deviceType"`
}

// resourceSection maps a device serial to its values for one filter section.
type resourceSection map[string]map[string]any

type pageListResponse struct {
	apiMeta `json:"meta"`

	Page struct {
		HasNext bool `json:"hasNext"`
	} `json:"page"`
	DeviceInfos []DeviceInfo    `json:"deviceInfos"`
	Status      resourceSection `json:"STATUS"`
	Connection  resourceSection `json:"CONNECTION"`
	WiFi        resourceSection `json:"WIFI"`
	Upgrade     resourceSection `json:"UPGRADE"`
}

// deviceResources is one device's entry merged across every page.
type deviceResources struct {
	info       DeviceInfo
	status     map[string]any
	connection map[string]any
	wifi       map[string]any
	upgrade    map[string]any
}

// DeviceInfos lists every device bound to the account, keyed by serial.
func (c *Client) DeviceInfos(ctx context.Context) (map[string]DeviceInfo, error) {
	devices, err := c.pageList(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]DeviceInfo, len(devices))
	for serial, d := range devices {
		out[serial] = d.info
	}
	return out, nil
}

// pageList walks the paginated device list.
func (c *Client) pageList(ctx context.Context) (map[string]*deviceResources, error) {
	devices := make(map[string]*deviceResources)

	for page := range pageListMaxPages {
		offset := page * pageListLimit
		result := &pageListResponse{}
		err := c.call(ctx, resty.MethodGet, pathPageList, func(r *resty.Request) {
			r.SetQueryParams(map[string]string{
				"groupId": "-1",
				"limit":   strconv.Itoa(pageListLimit),
				"offset":  strconv.Itoa(offset),
				"filter":  pageListFilter,
			})
		}, result)
		if err != nil {
			return nil, err
		}

		for _, info := range result.DeviceInfos {
			if info.Serial == "" {
				continue
			}
			devices[info.Serial] = &deviceResources{
				info:       info,
				status:     result.Status[info.Serial],
				connection: result.Connection[info.Serial],
				wifi:       result.WiFi[info.Serial],
				upgrade:    result.Upgrade[info.Serial],
			}
		}

		if !result.Page.HasNext || len(result.DeviceInfos) == 0 {
			break
		}
	}

	return devices, nil
}
