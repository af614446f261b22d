package integration

import "fmt"

// Device metadata reported for every HP7.
const (
	Manufacturer = "EZVIZ"
	Model        = "HP7"
)

// Identity identifies the configured device. It does not change while the
// integration is set up.
type Identity struct {
	Serial string `json:"serial"`

	// Name is the display name reported by the cloud.
	Name string `json:"name"`
}

// Title is the device title shown to users, e.g. "EZVIZ HP7 (Q12345678)".
func (id Identity) Title() string {
	return fmt.Sprintf("%s %s (%s)", Manufacturer, Model, id.Serial)
}

// DeviceInfo describes the device for outer surfaces.
type DeviceInfo struct {
	Serial       string `json:"serial"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// Info returns the device description.
func (id Identity) Info() DeviceInfo {
	return DeviceInfo{
		Serial:       id.Serial,
		Name:         id.Name,
		Title:        id.Title(),
		Manufacturer: Manufacturer,
		Model:        Model,
	}
}
