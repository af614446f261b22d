package ezviz

import (
	"maps"
	"slices"
	"strings"
)

// DefaultRegion is used when no region, or an unknown one, is configured.
const DefaultRegion = "eu"

// regionHosts maps region codes to the API host used for the first login.
// The cloud may redirect the account to a different host afterwards.
var regionHosts = map[string]string{
	"eu": "apiieu.ezvizlife.com",
	"us": "apiisa.ezvizlife.com",
	"sa": "apiisa.ezvizlife.com",
	"cn": "apiicn.ezvizlife.com",
	"as": "apiias.ezvizlife.com",
	"ru": "apirus.ezvizru.com",
}

// RegionHost returns the API host for region. Unknown regions fall back
// to the EU host.
func RegionHost(region string) string {
	if host, ok := regionHosts[strings.ToLower(strings.TrimSpace(region))]; ok {
		return host
	}
	return regionHosts[DefaultRegion]
}

// KnownRegion reports whether region has a dedicated API host.
func KnownRegion(region string) bool {
	_, ok := regionHosts[strings.ToLower(strings.TrimSpace(region))]
	return ok
}

// Regions returns the region codes with a dedicated API host, sorted.
func Regions() []string {
	return slices.Sorted(maps.Keys(regionHosts))
}
