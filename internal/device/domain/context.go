package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"sessionguard/internal/geo"
)

// Device describes the client software observed on a request.
type Device struct {
	Browser    string
	OS         string
	DeviceName string
	IsMobile   bool
}

// RequestContext is the resolved device and network context of one inbound request.
type RequestContext struct {
	Device   Device
	IP       string
	Location geo.Location
}

// Fingerprint derives a stable identifier for the browser+os+device+ip combination.
// The same client on the same network always produces the same fingerprint.
func (c RequestContext) Fingerprint() string {
	raw := strings.Join([]string{
		strings.ToLower(c.Device.Browser),
		strings.ToLower(c.Device.OS),
		strings.ToLower(c.Device.DeviceName),
		c.IP,
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
