// Package labels edits carrier shipping label documents: it overlays text at
// carrier-specific positions and merges labels into one combined document.
package labels

import "strings"

// Carrier identifies the carrier a label was issued by.
type Carrier string

const (
	CarrierPostNL  Carrier = "postnl"
	CarrierDPD     Carrier = "dpd"
	CarrierUnknown Carrier = "unknown"
)

// CarrierHints are the shipment fields carrier detection draws from,
// in priority order.
type CarrierHints struct {
	CarrierKey   string // carrier_key on the shipment
	ProfileName  string // shipping provider profile name
	ProviderName string // provider display name
	Provider     string // generic provider string
}

// DetectCarrier resolves the carrier from shipment metadata. Hints are
// checked in priority order and the first recognized carrier wins.
func DetectCarrier(hints CarrierHints) Carrier {
	for _, hint := range []string{hints.CarrierKey, hints.ProfileName, hints.ProviderName, hints.Provider} {
		if c := matchCarrier(hint); c != CarrierUnknown {
			return c
		}
	}
	return CarrierUnknown
}

func matchCarrier(s string) Carrier {
	if s == "" {
		return CarrierUnknown
	}
	normalized := strings.ToLower(s)

	if strings.Contains(normalized, "dpd") {
		return CarrierDPD
	}
	if strings.Contains(normalized, "postnl") || strings.Contains(normalized, "post nl") {
		return CarrierPostNL
	}
	return CarrierUnknown
}
