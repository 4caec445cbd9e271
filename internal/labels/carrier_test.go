package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCarrier(t *testing.T) {
	tests := []struct {
		name  string
		hints CarrierHints
		want  Carrier
	}{
		{
			name:  "carrier key wins",
			hints: CarrierHints{CarrierKey: "dpd", ProviderName: "PostNL"},
			want:  CarrierDPD,
		},
		{
			name:  "profile name checked second",
			hints: CarrierHints{ProfileName: "PostNL Pakket", Provider: "dpd"},
			want:  CarrierPostNL,
		},
		{
			name:  "provider display name",
			hints: CarrierHints{ProviderName: "DPD Nederland"},
			want:  CarrierDPD,
		},
		{
			name:  "generic provider string",
			hints: CarrierHints{Provider: "postnl"},
			want:  CarrierPostNL,
		},
		{
			name:  "post nl with space",
			hints: CarrierHints{ProviderName: "Post NL Briefpost"},
			want:  CarrierPostNL,
		},
		{
			name:  "case insensitive",
			hints: CarrierHints{CarrierKey: "DPD"},
			want:  CarrierDPD,
		},
		{
			name:  "unrecognized falls through",
			hints: CarrierHints{CarrierKey: "gls", ProviderName: "GLS"},
			want:  CarrierUnknown,
		},
		{
			name:  "empty hints",
			hints: CarrierHints{},
			want:  CarrierUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCarrier(tt.hints))
		})
	}
}

func TestPlacementFor(t *testing.T) {
	postnl := PlacementFor(CarrierPostNL, "NL")
	assert.Equal(t, 0.55, postnl.X)
	assert.Equal(t, 10, postnl.FontSize)

	dpd := PlacementFor(CarrierDPD, "NL")
	assert.Equal(t, 0.58, dpd.Y)

	dpdBE := PlacementFor(CarrierDPD, "BE")
	assert.Equal(t, 0.50, dpdBE.Y, "Belgian DPD labels use the higher slot")

	unknown := PlacementFor(CarrierUnknown, "DE")
	assert.Equal(t, PlacementFor(CarrierPostNL, ""), unknown, "unknown carrier uses the baseline position")
}
