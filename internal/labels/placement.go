package labels

// Placement describes where and how overlay text is drawn on a label.
// X and Y are fractions of page width/height measured from the top-left;
// MaxWidth is the maximum text width as a fraction of page width.
type Placement struct {
	X        float64
	Y        float64
	FontSize int
	MaxWidth float64
	MaxLines int
}

type placementKey struct {
	carrier Carrier
	country string
}

// PostNL: middle-right area, clear of barcode and address block.
// DPD: left side, in the white space below the Ref1 row; Belgian DPD labels
// print the routing barcode higher, so the slot moves up.
var placements = map[placementKey]Placement{
	{CarrierPostNL, ""}:  {X: 0.55, Y: 0.45, FontSize: 10, MaxWidth: 0.40, MaxLines: 2},
	{CarrierDPD, ""}:     {X: 0.02, Y: 0.58, FontSize: 8, MaxWidth: 0.40, MaxLines: 2},
	{CarrierDPD, "BE"}:   {X: 0.02, Y: 0.50, FontSize: 8, MaxWidth: 0.40, MaxLines: 2},
	{CarrierUnknown, ""}: {X: 0.55, Y: 0.45, FontSize: 10, MaxWidth: 0.40, MaxLines: 2},
}

// PlacementFor returns the overlay placement for a carrier and destination
// country. Unknown carriers get the baseline placement.
func PlacementFor(carrier Carrier, country string) Placement {
	if p, ok := placements[placementKey{carrier, country}]; ok {
		return p
	}
	if p, ok := placements[placementKey{carrier, ""}]; ok {
		return p
	}
	return placements[placementKey{CarrierUnknown, ""}]
}
