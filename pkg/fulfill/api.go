package fulfill

import (
	"context"
)

// APIClient defines the low-level operations against the fulfillment
// platform's REST API. Implementations: HTTPAPIClient (production) and
// MockAPIClient (tests/local development).
type APIClient interface {
	// GetPicklist fetches a single pick order by id.
	GetPicklist(ctx context.Context, picklistID int) (*Picklist, error)

	// CreatePicklistBatch groups pick orders into one platform batch.
	// All picklists must belong to the same warehouse.
	CreatePicklistBatch(ctx context.Context, picklistIDs []int) (*PicklistBatch, error)

	// GetShippingMethods lists the shipping methods available for a picklist.
	GetShippingMethods(ctx context.Context, picklistID int) ([]ShippingMethod, error)

	// CreateShipment creates a shipment for a picklist, triggering the
	// carrier to generate a label.
	CreateShipment(ctx context.Context, picklistID int, req *ShipmentRequest) (*Shipment, error)

	// CreateMulticolloShipment creates one shipment with multiple parcels.
	CreateMulticolloShipment(ctx context.Context, picklistID int, req *MulticolloRequest) (*Shipment, error)

	// GetLabel downloads the label document for a shipment. When labelURL is
	// non-empty it is fetched directly, otherwise the shipment's label
	// endpoint is used.
	GetLabel(ctx context.Context, shipmentID int, labelURL string) ([]byte, error)

	// PickProduct marks an amount of one product on a picklist as picked.
	PickProduct(ctx context.Context, picklistID, productID, amount int) error

	// ClosePicklist closes a picklist on the platform.
	ClosePicklist(ctx context.Context, picklistID int) error

	// GetTags lists all tags defined on the platform.
	GetTags(ctx context.Context) ([]Tag, error)

	// AddPicklistTag attaches a tag to a picklist.
	AddPicklistTag(ctx context.Context, picklistID, tagID int) error
}

// Picklist is a pick order as returned by the platform.
type Picklist struct {
	ID                        int               `json:"idpicklist"`
	PicklistID                string            `json:"picklistid"`
	OrderID                   int               `json:"idorder"`
	Reference                 string            `json:"reference"`
	Status                    string            `json:"status"`
	WarehouseID               int               `json:"idwarehouse"`
	BatchID                   *int              `json:"idpicklist_batch"`
	ShippingProviderProfileID *int              `json:"idshippingprovider_profile"`
	Weight                    int               `json:"weight"`
	DeliveryCountry           string            `json:"deliverycountry"`
	Products                  []PicklistProduct `json:"products"`
}

// Picklist statuses used by the pipeline.
const (
	PicklistStatusNew    = "new"
	PicklistStatusClosed = "closed"
)

// PicklistProduct is one product line on a picklist.
type PicklistProduct struct {
	ID           int    `json:"idproduct"`
	ProductCode  string `json:"productcode"`
	Name         string `json:"name"`
	Amount       int    `json:"amount"`
	AmountPicked int    `json:"amount_picked"`
}

// PicklistBatch is a platform-side grouping of picklists.
type PicklistBatch struct {
	ID      int    `json:"idpicklist_batch"`
	BatchID string `json:"batchid"`
}

// ShippingMethod is one shipping option available for a picklist.
type ShippingMethod struct {
	Name      string `json:"name"`
	ProfileID int    `json:"idshippingprovider_profile"`
}

// ShipmentRequest is the body for creating a single-parcel shipment.
type ShipmentRequest struct {
	ProfileID   int  `json:"idshippingprofile"`
	Weight      int  `json:"weight,omitempty"`
	PackagingID *int `json:"idpackaging,omitempty"`
}

// MulticolloRequest is the body for creating a multi-parcel shipment.
type MulticolloRequest struct {
	ProfileID int                `json:"idshippingprofile"`
	Parcels   []MulticolloParcel `json:"parcels"`
}

// MulticolloParcel is one parcel of a multicollo shipment request.
type MulticolloParcel struct {
	PackagingID int `json:"idpackaging"`
	Weight      int `json:"weight"`
}

// Shipment is the platform's shipment record, returned on creation.
type Shipment struct {
	ID            int      `json:"idshipment"`
	Provider      string   `json:"provider"`
	ProviderName  string   `json:"providername"`
	ProfileName   string   `json:"profile_name"`
	CarrierKey    string   `json:"carrier_key"`
	TrackingCode  string   `json:"trackingcode"`
	TrackingURL   string   `json:"trackingurl"`
	TrackTraceURL string   `json:"tracktraceurl"`
	LabelURL      string   `json:"labelurl"`
	LabelURLPDF   string   `json:"labelurl_pdf"`
	Parcels       []Parcel `json:"parcels"`
}

// Parcel is one physical parcel of a shipment.
type Parcel struct {
	ID           int    `json:"idshipment_parcel"`
	TrackingCode string `json:"trackingcode"`
	LabelURL     string `json:"labelurl"`
	LabelURLPDF  string `json:"labelurl_pdf"`
}

// BestLabelURL returns the preferred label URL for a parcel, falling back to
// the shipment-level URL when the parcel carries none.
func (p *Parcel) BestLabelURL(s *Shipment) string {
	for _, u := range []string{p.LabelURLPDF, p.LabelURL, s.LabelURLPDF, s.LabelURL} {
		if u != "" {
			return u
		}
	}
	return ""
}

// BestLabelURL returns the preferred label URL for the shipment.
func (s *Shipment) BestLabelURL() string {
	if s.LabelURLPDF != "" {
		return s.LabelURLPDF
	}
	return s.LabelURL
}

// Tag is a platform tag.
type Tag struct {
	ID    int    `json:"idtag"`
	Title string `json:"title"`
}
