package store

import (
	"time"
)

// LabelStatus is the per-label state machine status.
type LabelStatus string

const (
	LabelQueued          LabelStatus = "queued"
	LabelPending         LabelStatus = "pending"
	LabelShipmentCreated LabelStatus = "shipment_created"
	LabelFetched         LabelStatus = "label_fetched"
	LabelEdited          LabelStatus = "label_edited"
	LabelCompleted       LabelStatus = "completed"
	LabelError           LabelStatus = "error"
)

// Terminal reports whether no further automatic transitions occur.
func (s LabelStatus) Terminal() bool {
	return s == LabelCompleted || s == LabelError
}

// BatchStatus is the aggregate batch status.
type BatchStatus string

const (
	BatchProcessing BatchStatus = "processing_shipments"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
)

// BoxStatus is the packing-session box status.
type BoxStatus string

const (
	BoxPending         BoxStatus = "pending"
	BoxClosed          BoxStatus = "closed"
	BoxShipmentCreated BoxStatus = "shipment_created"
	BoxLabelFetched    BoxStatus = "label_fetched"
	BoxError           BoxStatus = "error"
)

// Shipped reports whether the box reached a shipped/labeled terminal state.
func (s BoxStatus) Shipped() bool {
	return s == BoxLabelFetched
}

// ShipmentLabel is one order unit to be shipped within a batch.
type ShipmentLabel struct {
	ID               string `gorm:"primaryKey"`
	BatchID          string `gorm:"index;not null"`
	PicklistID       int    `gorm:"not null"`
	OrderID          *int
	OrderReference   string
	Retailer         string
	PlantName        string
	PlantProductCode string
	Country          string
	Carrier          string
	ShipmentID       *int
	TrackingCode     *string
	OriginalLabelURL *string
	EditedLabelPath  *string
	Status           LabelStatus `gorm:"index;not null"`
	ErrorMessage     *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName maps the model to the shipment_labels table. The schema prefix
// comes from the gorm naming strategy so tests can run unqualified.
func (ShipmentLabel) TableName() string {
	return "shipment_labels"
}

// SingleOrderBatch is one batch submission.
type SingleOrderBatch struct {
	BatchID             string `gorm:"primaryKey"`
	Name                *string
	TotalOrders         int
	SuccessfulShipments int
	FailedShipments     int
	CombinedPDFPath     *string
	ExternalBatchIDs    []int `gorm:"serializer:json"`
	ExternalBatchNumber *string
	ShippingProviderID  *int
	PackagingID         *int
	Status              BatchStatus `gorm:"index;not null"`
	WebhookTriggered    bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (SingleOrderBatch) TableName() string {
	return "single_order_batches"
}

// PackingSession anchors the boxes of one interactive packing session to its
// source pick order. Session lifecycle belongs to the packing UI; the
// pipeline only reads the picklist reference and marks completion.
type PackingSession struct {
	ID          string `gorm:"primaryKey"`
	PicklistID  int    `gorm:"not null"`
	Status      string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (PackingSession) TableName() string {
	return "packing_sessions"
}

// PackingSessionBox is one physical box in a packing session. Claimed is the
// only field concurrent shipping attempts may race on.
type PackingSessionBox struct {
	ID           string `gorm:"primaryKey"`
	SessionID    string `gorm:"index;not null"`
	PackagingID  *int
	BoxNumber    int
	PackedAmount int // product units packed into this box
	ShipmentID   *int
	TrackingCode *string
	TrackingURL  *string
	LabelURL     *string
	Status       BoxStatus `gorm:"not null"`
	Claimed      bool      `gorm:"not null;default:false"`
	ShippedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PackingSessionBox) TableName() string {
	return "packing_session_boxes"
}

// Progress is the live view of a batch used by status polling.
type Progress struct {
	BatchID         string      `json:"batchId"`
	Status          BatchStatus `json:"status"`
	Total           int         `json:"total"`
	Queued          int         `json:"queued"`
	Processing      int         `json:"processing"`
	Completed       int         `json:"completed"`
	Failed          int         `json:"failed"`
	CombinedPDFPath *string     `json:"combinedPdfUrl,omitempty"`
}
