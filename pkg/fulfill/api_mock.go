package fulfill

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing and local
// development. Behavior can be customized per operation via the On* hooks;
// without hooks it serves canned data. Successful mutations are recorded in
// memory on both the canned and hooked paths.
type MockAPIClient struct {
	mu sync.Mutex

	SimulateLatency time.Duration
	SimulateErrors  bool

	OnGetPicklist        func(ctx context.Context, picklistID int) (*Picklist, error)
	OnCreateBatch        func(ctx context.Context, picklistIDs []int) (*PicklistBatch, error)
	OnCreateShipment     func(ctx context.Context, picklistID int, req *ShipmentRequest) (*Shipment, error)
	OnCreateMulticollo   func(ctx context.Context, picklistID int, req *MulticolloRequest) (*Shipment, error)
	OnGetLabel           func(ctx context.Context, shipmentID int, labelURL string) ([]byte, error)
	OnGetShippingMethods func(ctx context.Context, picklistID int) ([]ShippingMethod, error)

	picklists       map[int]*Picklist
	tags            []Tag
	labelData       []byte
	nextShipmentID  int
	nextBatchID     int
	ShipmentsMade   []int // picklist ids, in creation order
	BatchesMade     [][]int
	PickedProducts  map[int]int // picklist id -> pick calls
	ClosedPicklists []int
	TaggedPicklists map[int][]int
}

// NewMockAPIClient creates a new mock API client.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{
		picklists:       make(map[int]*Picklist),
		tags:            []Tag{{ID: 7, Title: "Batchmaker"}},
		nextShipmentID:  9000,
		nextBatchID:     400,
		PickedProducts:  make(map[int]int),
		TaggedPicklists: make(map[int][]int),
	}
}

// SeedPicklist registers a picklist served by GetPicklist.
func (m *MockAPIClient) SeedPicklist(p *Picklist) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.picklists[p.ID] = p
}

// SeedTags replaces the tag set served by GetTags.
func (m *MockAPIClient) SeedTags(tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tags = append([]Tag(nil), tags...)
}

// SeedLabelData sets the bytes returned by GetLabel.
func (m *MockAPIClient) SeedLabelData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.labelData = data
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return newAPIError("mock", "simulated API error", 500)
	}
	return nil
}

// GetPicklist returns a seeded picklist, or a default one in status new.
func (m *MockAPIClient) GetPicklist(ctx context.Context, picklistID int) (*Picklist, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetPicklist != nil {
		return m.OnGetPicklist(ctx, picklistID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.picklists[picklistID]; ok {
		cp := *p
		return &cp, nil
	}
	return &Picklist{
		ID:          picklistID,
		PicklistID:  fmt.Sprintf("P-%06d", picklistID),
		Status:      PicklistStatusNew,
		WarehouseID: 1,
		Weight:      1200,
	}, nil
}

// CreatePicklistBatch records the batch and returns a generated id.
func (m *MockAPIClient) CreatePicklistBatch(ctx context.Context, picklistIDs []int) (*PicklistBatch, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateBatch != nil {
		batch, err := m.OnCreateBatch(ctx, picklistIDs)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.BatchesMade = append(m.BatchesMade, append([]int(nil), picklistIDs...))
		return batch, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBatchID++
	m.BatchesMade = append(m.BatchesMade, append([]int(nil), picklistIDs...))
	return &PicklistBatch{
		ID:      m.nextBatchID,
		BatchID: fmt.Sprintf("B%04d", m.nextBatchID),
	}, nil
}

// GetShippingMethods returns one default shipping method.
func (m *MockAPIClient) GetShippingMethods(ctx context.Context, picklistID int) ([]ShippingMethod, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetShippingMethods != nil {
		return m.OnGetShippingMethods(ctx, picklistID)
	}
	return []ShippingMethod{{Name: "PostNL Standaard", ProfileID: 11}}, nil
}

// CreateShipment records the shipment and returns generated tracking data.
func (m *MockAPIClient) CreateShipment(ctx context.Context, picklistID int, req *ShipmentRequest) (*Shipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateShipment != nil {
		shipment, err := m.OnCreateShipment(ctx, picklistID, req)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.ShipmentsMade = append(m.ShipmentsMade, picklistID)
		return shipment, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextShipmentID++
	m.ShipmentsMade = append(m.ShipmentsMade, picklistID)
	return &Shipment{
		ID:           m.nextShipmentID,
		Provider:     "postnl",
		ProviderName: "PostNL",
		TrackingCode: fmt.Sprintf("3S%010d", m.nextShipmentID),
		LabelURLPDF:  fmt.Sprintf("https://labels.example.test/%d.pdf", m.nextShipmentID),
	}, nil
}

// CreateMulticolloShipment records one shipment with a parcel per request parcel.
func (m *MockAPIClient) CreateMulticolloShipment(ctx context.Context, picklistID int, req *MulticolloRequest) (*Shipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnCreateMulticollo != nil {
		shipment, err := m.OnCreateMulticollo(ctx, picklistID, req)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.ShipmentsMade = append(m.ShipmentsMade, picklistID)
		return shipment, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextShipmentID++
	m.ShipmentsMade = append(m.ShipmentsMade, picklistID)

	shipment := &Shipment{
		ID:           m.nextShipmentID,
		Provider:     "dpd",
		ProviderName: "DPD",
		TrackingCode: fmt.Sprintf("0%013d", m.nextShipmentID),
	}
	for i := range req.Parcels {
		shipment.Parcels = append(shipment.Parcels, Parcel{
			ID:           m.nextShipmentID*10 + i,
			TrackingCode: fmt.Sprintf("0%013d%02d", m.nextShipmentID, i),
			LabelURLPDF:  fmt.Sprintf("https://labels.example.test/%d-%d.pdf", m.nextShipmentID, i),
		})
	}
	return shipment, nil
}

// GetLabel returns the seeded label bytes, or a small placeholder document.
func (m *MockAPIClient) GetLabel(ctx context.Context, shipmentID int, labelURL string) ([]byte, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	if m.OnGetLabel != nil {
		return m.OnGetLabel(ctx, shipmentID, labelURL)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.labelData != nil {
		return m.labelData, nil
	}
	return []byte("%PDF-1.4 mock label"), nil
}

// PickProduct records one pick call.
func (m *MockAPIClient) PickProduct(ctx context.Context, picklistID, productID, amount int) error {
	if err := m.simulate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PickedProducts[picklistID]++
	return nil
}

// ClosePicklist records the close call.
func (m *MockAPIClient) ClosePicklist(ctx context.Context, picklistID int) error {
	if err := m.simulate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClosedPicklists = append(m.ClosedPicklists, picklistID)
	if p, ok := m.picklists[picklistID]; ok {
		p.Status = PicklistStatusClosed
	}
	return nil
}

// GetTags returns the mock tag set.
func (m *MockAPIClient) GetTags(ctx context.Context) ([]Tag, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Tag(nil), m.tags...), nil
}

// AddPicklistTag records the tagging call.
func (m *MockAPIClient) AddPicklistTag(ctx context.Context, picklistID, tagID int) error {
	if err := m.simulate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaggedPicklists[picklistID] = append(m.TaggedPicklists[picklistID], tagID)
	return nil
}
