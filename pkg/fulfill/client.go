// Package fulfill provides the client for the external fulfillment platform
// that tracks pick orders, batches, and shipments.
package fulfill

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds fulfillment platform configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Timeout     time.Duration
	MinInterval time.Duration
	UseMock     bool // When true, uses the mock API client
}

// Client wraps the low-level APIClient with the shipment-creation semantics
// the pipeline depends on: shippable-status guard, shipping provider
// fallback, and pick/close helpers.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new fulfillment client.
// If cfg.UseMock is true, it uses a mock API client for testing.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Timeout:     cfg.Timeout,
			MinInterval: cfg.MinInterval,
		})
	}
	return &Client{config: cfg, apiClient: apiClient, logger: logger, tracer: tracer}
}

// NewWithAPIClient creates a client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{config: cfg, apiClient: apiClient, logger: logger, tracer: tracer}
}

// FetchPicklist fetches a pick order by id.
func (c *Client) FetchPicklist(ctx context.Context, picklistID int) (*Picklist, error) {
	return c.apiClient.GetPicklist(ctx, picklistID)
}

// CreateBatch groups pick orders scoped to one warehouse into a platform batch.
func (c *Client) CreateBatch(ctx context.Context, picklistIDs []int) (*PicklistBatch, error) {
	c.logger.Info("Creating platform batch",
		zap.Int("picklist_count", len(picklistIDs)),
	)
	return c.apiClient.CreatePicklistBatch(ctx, picklistIDs)
}

// CreateShipment creates a shipment for a picklist. The picklist must be in
// status new. The shipping provider profile is resolved in order: the
// profileID argument, the picklist's own profile, the first available
// shipping method.
func (c *Client) CreateShipment(ctx context.Context, picklistID int, profileID int, packagingID *int, weight int) (*Shipment, error) {
	picklist, err := c.apiClient.GetPicklist(ctx, picklistID)
	if err != nil {
		return nil, err
	}

	if picklist.Status != PicklistStatusNew {
		return nil, fmt.Errorf("%w: picklist %d has status %q",
			ErrPicklistNotShippable, picklistID, picklist.Status)
	}

	resolved, err := c.resolveProfile(ctx, picklist, profileID)
	if err != nil {
		return nil, err
	}

	req := &ShipmentRequest{ProfileID: resolved, PackagingID: packagingID}
	switch {
	case weight > 0:
		req.Weight = weight
	case picklist.Weight > 0:
		req.Weight = picklist.Weight
	}

	c.logger.Info("Creating shipment",
		zap.Int("picklist_id", picklistID),
		zap.Int("profile_id", resolved),
		zap.Int("weight", req.Weight),
	)
	return c.apiClient.CreateShipment(ctx, picklistID, req)
}

// CreateMulticolloShipment creates one multi-parcel shipment for a picklist.
func (c *Client) CreateMulticolloShipment(ctx context.Context, picklistID int, profileID int, parcels []MulticolloParcel) (*Shipment, error) {
	c.logger.Info("Creating multicollo shipment",
		zap.Int("picklist_id", picklistID),
		zap.Int("parcel_count", len(parcels)),
	)
	return c.apiClient.CreateMulticolloShipment(ctx, picklistID, &MulticolloRequest{
		ProfileID: profileID,
		Parcels:   parcels,
	})
}

// GetShipmentLabel downloads the label document for a shipment.
func (c *Client) GetShipmentLabel(ctx context.Context, shipmentID int, labelURL string) ([]byte, error) {
	return c.apiClient.GetLabel(ctx, shipmentID, labelURL)
}

// PickAllProducts marks every remaining unpicked amount on a picklist as picked.
func (c *Client) PickAllProducts(ctx context.Context, picklistID int) error {
	picklist, err := c.apiClient.GetPicklist(ctx, picklistID)
	if err != nil {
		return err
	}
	for _, product := range picklist.Products {
		remaining := product.Amount - product.AmountPicked
		if remaining <= 0 {
			continue
		}
		if err := c.apiClient.PickProduct(ctx, picklistID, product.ID, remaining); err != nil {
			return err
		}
	}
	return nil
}

// ClosePicklist closes a pick order on the platform.
func (c *Client) ClosePicklist(ctx context.Context, picklistID int) error {
	return c.apiClient.ClosePicklist(ctx, picklistID)
}

// Tags lists all platform tags.
func (c *Client) Tags(ctx context.Context) ([]Tag, error) {
	return c.apiClient.GetTags(ctx)
}

// TagPicklist attaches a tag to a picklist.
func (c *Client) TagPicklist(ctx context.Context, picklistID, tagID int) error {
	return c.apiClient.AddPicklistTag(ctx, picklistID, tagID)
}

func (c *Client) resolveProfile(ctx context.Context, picklist *Picklist, profileID int) (int, error) {
	if profileID > 0 {
		return profileID, nil
	}
	if picklist.ShippingProviderProfileID != nil && *picklist.ShippingProviderProfileID > 0 {
		return *picklist.ShippingProviderProfileID, nil
	}

	methods, err := c.apiClient.GetShippingMethods(ctx, picklist.ID)
	if err != nil {
		return 0, err
	}
	if len(methods) == 0 {
		return 0, fmt.Errorf("%w: picklist %d", ErrNoShippingMethod, picklist.ID)
	}

	c.logger.Info("Using first available shipping method",
		zap.Int("picklist_id", picklist.ID),
		zap.String("method", methods[0].Name),
		zap.Int("profile_id", methods[0].ProfileID),
	)
	return methods[0].ProfileID, nil
}
