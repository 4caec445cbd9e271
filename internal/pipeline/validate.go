package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/everyplants/batchmaker/pkg/fulfill"
)

// GroupOrder is one order inside a product group of a batch submission.
type GroupOrder struct {
	PicklistID int    `json:"picklistId"`
	OrderID    int    `json:"orderId,omitempty"`
	Reference  string `json:"orderReference,omitempty"`
}

// ProductGroup bundles the orders of one product, carrying the text that
// ends up printed on each label.
type ProductGroup struct {
	Retailer         string       `json:"retailer,omitempty"`
	PlantName        string       `json:"plantName"`
	PlantProductCode string       `json:"plantProductCode,omitempty"`
	Orders           []GroupOrder `json:"orders"`
}

// SubmitRequest is a batch submission.
type SubmitRequest struct {
	Name               *string        `json:"name,omitempty"`
	Groups             []ProductGroup `json:"productGroups"`
	ShippingProviderID *int           `json:"shippingProviderId,omitempty"`
	PackagingID        *int           `json:"packagingId,omitempty"`
}

// validatedOrder pairs a platform picklist with the product group it was
// submitted under.
type validatedOrder struct {
	picklist *fulfill.Picklist
	group    *ProductGroup
	order    GroupOrder
}

// validateOrders checks every order of the submission against the platform.
// All-or-nothing: any violation rejects the whole submission with the full
// violation list, and nothing has been created yet at that point.
func (p *Pipeline) validateOrders(ctx context.Context, req *SubmitRequest) ([]validatedOrder, error) {
	var valid []validatedOrder
	var violations []OrderViolation

	for gi := range req.Groups {
		group := &req.Groups[gi]
		for _, order := range group.Orders {
			picklist, err := p.fulfill.FetchPicklist(ctx, order.PicklistID)
			if err != nil {
				violations = append(violations, OrderViolation{
					PicklistID: order.PicklistID,
					Reference:  order.Reference,
					Reason:     fmt.Sprintf("could not fetch pick order: %v", err),
				})
				continue
			}
			if picklist.Status != fulfill.PicklistStatusNew {
				violations = append(violations, OrderViolation{
					PicklistID: order.PicklistID,
					Reference:  order.Reference,
					Reason:     fmt.Sprintf("pick order has status %q, expected %q", picklist.Status, fulfill.PicklistStatusNew),
				})
				continue
			}
			if picklist.BatchID != nil {
				violations = append(violations, OrderViolation{
					PicklistID: order.PicklistID,
					Reference:  order.Reference,
					Reason:     fmt.Sprintf("pick order already belongs to batch %d", *picklist.BatchID),
				})
				continue
			}
			valid = append(valid, validatedOrder{picklist: picklist, group: group, order: order})
		}
	}

	if len(violations) > 0 {
		p.logger.Warn("Batch submission rejected",
			zap.Int("violations", len(violations)),
			zap.Int("orders", len(valid)+len(violations)),
		)
		return nil, &ValidationError{Violations: violations}
	}
	return valid, nil
}

// partitionByWarehouse groups validated orders by their fulfillment
// warehouse. Each partition becomes one platform batch-creation call.
// Warehouse ids are returned in ascending order so batch creation order is
// deterministic.
func partitionByWarehouse(orders []validatedOrder) ([]int, map[int][]validatedOrder) {
	partitions := make(map[int][]validatedOrder)
	for _, o := range orders {
		wh := o.picklist.WarehouseID
		partitions[wh] = append(partitions[wh], o)
	}

	warehouses := make([]int, 0, len(partitions))
	for wh := range partitions {
		warehouses = append(warehouses, wh)
	}
	sort.Ints(warehouses)
	return warehouses, partitions
}
