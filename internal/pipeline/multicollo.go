package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/everyplants/batchmaker/internal/store"
	"github.com/everyplants/batchmaker/pkg/fulfill"
)

// ShipAllRequest asks the consolidator to ship every closed box of a packing
// session.
type ShipAllRequest struct {
	SessionID          string         `json:"-"`
	ShippingProviderID int            `json:"shippingProviderId,omitempty"`
	BoxWeights         map[string]int `json:"boxWeights"`
}

// BoxResult reports the outcome for one box.
type BoxResult struct {
	BoxID        string `json:"boxId"`
	BoxNumber    int    `json:"boxNumber"`
	Status       string `json:"status"`
	TrackingCode string `json:"trackingCode,omitempty"`
	LabelURL     string `json:"labelUrl,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Box result statuses.
const (
	BoxShipped        = "shipped"
	BoxAlreadyClaimed = "already_claimed"
	BoxFailed         = "error"
)

// ShipAllResult is the consolidator outcome for one session.
type ShipAllResult struct {
	Multicollo       bool        `json:"multicollo"`
	Boxes            []BoxResult `json:"boxes"`
	SessionCompleted bool        `json:"sessionCompleted"`
	Warning          string      `json:"warning,omitempty"`
}

// ShipAll ships the closed boxes of a packing session. Boxes sharing
// packaging and weight travel as one multi-parcel shipment when at least two
// of them survive the claim step; everything else falls back to per-box
// shipments. Claims are atomic per box, so two workstations racing on the
// same session never double-ship a box.
func (p *Pipeline) ShipAll(ctx context.Context, req *ShipAllRequest) (*ShipAllResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.ShipAll")
	defer span.End()

	session, err := p.store.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	boxes, err := p.store.BoxesBySession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	result := &ShipAllResult{}
	var candidates []store.PackingSessionBox
	for _, box := range boxes {
		switch {
		case box.Status.Shipped():
			result.Boxes = append(result.Boxes, BoxResult{
				BoxID:        box.ID,
				BoxNumber:    box.BoxNumber,
				Status:       BoxShipped,
				TrackingCode: deref(box.TrackingCode),
				LabelURL:     deref(box.LabelURL),
			})
		case box.Status == store.BoxClosed:
			candidates = append(candidates, box)
		}
	}
	if len(candidates) == 0 {
		result.SessionCompleted, result.Warning = p.completeSessionIfShipped(ctx, session)
		return result, nil
	}

	claimed, conflicted, failed := p.claimBoxes(ctx, candidates)
	for _, box := range conflicted {
		result.Boxes = append(result.Boxes, BoxResult{
			BoxID:     box.ID,
			BoxNumber: box.BoxNumber,
			Status:    BoxAlreadyClaimed,
			Error:     ErrClaimConflict.Error(),
		})
	}
	result.Boxes = append(result.Boxes, failed...)

	profileID := p.resolveSessionProfile(ctx, session, req.ShippingProviderID)

	groups, singles := groupForMulticollo(claimed, req.BoxWeights)
	for _, group := range groups {
		results, ok := p.shipMulticollo(ctx, session, group, req.BoxWeights, profileID)
		if ok {
			result.Multicollo = true
			result.Boxes = append(result.Boxes, results...)
			continue
		}
		p.logger.Warn("Multicollo shipment failed, falling back to per-box shipments",
			zap.String("session_id", session.ID),
			zap.Int("boxes", len(group)),
		)
		singles = append(singles, group...)
	}
	for i := range singles {
		result.Boxes = append(result.Boxes, p.shipBoxSingle(ctx, session, &singles[i], req.BoxWeights[singles[i].ID], profileID))
	}

	sort.Slice(result.Boxes, func(i, j int) bool {
		return result.Boxes[i].BoxNumber < result.Boxes[j].BoxNumber
	})
	result.SessionCompleted, result.Warning = p.completeSessionIfShipped(ctx, session)
	return result, nil
}

// claimBoxes attempts to claim every candidate concurrently. A lost claim is
// an expected outcome, not an error; a claim that errors outright keeps its
// box in the result as failed so no box silently disappears.
func (p *Pipeline) claimBoxes(ctx context.Context, candidates []store.PackingSessionBox) (claimed, conflicted []store.PackingSessionBox, failed []BoxResult) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range candidates {
		box := candidates[i]
		g.Go(func() error {
			ok, err := p.store.ClaimBox(gctx, box.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				p.logger.Error("Claiming box",
					zap.String("box_id", box.ID),
					zap.Error(err),
				)
				failed = append(failed, BoxResult{
					BoxID:     box.ID,
					BoxNumber: box.BoxNumber,
					Status:    BoxFailed,
					Error:     fmt.Sprintf("claiming box: %v", err),
				})
			case ok:
				claimed = append(claimed, box)
			default:
				conflicted = append(conflicted, box)
				p.metrics.ClaimConflicts.Inc()
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(claimed, func(i, j int) bool { return claimed[i].BoxNumber < claimed[j].BoxNumber })
	sort.Slice(conflicted, func(i, j int) bool { return conflicted[i].BoxNumber < conflicted[j].BoxNumber })
	return claimed, conflicted, failed
}

// groupForMulticollo partitions claimed boxes into multi-parcel groups and
// leftovers. Boxes sharing packaging and declared weight form a group; a
// group needs at least two members to travel as one shipment, everything
// else ships on its own.
func groupForMulticollo(boxes []store.PackingSessionBox, weights map[string]int) (groups [][]store.PackingSessionBox, singles []store.PackingSessionBox) {
	type key struct {
		packaging int
		weight    int
	}
	byKey := make(map[key][]store.PackingSessionBox)
	var order []key
	for _, box := range boxes {
		if box.PackagingID == nil {
			singles = append(singles, box)
			continue
		}
		k := key{packaging: *box.PackagingID, weight: weights[box.ID]}
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], box)
	}
	for _, k := range order {
		if group := byKey[k]; len(group) >= 2 {
			groups = append(groups, group)
		} else {
			singles = append(singles, group...)
		}
	}
	return groups, singles
}

// shipMulticollo issues one multi-parcel shipment and fans the per-parcel
// tracking and label data back onto the box records. Returns ok=false when
// the shipment call itself fails so the caller can fall back to per-box
// shipments.
func (p *Pipeline) shipMulticollo(ctx context.Context, session *store.PackingSession, boxes []store.PackingSessionBox, weights map[string]int, profileID int) ([]BoxResult, bool) {
	parcels := make([]fulfill.MulticolloParcel, 0, len(boxes))
	for _, box := range boxes {
		parcels = append(parcels, fulfill.MulticolloParcel{
			PackagingID: *box.PackagingID,
			Weight:      weights[box.ID],
		})
	}

	var shipment *fulfill.Shipment
	err := p.callFulfill(ctx, "create_multicollo", func(ctx context.Context) error {
		var err error
		shipment, err = p.fulfill.CreateMulticolloShipment(ctx, session.PicklistID, profileID, parcels)
		return err
	})
	if err != nil {
		p.logger.Error("Multicollo shipment creation failed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return nil, false
	}

	results := make([]BoxResult, 0, len(boxes))
	for i := range boxes {
		box := &boxes[i]
		res := BoxResult{BoxID: box.ID, BoxNumber: box.BoxNumber}

		var parcel *fulfill.Parcel
		if i < len(shipment.Parcels) {
			parcel = &shipment.Parcels[i]
		}
		tracking := shipment.TrackingCode
		labelURL := shipment.BestLabelURL()
		if parcel != nil {
			if parcel.TrackingCode != "" {
				tracking = parcel.TrackingCode
			}
			labelURL = parcel.BestLabelURL(shipment)
		}

		if err := p.store.UpdateBox(ctx, box.ID, map[string]any{
			"shipment_id":   shipment.ID,
			"tracking_code": tracking,
			"status":        store.BoxShipmentCreated,
		}); err != nil {
			res.Status, res.Error = BoxFailed, err.Error()
			results = append(results, res)
			continue
		}
		results = append(results, p.finishBoxLabel(ctx, session, box, shipment.ID, labelURL, tracking))
	}
	return results, true
}

// shipBoxSingle ships one box on its own shipment.
func (p *Pipeline) shipBoxSingle(ctx context.Context, session *store.PackingSession, box *store.PackingSessionBox, weight, profileID int) BoxResult {
	res := BoxResult{BoxID: box.ID, BoxNumber: box.BoxNumber}

	var shipment *fulfill.Shipment
	err := p.callFulfill(ctx, "create_shipment", func(ctx context.Context) error {
		var err error
		shipment, err = p.fulfill.CreateShipment(ctx, session.PicklistID, profileID, box.PackagingID, weight)
		return err
	})
	if err != nil {
		p.markBoxFailed(ctx, box.ID)
		res.Status, res.Error = BoxFailed, err.Error()
		return res
	}

	if err := p.store.UpdateBox(ctx, box.ID, map[string]any{
		"shipment_id":   shipment.ID,
		"tracking_code": shipment.TrackingCode,
		"status":        store.BoxShipmentCreated,
	}); err != nil {
		res.Status, res.Error = BoxFailed, err.Error()
		return res
	}
	return p.finishBoxLabel(ctx, session, box, shipment.ID, shipment.BestLabelURL(), shipment.TrackingCode)
}

// finishBoxLabel fetches and stores the box's label document, then marks the
// box labeled.
func (p *Pipeline) finishBoxLabel(ctx context.Context, session *store.PackingSession, box *store.PackingSessionBox, shipmentID int, labelURL, tracking string) BoxResult {
	res := BoxResult{BoxID: box.ID, BoxNumber: box.BoxNumber, TrackingCode: tracking}

	var doc []byte
	err := p.callFulfill(ctx, "get_label", func(ctx context.Context) error {
		var err error
		doc, err = p.fulfill.GetShipmentLabel(ctx, shipmentID, labelURL)
		return err
	})
	if err != nil {
		p.markBoxFailed(ctx, box.ID)
		res.Status, res.Error = BoxFailed, fmt.Sprintf("fetching label: %v", err)
		return res
	}

	path := boxObjectPath(session.ID, box.ID)
	storedURL, err := p.blob.Upload(ctx, path, doc)
	if err != nil {
		p.markBoxFailed(ctx, box.ID)
		res.Status, res.Error = BoxFailed, fmt.Sprintf("storing label: %v", err)
		return res
	}

	if err := p.store.UpdateBox(ctx, box.ID, map[string]any{
		"status":     store.BoxLabelFetched,
		"label_url":  storedURL,
		"shipped_at": time.Now(),
	}); err != nil {
		res.Status, res.Error = BoxFailed, err.Error()
		return res
	}
	res.Status = BoxShipped
	res.LabelURL = storedURL
	return res
}

func (p *Pipeline) markBoxFailed(ctx context.Context, boxID string) {
	if err := p.store.UpdateBox(ctx, boxID, map[string]any{"status": store.BoxError}); err != nil {
		p.logger.Error("Marking box failed", zap.String("box_id", boxID), zap.Error(err))
	}
}

// completeSessionIfShipped runs the closing actions once every box of the
// session is shipped: mark remaining picks picked, close the pick order,
// mark the session complete, and tag the pick order. Each action is
// best-effort; failures surface as a warning, never as a failure of the
// shipments already recorded.
func (p *Pipeline) completeSessionIfShipped(ctx context.Context, session *store.PackingSession) (bool, string) {
	boxes, err := p.store.BoxesBySession(ctx, session.ID)
	if err != nil {
		return false, fmt.Sprintf("checking session boxes: %v", err)
	}
	if len(boxes) == 0 {
		return false, ""
	}
	for _, box := range boxes {
		if !box.Status.Shipped() {
			return false, ""
		}
	}

	var warnings []string
	if warn := p.checkPackedCompleteness(ctx, session, boxes); warn != "" {
		warnings = append(warnings, warn)
	}
	if err := p.fulfill.PickAllProducts(ctx, session.PicklistID); err != nil {
		warnings = append(warnings, fmt.Sprintf("marking picks complete: %v", err))
	}
	if err := p.fulfill.ClosePicklist(ctx, session.PicklistID); err != nil {
		warnings = append(warnings, fmt.Sprintf("closing pick order: %v", err))
	}
	now := time.Now()
	if err := p.store.UpdateSession(ctx, session.ID, map[string]any{
		"status":       "completed",
		"completed_at": now,
	}); err != nil {
		warnings = append(warnings, fmt.Sprintf("marking session complete: %v", err))
	}
	if p.cfg.SessionTagging {
		p.tagSession(ctx, session, &warnings)
	}

	p.logger.Info("Packing session completed",
		zap.String("session_id", session.ID),
		zap.Int("boxes", len(boxes)),
		zap.Int("warnings", len(warnings)),
	)
	return true, strings.Join(warnings, "; ")
}

// checkPackedCompleteness compares the units packed across the session's
// boxes against the pick order's product amounts. A mismatch is worth a
// warning before the pick order is closed; it never blocks the close.
func (p *Pipeline) checkPackedCompleteness(ctx context.Context, session *store.PackingSession, boxes []store.PackingSessionBox) string {
	picklist, err := p.fulfill.FetchPicklist(ctx, session.PicklistID)
	if err != nil {
		p.logger.Warn("Checking packed completeness",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
		return ""
	}

	expected := 0
	for _, product := range picklist.Products {
		expected += product.Amount
	}
	packed := 0
	for _, box := range boxes {
		packed += box.PackedAmount
	}
	if packed != expected {
		return fmt.Sprintf("not all pick order products are packed (%d of %d)", packed, expected)
	}
	return ""
}

func (p *Pipeline) tagSession(ctx context.Context, session *store.PackingSession, warnings *[]string) {
	tagID, err := p.tags.Get(ctx)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("resolving session tag: %v", err))
		return
	}
	if err := p.fulfill.TagPicklist(ctx, session.PicklistID, tagID); err != nil {
		// The cached id may point at a tag that no longer exists; resolve
		// fresh on the next session.
		p.tags.Invalidate()
		*warnings = append(*warnings, fmt.Sprintf("tagging pick order: %v", err))
	}
}

// resolveSessionProfile picks the shipping provider profile for a session's
// shipments: explicit request value, then the pick order's own profile.
// Zero lets the single-shipment path fall back to the first available
// shipping method.
func (p *Pipeline) resolveSessionProfile(ctx context.Context, session *store.PackingSession, override int) int {
	if override > 0 {
		return override
	}
	picklist, err := p.fulfill.FetchPicklist(ctx, session.PicklistID)
	if err == nil && picklist.ShippingProviderProfileID != nil {
		return *picklist.ShippingProviderProfileID
	}
	return 0
}

// boxObjectPath is the blob location of one box's label document.
func boxObjectPath(sessionID, boxID string) string {
	return fmt.Sprintf("verpakking/%s/%s.pdf", sessionID, boxID)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
