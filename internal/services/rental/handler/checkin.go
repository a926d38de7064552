package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database/models"
)

const (
	ITEM_CACHE_PREFIX = "catalog:item:"
	ITEMS_CACHE_KEY   = "catalog:items"
)

type CheckinSegmentInput struct {
	Condition string `json:"condition"`
	Quantity  int32  `json:"quantity"`
}

type CheckinLineInput struct {
	LineID int64 `json:"line_id"`

	// Single-pair form: ReturnedQty is the OK quantity, Condition labels the
	// shortfall. An unlabelled shortfall counts as MISSING.
	ReturnedQty *int32 `json:"returned_qty"`
	Condition   string `json:"condition"`

	// Explicit multi-segment form; must sum exactly to the issued quantity.
	Segments []CheckinSegmentInput `json:"segments"`
}

type CheckinOrderRequest struct {
	Lines []CheckinLineInput `json:"lines"`
}

// lineCheckin is a validated per-line plan, computed before any write.
type lineCheckin struct {
	line     *models.OrderLine
	okQty    int32
	segments []models.Segment
}

// CheckinOrder receives returned equipment and closes the order. Every
// ASSET/BULK line with issued units must be covered; consumables were spent
// at issue and are never checked in. Condition segments drive the stock
// buckets, incident log and lost-item registry, and the whole thing commits
// or rolls back as one unit. Checking in a CLOSED order is a no-op success.
func (s *RentalHandler) CheckinOrder(ctx context.Context, actor models.Actor, orderID int64, req CheckinOrderRequest) (*models.Order, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("orders may only be checked in by warehouse staff")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	order, err := loadOrder(tx, orderID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if order.Status == models.OrderClosed {
		tx.Rollback()
		return s.GetOrder(ctx, actor, order.ID)
	}

	switch order.Status {
	case models.OrderReturnDeclared:
		// normal path
	case models.OrderIssued, models.OrderEmergencyIssued:
		// external customers skip the self-service return declaration
		if order.OrderSource != models.SourceWowstorgExternal {
			return nil, rollback(tx, apperr.Conflict("order %s must declare a return before check-in", order.OrderNumber))
		}
	default:
		return nil, rollback(tx, apperr.Conflict("order %s cannot be checked in in status %s", order.OrderNumber, order.Status))
	}

	inputs := make(map[int64]CheckinLineInput, len(req.Lines))
	for _, in := range req.Lines {
		inputs[in.LineID] = in
	}

	plans := make([]lineCheckin, 0, len(order.OrderLines))
	for i := range order.OrderLines {
		line := &order.OrderLines[i]
		if line.Item == nil {
			return nil, rollback(tx, apperr.Internal("check-in integrity", fmt.Errorf("line %d has no item", line.ID)))
		}
		if line.Item.ItemType == models.ItemTypeConsumable {
			continue
		}
		if line.IssuedQty == nil || *line.IssuedQty == 0 {
			continue
		}

		in, ok := inputs[line.ID]
		if !ok {
			return nil, rollback(tx, apperr.Validation("line %d requires a check-in entry", line.ID))
		}

		plan, err := buildCheckinPlan(line, in)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		plans = append(plans, plan)
	}

	touched := make(map[int64]bool)
	for _, plan := range plans {
		if err := s.applyCheckinPlan(tx, actor, order, plan); err != nil {
			tx.Rollback()
			return nil, err
		}
		touched[plan.line.ItemID] = true
	}

	// Re-derive availability status for every item whose buckets moved.
	for itemID := range touched {
		if err := rederiveItemStatus(tx, itemID); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	now := time.Now().UTC()
	order.Status = models.OrderClosed
	order.ClosedAt = &now
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update order", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit check-in", err)
	}

	itemIDs := make([]int64, 0, len(touched))
	for id := range touched {
		itemIDs = append(itemIDs, id)
	}
	s.invalidateItemCaches(ctx, itemIDs...)
	s.notify(EventOrderCheckedIn, order)
	s.logger.Info("order checked in",
		zap.String("order_number", order.OrderNumber),
		zap.Int("lines", len(plans)))

	return s.GetOrder(ctx, actor, order.ID)
}

// buildCheckinPlan validates one line's input and normalizes both input forms
// into an OK quantity plus non-OK segments.
func buildCheckinPlan(line *models.OrderLine, in CheckinLineInput) (lineCheckin, error) {
	issued := *line.IssuedQty

	if len(in.Segments) > 0 {
		var okQty, sum int32
		segments := make([]models.Segment, 0, len(in.Segments))
		for _, seg := range in.Segments {
			cond := models.Condition(seg.Condition)
			if !cond.Valid() {
				return lineCheckin{}, apperr.Validation("line %d: unknown condition %q", line.ID, seg.Condition)
			}
			if seg.Quantity < 1 {
				return lineCheckin{}, apperr.Validation("line %d: segment quantity must be at least 1", line.ID)
			}
			sum += seg.Quantity
			if cond == models.ConditionOK {
				okQty += seg.Quantity
			} else {
				segments = append(segments, models.Segment{Condition: cond, Quantity: seg.Quantity})
			}
		}
		if sum != issued {
			return lineCheckin{}, apperr.Validation("line %d: segments sum to %d, issued quantity is %d", line.ID, sum, issued)
		}
		return lineCheckin{line: line, okQty: okQty, segments: segments}, nil
	}

	if in.ReturnedQty == nil {
		return lineCheckin{}, apperr.Validation("line %d: returned quantity or segments required", line.ID)
	}
	returned := *in.ReturnedQty
	if returned < 0 {
		return lineCheckin{}, apperr.Validation("line %d: returned quantity must not be negative", line.ID)
	}
	if returned > issued {
		return lineCheckin{}, apperr.Validation("line %d: returned quantity %d exceeds issued %d", line.ID, returned, issued)
	}

	shortfall := issued - returned
	if shortfall == 0 {
		return lineCheckin{line: line, okQty: returned}, nil
	}

	cond := models.Condition(in.Condition)
	if in.Condition == "" || cond == models.ConditionOK {
		cond = models.ConditionMissing
	}
	if !cond.Valid() {
		return lineCheckin{}, apperr.Validation("line %d: unknown condition %q", line.ID, in.Condition)
	}
	return lineCheckin{
		line:     line,
		okQty:    returned,
		segments: []models.Segment{{Condition: cond, Quantity: shortfall}},
	}, nil
}

// applyCheckinPlan writes the checkin line, bucket deltas, incidents and
// lost-item records for one order line.
func (s *RentalHandler) applyCheckinPlan(tx *gorm.DB, actor models.Actor, order *models.Order, plan lineCheckin) error {
	line := plan.line

	condition := models.ConditionOK
	if len(plan.segments) > 0 {
		condition = plan.segments[0].Condition
	}

	checkin := models.CheckinLine{
		OrderLineID: line.ID,
		ReturnedQty: plan.okQty,
		Condition:   condition,
		CheckedBy:   actor.UserID,
	}
	if len(plan.segments) > 1 || (len(plan.segments) > 0 && plan.okQty > 0) {
		full := make(models.SegmentList, 0, len(plan.segments)+1)
		if plan.okQty > 0 {
			full = append(full, models.Segment{Condition: models.ConditionOK, Quantity: plan.okQty})
		}
		full = append(full, plan.segments...)
		checkin.Segments = full
	}
	if err := tx.Create(&checkin).Error; err != nil {
		return apperr.Internal("create checkin line", err)
	}

	for _, seg := range plan.segments {
		if err := s.applySegment(tx, actor, order, line, seg); err != nil {
			return err
		}
	}
	return nil
}

func (s *RentalHandler) applySegment(tx *gorm.DB, actor models.Actor, order *models.Order, line *models.OrderLine, seg models.Segment) error {
	var bucket string
	var incidentType models.IncidentType
	switch seg.Condition {
	case models.ConditionNeedsRepair:
		bucket, incidentType = "stock_in_repair", models.IncidentNeedsRepair
	case models.ConditionBroken:
		bucket, incidentType = "stock_broken", models.IncidentBroken
	case models.ConditionMissing:
		bucket, incidentType = "stock_missing", models.IncidentMissing
	default:
		return apperr.Internal("check-in integrity", fmt.Errorf("segment with condition %s reached bucket application", seg.Condition))
	}

	res := tx.Model(&models.Item{}).
		Where("id = ? AND stock_in_repair + stock_broken + stock_missing + ? <= stock_total", line.ItemID, seg.Quantity).
		UpdateColumn(bucket, gorm.Expr(bucket+" + ?", seg.Quantity))
	if res.Error != nil {
		return apperr.Internal("update stock bucket", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("stock buckets for item %d cannot absorb %d more units", line.ItemID, seg.Quantity)
	}

	incident := models.Incident{
		ItemID:       line.ItemID,
		OrderID:      order.ID,
		OrderLineID:  line.ID,
		IncidentType: incidentType,
		Quantity:     seg.Quantity,
		Description:  fmt.Sprintf("check-in of order %s: %d unit(s) %s", order.OrderNumber, seg.Quantity, seg.Condition),
		CreatedBy:    actor.UserID,
	}
	if err := tx.Create(&incident).Error; err != nil {
		return apperr.Internal("create incident", err)
	}

	if seg.Condition == models.ConditionMissing {
		lost := models.LostItem{
			ItemID:      line.ItemID,
			OrderID:     order.ID,
			OrderLineID: line.ID,
			Quantity:    seg.Quantity,
			Status:      models.LostItemOpen,

			CustomerSnapshot: customerSnapshot(order),
			EventSnapshot: fmt.Sprintf("order %s, %s to %s", order.OrderNumber,
				order.StartDate.Format("2006-01-02"), order.EndDate.Format("2006-01-02")),
		}
		if err := tx.Create(&lost).Error; err != nil {
			return apperr.Internal("create lost item", err)
		}
	}

	return nil
}

func customerSnapshot(order *models.Order) string {
	if order.Customer != nil {
		return order.Customer.Name
	}
	return fmt.Sprintf("user %d", order.CreatedBy)
}

// rederiveItemStatus reloads an item inside the transaction and persists the
// availability status derived from its buckets.
func rederiveItemStatus(tx *gorm.DB, itemID int64) error {
	var item models.Item
	if err := tx.First(&item, itemID).Error; err != nil {
		return apperr.Internal("check-in integrity", fmt.Errorf("item %d disappeared mid-transaction: %w", itemID, err))
	}
	status := models.DeriveAvailabilityStatus(&item)
	if status == item.AvailabilityStatus {
		return nil
	}
	if err := tx.Model(&models.Item{}).Where("id = ?", itemID).
		UpdateColumn("availability_status", status).Error; err != nil {
		return apperr.Internal("update availability status", err)
	}
	return nil
}
