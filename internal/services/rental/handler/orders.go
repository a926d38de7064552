package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database/models"
	"rentora-system/internal/notify"
	availability "rentora-system/internal/services/availability/handler"
	"rentora-system/internal/utils"
)

const (
	EventOrderCreated   = "order.created"
	EventOrderApproved  = "order.approved"
	EventOrderIssued    = "order.issued"
	EventOrderCheckedIn = "order.checked_in"
	EventOrderOverdue   = "order.overdue"
)

type RentalHandler struct {
	db       *gorm.DB
	redis    *redis.Client
	notifier *notify.Notifier
	logger   *zap.Logger

	internalDiscount decimal.Decimal
}

func NewRentalHandler(db *gorm.DB, redisClient *redis.Client, notifier *notify.Notifier, logger *zap.Logger, internalDiscountRate string) *RentalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	discount, err := decimal.NewFromString(internalDiscountRate)
	if err != nil {
		logger.Warn("invalid internal discount rate, defaulting to zero",
			zap.String("rate", internalDiscountRate))
		discount = decimal.Zero
	}
	return &RentalHandler{
		db:       db,
		redis:    redisClient,
		notifier: notifier,
		logger:   logger,

		internalDiscount: discount,
	}
}

// --- Requests ---

type OrderLineInput struct {
	ItemID   int64 `json:"item_id"`
	Quantity int32 `json:"quantity"`
}

type KitLineInput struct {
	KitID    int64 `json:"kit_id"`
	Quantity int32 `json:"quantity"`
}

type CreateOrderRequest struct {
	StartDate   string           `json:"start_date"`
	EndDate     string           `json:"end_date"`
	OrderSource string           `json:"order_source"`
	CustomerID  *int64           `json:"customer_id"`
	IsEmergency bool             `json:"is_emergency"`
	Notes       *string          `json:"notes"`
	Lines       []OrderLineInput `json:"lines"`
	Kits        []KitLineInput   `json:"kits"`
}

type UpdateOrderLinesRequest struct {
	Lines []OrderLineInput `json:"lines"`
	Kits  []KitLineInput   `json:"kits"`
}

type LineQuantityInput struct {
	LineID   int64 `json:"line_id"`
	Quantity int32 `json:"quantity"`
}

type ApproveOrderRequest struct {
	Approvals []LineQuantityInput `json:"approvals"`
}

type IssueOrderRequest struct {
	Issues []LineQuantityInput `json:"issues"`
}

type LineNoteInput struct {
	LineID int64  `json:"line_id"`
	Note   string `json:"note"`
}

type DeclareReturnRequest struct {
	Notes []LineNoteInput `json:"notes"`
}

// expandedLine is a creation-time line after kit expansion.
type expandedLine struct {
	itemID      int64
	quantity    int32
	sourceKitID *int64
}

// --- Operations ---

// CreateOrder admits a new order as SUBMITTED. Every line must fit inside the
// item's availability for the requested window at submit time; SUBMITTED
// orders themselves reserve nothing until approval.
func (s *RentalHandler) CreateOrder(ctx context.Context, actor models.Actor, req CreateOrderRequest) (*models.Order, error) {
	start, end, err := parseWindow(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	source := models.OrderSource(req.OrderSource)
	if !source.Valid() {
		return nil, apperr.Validation("invalid order source %q", req.OrderSource)
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	lines, err := s.expandLines(tx, req.Lines, req.Kits)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if req.CustomerID != nil {
		var customer models.Customer
		if err := tx.First(&customer, *req.CustomerID).Error; err != nil {
			tx.Rollback()
			if err == gorm.ErrRecordNotFound {
				return nil, apperr.NotFound("customer %d not found", *req.CustomerID)
			}
			return nil, apperr.Internal("load customer", err)
		}
		if !customer.IsActive {
			return nil, rollback(tx, apperr.Validation("customer %d is not active", customer.ID))
		}
	}

	items, err := loadItems(tx, lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := checkAvailability(tx, lines, items, start, end, 0); err != nil {
		tx.Rollback()
		return nil, err
	}

	discount := decimal.Zero
	if source == models.SourceGreenwichInternal {
		discount = s.internalDiscount
	}

	order := models.Order{
		OrderNumber: newOrderNumber(),
		Status:      models.OrderSubmitted,
		StartDate:   start,
		EndDate:     end,
		OrderSource: source,

		DiscountRate: discount.StringFixed(4),
		IsEmergency:  req.IsEmergency,
		CreatedBy:    actor.UserID,
		CustomerID:   req.CustomerID,
		Notes:        req.Notes,
	}
	if err := tx.Create(&order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("create order", err)
	}

	if err := createOrderLines(tx, &order, lines, items, discount); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit order", err)
	}

	s.notify(EventOrderCreated, &order)
	return s.GetOrder(ctx, actor, order.ID)
}

// UpdateOrderLines replaces the whole line set of a SUBMITTED or APPROVED
// order. The order drops back to SUBMITTED and any approval is cleared, so
// the normal approval gate applies again.
func (s *RentalHandler) UpdateOrderLines(ctx context.Context, actor models.Actor, orderID int64, req UpdateOrderLinesRequest) (*models.Order, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("order lines may only be edited by warehouse staff")
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

	if order.Status != models.OrderSubmitted && order.Status != models.OrderApproved {
		return nil, rollback(tx, apperr.Conflict("order %s cannot be edited in status %s", order.OrderNumber, order.Status))
	}

	lines, err := s.expandLines(tx, req.Lines, req.Kits)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	items, err := loadItems(tx, lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := checkAvailability(tx, lines, items, order.StartDate, order.EndDate, order.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderLine{}).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("delete order lines", err)
	}

	discount, _ := decimal.NewFromString(order.DiscountRate)
	if err := createOrderLines(tx, order, lines, items, discount); err != nil {
		tx.Rollback()
		return nil, err
	}

	order.Status = models.OrderSubmitted
	order.ApprovedBy = nil
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update order", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit order edit", err)
	}

	return s.GetOrder(ctx, actor, order.ID)
}

// ApproveOrder moves SUBMITTED to APPROVED. Every line needs an explicit
// approved quantity within its requested ceiling, and the approved set must
// still fit inside availability: between competing SUBMITTED orders the
// first approval wins.
func (s *RentalHandler) ApproveOrder(ctx context.Context, actor models.Actor, orderID int64, req ApproveOrderRequest) (*models.Order, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("orders may only be approved by warehouse staff")
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

	if order.Status != models.OrderSubmitted {
		return nil, rollback(tx, apperr.Conflict("order %s cannot be approved in status %s", order.OrderNumber, order.Status))
	}

	approvals := make(map[int64]int32, len(req.Approvals))
	for _, a := range req.Approvals {
		approvals[a.LineID] = a.Quantity
	}

	lines := make([]expandedLine, 0, len(order.OrderLines))
	for i := range order.OrderLines {
		line := &order.OrderLines[i]
		qty, ok := approvals[line.ID]
		if !ok {
			return nil, rollback(tx, apperr.Validation("line %d has no approved quantity", line.ID))
		}
		if qty < 0 {
			return nil, rollback(tx, apperr.Validation("line %d approved quantity must not be negative", line.ID))
		}
		if qty > line.RequestedQty {
			return nil, rollback(tx, apperr.Validation("line %d approved quantity %d exceeds requested %d", line.ID, qty, line.RequestedQty))
		}
		line.ApprovedQty = &qty
		lines = append(lines, expandedLine{itemID: line.ItemID, quantity: qty})
	}

	items, err := loadItems(tx, lines)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := checkAvailability(tx, lines, items, order.StartDate, order.EndDate, order.ID); err != nil {
		tx.Rollback()
		return nil, err
	}

	for i := range order.OrderLines {
		line := &order.OrderLines[i]
		if err := tx.Model(&models.OrderLine{}).Where("id = ?", line.ID).
			UpdateColumn("approved_qty", line.ApprovedQty).Error; err != nil {
			tx.Rollback()
			return nil, apperr.Internal("update order line", err)
		}
	}

	order.Status = models.OrderApproved
	order.ApprovedBy = &actor.UserID
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update order", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit approval", err)
	}

	s.notify(EventOrderApproved, order)
	return s.GetOrder(ctx, actor, order.ID)
}

// IssueOrder hands the equipment out. CONSUMABLE lines are consumed on the
// spot: their stock total is decremented with a conditional update so that
// concurrent issues of the same consumable cannot oversell. Issuing an
// already-issued order is a no-op success.
func (s *RentalHandler) IssueOrder(ctx context.Context, actor models.Actor, orderID int64, req IssueOrderRequest) (*models.Order, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("orders may only be issued by warehouse staff")
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

	if order.Status == models.OrderIssued || order.Status == models.OrderEmergencyIssued {
		tx.Rollback()
		return s.GetOrder(ctx, actor, order.ID)
	}
	if order.Status != models.OrderApproved {
		return nil, rollback(tx, apperr.Conflict("order %s cannot be issued in status %s", order.OrderNumber, order.Status))
	}

	issues := make(map[int64]int32, len(req.Issues))
	for _, in := range req.Issues {
		issues[in.LineID] = in.Quantity
	}

	consumed := make([]int64, 0)
	for i := range order.OrderLines {
		line := &order.OrderLines[i]
		qty, ok := issues[line.ID]
		if !ok {
			return nil, rollback(tx, apperr.Validation("line %d has no issued quantity", line.ID))
		}
		if qty < 0 {
			return nil, rollback(tx, apperr.Validation("line %d issued quantity must not be negative", line.ID))
		}
		if ceiling := line.IssueCeiling(); qty > ceiling {
			return nil, rollback(tx, apperr.Validation("line %d issued quantity %d exceeds approved %d", line.ID, qty, ceiling))
		}

		if line.Item != nil && line.Item.ItemType == models.ItemTypeConsumable && qty > 0 {
			res := tx.Model(&models.Item{}).
				Where("id = ? AND stock_total - stock_in_repair - stock_broken - stock_missing >= ?", line.ItemID, qty).
				UpdateColumn("stock_total", gorm.Expr("stock_total - ?", qty))
			if res.Error != nil {
				tx.Rollback()
				return nil, apperr.Internal("decrement consumable stock", res.Error)
			}
			if res.RowsAffected == 0 {
				return nil, rollback(tx, apperr.Conflict("insufficient consumable stock for item %d", line.ItemID))
			}
			consumed = append(consumed, line.ItemID)
		}

		issuedQty := qty
		if err := tx.Model(&models.OrderLine{}).Where("id = ?", line.ID).
			UpdateColumn("issued_qty", issuedQty).Error; err != nil {
			tx.Rollback()
			return nil, apperr.Internal("update order line", err)
		}
	}

	now := time.Now().UTC()
	order.Status = models.OrderIssued
	if order.IsEmergency {
		order.Status = models.OrderEmergencyIssued
	}
	order.IssuedBy = &actor.UserID
	order.IssuedAt = &now
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update order", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit issue", err)
	}

	s.invalidateItemCaches(ctx, consumed...)
	s.notify(EventOrderIssued, order)
	return s.GetOrder(ctx, actor, order.ID)
}

// DeclareReturn records the client's own return declaration. Only the order
// owner may declare, and only for internal orders; external customers skip
// this step entirely and are checked in straight from ISSUED.
func (s *RentalHandler) DeclareReturn(ctx context.Context, actor models.Actor, orderID int64, req DeclareReturnRequest) (*models.Order, error) {
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

	if order.CreatedBy != actor.UserID {
		return nil, rollback(tx, apperr.Conflict("only the order owner may declare a return"))
	}
	if order.OrderSource != models.SourceGreenwichInternal {
		return nil, rollback(tx, apperr.Conflict("external orders are returned at the warehouse, not self-declared"))
	}
	if order.Status != models.OrderIssued && order.Status != models.OrderEmergencyIssued {
		return nil, rollback(tx, apperr.Conflict("order %s cannot declare a return in status %s", order.OrderNumber, order.Status))
	}

	notes := make(map[int64]string, len(req.Notes))
	for _, n := range req.Notes {
		notes[n.LineID] = n.Note
	}
	for i := range order.OrderLines {
		line := &order.OrderLines[i]
		if note, ok := notes[line.ID]; ok && note != "" {
			if err := tx.Model(&models.OrderLine{}).Where("id = ?", line.ID).
				UpdateColumn("client_return_note", note).Error; err != nil {
				tx.Rollback()
				return nil, apperr.Internal("update order line", err)
			}
		}
	}

	now := time.Now().UTC()
	order.Status = models.OrderReturnDeclared
	order.ReturnDeclaredAt = &now
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update order", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit return declaration", err)
	}

	return s.GetOrder(ctx, actor, order.ID)
}

// CancelOrder terminates a not-yet-issued order. Warehouse staff may cancel
// SUBMITTED and APPROVED orders; owners only their own SUBMITTED ones.
// A cancelled APPROVED order stops reserving by the status change alone.
func (s *RentalHandler) CancelOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
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

	switch order.Status {
	case models.OrderSubmitted:
		if !actor.IsWarehouse() && order.CreatedBy != actor.UserID {
			return nil, rollback(tx, apperr.Conflict("only the order owner or warehouse staff may cancel"))
		}
	case models.OrderApproved:
		if !actor.IsWarehouse() {
			return nil, rollback(tx, apperr.Conflict("approved orders may only be cancelled by warehouse staff"))
		}
	default:
		return nil, rollback(tx, apperr.Conflict("order %s cannot be cancelled in status %s", order.OrderNumber, order.Status))
	}

	order.Status = models.OrderCancelled
	if err := tx.Save(order).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update order", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit cancellation", err)
	}

	return s.GetOrder(ctx, actor, order.ID)
}

func (s *RentalHandler) GetOrder(ctx context.Context, actor models.Actor, orderID int64) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("OrderLines").Preload("OrderLines.Item").Preload("Customer").
		First(&order, orderID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("order %d not found", orderID)
		}
		return nil, apperr.Internal("load order", err)
	}
	if !actor.IsWarehouse() && order.CreatedBy != actor.UserID {
		return nil, apperr.NotFound("order %d not found", orderID)
	}
	return &order, nil
}

func (s *RentalHandler) ListOrders(ctx context.Context, actor models.Actor, status string) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Preload("OrderLines").Order("id DESC")
	if !actor.IsWarehouse() {
		q = q.Where("created_by = ?", actor.UserID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, apperr.Internal("list orders", err)
	}
	return orders, nil
}

// --- Internals ---

func (s *RentalHandler) expandLines(tx *gorm.DB, lines []OrderLineInput, kits []KitLineInput) ([]expandedLine, error) {
	out := make([]expandedLine, 0, len(lines))
	for _, in := range lines {
		if in.Quantity <= 0 {
			return nil, apperr.Validation("line quantity for item %d must be positive", in.ItemID)
		}
		out = append(out, expandedLine{itemID: in.ItemID, quantity: in.Quantity})
	}

	for _, in := range kits {
		if in.Quantity <= 0 {
			return nil, apperr.Validation("kit quantity for kit %d must be positive", in.KitID)
		}
		var kit models.Kit
		if err := tx.Preload("KitLines").First(&kit, in.KitID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, apperr.NotFound("kit %d not found", in.KitID)
			}
			return nil, apperr.Internal("load kit", err)
		}
		if !kit.IsActive {
			return nil, apperr.Validation("kit %s is not active", kit.KitCode)
		}
		kitID := kit.ID
		for _, kl := range kit.KitLines {
			out = append(out, expandedLine{
				itemID:      kl.ItemID,
				quantity:    kl.Quantity * in.Quantity,
				sourceKitID: &kitID,
			})
		}
	}

	if len(out) == 0 {
		return nil, apperr.Validation("order must contain at least one line")
	}
	return out, nil
}

func loadOrder(tx *gorm.DB, orderID int64) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("OrderLines").Preload("OrderLines.Item").First(&order, orderID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("order %d not found", orderID)
		}
		return nil, apperr.Internal("load order", err)
	}
	return &order, nil
}

func loadItems(tx *gorm.DB, lines []expandedLine) (map[int64]*models.Item, error) {
	itemIDs := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if !seen[l.itemID] {
			seen[l.itemID] = true
			itemIDs = append(itemIDs, l.itemID)
		}
	}

	var items []models.Item
	if err := tx.Where("id IN ?", itemIDs).Find(&items).Error; err != nil {
		return nil, apperr.Internal("load items", err)
	}

	byID := make(map[int64]*models.Item, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}
	for _, id := range itemIDs {
		item, ok := byID[id]
		if !ok {
			return nil, apperr.NotFound("item %d not found", id)
		}
		if !item.IsActive {
			return nil, apperr.Validation("item %s is not active", item.ItemCode)
		}
	}
	return byID, nil
}

func checkAvailability(tx *gorm.DB, lines []expandedLine, items map[int64]*models.Item, start, end time.Time, excludeOrderID int64) error {
	wanted := make(map[int64]int32, len(lines))
	itemIDs := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := wanted[l.itemID]; !ok {
			itemIDs = append(itemIDs, l.itemID)
		}
		wanted[l.itemID] += l.quantity
	}

	reserved, err := availability.ReservedIn(tx, itemIDs, start, end, excludeOrderID)
	if err != nil {
		return apperr.Internal("compute reservations", err)
	}

	for _, id := range itemIDs {
		item := items[id]
		avail := item.RentableStock() - reserved[id]
		if avail < 0 {
			avail = 0
		}
		if wanted[id] > avail {
			return apperr.Conflict("insufficient availability for item %s: requested %d, available %d",
				item.ItemCode, wanted[id], avail)
		}
	}
	return nil
}

func createOrderLines(tx *gorm.DB, order *models.Order, lines []expandedLine, items map[int64]*models.Item, discount decimal.Decimal) error {
	multiplier := decimal.NewFromInt(1).Sub(discount)
	for _, l := range lines {
		item := items[l.itemID]
		price, err := decimal.NewFromString(item.PricePerDay)
		if err != nil {
			return apperr.Internal("parse item price", fmt.Errorf("item %d price %q: %w", item.ID, item.PricePerDay, err))
		}
		line := models.OrderLine{
			OrderID:         order.ID,
			ItemID:          l.itemID,
			RequestedQty:    l.quantity,
			UnitPricePerDay: price.Mul(multiplier).StringFixed(2),
			SourceKitID:     l.sourceKitID,
		}
		if err := tx.Create(&line).Error; err != nil {
			return apperr.Internal("create order line", err)
		}
	}
	return nil
}

func newOrderNumber() string {
	now := time.Now().UTC()
	return fmt.Sprintf("RO-%s-%06d", now.Format("20060102"), now.UnixNano()%1000000)
}

func rollback(tx *gorm.DB, err error) error {
	tx.Rollback()
	return err
}

func (s *RentalHandler) notify(event string, order *models.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(context.Background(), event, map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
		"start_date":   order.StartDate.Format("2006-01-02"),
		"end_date":     order.EndDate.Format("2006-01-02"),
	})
}

func (s *RentalHandler) invalidateItemCaches(ctx context.Context, itemIDs ...int64) {
	if s.redis == nil {
		return
	}
	keys := []string{ITEMS_CACHE_KEY}
	for _, id := range itemIDs {
		keys = append(keys, fmt.Sprintf("%s%d", ITEM_CACHE_PREFIX, id))
	}
	_ = s.redis.Del(ctx, keys...)
}

func parseWindow(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := utils.ParseDate(startStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("invalid start date %q, expected YYYY-MM-DD", startStr)
	}
	end, err := utils.ParseDate(endStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Validation("invalid end date %q, expected YYYY-MM-DD", endStr)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, apperr.Validation("end date must be after start date")
	}
	return start, end, nil
}
