package handler

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database"
	"rentora-system/internal/database/models"
)

var (
	warehouseActor = models.Actor{UserID: 10, Role: models.RoleWarehouse}
	adminActor     = models.Actor{UserID: 11, Role: models.RoleAdmin}
	customerActor  = models.Actor{UserID: 20, Role: models.RoleCustomer}
	otherCustomer  = models.Actor{UserID: 21, Role: models.RoleCustomer}
)

func newTestRental(t *testing.T) (*RentalHandler, *gorm.DB) {
	t.Helper()
	db := database.NewTestDB(t)
	h := NewRentalHandler(db, nil, nil, zap.NewNop(), "0.10")
	return h, db
}

func seedItem(t *testing.T, db *gorm.DB, code string, itemType models.ItemType, total int32, price string) *models.Item {
	t.Helper()
	item := models.Item{
		ItemCode:           code,
		ItemName:           code,
		ItemType:           itemType,
		StockTotal:         total,
		AvailabilityStatus: models.StatusActive,
		PricePerDay:        price,
		IsActive:           true,
	}
	require.NoError(t, db.Create(&item).Error)
	return &item
}

func oneLineOrder(t *testing.T, h *RentalHandler, actor models.Actor, source string, itemID int64, qty int32) *models.Order {
	t.Helper()
	order, err := h.CreateOrder(context.Background(), actor, CreateOrderRequest{
		StartDate:   "2026-03-01",
		EndDate:     "2026-03-05",
		OrderSource: source,
		Lines:       []OrderLineInput{{ItemID: itemID, Quantity: qty}},
	})
	require.NoError(t, err)
	return order
}

func approveAll(t *testing.T, h *RentalHandler, order *models.Order, qty int32) *models.Order {
	t.Helper()
	approvals := make([]LineQuantityInput, 0, len(order.OrderLines))
	for _, line := range order.OrderLines {
		approvals = append(approvals, LineQuantityInput{LineID: line.ID, Quantity: qty})
	}
	out, err := h.ApproveOrder(context.Background(), warehouseActor, order.ID, ApproveOrderRequest{Approvals: approvals})
	require.NoError(t, err)
	return out
}

func issueAll(t *testing.T, h *RentalHandler, order *models.Order, qty int32) *models.Order {
	t.Helper()
	issues := make([]LineQuantityInput, 0, len(order.OrderLines))
	for _, line := range order.OrderLines {
		issues = append(issues, LineQuantityInput{LineID: line.ID, Quantity: qty})
	}
	out, err := h.IssueOrder(context.Background(), warehouseActor, order.ID, IssueOrderRequest{Issues: issues})
	require.NoError(t, err)
	return out
}

func issuedOrder(t *testing.T, h *RentalHandler, db *gorm.DB, source string, itemID int64, qty int32) *models.Order {
	t.Helper()
	order := oneLineOrder(t, h, customerActor, source, itemID, qty)
	order = approveAll(t, h, order, qty)
	return issueAll(t, h, order, qty)
}

func forceStatus(t *testing.T, db *gorm.DB, orderID int64, status models.OrderStatus) {
	t.Helper()
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", orderID).
		UpdateColumn("status", status).Error)
}

func TestCreateOrderSnapshotsDiscountedPrice(t *testing.T) {
	h, _ := newTestRental(t)
	db := h.db
	item := seedItem(t, db, "CAM-1", models.ItemTypeAsset, 5, "100.00")

	order := oneLineOrder(t, h, customerActor, string(models.SourceGreenwichInternal), item.ID, 2)

	require.Equal(t, models.OrderSubmitted, order.Status)
	require.Equal(t, "0.1000", order.DiscountRate)
	require.Len(t, order.OrderLines, 1)
	require.Equal(t, "90.00", order.OrderLines[0].UnitPricePerDay)
	require.Nil(t, order.OrderLines[0].ApprovedQty)
	require.Nil(t, order.OrderLines[0].IssuedQty)

	// external orders pay full price
	external := oneLineOrder(t, h, customerActor, string(models.SourceWowstorgExternal), item.ID, 1)
	require.Equal(t, "100.00", external.OrderLines[0].UnitPricePerDay)

	// a later catalog price change leaves the snapshot alone
	require.NoError(t, db.Model(&models.Item{}).Where("id = ?", item.ID).
		UpdateColumn("price_per_day", "250.00").Error)
	reloaded, err := h.GetOrder(context.Background(), customerActor, order.ID)
	require.NoError(t, err)
	require.Equal(t, "90.00", reloaded.OrderLines[0].UnitPricePerDay)
}

func TestCreateOrderValidation(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-2", models.ItemTypeAsset, 5, "10.00")
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateOrderRequest
	}{
		{"end before start", CreateOrderRequest{StartDate: "2026-03-05", EndDate: "2026-03-01",
			OrderSource: "GREENWICH_INTERNAL", Lines: []OrderLineInput{{ItemID: item.ID, Quantity: 1}}}},
		{"equal dates", CreateOrderRequest{StartDate: "2026-03-05", EndDate: "2026-03-05",
			OrderSource: "GREENWICH_INTERNAL", Lines: []OrderLineInput{{ItemID: item.ID, Quantity: 1}}}},
		{"bad date format", CreateOrderRequest{StartDate: "05.03.2026", EndDate: "2026-03-06",
			OrderSource: "GREENWICH_INTERNAL", Lines: []OrderLineInput{{ItemID: item.ID, Quantity: 1}}}},
		{"bad source", CreateOrderRequest{StartDate: "2026-03-01", EndDate: "2026-03-05",
			OrderSource: "SOMEWHERE", Lines: []OrderLineInput{{ItemID: item.ID, Quantity: 1}}}},
		{"no lines", CreateOrderRequest{StartDate: "2026-03-01", EndDate: "2026-03-05",
			OrderSource: "GREENWICH_INTERNAL"}},
		{"zero quantity", CreateOrderRequest{StartDate: "2026-03-01", EndDate: "2026-03-05",
			OrderSource: "GREENWICH_INTERNAL", Lines: []OrderLineInput{{ItemID: item.ID, Quantity: 0}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.CreateOrder(ctx, customerActor, tc.req)
			require.Error(t, err)
			require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}

	_, err := h.CreateOrder(ctx, customerActor, CreateOrderRequest{
		StartDate: "2026-03-01", EndDate: "2026-03-05",
		OrderSource: "GREENWICH_INTERNAL",
		Lines:       []OrderLineInput{{ItemID: 9999, Quantity: 1}},
	})
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	var count int64
	require.NoError(t, db.Model(&models.Order{}).Count(&count).Error)
	require.Zero(t, count, "rejected requests must not persist orders")
}

func TestCreateOrderRejectsInactiveCustomer(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-3", models.ItemTypeAsset, 5, "10.00")

	customer := models.Customer{Name: "Former Client", IsActive: false}
	require.NoError(t, db.Create(&customer).Error)

	_, err := h.CreateOrder(context.Background(), customerActor, CreateOrderRequest{
		StartDate: "2026-03-01", EndDate: "2026-03-05",
		OrderSource: "GREENWICH_INTERNAL",
		CustomerID:  &customer.ID,
		Lines:       []OrderLineInput{{ItemID: item.ID, Quantity: 1}},
	})
	require.Error(t, err)
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreateOrderRejectsOverCommit(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "GEN-1", models.ItemTypeAsset, 3, "10.00")

	first := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 2)
	approveAll(t, h, first, 2)

	// overlapping window sees only one unit left
	_, err := h.CreateOrder(context.Background(), otherCustomer, CreateOrderRequest{
		StartDate: "2026-03-03", EndDate: "2026-03-06",
		OrderSource: "GREENWICH_INTERNAL",
		Lines:       []OrderLineInput{{ItemID: item.ID, Quantity: 2}},
	})
	require.Error(t, err)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// one unit fits
	_, err = h.CreateOrder(context.Background(), otherCustomer, CreateOrderRequest{
		StartDate: "2026-03-03", EndDate: "2026-03-06",
		OrderSource: "GREENWICH_INTERNAL",
		Lines:       []OrderLineInput{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	// a disjoint window is unconstrained by the approved order
	_, err = h.CreateOrder(context.Background(), otherCustomer, CreateOrderRequest{
		StartDate: "2026-03-05", EndDate: "2026-03-08",
		OrderSource: "GREENWICH_INTERNAL",
		Lines:       []OrderLineInput{{ItemID: item.ID, Quantity: 3}},
	})
	require.NoError(t, err)
}

func TestSubmittedOrdersCompeteAtApproval(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "GEN-2", models.ItemTypeAsset, 3, "10.00")

	// both submissions are admitted: SUBMITTED does not reserve
	a := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 3)
	b := oneLineOrder(t, h, otherCustomer, "GREENWICH_INTERNAL", item.ID, 3)

	approveAll(t, h, a, 3)

	// the second approval finds the stock gone
	approvals := []LineQuantityInput{{LineID: b.OrderLines[0].ID, Quantity: 3}}
	_, err := h.ApproveOrder(context.Background(), warehouseActor, b.ID, ApproveOrderRequest{Approvals: approvals})
	require.Error(t, err)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	reloaded, err := h.GetOrder(context.Background(), warehouseActor, b.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderSubmitted, reloaded.Status)
}

func TestApproveOrderRules(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-5", models.ItemTypeAsset, 5, "10.00")
	ctx := context.Background()

	order := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 3)
	lineID := order.OrderLines[0].ID

	// non-warehouse actors cannot approve
	_, err := h.ApproveOrder(ctx, customerActor, order.ID, ApproveOrderRequest{
		Approvals: []LineQuantityInput{{LineID: lineID, Quantity: 3}}})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// every line needs an explicit quantity
	_, err = h.ApproveOrder(ctx, warehouseActor, order.ID, ApproveOrderRequest{})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// the requested quantity is a ceiling
	_, err = h.ApproveOrder(ctx, warehouseActor, order.ID, ApproveOrderRequest{
		Approvals: []LineQuantityInput{{LineID: lineID, Quantity: 4}}})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	out, err := h.ApproveOrder(ctx, warehouseActor, order.ID, ApproveOrderRequest{
		Approvals: []LineQuantityInput{{LineID: lineID, Quantity: 2}}})
	require.NoError(t, err)
	require.Equal(t, models.OrderApproved, out.Status)
	require.NotNil(t, out.ApprovedBy)
	require.Equal(t, warehouseActor.UserID, *out.ApprovedBy)
	require.Equal(t, int32(2), *out.OrderLines[0].ApprovedQty)
}

func TestIssueOrderRulesAndIdempotence(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-6", models.ItemTypeAsset, 5, "10.00")
	ctx := context.Background()

	order := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 3)
	order = approveAll(t, h, order, 2)
	lineID := order.OrderLines[0].ID

	// approved quantity is the issue ceiling
	_, err := h.IssueOrder(ctx, warehouseActor, order.ID, IssueOrderRequest{
		Issues: []LineQuantityInput{{LineID: lineID, Quantity: 3}}})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	out, err := h.IssueOrder(ctx, warehouseActor, order.ID, IssueOrderRequest{
		Issues: []LineQuantityInput{{LineID: lineID, Quantity: 2}}})
	require.NoError(t, err)
	require.Equal(t, models.OrderIssued, out.Status)
	require.NotNil(t, out.IssuedAt)
	require.Equal(t, int32(2), *out.OrderLines[0].IssuedQty)

	// repeating the call is a tolerated no-op
	again, err := h.IssueOrder(ctx, warehouseActor, order.ID, IssueOrderRequest{})
	require.NoError(t, err)
	require.Equal(t, models.OrderIssued, again.Status)
	require.Equal(t, int32(2), *again.OrderLines[0].IssuedQty)

	// asset stock is tracked, not consumed
	var reloaded models.Item
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	require.Equal(t, int32(5), reloaded.StockTotal)
}

func TestIssueConsumableDecrementsStock(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "TAPE-1", models.ItemTypeConsumable, 5, "2.00")

	issuedOrder(t, h, db, "GREENWICH_INTERNAL", item.ID, 3)

	var reloaded models.Item
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	require.Equal(t, int32(2), reloaded.StockTotal)
}

func TestIssueConsumableShortfallAbortsWholeOrder(t *testing.T) {
	h, db := newTestRental(t)
	asset := seedItem(t, db, "CAM-7", models.ItemTypeAsset, 5, "10.00")
	tape := seedItem(t, db, "TAPE-2", models.ItemTypeConsumable, 5, "2.00")
	ctx := context.Background()

	order, err := h.CreateOrder(ctx, customerActor, CreateOrderRequest{
		StartDate: "2026-03-01", EndDate: "2026-03-05",
		OrderSource: "GREENWICH_INTERNAL",
		Lines: []OrderLineInput{
			{ItemID: asset.ID, Quantity: 1},
			{ItemID: tape.ID, Quantity: 3},
		},
	})
	require.NoError(t, err)
	order = approveAll(t, h, order, 1)

	// stock vanishes between approval and issue
	require.NoError(t, db.Model(&models.Item{}).Where("id = ?", tape.ID).
		UpdateColumn("stock_total", 0).Error)

	issues := make([]LineQuantityInput, 0, 2)
	for _, line := range order.OrderLines {
		issues = append(issues, LineQuantityInput{LineID: line.ID, Quantity: 1})
	}
	_, err = h.IssueOrder(ctx, warehouseActor, order.ID, IssueOrderRequest{Issues: issues})
	require.Error(t, err)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// nothing from the failed issue sticks
	reloaded, err := h.GetOrder(ctx, warehouseActor, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderApproved, reloaded.Status)
	for _, line := range reloaded.OrderLines {
		require.Nil(t, line.IssuedQty)
	}
}

func TestEmergencyOrderIssuesAsEmergency(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-8", models.ItemTypeAsset, 5, "10.00")
	ctx := context.Background()

	order, err := h.CreateOrder(ctx, customerActor, CreateOrderRequest{
		StartDate: "2026-03-01", EndDate: "2026-03-05",
		OrderSource: "GREENWICH_INTERNAL",
		IsEmergency: true,
		Lines:       []OrderLineInput{{ItemID: item.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	order = approveAll(t, h, order, 1)
	order = issueAll(t, h, order, 1)
	require.Equal(t, models.OrderEmergencyIssued, order.Status)

	// emergency-issued lines still withhold stock
	_, err = h.CreateOrder(ctx, otherCustomer, CreateOrderRequest{
		StartDate: "2026-03-01", EndDate: "2026-03-05",
		OrderSource: "GREENWICH_INTERNAL",
		Lines:       []OrderLineInput{{ItemID: item.ID, Quantity: 5}},
	})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestDeclareReturnGuards(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-9", models.ItemTypeAsset, 5, "10.00")
	ctx := context.Background()

	order := issuedOrder(t, h, db, "GREENWICH_INTERNAL", item.ID, 1)

	// only the owner may declare
	_, err := h.DeclareReturn(ctx, otherCustomer, order.ID, DeclareReturnRequest{})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	_, err = h.DeclareReturn(ctx, warehouseActor, order.ID, DeclareReturnRequest{})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	out, err := h.DeclareReturn(ctx, customerActor, order.ID, DeclareReturnRequest{
		Notes: []LineNoteInput{{LineID: order.OrderLines[0].ID, Note: "handle cracked"}},
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderReturnDeclared, out.Status)
	require.NotNil(t, out.ReturnDeclaredAt)
	require.NotNil(t, out.OrderLines[0].ClientReturnNote)
	require.Equal(t, "handle cracked", *out.OrderLines[0].ClientReturnNote)

	// stock untouched by the declaration
	var reloaded models.Item
	require.NoError(t, db.First(&reloaded, item.ID).Error)
	require.Equal(t, int32(5), reloaded.StockTotal)
	require.Zero(t, reloaded.StockMissing)

	// external orders have no self-service return flow
	external := issuedOrder(t, h, db, "WOWSTORG_EXTERNAL", item.ID, 1)
	_, err = h.DeclareReturn(ctx, customerActor, external.ID, DeclareReturnRequest{})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestCancelOrderRules(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "GEN-3", models.ItemTypeAsset, 2, "10.00")
	ctx := context.Background()

	// owner cancels own SUBMITTED order
	submitted := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 2)
	out, err := h.CancelOrder(ctx, customerActor, submitted.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderCancelled, out.Status)

	// owner cannot cancel once approved, warehouse can
	approved := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 2)
	approved = approveAll(t, h, approved, 2)
	_, err = h.CancelOrder(ctx, customerActor, approved.ID)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	out, err = h.CancelOrder(ctx, warehouseActor, approved.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderCancelled, out.Status)

	// cancellation releases the reservation
	fresh := oneLineOrder(t, h, otherCustomer, "GREENWICH_INTERNAL", item.ID, 2)
	require.Equal(t, models.OrderSubmitted, fresh.Status)
	approveAll(t, h, fresh, 2)

	// issued orders are beyond cancellation
	issued := issuedOrder(t, h, db, "GREENWICH_INTERNAL", seedItem(t, db, "GEN-4", models.ItemTypeAsset, 1, "10.00").ID, 1)
	_, err = h.CancelOrder(ctx, warehouseActor, issued.ID)
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestUpdateOrderLinesResetsApproval(t *testing.T) {
	h, db := newTestRental(t)
	itemA := seedItem(t, db, "CAM-10", models.ItemTypeAsset, 5, "10.00")
	itemB := seedItem(t, db, "CAM-11", models.ItemTypeAsset, 5, "20.00")
	ctx := context.Background()

	order := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", itemA.ID, 2)
	order = approveAll(t, h, order, 2)
	require.Equal(t, models.OrderApproved, order.Status)

	out, err := h.UpdateOrderLines(ctx, warehouseActor, order.ID, UpdateOrderLinesRequest{
		Lines: []OrderLineInput{{ItemID: itemB.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderSubmitted, out.Status)
	require.Nil(t, out.ApprovedBy)
	require.Len(t, out.OrderLines, 1)
	require.Equal(t, itemB.ID, out.OrderLines[0].ItemID)
	require.Equal(t, int32(3), out.OrderLines[0].RequestedQty)
	require.Nil(t, out.OrderLines[0].ApprovedQty)

	// editing re-validates against availability, ignoring the order's own lines
	_, err = h.UpdateOrderLines(ctx, warehouseActor, order.ID, UpdateOrderLinesRequest{
		Lines: []OrderLineInput{{ItemID: itemB.ID, Quantity: 6}},
	})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	// customers cannot edit
	_, err = h.UpdateOrderLines(ctx, customerActor, order.ID, UpdateOrderLinesRequest{
		Lines: []OrderLineInput{{ItemID: itemA.ID, Quantity: 1}},
	})
	require.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestKitExpansionCarriesProvenance(t *testing.T) {
	h, db := newTestRental(t)
	cam := seedItem(t, db, "KCAM-1", models.ItemTypeAsset, 6, "50.00")
	tripod := seedItem(t, db, "KTRI-1", models.ItemTypeAsset, 6, "5.00")

	kit := models.Kit{KitCode: "VKIT", KitName: "Video kit", IsActive: true}
	require.NoError(t, db.Create(&kit).Error)
	require.NoError(t, db.Create(&models.KitLine{KitID: kit.ID, ItemID: cam.ID, Quantity: 1}).Error)
	require.NoError(t, db.Create(&models.KitLine{KitID: kit.ID, ItemID: tripod.ID, Quantity: 2}).Error)

	order, err := h.CreateOrder(context.Background(), customerActor, CreateOrderRequest{
		StartDate: "2026-03-01", EndDate: "2026-03-05",
		OrderSource: "GREENWICH_INTERNAL",
		Kits:        []KitLineInput{{KitID: kit.ID, Quantity: 2}},
	})
	require.NoError(t, err)
	require.Len(t, order.OrderLines, 2)
	for _, line := range order.OrderLines {
		require.NotNil(t, line.SourceKitID)
		require.Equal(t, kit.ID, *line.SourceKitID)
	}

	byItem := make(map[int64]int32)
	for _, line := range order.OrderLines {
		byItem[line.ItemID] = line.RequestedQty
	}
	require.Equal(t, int32(2), byItem[cam.ID])
	require.Equal(t, int32(4), byItem[tripod.ID])
}

func TestOrderVisibilityByRole(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-12", models.ItemTypeAsset, 5, "10.00")
	ctx := context.Background()

	mine := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 1)
	oneLineOrder(t, h, otherCustomer, "GREENWICH_INTERNAL", item.ID, 1)

	// customers see only their own orders
	_, err := h.GetOrder(ctx, otherCustomer, mine.ID)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	orders, err := h.ListOrders(ctx, customerActor, "")
	require.NoError(t, err)
	require.Len(t, orders, 1)

	orders, err = h.ListOrders(ctx, warehouseActor, "")
	require.NoError(t, err)
	require.Len(t, orders, 2)
}

func TestStateMachineTotality(t *testing.T) {
	h, db := newTestRental(t)
	item := seedItem(t, db, "CAM-13", models.ItemTypeAsset, 20, "10.00")
	ctx := context.Background()

	type action struct {
		name string
		call func(orderID int64, lineID int64) error
	}

	actions := []action{
		{"approve", func(orderID, lineID int64) error {
			_, err := h.ApproveOrder(ctx, warehouseActor, orderID, ApproveOrderRequest{
				Approvals: []LineQuantityInput{{LineID: lineID, Quantity: 1}}})
			return err
		}},
		{"issue", func(orderID, lineID int64) error {
			_, err := h.IssueOrder(ctx, warehouseActor, orderID, IssueOrderRequest{
				Issues: []LineQuantityInput{{LineID: lineID, Quantity: 1}}})
			return err
		}},
		{"declare-return", func(orderID, lineID int64) error {
			_, err := h.DeclareReturn(ctx, customerActor, orderID, DeclareReturnRequest{})
			return err
		}},
		{"checkin", func(orderID, lineID int64) error {
			_, err := h.CheckinOrder(ctx, warehouseActor, orderID, CheckinOrderRequest{
				Lines: []CheckinLineInput{{LineID: lineID, ReturnedQty: int32Ptr(1)}}})
			return err
		}},
		{"cancel", func(orderID, lineID int64) error {
			_, err := h.CancelOrder(ctx, warehouseActor, orderID)
			return err
		}},
	}

	// every pair outside the transition table must be a conflict, with the
	// two documented no-op exceptions (re-issue, re-checkin)
	allowed := map[models.OrderStatus]map[string]bool{
		models.OrderSubmitted:       {"approve": true, "cancel": true},
		models.OrderApproved:        {"issue": true, "cancel": true},
		models.OrderIssued:          {"declare-return": true, "issue": true},
		models.OrderEmergencyIssued: {"declare-return": true, "issue": true},
		models.OrderReturnDeclared:  {"checkin": true},
		models.OrderClosed:          {"checkin": true},
		models.OrderCancelled:       {},
	}

	for status, ok := range allowed {
		for _, act := range actions {
			if ok[act.name] {
				continue
			}
			t.Run(fmt.Sprintf("%s_%s", status, act.name), func(t *testing.T) {
				order := oneLineOrder(t, h, customerActor, "GREENWICH_INTERNAL", item.ID, 1)
				forceStatus(t, db, order.ID, status)

				err := act.call(order.ID, order.OrderLines[0].ID)
				require.Error(t, err)
				require.Equal(t, apperr.KindConflict, apperr.KindOf(err))

				reloaded, gerr := h.GetOrder(ctx, warehouseActor, order.ID)
				require.NoError(t, gerr)
				require.Equal(t, status, reloaded.Status, "rejected action must not change status")
			})
		}
	}
}

func int32Ptr(i int32) *int32 { return &i }
