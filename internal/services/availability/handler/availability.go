package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database/models"
	"rentora-system/internal/utils"
)

const (
	AVAILABILITY_CACHE_PREFIX = "availability:"
	CACHE_TTL_SHORT           = 5 * time.Minute
)

type AvailabilityHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewAvailabilityHandler(db *gorm.DB, redisClient *redis.Client) *AvailabilityHandler {
	return &AvailabilityHandler{
		db:    db,
		redis: redisClient,
	}
}

// ReservedIn computes, inside the given transaction handle, the quantity of
// each item already committed by active orders overlapping [start, end).
// excludeOrderID > 0 removes one order from the calculation, used when an
// order's own lines are being re-validated on edit or approval.
func ReservedIn(tx *gorm.DB, itemIDs []int64, start, end time.Time, excludeOrderID int64) (map[int64]int32, error) {
	reserved := make(map[int64]int32, len(itemIDs))
	if len(itemIDs) == 0 {
		return reserved, nil
	}

	var lines []models.OrderLine
	q := tx.Model(&models.OrderLine{}).
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.status IN ?", models.ActiveReservationStatuses).
		Where("orders.start_date < ? AND orders.end_date > ?", end, start).
		Where("order_lines.item_id IN ?", itemIDs)
	if excludeOrderID > 0 {
		q = q.Where("order_lines.order_id <> ?", excludeOrderID)
	}
	if err := q.Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("query reserved lines: %w", err)
	}

	for i := range lines {
		reserved[lines[i].ItemID] += lines[i].ReservedQty()
	}
	return reserved, nil
}

// Reserved is the read-path variant of ReservedIn.
func (s *AvailabilityHandler) Reserved(ctx context.Context, itemIDs []int64, start, end time.Time) (map[int64]int32, error) {
	return ReservedIn(s.db.WithContext(ctx), itemIDs, start, end, 0)
}

type ItemAvailability struct {
	ItemID        int64                     `json:"item_id"`
	ItemCode      string                    `json:"item_code"`
	ItemName      string                    `json:"item_name"`
	ItemType      models.ItemType           `json:"item_type"`
	Status        models.AvailabilityStatus `json:"status"`
	RentableStock int32                     `json:"rentable_stock"`
	Reserved      int32                     `json:"reserved"`
	Available     int32                     `json:"available"`
	PricePerDay   string                    `json:"price_per_day"`
}

func availabilityOf(item *models.Item, reserved int32) ItemAvailability {
	avail := item.RentableStock() - reserved
	if avail < 0 {
		avail = 0
	}
	return ItemAvailability{
		ItemID:        item.ID,
		ItemCode:      item.ItemCode,
		ItemName:      item.ItemName,
		ItemType:      item.ItemType,
		Status:        item.AvailabilityStatus,
		RentableStock: item.RentableStock(),
		Reserved:      reserved,
		Available:     avail,
		PricePerDay:   item.PricePerDay,
	}
}

// Available returns the bookable quantity for one item over [start, end).
// The read is advisory: mutating operations re-validate inside their own
// transaction.
func (s *AvailabilityHandler) Available(ctx context.Context, itemID int64, startStr, endStr string) (*ItemAvailability, error) {
	start, end, err := parseWindow(startStr, endStr)
	if err != nil {
		return nil, err
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("item %d not found", itemID)
		}
		return nil, apperr.Internal("load item", err)
	}

	reserved, err := s.Reserved(ctx, []int64{itemID}, start, end)
	if err != nil {
		return nil, apperr.Internal("compute reservations", err)
	}

	out := availabilityOf(&item, reserved[itemID])
	return &out, nil
}

// ListAvailability annotates every active item with its availability over the
// window using one reservation query, cached briefly per window.
func (s *AvailabilityHandler) ListAvailability(ctx context.Context, startStr, endStr string) ([]ItemAvailability, error) {
	start, end, err := parseWindow(startStr, endStr)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("%s%s:%s", AVAILABILITY_CACHE_PREFIX, startStr, endStr)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var out []ItemAvailability
			if json.Unmarshal([]byte(cached), &out) == nil {
				return out, nil
			}
		}
	}

	var items []models.Item
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("item_code").Find(&items).Error; err != nil {
		return nil, apperr.Internal("list items", err)
	}

	itemIDs := make([]int64, 0, len(items))
	for i := range items {
		itemIDs = append(itemIDs, items[i].ID)
	}

	reserved, err := s.Reserved(ctx, itemIDs, start, end)
	if err != nil {
		return nil, apperr.Internal("compute reservations", err)
	}

	out := make([]ItemAvailability, 0, len(items))
	for i := range items {
		out = append(out, availabilityOf(&items[i], reserved[items[i].ID]))
	}

	if s.redis != nil {
		if payload, err := json.Marshal(out); err == nil {
			_ = s.redis.Set(ctx, cacheKey, payload, CACHE_TTL_SHORT)
		}
	}

	return out, nil
}

type KitAvailability struct {
	KitID       int64                 `json:"kit_id"`
	KitCode     string                `json:"kit_code"`
	KitName     string                `json:"kit_name"`
	BookableQty int32                 `json:"bookable_qty"`
	Lines       []KitLineAvailability `json:"lines"`
}

type KitLineAvailability struct {
	ItemID    int64 `json:"item_id"`
	Quantity  int32 `json:"quantity"`
	Available int32 `json:"available"`
}

// KitAvailability expands a kit into its underlying items; a kit holds no
// stock of its own. The bookable quantity is the minimum of
// available/lineQty over its lines.
func (s *AvailabilityHandler) KitAvailability(ctx context.Context, kitID int64, startStr, endStr string) (*KitAvailability, error) {
	start, end, err := parseWindow(startStr, endStr)
	if err != nil {
		return nil, err
	}

	var kit models.Kit
	if err := s.db.WithContext(ctx).Preload("KitLines.Item").First(&kit, kitID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("kit %d not found", kitID)
		}
		return nil, apperr.Internal("load kit", err)
	}

	itemIDs := make([]int64, 0, len(kit.KitLines))
	for i := range kit.KitLines {
		itemIDs = append(itemIDs, kit.KitLines[i].ItemID)
	}

	reserved, err := s.Reserved(ctx, itemIDs, start, end)
	if err != nil {
		return nil, apperr.Internal("compute reservations", err)
	}

	out := &KitAvailability{
		KitID:   kit.ID,
		KitCode: kit.KitCode,
		KitName: kit.KitName,
	}

	first := true
	for i := range kit.KitLines {
		kl := kit.KitLines[i]
		if kl.Item == nil || kl.Quantity <= 0 {
			continue
		}
		avail := kl.Item.RentableStock() - reserved[kl.ItemID]
		if avail < 0 {
			avail = 0
		}
		out.Lines = append(out.Lines, KitLineAvailability{
			ItemID:    kl.ItemID,
			Quantity:  kl.Quantity,
			Available: avail,
		})
		bookable := avail / kl.Quantity
		if first || bookable < out.BookableQty {
			out.BookableQty = bookable
			first = false
		}
	}

	return out, nil
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
