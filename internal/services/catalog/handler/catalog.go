package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database/models"
)

const (
	ITEM_CACHE_PREFIX = "catalog:item:"
	ITEMS_CACHE_KEY   = "catalog:items"
	KITS_CACHE_KEY    = "catalog:kits"
	CACHE_TTL_MEDIUM  = 30 * time.Minute
)

type CatalogHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewCatalogHandler(db *gorm.DB, redisClient *redis.Client) *CatalogHandler {
	return &CatalogHandler{
		db:    db,
		redis: redisClient,
	}
}

func (s *CatalogHandler) invalidateCatalogCaches(ctx context.Context, itemIDs ...int64) {
	if s.redis == nil {
		return
	}
	keys := []string{ITEMS_CACHE_KEY, KITS_CACHE_KEY}
	for _, id := range itemIDs {
		keys = append(keys, fmt.Sprintf("%s%d", ITEM_CACHE_PREFIX, id))
	}
	_ = s.redis.Del(ctx, keys...)
}

type CreateItemRequest struct {
	ItemCode    string `json:"item_code"`
	ItemName    string `json:"item_name"`
	ItemType    string `json:"item_type"`
	StockTotal  int32  `json:"stock_total"`
	PricePerDay string `json:"price_per_day"`
}

func (s *CatalogHandler) CreateItem(ctx context.Context, actor models.Actor, req CreateItemRequest) (*models.Item, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Conflict("items may only be created by administrators")
	}
	if req.ItemCode == "" || req.ItemName == "" {
		return nil, apperr.Validation("item_code and item_name are required")
	}
	itemType := models.ItemType(req.ItemType)
	if !itemType.Valid() {
		return nil, apperr.Validation("invalid item type %q", req.ItemType)
	}
	if req.StockTotal < 0 {
		return nil, apperr.Validation("stock_total must not be negative")
	}
	price, err := decimal.NewFromString(req.PricePerDay)
	if err != nil || price.IsNegative() {
		return nil, apperr.Validation("invalid price_per_day %q", req.PricePerDay)
	}

	item := models.Item{
		ItemCode:           req.ItemCode,
		ItemName:           req.ItemName,
		ItemType:           itemType,
		StockTotal:         req.StockTotal,
		AvailabilityStatus: models.StatusActive,
		PricePerDay:        price.StringFixed(2),
		IsActive:           true,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		return nil, apperr.Internal("create item", err)
	}

	s.invalidateCatalogCaches(ctx, item.ID)
	return &item, nil
}

func (s *CatalogHandler) GetItem(ctx context.Context, itemID int64) (*models.Item, error) {
	cacheKey := fmt.Sprintf("%s%d", ITEM_CACHE_PREFIX, itemID)
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var item models.Item
			if json.Unmarshal([]byte(cached), &item) == nil {
				return &item, nil
			}
		}
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("item %d not found", itemID)
		}
		return nil, apperr.Internal("load item", err)
	}

	if s.redis != nil {
		if payload, err := json.Marshal(item); err == nil {
			_ = s.redis.Set(ctx, cacheKey, payload, CACHE_TTL_MEDIUM)
		}
	}
	return &item, nil
}

func (s *CatalogHandler) ListItems(ctx context.Context) ([]models.Item, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, ITEMS_CACHE_KEY).Result(); err == nil {
			var items []models.Item
			if json.Unmarshal([]byte(cached), &items) == nil {
				return items, nil
			}
		}
	}

	var items []models.Item
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("item_code").Find(&items).Error; err != nil {
		return nil, apperr.Internal("list items", err)
	}

	if s.redis != nil {
		if payload, err := json.Marshal(items); err == nil {
			_ = s.redis.Set(ctx, ITEMS_CACHE_KEY, payload, CACHE_TTL_MEDIUM)
		}
	}
	return items, nil
}

func (s *CatalogHandler) ListKits(ctx context.Context) ([]models.Kit, error) {
	var kits []models.Kit
	if err := s.db.WithContext(ctx).Preload("KitLines.Item").Where("is_active = ?", true).Order("kit_code").Find(&kits).Error; err != nil {
		return nil, apperr.Internal("list kits", err)
	}
	return kits, nil
}

func (s *CatalogHandler) GetKit(ctx context.Context, kitID int64) (*models.Kit, error) {
	var kit models.Kit
	if err := s.db.WithContext(ctx).Preload("KitLines.Item").First(&kit, kitID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("kit %d not found", kitID)
		}
		return nil, apperr.Internal("load kit", err)
	}
	return &kit, nil
}

type AdjustStockRequest struct {
	TotalDelta    int32  `json:"total_delta"`
	InRepairDelta int32  `json:"in_repair_delta"`
	BrokenDelta   int32  `json:"broken_delta"`
	MissingDelta  int32  `json:"missing_delta"`
	Reason        string `json:"reason"`
}

// AdjustStock applies a manual stock correction (restock, recount, repair
// completion). The result must keep every counter non-negative and the
// buckets inside the total.
func (s *CatalogHandler) AdjustStock(ctx context.Context, actor models.Actor, itemID int64, req AdjustStockRequest) (*models.Item, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("stock may only be adjusted by warehouse staff")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var item models.Item
	if err := tx.First(&item, itemID).Error; err != nil {
		tx.Rollback()
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("item %d not found", itemID)
		}
		return nil, apperr.Internal("load item", err)
	}

	item.StockTotal += req.TotalDelta
	item.StockInRepair += req.InRepairDelta
	item.StockBroken += req.BrokenDelta
	item.StockMissing += req.MissingDelta
	if !item.BucketsConsistent() {
		tx.Rollback()
		return nil, apperr.Conflict("adjustment would leave item %s with inconsistent stock buckets", item.ItemCode)
	}

	item.AvailabilityStatus = models.DeriveAvailabilityStatus(&item)
	if err := tx.Save(&item).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update item", err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit stock adjustment", err)
	}

	s.invalidateCatalogCaches(ctx, item.ID)
	return &item, nil
}

// RetireItem sets the sticky RETIRED override: rentable stock drops to zero
// and stays there until an explicit reactivation.
func (s *CatalogHandler) RetireItem(ctx context.Context, actor models.Actor, itemID int64) (*models.Item, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("items may only be retired by warehouse staff")
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("item %d not found", itemID)
		}
		return nil, apperr.Internal("load item", err)
	}

	item.AvailabilityStatus = models.StatusRetired
	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, apperr.Internal("update item", err)
	}

	s.invalidateCatalogCaches(ctx, item.ID)
	return &item, nil
}

// ReactivateItem clears the RETIRED override; the status falls back to
// whatever the buckets derive.
func (s *CatalogHandler) ReactivateItem(ctx context.Context, actor models.Actor, itemID int64) (*models.Item, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("items may only be reactivated by warehouse staff")
	}

	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("item %d not found", itemID)
		}
		return nil, apperr.Internal("load item", err)
	}

	if item.AvailabilityStatus != models.StatusRetired {
		return nil, apperr.Conflict("item %s is not retired", item.ItemCode)
	}

	item.AvailabilityStatus = models.StatusActive
	item.AvailabilityStatus = models.DeriveAvailabilityStatus(&item)
	if err := s.db.WithContext(ctx).Save(&item).Error; err != nil {
		return nil, apperr.Internal("update item", err)
	}

	s.invalidateCatalogCaches(ctx, item.ID)
	return &item, nil
}
