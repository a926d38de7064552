package handler

import (
	"context"
	"time"

	"gorm.io/gorm"

	"rentora-system/internal/apperr"
	"rentora-system/internal/database/models"
)

type ResolveLostItemRequest struct {
	Resolution string `json:"resolution"` // FOUND or WRITTEN_OFF
}

func (s *RentalHandler) ListLostItems(ctx context.Context, actor models.Actor, status string) ([]models.LostItem, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("lost items are only visible to warehouse staff")
	}

	q := s.db.WithContext(ctx).Preload("Item").Order("id DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var lost []models.LostItem
	if err := q.Find(&lost).Error; err != nil {
		return nil, apperr.Internal("list lost items", err)
	}
	return lost, nil
}

func (s *RentalHandler) GetLostItem(ctx context.Context, actor models.Actor, id int64) (*models.LostItem, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("lost items are only visible to warehouse staff")
	}

	var lost models.LostItem
	if err := s.db.WithContext(ctx).Preload("Item").First(&lost, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("lost item %d not found", id)
		}
		return nil, apperr.Internal("load lost item", err)
	}
	return &lost, nil
}

// ResolveLostItem closes an OPEN lost-item record. FOUND returns the units to
// rentable stock (missing bucket shrinks); WRITTEN_OFF additionally removes
// them from the total, the units are permanently gone. The stock delta is the
// exact inverse of the one check-in applied.
func (s *RentalHandler) ResolveLostItem(ctx context.Context, actor models.Actor, id int64, req ResolveLostItemRequest) (*models.LostItem, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("lost items may only be resolved by warehouse staff")
	}

	resolution := models.LostItemStatus(req.Resolution)
	if resolution != models.LostItemFound && resolution != models.LostItemWrittenOff {
		return nil, apperr.Validation("resolution must be FOUND or WRITTEN_OFF")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	lost, err := loadLostItem(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if lost.Status != models.LostItemOpen {
		return nil, rollback(tx, apperr.Conflict("lost item %d is already resolved as %s", lost.ID, lost.Status))
	}

	if err := moveMissingStock(tx, lost.ItemID, lost.Quantity, resolution == models.LostItemWrittenOff, false); err != nil {
		tx.Rollback()
		return nil, err
	}

	now := time.Now().UTC()
	lost.Status = resolution
	lost.ResolvedBy = &actor.UserID
	lost.ResolvedAt = &now
	if err := tx.Save(lost).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update lost item", err)
	}

	if err := rederiveItemStatus(tx, lost.ItemID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit lost item resolution", err)
	}

	s.invalidateItemCaches(ctx, lost.ItemID)
	return s.GetLostItem(ctx, actor, lost.ID)
}

// ReopenLostItem reverses a resolution, restoring the missing bucket (and
// the stock total for written-off units). Resolving and re-opening any
// number of times must land the counters exactly where they started.
func (s *RentalHandler) ReopenLostItem(ctx context.Context, actor models.Actor, id int64) (*models.LostItem, error) {
	if !actor.IsWarehouse() {
		return nil, apperr.Conflict("lost items may only be reopened by warehouse staff")
	}

	tx := s.db.WithContext(ctx).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	lost, err := loadLostItem(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if lost.Status == models.LostItemOpen {
		return nil, rollback(tx, apperr.Conflict("lost item %d is already open", lost.ID))
	}

	if err := moveMissingStock(tx, lost.ItemID, lost.Quantity, lost.Status == models.LostItemWrittenOff, true); err != nil {
		tx.Rollback()
		return nil, err
	}

	lost.Status = models.LostItemOpen
	lost.ResolvedBy = nil
	lost.ResolvedAt = nil
	if err := tx.Save(lost).Error; err != nil {
		tx.Rollback()
		return nil, apperr.Internal("update lost item", err)
	}

	if err := rederiveItemStatus(tx, lost.ItemID); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperr.Internal("commit lost item reopen", err)
	}

	s.invalidateItemCaches(ctx, lost.ItemID)
	return s.GetLostItem(ctx, actor, lost.ID)
}

func loadLostItem(tx *gorm.DB, id int64) (*models.LostItem, error) {
	var lost models.LostItem
	if err := tx.First(&lost, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.NotFound("lost item %d not found", id)
		}
		return nil, apperr.Internal("load lost item", err)
	}
	return &lost, nil
}

// moveMissingStock applies the resolution stock delta, or its inverse when
// reopen is true. The conditional updates guard every counter against going
// negative or overflowing the buckets-within-total invariant.
func moveMissingStock(tx *gorm.DB, itemID int64, qty int32, writtenOff, reopen bool) error {
	if !reopen {
		// resolve: missing bucket shrinks; written-off units also leave the total
		cols := map[string]interface{}{
			"stock_missing": gorm.Expr("stock_missing - ?", qty),
		}
		cond := "id = ? AND stock_missing >= ?"
		if writtenOff {
			cols["stock_total"] = gorm.Expr("stock_total - ?", qty)
		}
		res := tx.Model(&models.Item{}).Where(cond, itemID, qty).UpdateColumns(cols)
		if res.Error != nil {
			return apperr.Internal("update stock buckets", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("item %d missing bucket cannot release %d units", itemID, qty)
		}
		return nil
	}

	// reopen: restore the missing bucket, and the total if it was written off
	cols := map[string]interface{}{
		"stock_missing": gorm.Expr("stock_missing + ?", qty),
	}
	q := tx.Model(&models.Item{}).Where("id = ?", itemID)
	if writtenOff {
		cols["stock_total"] = gorm.Expr("stock_total + ?", qty)
	} else {
		// without the written-off total restore, the bucket growth must
		// still fit inside the existing total
		q = tx.Model(&models.Item{}).
			Where("id = ? AND stock_in_repair + stock_broken + stock_missing + ? <= stock_total", itemID, qty)
	}
	res := q.UpdateColumns(cols)
	if res.Error != nil {
		return apperr.Internal("update stock buckets", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("item %d stock cannot reabsorb %d missing units", itemID, qty)
	}
	return nil
}
