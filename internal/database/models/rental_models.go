package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ItemType string

const (
	ItemTypeAsset      ItemType = "ASSET"
	ItemTypeBulk       ItemType = "BULK"
	ItemTypeConsumable ItemType = "CONSUMABLE"
)

func (t ItemType) Valid() bool {
	switch t {
	case ItemTypeAsset, ItemTypeBulk, ItemTypeConsumable:
		return true
	}
	return false
}

type AvailabilityStatus string

const (
	StatusActive      AvailabilityStatus = "ACTIVE"
	StatusNeedsRepair AvailabilityStatus = "NEEDS_REPAIR"
	StatusBroken      AvailabilityStatus = "BROKEN"
	StatusMissing     AvailabilityStatus = "MISSING"
	StatusRetired     AvailabilityStatus = "RETIRED"
)

type OrderStatus string

const (
	OrderSubmitted       OrderStatus = "SUBMITTED"
	OrderApproved        OrderStatus = "APPROVED"
	OrderIssued          OrderStatus = "ISSUED"
	OrderEmergencyIssued OrderStatus = "EMERGENCY_ISSUED"
	OrderReturnDeclared  OrderStatus = "RETURN_DECLARED"
	OrderClosed          OrderStatus = "CLOSED"
	OrderCancelled       OrderStatus = "CANCELLED"
)

// ActiveReservationStatuses are the order states whose lines withhold stock
// from availability. SUBMITTED is deliberately absent: unapproved demand does
// not reserve, the first approval wins.
var ActiveReservationStatuses = []OrderStatus{
	OrderApproved,
	OrderIssued,
	OrderEmergencyIssued,
	OrderReturnDeclared,
}

type OrderSource string

const (
	SourceGreenwichInternal OrderSource = "GREENWICH_INTERNAL"
	SourceWowstorgExternal  OrderSource = "WOWSTORG_EXTERNAL"
)

func (s OrderSource) Valid() bool {
	return s == SourceGreenwichInternal || s == SourceWowstorgExternal
}

type Condition string

const (
	ConditionOK          Condition = "OK"
	ConditionNeedsRepair Condition = "NEEDS_REPAIR"
	ConditionBroken      Condition = "BROKEN"
	ConditionMissing     Condition = "MISSING"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionOK, ConditionNeedsRepair, ConditionBroken, ConditionMissing:
		return true
	}
	return false
}

type IncidentType string

const (
	IncidentNeedsRepair IncidentType = "NEEDS_REPAIR"
	IncidentBroken      IncidentType = "BROKEN"
	IncidentMissing     IncidentType = "MISSING"
)

type LostItemStatus string

const (
	LostItemOpen       LostItemStatus = "OPEN"
	LostItemFound      LostItemStatus = "FOUND"
	LostItemWrittenOff LostItemStatus = "WRITTEN_OFF"
)

type Item struct {
	ID            int64    `gorm:"primaryKey;autoIncrement"`
	ItemCode      string   `gorm:"size:100;uniqueIndex;not null"`
	ItemName      string   `gorm:"size:255;not null"`
	ItemType      ItemType `gorm:"size:32;not null"`
	StockTotal    int32    `gorm:"not null"`
	StockInRepair int32    `gorm:"not null;default:0"`
	StockBroken   int32    `gorm:"not null;default:0"`
	StockMissing  int32    `gorm:"not null;default:0"`

	AvailabilityStatus AvailabilityStatus `gorm:"size:32;not null;default:'ACTIVE'"`
	PricePerDay        string             `gorm:"type:decimal(18,2);not null;default:'0.00'"`
	IsActive           bool               `gorm:"not null;default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RentableStock is total stock minus the repair/broken/missing buckets,
// zero when the item is retired.
func (i *Item) RentableStock() int32 {
	if i.AvailabilityStatus == StatusRetired {
		return 0
	}
	s := i.StockTotal - i.StockInRepair - i.StockBroken - i.StockMissing
	if s < 0 {
		return 0
	}
	return s
}

// DeriveAvailabilityStatus recomputes the status from the condition buckets.
// RETIRED is a sticky manual override and is never cleared here. Call this
// after every bucket mutation instead of patching the field inline.
func DeriveAvailabilityStatus(i *Item) AvailabilityStatus {
	if i.AvailabilityStatus == StatusRetired {
		return StatusRetired
	}
	switch {
	case i.StockMissing > 0:
		return StatusMissing
	case i.StockBroken > 0:
		return StatusBroken
	case i.StockInRepair > 0:
		return StatusNeedsRepair
	default:
		return StatusActive
	}
}

// BucketsConsistent reports whether the condition buckets fit inside the
// total stock.
func (i *Item) BucketsConsistent() bool {
	if i.StockTotal < 0 || i.StockInRepair < 0 || i.StockBroken < 0 || i.StockMissing < 0 {
		return false
	}
	return i.StockInRepair+i.StockBroken+i.StockMissing <= i.StockTotal
}

type Kit struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	KitCode   string `gorm:"size:100;uniqueIndex;not null"`
	KitName   string `gorm:"size:255;not null"`
	IsActive  bool   `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	KitLines []KitLine `gorm:"foreignKey:KitID"`
}

type KitLine struct {
	ID       int64 `gorm:"primaryKey;autoIncrement"`
	KitID    int64 `gorm:"index;not null"`
	ItemID   int64 `gorm:"not null"`
	Quantity int32 `gorm:"not null"`

	Item *Item `gorm:"foreignKey:ItemID"`
}

type Customer struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:255;not null"`
	Email     *string
	Phone     *string
	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID          int64       `gorm:"primaryKey;autoIncrement"`
	OrderNumber string      `gorm:"size:64;uniqueIndex;not null"`
	Status      OrderStatus `gorm:"size:32;not null;index"`
	StartDate   time.Time   `gorm:"not null;index"`
	EndDate     time.Time   `gorm:"not null;index"`
	OrderSource OrderSource `gorm:"size:32;not null"`

	DiscountRate string `gorm:"type:decimal(5,4);not null;default:'0.0000'"`
	IsEmergency  bool   `gorm:"not null;default:false"`

	CreatedBy  int64 `gorm:"not null;index"`
	ApprovedBy *int64
	IssuedBy   *int64
	CustomerID *int64

	IssuedAt         *time.Time
	ReturnDeclaredAt *time.Time
	ClosedAt         *time.Time

	Notes     *string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time

	OrderLines []OrderLine `gorm:"foreignKey:OrderID"`
	Customer   *Customer   `gorm:"foreignKey:CustomerID"`
}

// Overlaps reports whether the order window intersects [start, end).
// Ranges are half-open: touching end-to-start is not an overlap.
func (o *Order) Overlaps(start, end time.Time) bool {
	return o.StartDate.Before(end) && o.EndDate.After(start)
}

type OrderLine struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	OrderID      int64  `gorm:"index;not null"`
	ItemID       int64  `gorm:"index;not null"`
	RequestedQty int32  `gorm:"not null"`
	ApprovedQty  *int32 // nil until approval
	IssuedQty    *int32 // nil until issue

	// UnitPricePerDay is the discounted per-day price captured at order
	// creation. Later catalog price changes never touch it.
	UnitPricePerDay string `gorm:"type:decimal(18,2);not null"`

	SourceKitID      *int64  // provenance only, not re-validated
	ClientReturnNote *string `gorm:"type:text"`
	CreatedAt        time.Time

	Item *Item `gorm:"foreignKey:ItemID"`
}

// ReservedQty is the highest-confidence known quantity for the line:
// issued, else approved, else requested. Every reservation computation in
// the system goes through this one function.
func (l *OrderLine) ReservedQty() int32 {
	if l.IssuedQty != nil {
		return *l.IssuedQty
	}
	if l.ApprovedQty != nil {
		return *l.ApprovedQty
	}
	return l.RequestedQty
}

// IssueCeiling bounds the quantity that may be issued for the line.
func (l *OrderLine) IssueCeiling() int32 {
	if l.ApprovedQty != nil {
		return *l.ApprovedQty
	}
	return l.RequestedQty
}

// Segment is one (condition, quantity) slice of a returned line.
type Segment struct {
	Condition Condition `json:"condition"`
	Quantity  int32     `json:"quantity"`
}

// SegmentList is stored as a JSON column, same scanning scheme as the
// rest of the JSON-backed columns in the schema.
type SegmentList []Segment

func (s *SegmentList) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan SegmentList: %v", value)
	}
	return json.Unmarshal(bytes, s)
}

func (s SegmentList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

type CheckinLine struct {
	ID          int64 `gorm:"primaryKey;autoIncrement"`
	OrderLineID int64 `gorm:"uniqueIndex;not null"`
	ReturnedQty int32 `gorm:"not null"`

	// Condition labels the non-OK remainder of a single-pair check-in, or
	// OK when the full issued quantity came back healthy.
	Condition Condition   `gorm:"size:32;not null"`
	Segments  SegmentList `gorm:"type:text"`

	CheckedBy int64 `gorm:"not null"`
	CreatedAt time.Time
}

// Incident is an append-only audit record. Rows are never mutated.
type Incident struct {
	ID           int64        `gorm:"primaryKey;autoIncrement"`
	ItemID       int64        `gorm:"index;not null"`
	OrderID      int64        `gorm:"index;not null"`
	OrderLineID  int64        `gorm:"not null"`
	IncidentType IncidentType `gorm:"size:32;not null"`
	Quantity     int32        `gorm:"not null"`
	Description  string       `gorm:"type:text"`
	CreatedBy    int64        `gorm:"not null"`
	CreatedAt    time.Time
}

// LostItem tracks missing units with a lifecycle independent of the order
// that detected them. Customer and event context is snapshot text so the
// record stays meaningful after the order is archived.
type LostItem struct {
	ID          int64          `gorm:"primaryKey;autoIncrement"`
	ItemID      int64          `gorm:"index;not null"`
	OrderID     int64          `gorm:"index;not null"`
	OrderLineID int64          `gorm:"not null"`
	Quantity    int32          `gorm:"not null"`
	Status      LostItemStatus `gorm:"size:32;not null;index;default:'OPEN'"`

	CustomerSnapshot string `gorm:"size:255"`
	EventSnapshot    string `gorm:"size:255"`

	ResolvedBy *int64
	ResolvedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	Item *Item `gorm:"foreignKey:ItemID"`
}
