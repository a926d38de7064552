package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rentora-system/internal/database/models"
	"rentora-system/internal/notify"
)

// Scheduler runs the periodic overdue sweep. The sweep only reads order
// state and emits notifications; it never mutates the core.
type Scheduler struct {
	cron     *cron.Cron
	db       *gorm.DB
	notifier *notify.Notifier
	logger   *zap.Logger
	spec     string
}

func NewScheduler(db *gorm.DB, notifier *notify.Notifier, logger *zap.Logger, cronSpec string) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cron:     cron.New(),
		db:       db,
		notifier: notifier,
		logger:   logger,
		spec:     cronSpec,
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.String("overdue_cron", s.spec))

	if _, err := s.cron.AddFunc(s.spec, s.sweepOverdue); err != nil {
		s.logger.Error("failed to schedule overdue sweep", zap.Error(err))
		return
	}

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cron.Stop()
}

func (s *Scheduler) sweepOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	today := time.Now().UTC().Truncate(24 * time.Hour)

	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("status IN ?", []models.OrderStatus{
			models.OrderIssued,
			models.OrderEmergencyIssued,
			models.OrderReturnDeclared,
		}).
		Where("end_date < ?", today).
		Find(&orders).Error
	if err != nil {
		s.logger.Error("overdue sweep query failed", zap.Error(err))
		return
	}

	s.logger.Info("overdue sweep", zap.Int("orders", len(orders)))

	for i := range orders {
		order := &orders[i]
		s.notifier.Notify(ctx, "order.overdue", map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"status":       order.Status,
			"end_date":     order.EndDate.Format("2006-01-02"),
			"days_overdue": int(today.Sub(order.EndDate).Hours() / 24),
		})
	}
}
