package infrastructure

import (
	"context"
	"time"

	"github.com/AzielCF/az-cache/core/history/domain"
	"gorm.io/gorm"
)

type ChangeRecordModel struct {
	ID        string    `gorm:"primaryKey;column:id"`
	EventID   string    `gorm:"column:event_id;index"`
	Type      string    `gorm:"column:type"`
	Source    string    `gorm:"column:source"`
	Version   string    `gorm:"column:version"`
	Pool      string    `gorm:"column:pool;index"`
	Path      string    `gorm:"column:path"`
	OldValue  string    `gorm:"column:old_value"`
	NewValue  string    `gorm:"column:new_value"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

func (ChangeRecordModel) TableName() string {
	return "cache_config_history"
}

type HistoryGormRepository struct {
	db *gorm.DB
}

func NewHistoryGormRepository(db *gorm.DB) *HistoryGormRepository {
	return &HistoryGormRepository{db: db}
}

func (r *HistoryGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ChangeRecordModel{})
}

func (r *HistoryGormRepository) Append(ctx context.Context, records []domain.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]ChangeRecordModel, 0, len(records))
	for _, rec := range records {
		models = append(models, ChangeRecordModel(rec))
	}
	return r.db.WithContext(ctx).Create(&models).Error
}

func (r *HistoryGormRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.ChangeRecord, error) {
	q := r.db.WithContext(ctx).Model(&ChangeRecordModel{}).Order("created_at DESC").Order("path ASC")
	if filter.Pool != "" {
		q = q.Where("pool = ?", filter.Pool)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var models []ChangeRecordModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ChangeRecord, 0, len(models))
	for _, m := range models {
		out = append(out, domain.ChangeRecord(m))
	}
	return out, nil
}

func (r *HistoryGormRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&ChangeRecordModel{})
	return res.RowsAffected, res.Error
}
