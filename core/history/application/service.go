package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/AzielCF/az-cache/core/history/domain"
	"github.com/AzielCF/az-cache/core/history/infrastructure"
	domainCache "github.com/AzielCF/az-cache/domains/cache"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// HistoryService records applied configuration changes. Record is a change
// listener for the configuration manager.
type HistoryService struct {
	repo domain.IHistoryRepository
	once sync.Once
	err  error
}

func NewHistoryService(db *gorm.DB) *HistoryService {
	return NewHistoryServiceWithRepository(infrastructure.NewHistoryGormRepository(db))
}

func NewHistoryServiceWithRepository(repo domain.IHistoryRepository) *HistoryService {
	return &HistoryService{repo: repo}
}

func (s *HistoryService) init(ctx context.Context) error {
	s.once.Do(func() {
		s.err = s.repo.InitSchema(ctx)
	})
	return s.err
}

// Record stores one row per changed field of the event.
func (s *HistoryService) Record(ctx context.Context, event domainCache.ChangeEvent) error {
	if err := s.init(ctx); err != nil {
		return fmt.Errorf("history schema: %w", err)
	}
	if len(event.Changes) == 0 {
		return nil
	}

	at := event.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	records := make([]domain.ChangeRecord, 0, len(event.Changes))
	for _, c := range event.Changes {
		pool, _, _ := domainCache.SplitPath(c.Path)
		records = append(records, domain.ChangeRecord{
			ID:        uuid.NewString(),
			EventID:   event.ID,
			Type:      string(event.Type),
			Source:    string(event.Source),
			Version:   event.Version,
			Pool:      string(pool),
			Path:      c.Path,
			OldValue:  encodeValue(c.OldValue),
			NewValue:  encodeValue(c.NewValue),
			CreatedAt: at.UTC(),
		})
	}

	if err := s.repo.Append(ctx, records); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	logrus.Debugf("[CACHE_HISTORY] recorded %d changes of %s", len(records), event.ID)
	return nil
}

// List returns the newest records first, optionally for one pool.
func (s *HistoryService) List(ctx context.Context, pool string, limit int) ([]domain.ChangeRecord, error) {
	if err := s.init(ctx); err != nil {
		return nil, fmt.Errorf("history schema: %w", err)
	}
	return s.repo.List(ctx, domain.ListFilter{Pool: pool, Limit: limit})
}

// Prune deletes records older than the retention window.
func (s *HistoryService) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if err := s.init(ctx); err != nil {
		return 0, fmt.Errorf("history schema: %w", err)
	}
	n, err := s.repo.Prune(ctx, time.Now().UTC().Add(-retention))
	if err == nil && n > 0 {
		logrus.Infof("[CACHE_HISTORY] pruned %d records", n)
	}
	return n, err
}

func encodeValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
