package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PriceAlertModel is a row of price_alerts.
type PriceAlertModel struct {
	ID          string     `gorm:"primaryKey;size:36"`
	Owner       string     `gorm:"size:64;index"`
	Symbol      string     `gorm:"size:32;not null"`
	Segment     string     `gorm:"size:16;not null"`
	Venue       string     `gorm:"size:16"`
	Kind        string     `gorm:"size:16;not null;index:idx_alert_status_kind,priority:2"`
	TargetPrice float64    `gorm:"not null"`
	Message     string     `gorm:"size:512"`
	Status      string     `gorm:"size:16;not null;default:active;index:idx_alert_status_kind,priority:1"`
	Notify      bool       `gorm:"not null;default:false"`
	Destination string     `gorm:"size:128"`
	CreatedAt   time.Time  `gorm:"not null"`
	TriggeredAt *time.Time `gorm:"index"`
}

func (PriceAlertModel) TableName() string { return "price_alerts" }

// StrategyAlertModel is a row of strategy_alerts, the generated signals.
type StrategyAlertModel struct {
	ID               string    `gorm:"primaryKey;size:36"`
	Symbol           string    `gorm:"size:32;not null"`
	Segment          string    `gorm:"size:16;not null"`
	Venue            string    `gorm:"size:16"`
	ConditionType    string    `gorm:"size:64;not null"`
	ConditionMessage string    `gorm:"size:256"`
	EntryPrice       float64   `gorm:"not null"`
	StopLoss         float64   `gorm:"not null"`
	TargetPrice      float64   `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null;index"`
}

func (StrategyAlertModel) TableName() string { return "strategy_alerts" }

// CacheEntryModel is a row of market_data_cache.
type CacheEntryModel struct {
	Key       string        `gorm:"column:cache_key;primaryKey;size:128"`
	Series    models.Series `gorm:"type:text;serializer:json;not null"`
	FetchedAt time.Time     `gorm:"not null"`
	ExpiresAt time.Time     `gorm:"not null;index"`
}

func (CacheEntryModel) TableName() string { return "market_data_cache" }

// Models lists every table the store needs, for AutoMigrate.
func Models() []interface{} {
	return []interface{}{&PriceAlertModel{}, &StrategyAlertModel{}, &CacheEntryModel{}}
}

// GormStore is the relational PersistentStore.
type GormStore struct {
	db *gorm.DB
}

var _ domrepo.Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the store's tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

// CreateAlert inserts a new alert. Alert authoring belongs to the dashboard;
// the engine uses this for seeding and tests.
func (s *GormStore) CreateAlert(ctx context.Context, a models.Alert) (models.Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.AlertActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := a.Validate(); err != nil {
		return models.Alert{}, err
	}
	m := alertToModel(a)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return models.Alert{}, fmt.Errorf("create alert: %w", err)
	}
	return a, nil
}

func (s *GormStore) ListActive(ctx context.Context, kinds ...models.AlertKind) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Where("status = ?", string(models.AlertActive))
	if len(kinds) > 0 {
		ks := make([]string, len(kinds))
		for i, k := range kinds {
			ks[i] = string(k)
		}
		q = q.Where("kind IN ?", ks)
	}

	var rows []PriceAlertModel
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	return alertsFromModels(rows), nil
}

func (s *GormStore) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	var m PriceAlertModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Alert{}, fmt.Errorf("alert %s: %w", id, domrepo.ErrNotFound)
	}
	if err != nil {
		return models.Alert{}, fmt.Errorf("get alert %s: %w", id, err)
	}
	return alertFromModel(m), nil
}

// Transition is a compare-and-set on status: only an active row moves. The
// row count tells a lost race apart from a missing alert.
func (s *GormStore) Transition(ctx context.Context, id string, status models.AlertStatus, at time.Time) error {
	updates := map[string]interface{}{"status": string(status)}
	if status == models.AlertTriggered {
		at = at.UTC()
		updates["triggered_at"] = &at
	}

	res := s.db.WithContext(ctx).
		Model(&PriceAlertModel{}).
		Where("id = ? AND status = ?", id, string(models.AlertActive)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition alert %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&PriceAlertModel{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("transition alert %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s: %w", id, domrepo.ErrNotFound)
	}
	return fmt.Errorf("alert %s no longer active: %w", id, domrepo.ErrStoreConflict)
}

func (s *GormStore) ListTriggered(ctx context.Context, limit int) ([]models.Alert, error) {
	var rows []PriceAlertModel
	err := s.db.WithContext(ctx).
		Where("status = ?", string(models.AlertTriggered)).
		Order("triggered_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list triggered alerts: %w", err)
	}
	return alertsFromModels(rows), nil
}

func (s *GormStore) AppendSignal(ctx context.Context, sig models.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	m := StrategyAlertModel{
		ID:               sig.ID,
		Symbol:           sig.Instrument.Symbol,
		Segment:          string(sig.Instrument.Segment),
		Venue:            sig.Instrument.Venue,
		ConditionType:    sig.ConditionType,
		ConditionMessage: sig.ConditionMessage,
		EntryPrice:       sig.EntryPrice,
		StopLoss:         sig.StopLoss,
		TargetPrice:      sig.TargetPrice,
		CreatedAt:        sig.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("append signal: %w", err)
	}
	return nil
}

func (s *GormStore) ListSignals(ctx context.Context, limit int) ([]models.Signal, error) {
	var rows []StrategyAlertModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	out := make([]models.Signal, 0, len(rows))
	for _, m := range rows {
		out = append(out, models.Signal{
			ID:               m.ID,
			Instrument:       models.Instrument{Symbol: m.Symbol, Segment: models.Segment(m.Segment), Venue: m.Venue},
			ConditionType:    m.ConditionType,
			ConditionMessage: m.ConditionMessage,
			EntryPrice:       m.EntryPrice,
			StopLoss:         m.StopLoss,
			TargetPrice:      m.TargetPrice,
			CreatedAt:        m.CreatedAt,
		})
	}
	return out, nil
}

func (s *GormStore) UpsertCacheEntry(ctx context.Context, e models.CacheEntry) error {
	m := CacheEntryModel{Key: e.Key, Series: e.Series, FetchedAt: e.FetchedAt.UTC(), ExpiresAt: e.ExpiresAt.UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"series", "fetched_at", "expires_at"}),
	}).Create(&m).Error
	if err != nil {
		return fmt.Errorf("upsert cache %s: %w", e.Key, err)
	}
	return nil
}

func (s *GormStore) GetCacheEntry(ctx context.Context, key string) (models.CacheEntry, error) {
	var m CacheEntryModel
	err := s.db.WithContext(ctx).Where("cache_key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CacheEntry{}, domrepo.ErrCacheMiss
	}
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("get cache %s: %w", key, err)
	}
	return models.CacheEntry{Key: m.Key, Series: m.Series, FetchedAt: m.FetchedAt, ExpiresAt: m.ExpiresAt}, nil
}

// PruneCache deletes entries that expired before cutoff.
func (s *GormStore) PruneCache(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", cutoff.UTC()).Delete(&CacheEntryModel{})
	return res.RowsAffected, res.Error
}

func alertToModel(a models.Alert) PriceAlertModel {
	return PriceAlertModel{
		ID:          a.ID,
		Owner:       a.Owner,
		Symbol:      a.Instrument.Symbol,
		Segment:     string(a.Instrument.Segment),
		Venue:       a.Instrument.Venue,
		Kind:        string(a.Kind),
		TargetPrice: a.TargetPrice,
		Message:     a.Message,
		Status:      string(a.Status),
		Notify:      a.Notify,
		Destination: a.Destination,
		CreatedAt:   a.CreatedAt.UTC(),
		TriggeredAt: a.TriggeredAt,
	}
}

func alertFromModel(m PriceAlertModel) models.Alert {
	return models.Alert{
		ID:          m.ID,
		Owner:       m.Owner,
		Instrument:  models.Instrument{Symbol: m.Symbol, Segment: models.Segment(m.Segment), Venue: m.Venue},
		Kind:        models.AlertKind(m.Kind),
		TargetPrice: m.TargetPrice,
		Message:     m.Message,
		Status:      models.AlertStatus(m.Status),
		Notify:      m.Notify,
		Destination: m.Destination,
		CreatedAt:   m.CreatedAt,
		TriggeredAt: m.TriggeredAt,
	}
}

func alertsFromModels(rows []PriceAlertModel) []models.Alert {
	out := make([]models.Alert, 0, len(rows))
	for _, m := range rows {
		out = append(out, alertFromModel(m))
	}
	return out
}
