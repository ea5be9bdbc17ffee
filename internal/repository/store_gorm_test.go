package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err, "failed to open test database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewGormStore(db)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

var btc = models.Instrument{Symbol: "BTC/USDT", Segment: models.SegmentCrypto}

func seedAlert(t *testing.T, s *GormStore, kind models.AlertKind, target float64) models.Alert {
	t.Helper()
	a, err := s.CreateAlert(context.Background(), models.Alert{
		Owner:       "user-1",
		Instrument:  btc,
		Kind:        kind,
		TargetPrice: target,
		Notify:      true,
		Destination: "12345",
	})
	require.NoError(t, err)
	return a
}

func TestGormStore_ListActive(t *testing.T) {
	t.Parallel()
	s := setupStore(t)
	ctx := context.Background()

	above := seedAlert(t, s, models.AlertAbove, 50000)
	below := seedAlert(t, s, models.AlertBelow, 40000)
	seedAlert(t, s, models.AlertManual, 0)

	all, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := s.ListActive(ctx, models.AlertAbove, models.AlertBelow)
	require.NoError(t, err)
	ids := []string{some[0].ID, some[1].ID}
	assert.ElementsMatch(t, []string{above.ID, below.ID}, ids)
	assert.Equal(t, btc, some[0].Instrument)
	assert.Equal(t, models.AlertActive, some[0].Status)
	assert.Nil(t, some[0].TriggeredAt)
}

func TestGormStore_TransitionOnce(t *testing.T) {
	t.Parallel()
	s := setupStore(t)
	ctx := context.Background()
	a := seedAlert(t, s, models.AlertAbove, 50000)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Transition(ctx, a.ID, models.AlertTriggered, at))

	err := s.Transition(ctx, a.ID, models.AlertTriggered, at.Add(time.Minute))
	assert.ErrorIs(t, err, domrepo.ErrStoreConflict)

	got, err := s.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertTriggered, got.Status)
	require.NotNil(t, got.TriggeredAt)
	assert.True(t, at.Equal(*got.TriggeredAt))
	assert.NoError(t, got.Validate())

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	triggered, err := s.ListTriggered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, triggered, 1)
	assert.Equal(t, a.ID, triggered[0].ID)
}

func TestGormStore_TransitionRace(t *testing.T) {
	t.Parallel()
	s := setupStore(t)
	a := seedAlert(t, s, models.AlertAbove, 1)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Transition(context.Background(), a.ID, models.AlertTriggered, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if assert.ErrorIs(t, err, domrepo.ErrStoreConflict) {
				clash++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, clash)
}

func TestGormStore_TransitionMissing(t *testing.T) {
	t.Parallel()
	s := setupStore(t)

	err := s.Transition(context.Background(), "nope", models.AlertTriggered, time.Now())
	assert.ErrorIs(t, err, domrepo.ErrNotFound)

	_, err = s.GetAlert(context.Background(), "nope")
	assert.ErrorIs(t, err, domrepo.ErrNotFound)
}

func TestGormStore_Signals(t *testing.T) {
	t.Parallel()
	s := setupStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendSignal(ctx, models.Signal{
			Instrument:       btc,
			ConditionType:    "RSI Oversold",
			ConditionMessage: "RSI < 30 - Oversold signal",
			EntryPrice:       100 + float64(i),
			StopLoss:         97,
			TargetPrice:      108,
			CreatedAt:        base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := s.ListSignals(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 102.0, got[0].EntryPrice, "newest first")
	assert.NotEmpty(t, got[0].ID)
	assert.Equal(t, btc, got[0].Instrument)
}

func TestGormStore_CacheUpsert(t *testing.T) {
	t.Parallel()
	s := setupStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	v := 3.5

	_, err := s.GetCacheEntry(ctx, "crypto:default:BTC/USDT")
	assert.ErrorIs(t, err, domrepo.ErrCacheMiss)

	entry := models.CacheEntry{
		Key:       "crypto:default:BTC/USDT",
		Series:    models.Series{{Time: now, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: &v}},
		FetchedAt: now,
		ExpiresAt: now.Add(time.Minute),
	}
	require.NoError(t, s.UpsertCacheEntry(ctx, entry))

	entry.Series[0].Close = 1.75
	entry.FetchedAt = now.Add(time.Minute)
	entry.ExpiresAt = now.Add(2 * time.Minute)
	require.NoError(t, s.UpsertCacheEntry(ctx, entry))

	got, err := s.GetCacheEntry(ctx, entry.Key)
	require.NoError(t, err)
	require.Len(t, got.Series, 1)
	assert.Equal(t, 1.75, got.Series[0].Close)
	require.NotNil(t, got.Series[0].Volume)
	assert.Equal(t, 3.5, *got.Series[0].Volume)
	assert.True(t, entry.ExpiresAt.Equal(got.ExpiresAt))

	n, err := s.PruneCache(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGormStore_CreateAlertValidates(t *testing.T) {
	t.Parallel()
	s := setupStore(t)

	_, err := s.CreateAlert(context.Background(), models.Alert{Instrument: btc, Kind: "sideways"})
	assert.Error(t, err)
}
