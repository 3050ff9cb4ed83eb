package products

import (
	"context"
	"time"

	"github.com/odyssey-erp/ledgersync/internal/settings"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// SyncResult counts the master fields touched by one Sync.
type SyncResult struct {
	Rates int
	Units int
}

// RateSync copies the latest purchase rate and unit back onto the item master.
type RateSync struct {
	store    MasterStore
	settings settings.Provider
	now      func() time.Time
}

// NewRateSync constructs a RateSync.
func NewRateSync(store MasterStore, provider settings.Provider, now func() time.Time) *RateSync {
	if now == nil {
		now = time.Now
	}
	return &RateSync{store: store, settings: provider, now: now}
}

// Sync runs for kinds that sync master rates only. Flags are re-read on every call.
func (s *RateSync) Sync(ctx context.Context, profile shared.KindProfile, lines []RateLine) (SyncResult, error) {
	var result SyncResult
	if !profile.SyncsMasterRate || len(lines) == 0 {
		return result, nil
	}
	syncRate, err := settings.Bool(ctx, s.settings, settings.KeyPurchaseUpdateItemRate)
	if err != nil {
		return result, err
	}
	syncUnit, err := settings.Bool(ctx, s.settings, settings.KeyPurchaseUpdateItemUnit)
	if err != nil {
		return result, err
	}
	if !syncRate && !syncUnit {
		return result, nil
	}

	at := s.now().UTC()
	for _, line := range lines {
		if syncRate {
			if err := s.store.UpdateRate(ctx, line.ItemID, line.Rate, at); err != nil {
				return result, err
			}
			result.Rates++
		}
		if syncUnit && line.UnitID != 0 {
			if err := s.store.UpdateUnit(ctx, line.ItemID, line.UnitID, at); err != nil {
				return result, err
			}
			result.Units++
		}
	}
	return result, nil
}
