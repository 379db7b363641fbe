package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ridematch/internal/models"
	"ridematch/internal/utils"
	"ridematch/pkg/cache"
)

// DemandTracker keeps per-zone windows of active requesters and online
// drivers. It is the source behind the demand signal.
type DemandTracker interface {
	RecordRequest(ctx context.Context, passengerID string, lat, lng float64, at time.Time) error
	RecordAvailability(ctx context.Context, availability models.DriverAvailability, at time.Time) error
	DemandSupply(ctx context.Context, lat, lng float64, since time.Time) (requesters, capacity int64, err error)
}

func requestersKey(zoneID string) string { return "demand:requesters:" + zoneID }
func capacityKey(zoneID string) string   { return "demand:capacity:" + zoneID }
func driverZoneKey(driverID string) string {
	return "demand:driver_zone:" + driverID
}

type redisDemandTracker struct {
	cache  *cache.RedisCache
	zones  *utils.ZoneIndex
	window time.Duration
}

func NewRedisDemandTracker(c *cache.RedisCache, zones *utils.ZoneIndex, window time.Duration) DemandTracker {
	return &redisDemandTracker{cache: c, zones: zones, window: window}
}

func (t *redisDemandTracker) RecordRequest(ctx context.Context, passengerID string, lat, lng float64, at time.Time) error {
	zoneID := t.zones.ZoneOf(lat, lng)
	if err := t.cache.ZAddWindow(ctx, requestersKey(zoneID), passengerID, at, t.window); err != nil {
		return fmt.Errorf("failed to record demand in zone %s: %w", zoneID, err)
	}
	return nil
}

// RecordAvailability moves the driver between zone capacity sets. Going
// offline removes the driver from the last zone it reported.
func (t *redisDemandTracker) RecordAvailability(ctx context.Context, a models.DriverAvailability, at time.Time) error {
	previous, err := t.cache.GetString(ctx, driverZoneKey(a.DriverID))
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		return fmt.Errorf("failed to read driver zone: %w", err)
	}

	zoneID := t.zones.ZoneOf(a.Lat, a.Lng)
	if previous != "" && (previous != zoneID || !a.Online) {
		if err := t.cache.ZRem(ctx, capacityKey(previous), a.DriverID); err != nil {
			return fmt.Errorf("failed to clear driver from zone %s: %w", previous, err)
		}
	}

	if !a.Online {
		return t.cache.Delete(ctx, driverZoneKey(a.DriverID))
	}

	if err := t.cache.ZAddWindow(ctx, capacityKey(zoneID), a.DriverID, at, t.window); err != nil {
		return fmt.Errorf("failed to record capacity in zone %s: %w", zoneID, err)
	}
	return t.cache.SetString(ctx, driverZoneKey(a.DriverID), zoneID, t.window)
}

func (t *redisDemandTracker) DemandSupply(ctx context.Context, lat, lng float64, since time.Time) (int64, int64, error) {
	zoneID := t.zones.ZoneOf(lat, lng)

	requesters, err := t.cache.ZCountSince(ctx, requestersKey(zoneID), since)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count requesters: %w", err)
	}
	capacity, err := t.cache.ZCountSince(ctx, capacityKey(zoneID), since)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count capacity: %w", err)
	}
	return requesters, capacity, nil
}

// memoryDemandTracker is the single-process variant used without Redis.
type memoryDemandTracker struct {
	mu         sync.Mutex
	zones      *utils.ZoneIndex
	window     time.Duration
	requesters map[string]map[string]time.Time
	capacity   map[string]map[string]time.Time
	driverZone map[string]string
}

func NewMemoryDemandTracker(zones *utils.ZoneIndex, window time.Duration) DemandTracker {
	return &memoryDemandTracker{
		zones:      zones,
		window:     window,
		requesters: make(map[string]map[string]time.Time),
		capacity:   make(map[string]map[string]time.Time),
		driverZone: make(map[string]string),
	}
}

func (t *memoryDemandTracker) RecordRequest(ctx context.Context, passengerID string, lat, lng float64, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.add(t.requesters, t.zones.ZoneOf(lat, lng), passengerID, at)
	return nil
}

func (t *memoryDemandTracker) RecordAvailability(ctx context.Context, a models.DriverAvailability, at time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	zoneID := t.zones.ZoneOf(a.Lat, a.Lng)
	if previous, ok := t.driverZone[a.DriverID]; ok && (previous != zoneID || !a.Online) {
		delete(t.capacity[previous], a.DriverID)
	}

	if !a.Online {
		delete(t.driverZone, a.DriverID)
		return nil
	}

	t.add(t.capacity, zoneID, a.DriverID, at)
	t.driverZone[a.DriverID] = zoneID
	return nil
}

func (t *memoryDemandTracker) DemandSupply(ctx context.Context, lat, lng float64, since time.Time) (int64, int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	zoneID := t.zones.ZoneOf(lat, lng)
	return countSince(t.requesters[zoneID], since), countSince(t.capacity[zoneID], since), nil
}

func (t *memoryDemandTracker) add(sets map[string]map[string]time.Time, zoneID, member string, at time.Time) {
	set, ok := sets[zoneID]
	if !ok {
		set = make(map[string]time.Time)
		sets[zoneID] = set
	}
	set[member] = at

	cutoff := at.Add(-t.window)
	for m, seen := range set {
		if seen.Before(cutoff) {
			delete(set, m)
		}
	}
}

func countSince(set map[string]time.Time, since time.Time) int64 {
	var n int64
	for _, seen := range set {
		if !seen.Before(since) {
			n++
		}
	}
	return n
}
