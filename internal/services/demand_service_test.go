package services

import (
	"context"
	"testing"
	"time"

	"ridematch/internal/models"
)

func TestMemoryDemandTracker(t *testing.T) {
	ctx := context.Background()
	tracker := NewMemoryDemandTracker(testZones(t), time.Hour)

	lat, lng := bangalorePickup.Lat, bangalorePickup.Lng
	since := testNow.Add(-time.Hour)

	_ = tracker.RecordRequest(ctx, "p1", lat, lng, testNow)
	_ = tracker.RecordRequest(ctx, "p1", lat, lng, testNow.Add(time.Minute))
	_ = tracker.RecordRequest(ctx, "p2", lat, lng, testNow)
	_ = tracker.RecordRequest(ctx, "p3", lat, lng, testNow.Add(-2*time.Hour))
	_ = tracker.RecordRequest(ctx, "p4", bangaloreDrop.Lat, bangaloreDrop.Lng, testNow)

	_ = tracker.RecordAvailability(ctx, models.DriverAvailability{DriverID: "d1", Online: true, Lat: lat, Lng: lng}, testNow)

	requesters, capacity, err := tracker.DemandSupply(ctx, lat, lng, since)
	if err != nil {
		t.Fatalf("DemandSupply() error = %v", err)
	}
	if requesters != 2 || capacity != 1 {
		t.Errorf("DemandSupply() = %d, %d; want 2 requesters and 1 driver", requesters, capacity)
	}

	// moving zones removes the driver from the old one
	_ = tracker.RecordAvailability(ctx, models.DriverAvailability{DriverID: "d1", Online: true, Lat: bangaloreDrop.Lat, Lng: bangaloreDrop.Lng}, testNow)
	if _, capacity, _ = tracker.DemandSupply(ctx, lat, lng, since); capacity != 0 {
		t.Errorf("old zone capacity = %d, want 0", capacity)
	}
	if _, capacity, _ = tracker.DemandSupply(ctx, bangaloreDrop.Lat, bangaloreDrop.Lng, since); capacity != 1 {
		t.Errorf("new zone capacity = %d, want 1", capacity)
	}

	_ = tracker.RecordAvailability(ctx, models.DriverAvailability{DriverID: "d1", Online: false}, testNow)
	if _, capacity, _ = tracker.DemandSupply(ctx, bangaloreDrop.Lat, bangaloreDrop.Lng, since); capacity != 0 {
		t.Errorf("capacity after going offline = %d, want 0", capacity)
	}
}
