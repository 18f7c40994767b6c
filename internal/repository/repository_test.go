package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/ecovision/internal/classification"
)

func newLog(id, category string, confidence, reward int, offline bool, latency int64) *ClassificationLog {
	return &ClassificationLog{
		RequestID:   id,
		Category:    category,
		Confidence:  confidence,
		Tips:        StringList{"a", "b"},
		BudsReward:  reward,
		OfflineMode: offline,
		LatencyMs:   latency,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestMemoryStoreSaveAndFind(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	if err := store.SaveLog(ctx, newLog("req-1", "recycle", 90, 12, false, 100)); err != nil {
		t.Fatalf("expected save to succeed, got %v", err)
	}
	if err := store.SaveLog(ctx, newLog("req-1", "recycle", 90, 12, false, 100)); err == nil {
		t.Fatal("expected duplicate request id to be rejected")
	}

	found, err := store.FindByRequestID(ctx, "req-1")
	if err != nil {
		t.Fatalf("expected entry, got %v", err)
	}
	if found.Category != "recycle" || found.BudsReward != 12 {
		t.Fatalf("unexpected entry: %+v", found)
	}

	if _, err := store.FindByRequestID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreEvictsOldestAndListsNewestFirst(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()
	for i := 1; i <= 4; i++ {
		if err := store.SaveLog(ctx, newLog(fmt.Sprintf("req-%d", i), "landfill", 60, 6, true, 10)); err != nil {
			t.Fatalf("save %d failed: %v", i, err)
		}
	}

	if _, err := store.FindByRequestID(ctx, "req-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected req-1 to be evicted, got %v", err)
	}

	recent, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(recent) != 2 || recent[0].RequestID != "req-4" || recent[1].RequestID != "req-3" {
		t.Fatalf("unexpected order: %+v", recent)
	}
}

func TestMemoryStoreAggregateMetrics(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()
	_ = store.SaveLog(ctx, newLog("a", "recycle", 90, 12, false, 200))
	_ = store.SaveLog(ctx, newLog("b", "compost", 80, 16, true, 100))
	_ = store.SaveLog(ctx, newLog("c", "compost", 70, 17, true, 0))

	agg, err := store.AggregateMetrics(ctx)
	if err != nil {
		t.Fatalf("aggregate failed: %v", err)
	}
	if agg.TotalCount != 3 || agg.OfflineCount != 2 || agg.TotalBuds != 45 {
		t.Fatalf("unexpected totals: %+v", agg)
	}
	if agg.AverageConfidence != 80 || agg.AverageLatencyMs != 100 {
		t.Fatalf("unexpected averages: %+v", agg)
	}
	if agg.CategoryCounts["compost"] != 2 || agg.CategoryCounts["recycle"] != 1 {
		t.Fatalf("unexpected category counts: %v", agg.CategoryCounts)
	}
}

func TestStringListRoundTrip(t *testing.T) {
	value, err := StringList{"rinse", "flatten"}.Value()
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}
	var scanned StringList
	if err := scanned.Scan([]byte(value.(string))); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(scanned) != 2 || scanned[1] != "flatten" {
		t.Fatalf("unexpected list: %v", scanned)
	}
	if err := scanned.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestClassificationLogResult(t *testing.T) {
	result := classification.Result{
		Category:   classification.CategoryCompost,
		Confidence: 80,
		Details:    "banana peel",
		Tips:       []string{"compost it"},
		BudsReward: 16,
	}
	log := NewClassificationLog("req", "hash", result, 1500*time.Millisecond, time.Now())
	if log.LatencyMs != 1500 {
		t.Fatalf("expected latency 1500ms, got %d", log.LatencyMs)
	}
	back := log.Result()
	if back.Category != result.Category || back.BudsReward != 16 || back.Tips[0] != "compost it" {
		t.Fatalf("unexpected result: %+v", back)
	}
}
