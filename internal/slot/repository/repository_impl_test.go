package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
	slotrepo "github.com/mentorlane/mentorlane/internal/slot/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db   *gorm.DB
	node *snowflake.Node
	repo slotdomain.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return &fixture{db: db, node: node, repo: slotrepo.Provide()}
}

func (f *fixture) seedWindow(t *testing.T, expertID snowflake.ID, start, end time.Time, closed bool) {
	t.Helper()
	if err := f.db.Create(&slotdomain.AvailabilityWindow{
		ID:        f.node.Generate(),
		ExpertID:  expertID,
		StartAt:   start,
		EndAt:     end,
		Closed:    closed,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}).Error; err != nil {
		t.Fatalf("seed window: %v", err)
	}
}

func (f *fixture) seedSlot(t *testing.T, expertID snowflake.ID, start time.Time, capacity, taken int) *slotdomain.TimeSlot {
	t.Helper()
	slot := &slotdomain.TimeSlot{
		ID:              f.node.Generate(),
		OfferingID:      f.node.Generate(),
		ExpertID:        expertID,
		StartAt:         start,
		EndAt:           start.Add(time.Hour),
		MaxBookings:     capacity,
		CurrentBookings: taken,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
	if err := f.db.Create(slot).Error; err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

func (f *fixture) counter(t *testing.T, id snowflake.ID) int {
	t.Helper()
	var count int
	if err := f.db.Raw(`SELECT current_bookings FROM time_slots WHERE id = ?`, id).Scan(&count).Error; err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return count
}

func TestReserveConsumesCapacity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expertID := f.node.Generate()
	f.seedWindow(t, expertID, baseTime, baseTime.Add(72*time.Hour), false)
	slot := f.seedSlot(t, expertID, baseTime.Add(24*time.Hour), 2, 0)

	if err := f.repo.Reserve(ctx, f.db, slot.ID); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := f.repo.Reserve(ctx, f.db, slot.ID); err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if err := f.repo.Reserve(ctx, f.db, slot.ID); !errors.Is(err, slotdomain.ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable at capacity, got %v", err)
	}
	if got := f.counter(t, slot.ID); got != 2 {
		t.Fatalf("expected counter capped at 2, got %d", got)
	}
}

func TestReserveRequiresOpenWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expertID := f.node.Generate()

	t.Run("no window at all", func(t *testing.T) {
		slot := f.seedSlot(t, expertID, baseTime.Add(24*time.Hour), 1, 0)
		if err := f.repo.Reserve(ctx, f.db, slot.ID); !errors.Is(err, slotdomain.ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
	})

	t.Run("window closed", func(t *testing.T) {
		closedExpert := f.node.Generate()
		f.seedWindow(t, closedExpert, baseTime, baseTime.Add(72*time.Hour), true)
		slot := f.seedSlot(t, closedExpert, baseTime.Add(24*time.Hour), 1, 0)
		if err := f.repo.Reserve(ctx, f.db, slot.ID); !errors.Is(err, slotdomain.ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
	})

	t.Run("slot range sticks out of the window", func(t *testing.T) {
		partialExpert := f.node.Generate()
		f.seedWindow(t, partialExpert, baseTime, baseTime.Add(24*time.Hour+30*time.Minute), false)
		slot := f.seedSlot(t, partialExpert, baseTime.Add(24*time.Hour), 1, 0)
		if err := f.repo.Reserve(ctx, f.db, slot.ID); !errors.Is(err, slotdomain.ErrSlotUnavailable) {
			t.Fatalf("expected ErrSlotUnavailable, got %v", err)
		}
	})
}

func TestReleaseFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expertID := f.node.Generate()
	slot := f.seedSlot(t, expertID, baseTime.Add(24*time.Hour), 2, 1)

	if err := f.repo.Release(ctx, f.db, slot.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := f.repo.Release(ctx, f.db, slot.ID); err != nil {
		t.Fatalf("release at zero: %v", err)
	}
	if got := f.counter(t, slot.ID); got != 0 {
		t.Fatalf("expected counter floored at 0, got %d", got)
	}
}

func TestListAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expertID := f.node.Generate()
	offeringID := f.node.Generate()

	seed := func(start time.Time, capacity, taken int) {
		if err := f.db.Create(&slotdomain.TimeSlot{
			ID:              f.node.Generate(),
			OfferingID:      offeringID,
			ExpertID:        expertID,
			StartAt:         start,
			EndAt:           start.Add(time.Hour),
			MaxBookings:     capacity,
			CurrentBookings: taken,
			CreatedAt:       baseTime,
			UpdatedAt:       baseTime,
		}).Error; err != nil {
			t.Fatalf("seed slot: %v", err)
		}
	}

	seed(baseTime.Add(-24*time.Hour), 2, 0) // in the past
	seed(baseTime.Add(24*time.Hour), 1, 1)  // full
	seed(baseTime.Add(48*time.Hour), 2, 1)  // open
	seed(baseTime.Add(24*time.Hour), 2, 0)  // open, earlier

	items, err := f.repo.ListAvailable(ctx, f.db, offeringID, baseTime)
	if err != nil {
		t.Fatalf("list available: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 open future slots, got %d", len(items))
	}
	if !items[0].StartAt.Before(items[1].StartAt) {
		t.Fatalf("expected ascending start order")
	}
}

func TestReleaseOrphans(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	expertID := f.node.Generate()
	orphaned := f.seedSlot(t, expertID, baseTime.Add(24*time.Hour), 3, 2)
	consistent := f.seedSlot(t, expertID, baseTime.Add(48*time.Hour), 3, 1)

	// One live booking backs the consistent slot's counter.
	if err := f.db.Exec(
		`INSERT INTO bookings
		   (id, learner_id, expert_id, offering_id, slot_id, start_at, end_at,
		    status, payment_status, amount_authorized, currency, held_until, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'awaiting_approval', 'authorized', 10000, 'USD', ?, ?, ?)`,
		f.node.Generate(), f.node.Generate(), expertID, consistent.OfferingID, consistent.ID,
		consistent.StartAt, consistent.EndAt, baseTime.Add(30*time.Minute), baseTime, baseTime,
	).Error; err != nil {
		t.Fatalf("seed booking: %v", err)
	}

	corrected, err := f.repo.ReleaseOrphans(ctx, f.db, 10)
	if err != nil {
		t.Fatalf("release orphans: %v", err)
	}
	if corrected != 1 {
		t.Fatalf("expected 1 corrected slot, got %d", corrected)
	}
	if got := f.counter(t, orphaned.ID); got != 0 {
		t.Fatalf("expected orphaned counter reset, got %d", got)
	}
	if got := f.counter(t, consistent.ID); got != 1 {
		t.Fatalf("expected consistent counter untouched, got %d", got)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_slots_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE availability_windows (
			id INTEGER PRIMARY KEY,
			expert_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE time_slots (
			id INTEGER PRIMARY KEY,
			offering_id INTEGER NOT NULL,
			expert_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			max_bookings INTEGER NOT NULL,
			current_bookings INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE bookings (
			id INTEGER PRIMARY KEY,
			learner_id INTEGER NOT NULL,
			expert_id INTEGER NOT NULL,
			offering_id INTEGER NOT NULL,
			slot_id INTEGER NOT NULL,
			start_at DATETIME NOT NULL,
			end_at DATETIME NOT NULL,
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			amount_authorized INTEGER NOT NULL,
			amount_captured INTEGER NOT NULL DEFAULT 0,
			amount_refunded INTEGER NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			payment_intent_id TEXT NOT NULL DEFAULT '',
			held_until DATETIME NOT NULL,
			learner_notes TEXT NOT NULL DEFAULT '',
			expert_notes TEXT NOT NULL DEFAULT '',
			declined_reason TEXT NOT NULL DEFAULT '',
			cancelled_by TEXT NOT NULL DEFAULT '',
			cancellation_reason TEXT NOT NULL DEFAULT '',
			approved_at DATETIME,
			declined_at DATETIME,
			cancelled_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
