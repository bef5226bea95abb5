package profilestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"cityPerksAPI/internal/clock"
)

func newMemory() (*Memory, uuid.UUID) {
	m := NewMemory(&clock.Fixed{Current: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)})
	id := uuid.New()
	m.CreateUser(id)
	return m, id
}

func TestLoadProfileUnknownUser(t *testing.T) {
	m, _ := newMemory()

	if _, _, err := m.LoadProfile(context.Background(), uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}

func TestLoadProfileLazyZeroState(t *testing.T) {
	m, id := newMemory()

	p, version, err := m.LoadProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0 for an unsaved aggregate", version)
	}
	if p.UserID != id || p.TotalXP != 0 {
		t.Errorf("zero state = %+v", p)
	}
}

func TestSaveProfileRoundTrip(t *testing.T) {
	m, id := newMemory()
	ctx := context.Background()

	p, version, err := m.LoadProfile(ctx, id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	p.TotalXP = 75
	if err := m.SaveProfile(ctx, p, version); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	p2, version2, err := m.LoadProfile(ctx, id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p2.TotalXP != 75 {
		t.Errorf("TotalXP = %d, want 75", p2.TotalXP)
	}
	if version2 != 1 {
		t.Errorf("version after save = %d, want 1", version2)
	}
}

func TestSaveProfileStaleVersion(t *testing.T) {
	m, id := newMemory()
	ctx := context.Background()

	p, version, err := m.LoadProfile(ctx, id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if err := m.SaveProfile(ctx, p, version); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	// A second writer holding the old version must lose.
	if err := m.SaveProfile(ctx, p, version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale save error = %v, want ErrVersionConflict", err)
	}
}

func TestSaveProfileUnknownUser(t *testing.T) {
	m, id := newMemory()
	ctx := context.Background()

	p, _, err := m.LoadProfile(ctx, id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	p.UserID = uuid.New()
	if err := m.SaveProfile(ctx, p, 0); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}

func TestGraphVersionContract(t *testing.T) {
	m, id := newMemory()
	ctx := context.Background()

	g, version, err := m.LoadGraph(ctx, id)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if version != 0 {
		t.Errorf("version = %d, want 0", version)
	}

	g.Stats.WeeklyXP = 30
	if err := m.SaveGraph(ctx, g, version); err != nil {
		t.Fatalf("SaveGraph: %v", err)
	}
	if err := m.SaveGraph(ctx, g, version); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale save error = %v, want ErrVersionConflict", err)
	}

	g2, version2, err := m.LoadGraph(ctx, id)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if g2.Stats.WeeklyXP != 30 || version2 != 1 {
		t.Errorf("reloaded graph WeeklyXP=%d version=%d, want 30/1", g2.Stats.WeeklyXP, version2)
	}
}

func TestSavedDocumentIsDetached(t *testing.T) {
	m, id := newMemory()
	ctx := context.Background()

	p, version, err := m.LoadProfile(ctx, id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	p.TotalXP = 10
	if err := m.SaveProfile(ctx, p, version); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}

	// Mutating the saved pointer must not leak into the store.
	p.TotalXP = 999

	p2, _, err := m.LoadProfile(ctx, id)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if p2.TotalXP != 10 {
		t.Errorf("TotalXP = %d, want 10 (store shares state with callers)", p2.TotalXP)
	}
}
