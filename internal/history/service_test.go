package history_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/history"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(repo history.Repository, maxEntries int) *history.Service {
	c := &clock{t: time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)}
	return history.NewService(history.ServiceConfig{
		Repository: repo,
		Logger:     zerolog.Nop(),
		MaxEntries: maxEntries,
		Now:        c.now,
	})
}

func sample(userID, origin string) history.Entry {
	return history.Entry{
		UserID:      userID,
		Origin:      history.Location{Text: origin, Lat: 37.7599, Lon: -122.4148},
		Destination: history.Location{Text: "Ferry Building", Lat: 37.7955, Lon: -122.3937},
		Mode:        "walking",
		SafetyScore: 72.4,
		Grade:       "C",
	}
}

func TestService_Record(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)
	ctx := context.Background()

	entry, err := svc.Record(ctx, sample("user123", "Mission Dolores Park"))
	if err != nil {
		t.Fatalf("failed to record entry: %v", err)
	}
	if !strings.HasPrefix(entry.ID, "hst_") {
		t.Errorf("expected ID to start with 'hst_', got %q", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	entries, err := svc.List(ctx, "user123", 0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Origin.Text != "Mission Dolores Park" {
		t.Errorf("unexpected origin %q", entries[0].Origin.Text)
	}
}

func TestService_Record_RequiresUser(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)

	_, err := svc.Record(context.Background(), sample("", "x"))
	if !errors.Is(err, history.ErrMissingUser) {
		t.Errorf("expected ErrMissingUser, got %v", err)
	}
}

func TestService_List_NewestFirst(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)
	ctx := context.Background()

	for _, o := range []string{"first", "second", "third"} {
		if _, err := svc.Record(ctx, sample("user123", o)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	entries, err := svc.List(ctx, "user123", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Origin.Text != "third" || entries[1].Origin.Text != "second" {
		t.Errorf("unexpected order: %q, %q", entries[0].Origin.Text, entries[1].Origin.Text)
	}
}

func TestService_Record_TrimsToCap(t *testing.T) {
	repo := history.NewInMemoryRepository()
	svc := newService(repo, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Record(ctx, sample("user123", string(rune('a'+i)))); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	all, err := repo.List(ctx, "user123", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 stored entries, got %d", len(all))
	}
	if all[0].Origin.Text != "e" || all[2].Origin.Text != "c" {
		t.Errorf("expected newest entries e..c, got %q..%q", all[0].Origin.Text, all[2].Origin.Text)
	}

	entries, err := svc.List(ctx, "user123", 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected limit clamped to cap, got %d entries", len(entries))
	}
}

func TestService_UsersAreIsolated(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)
	ctx := context.Background()

	a, _ := svc.Record(ctx, sample("alice", "a"))
	_, _ = svc.Record(ctx, sample("bob", "b"))

	if err := svc.Delete(ctx, "bob", a.ID); !errors.Is(err, history.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound deleting another user's entry, got %v", err)
	}

	entries, _ := svc.List(ctx, "alice", 0)
	if len(entries) != 1 {
		t.Errorf("expected alice's entry to remain, got %d", len(entries))
	}
}

func TestService_Delete(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)
	ctx := context.Background()

	first, _ := svc.Record(ctx, sample("user123", "first"))
	_, _ = svc.Record(ctx, sample("user123", "second"))

	if err := svc.Delete(ctx, "user123", first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := svc.Delete(ctx, "user123", first.ID); !errors.Is(err, history.ErrEntryNotFound) {
		t.Errorf("expected ErrEntryNotFound on second delete, got %v", err)
	}

	entries, _ := svc.List(ctx, "user123", 0)
	if len(entries) != 1 || entries[0].Origin.Text != "second" {
		t.Errorf("unexpected remaining entries: %+v", entries)
	}
}

func TestService_Clear(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)
	ctx := context.Background()

	_, _ = svc.Record(ctx, sample("user123", "a"))
	_, _ = svc.Record(ctx, sample("user123", "b"))
	_, _ = svc.Record(ctx, sample("other", "c"))

	n, err := svc.Clear(ctx, "user123")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}

	entries, _ := svc.List(ctx, "user123", 0)
	if len(entries) != 0 {
		t.Errorf("expected empty history, got %d", len(entries))
	}
	others, _ := svc.List(ctx, "other", 0)
	if len(others) != 1 {
		t.Errorf("expected other user's history untouched, got %d", len(others))
	}
}

type failingTrimRepo struct {
	*history.InMemoryRepository
}

func (f failingTrimRepo) Trim(context.Context, string, int) error {
	return errors.New("trim failed")
}

func TestService_Record_TrimFailureIsNotFatal(t *testing.T) {
	svc := newService(failingTrimRepo{history.NewInMemoryRepository()}, 1)

	if _, err := svc.Record(context.Background(), sample("user123", "a")); err != nil {
		t.Fatalf("expected record to succeed despite trim failure, got %v", err)
	}
}

func TestService_MaxEntriesDefault(t *testing.T) {
	svc := newService(history.NewInMemoryRepository(), 0)
	if svc.MaxEntries() != history.DefaultMaxEntries {
		t.Errorf("expected default cap %d, got %d", history.DefaultMaxEntries, svc.MaxEntries())
	}
}
