package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/andresmejia3/lookout/internal/types"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Skipf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("lookout_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close()

	// --- Test Scenarios ---

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	events := []types.AlertEvent{
		{ID: uuid.New(), Identity: "alice", Label: "SUSPECT: alice (0.91)", Similarity: 0.91,
			Box: types.BoundingBox{X1: 10, Y1: 20, X2: 110, Y2: 140}, FiredAt: base},
		{ID: uuid.New(), Identity: "bob", Label: "SUSPECT: bob (0.72)", Similarity: 0.72, FiredAt: base.Add(time.Minute)},
		{ID: uuid.New(), Identity: "alice", Label: "SUSPECT: alice (0.88)", Similarity: 0.88, FiredAt: base.Add(2 * time.Minute)},
	}
	for _, ev := range events {
		if err := s.Send(ctx, ev); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	// Duplicate delivery must not create a second row
	if err := s.InsertAlert(ctx, events[0]); err != nil {
		t.Fatalf("Duplicate InsertAlert failed: %v", err)
	}

	recent, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(recent))
	}
	if recent[0].ID != events[2].ID || recent[2].ID != events[0].ID {
		t.Errorf("Expected newest first, got %v, %v, %v", recent[0].ID, recent[1].ID, recent[2].ID)
	}
	if b := recent[2].Box; b.X1 != 10 || b.Y2 != 140 {
		t.Errorf("Box not persisted: %+v", b)
	}
	if !recent[2].FiredAt.Equal(base) {
		t.Errorf("Expected fired_at %v, got %v", base, recent[2].FiredAt)
	}

	limited, err := s.Recent(ctx, 1)
	if err != nil || len(limited) != 1 {
		t.Fatalf("Expected 1 event with limit 1, got %d (%v)", len(limited), err)
	}

	counts, err := s.CountByIdentity(ctx)
	if err != nil {
		t.Fatalf("CountByIdentity failed: %v", err)
	}
	if len(counts) != 2 || counts[0].Identity != "alice" || counts[0].Count != 2 {
		t.Errorf("Unexpected counts: %+v", counts)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.Recent(ctx, 10); err == nil {
		t.Error("Expected query against dropped table to fail")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
