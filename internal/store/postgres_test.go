package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xerxes-systems/xerxes-bridge/internal/model"
)

// setupTestDatabase creates a PostgreSQL testcontainer and runs migrations.
func setupTestDatabase(t *testing.T) (*Postgres, func()) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("xerxes_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	if err := runMigrations(connStr); err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	pg, err := NewPostgres(ctx, connStr)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		pg.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}
	return pg, cleanup
}

func runMigrations(connStr string) error {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	migrationPath := filepath.Join("..", "..", "migrations", "001_init.up.sql")
	migrationSQL, err := os.ReadFile(migrationPath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

func TestPostgres_AppendRecordIdempotent(t *testing.T) {
	pg, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := &model.CanonicalRecord{
		CanonicalID:  "42",
		TS:           ts,
		Measurements: map[string]float64{"temp": 21.5, "rh": 48.0},
		Meta:         map[string]any{"version": "1.2.0"},
		Provenance:   model.Provenance{SourceIP: "10.0.0.7", Origin: "device", ReceivedAt: ts},
	}

	inserted, err := pg.AppendRecord(ctx, rec)
	if err != nil {
		t.Fatalf("AppendRecord() error = %v", err)
	}
	if !inserted {
		t.Fatal("first AppendRecord() should insert")
	}

	inserted, err = pg.AppendRecord(ctx, rec)
	if err != nil {
		t.Fatalf("duplicate AppendRecord() error = %v", err)
	}
	if inserted {
		t.Fatal("duplicate AppendRecord() must be a no-op")
	}

	n, err := pg.CountRecords(ctx, "42", nil)
	if err != nil {
		t.Fatalf("CountRecords() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountRecords() = %d, want 1", n)
	}
}

func TestPostgres_DeviceLifecycle(t *testing.T) {
	pg, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	battery := 3.9
	csq := 18

	err := pg.UpsertDevice(ctx, model.DeviceUpdate{
		CanonicalID: "42",
		Alias:       "sensor-42",
		SeenTS:      first,
		SeenIP:      "10.0.0.1",
		Real:        true,
		RealTS:      &first,
		BatteryV:    &battery,
		FWVersion:   "1.0.0",
		CSQ:         &csq,
	})
	if err != nil {
		t.Fatalf("UpsertDevice() error = %v", err)
	}

	// Synthetic sighting under another alias: bookkeeping moves, real
	// fields hold.
	err = pg.UpsertDevice(ctx, model.DeviceUpdate{
		CanonicalID: "42",
		Alias:       "SENSOR-42",
		SeenTS:      second,
		SeenIP:      "10.0.0.2",
		Real:        false,
		FWVersion:   "9.9.9", // must be ignored for non-real updates
	})
	if err != nil {
		t.Fatalf("second UpsertDevice() error = %v", err)
	}

	dev, err := pg.GetDevice(ctx, "42")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}

	if !dev.FirstSeen.Equal(first) {
		t.Errorf("FirstSeen = %v, want %v (immutable)", dev.FirstSeen, first)
	}
	if !dev.LastSeenTS.Equal(second) {
		t.Errorf("LastSeenTS = %v, want %v", dev.LastSeenTS, second)
	}
	if dev.LastSeenIP != "10.0.0.2" {
		t.Errorf("LastSeenIP = %q, want 10.0.0.2", dev.LastSeenIP)
	}
	if len(dev.Aliases) != 2 || dev.Aliases[0] != "SENSOR-42" || dev.Aliases[1] != "sensor-42" {
		t.Errorf("Aliases = %v, want [SENSOR-42 sensor-42]", dev.Aliases)
	}
	if dev.LastRealTS == nil || !dev.LastRealTS.Equal(first) {
		t.Errorf("LastRealTS = %v, want %v", dev.LastRealTS, first)
	}
	if dev.BatteryV == nil || *dev.BatteryV != 3.9 {
		t.Errorf("BatteryV = %v, want 3.9", dev.BatteryV)
	}
	if dev.FWVersion != "1.0.0" {
		t.Errorf("FWVersion = %q, want 1.0.0 (non-real update ignored)", dev.FWVersion)
	}
	if dev.CSQ == nil || *dev.CSQ != 18 {
		t.Errorf("CSQ = %v, want 18", dev.CSQ)
	}
}

func TestPostgres_ConcurrentUpsertsKeepEveryAlias(t *testing.T) {
	pg, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	const writers = 16

	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- pg.UpsertDevice(ctx, model.DeviceUpdate{
				CanonicalID: "42",
				Alias:       fmt.Sprintf("sensor-42-fw%02d", i),
				SeenTS:      base.Add(time.Duration(i) * time.Second),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpsertDevice() error = %v", err)
		}
	}

	dev, err := pg.GetDevice(ctx, "42")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if len(dev.Aliases) != writers {
		t.Errorf("aliases = %d, want %d; single-statement upsert must not lose concurrent aliases", len(dev.Aliases), writers)
	}
}

func TestPostgres_GetDeviceNotFound(t *testing.T) {
	pg, cleanup := setupTestDatabase(t)
	defer cleanup()

	if _, err := pg.GetDevice(context.Background(), "nope"); err != ErrDeviceNotFound {
		t.Errorf("GetDevice() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestPostgres_LastCanonical(t *testing.T) {
	pg, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, ts := range []time.Time{base, base.Add(time.Minute), base.Add(-2 * time.Hour)} {
		if _, err := pg.AppendRecord(ctx, &model.CanonicalRecord{
			CanonicalID:  "42",
			TS:           ts,
			Measurements: map[string]float64{"temp": 1},
			Meta:         map[string]any{},
		}); err != nil {
			t.Fatalf("AppendRecord() error = %v", err)
		}
	}

	last, err := pg.LastCanonical(ctx, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("LastCanonical() error = %v", err)
	}
	got, ok := last["42"]
	if !ok {
		t.Fatal("LastCanonical() missing device 42")
	}
	if !got.Equal(base.Add(time.Minute)) {
		t.Errorf("LastCanonical()[42] = %v, want newest %v", got, base.Add(time.Minute))
	}
}

func TestPostgres_KeysAudit(t *testing.T) {
	pg, cleanup := setupTestDatabase(t)
	defer cleanup()
	ctx := context.Background()

	err := pg.RecordKeysAudit(ctx, model.KeysAudit{
		CanonicalID: "42",
		TS:          time.Now().UTC(),
		RawKeys:     []string{"status", "temp"},
		StoredKeys:  []string{"temp"},
		DroppedKeys: []string{"status"},
	})
	if err != nil {
		t.Fatalf("RecordKeysAudit() error = %v", err)
	}

	// Empty drop list is still a row.
	err = pg.RecordKeysAudit(ctx, model.KeysAudit{
		CanonicalID: "42",
		TS:          time.Now().UTC(),
		RawKeys:     []string{"temp"},
		StoredKeys:  []string{"temp"},
	})
	if err != nil {
		t.Fatalf("RecordKeysAudit() with no drops error = %v", err)
	}
}
