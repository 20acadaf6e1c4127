package schemarefresh

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/testutil"
)

func testLogger() *logging.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &logging.Logger{Logger: slog.New(handler)}
}

func newTestManager(t *testing.T, w *testutil.World) *Manager {
	t.Helper()
	manager, err := NewManager(context.Background(), Config{
		Executor:    w.Exec,
		Dialect:     w.Dialect,
		Logger:      testLogger(),
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 40 * time.Millisecond,
		Naming:      naming.DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return manager
}

func TestNewManagerBuildsInitialSnapshot(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))

	manager := newTestManager(t, w)
	snapshot := manager.CurrentSnapshot()
	if snapshot == nil {
		t.Fatalf("expected snapshot")
	}
	if snapshot.CatalogVersion != "1:1" {
		t.Fatalf("expected catalog version 1:1, got %q", snapshot.CatalogVersion)
	}
	if _, ok := snapshot.Components["Position"]; !ok {
		t.Fatalf("expected Position component, got %v", snapshot.Components)
	}
	if snapshot.Fingerprint == "" || snapshot.Engine == nil || snapshot.Schema == nil {
		t.Fatalf("snapshot is incomplete: %+v", snapshot)
	}
	if snapshot.Schema.QueryType().Fields()["positionModels"] == nil {
		t.Fatalf("expected positionModels query field")
	}
}

func TestNewManagerEmptyCatalog(t *testing.T) {
	w := testutil.NewWorld(t)

	manager := newTestManager(t, w)
	snapshot := manager.CurrentSnapshot()
	if len(snapshot.Components) != 0 {
		t.Fatalf("expected no components, got %v", snapshot.Components)
	}
	if snapshot.Schema.QueryType().Fields()["models"] == nil {
		t.Fatalf("expected models field on an empty schema")
	}
}

func TestRefreshOnce_NoChange_BacksOff(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	manager := newTestManager(t, w)
	before := manager.CurrentSnapshot()

	interval := manager.minInterval
	manager.refreshOnce(context.Background(), &interval)

	if manager.CurrentSnapshot() != before {
		t.Fatalf("expected snapshot to be kept")
	}
	if interval != 15*time.Millisecond {
		t.Fatalf("expected interval to back off to 15ms, got %s", interval)
	}
}

func TestRefreshOnce_Change_Rebuilds(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	manager := newTestManager(t, w)
	before := manager.CurrentSnapshot()

	w.RegisterModel(t, testutil.Model(t, "Moves", "#player:ContractAddress", "remaining:u8"))
	interval := manager.maxInterval
	manager.refreshOnce(context.Background(), &interval)

	after := manager.CurrentSnapshot()
	if after == before {
		t.Fatalf("expected a new snapshot")
	}
	if after.CatalogVersion != "2:2" {
		t.Fatalf("expected catalog version 2:2, got %q", after.CatalogVersion)
	}
	if after.Components["Position"] != before.Components["Position"] {
		t.Fatalf("expected unchanged Position digest")
	}
	if after.Schema.QueryType().Fields()["movesModels"] == nil {
		t.Fatalf("expected movesModels query field")
	}
	if interval != manager.minInterval {
		t.Fatalf("expected interval reset to %s, got %s", manager.minInterval, interval)
	}
}

func TestRefreshOnce_UnreadableCatalogKeepsSnapshot(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	manager := newTestManager(t, w)
	before := manager.CurrentSnapshot()

	w.MustExec(t, "INSERT INTO `models` (`name`, `version`) VALUES (?, ?)", "Moves", 1)
	w.MustExec(t, "DROP TABLE `model_members`")

	interval := manager.maxInterval
	manager.refreshOnce(context.Background(), &interval)

	if manager.CurrentSnapshot() != before {
		t.Fatalf("expected previous snapshot to stay active")
	}
	if interval != manager.minInterval {
		t.Fatalf("expected interval reset after failure, got %s", interval)
	}
}

func TestRefreshOnce_UnmappableModelIsSkipped(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	manager := newTestManager(t, w)

	w.MustExec(t, "INSERT INTO `models` (`name`, `version`) VALUES (?, ?)", "Broken", 1)
	w.MustExec(t, "INSERT INTO `model_members` (`model_name`, `position`, `name`, `type`, `is_key`) VALUES (?, ?, ?, ?, ?)",
		"Broken", 0, "cells", "Array<u8>", true)
	w.RegisterModel(t, testutil.Model(t, "Moves", "#player:ContractAddress", "remaining:u8"))

	interval := manager.maxInterval
	manager.refreshOnce(context.Background(), &interval)

	after := manager.CurrentSnapshot()
	if after.CatalogVersion != "3:3" {
		t.Fatalf("expected catalog version 3:3, got %q", after.CatalogVersion)
	}
	if _, ok := after.Components["Broken"]; ok {
		t.Fatalf("expected Broken to be left out, got %v", after.Components)
	}
	fields := after.Schema.QueryType().Fields()
	if fields["positionModels"] == nil || fields["movesModels"] == nil {
		t.Fatalf("expected the valid models to stay queryable")
	}
}

func TestRefreshNowAlwaysSwaps(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	manager := newTestManager(t, w)
	before := manager.CurrentSnapshot()

	if err := manager.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow failed: %v", err)
	}
	after := manager.CurrentSnapshot()
	if after == before {
		t.Fatalf("expected a new snapshot")
	}
	if after.Fingerprint != before.Fingerprint {
		t.Fatalf("expected identical fingerprint for an unchanged catalog")
	}
}

func TestHandlerServesCurrentSchema(t *testing.T) {
	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	w.SetRecord(t, "Position", map[string]interface{}{"player": "0x1", "x": 7})
	manager := newTestManager(t, w)

	body := strings.NewReader(`{"query":"{ positionModels { totalCount } }"}`)
	req := httptest.NewRequest(http.MethodPost, "/graphql", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	manager.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"totalCount": 1`) {
		t.Fatalf("unexpected response: %s", rec.Body.String())
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	w := testutil.NewWorld(t)
	manager := newTestManager(t, w)

	ctx, cancel := context.WithCancel(context.Background())
	manager.Start(ctx)
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := manager.Wait(waitCtx); err != nil {
		t.Fatalf("expected refresh loop to stop, got %v", err)
	}
}

func TestNextInterval(t *testing.T) {
	minInterval := 10 * time.Second
	maxInterval := 40 * time.Second

	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{current: 0, want: minInterval},
		{current: minInterval, want: 15 * time.Second},
		{current: 30 * time.Second, want: maxInterval},
		{current: maxInterval, want: maxInterval},
	}
	for _, tt := range tests {
		if got := nextInterval(tt.current, minInterval, maxInterval); got != tt.want {
			t.Fatalf("nextInterval(%s) = %s, want %s", tt.current, got, tt.want)
		}
	}
}

func TestChangedComponents(t *testing.T) {
	previous := map[string]string{"Moves": "a", "Position": "b", "Gone": "c"}
	current := map[string]string{"Moves": "a", "Position": "x", "New": "d"}

	got := changedComponents(previous, current)
	want := []string{"Gone", "New", "Position"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("changedComponents = %v, want %v", got, want)
	}
	if len(changedComponents(nil, nil)) != 0 {
		t.Fatalf("expected no changes for empty maps")
	}
}
