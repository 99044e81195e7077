package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"microlab/internal/config"
	"microlab/internal/db"
	"microlab/internal/domain"
	"microlab/internal/engine"
	"microlab/internal/migrate"
	"microlab/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

var testEpoch = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("lab-1")
	eng := engine.New(conn, cfg, zap.NewNop())
	eng.Now = func() time.Time { return testEpoch }
	ctx := context.Background()
	if err := eng.Repo.InsertLab(ctx, domain.Lab{ID: "lab-1", Name: "Test Lab", CreatedAt: testEpoch.Format(time.RFC3339)}); err != nil {
		t.Fatalf("insert lab: %v", err)
	}
	return &testEnv{Engine: eng, Ctx: ctx}
}

func (env *testEnv) createForm(t *testing.T, title string) domain.Form {
	t.Helper()
	f, err := env.Engine.CreateForm(env.Ctx, engine.FormCreateOptions{Title: title, Site: "production", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	return f
}

func (env *testEnv) addWaitingSample(t *testing.T, formID string) domain.Sample {
	t.Helper()
	s, err := env.Engine.AddSample(env.Ctx, engine.SampleCreateOptions{FormID: formID, Product: "yogurt", Site: "production", ActorID: "tester"})
	if err != nil {
		t.Fatalf("add sample: %v", err)
	}
	if err := env.Engine.MoveSampleToReading(env.Ctx, s.ID, "tester"); err != nil {
		t.Fatalf("move sample to reading: %v", err)
	}
	return s
}

func TestCascadeDeletion(t *testing.T) {
	env := newTestEnv(t)
	f := env.createForm(t, "batch 42")
	s := env.addWaitingSample(t, f.ID)
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria", "Salmonella"}, "tester"); err != nil {
		t.Fatalf("replace selection: %v", err)
	}

	if err := env.Engine.DeleteForm(env.Ctx, f.ID, "tester"); err != nil {
		t.Fatalf("delete form: %v", err)
	}

	if _, err := env.Engine.Repo.GetForm(env.Ctx, f.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("form still present after delete: %v", err)
	}
	if _, err := env.Engine.Repo.GetSample(env.Ctx, s.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("sample still present after delete: %v", err)
	}
	rows, err := env.Engine.Repo.ListSelectionsByForm(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("list selections: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("selections still present after delete: %d", len(rows))
	}
}

func TestDeleteFormByLegacyRef(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.CreateForm(env.Ctx, engine.FormCreateOptions{
		Title: "old batch", LegacyRef: "BATCH-1999-07", ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if err := env.Engine.DeleteForm(env.Ctx, "BATCH-1999-07", "tester"); err != nil {
		t.Fatalf("delete by legacy ref: %v", err)
	}
	if _, err := env.Engine.Repo.GetForm(env.Ctx, f.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("form still present: %v", err)
	}
}

func TestReplaceSelectionGuardWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.createForm(t, "real form")

	for _, badID := range []string{"", "undefined", "null", "bad-id-no-prefix"} {
		if err := env.Engine.ReplaceSelection(env.Ctx, badID, []string{"Listeria"}, "tester"); err != nil {
			t.Fatalf("guard for %q should be a silent no-op, got %v", badID, err)
		}
	}
	rows, err := env.Engine.Repo.ListSelectionsByStatus(env.Ctx, "pending", "in_progress", "completed")
	if err != nil {
		t.Fatalf("list selections: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("guard leaked %d rows into the store", len(rows))
	}
}

func TestReplaceSelectionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	f := env.createForm(t, "batch")
	set := []string{"Listeria", "Enterobacteria"}

	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, set, "tester"); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, set, "tester"); err != nil {
		t.Fatalf("second replace: %v", err)
	}
	rows, err := env.Engine.Repo.ListSelectionsByForm(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("list selections: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count after idempotent replace = %d, want 2", len(rows))
	}
	names := map[string]bool{}
	for _, r := range rows {
		names[r.BacteriaName] = true
		if r.Status != "pending" {
			t.Fatalf("replaced row %s has status %s", r.BacteriaName, r.Status)
		}
	}
	if !names["Listeria"] || !names["Enterobacteria"] {
		t.Fatalf("unexpected selection content: %v", names)
	}
}

func TestRemoveReaddProducesSingleFreshRow(t *testing.T) {
	env := newTestEnv(t)
	f := env.createForm(t, "batch")
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria", "Salmonella"}, "tester"); err != nil {
		t.Fatalf("initial selection: %v", err)
	}
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria"}, "tester"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// re-add two days later; the fresh row must compute its reading day
	// from the new clock
	env.Engine.Now = func() time.Time { return testEpoch.Add(48 * time.Hour) }
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria", "Salmonella"}, "tester"); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	sel, err := env.Engine.Repo.GetSelection(env.Ctx, f.ID, "Salmonella")
	if err != nil {
		t.Fatalf("get re-added selection: %v", err)
	}
	wantDay := testEpoch.Add(48 * time.Hour).Add(48 * time.Hour).Weekday().String()
	if sel.ReadingDay != wantDay {
		t.Fatalf("re-added reading day = %s, want %s", sel.ReadingDay, wantDay)
	}
	rows, err := env.Engine.Repo.ListSelectionsByForm(env.Ctx, f.ID)
	if err != nil {
		t.Fatalf("list selections: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(rows))
	}
}

func TestStartReadingRecordsForcedFlag(t *testing.T) {
	env := newTestEnv(t)
	f := env.createForm(t, "batch")
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria"}, "tester"); err != nil {
		t.Fatalf("replace selection: %v", err)
	}

	// an hour in, Listeria's 48h delay has not elapsed
	env.Engine.Now = func() time.Time { return testEpoch.Add(time.Hour) }
	sel, forced, err := env.Engine.StartReading(env.Ctx, f.ID, "Listeria", "tester")
	if err != nil {
		t.Fatalf("start reading: %v", err)
	}
	if !forced {
		t.Fatalf("expected forced start before readiness")
	}
	if sel.Status != "in_progress" {
		t.Fatalf("status after start = %s", sel.Status)
	}

	// a second start must conflict
	if _, _, err := env.Engine.StartReading(env.Ctx, f.ID, "Listeria", "tester"); err == nil {
		t.Fatalf("expected error starting an in-progress reading")
	}
}

func TestStartReadingAfterDelayNotForced(t *testing.T) {
	env := newTestEnv(t)
	f := env.createForm(t, "batch")
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria"}, "tester"); err != nil {
		t.Fatalf("replace selection: %v", err)
	}
	env.Engine.Now = func() time.Time { return testEpoch.Add(48 * time.Hour) }
	_, forced, err := env.Engine.StartReading(env.Ctx, f.ID, "Listeria", "tester")
	if err != nil {
		t.Fatalf("start reading: %v", err)
	}
	if forced {
		t.Fatalf("start at the readiness boundary must not be forced")
	}
}

func TestCompleteReadingFinishesWaitingSamples(t *testing.T) {
	env := newTestEnv(t)
	f := env.createForm(t, "batch")
	s := env.addWaitingSample(t, f.ID)
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, []string{"Listeria", "Salmonella"}, "tester"); err != nil {
		t.Fatalf("replace selection: %v", err)
	}

	if _, err := env.Engine.CompleteReading(env.Ctx, f.ID, "Listeria", "tester"); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	got, err := env.Engine.Repo.GetSample(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("get sample: %v", err)
	}
	if got.Status != "waiting_reading" {
		t.Fatalf("sample completed before all readings done: %s", got.Status)
	}

	if _, err := env.Engine.CompleteReading(env.Ctx, f.ID, "Salmonella", "tester"); err != nil {
		t.Fatalf("complete second: %v", err)
	}
	got, err = env.Engine.Repo.GetSample(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("get sample: %v", err)
	}
	if got.Status != "completed" {
		t.Fatalf("sample status after all readings = %s, want completed", got.Status)
	}

	// completing twice must conflict
	if _, err := env.Engine.CompleteReading(env.Ctx, f.ID, "Salmonella", "tester"); err == nil {
		t.Fatalf("expected error completing a completed reading")
	}
}

func TestCreateFormRejectsUnknownSite(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateForm(env.Ctx, engine.FormCreateOptions{Title: "x", Site: "moonbase", ActorID: "tester"})
	if err == nil {
		t.Fatalf("expected unknown site error")
	}
}

func TestThresholdEvaluation(t *testing.T) {
	env := newTestEnv(t)
	min, max := 4.0, 4.6
	if _, err := env.Engine.UpsertThreshold(env.Ctx, "yogurt", "ph", &min, &max, "pH"); err != nil {
		t.Fatalf("upsert threshold: %v", err)
	}
	ok, err := env.Engine.EvaluatePH(env.Ctx, "yogurt", 4.3)
	if err != nil || !ok {
		t.Fatalf("in-range pH rejected: ok=%v err=%v", ok, err)
	}
	ok, err = env.Engine.EvaluatePH(env.Ctx, "yogurt", 5.2)
	if err != nil || ok {
		t.Fatalf("out-of-range pH accepted: ok=%v err=%v", ok, err)
	}
	// no threshold configured passes
	ok, err = env.Engine.EvaluatePH(env.Ctx, "cheese", 9.9)
	if err != nil || !ok {
		t.Fatalf("unconfigured product should pass: ok=%v err=%v", ok, err)
	}
}
