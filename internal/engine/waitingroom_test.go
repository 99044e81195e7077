package engine_test

import (
	"testing"
	"time"

	"microlab/internal/domain"
	"microlab/internal/engine"
)

// seedReadingForm creates a form with a waiting sample and the given
// bacteria selection, the normal shape of a waiting-room entry.
func seedReadingForm(t *testing.T, env *testEnv, title string, bacteria ...string) domain.Form {
	t.Helper()
	f := env.createForm(t, title)
	env.addWaitingSample(t, f.ID)
	if err := env.Engine.ReplaceSelection(env.Ctx, f.ID, bacteria, "tester"); err != nil {
		t.Fatalf("seed selection for %s: %v", title, err)
	}
	return f
}

func TestWaitingRoomExcludesFullyCompleted(t *testing.T) {
	env := newTestEnv(t)
	done := seedReadingForm(t, env, "done batch", "Listeria")
	open := seedReadingForm(t, env, "open batch", "Listeria")
	if _, err := env.Engine.CompleteReading(env.Ctx, done.ID, "Listeria", "tester"); err != nil {
		t.Fatalf("complete reading: %v", err)
	}

	out, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(out) != 1 || out[0].FormID != open.ID {
		t.Fatalf("waiting room = %+v, want only %s", out, open.ID)
	}
}

func TestWaitingRoomExcludesFormsWithoutWaitingSample(t *testing.T) {
	env := newTestEnv(t)

	// sample still mid-analysis, never moved to waiting_reading
	early := env.createForm(t, "early batch")
	if _, err := env.Engine.AddSample(env.Ctx, engine.SampleCreateOptions{FormID: early.ID, Product: "yogurt", ActorID: "tester"}); err != nil {
		t.Fatalf("add sample: %v", err)
	}
	if err := env.Engine.ReplaceSelection(env.Ctx, early.ID, []string{"Listeria"}, "tester"); err != nil {
		t.Fatalf("seed selection: %v", err)
	}

	ready := seedReadingForm(t, env, "ready batch", "Listeria")

	out, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(out) != 1 || out[0].FormID != ready.ID {
		t.Fatalf("waiting room = %+v, want only %s", out, ready.ID)
	}
}

func TestWaitingRoomMixedCompletedAndReady(t *testing.T) {
	env := newTestEnv(t)
	f := seedReadingForm(t, env, "mixed batch", "Listeria", "Salmonella")
	if _, err := env.Engine.CompleteReading(env.Ctx, f.ID, "Listeria", "tester"); err != nil {
		t.Fatalf("complete reading: %v", err)
	}

	// past both 48h delays, the remaining pending row is due
	env.Engine.Now = func() time.Time { return testEpoch.Add(49 * time.Hour) }
	out, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("waiting room entries = %d, want 1", len(out))
	}
	states := map[string]string{}
	for _, b := range out[0].Bacteria {
		states[b.Selection.BacteriaName] = b.State
	}
	if states["Listeria"] != "completed" {
		t.Fatalf("Listeria state = %s, want completed", states["Listeria"])
	}
	if states["Salmonella"] != "ready" {
		t.Fatalf("Salmonella state = %s, want ready", states["Salmonella"])
	}
}

func TestWaitingRoomRemainingLabel(t *testing.T) {
	env := newTestEnv(t)
	seedReadingForm(t, env, "fresh batch", "Listeria")

	env.Engine.Now = func() time.Time { return testEpoch.Add(time.Hour) }
	out, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(out) != 1 || len(out[0].Bacteria) != 1 {
		t.Fatalf("waiting room = %+v", out)
	}
	b := out[0].Bacteria[0]
	if b.State != "waiting" {
		t.Fatalf("state = %s, want waiting", b.State)
	}
	if b.Remaining != "47h remaining" {
		t.Fatalf("remaining = %q, want 47h remaining", b.Remaining)
	}
	if !b.Forced {
		t.Fatalf("waiting entry should flag a start as forced")
	}
}

func TestWaitingRoomSiteFilter(t *testing.T) {
	env := newTestEnv(t)
	prod := seedReadingForm(t, env, "prod batch", "Listeria")
	pack, err := env.Engine.CreateForm(env.Ctx, engine.FormCreateOptions{Title: "pack batch", Site: "packaging", ActorID: "tester"})
	if err != nil {
		t.Fatalf("create form: %v", err)
	}
	if _, err := env.Engine.AddSample(env.Ctx, engine.SampleCreateOptions{FormID: pack.ID, Product: "yogurt", Site: "packaging", ActorID: "tester"}); err != nil {
		t.Fatalf("add sample: %v", err)
	}
	samples, err := env.Engine.Repo.ListSamplesByForm(env.Ctx, pack.ID)
	if err != nil || len(samples) != 1 {
		t.Fatalf("list samples: %v %d", err, len(samples))
	}
	if err := env.Engine.MoveSampleToReading(env.Ctx, samples[0].ID, "tester"); err != nil {
		t.Fatalf("move sample: %v", err)
	}
	if err := env.Engine.ReplaceSelection(env.Ctx, pack.ID, []string{"Salmonella"}, "tester"); err != nil {
		t.Fatalf("seed selection: %v", err)
	}

	all, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered entries = %d, want 2", len(all))
	}

	// the filter is a pure subset of the unfiltered aggregate
	got := engine.FilterBySite(all, "production")
	if len(got) != 1 || got[0].FormID != prod.ID {
		t.Fatalf("production filter = %+v", got)
	}
	for _, f := range got {
		if f.Site != "production" {
			t.Fatalf("filtered entry has site %s", f.Site)
		}
	}
	if n := len(engine.FilterBySite(all, "all")); n != 2 {
		t.Fatalf("'all' filter dropped entries: %d", n)
	}
	if n := len(engine.FilterBySite(all, "")); n != 2 {
		t.Fatalf("empty filter dropped entries: %d", n)
	}
}

func TestWaitingRoomSyntheticTitleForMissingForm(t *testing.T) {
	env := newTestEnv(t)

	// selection and sample rows whose form record is gone, as written by
	// importers before the form table existed
	ghost := "form-ghost"
	nowStr := testEpoch.Format(time.RFC3339)
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := env.Engine.Repo.InsertSample(env.Ctx, tx, domain.Sample{
		ID: "sample-ghost", FormID: ghost, Product: "yogurt",
		Status: "waiting_reading", CreatedAt: nowStr, UpdatedAt: nowStr,
	}); err != nil {
		t.Fatalf("insert sample: %v", err)
	}
	if err := env.Engine.Repo.ReplaceSelections(env.Ctx, tx, ghost, []domain.BacteriaSelection{{
		ID: "sel-ghost", FormID: ghost, BacteriaName: "Listeria",
		Delay: "48h", ReadingDay: "Wednesday", Status: "pending",
		CreatedAt: nowStr, ModifiedAt: nowStr,
	}}); err != nil {
		t.Fatalf("insert selection: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	out, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("waiting room entries = %d, want 1", len(out))
	}
	if out[0].Title != "Form of 2024-03-04" {
		t.Fatalf("synthetic title = %q", out[0].Title)
	}
}

func TestWaitingRoomSortsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	older := seedReadingForm(t, env, "older batch", "Listeria")

	env.Engine.Now = func() time.Time { return testEpoch.Add(2 * time.Hour) }
	newer := seedReadingForm(t, env, "newer batch", "Listeria")

	out, err := env.Engine.WaitingRoom(env.Ctx)
	if err != nil {
		t.Fatalf("waiting room: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("entries = %d, want 2", len(out))
	}
	if out[0].FormID != newer.ID || out[1].FormID != older.ID {
		t.Fatalf("order = [%s %s], want newest first", out[0].FormID, out[1].FormID)
	}
}
