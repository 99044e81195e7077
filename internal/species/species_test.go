package species_test

import (
	"strings"
	"testing"
	"time"

	"microlab/internal/config"
	"microlab/internal/species"
)

func testCatalog(t *testing.T) species.Catalog {
	t.Helper()
	cfg := config.Default("lab-1")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	return species.NewCatalog(cfg.Species.Catalog)
}

func TestReadinessBoundaryInclusive(t *testing.T) {
	cat := testCatalog(t)
	created := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	for _, s := range cat.List() {
		if cat.IsReady(s.DisplayName, created, created, false) {
			t.Fatalf("%s ready immediately at creation", s.DisplayName)
		}
		target := created.Add(time.Duration(s.NormalDelayHours) * time.Hour)
		if cat.IsReady(s.DisplayName, created, target.Add(-time.Second), false) {
			t.Fatalf("%s ready one second before target", s.DisplayName)
		}
		if !cat.IsReady(s.DisplayName, created, target, false) {
			t.Fatalf("%s not ready exactly at target", s.DisplayName)
		}
	}
}

func TestDemoDelaysPreserveOrdering(t *testing.T) {
	cat := testCatalog(t)
	list := cat.List()
	for _, a := range list {
		for _, b := range list {
			if a.NormalDelayHours > b.NormalDelayHours && a.DemoDelayMinutes < b.DemoDelayMinutes {
				t.Fatalf("%s (%dh/%dm) vs %s (%dh/%dm): demo ordering broken",
					a.ID, a.NormalDelayHours, a.DemoDelayMinutes,
					b.ID, b.NormalDelayHours, b.DemoDelayMinutes)
			}
		}
	}
}

func TestRemainingNeverZeroBeforeReady(t *testing.T) {
	cat := testCatalog(t)
	created := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	// probe the final partial unit in both modes
	for _, demo := range []bool{false, true} {
		target := cat.TargetTime("Listeria", created, demo)
		for _, now := range []time.Time{
			target.Add(-time.Second),
			target.Add(-time.Millisecond),
			created.Add(time.Second),
		} {
			if cat.IsReady("Listeria", created, now, demo) {
				continue
			}
			got := cat.Remaining("Listeria", created, now, demo)
			if strings.HasPrefix(got, "0") {
				t.Fatalf("demo=%v now=%v: remaining %q while not ready", demo, now, got)
			}
			if got == species.ReadyLabel {
				t.Fatalf("demo=%v now=%v: ready label while not ready", demo, now)
			}
		}
	}
}

func TestUnknownSpeciesDefaults(t *testing.T) {
	cat := testCatalog(t)
	if got := cat.DelayOf("Mystery bug", false); got != species.DefaultDelayUnits {
		t.Fatalf("unknown species normal delay = %d, want %d", got, species.DefaultDelayUnits)
	}
	if got := cat.DelayOf("Mystery bug", true); got != species.DefaultDelayUnits {
		t.Fatalf("unknown species demo delay = %d, want %d", got, species.DefaultDelayUnits)
	}
	created := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if !cat.IsReady("Mystery bug", created, created.Add(time.Hour), false) {
		t.Fatalf("unknown species should be ready after one default unit")
	}
}

func TestListeriaScenario(t *testing.T) {
	cat := testCatalog(t)
	t0 := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

	at47h := t0.Add(47 * time.Hour)
	if cat.IsReady("Listeria", t0, at47h, false) {
		t.Fatalf("ready at T0+47h")
	}
	if got := cat.Remaining("Listeria", t0, at47h, false); got != "1h remaining" {
		t.Fatalf("remaining at T0+47h = %q, want %q", got, "1h remaining")
	}

	at48h := t0.Add(48 * time.Hour)
	if !cat.IsReady("Listeria", t0, at48h, false) {
		t.Fatalf("not ready at T0+48h")
	}
	if got := cat.Remaining("Listeria", t0, at48h, false); got != species.ReadyLabel {
		t.Fatalf("remaining at T0+48h = %q, want ready label", got)
	}
}

func TestRemainingDayFormatting(t *testing.T) {
	cat := testCatalog(t)
	t0 := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	// yeasts and moulds: 120h
	if got := cat.Remaining("Yeasts and moulds", t0, t0.Add(time.Hour), false); got != "4d 23h remaining" {
		t.Fatalf("remaining = %q, want %q", got, "4d 23h remaining")
	}
	if got := cat.Remaining("Yeasts and moulds", t0, t0.Add(24*time.Hour), false); got != "4d remaining" {
		t.Fatalf("remaining = %q, want %q", got, "4d remaining")
	}
}

func TestReadingDayMatchesTargetWeekday(t *testing.T) {
	cat := testCatalog(t)
	// Monday + 48h = Wednesday
	monday := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if got := cat.ReadingDay("Listeria", monday, false); got != "Wednesday" {
		t.Fatalf("reading day = %q, want Wednesday", got)
	}
	// demo mode stays on the same day
	if got := cat.ReadingDay("Listeria", monday, true); got != "Monday" {
		t.Fatalf("demo reading day = %q, want Monday", got)
	}
}
