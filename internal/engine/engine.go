package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"microlab/internal/audit"
	"microlab/internal/config"
	"microlab/internal/domain"
	"microlab/internal/mirror"
	"microlab/internal/repo"
	"microlab/internal/species"
)

// Notifier receives lifecycle events for user-facing surfaces (CLI
// output, webhooks). Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, map[string]any) {}

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Audit   audit.Writer
	Config  *config.Config
	Catalog species.Catalog
	Mirror  *mirror.Mirror
	Log     *zap.Logger
	Notify  Notifier
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Audit:   audit.Writer{DB: db},
		Config:  cfg,
		Catalog: species.NewCatalog(cfg.Species.Catalog),
		Mirror:  mirror.New(),
		Log:     log,
		Notify:  noopNotifier{},
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) notify(ctx context.Context, event string, payload map[string]any) {
	if e.Notify != nil {
		e.Notify.Notify(ctx, event, payload)
	}
}

// ValidFormID reports whether an id can safely key selection writes.
// The check fails closed: empty ids, the literal strings "undefined" and
// "null" (which leak out of broken callers as real values), and ids
// missing the configured prefix are all rejected.
func (e Engine) ValidFormID(id string) bool {
	if id == "" || id == "undefined" || id == "null" {
		return false
	}
	return strings.HasPrefix(id, e.Config.Lab.FormPrefix)
}

// FormCreateOptions are parameters for creating a sample form.
type FormCreateOptions struct {
	ID           string
	Title        string
	Brand        string
	Site         string
	SampleDate   string
	AnalysisDate string
	LegacyRef    string
	ActorID      string
}

func (e Engine) CreateForm(ctx context.Context, opts FormCreateOptions) (domain.Form, error) {
	if e.Config == nil {
		return domain.Form{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Form{}, errors.New("title is required")
	}
	if opts.Site != "" && !e.knownSite(opts.Site) {
		return domain.Form{}, fmt.Errorf("unknown site %s", opts.Site)
	}
	now := e.now().UTC().Format(time.RFC3339)
	id := opts.ID
	if id == "" {
		id = e.Config.Lab.FormPrefix + uuid.NewString()
	}
	if !e.ValidFormID(id) {
		return domain.Form{}, fmt.Errorf("form id %q must start with %q", id, e.Config.Lab.FormPrefix)
	}
	f := domain.Form{
		ID:           id,
		LabID:        e.Config.Lab.ID,
		Title:        opts.Title,
		Brand:        opts.Brand,
		Site:         opts.Site,
		SampleDate:   opts.SampleDate,
		AnalysisDate: opts.AnalysisDate,
		Status:       "open",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if opts.LegacyRef != "" {
		f.LegacyRef = &opts.LegacyRef
	}
	if err := e.Repo.InsertForm(ctx, f); err != nil {
		return domain.Form{}, fmt.Errorf("insert form: %w", err)
	}
	if err := e.appendAudit(ctx, "form.create", "form", f.ID, opts.ActorID, audit.Payload{"title": f.Title, "site": f.Site}); err != nil {
		return domain.Form{}, err
	}
	e.notify(ctx, "form.create", map[string]any{"form_id": f.ID, "title": f.Title})
	return f, nil
}

func (e Engine) knownSite(site string) bool {
	if len(e.Config.Sites) == 0 {
		return true
	}
	for _, s := range e.Config.Sites {
		if s == site {
			return true
		}
	}
	return false
}

// ResolveForm finds a form by primary id first, then by legacy
// reference. Rows written before the id convention changed are only
// reachable through the legacy key.
func (e Engine) ResolveForm(ctx context.Context, key string) (domain.Form, error) {
	f, err := e.Repo.GetForm(ctx, key)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Form{}, err
	}
	return e.Repo.GetFormByLegacyRef(ctx, key)
}

// SampleCreateOptions are parameters for registering a sample on a form.
type SampleCreateOptions struct {
	FormID       string
	Product      string
	Site         string
	SampleDate   string
	Organoleptic string
	PH           *float64
	ActorID      string
}

func (e Engine) AddSample(ctx context.Context, opts SampleCreateOptions) (domain.Sample, error) {
	form, err := e.ResolveForm(ctx, opts.FormID)
	if err != nil {
		return domain.Sample{}, err
	}
	if opts.Product == "" {
		return domain.Sample{}, errors.New("product is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	s := domain.Sample{
		ID:         "sample-" + uuid.NewString(),
		FormID:     form.ID,
		Product:    opts.Product,
		Site:       opts.Site,
		Status:     "in_analysis",
		SampleDate: opts.SampleDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if opts.Organoleptic != "" {
		s.Organoleptic = &opts.Organoleptic
	}
	s.PH = opts.PH

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sample{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSample(ctx, tx, s); err != nil {
		return domain.Sample{}, fmt.Errorf("insert sample: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "sample.create", e.Config.Lab.ID, "sample", s.ID, opts.ActorID, audit.Payload{"form_id": form.ID, "product": s.Product}); err != nil {
		return domain.Sample{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sample{}, err
	}
	return s, nil
}

func (e Engine) MoveSampleToReading(ctx context.Context, sampleID, actorID string) error {
	s, err := e.Repo.GetSample(ctx, sampleID)
	if err != nil {
		return err
	}
	if s.Status != "in_analysis" {
		return fmt.Errorf("sample %s is %s, not in_analysis", sampleID, s.Status)
	}
	now := e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateSampleStatus(ctx, sampleID, "waiting_reading", now); err != nil {
		return err
	}
	return e.appendAudit(ctx, "sample.waiting_reading", "sample", sampleID, actorID, audit.Payload{"form_id": s.FormID})
}

// ReplaceSelection reconciles the persisted bacteria selection of a form
// with the given display-name list. The whole set is replaced: every row
// is reinserted fresh, so even species that were already selected get a
// new created_at, reading day and pending status. Downstream consumers
// depend on that reset, so it stays. An invalid form id is logged and
// skipped rather than failed so a broken caller cannot write rows under
// a garbage key.
func (e Engine) ReplaceSelection(ctx context.Context, formID string, names []string, actorID string) error {
	if !e.ValidFormID(formID) {
		e.Log.Warn("skipping selection write for invalid form id", zap.String("form_id", formID))
		return nil
	}
	form, err := e.ResolveForm(ctx, formID)
	if err != nil {
		return err
	}
	now := e.now()
	nowStr := now.UTC().Format(time.RFC3339)
	demo := e.Config.DemoMode

	rows := make([]domain.BacteriaSelection, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		rows = append(rows, domain.BacteriaSelection{
			ID:           "sel-" + uuid.NewString(),
			FormID:       form.ID,
			BacteriaName: name,
			Delay:        e.Catalog.DelayLabel(name, demo),
			ReadingDay:   e.Catalog.ReadingDay(name, now, demo),
			Status:       "pending",
			CreatedAt:    nowStr,
			ModifiedAt:   nowStr,
		})
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.ReplaceSelections(ctx, tx, form.ID, rows); err != nil {
		return fmt.Errorf("replace selections: %w", err)
	}
	if err := e.Audit.Append(ctx, tx, "selection.replace", e.Config.Lab.ID, "form", form.ID, actorID, audit.Payload{"count": len(rows)}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	selected := make([]string, 0, len(rows))
	for _, r := range rows {
		selected = append(selected, r.BacteriaName)
	}
	e.Mirror.Put(form.ID, selected)
	return nil
}

// StartReading marks a selection as in progress. Starting before the
// incubation delay has elapsed is allowed but recorded as forced.
func (e Engine) StartReading(ctx context.Context, formID, bacteriaName, actorID string) (domain.BacteriaSelection, bool, error) {
	form, err := e.ResolveForm(ctx, formID)
	if err != nil {
		return domain.BacteriaSelection{}, false, err
	}
	sel, err := e.Repo.GetSelection(ctx, form.ID, bacteriaName)
	if err != nil {
		return domain.BacteriaSelection{}, false, err
	}
	if sel.Status != "pending" {
		return domain.BacteriaSelection{}, false, fmt.Errorf("reading for %s is %s, not pending", bacteriaName, sel.Status)
	}
	createdAt, err := time.Parse(time.RFC3339, sel.CreatedAt)
	if err != nil {
		return domain.BacteriaSelection{}, false, fmt.Errorf("parse selection created_at: %w", err)
	}
	now := e.now()
	forced := !e.Catalog.IsReady(bacteriaName, createdAt, now, e.Config.DemoMode)
	nowStr := now.UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BacteriaSelection{}, false, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSelectionStatus(ctx, tx, form.ID, bacteriaName, "in_progress", nowStr); err != nil {
		return domain.BacteriaSelection{}, false, err
	}
	payload := audit.Payload{"bacteria": bacteriaName, "forced": forced}
	if forced {
		payload["remaining"] = e.Catalog.Remaining(bacteriaName, createdAt, now, e.Config.DemoMode)
	}
	if err := e.Audit.Append(ctx, tx, "reading.start", e.Config.Lab.ID, "form", form.ID, actorID, payload); err != nil {
		return domain.BacteriaSelection{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BacteriaSelection{}, false, err
	}
	sel.Status = "in_progress"
	sel.ModifiedAt = nowStr
	e.notify(ctx, "reading.start", map[string]any{"form_id": form.ID, "bacteria": bacteriaName, "forced": forced})
	return sel, forced, nil
}

// CompleteReading marks a selection as completed. When every selection
// on the form is done, samples still waiting for a reading move to
// completed as well.
func (e Engine) CompleteReading(ctx context.Context, formID, bacteriaName, actorID string) (domain.BacteriaSelection, error) {
	form, err := e.ResolveForm(ctx, formID)
	if err != nil {
		return domain.BacteriaSelection{}, err
	}
	sel, err := e.Repo.GetSelection(ctx, form.ID, bacteriaName)
	if err != nil {
		return domain.BacteriaSelection{}, err
	}
	if sel.Status == "completed" {
		return domain.BacteriaSelection{}, fmt.Errorf("reading for %s already completed", bacteriaName)
	}
	nowStr := e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BacteriaSelection{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateSelectionStatus(ctx, tx, form.ID, bacteriaName, "completed", nowStr); err != nil {
		return domain.BacteriaSelection{}, err
	}
	if err := e.Audit.Append(ctx, tx, "reading.complete", e.Config.Lab.ID, "form", form.ID, actorID, audit.Payload{"bacteria": bacteriaName}); err != nil {
		return domain.BacteriaSelection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BacteriaSelection{}, err
	}
	sel.Status = "completed"
	sel.ModifiedAt = nowStr

	if err := e.finishSamplesIfDone(ctx, form.ID); err != nil {
		e.Log.Warn("completing samples after last reading", zap.String("form_id", form.ID), zap.Error(err))
	}
	e.notify(ctx, "reading.complete", map[string]any{"form_id": form.ID, "bacteria": bacteriaName})
	return sel, nil
}

func (e Engine) finishSamplesIfDone(ctx context.Context, formID string) error {
	selections, err := e.Repo.ListSelectionsByForm(ctx, formID)
	if err != nil {
		return err
	}
	for _, s := range selections {
		if s.Status != "completed" {
			return nil
		}
	}
	samples, err := e.Repo.ListSamplesByFormIDs(ctx, []string{formID}, "waiting_reading")
	if err != nil {
		return err
	}
	nowStr := e.now().UTC().Format(time.RFC3339)
	for _, s := range samples {
		if err := e.Repo.UpdateSampleStatus(ctx, s.ID, "completed", nowStr); err != nil {
			return err
		}
	}
	return nil
}

// DeleteForm removes a form and everything hanging off it. Deletes run
// in dependency order on the bare connection and stop at the first
// failure, so a partial delete never leaves orphan children: selections
// first, then sample links, then samples, then the form row. The key is
// tried as a primary id first and as a legacy reference second.
func (e Engine) DeleteForm(ctx context.Context, key, actorID string) error {
	form, err := e.ResolveForm(ctx, key)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteSelectionsByForm(ctx, form.ID); err != nil {
		return fmt.Errorf("delete selections for %s: %w", form.ID, err)
	}
	if err := e.Repo.DeleteFormSampleLinks(ctx, form.ID); err != nil {
		return fmt.Errorf("delete sample links for %s: %w", form.ID, err)
	}
	if err := e.Repo.DeleteSamplesByForm(ctx, form.ID); err != nil {
		return fmt.Errorf("delete samples for %s: %w", form.ID, err)
	}
	if err := e.Repo.DeleteForm(ctx, form.ID); err != nil {
		return fmt.Errorf("delete form %s: %w", form.ID, err)
	}
	e.Mirror.Delete(form.ID)
	if err := e.appendAudit(ctx, "form.delete", "form", form.ID, actorID, audit.Payload{"title": form.Title}); err != nil {
		return err
	}
	e.notify(ctx, "form.delete", map[string]any{"form_id": form.ID})
	return nil
}

func (e Engine) appendAudit(ctx context.Context, action, entityKind, entityID, actorID string, payload audit.Payload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Audit.Append(ctx, tx, action, e.Config.Lab.ID, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
