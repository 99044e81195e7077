package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"microlab/internal/domain"
)

// WaitingRoom aggregates every form that still has at least one
// unfinished bacteria reading. Selection rows drive the view; form and
// sample metadata are joined in afterwards, samples in waiting_reading
// taking precedence and the form record filling gaps. A form whose
// samples are all still mid-analysis is excluded even when selection
// rows exist, and so is a form whose readings are all completed.
func (e Engine) WaitingRoom(ctx context.Context) ([]domain.WaitingForm, error) {
	selections, err := e.Repo.ListSelectionsByStatus(ctx, "pending", "in_progress", "completed")
	if err != nil {
		return nil, fmt.Errorf("list selections: %w", err)
	}
	if len(selections) == 0 {
		return nil, nil
	}

	byForm := make(map[string][]domain.BacteriaSelection)
	var formIDs []string
	for _, s := range selections {
		if _, ok := byForm[s.FormID]; !ok {
			formIDs = append(formIDs, s.FormID)
		}
		byForm[s.FormID] = append(byForm[s.FormID], s)
	}

	// Metadata fetch failures degrade instead of failing the view.
	samples, err := e.Repo.ListSamplesByFormIDs(ctx, formIDs, "waiting_reading")
	samplesKnown := err == nil
	if err != nil {
		e.Log.Warn("waiting room: sample metadata unavailable", zap.Error(err))
	}
	sampleByForm := make(map[string]domain.Sample)
	for _, s := range samples {
		if _, ok := sampleByForm[s.FormID]; !ok {
			sampleByForm[s.FormID] = s
		}
	}

	forms, err := e.Repo.ListFormsByIDs(ctx, formIDs)
	if err != nil {
		e.Log.Warn("waiting room: form metadata unavailable", zap.Error(err))
	}
	formByID := make(map[string]domain.Form)
	for _, f := range forms {
		formByID[f.ID] = f
	}

	now := e.now()
	demo := e.Config.DemoMode
	var out []domain.WaitingForm
	for _, formID := range formIDs {
		rows := byForm[formID]
		if samplesKnown {
			if _, ok := sampleByForm[formID]; !ok {
				continue
			}
		}
		allDone := true
		for _, r := range rows {
			if r.Status != "completed" {
				allDone = false
				break
			}
		}
		if allDone {
			continue
		}

		wf := domain.WaitingForm{FormID: formID, CreatedAt: rows[0].CreatedAt}
		if f, ok := formByID[formID]; ok {
			wf.Title = f.Title
			wf.Brand = f.Brand
			wf.Site = f.Site
			wf.SampleDate = f.SampleDate
			wf.AnalysisDate = f.AnalysisDate
			wf.CreatedAt = f.CreatedAt
		} else {
			wf.Title = syntheticTitle(rows[0].CreatedAt)
		}
		if s, ok := sampleByForm[formID]; ok {
			if s.Site != "" {
				wf.Site = s.Site
			}
			if s.SampleDate != "" {
				wf.SampleDate = s.SampleDate
			}
		}
		for _, r := range rows {
			wf.Bacteria = append(wf.Bacteria, e.readingState(r, now, demo))
		}
		out = append(out, wf)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// readingState derives the display state of one selection row.
func (e Engine) readingState(s domain.BacteriaSelection, now time.Time, demo bool) domain.BacteriaReading {
	r := domain.BacteriaReading{Selection: s}
	switch s.Status {
	case "completed":
		r.State = "completed"
		return r
	case "in_progress":
		r.State = "in_progress"
		return r
	}
	createdAt, err := time.Parse(time.RFC3339, s.CreatedAt)
	if err != nil {
		e.Log.Warn("unparseable selection created_at", zap.String("id", s.ID), zap.Error(err))
		r.State = "waiting"
		return r
	}
	if e.Catalog.IsReady(s.BacteriaName, createdAt, now, demo) {
		r.State = "ready"
		return r
	}
	r.State = "waiting"
	r.Remaining = e.Catalog.Remaining(s.BacteriaName, createdAt, now, demo)
	r.Forced = true
	return r
}

// FilterBySite narrows an aggregate to one site. "all" or "" keep
// everything; the filter is pure and never re-fetches.
func FilterBySite(forms []domain.WaitingForm, site string) []domain.WaitingForm {
	if site == "" || site == "all" {
		return forms
	}
	var out []domain.WaitingForm
	for _, f := range forms {
		if f.Site == site {
			out = append(out, f)
		}
	}
	return out
}

func syntheticTitle(createdAt string) string {
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		return "Form of " + t.Format("2006-01-02")
	}
	return "Form (untitled)"
}
