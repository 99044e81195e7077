package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"microlab/internal/domain"
)

func (e Engine) UpsertThreshold(ctx context.Context, product, parameter string, min, max *float64, unit string) (domain.ProductThreshold, error) {
	if min != nil && max != nil && *min > *max {
		return domain.ProductThreshold{}, fmt.Errorf("invalid threshold: min %v above max %v", *min, *max)
	}
	t := domain.ProductThreshold{
		ID:        "thr-" + uuid.NewString(),
		Product:   product,
		Parameter: parameter,
		Min:       min,
		Max:       max,
		Unit:      unit,
		UpdatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.UpsertThreshold(ctx, t); err != nil {
		return domain.ProductThreshold{}, err
	}
	return t, nil
}

// EvaluatePH checks a pH value against the product's ph threshold.
// Returns whether the value is within range; a product without a ph
// threshold passes.
func (e Engine) EvaluatePH(ctx context.Context, product string, ph float64) (bool, error) {
	thresholds, err := e.Repo.ListThresholds(ctx, product)
	if err != nil {
		return false, err
	}
	for _, t := range thresholds {
		if t.Parameter != "ph" {
			continue
		}
		if t.Min != nil && ph < *t.Min {
			return false, nil
		}
		if t.Max != nil && ph > *t.Max {
			return false, nil
		}
		return true, nil
	}
	return true, nil
}

func (e Engine) UpsertLocation(ctx context.Context, site, name, description string, active bool) (domain.AirStaticLocation, error) {
	if !e.knownSite(site) {
		return domain.AirStaticLocation{}, fmt.Errorf("unknown site %s", site)
	}
	l := domain.AirStaticLocation{
		ID:          "loc-" + uuid.NewString(),
		Site:        site,
		Name:        name,
		Description: description,
		Active:      active,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.UpsertLocation(ctx, l); err != nil {
		return domain.AirStaticLocation{}, err
	}
	return l, nil
}

// ListSpeciesUsage reports, per catalog species, how many forms still
// have a pending or in-progress reading for it.
func (e Engine) ListSpeciesUsage(ctx context.Context) (map[string]int, error) {
	rows, err := e.Repo.ListSelectionsByStatus(ctx, "pending", "in_progress")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, r := range rows {
		counts[r.BacteriaName]++
	}
	return counts, nil
}
