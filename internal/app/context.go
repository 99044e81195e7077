package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"microlab/internal/config"
	"microlab/internal/domain"
	"microlab/internal/repo"
)

// ResolveLabAndConfig picks the active lab and ensures a lab + config
// exist in the database, seeding defaults when missing. It prefers the
// workspace config file, then an override, then a single-lab database.
func ResolveLabAndConfig(ctx context.Context, workspace, labOverride string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	labID := labOverride
	if labID == "" && fileCfg != nil {
		labID = fileCfg.Lab.ID
	}
	if labID == "" {
		if l, err := r.SingleLab(ctx); err == nil {
			labID = l.ID
		} else {
			return "", nil, fmt.Errorf("lab not specified; use --lab or import a config")
		}
	}

	if _, err := r.GetLab(ctx, labID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createLab(ctx, r, labID); err != nil {
			return "", nil, err
		}
	}

	if fileCfg != nil {
		fileCfg.Lab.ID = labID
		if err := StoreConfig(ctx, r, labID, fileCfg); err != nil {
			return "", nil, err
		}
		return labID, fileCfg, nil
	}

	raw, err := r.GetLabConfig(ctx, labID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			seed := config.Default(labID)
			if err := StoreConfig(ctx, r, labID, seed); err != nil {
				return "", nil, fmt.Errorf("seed lab config: %w", err)
			}
			return labID, seed, nil
		}
		return "", nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return "", nil, fmt.Errorf("stored lab config corrupt: %w", err)
	}
	cfg.Lab.ID = labID
	return labID, &cfg, nil
}

// StoreConfig serializes the config into lab_configs.
func StoreConfig(ctx context.Context, r repo.Repo, labID string, cfg *config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return r.UpsertLabConfig(ctx, labID, string(data), now)
}

func createLab(ctx context.Context, r repo.Repo, labID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	l := domain.Lab{
		ID:        labID,
		Name:      "Quality Control Lab",
		CreatedAt: now,
	}
	if err := r.InsertLab(ctx, l); err != nil {
		return fmt.Errorf("insert lab: %w", err)
	}
	return nil
}
