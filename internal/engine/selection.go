package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// SessionState tracks where a selection session is in its load cycle.
// Mutations are only honored once the session is synced with the store.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateLoading
	StateSynced
)

func (s SessionState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSynced:
		return "synced"
	default:
		return "uninitialized"
	}
}

// SelectionSession holds the in-memory bacteria selection for one form
// while a user edits it. Loads are guarded by a generation counter so a
// fetch that started before a form switch cannot clobber the selection
// of the new form.
type SelectionSession struct {
	eng Engine

	mu       sync.Mutex
	formID   string
	state    SessionState
	gen      uint64
	selected []string
}

func NewSelectionSession(eng Engine, formID string) *SelectionSession {
	return &SelectionSession{eng: eng, formID: formID}
}

func (s *SelectionSession) FormID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formID
}

func (s *SelectionSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Selected returns a copy of the current display-name selection.
func (s *SelectionSession) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.selected))
	copy(out, s.selected)
	return out
}

// BeginLoad marks the session loading and returns the generation token
// the eventual ApplyLoad must present.
func (s *SelectionSession) BeginLoad() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.state = StateLoading
	return s.gen
}

// ApplyLoad installs fetched rows if gen is still current. A stale
// generation is discarded and the call reports false.
func (s *SelectionSession) ApplyLoad(gen uint64, names []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.selected = make([]string, len(names))
	copy(s.selected, names)
	s.state = StateSynced
	return true
}

// Load fetches the persisted selection for the session's form. A fetch
// failure falls back to the mirrored copy of the last successful write,
// and degrades to an empty selection when no mirror entry exists either;
// the error is logged, not returned.
func (s *SelectionSession) Load(ctx context.Context) {
	s.mu.Lock()
	formID := s.formID
	s.mu.Unlock()

	gen := s.BeginLoad()
	rows, err := s.eng.Repo.ListSelectionsByForm(ctx, formID)
	if err != nil {
		if names, ok := s.eng.Mirror.Get(formID); ok {
			s.eng.Log.Warn("loading selection failed, serving mirrored copy",
				zap.String("form_id", formID), zap.Error(err))
			s.ApplyLoad(gen, names)
			return
		}
		s.eng.Log.Warn("loading selection failed, starting empty",
			zap.String("form_id", formID), zap.Error(err))
		s.ApplyLoad(gen, nil)
		return
	}
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.BacteriaName)
	}
	s.ApplyLoad(gen, names)
}

// SwitchForm points the session at another form and reloads. Any load
// still in flight for the previous form is invalidated by the bumped
// generation.
func (s *SelectionSession) SwitchForm(ctx context.Context, formID string) {
	s.mu.Lock()
	s.formID = formID
	s.selected = nil
	s.state = StateUninitialized
	s.mu.Unlock()
	s.Load(ctx)
}

// Toggle flips one species in or out of the selection and persists the
// result. While the session is not synced the call is a no-op, so a
// click racing a load cannot write against half-loaded state.
func (s *SelectionSession) Toggle(ctx context.Context, name, actorID string) error {
	s.mu.Lock()
	if s.state != StateSynced {
		s.mu.Unlock()
		return nil
	}
	next := make([]string, 0, len(s.selected)+1)
	found := false
	for _, n := range s.selected {
		if n == name {
			found = true
			continue
		}
		next = append(next, n)
	}
	if !found {
		next = append(next, name)
	}
	s.selected = next
	formID := s.formID
	names := make([]string, len(next))
	copy(names, next)
	s.mu.Unlock()

	return s.persist(ctx, formID, names, actorID)
}

// Set replaces the whole in-memory selection and persists it. No-op
// unless synced, like Toggle.
func (s *SelectionSession) Set(ctx context.Context, names []string, actorID string) error {
	s.mu.Lock()
	if s.state != StateSynced {
		s.mu.Unlock()
		return nil
	}
	s.selected = make([]string, len(names))
	copy(s.selected, names)
	formID := s.formID
	s.mu.Unlock()

	return s.persist(ctx, formID, names, actorID)
}

// persist writes through to the store. The in-memory selection is kept
// even when the write fails; the caller surfaces the error once and the
// next successful write reconciles.
func (s *SelectionSession) persist(ctx context.Context, formID string, names []string, actorID string) error {
	if err := s.eng.ReplaceSelection(ctx, formID, names, actorID); err != nil {
		s.eng.Log.Warn("persisting selection failed",
			zap.String("form_id", formID), zap.Error(err))
		return err
	}
	return nil
}
