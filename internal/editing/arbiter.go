// Package editing implements the inline edit state machine for grid rows.
// A dedicated arbiter owns "which row id, if any, is editing": RequestEdit
// is the only way into the Editing state and implicitly cancels the
// previous holder, which is how single-focus editing stays single.
package editing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"usergrid/internal/domain"

	"go.uber.org/zap"
)

// State of one row's edit session. Viewing is both initial and terminal.
type State string

const (
	StateViewing State = "viewing"
	StateEditing State = "editing"
	StateSaving  State = "saving"
)

var (
	ErrNoActiveEdit = errors.New("row has no active edit session")
	ErrSaveInFlight = errors.New("a save is already in flight for this row")
)

// Saver is the slice of the API client the arbiter needs. The save path
// re-fetches the canonical row after a successful update so the grid
// reflects server-side validation and normalization, never the optimistic
// draft.
type Saver interface {
	UpdateUser(ctx context.Context, id string, draft domain.UserDraft) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// Observer receives session outcomes. Callbacks run on the goroutine that
// triggered the transition.
type Observer interface {
	// OnEditReverted fires when a session is cancelled (explicitly or by a
	// new RequestEdit) and the row's rendered fields revert to the
	// authoritative copy.
	OnEditReverted(rowID string)
	// OnRowSaved delivers the canonical row after a successful save.
	OnRowSaved(rowID string, row *domain.User)
	// OnEditFailed fires when a save is rejected. Field-level problems come
	// through verrs; transport failures through err. The draft stays intact
	// either way.
	OnEditFailed(rowID string, verrs domain.ValidationErrors, err error)
}

// session is one row's machine. Only the arbiter creates these.
type session struct {
	rowID       string
	state       State
	draft       domain.UserDraft
	fieldErrors domain.ValidationErrors
}

// Arbiter enforces the at-most-one-Editing/Saving invariant per grid.
type Arbiter struct {
	saver    Saver
	observer Observer
	logger   *zap.Logger

	mu     sync.Mutex
	active *session
}

func NewArbiter(saver Saver, observer Observer, logger *zap.Logger) *Arbiter {
	return &Arbiter{saver: saver, observer: observer, logger: logger}
}

// RequestEdit opens an edit session for row, snapshotting its editable
// fields into the draft buffer. Any other row currently Editing or Saving
// is forced back to Viewing with its draft discarded.
// The identity field (user_account) is never part of the draft.
func (a *Arbiter) RequestEdit(row *domain.User) {
	a.mu.Lock()
	var reverted string
	if a.active != nil && a.active.rowID != row.ID {
		reverted = a.active.rowID
	}
	a.active = &session{
		rowID: row.ID,
		state: StateEditing,
		draft: domain.DraftOf(row),
	}
	a.mu.Unlock()

	if reverted != "" {
		a.logger.Debug("edit session displaced", zap.String("row_id", reverted))
		a.observer.OnEditReverted(reverted)
	}
}

// Cancel discards the draft and returns the row to Viewing.
func (a *Arbiter) Cancel(rowID string) {
	a.mu.Lock()
	if a.active == nil || a.active.rowID != rowID {
		a.mu.Unlock()
		return
	}
	a.active = nil
	a.mu.Unlock()
	a.observer.OnEditReverted(rowID)
}

// CancelActive cancels whichever row is editing, if any. Used on
// navigation: leaving the page must never silently save.
func (a *Arbiter) CancelActive() {
	a.mu.Lock()
	if a.active == nil {
		a.mu.Unlock()
		return
	}
	rowID := a.active.rowID
	a.active = nil
	a.mu.Unlock()
	a.observer.OnEditReverted(rowID)
}

// ActiveRowID reports which row holds the edit session.
func (a *Arbiter) ActiveRowID() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return "", false
	}
	return a.active.rowID, true
}

// StateOf returns rowID's state; rows without a session are Viewing.
func (a *Arbiter) StateOf(rowID string) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.active.rowID != rowID {
		return StateViewing
	}
	return a.active.state
}

// Draft returns a copy of the row's draft buffer.
func (a *Arbiter) Draft(rowID string) (domain.UserDraft, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.active.rowID != rowID {
		return domain.UserDraft{}, false
	}
	return a.active.draft, true
}

// FieldErrors returns the validation messages from the last failed save.
func (a *Arbiter) FieldErrors(rowID string) domain.ValidationErrors {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.active.rowID != rowID {
		return nil
	}
	return a.active.fieldErrors
}

// UpdateDraft stages changes to the row's editable fields. Only legal in
// Editing.
func (a *Arbiter) UpdateDraft(rowID string, change func(*domain.UserDraft)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil || a.active.rowID != rowID {
		return fmt.Errorf("%w: %s", ErrNoActiveEdit, rowID)
	}
	if a.active.state != StateEditing {
		return fmt.Errorf("%w: %s", ErrSaveInFlight, rowID)
	}
	change(&a.active.draft)
	return nil
}

// Save submits the draft: Editing → Saving, then on success Viewing (with
// the canonical re-fetched row delivered to the observer), on failure back
// to Editing with the draft and field errors intact.
func (a *Arbiter) Save(ctx context.Context, rowID string) error {
	a.mu.Lock()
	if a.active == nil || a.active.rowID != rowID {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoActiveEdit, rowID)
	}
	if a.active.state != StateEditing {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSaveInFlight, rowID)
	}
	sess := a.active
	sess.state = StateSaving
	draft := sess.draft
	a.mu.Unlock()

	updated, err := a.saver.UpdateUser(ctx, rowID, draft)
	if err == nil {
		// trust the server, not the optimistic draft
		if canonical, ferr := a.saver.GetUser(ctx, rowID); ferr == nil {
			updated = canonical
		} else {
			a.logger.Warn("post-save re-fetch failed, using update response",
				zap.String("row_id", rowID),
				zap.Error(ferr),
			)
		}
	}

	a.mu.Lock()
	if a.active != sess {
		// displaced or cancelled while the save was in flight; the outcome
		// has no session to land in
		a.mu.Unlock()
		a.logger.Debug("discarding save outcome for displaced session",
			zap.String("row_id", rowID),
		)
		return nil
	}

	if err != nil {
		sess.state = StateEditing // draft intact, operator input preserved
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			sess.fieldErrors = verrs
			a.mu.Unlock()
			a.observer.OnEditFailed(rowID, verrs, nil)
			return nil
		}
		sess.fieldErrors = nil
		a.mu.Unlock()
		a.observer.OnEditFailed(rowID, nil, err)
		return nil
	}

	a.active = nil
	a.mu.Unlock()
	a.observer.OnRowSaved(rowID, updated)
	return nil
}
