// Package layout is the single source of truth for which grid columns
// render, in what order, how wide, and whether sortable. It is independent
// of data content and persists write-through to the durable KV store.
package layout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"usergrid/internal/domain"
	"usergrid/internal/store"

	"go.uber.org/zap"
)

// MinColumnWidth is the floor every resize is clamped to. No proportional
// redistribution: this is a fixed grid, not a flex layout.
const MinColumnWidth = 100

// StoreKey is the fixed KV key the layout persists under.
const StoreKey = "usergrid:column-layout"

var (
	ErrUnknownColumn   = errors.New("unknown column id")
	ErrNotResizable    = errors.New("column is not resizable")
	ErrGestureConflict = errors.New("another gesture is in progress on this column")
)

// GestureKind marks which interaction currently holds a column.
// One gesture at a time per column; a resize during a drag-reorder of the
// same column is rejected rather than left undefined.
type GestureKind string

const (
	GestureResize  GestureKind = "resize"
	GestureReorder GestureKind = "reorder"
)

// DefaultColumns is the built-in layout. The identity column comes first
// and can be hidden but never removed from the model.
func DefaultColumns() []domain.ColumnDef {
	return []domain.ColumnDef{
		{ID: "user_account", Label: "Account", Field: "user_account", Visible: true, Width: 160, Sortable: true, Resizable: true},
		{ID: "name", Label: "Name", Field: "name", Visible: true, Width: 180, Sortable: true, Resizable: true},
		{ID: "email", Label: "Email", Field: "email", Visible: true, Width: 220, Sortable: true, Resizable: true},
		{ID: "phone", Label: "Phone", Field: "phone", Visible: true, Width: 140, Sortable: false, Resizable: true},
		{ID: "company", Label: "Company", Field: "company", Visible: true, Width: 160, Sortable: true, Resizable: true},
		{ID: "role", Label: "Role", Field: "role", Visible: true, Width: 140, Sortable: true, Resizable: true},
		{ID: "is_active", Label: "Active", Field: "is_active", Visible: true, Width: 100, Sortable: true, Resizable: false},
		{ID: "is_online", Label: "Online", Field: "is_online", Visible: true, Width: 100, Sortable: false, Resizable: false},
		{ID: "last_login_at", Label: "Last Login", Field: "last_login_at", Visible: true, Width: 170, Sortable: true, Resizable: true},
		{ID: "date_joined", Label: "Joined", Field: "date_joined", Visible: true, Width: 170, Sortable: true, Resizable: true},
	}
}

// Manager owns the ordered column list. Every mutation persists before the
// next one is accepted (the mutex serializes them), so a crash or reload
// never loses a change mid-session.
type Manager struct {
	kv     store.KV
	key    string
	logger *zap.Logger

	mu       sync.Mutex
	cols     []domain.ColumnDef
	gestures map[string]GestureKind
}

// NewManager builds a manager starting from the default layout.
func NewManager(kv store.KV, logger *zap.Logger) *Manager {
	return &Manager{
		kv:       kv,
		key:      StoreKey,
		logger:   logger,
		cols:     DefaultColumns(),
		gestures: map[string]GestureKind{},
	}
}

// Load reads the persisted layout. Absent or malformed data falls back to
// the defaults silently. Entries referencing ids absent from the default
// set are filtered out rather than rendered as blank columns; columns added
// to the defaults since the layout was saved are appended at the end.
func (m *Manager) Load(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := m.kv.Get(ctx, m.key)
	if err != nil {
		if !errors.Is(err, store.ErrMiss) {
			m.logger.Warn("layout load failed, using defaults", zap.Error(err))
		}
		m.cols = DefaultColumns()
		return
	}

	var persisted []domain.ColumnDef
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		m.logger.Warn("discarding corrupt persisted layout", zap.Error(err))
		m.cols = DefaultColumns()
		return
	}

	m.cols = mergeWithDefaults(persisted)
}

// mergeWithDefaults reconciles a persisted layout against the built-in one:
// the result is a permutation of the default id set with the operator's
// order, visibility and (floor-clamped) widths where known.
func mergeWithDefaults(persisted []domain.ColumnDef) []domain.ColumnDef {
	defaults := DefaultColumns()
	byID := make(map[string]domain.ColumnDef, len(defaults))
	for _, d := range defaults {
		byID[d.ID] = d
	}

	out := make([]domain.ColumnDef, 0, len(defaults))
	seen := map[string]bool{}
	for _, p := range persisted {
		d, ok := byID[p.ID]
		if !ok || seen[p.ID] {
			continue // stale id from an older default set, or a duplicate
		}
		seen[p.ID] = true
		d.Visible = p.Visible
		if d.Resizable {
			d.Width = clampWidth(p.Width)
		}
		out = append(out, d)
	}
	for _, d := range defaults {
		if !seen[d.ID] {
			out = append(out, d)
		}
	}
	return out
}

func clampWidth(w int) int {
	if w < MinColumnWidth {
		return MinColumnWidth
	}
	return w
}

// Columns returns the full ordered layout (hidden columns included).
func (m *Manager) Columns() []domain.ColumnDef {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.CloneColumns(m.cols)
}

// VisibleColumns returns the columns that currently render, in order.
// An empty result is legal: the table renders with only the action column.
func (m *Manager) VisibleColumns() []domain.ColumnDef {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ColumnDef, 0, len(m.cols))
	for _, c := range m.cols {
		if c.Visible {
			out = append(out, c)
		}
	}
	return out
}

// ToggleVisible flips one column's visibility and persists.
func (m *Manager) ToggleVisible(ctx context.Context, columnID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(columnID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, columnID)
	}
	m.cols[i].Visible = !m.cols[i].Visible
	return m.persist(ctx)
}

// SetWidth resizes one column, clamped to MinColumnWidth. Neighbouring
// columns are never redistributed.
func (m *Manager) SetWidth(ctx context.Context, columnID string, width int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.find(columnID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, columnID)
	}
	if !m.cols[i].Resizable {
		return fmt.Errorf("%w: %s", ErrNotResizable, columnID)
	}
	if g, active := m.gestures[columnID]; active && g != GestureResize {
		return fmt.Errorf("%w: %s holds a %s gesture", ErrGestureConflict, columnID, g)
	}
	m.cols[i].Width = clampWidth(width)
	return m.persist(ctx)
}

// Move relocates the column at fromIndex to toIndex; stable for all others.
func (m *Manager) Move(ctx context.Context, fromIndex, toIndex int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fromIndex < 0 || fromIndex >= len(m.cols) || toIndex < 0 || toIndex >= len(m.cols) {
		return fmt.Errorf("move: index out of range (%d -> %d of %d)", fromIndex, toIndex, len(m.cols))
	}
	moving := m.cols[fromIndex]
	if g, active := m.gestures[moving.ID]; active && g != GestureReorder {
		return fmt.Errorf("%w: %s holds a %s gesture", ErrGestureConflict, moving.ID, g)
	}
	if fromIndex == toIndex {
		return nil
	}
	cols := append(m.cols[:fromIndex:fromIndex], m.cols[fromIndex+1:]...)
	cols = append(cols[:toIndex:toIndex], append([]domain.ColumnDef{moving}, cols[toIndex:]...)...)
	m.cols = cols
	return m.persist(ctx)
}

// Reset restores the built-in defaults and clears the persisted copy.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cols = DefaultColumns()
	if err := m.kv.Del(ctx, m.key); err != nil {
		return fmt.Errorf("clear persisted layout: %w", err)
	}
	return nil
}

// BeginGesture claims a column for one interaction. A second gesture on
// the same column is rejected until EndGesture releases it.
func (m *Manager) BeginGesture(columnID string, kind GestureKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.find(columnID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownColumn, columnID)
	}
	if g, active := m.gestures[columnID]; active {
		return fmt.Errorf("%w: %s holds a %s gesture", ErrGestureConflict, columnID, g)
	}
	m.gestures[columnID] = kind
	return nil
}

// EndGesture releases a column. Releasing an idle column is a no-op.
func (m *Manager) EndGesture(columnID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.gestures, columnID)
}

func (m *Manager) find(columnID string) (int, bool) {
	for i, c := range m.cols {
		if c.ID == columnID {
			return i, true
		}
	}
	return 0, false
}

// persist writes the layout verbatim. Called under the mutex on every
// mutation: write-through, never batched.
func (m *Manager) persist(ctx context.Context) error {
	b, err := json.Marshal(m.cols)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if err := m.kv.Set(ctx, m.key, string(b), 0); err != nil {
		return fmt.Errorf("persist layout: %w", err)
	}
	return nil
}
