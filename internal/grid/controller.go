// Package grid is the composition root of the user-management grid: it
// merges presence deltas into the data source's current page, arbitrates
// inline editing, owns the row expansion set, and drives sort/resize/
// edit/expand interactions as one unit.
//
// The controller owns no row state itself beyond wiring. Fetch results,
// presence deltas and operator commands are all serialized through a
// single loop, so "concurrency" here is interleaving of independent
// asynchronous sources, never parallel mutation.
package grid

import (
	"context"
	"fmt"
	"time"

	"usergrid/internal/api"
	"usergrid/internal/datasource"
	"usergrid/internal/domain"
	"usergrid/internal/editing"
	"usergrid/internal/export"
	"usergrid/internal/layout"
	"usergrid/internal/presence"

	"go.uber.org/zap"
)

// Events is the narrow surface the grid exposes to the surrounding
// application, which owns the corresponding modals and detail views.
type Events interface {
	OnRowSelected(id string)
	OnRowDeleted(id string)
	OnEditFullProfile(id string)
}

// Notifier is the fire-and-forget announcement surface. The grid never
// depends on delivery succeeding.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Deleter is the slice of the API client used for row deletion.
type Deleter interface {
	DeleteUser(ctx context.Context, id string) error
}

// Controller wires the grid's subcomponents together.
type Controller struct {
	source  *datasource.Source
	arbiter *editing.Arbiter
	layouts *layout.Manager
	deleter Deleter
	events  Events
	notify  Notifier
	logger  *zap.Logger

	ops  chan func()
	done chan struct{}

	// loop-owned state, touched only from Run
	expanded    map[string]struct{}
	presenceOK  bool
	presenceSet bool
}

// Config collects the controller's collaborators.
type Config struct {
	Fetcher      datasource.Fetcher
	Deleter      Deleter
	Layouts      *layout.Manager
	Events       Events
	Notifier     Notifier
	InitialQuery datasource.Query
	Logger       *zap.Logger
}

// New builds a controller and its data source and edit arbiter.
// Call Run to start the loop and Subscribe the controller to a presence
// source before connecting it.
func New(cfg Config, saver editing.Saver) *Controller {
	c := &Controller{
		layouts:    cfg.Layouts,
		deleter:    cfg.Deleter,
		events:     cfg.Events,
		notify:     cfg.Notifier,
		logger:     cfg.Logger,
		ops:        make(chan func(), 64),
		done:       make(chan struct{}),
		expanded:   map[string]struct{}{},
		presenceOK: true,
	}
	c.source = datasource.NewSource(cfg.Fetcher, cfg.InitialQuery, c.onFetchResult, cfg.Logger)
	c.arbiter = editing.NewArbiter(saver, (*arbiterObserver)(c), cfg.Logger)
	return c
}

// Run processes queued events until ctx is cancelled. Blocking calls
// (saves, deletes, fetches) run on their own goroutines and post their
// outcomes back here, so a pending save never stops a presence delta from
// patching another row.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case op := <-c.ops:
			op()
		case <-ctx.Done():
			return
		}
	}
}

// post queues op onto the loop. Drops are impossible in practice (the
// queue is far deeper than the event sources are fast); blocking is the
// correct behaviour if it ever fills.
func (c *Controller) post(op func()) {
	select {
	case c.ops <- op:
	case <-c.done:
		// loop stopped mid-shutdown; late events are discarded
	}
}

// flush waits until everything queued before it has been applied.
func (c *Controller) flush() {
	ack := make(chan struct{})
	c.post(func() { close(ack) })
	select {
	case <-ack:
	case <-c.done:
	}
}

// ---- data plane ----------------------------------------------------------

func (c *Controller) onFetchResult(res datasource.Result) {
	c.post(func() {
		if !c.source.Apply(res) {
			return
		}
		// expansion entries are ephemeral: prune ids that fell off the page
		for id := range c.expanded {
			if _, ok := c.source.RowByID(id); !ok {
				delete(c.expanded, id)
			}
		}
	})
}

// navigate cancels any active inline edit (cancel, never silent save)
// before changing the query.
func (c *Controller) navigate(change func()) {
	c.arbiter.CancelActive()
	change()
}

func (c *Controller) SetPage(ctx context.Context, page int) {
	c.navigate(func() { c.source.SetPage(ctx, page) })
}

func (c *Controller) SetPageSize(ctx context.Context, size int) {
	c.navigate(func() { c.source.SetPageSize(ctx, size) })
}

func (c *Controller) SetSort(ctx context.Context, field string, desc bool) {
	c.navigate(func() { c.source.SetSort(ctx, field, desc) })
}

func (c *Controller) SetSearch(ctx context.Context, search string) {
	c.navigate(func() { c.source.SetSearch(ctx, search) })
}

func (c *Controller) SetRoleFilter(ctx context.Context, role domain.Role) {
	c.navigate(func() { c.source.SetRoleFilter(ctx, role) })
}

func (c *Controller) Refresh(ctx context.Context) {
	c.source.Refresh(ctx)
}

// Rows exposes the authoritative page.
func (c *Controller) Rows() []*domain.User { return c.source.Rows() }

// Total exposes the filtered collection size.
func (c *Controller) Total() int { return c.source.Total() }

// Query exposes the current composed query.
func (c *Controller) Query() datasource.Query { return c.source.Query() }

// PageError exposes the retained page-level fetch error, shown inline in
// place of the table body and retryable via Refresh.
func (c *Controller) PageError() error { return c.source.Err() }

// ---- presence ------------------------------------------------------------

// OnPresenceDelta implements presence.Subscriber. The patch is targeted:
// it flips one row's presence flag in place without re-fetching or
// re-sorting, and without disturbing edit or expansion state. Deltas for
// rows not on the page are no-ops.
func (c *Controller) OnPresenceDelta(d domain.PresenceDelta) {
	c.post(func() {
		if c.source.PatchPresence(d.UserID, d.IsOnline) {
			c.logger.Debug("presence patched",
				zap.String("user_id", d.UserID),
				zap.Bool("is_online", d.IsOnline),
			)
		}
	})
}

// OnResync implements presence.Subscriber: deltas missed during the
// disconnect window are never replayed, so re-fetch the authoritative page.
func (c *Controller) OnResync() {
	c.post(func() {
		c.presenceOK = true
		c.presenceSet = false
		c.source.Refresh(context.Background())
	})
}

// OnUnavailable implements presence.Subscriber. The indicator is
// persistent but non-blocking: the table stays usable with stale presence.
func (c *Controller) OnUnavailable() {
	c.post(func() {
		c.presenceOK = false
		if !c.presenceSet {
			c.presenceSet = true
			c.notify.Error("live status unavailable")
		}
	})
}

// PresenceAvailable reports whether the live feed is still delivering.
func (c *Controller) PresenceAvailable() bool {
	ok := make(chan bool, 1)
	c.post(func() { ok <- c.presenceOK })
	select {
	case v := <-ok:
		return v
	case <-c.done:
		return false
	}
}

// ---- inline editing ------------------------------------------------------

// RequestEdit opens the inline edit session for a row on the current page.
func (c *Controller) RequestEdit(id string) error {
	row, ok := c.source.RowByID(id)
	if !ok {
		return fmt.Errorf("row %s is not on the current page", id)
	}
	c.arbiter.RequestEdit(row)
	return nil
}

// UpdateDraft stages a change on the active session.
func (c *Controller) UpdateDraft(id string, change func(*domain.UserDraft)) error {
	return c.arbiter.UpdateDraft(id, change)
}

// CancelEdit discards the draft.
func (c *Controller) CancelEdit(id string) { c.arbiter.Cancel(id) }

// Save submits the draft off-loop; the outcome posts back through the
// arbiter observer.
func (c *Controller) Save(ctx context.Context, id string) {
	go func() {
		if err := c.arbiter.Save(ctx, id); err != nil {
			c.logger.Warn("save rejected", zap.String("row_id", id), zap.Error(err))
		}
	}()
}

// EditState exposes a row's session state for rendering.
func (c *Controller) EditState(id string) editing.State { return c.arbiter.StateOf(id) }

// Draft exposes the active draft buffer for rendering.
func (c *Controller) Draft(id string) (domain.UserDraft, bool) { return c.arbiter.Draft(id) }

// FieldErrors exposes validation messages for rendering next to inputs.
func (c *Controller) FieldErrors(id string) domain.ValidationErrors {
	return c.arbiter.FieldErrors(id)
}

// arbiterObserver routes editing outcomes back through the loop.
type arbiterObserver Controller

func (o *arbiterObserver) ctrl() *Controller { return (*Controller)(o) }

func (o *arbiterObserver) OnEditReverted(rowID string) {
	c := o.ctrl()
	c.post(func() {
		// the authoritative copy is already what the grid renders; nothing
		// to patch, the session itself was the only divergent state
		c.logger.Debug("edit reverted", zap.String("row_id", rowID))
	})
}

func (o *arbiterObserver) OnRowSaved(rowID string, row *domain.User) {
	c := o.ctrl()
	c.post(func() {
		c.source.ReplaceRow(row)
		c.notify.Success("user updated")
	})
}

func (o *arbiterObserver) OnEditFailed(rowID string, verrs domain.ValidationErrors, err error) {
	c := o.ctrl()
	c.post(func() {
		if err != nil {
			c.notify.Error("save failed: " + err.Error())
			return
		}
		// field-level messages render next to the row's inputs; the draft
		// is untouched
		c.notify.Error("save rejected: " + verrs.Error())
	})
}

// ---- expansion -----------------------------------------------------------

// ToggleExpanded flips a row's detail panel. Independent of edit sessions
// and of fetch state.
func (c *Controller) ToggleExpanded(id string) {
	c.post(func() {
		if _, ok := c.expanded[id]; ok {
			delete(c.expanded, id)
		} else {
			c.expanded[id] = struct{}{}
		}
	})
}

// IsExpanded reports whether a row's detail panel is open.
func (c *Controller) IsExpanded(id string) bool {
	ok := make(chan bool, 1)
	c.post(func() {
		_, open := c.expanded[id]
		ok <- open
	})
	select {
	case v := <-ok:
		return v
	case <-c.done:
		return false
	}
}

// ---- row actions ---------------------------------------------------------

// SelectRow forwards a row selection to the host application.
func (c *Controller) SelectRow(id string) { c.events.OnRowSelected(id) }

// EditFullProfile asks the host to open the full-profile dialog.
func (c *Controller) EditFullProfile(id string) { c.events.OnEditFullProfile(id) }

// DeleteRow removes a row via the CRUD API, off-loop, then refreshes the
// page and notifies the host.
func (c *Controller) DeleteRow(ctx context.Context, id string) {
	go func() {
		if err := c.deleter.DeleteUser(ctx, id); err != nil {
			c.post(func() { c.notify.Error("delete failed: " + err.Error()) })
			return
		}
		c.post(func() {
			if active, ok := c.arbiter.ActiveRowID(); ok && active == id {
				c.arbiter.Cancel(id)
			}
			delete(c.expanded, id)
			c.source.Refresh(ctx)
			c.events.OnRowDeleted(id)
			c.notify.Success("user deleted")
		})
	}()
}

// ExportPage renders the currently materialized rows, and only those,
// against the visible column layout.
func (c *Controller) ExportPage() (filename string, data []byte, err error) {
	data, err = export.Users(c.layouts.Columns(), c.source.Rows())
	if err != nil {
		return "", nil, fmt.Errorf("export page: %w", err)
	}
	return export.SnapshotName(time.Now()), data, nil
}

// Subscribe wires the controller into a presence source.
func (c *Controller) Subscribe(src presence.Source) { src.Subscribe(c) }

var _ presence.Subscriber = (*Controller)(nil)
var _ editing.Observer = (*arbiterObserver)(nil)
var _ datasource.Fetcher = (*api.Client)(nil)
