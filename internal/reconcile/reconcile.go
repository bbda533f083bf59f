// Package reconcile keeps a client-side view of a board that reflects local
// moves immediately and gives way to the server's state once it arrives.
//
// The view is either the latest authoritative snapshot pushed by the store
// or an optimistic overlay computed from it by applying unconfirmed moves.
// Overlays stack: a second move before the first is confirmed is applied on
// top of the overlay. Any rejected move discards the whole overlay.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/zap"

	"taskboard/internal/models"
	"taskboard/internal/reorder"
)

// Phase is the reconciliation state of the view.
type Phase int

const (
	// Synced shows the authoritative snapshot.
	Synced Phase = iota
	// Optimistic shows an overlay with moves the store has not reflected yet.
	Optimistic
	// Reverting follows a rejected move: the overlay is gone and the view is
	// back on the authoritative snapshot until the store pushes a new one.
	Reverting
)

func (p Phase) String() string {
	switch p {
	case Synced:
		return "synced"
	case Optimistic:
		return "optimistic"
	case Reverting:
		return "reverting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Mover sends a move to the durable store.
type Mover interface {
	MoveTask(ctx context.Context, taskID, listID string, index int) error
}

// SnapshotSource streams full board snapshots, one per change.
type SnapshotSource interface {
	Subscribe(ctx context.Context, boardID string) (<-chan models.Snapshot, error)
}

// Options configures a Reconciler.
type Options struct {
	Logger *zap.Logger
	// OnChange receives the view each time it changes.
	OnChange func(models.Snapshot)
	// OnError receives rejected moves. The error is not fatal; the user may retry.
	OnError func(error)
}

var snapshotCompare = cmpopts.EquateEmpty()

// Equal reports whether two snapshots are structurally identical.
func Equal(a, b models.Snapshot) bool {
	return cmp.Equal(a, b, snapshotCompare)
}

// Reconciler is safe for concurrent use. Snapshots from the store and
// results of remote moves typically arrive on different goroutines.
type Reconciler struct {
	mover    Mover
	log      *zap.Logger
	onChange func(models.Snapshot)
	onError  func(error)

	mu            sync.Mutex
	phase         Phase
	authoritative models.Snapshot
	loaded        bool
	overlay       models.Snapshot
	base          models.Snapshot
	generation    uint64

	inflight sync.WaitGroup
}

// New returns a Reconciler that sends moves through mover.
func New(mover Mover, opts Options) *Reconciler {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		mover:    mover,
		log:      log,
		onChange: opts.OnChange,
		onError:  opts.OnError,
	}
}

// Phase returns the current state.
func (r *Reconciler) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

// View returns the snapshot to render and whether any snapshot has been
// received yet.
func (r *Reconciler) View() (models.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked(), r.loaded
}

// Authoritative returns the last snapshot received from the store.
func (r *Reconciler) Authoritative() models.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authoritative
}

func (r *Reconciler) viewLocked() models.Snapshot {
	if r.phase == Optimistic {
		return r.overlay
	}
	return r.authoritative
}

// ApplyAuthoritative records a snapshot pushed by the store. An overlay is
// dropped as soon as the store's state differs from the snapshot the
// overlay was built on; until then the overlay stays visible.
func (r *Reconciler) ApplyAuthoritative(snap models.Snapshot) {
	r.mu.Lock()
	changed := false
	switch r.phase {
	case Optimistic:
		if !Equal(snap, r.base) {
			r.log.Debug("overlay superseded by store",
				zap.String("board_id", snap.Board.ID),
				zap.Uint64("generation", r.generation))
			r.overlay = models.Snapshot{}
			r.base = models.Snapshot{}
			r.phase = Synced
			changed = true
		}
	case Reverting:
		r.phase = Synced
		changed = !Equal(snap, r.authoritative)
	default:
		changed = !r.loaded || !Equal(snap, r.authoritative)
	}
	r.authoritative = snap
	r.loaded = true
	view := r.viewLocked()
	r.mu.Unlock()

	if changed {
		r.emit(view)
	}
}

// ApplyOptimistic applies m to the current view and shows the result. It
// returns false, leaving the view untouched, when there is nothing to show
// yet or the move changes nothing (unknown task or list, same position).
func (r *Reconciler) ApplyOptimistic(m reorder.Move) (models.Snapshot, bool) {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return models.Snapshot{}, false
	}

	current := r.viewLocked()
	next := reorder.Apply(current, m)
	if !moved(current, next) {
		r.mu.Unlock()
		return current, false
	}

	if r.phase != Optimistic {
		r.base = r.authoritative
		r.generation++
	}
	r.overlay = next
	r.phase = Optimistic
	r.log.Debug("optimistic move applied",
		zap.String("task_id", m.TaskID),
		zap.String("list_id", m.ListID),
		zap.Int("index", m.Index),
		zap.Uint64("generation", r.generation))
	r.mu.Unlock()

	r.emit(next)
	return next, true
}

// OnRemoteResolved handles the outcome of a remote move. Success leaves the
// overlay for the store's next snapshot to replace. Failure discards the
// overlay, including any other unconfirmed moves stacked on it.
func (r *Reconciler) OnRemoteResolved(err error) {
	if err == nil {
		return
	}

	r.mu.Lock()
	reverted := r.phase == Optimistic
	if reverted {
		r.overlay = models.Snapshot{}
		r.base = models.Snapshot{}
		r.phase = Reverting
	}
	view := r.viewLocked()
	gen := r.generation
	r.mu.Unlock()

	r.log.Error("move rejected by store",
		zap.Error(err),
		zap.Bool("reverted", reverted),
		zap.Uint64("generation", gen))
	if reverted {
		r.emit(view)
	}
	if r.onError != nil {
		r.onError(err)
	}
}

// Move shows m immediately and sends it to the store in the background.
// It returns false when the move was not applied and nothing was sent.
// Moves already in flight are never cancelled by later ones.
func (r *Reconciler) Move(ctx context.Context, m reorder.Move) bool {
	if _, ok := r.ApplyOptimistic(m); !ok {
		return false
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		err := r.mover.MoveTask(ctx, m.TaskID, m.ListID, m.Index)
		if err != nil {
			err = fmt.Errorf("move task %s: %w", m.TaskID, err)
		}
		r.OnRemoteResolved(err)
	}()
	return true
}

// Wait blocks until every move sent by Move has resolved.
func (r *Reconciler) Wait() {
	r.inflight.Wait()
}

// Run feeds snapshots for boardID from src into the reconciler until ctx is
// done or the source closes its stream.
func (r *Reconciler) Run(ctx context.Context, src SnapshotSource, boardID string) error {
	updates, err := src.Subscribe(ctx, boardID)
	if err != nil {
		return fmt.Errorf("subscribe to board %s: %w", boardID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			r.ApplyAuthoritative(snap)
		}
	}
}

func (r *Reconciler) emit(view models.Snapshot) {
	if r.onChange != nil {
		r.onChange(view)
	}
}

// moved reports whether next was derived with a change. reorder returns its
// input unchanged for no-op moves and always allocates a new Lists slice
// otherwise.
func moved(current, next models.Snapshot) bool {
	if len(next.Lists) == 0 {
		return false
	}
	return &current.Lists[0] != &next.Lists[0]
}
