// Package form provides the per-operation UI state machines that drive the
// mutation coordinator: a create dialog, an edit dialog, and a delete
// confirmation. Each adapter tracks open/saving/error state, debounces
// duplicate submissions, and only treats a mutation as committed once the
// coordinator returns success.
package form

import (
	"context"
	"sync"

	"github.com/orrery-dev/orrery/pkg/mutate"
)

// dialogCore holds the state shared by all three adapters.
type dialogCore struct {
	mu       sync.Mutex
	open     bool
	state    mutate.State
	errMsg   string
	onChange func()
}

// IsOpen reports whether the dialog is visible.
func (d *dialogCore) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// State returns the lifecycle state of the dialog's current or most recent
// submission.
func (d *dialogCore) State() mutate.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsSaving reports whether a submission is in flight.
func (d *dialogCore) IsSaving() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state == mutate.StateRunning
}

// Err returns the error message from the last failed submission, or "".
func (d *dialogCore) Err() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.errMsg
}

// Close hides the dialog and clears any displayed error. Closing while a
// submission is in flight is ignored; the outcome decides what happens.
func (d *dialogCore) Close() {
	d.mu.Lock()
	if d.state == mutate.StateRunning {
		d.mu.Unlock()
		return
	}
	d.open = false
	d.errMsg = ""
	d.mu.Unlock()
	d.notify()
}

func (d *dialogCore) openDialog() {
	d.mu.Lock()
	d.open = true
	d.state = mutate.StateIdle
	d.errMsg = ""
	d.mu.Unlock()
	d.notify()
}

// beginSubmit flips the saving flag, refusing re-entry while a prior
// submission is pending. This is the adapter-level debounce the coordinator
// relies on.
func (d *dialogCore) beginSubmit() bool {
	d.mu.Lock()
	if !d.open || d.state == mutate.StateRunning {
		d.mu.Unlock()
		return false
	}
	d.state = mutate.StateRunning
	d.errMsg = ""
	d.mu.Unlock()
	d.notify()
	return true
}

// finishSubmit applies the coordinator's outcome: success closes the
// dialog, failure keeps it open with the error message displayed.
func (d *dialogCore) finishSubmit(err error) {
	d.mu.Lock()
	if err != nil {
		d.state = mutate.StateError
		d.errMsg = mutate.NormalizeMessage(err)
	} else {
		d.state = mutate.StateSuccess
		d.open = false
		d.errMsg = ""
	}
	d.mu.Unlock()
	d.notify()
}

func (d *dialogCore) notify() {
	if d.onChange != nil {
		d.onChange()
	}
}

// CreateDialog drives the coordinator's Create operation.
type CreateDialog[T, C, P any] struct {
	dialogCore
	coord *mutate.Coordinator[T, C, P]
}

// NewCreateDialog builds a closed create dialog. onChange, if non-nil, is
// invoked after every visible state transition (the UI's re-render hook).
func NewCreateDialog[T, C, P any](coord *mutate.Coordinator[T, C, P], onChange func()) *CreateDialog[T, C, P] {
	d := &CreateDialog[T, C, P]{coord: coord}
	d.onChange = onChange
	return d
}

// Open shows the dialog with a clean slate.
func (d *CreateDialog[T, C, P]) Open() { d.openDialog() }

// Submit runs the create mutation. It returns false when the submission was
// debounced (dialog closed or a prior submission still pending). The call
// blocks until the mutation settles.
func (d *CreateDialog[T, C, P]) Submit(ctx context.Context, payload C) bool {
	if !d.beginSubmit() {
		return false
	}
	_, err := d.coord.Create(ctx, payload)
	d.finishSubmit(err)
	return true
}

// EditDialog drives the coordinator's Update operation for one entity.
type EditDialog[T, C, P any] struct {
	dialogCore
	coord    *mutate.Coordinator[T, C, P]
	targetID string
}

// NewEditDialog builds a closed edit dialog.
func NewEditDialog[T, C, P any](coord *mutate.Coordinator[T, C, P], onChange func()) *EditDialog[T, C, P] {
	d := &EditDialog[T, C, P]{coord: coord}
	d.onChange = onChange
	return d
}

// Open shows the dialog targeting the entity with id.
func (d *EditDialog[T, C, P]) Open(id string) {
	d.mu.Lock()
	d.targetID = id
	d.mu.Unlock()
	d.openDialog()
}

// TargetID returns the id the dialog is editing.
func (d *EditDialog[T, C, P]) TargetID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targetID
}

// Submit runs the update mutation against the target entity.
func (d *EditDialog[T, C, P]) Submit(ctx context.Context, patch P) bool {
	if !d.beginSubmit() {
		return false
	}
	d.mu.Lock()
	id := d.targetID
	d.mu.Unlock()
	_, err := d.coord.Update(ctx, id, patch)
	d.finishSubmit(err)
	return true
}

// DeleteConfirm drives the coordinator's Delete operation behind a
// confirmation prompt.
type DeleteConfirm[T, C, P any] struct {
	dialogCore
	coord    *mutate.Coordinator[T, C, P]
	targetID string
}

// NewDeleteConfirm builds a closed delete confirmation.
func NewDeleteConfirm[T, C, P any](coord *mutate.Coordinator[T, C, P], onChange func()) *DeleteConfirm[T, C, P] {
	d := &DeleteConfirm[T, C, P]{coord: coord}
	d.onChange = onChange
	return d
}

// Open shows the confirmation for the entity with id.
func (d *DeleteConfirm[T, C, P]) Open(id string) {
	d.mu.Lock()
	d.targetID = id
	d.mu.Unlock()
	d.openDialog()
}

// TargetID returns the id pending deletion.
func (d *DeleteConfirm[T, C, P]) TargetID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targetID
}

// Confirm runs the delete mutation against the target entity.
func (d *DeleteConfirm[T, C, P]) Confirm(ctx context.Context) bool {
	if !d.beginSubmit() {
		return false
	}
	d.mu.Lock()
	id := d.targetID
	d.mu.Unlock()
	err := d.coord.Delete(ctx, id)
	d.finishSubmit(err)
	return true
}
