/*
SPDX-License-Identifier: Apache-2.0
*/

package testing

import (
	"context"
	"strconv"
	"sync"

	"github.com/opskit/dispatch-runtime/pkg/dispatcherr"
	"github.com/opskit/dispatch-runtime/pkg/facade"
)

var _ facade.Facade[*Widget] = (*FakeFacade)(nil)

// FakeFacade is an in-memory facade.Facade[*Widget] keyed by UID. It
// enforces the same resourceVersion precondition a real API server would
// for ReplaceWithLock, so tests can exercise optimistic-lock conflicts
// without envtest.
type FakeFacade struct {
	mutex  sync.Mutex
	stored map[string]*Widget
	rv     int

	// ConflictOnReplace, if set, makes the next ReplaceWithLock call for
	// this UID fail with a dispatcherr.ConflictError instead of applying.
	ConflictOnReplace map[string]bool
}

// NewFakeFacade returns an empty FakeFacade.
func NewFakeFacade() *FakeFacade {
	return &FakeFacade{
		stored:            make(map[string]*Widget),
		ConflictOnReplace: make(map[string]bool),
	}
}

// Seed registers w as if it had already been created in the cluster.
func (f *FakeFacade) Seed(w *Widget) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.rv++
	w = w.DeepCopy()
	w.ResourceVersion = strconv.Itoa(f.rv)
	f.stored[string(w.UID)] = w
}

// ReplaceWithLock implements facade.Facade.
func (f *FakeFacade) ReplaceWithLock(ctx context.Context, w *Widget) (*Widget, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	uid := string(w.UID)
	if f.ConflictOnReplace[uid] {
		delete(f.ConflictOnReplace, uid)
		return nil, dispatcherr.NewConflictError(errConflict)
	}

	current, exists := f.stored[uid]
	if exists && w.ResourceVersion != "" && w.ResourceVersion != current.ResourceVersion {
		return nil, dispatcherr.NewConflictError(errConflict)
	}

	f.rv++
	updated := w.DeepCopy()
	updated.ResourceVersion = strconv.Itoa(f.rv)
	f.stored[uid] = updated
	return updated.DeepCopy(), nil
}

// UpdateStatus implements facade.Facade. It leaves ResourceVersion
// untouched, mirroring a status-subresource write against the main
// object's optimistic-lock token.
func (f *FakeFacade) UpdateStatus(ctx context.Context, w *Widget) (*Widget, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	uid := string(w.UID)
	current, exists := f.stored[uid]
	if !exists {
		current = w.DeepCopy()
	}
	updated := current.DeepCopy()
	updated.Status = w.Status
	f.stored[uid] = updated
	return updated.DeepCopy(), nil
}

// Get returns the stored state for uid, if any.
func (f *FakeFacade) Get(uid string) (*Widget, bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	w, ok := f.stored[uid]
	if !ok {
		return nil, false
	}
	return w.DeepCopy(), true
}

var errConflict = conflictErr{}

type conflictErr struct{}

func (conflictErr) Error() string { return "resourceVersion precondition failed" }
