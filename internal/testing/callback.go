/*
SPDX-License-Identifier: Apache-2.0
*/

package testing

import (
	"context"
	"sync"

	"github.com/opskit/dispatch-runtime/pkg/callback"
	"github.com/opskit/dispatch-runtime/pkg/verdict"
)

var _ callback.Callback[*Widget] = (*SpyCallback)(nil)

// SpyCallback is a callback.Callback[*Widget] that records every
// invocation and returns canned results, configurable per call.
type SpyCallback struct {
	mutex sync.Mutex

	CreateOrUpdateCalls []*Widget
	DeleteCalls         []*Widget

	// CreateOrUpdateResult is returned verbatim by CreateOrUpdate unless
	// CreateOrUpdateFunc is set.
	CreateOrUpdateResult verdict.Verdict[*Widget]
	CreateOrUpdateErr    error
	CreateOrUpdateFunc   func(r *Widget) (verdict.Verdict[*Widget], error)

	// DeleteResult is returned verbatim by Delete unless DeleteFunc is set.
	DeleteResult bool
	DeleteErr    error
	DeleteFunc   func(r *Widget) (bool, error)
}

// NewSpyCallback returns a SpyCallback whose default verdict is NoUpdate
// and whose default Delete result is true (finalization complete).
func NewSpyCallback() *SpyCallback {
	return &SpyCallback{
		CreateOrUpdateResult: verdict.NoUpdate[*Widget](),
		DeleteResult:         true,
	}
}

// CreateOrUpdate implements callback.Callback.
func (s *SpyCallback) CreateOrUpdate(ctx context.Context, r *Widget) (verdict.Verdict[*Widget], error) {
	s.mutex.Lock()
	s.CreateOrUpdateCalls = append(s.CreateOrUpdateCalls, r.DeepCopy())
	s.mutex.Unlock()

	if s.CreateOrUpdateFunc != nil {
		return s.CreateOrUpdateFunc(r)
	}
	return s.CreateOrUpdateResult, s.CreateOrUpdateErr
}

// Delete implements callback.Callback.
func (s *SpyCallback) Delete(ctx context.Context, r *Widget) (bool, error) {
	s.mutex.Lock()
	s.DeleteCalls = append(s.DeleteCalls, r.DeepCopy())
	s.mutex.Unlock()

	if s.DeleteFunc != nil {
		return s.DeleteFunc(r)
	}
	return s.DeleteResult, s.DeleteErr
}

// CreateOrUpdateCallCount returns how many times CreateOrUpdate was
// invoked so far.
func (s *SpyCallback) CreateOrUpdateCallCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.CreateOrUpdateCalls)
}

// DeleteCallCount returns how many times Delete was invoked so far.
func (s *SpyCallback) DeleteCallCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.DeleteCalls)
}
