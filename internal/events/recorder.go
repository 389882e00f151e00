/*
SPDX-License-Identifier: Apache-2.0
*/

// Package events wraps a client-go event recorder with deduplication:
// a Kubernetes event that repeats the (type, reason, message) tuple of the
// last event emitted for the same resource UID within a time window is
// dropped, so a hot retry loop does not flood the object's event list.
// Only the most recent emission per UID is remembered.
package events

import (
	"sync"
	"time"

	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// dedupeWindow bounds how long a previously emitted event suppresses a
// repeat with the same digest.
const dedupeWindow = 5 * time.Minute

// Recorder wraps a client-go record.EventRecorder with UID-keyed
// deduplication.
type Recorder struct {
	recorder record.EventRecorder
	mutex    sync.Mutex
	last     map[string]emission
}

type emission struct {
	digest string
	at     time.Time
}

// NewRecorder wraps recorder with deduplication.
func NewRecorder(recorder record.EventRecorder) *Recorder {
	return &Recorder{recorder: recorder, last: make(map[string]emission)}
}

// Event records a Kubernetes event against object unless the most recent
// event recorded for the same object UID had an identical (eventType,
// reason, message) tuple and was recorded within dedupeWindow. An earlier
// tuple followed by a different one is not remembered, so it is emitted
// again when it recurs.
func (r *Recorder) Event(object client.Object, eventType, reason, message string) {
	uid := string(object.GetUID())
	digest := eventType + "\x00" + reason + "\x00" + message
	now := time.Now()

	r.mutex.Lock()
	defer r.mutex.Unlock()

	for key, e := range r.last {
		if now.Sub(e.at) > dedupeWindow {
			delete(r.last, key)
		}
	}
	if e, ok := r.last[uid]; ok && e.digest == digest {
		return
	}
	r.last[uid] = emission{digest: digest, at: now}
	r.recorder.Event(object, eventType, reason, message)
}
