/*
SPDX-License-Identifier: Apache-2.0
*/

// Package gencache implements the per-resource-UID memory of the highest
// successfully processed metadata.generation. It is an in-memory,
// per-process deduplication aid, not an authoritative store: on a cold
// cache, at most one redundant (but idempotent) reconciliation per
// resource results.
package gencache

import "sync"

// Cache maps a resource UID to the last generation that was successfully
// reconciled. Reads and writes are safe for concurrent use by multiple
// goroutines, one per resource UID: the dispatcher itself holds no
// cross-uid state beyond this cache.
type Cache struct {
	mutex   sync.RWMutex
	entries map[string]int64
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]int64)}
}

// ShouldProcess reports whether a reconciliation for uid at generation gen
// should proceed: true iff no entry exists yet for uid, or gen is strictly
// greater than the stored value.
func (c *Cache) ShouldProcess(uid string, generation int64) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	stored, ok := c.entries[uid]
	return !ok || generation > stored
}

// MarkProcessed records that generation was successfully reconciled for
// uid. Callers must only invoke this after a callback returns without
// error; a failed reconciliation must leave the cache unchanged so that a
// retry reprocesses the same generation.
func (c *Cache) MarkProcessed(uid string, generation int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if stored, ok := c.entries[uid]; !ok || generation > stored {
		c.entries[uid] = generation
	}
}

// Forget removes any entry for uid, e.g. once a resource has been fully
// deleted and its finalizer removed.
func (c *Cache) Forget(uid string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, uid)
}

// Lookup returns the stored generation for uid, if any.
func (c *Cache) Lookup(uid string) (generation int64, ok bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	generation, ok = c.entries[uid]
	return
}
