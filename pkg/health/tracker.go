/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package health tracks consecutive slave-exception failures per register
// and quarantines registers that cross a threshold.
package health

import (
	"hash/fnv"
	"sort"
	"sync"
)

const (
	// DefaultThreshold is the consecutive failure count that quarantines a register.
	DefaultThreshold = 3

	shardCount          = 16
	expectedIDsPerShard = 64
)

// Transition is reported to the OnTransition hook.
type Transition struct {
	RegisterID  string
	Quarantined bool
	Failures    int
}

type entry struct {
	failures    int
	quarantined bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Tracker is safe for concurrent use by every device loop.
type Tracker struct {
	threshold    int
	shards       []*shard
	onTransition func(Transition)
}

type Option func(*Tracker)

// WithTransitionHook registers fn to run after a register is quarantined or
// re-enabled. fn runs outside any shard lock.
func WithTransitionHook(fn func(Transition)) Option {
	return func(t *Tracker) {
		t.onTransition = fn
	}
}

// New returns a tracker. A non-positive threshold uses DefaultThreshold.
func New(threshold int, opts ...Option) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	t := &Tracker{
		threshold: threshold,
		shards:    make([]*shard, shardCount),
	}

	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*entry, expectedIDsPerShard)}
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Threshold returns the configured failure threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

func (t *Tracker) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))

	return t.shards[h.Sum32()%shardCount]
}

// RecordFailure increments the count of every id and returns the ids that
// became quarantined during this call.
func (t *Tracker) RecordFailure(ids ...string) []string {
	var crossed []Transition

	for _, id := range ids {
		s := t.shardFor(id)

		s.mu.Lock()

		e, ok := s.entries[id]
		if !ok {
			e = &entry{}
			s.entries[id] = e
		}

		e.failures++

		if !e.quarantined && e.failures >= t.threshold {
			e.quarantined = true
			crossed = append(crossed, Transition{RegisterID: id, Quarantined: true, Failures: e.failures})
		}

		s.mu.Unlock()
	}

	quarantined := make([]string, 0, len(crossed))

	for _, tr := range crossed {
		quarantined = append(quarantined, tr.RegisterID)
		t.notify(tr)
	}

	return quarantined
}

// RecordSuccess resets the failure count of id. It does not lift a
// quarantine; only Reenable does.
func (t *Tracker) RecordSuccess(id string) {
	s := t.shardFor(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}

	if e.quarantined {
		e.failures = 0

		return
	}

	delete(s.entries, id)
}

// IsHealthy reports whether id is not quarantined.
func (t *Tracker) IsHealthy(id string) bool {
	s := t.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]

	return !ok || !e.quarantined
}

// Failures returns the current consecutive failure count of id.
func (t *Tracker) Failures(id string) int {
	s := t.shardFor(id)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[id]; ok {
		return e.failures
	}

	return 0
}

// Reenable lifts the quarantine of id and clears its count. It reports
// whether id was quarantined.
func (t *Tracker) Reenable(id string) bool {
	s := t.shardFor(id)

	s.mu.Lock()

	e, ok := s.entries[id]
	wasQuarantined := ok && e.quarantined

	delete(s.entries, id)
	s.mu.Unlock()

	if wasQuarantined {
		t.notify(Transition{RegisterID: id})
	}

	return wasQuarantined
}

// Unhealthy returns the quarantined register ids, sorted.
func (t *Tracker) Unhealthy() []string {
	var ids []string

	for _, s := range t.shards {
		s.mu.RLock()

		for id, e := range s.entries {
			if e.quarantined {
				ids = append(ids, id)
			}
		}

		s.mu.RUnlock()
	}

	sort.Strings(ids)

	return ids
}

func (t *Tracker) notify(tr Transition) {
	if t.onTransition != nil {
		t.onTransition(tr)
	}
}
