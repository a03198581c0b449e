// Copyright 2026 The Probemap Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package probemap implements a string-keyed hash table using open
// addressing with double hashing. If you're not familiar with
// open-addressing see https://en.wikipedia.org/wiki/Open_addressing.
//
// All entries are stored directly in a flat slot array. A collision is
// resolved by re-probing at a per-key step derived from a second compression
// of the same 32-bit FNV-1a hash (see probeIndex in hash.go), so distinct
// keys that share a base index walk different sequences through the table.
//
// Each slot is in one of three states: empty (never used), occupied, or a
// tombstone. Deletion marks a slot as a tombstone rather than empty because
// a key inserted after a collision may have been displaced past the deleted
// slot; lookups probe straight through tombstones and terminate only at a
// truly empty slot. Insertion reclaims the first tombstone on a key's probe
// sequence, but only after the full sequence has proven the key absent, so
// the table never holds two slots with equal keys.
//
// The table grows by doubling whenever an insert finds the occupied count at
// or above half the capacity, rebuilding the slot array and dropping all
// tombstones in the process. Sustained insert/delete churn that never
// crosses the growth threshold can still accumulate tombstones and lengthen
// probe sequences, so an insert also rebuilds the table at its current
// capacity once tombstones exceed a configurable fraction of it (see
// WithMaxTombstoneRatio).
//
// A Map is NOT goroutine-safe.
package probemap

import (
	"errors"
	"fmt"
	"strings"
)

const (
	debug      = false
	invariants = false

	// minCapacity is the largest capacity for which the probe step
	// computation is invalid: probeIndex divides by capacity-stepPrime.
	// New rejects initial capacities that are not strictly greater.
	minCapacity = stepPrime

	growthFactor = 2
)

var (
	// ErrCapacity is returned by New when the requested initial capacity is
	// too small for the probe step computation to be defined.
	ErrCapacity = errors.New("probemap: initial capacity must be greater than 37")

	// ErrEmptyKey is returned by Put when given an empty key.
	ErrEmptyKey = errors.New("probemap: empty key")

	// ErrNilValue is returned by Put when given a nil value.
	ErrNilValue = errors.New("probemap: nil value")
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

// Slot holds a key and value. A slot's state makes the key and value fields
// meaningful only while it is occupied; empty slots and tombstones hold zero
// values.
type Slot struct {
	state slotState
	key   string
	value any
}

// Map is a hash table from string keys to values with Put, Get, and Delete
// operations. The zero value for a Map is not usable; construct one with
// New.
type Map struct {
	// The allocator to use for the slot array.
	allocator Allocator
	// slots is the open-addressed table; len(slots) is the capacity, which
	// is always the initial capacity times a power of two.
	slots []Slot
	// The number of occupied slots (i.e. the number of elements in the map).
	used int
	// The number of tombstone slots. Tracked separately so an insert can
	// decide when churn has left enough dead slots to warrant rebuilding
	// the table at its current capacity.
	tombstones int
	// maxTombstoneRatio is the fraction of capacity that tombstones may
	// reach before an insert compacts the table.
	maxTombstoneRatio float64
}

// New constructs a Map with the specified initial capacity. The capacity
// must be strictly greater than 37: the probe step derivation divides by
// capacity-37, so smaller tables have no valid probe sequence. ErrCapacity
// is returned otherwise.
func New(initialCapacity int, options ...option) (*Map, error) {
	if initialCapacity <= minCapacity {
		return nil, ErrCapacity
	}
	m := &Map{
		allocator:         defaultAllocator{},
		maxTombstoneRatio: defaultMaxTombstoneRatio,
	}
	for _, op := range options {
		op.apply(m)
	}
	m.slots = m.allocator.AllocSlots(initialCapacity)
	m.checkInvariants()
	return m, nil
}

// Close closes the map, releasing the slot array back to its configured
// allocator. It is unnecessary to close a map using the default allocator.
// It is invalid to use a Map after it has been closed, though Close itself
// is idempotent.
func (m *Map) Close() {
	if m.slots != nil {
		m.allocator.FreeSlots(m.slots)
		m.slots = nil
	}
	m.used = 0
	m.tombstones = 0
	m.allocator = nil
}

// Put inserts an entry into the map, overwriting the existing value in
// place if an entry with the same key already exists. It returns the key as
// stored by the map: on a fresh insert that is the argument itself, while an
// overwrite returns the previously stored string without replacing it.
//
// An empty key or a nil value is rejected without mutating the map.
func (m *Map) Put(key string, value any) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if value == nil {
		return "", ErrNilValue
	}

	// Grow before placing so the occupied count never exceeds half the
	// capacity once Put returns. Failing that, shed accumulated tombstones
	// if they have outgrown their budget.
	if m.used >= len(m.slots)/growthFactor {
		m.rehash(len(m.slots) * growthFactor)
	} else if m.tombstones > int(m.maxTombstoneRatio*float64(len(m.slots))) {
		m.rehash(len(m.slots))
	}

	h := fnv32a(key)
	for {
		capacity := uint64(len(m.slots))

		// Find phase: walk the probe sequence looking for the key. The
		// first tombstone along the way is remembered as the insertion
		// target; reaching an empty slot proves the key absent. Claiming a
		// tombstone before the key has been proven absent would leave the
		// same key occupying two slots.
		target := -1
	find:
		for attempt := uint64(0); attempt < capacity; attempt++ {
			i := int(probeIndex(h, attempt, capacity))
			s := &m.slots[i]
			switch s.state {
			case slotEmpty:
				if target < 0 {
					target = i
				}
				break find
			case slotTombstone:
				if target < 0 {
					target = i
				}
			default:
				if s.key == key {
					if debug {
						fmt.Printf("put(updating): index=%d key=%v\n", i, key)
					}
					s.value = value
					m.checkInvariants()
					return s.key, nil
				}
			}
		}

		if target >= 0 {
			s := &m.slots[target]
			if s.state == slotTombstone {
				m.tombstones--
			}
			if debug {
				fmt.Printf("put(inserting): index=%d key=%v used=%d\n", target, key, m.used+1)
			}
			*s = Slot{state: slotOccupied, key: key, value: value}
			m.used++
			m.checkInvariants()
			return s.key, nil
		}

		// The probe cycle closed without reaching a free slot, which can
		// only happen when the step shares a factor with the capacity and
		// every slot on the shortened cycle is occupied. Grow so the next
		// pass probes a different sequence.
		m.rehash(len(m.slots) * growthFactor)
	}
}

// Get retrieves the value stored for the specified key, returning ok=false
// if the key is not present.
func (m *Map) Get(key string) (value any, ok bool) {
	if key == "" {
		return nil, false
	}
	h := fnv32a(key)
	capacity := uint64(len(m.slots))
	for attempt := uint64(0); attempt < capacity; attempt++ {
		s := &m.slots[probeIndex(h, attempt, capacity)]
		switch s.state {
		case slotEmpty:
			return nil, false
		case slotOccupied:
			if s.key == key {
				return s.value, true
			}
		}
		// Tombstones keep the chain alive for keys displaced past them.
	}
	return nil, false
}

// Delete deletes the entry for the specified key, reporting whether an
// entry was found. The vacated slot becomes a tombstone so probe sequences
// that pass through it remain intact.
func (m *Map) Delete(key string) bool {
	if key == "" {
		return false
	}
	h := fnv32a(key)
	capacity := uint64(len(m.slots))
	for attempt := uint64(0); attempt < capacity; attempt++ {
		i := int(probeIndex(h, attempt, capacity))
		s := &m.slots[i]
		switch s.state {
		case slotEmpty:
			return false
		case slotOccupied:
			if s.key == key {
				if debug {
					fmt.Printf("delete(%v): index=%d used=%d\n", key, i, m.used-1)
				}
				*s = Slot{state: slotTombstone}
				m.used--
				m.tombstones++
				m.checkInvariants()
				return true
			}
		}
	}
	return false
}

// Len returns the number of entries in the map.
func (m *Map) Len() int {
	return m.used
}

// Cap returns the current capacity of the map's slot array.
func (m *Map) Cap() int {
	return len(m.slots)
}

// rehash rebuilds the table at newCapacity by re-inserting every occupied
// slot into a fresh slot array, then releases the old array. Key strings
// carry over by reference. Tombstones and empty slots are dropped, which is
// how deleted slots are eventually reclaimed. The slots and capacity are
// replaced together before rehash returns, so callers never observe a
// partially migrated table.
func (m *Map) rehash(newCapacity int) {
	for {
		slots := m.allocator.AllocSlots(newCapacity)
		if m.transfer(slots) {
			old := m.slots
			m.slots = slots
			m.tombstones = 0
			m.allocator.FreeSlots(old)
			if debug {
				fmt.Printf("rehash: capacity=%d->%d used=%d\n", len(old), newCapacity, m.used)
			}
			m.checkInvariants()
			return
		}
		// A pathological step/capacity interaction closed a probe cycle
		// with no room for some key. Retry larger.
		m.allocator.FreeSlots(slots)
		newCapacity *= growthFactor
	}
}

// transfer uncheckedPuts every occupied slot of the map into slots, which
// must be freshly allocated. Keys are known to be distinct and the target
// has no tombstones, so each key lands on the first empty slot of its probe
// sequence. It reports whether every key found a slot.
func (m *Map) transfer(slots []Slot) bool {
	capacity := uint64(len(slots))
	for i := range m.slots {
		if m.slots[i].state != slotOccupied {
			continue
		}
		h := fnv32a(m.slots[i].key)
		placed := false
		for attempt := uint64(0); attempt < capacity; attempt++ {
			j := probeIndex(h, attempt, capacity)
			if slots[j].state == slotEmpty {
				slots[j] = Slot{
					state: slotOccupied,
					key:   m.slots[i].key,
					value: m.slots[i].value,
				}
				placed = true
				break
			}
		}
		if !placed {
			return false
		}
	}
	return true
}

func (m *Map) checkInvariants() {
	if invariants {
		var used, tombstones int
		for i := range m.slots {
			s := &m.slots[i]
			switch s.state {
			case slotOccupied:
				used++
				if s.key == "" {
					panic(fmt.Sprintf("invariant failed: slot(%d): occupied with empty key\n%s",
						i, m.debugString()))
				}
				if _, ok := m.Get(s.key); !ok {
					panic(fmt.Sprintf("invariant failed: slot(%d): %v not reachable [hash=%08x]\n%s",
						i, s.key, fnv32a(s.key), m.debugString()))
				}
			default:
				if s.key != "" || s.value != nil {
					panic(fmt.Sprintf("invariant failed: slot(%d): vacant slot retains contents\n%s",
						i, m.debugString()))
				}
				if s.state == slotTombstone {
					tombstones++
				}
			}
		}

		if used != m.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, m.used, m.debugString()))
		}
		if tombstones != m.tombstones {
			panic(fmt.Sprintf("invariant failed: found %d tombstones, but tombstone count is %d\n%s",
				tombstones, m.tombstones, m.debugString()))
		}
	}
}

func (m *Map) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d used=%d tombstones=%d\n", len(m.slots), m.used, m.tombstones)
	for i := range m.slots {
		switch s := &m.slots[i]; s.state {
		case slotEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case slotTombstone:
			fmt.Fprintf(&buf, "  %4d: tombstone\n", i)
		default:
			h := fnv32a(s.key)
			fmt.Fprintf(&buf, "  %4d: %v [hash=%08x base=%d]\n",
				i, s.key, h, probeIndex(h, 0, uint64(len(m.slots))))
		}
	}
	return buf.String()
}
