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

package probemap

// defaultMaxTombstoneRatio is the fraction of capacity that tombstones may
// occupy before an insert rebuilds the table in place to reclaim them.
const defaultMaxTombstoneRatio = 0.25

// option provide an interface to do work on Map while it is being created.
type option interface {
	apply(m *Map)
}

// Allocator specifies an interface for allocating and releasing the slot
// array used by a Map. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slot
// arrays be freed then Map.Close must be called in order to ensure
// FreeSlots is called for the final array.
type Allocator interface {
	// AllocSlots should return a slice equivalent to make([]Slot, n).
	AllocSlots(n int) []Slot

	// FreeSlots can optionally release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocSlots.
	FreeSlots(v []Slot)
}

type defaultAllocator struct{}

func (defaultAllocator) AllocSlots(n int) []Slot {
	return make([]Slot, n)
}

func (defaultAllocator) FreeSlots(v []Slot) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(m *Map) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specifying the Allocator to use for a Map.
func WithAllocator(allocator Allocator) option {
	return allocatorOption{allocator}
}

type tombstoneRatioOption struct {
	ratio float64
}

func (op tombstoneRatioOption) apply(m *Map) {
	m.maxTombstoneRatio = op.ratio
}

// WithMaxTombstoneRatio is an option setting the fraction of a Map's
// capacity that tombstones may reach before an insert rebuilds the table at
// its current capacity to reclaim them. A ratio >= 1 disables compaction;
// tombstones are then reclaimed only when the table grows.
func WithMaxTombstoneRatio(ratio float64) option {
	return tombstoneRatioOption{ratio}
}
