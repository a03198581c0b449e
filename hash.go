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

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619

	// stepPrime offsets the secondary hash so the probe step is never zero
	// and rarely shares a factor with the table capacity. The step
	// computation divides by capacity-stepPrime, so capacities must stay
	// strictly above stepPrime (see minCapacity).
	stepPrime = 37
)

// fnv32a returns the 32-bit FNV-1a hash of key.
func fnv32a(key string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime32
	}
	return h
}

// probeIndex returns the slot index visited on the given attempt of a
// double-hashed probe sequence over a table of the given capacity. Attempt 0
// yields the base index hash%capacity; every later attempt advances by a
// per-key step derived from the same hash:
//
//	h1 = hash % capacity
//	h2 = stepPrime + (hash % (capacity - stepPrime))
//	index = (h1 + attempt*h2) % capacity
//
// The arithmetic is performed in uint64 so attempt*h2 cannot overflow for
// any capacity the map can reach.
func probeIndex(hash uint32, attempt, capacity uint64) uint64 {
	k := uint64(hash)
	h1 := k % capacity
	h2 := stepPrime + k%(capacity-stepPrime)
	return (h1 + attempt*h2) % capacity
}
