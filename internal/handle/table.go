// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package handle provides process-wide tables that map opaque tokens to Go
// values, so that native callbacks can find their owner by value rather than
// by address.
package handle

import "sync"

type (
	// Token identifies an entry in a Table. The low 32 bits index the slot
	// and the high 32 bits carry the slot's generation, so a token for a
	// removed entry never resolves to whatever reuses the slot. The zero
	// token is never issued.
	Token uint64

	// Table is an arena of values indexed by Token.
	Table[T any] struct {
		slots []slot[T]
		free  []uint32
		live  int
		mu    sync.RWMutex
	}

	slot[T any] struct {
		val  T
		gen  uint32
		used bool
	}
)

// NewTable creates an empty table.
func NewTable[T any]() *Table[T] {
	return &Table[T]{}
}

// Insert stores the value and returns its token.
func (t *Table[T]) Insert(val T) Token {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot[T]{})
	}

	s := &t.slots[idx]
	s.gen++
	// Generation 0 is reserved so that the zero token stays invalid.
	if s.gen == 0 {
		s.gen = 1
	}
	s.val = val
	s.used = true
	t.live++

	return Token(uint64(s.gen)<<32 | uint64(idx))
}

// Load returns the value for the token, if it is still present.
func (t *Table[T]) Load(tok Token) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := t.lookup(tok)
	if s == nil {
		var zero T
		return zero, false
	}
	return s.val, true
}

// Take removes the entry and returns its value. Only one caller can take a
// given token.
func (t *Table[T]) Take(tok Token) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	s := t.lookup(tok)
	if s == nil {
		return zero, false
	}

	val := s.val
	s.val = zero
	s.used = false
	t.free = append(t.free, tok.index())
	t.live--
	return val, true
}

// Remove deletes the entry, reporting whether it was present.
func (t *Table[T]) Remove(tok Token) bool {
	_, ok := t.Take(tok)
	return ok
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live
}

func (t *Table[T]) lookup(tok Token) *slot[T] {
	idx := tok.index()
	if tok == 0 || int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.used || s.gen != tok.generation() {
		return nil
	}
	return s
}

func (tok Token) index() uint32 {
	return uint32(tok)
}

func (tok Token) generation() uint32 {
	return uint32(tok >> 32)
}
