// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package handle_test

import (
	"sync"
	"testing"

	"github.com/Azure/iothub-client-go/internal/handle"
	"github.com/stretchr/testify/require"
)

func TestInsertLoad(t *testing.T) {
	tbl := handle.NewTable[string]()

	a := tbl.Insert("a")
	b := tbl.Insert("b")
	require.NotEqual(t, a, b)
	require.NotZero(t, a)

	v, ok := tbl.Load(a)
	require.True(t, ok)
	require.Equal(t, "a", v)

	v, ok = tbl.Load(b)
	require.True(t, ok)
	require.Equal(t, "b", v)
	require.Equal(t, 2, tbl.Len())
}

func TestZeroTokenNeverResolves(t *testing.T) {
	tbl := handle.NewTable[int]()
	tbl.Insert(1)

	_, ok := tbl.Load(0)
	require.False(t, ok)
	require.False(t, tbl.Remove(0))
}

func TestTakeOnce(t *testing.T) {
	tbl := handle.NewTable[int]()
	tok := tbl.Insert(42)

	v, ok := tbl.Take(tok)
	require.True(t, ok)
	require.Equal(t, 42, v)

	_, ok = tbl.Take(tok)
	require.False(t, ok)
	require.Zero(t, tbl.Len())
}

func TestStaleTokenAfterReuse(t *testing.T) {
	tbl := handle.NewTable[string]()
	old := tbl.Insert("old")
	require.True(t, tbl.Remove(old))

	fresh := tbl.Insert("fresh")
	require.NotEqual(t, old, fresh)

	_, ok := tbl.Load(old)
	require.False(t, ok)

	v, ok := tbl.Load(fresh)
	require.True(t, ok)
	require.Equal(t, "fresh", v)
}

func TestConcurrentTake(t *testing.T) {
	tbl := handle.NewTable[int]()
	tok := tbl.Insert(7)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tbl.Take(tok); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
}
