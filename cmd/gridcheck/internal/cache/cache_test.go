// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/gridcheck/cmd/gridcheck/internal/diagnostic"
)

func testKey(t *testing.T, check string) Key {
	t.Helper()
	key, err := NewKey(check, "fp-1", "t2m", map[string]any{"dimension": "lat"})
	require.NoError(t, err)
	return key
}

func TestKey_ParamOrderIndependent(t *testing.T) {
	a, err := NewKey("max", "fp", "t2m", map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	b, err := NewKey("max", "fp", "t2m", map[string]any{"b": "x", "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	nilParams, err := NewKey("max", "fp", "t2m", nil)
	require.NoError(t, err)
	emptyParams, err := NewKey("max", "fp", "t2m", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, nilParams.ParamsHash, emptyParams.ParamsHash)
}

func TestKey_ComponentsSeparate(t *testing.T) {
	base, err := NewKey("max", "fp", "t2m", nil)
	require.NoError(t, err)

	variants := []Key{}
	for _, mutate := range []func() (Key, error){
		func() (Key, error) { return NewKey("min", "fp", "t2m", nil) },
		func() (Key, error) { return NewKey("max", "fp-other", "t2m", nil) },
		func() (Key, error) { return NewKey("max", "fp", "precip", nil) },
		func() (Key, error) { return NewKey("max", "fp", "t2m", map[string]any{"k": 1}) },
	} {
		k, err := mutate()
		require.NoError(t, err)
		variants = append(variants, k)
	}
	for _, v := range variants {
		assert.NotEqual(t, base.String(), v.String())
	}
}

func TestCache_MemoizesWithinRun(t *testing.T) {
	c, err := Open(Config{})
	require.NoError(t, err)
	defer c.Close()

	key := testKey(t, "max")
	calls := 0
	compute := func(context.Context) (diagnostic.Value, error) {
		calls++
		return diagnostic.NumberValue(310.4), nil
	}

	v, hit, err := c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 310.4, v.Number)

	v, hit, err = c.GetOrCompute(context.Background(), key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 310.4, v.Number)
	assert.Equal(t, 1, calls)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.HotHits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCache_ConcurrentComputeRunsOnce(t *testing.T) {
	c, err := Open(Config{})
	require.NoError(t, err)
	defer c.Close()

	key := testKey(t, "mean")
	var calls int64
	started := make(chan struct{})
	compute := func(context.Context) (diagnostic.Value, error) {
		atomic.AddInt64(&calls, 1)
		<-started
		return diagnostic.NumberValue(1), nil
	}

	const workers = 16
	var wg sync.WaitGroup
	results := make([]diagnostic.Value, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			v, _, err := c.GetOrCompute(context.Background(), key, compute)
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}
	close(started)
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls),
		"concurrent identical computations must collapse to one")
	for _, v := range results {
		assert.Equal(t, 1.0, v.Number)
	}
}

func TestCache_ErrorsNeverCached(t *testing.T) {
	c, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	defer c.Close()

	key := testKey(t, "min")
	boom := errors.New("decoder exploded")
	calls := 0

	_, _, err = c.GetOrCompute(context.Background(), key, func(context.Context) (diagnostic.Value, error) {
		calls++
		return diagnostic.Value{}, boom
	})
	require.ErrorIs(t, err, boom)

	// The retry must compute again and may now succeed.
	v, hit, err := c.GetOrCompute(context.Background(), key, func(context.Context) (diagnostic.Value, error) {
		calls++
		return diagnostic.NumberValue(2), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2.0, v.Number)
	assert.Equal(t, 2, calls)
}

func TestCache_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t, "missing_fraction")

	first, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	_, hit, err := first.GetOrCompute(context.Background(), key,
		func(context.Context) (diagnostic.Value, error) {
			return diagnostic.CountValue(3, "a"), nil
		})
	require.NoError(t, err)
	assert.False(t, hit)
	require.NoError(t, first.Close())

	second, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	defer second.Close()

	v, hit, err := second.GetOrCompute(context.Background(), key,
		func(context.Context) (diagnostic.Value, error) {
			t.Fatal("persisted value must not be recomputed")
			return diagnostic.Value{}, nil
		})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 3, v.Count)
	assert.Equal(t, []string{"a"}, v.Detail)
	assert.Equal(t, int64(1), second.Stats().StoreHits)
}

func TestCache_DistinctKeysDoNotCollide(t *testing.T) {
	c, err := Open(Config{})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	a := testKey(t, "max")
	b := testKey(t, "min")

	va, _, err := c.GetOrCompute(ctx, a, func(context.Context) (diagnostic.Value, error) {
		return diagnostic.NumberValue(330), nil
	})
	require.NoError(t, err)
	vb, _, err := c.GetOrCompute(ctx, b, func(context.Context) (diagnostic.Value, error) {
		return diagnostic.NumberValue(200), nil
	})
	require.NoError(t, err)

	assert.Equal(t, 330.0, va.Number)
	assert.Equal(t, 200.0, vb.Number)
}
