package denormalize_test

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-go/lattice/denormalize"
	"github.com/lattice-go/lattice/schema"
	"github.com/lattice-go/lattice/store"
)

// sameMap reports whether two values are the identical map, not just equal.
func sameMap(a, b any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func TestCache_ServesRepeatedLookups(t *testing.T) {
	posts, _ := blogSchemas()
	es := blogStore()
	c := denormalize.NewCache(8)

	first := c.Denormalize("1", posts, es, nil)
	second := c.Denormalize("1", posts, es, nil)

	require.IsType(t, map[string]any{}, first)
	assert.True(t, sameMap(first, second), "cache hit should return the same value")
	assert.Equal(t, 1, c.Len())
}

func TestCache_InvalidateForcesRebuild(t *testing.T) {
	posts, _ := blogSchemas()
	es := blogStore()
	c := denormalize.NewCache(8)

	stale := c.Denormalize("1", posts, es, nil)
	edited := store.Update(es, "posts", "1", store.Entity{"title": "Edited"})

	// Without invalidation the cache cannot see the edit.
	assert.True(t, sameMap(stale, c.Denormalize("1", posts, edited, nil)))

	c.Invalidate("posts", "1")
	fresh := c.Denormalize("1", posts, edited, nil)
	assert.Equal(t, "Edited", fresh.(map[string]any)["title"])
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	posts, _ := blogSchemas()
	es := store.Entities{"posts": {}, "users": {}}
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("%d", i)
		es["posts"][id] = store.Entity{"id": id, "title": "t" + id}
	}
	c := denormalize.NewCache(2)

	a := c.Denormalize("0", posts, es, nil)
	c.Denormalize("1", posts, es, nil)
	c.Denormalize("0", posts, es, nil) // refresh 0, making 1 the oldest
	c.Denormalize("2", posts, es, nil) // evicts 1

	assert.Equal(t, 2, c.Len())
	assert.True(t, sameMap(a, c.Denormalize("0", posts, es, nil)))

	// A fourth distinct id evicts again; capacity stays fixed.
	c.Denormalize("3", posts, es, nil)
	assert.Equal(t, 2, c.Len())
}

func TestCache_Reset(t *testing.T) {
	posts, _ := blogSchemas()
	es := blogStore()
	c := denormalize.NewCache(8)

	c.Denormalize("1", posts, es, nil)
	require.Equal(t, 1, c.Len())

	c.Reset()
	assert.Zero(t, c.Len())
}

func TestCache_BypassesNonEntityInput(t *testing.T) {
	posts, _ := blogSchemas()
	es := blogStore()
	c := denormalize.NewCache(8)

	// Array schemas and non-string inputs go straight through.
	out := c.Denormalize([]any{"1"}, schema.NewArray(posts), es, nil)
	require.Len(t, out, 1)
	assert.Zero(t, c.Len())

	c.Denormalize(42, posts, es, nil)
	assert.Zero(t, c.Len())
}

func TestNewCache_DefaultCapacity(t *testing.T) {
	c := denormalize.NewCache(0)
	assert.NotNil(t, c)
	assert.Zero(t, c.Len())
}
