package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-go/lattice/normalize"
	"github.com/lattice-go/lattice/schema"
	"github.com/lattice-go/lattice/store"
)

func postSchema() (*schema.Entity, *schema.Entity) {
	users := schema.NewEntity("users", nil)
	posts := schema.NewEntity("posts", map[string]schema.Schema{
		"author": users,
	})
	return posts, users
}

func TestNormalize_NestedEntity(t *testing.T) {
	posts, _ := postSchema()
	input := map[string]any{
		"id":    "1",
		"title": "Hello",
		"author": map[string]any{
			"id":   "9",
			"name": "Alice",
		},
	}

	result, err := normalize.Normalize(input, posts)
	require.NoError(t, err)

	assert.Equal(t, "1", result.Value)
	assert.Equal(t, store.Entities{
		"posts": {
			"1": {"id": "1", "title": "Hello", "author": "9"},
		},
		"users": {
			"9": {"id": "9", "name": "Alice"},
		},
	}, result.Entities)
}

func TestNormalize_ValuePassthrough(t *testing.T) {
	result, err := normalize.Normalize(map[string]any{"free": "form"}, schema.NewValue())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"free": "form"}, result.Value)
	assert.Empty(t, result.Entities)
}

func TestNormalize_ArrayOfEntities(t *testing.T) {
	posts, _ := postSchema()
	input := []any{
		map[string]any{"id": "1", "title": "First"},
		map[string]any{"id": "2", "title": "Second"},
	}

	result, err := normalize.Normalize(input, schema.NewArray(posts))
	require.NoError(t, err)
	assert.Equal(t, []any{"1", "2"}, result.Value)
	assert.Len(t, result.Entities["posts"], 2)
}

func TestNormalize_ObjectDeclaredAndPassthrough(t *testing.T) {
	posts, _ := postSchema()
	input := map[string]any{
		"featured": map[string]any{"id": "1", "title": "Pinned"},
		"cursor":   "abc123",
	}

	result, err := normalize.Normalize(input, schema.NewObject(map[string]schema.Schema{
		"featured": posts,
	}))
	require.NoError(t, err)

	value := result.Value.(map[string]any)
	assert.Equal(t, "1", value["featured"])
	assert.Equal(t, "abc123", value["cursor"])
}

func TestNormalize_MissingIDFails(t *testing.T) {
	posts, _ := postSchema()
	_, err := normalize.Normalize(map[string]any{"title": "no id"}, posts)
	require.Error(t, err)
	assert.ErrorIs(t, err, normalize.ErrMissingID)
}

func TestNormalize_ShapeMismatchFails(t *testing.T) {
	posts, _ := postSchema()

	_, err := normalize.Normalize("just a string", posts)
	assert.ErrorIs(t, err, normalize.ErrShapeMismatch)

	_, err = normalize.Normalize(map[string]any{"id": "1"}, schema.NewArray(posts))
	assert.ErrorIs(t, err, normalize.ErrShapeMismatch)
}

func TestNormalize_NestedFailureAbortsSubtree(t *testing.T) {
	posts, _ := postSchema()
	input := map[string]any{
		"id":     "1",
		"author": map[string]any{"name": "no id here"},
	}

	_, err := normalize.Normalize(input, posts)
	require.Error(t, err)
	assert.ErrorIs(t, err, normalize.ErrMissingID)
	assert.Contains(t, err.Error(), "posts.author")
}

func TestNormalize_RepeatedPartialPayloadsAccumulate(t *testing.T) {
	_, users := postSchema()
	input := []any{
		map[string]any{"id": "9", "name": "Alice"},
		map[string]any{"id": "9", "email": "alice@example.com"},
	}

	result, err := normalize.Normalize(input, schema.NewArray(users))
	require.NoError(t, err)

	alice := result.Entities["users"]["9"]
	assert.Equal(t, "Alice", alice["name"])
	assert.Equal(t, "alice@example.com", alice["email"])
}

func TestNormalize_NumericID(t *testing.T) {
	_, users := postSchema()
	// JSON decoding yields float64 ids.
	result, err := normalize.Normalize(map[string]any{"id": float64(7), "name": "Nums"}, users)
	require.NoError(t, err)
	assert.Equal(t, "7", result.Value)
	assert.Contains(t, result.Entities["users"], "7")
}

func TestNormalize_UnionByDiscriminant(t *testing.T) {
	images := schema.NewEntity("images", nil)
	videos := schema.NewEntity("videos", nil)
	union := schema.NewUnion(map[string]schema.Schema{
		"image": images,
		"video": videos,
	}, "kind")
	posts := schema.NewEntity("posts", map[string]schema.Schema{
		"attachment": union,
	})

	input := map[string]any{
		"id": "1",
		"attachment": map[string]any{
			"id":   "a1",
			"kind": "image",
			"url":  "https://example.com/a1.png",
		},
	}

	result, err := normalize.Normalize(input, posts)
	require.NoError(t, err)

	post := result.Entities["posts"]["1"]
	assert.Equal(t, store.Ref{ID: "a1", Type: "image"}, post["attachment"])
	assert.Contains(t, result.Entities["images"], "a1")
	assert.NotContains(t, result.Entities, "videos")
}

func TestNormalize_UnionWithoutDiscriminantFails(t *testing.T) {
	images := schema.NewEntity("images", nil)
	union := schema.NewUnion(map[string]schema.Schema{"image": images}, "kind")

	_, err := normalize.Normalize(map[string]any{"id": "a1"}, union)
	require.Error(t, err)
	assert.ErrorIs(t, err, normalize.ErrUnresolvedUnion)
}

func TestNormalize_UnionResolver(t *testing.T) {
	images := schema.NewEntity("images", nil)
	union := &schema.Union{
		Members: map[string]schema.Schema{"image": images},
		Resolve: func(input map[string]any) (string, bool) {
			_, hasURL := input["url"]
			return "image", hasURL
		},
	}

	result, err := normalize.Normalize(map[string]any{"id": "a1", "url": "x"}, union)
	require.NoError(t, err)
	assert.Equal(t, store.Ref{ID: "a1", Type: "image"}, result.Value)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	posts, _ := postSchema()
	input := map[string]any{
		"id":     "1",
		"author": map[string]any{"id": "9", "name": "Alice"},
	}

	_, err := normalize.Normalize(input, posts)
	require.NoError(t, err)

	// The nested object is still nested in the caller's input.
	author, ok := input["author"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", author["name"])
}
