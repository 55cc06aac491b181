package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lattice-go/lattice/schema"
)

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := schema.NewRegistry()
	users := schema.NewEntity("users", nil)

	require.NoError(t, r.Register("users", users, false))

	err := r.Register("users", schema.NewEntity("users", nil), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrDuplicateSchema)

	// Explicit overwrite is allowed.
	replacement := schema.NewEntity("users", nil)
	require.NoError(t, r.Register("users", replacement, true))

	got, err := r.Get("users")
	require.NoError(t, err)
	assert.Same(t, replacement, got)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := schema.NewRegistry()
	_, err := r.Get("ghosts")
	require.Error(t, err)
	assert.ErrorIs(t, err, schema.ErrSchemaNotFound)
}

func TestRegistry_RegisterRejectsEmptyNameAndNilSchema(t *testing.T) {
	r := schema.NewRegistry()
	assert.Error(t, r.Register("", schema.NewEntity("users", nil), false))
	assert.Error(t, r.Register("users", nil, false))
}

func TestRegistry_ValidateUnresolvedTarget(t *testing.T) {
	r := schema.NewRegistry()
	users := schema.NewEntity("users", nil)
	posts := schema.NewEntity("posts", map[string]schema.Schema{
		"author": users,
	})
	require.NoError(t, r.Register("posts", posts, false))

	// users is referenced but never registered.
	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users")

	require.NoError(t, r.Register("users", users, false))
	assert.NoError(t, r.Validate())
}

func TestRegistry_ValidateAggregatesAllFindings(t *testing.T) {
	r := schema.NewRegistry()
	posts := schema.NewEntity("posts", map[string]schema.Schema{
		"author": schema.NewEntity("users", nil),
		"attachment": schema.NewUnion(map[string]schema.Schema{
			"image": schema.NewValue(), // not an entity schema
		}, "kind"),
	})
	require.NoError(t, r.Register("posts", posts, false))

	err := r.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unregistered entity")
	assert.Contains(t, err.Error(), "not an entity schema")
}

func TestRegistry_ValidateCyclicSchemas(t *testing.T) {
	// Cycles among entity schemas are legal.
	r := schema.NewRegistry()
	users := schema.NewEntity("users", nil)
	posts := schema.NewEntity("posts", nil)
	users.Relations["posts"] = schema.NewArray(posts)
	posts.Relations["author"] = users

	require.NoError(t, r.Register("users", users, false))
	require.NoError(t, r.Register("posts", posts, false))
	assert.NoError(t, r.Validate())
}

func TestRegistry_Unreachable(t *testing.T) {
	r := schema.NewRegistry()
	users := schema.NewEntity("users", nil)
	posts := schema.NewEntity("posts", map[string]schema.Schema{
		"author": users,
	})
	orphaned := schema.NewEntity("settings", nil)

	require.NoError(t, r.Register("users", users, false))
	require.NoError(t, r.Register("posts", posts, false))
	require.NoError(t, r.Register("settings", orphaned, false))

	// posts is a root and settings is referenced by nothing; users is a
	// relation target. Roots are expected in the diagnostic.
	unreachable := r.Unreachable()
	assert.ElementsMatch(t, []string{"posts", "settings"}, unreachable)
}

func TestEntity_IDFieldDefault(t *testing.T) {
	e := schema.NewEntity("users", nil)
	assert.Equal(t, "id", e.ID())

	e.IDField = "uuid"
	assert.Equal(t, "uuid", e.ID())
}
