package content

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/backend/backendtest"
	"content-graphql/internal/contentmodel"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*action.Registry, *backendtest.Store) {
	t.Helper()
	reg, err := contentmodel.NewRegistry(
		&contentmodel.Model{
			Name: "article",
			Options: contentmodel.Options{
				Timestamps: []string{"created_at", "updated_at"},
			},
			Attributes: contentmodel.Attributes{
				{Name: "title", Type: contentmodel.TypeString},
				{Name: "views", Type: contentmodel.TypeInteger},
			},
		},
		&contentmodel.Model{
			Name: "homepage",
			Kind: contentmodel.KindSingleType,
			Attributes: contentmodel.Attributes{
				{Name: "headline", Type: contentmodel.TypeString},
			},
		},
	)
	require.NoError(t, err)

	store := backendtest.NewStore()
	actions := action.NewRegistry()
	Register(actions, reg, store, Options{Now: func() time.Time { return fixedNow }})
	return actions, store
}

func call(t *testing.T, actions *action.Registry, path string, build func(c *action.Context)) (any, error) {
	t.Helper()
	h, err := actions.Lookup(action.MustParseRef(path, ""))
	require.NoError(t, err)
	c := action.NewContext(context.Background())
	if build != nil {
		build(c)
	}
	return h(c)
}

func TestRegisterActions(t *testing.T) {
	actions, _ := setup(t)

	for _, path := range []string{"article.find", "article.findOne", "article.count", "article.create", "article.update", "article.delete", "homepage.find", "homepage.update", "homepage.delete"} {
		assert.True(t, actions.Exists(action.MustParseRef(path, "")), path)
	}
	assert.False(t, actions.Exists(action.MustParseRef("homepage.create", "")))
	assert.False(t, actions.Exists(action.MustParseRef("homepage.findOne", "")))
}

func TestRegisterKeepsExistingActions(t *testing.T) {
	reg, err := contentmodel.NewRegistry(&contentmodel.Model{Name: "article"})
	require.NoError(t, err)
	actions := action.NewRegistry()
	ref := action.MustParseRef("article.find", "")
	actions.Register(ref, func(*action.Context) (any, error) { return "custom", nil })

	Register(actions, reg, backendtest.NewStore(), Options{})

	h, err := actions.Lookup(ref)
	require.NoError(t, err)
	out, err := h(action.NewContext(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "custom", out)
}

func TestCollectionLifecycle(t *testing.T) {
	actions, store := setup(t)

	created, err := call(t, actions, "article.create", func(c *action.Context) {
		c.Request.Body = map[string]any{"title": "Hello", "views": 3, "unknown": true}
	})
	require.NoError(t, err)
	record := created.(map[string]any)
	assert.Equal(t, "Hello", record["title"])
	assert.Equal(t, fixedNow, record["created_at"])
	assert.Equal(t, fixedNow, record["updated_at"])
	assert.NotContains(t, record, "unknown")
	id := record["id"]

	found, err := call(t, actions, "article.findOne", func(c *action.Context) {
		c.Params = map[string]any{"id": id}
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", found.(map[string]any)["title"])

	updated, err := call(t, actions, "article.update", func(c *action.Context) {
		c.Params = map[string]any{"id": id}
		c.Request.Body = map[string]any{"views": 10}
	})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.(map[string]any)["views"])
	assert.Equal(t, "Hello", updated.(map[string]any)["title"])

	count, err := call(t, actions, "article.count", func(c *action.Context) {
		c.Query = map[string]any{"views_gte": 5}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := call(t, actions, "article.find", func(c *action.Context) {
		c.Query = map[string]any{"_limit": 10}
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := call(t, actions, "article.delete", func(c *action.Context) {
		c.Params = map[string]any{"id": id}
	})
	require.NoError(t, err)
	assert.Equal(t, id, deleted.(map[string]any)["id"])
	assert.Equal(t, 1, store.CallCount("application::article.article.delete"))
}

func TestCollectionErrors(t *testing.T) {
	actions, _ := setup(t)

	tests := []struct {
		name    string
		path    string
		build   func(c *action.Context)
		wantErr error
	}{
		{
			name:    "update missing record",
			path:    "article.update",
			build:   func(c *action.Context) { c.Params = map[string]any{"id": "42"} },
			wantErr: action.ErrNotFound,
		},
		{
			name:    "delete without selector",
			path:    "article.delete",
			wantErr: action.ErrBadRequest,
		},
		{
			name:    "create with non-object body",
			path:    "article.create",
			build:   func(c *action.Context) { c.Request.Body = "title" },
			wantErr: action.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, actions, tt.path, tt.build)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFindOneMissingReturnsNil(t *testing.T) {
	actions, _ := setup(t)
	out, err := call(t, actions, "article.findOne", func(c *action.Context) {
		c.Params = map[string]any{"id": "404"}
	})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestSingleTypeUpsert(t *testing.T) {
	actions, store := setup(t)

	out, err := call(t, actions, "homepage.find", nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	_, err = call(t, actions, "homepage.update", func(c *action.Context) {
		c.Request.Body = map[string]any{"headline": "Welcome"}
	})
	require.NoError(t, err)
	_, err = call(t, actions, "homepage.update", func(c *action.Context) {
		c.Request.Body = map[string]any{"headline": "Hello again"}
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.CallCount("application::homepage.homepage.create"))
	assert.Equal(t, 1, store.CallCount("application::homepage.homepage.update"))

	out, err = call(t, actions, "homepage.find", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", out.(map[string]any)["headline"])

	deleted, err := call(t, actions, "homepage.delete", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello again", deleted.(map[string]any)["headline"])

	out, err = call(t, actions, "homepage.delete", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestParamsMapsIDToPrimaryKey(t *testing.T) {
	c := &controller{model: &contentmodel.Model{PrimaryKey: "_id"}}
	got := c.params(map[string]any{"id": "1", "id_in": []any{"2"}, "title": "x"})
	assert.Equal(t, backend.Params{"_id": "1", "_id_in": []any{"2"}, "title": "x"}, got)
}
