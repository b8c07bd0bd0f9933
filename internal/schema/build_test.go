package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/backend/backendtest"
	"content-graphql/internal/content"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/resolver"
	"content-graphql/internal/schemafilter"
)

const articleUID = "application::article.article"

func fixtureModels() []*contentmodel.Model {
	return []*contentmodel.Model{
		{
			Name:        "article",
			Description: "Blog articles",
			Options: contentmodel.Options{
				Timestamps:        []string{"created_at", "updated_at"},
				PrivateAttributes: []string{"internalNote"},
			},
			Attributes: contentmodel.Attributes{
				{Name: "title", Type: contentmodel.TypeString, Required: true},
				{Name: "views", Type: contentmodel.TypeInteger},
				{Name: "rating", Type: contentmodel.TypeFloat},
				{Name: "internalNote", Type: contentmodel.TypeString},
				{Name: "status", Type: contentmodel.TypeEnumeration, Enum: []string{"draft", "published"}},
				{Name: "author", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyToOne, Target: "writer", Via: "articles"},
				{Name: "seo", Type: contentmodel.TypeComponent, Component: "shared.seo"},
				{Name: "body", Type: contentmodel.TypeDynamicZone, Components: []string{"shared.seo"}},
			},
		},
		{
			Name: "writer",
			Attributes: contentmodel.Attributes{
				{Name: "name", Type: contentmodel.TypeString},
				{Name: "articles", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureOneToMany, Target: articleUID, Via: "author"},
			},
		},
		{
			Name: "homepage",
			Kind: contentmodel.KindSingleType,
			Attributes: contentmodel.Attributes{
				{Name: "headline", Type: contentmodel.TypeString},
			},
		},
		{
			Name:     "seo",
			Kind:     contentmodel.KindComponent,
			Category: "shared",
			Attributes: contentmodel.Attributes{
				{Name: "metaTitle", Type: contentmodel.TypeString},
			},
		},
	}
}

// fixture returns build options over a fresh registry with default controllers
// backed by an in-memory store.
func fixture(t *testing.T) (Options, *backendtest.Store) {
	t.Helper()
	reg, err := contentmodel.NewRegistry(fixtureModels()...)
	require.NoError(t, err)
	store := backendtest.NewStore()
	actions := action.NewRegistry()
	content.Register(actions, reg, store, content.Options{})
	return Options{Registry: reg, Actions: actions, Provider: store}, store
}

func mustBuild(t *testing.T, opts Options) *Artifact {
	t.Helper()
	art, err := Build(context.Background(), opts)
	require.NoError(t, err)
	return art
}

func resolverFn(t *testing.T, art *Artifact, typeName, field string) graphql.FieldResolveFn {
	t.Helper()
	fn, ok := art.Resolvers[typeName][field]
	require.True(t, ok, "missing resolver %s.%s", typeName, field)
	return fn
}

func TestBuildGeneratesShadowCRUD(t *testing.T) {
	opts, _ := fixture(t)
	art := mustBuild(t, opts)

	for _, want := range []string{
		"scalar JSON\n",
		"scalar DateTime\n",
		"input InputID {\n  id: ID!\n}\n",
		"union Morph = Article | Writer | Homepage\n",
		"\"\"\"\nBlog articles\n\"\"\"\ntype Article {\n  id: ID!\n  created_at: DateTime!\n  updated_at: DateTime!\n  title: String!\n",
		"  author: Writer\n",
		"  articles(sort: String, limit: Int, start: Int, where: JSON): [Article]\n",
		"union ArticleBodyDynamicZone = ComponentSharedSeo\n",
		"enum ENUM_ARTICLE_STATUS {\n  draft\n  published\n}\n",
		"input ComponentSharedSeoInput {\n",
		"input editComponentSharedSeoInput {\n  id: ID\n",
		"input createArticleInput {\n  data: ArticleInput\n}\n",
		"type createArticlePayload {\n  article: Article\n}\n",
		"  article(id: ID!): Article\n",
		"  articlesConnection(sort: String, limit: Int, start: Int, where: JSON): ArticleConnection\n",
		"  homepage: Homepage\n",
		"  createArticle(input: createArticleInput): createArticlePayload\n",
		"  updateArticle(input: updateArticleInput): updateArticlePayload\n",
		"  updateHomepage(input: updateHomepageInput): updateHomepagePayload\n",
		"  deleteHomepage: deleteHomepagePayload\n",
	} {
		assert.Contains(t, art.TypeDefs, want)
	}
	assert.NotContains(t, art.TypeDefs, "internalNote")
	assert.NotContains(t, art.TypeDefs, "createHomepage")
	assert.NotContains(t, art.TypeDefs, "homepages")

	require.NotNil(t, art.Schema)
	assert.NotNil(t, art.Schema.Types["ArticleAggregatorSum"])
	for _, field := range []string{"article", "articles", "articlesConnection", "writer", "writers", "homepage"} {
		assert.NotNil(t, art.Resolvers["Query"][field], field)
	}
	for _, field := range []string{"createArticle", "updateArticle", "deleteArticle", "updateHomepage", "deleteHomepage"} {
		assert.NotNil(t, art.Resolvers["Mutation"][field], field)
	}
}

func TestBuildQueriesDispatchToControllers(t *testing.T) {
	opts, store := fixture(t)
	store.Collection(articleUID).Seed(
		backend.Record{"id": "1", "title": "First", "views": 10, "status": "published"},
		backend.Record{"id": "2", "title": "Second", "views": 40, "status": "published"},
		backend.Record{"id": "3", "title": "Third", "views": 5, "status": "draft"},
	)
	art := mustBuild(t, opts)
	ctx := context.Background()

	one, err := resolverFn(t, art, "Query", "article")(graphql.ResolveParams{Context: ctx, Args: map[string]any{"id": "2"}})
	require.NoError(t, err)
	assert.Equal(t, "Second", one.(map[string]any)["title"])

	list, err := resolverFn(t, art, "Query", "articles")(graphql.ResolveParams{Context: ctx, Args: map[string]any{
		"where": map[string]any{"status": "published"},
		"sort":  "views:desc",
	}})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Second", list.([]any)[0].(map[string]any)["title"])

	created, err := resolverFn(t, art, "Mutation", "createArticle")(graphql.ResolveParams{Context: ctx, Args: map[string]any{
		"input": map[string]any{"data": map[string]any{"title": "Fourth"}},
	}})
	require.NoError(t, err)
	payload := created.(map[string]any)
	assert.Equal(t, "Fourth", payload["article"].(map[string]any)["title"])
	assert.NotNil(t, payload["article"].(map[string]any)["created_at"])
}

func TestBuildAggregation(t *testing.T) {
	opts, store := fixture(t)
	store.Collection(articleUID).Seed(
		backend.Record{"id": "1", "views": 10, "status": "published"},
		backend.Record{"id": "2", "views": 40, "status": "published"},
		backend.Record{"id": "3", "views": 5, "status": "draft"},
	)
	art := mustBuild(t, opts)
	ctx := context.Background()

	root, err := resolverFn(t, art, "Query", "articlesConnection")(graphql.ResolveParams{Context: ctx, Args: map[string]any{
		"where": map[string]any{"status": "published"},
	}})
	require.NoError(t, err)

	sum, err := resolverFn(t, art, "ArticleAggregatorSum", "views")(graphql.ResolveParams{Context: ctx, Source: root})
	require.NoError(t, err)
	assert.EqualValues(t, 50, sum)

	count, err := resolverFn(t, art, "ArticleAggregator", "count")(graphql.ResolveParams{Context: ctx, Source: root})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	total, err := resolverFn(t, art, "ArticleAggregator", "totalCount")(graphql.ResolveParams{Context: ctx, Source: root})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	values, err := resolverFn(t, art, "ArticleConnection", "values")(graphql.ResolveParams{Context: ctx, Source: root})
	require.NoError(t, err)
	assert.Len(t, values, 2)
}

func TestBuildDisablesOperations(t *testing.T) {
	opts, _ := fixture(t)
	opts.User = &CustomSchema{
		Types: map[string]TypeOverride{
			"Article": {Fields: map[string]FieldOverride{"rating": {Disabled: true}}},
		},
		Resolvers: map[string]map[string]ResolverOverride{
			"Query":    {"articles": {Disabled: true}},
			"Mutation": {"deleteArticle": {Disabled: true}},
		},
	}
	art := mustBuild(t, opts)

	assert.Nil(t, art.Schema.Query.Fields.ForName("articles"))
	assert.Nil(t, art.Schema.Query.Fields.ForName("articlesConnection"))
	assert.NotContains(t, art.TypeDefs, "ArticleConnection")
	assert.NotContains(t, art.TypeDefs, "deleteArticle")
	assert.NotContains(t, art.TypeDefs, "rating")
	assert.Contains(t, art.TypeDefs, "  article(id: ID!): Article\n")
	assert.NotContains(t, art.Resolvers["Query"], "articles")
	assert.NotContains(t, art.Resolvers["Mutation"], "deleteArticle")
}

func TestBuildSkipsOperationsWithoutActions(t *testing.T) {
	opts, _ := fixture(t)
	opts.Actions = action.NewRegistry()
	opts.Actions.Register(action.MustParseRef("article.find", ""), func(*action.Context) (any, error) { return nil, nil })
	art := mustBuild(t, opts)

	assert.NotNil(t, art.Schema.Query.Fields.ForName("articles"))
	assert.Nil(t, art.Schema.Query.Fields.ForName("article"))
	assert.NotContains(t, art.TypeDefs, "type Mutation")
	assert.NotContains(t, art.TypeDefs, "writers(")
}

func TestBuildCustomResolvers(t *testing.T) {
	opts, store := fixture(t)
	store.Collection(articleUID).Seed(backend.Record{"id": "1"}, backend.Record{"id": "2"})
	opts.Plugins = []*CustomSchema{{
		Plugin: "stats",
		Query:  "articleCount: Int",
		Resolvers: map[string]map[string]ResolverOverride{
			"Query": {"articleCount": {
				ResolverOf: "application::article.count",
				Custom: func(c *action.Context, _ resolver.Call) (any, error) {
					q, err := store.Query(articleUID)
					if err != nil {
						return nil, err
					}
					n, err := q.Count(c.Context(), backend.Params(c.Query))
					return int(n), err
				},
			}},
		},
	}}
	opts.User = &CustomSchema{
		Resolvers: map[string]map[string]ResolverOverride{
			"Query": {"articleCount": {Description: "Number of articles"}},
		},
	}
	art := mustBuild(t, opts)

	assert.Contains(t, art.TypeDefs, "  \"\"\"\n  Number of articles\n  \"\"\"\n  articleCount: Int\n")
	out, err := resolverFn(t, art, "Query", "articleCount")(graphql.ResolveParams{Context: context.Background()})
	require.NoError(t, err)
	assert.Equal(t, 2, out)
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(opts *Options)
		wantKind string
		wantErr  error
	}{
		{
			name: "custom resolver without resolverOf",
			mutate: func(opts *Options) {
				opts.User = &CustomSchema{
					Query: "stats: Int",
					Resolvers: map[string]map[string]ResolverOverride{
						"Query": {"stats": {Custom: func(*action.Context, resolver.Call) (any, error) { return 1, nil }}},
					},
				}
			},
			wantKind: KindResolver,
			wantErr:  resolver.ErrMissingResolverOf,
		},
		{
			name: "override names unknown action",
			mutate: func(opts *Options) {
				opts.User = &CustomSchema{
					Resolvers: map[string]map[string]ResolverOverride{
						"Query": {"articles": {Action: "article.missing"}},
					},
				}
			},
			wantKind: KindResolver,
			wantErr:  action.ErrUnknownAction,
		},
		{
			name: "resolver for undefined field",
			mutate: func(opts *Options) {
				opts.User = &CustomSchema{
					Resolvers: map[string]map[string]ResolverOverride{
						"Query": {"ghost": {Action: "article.find"}},
					},
				}
			},
			wantKind: KindResolver,
		},
		{
			name: "invalid sdl",
			mutate: func(opts *Options) {
				opts.User = &CustomSchema{Query: "broken: MissingType"}
			},
			wantKind: KindSDL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, _ := fixture(t)
			tt.mutate(&opts)
			_, err := Build(context.Background(), opts)
			require.Error(t, err)

			var compileErr *CompileError
			require.True(t, errors.As(err, &compileErr), "got %T: %v", err, err)
			assert.Equal(t, tt.wantKind, compileErr.Kind)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBuildUnknownComponent(t *testing.T) {
	reg, err := contentmodel.NewRegistry(&contentmodel.Model{
		Name: "page",
		Attributes: contentmodel.Attributes{
			{Name: "blocks", Type: contentmodel.TypeDynamicZone, Components: []string{"missing.block"}},
		},
	})
	require.NoError(t, err)

	_, err = Build(context.Background(), Options{Registry: reg})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownComponent)
}

func TestBuildFilters(t *testing.T) {
	opts, _ := fixture(t)
	opts.Filter = schemafilter.Config{
		DenyModels:         []string{"writer"},
		PrivateAttributes:  map[string][]string{"article": {"views"}},
		DenyMutationModels: []string{"homepage"},
	}
	art := mustBuild(t, opts)

	assert.NotContains(t, art.TypeDefs, "type Writer")
	assert.NotContains(t, art.TypeDefs, "author")
	assert.NotContains(t, art.TypeDefs, "views")
	assert.NotContains(t, art.TypeDefs, "updateHomepage")
	assert.Contains(t, art.TypeDefs, "union Morph = Article | Homepage\n")
	assert.Contains(t, art.TypeDefs, "  homepage: Homepage\n")
}

func TestBuildWithoutShadowCRUD(t *testing.T) {
	opts, _ := fixture(t)
	opts.DisableShadowCRUD = true
	art := mustBuild(t, opts)

	assert.NotContains(t, art.TypeDefs, "type Article")
	assert.NotContains(t, art.TypeDefs, "union Morph")
	assert.Contains(t, art.TypeDefs, "type Query {\n  _: Boolean\n}\n")
	assert.Empty(t, art.Resolvers)
}

func TestBuildCancelled(t *testing.T) {
	opts, _ := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, opts)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAssociationResolvers(t *testing.T) {
	opts, store := fixture(t)
	store.Collection(writerUID).Seed(backend.Record{"id": "w1", "name": "Ann"})
	store.Collection(articleUID).Seed(
		backend.Record{"id": "a1", "title": "One", "author": "w1"},
		backend.Record{"id": "a2", "title": "Two", "author": "w1"},
		backend.Record{"id": "a3", "title": "Three", "author": "w2"},
	)
	art := mustBuild(t, opts)
	ctx := context.Background()

	t.Run("model cardinality without loader", func(t *testing.T) {
		out, err := resolverFn(t, art, "Article", "author")(graphql.ResolveParams{Context: ctx, Source: map[string]any{"id": "a1", "author": "w1"}})
		require.NoError(t, err)
		assert.Equal(t, "Ann", out.(map[string]any)["name"])
	})

	t.Run("model cardinality batched through loader", func(t *testing.T) {
		loaderCtx := WithLoader(ctx, NewLoader(store))
		before := store.CallCount(writerUID + ".find")
		fn := resolverFn(t, art, "Article", "author")

		first, err := fn(graphql.ResolveParams{Context: loaderCtx, Source: map[string]any{"author": "w1"}})
		require.NoError(t, err)
		second, err := fn(graphql.ResolveParams{Context: loaderCtx, Source: map[string]any{"author": map[string]any{"id": "w2"}}})
		require.NoError(t, err)

		thunk, ok := first.(func() (interface{}, error))
		require.True(t, ok)
		got, err := thunk()
		require.NoError(t, err)
		assert.Equal(t, "Ann", got.(map[string]any)["name"])

		got, err = second.(func() (interface{}, error))()
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Equal(t, before+1, store.CallCount(writerUID+".find"))
	})

	t.Run("collection by inverse field", func(t *testing.T) {
		out, err := resolverFn(t, art, "Writer", "articles")(graphql.ResolveParams{
			Context: ctx,
			Source:  map[string]any{"id": "w1"},
			Args:    map[string]any{"sort": "title:asc"},
		})
		require.NoError(t, err)
		list := out.([]any)
		require.Len(t, list, 2)
		assert.Equal(t, "One", list[0].(map[string]any)["title"])
	})

	t.Run("id aliases primary key", func(t *testing.T) {
		out, err := resolverFn(t, art, "Writer", "id")(graphql.ResolveParams{Context: ctx, Source: backend.Record{"id": "w1"}})
		require.NoError(t, err)
		assert.Equal(t, "w1", out)
	})

	t.Run("dynamic zone tags components", func(t *testing.T) {
		out, err := resolverFn(t, art, "Article", "body")(graphql.ResolveParams{Context: ctx, Source: map[string]any{
			"body": []any{
				map[string]any{ComponentKey: "shared.seo", "metaTitle": "Meta"},
				map[string]any{ComponentKey: "unknown.block"},
			},
		}})
		require.NoError(t, err)
		list := out.([]any)
		require.Len(t, list, 1)
		assert.Equal(t, "ComponentSharedSeo", list[0].(map[string]any)[TypenameKey])
		assert.Equal(t, "Meta", list[0].(map[string]any)["metaTitle"])
	})
}

func TestMorphResolver(t *testing.T) {
	models := fixtureModels()
	models[2].Attributes = append(models[2].Attributes, &contentmodel.Attribute{
		Name: "featured", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyMorphToMany,
	})
	reg, err := contentmodel.NewRegistry(models...)
	require.NoError(t, err)
	store := backendtest.NewStore()
	store.Collection(articleUID).Seed(backend.Record{"id": "a1", "title": "One"})
	store.Collection(writerUID).Seed(backend.Record{"id": "w1", "name": "Ann"})
	actions := action.NewRegistry()
	content.Register(actions, reg, store, content.Options{})

	art := mustBuild(t, Options{Registry: reg, Actions: actions, Provider: store})
	assert.Contains(t, art.TypeDefs, "  featured(sort: String, limit: Int, start: Int, where: JSON): [Morph]\n")

	out, err := resolverFn(t, art, "Homepage", "featured")(graphql.ResolveParams{Context: context.Background(), Source: map[string]any{
		"featured": []any{
			map[string]any{"kind": articleUID, "ref": "a1"},
			map[string]any{"kind": "Writer", "ref": "w1"},
			map[string]any{"kind": "Nope", "ref": "x"},
		},
	}})
	require.NoError(t, err)
	list := out.([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "Article", list[0].(map[string]any)[TypenameKey])
	assert.Equal(t, "Writer", list[1].(map[string]any)[TypenameKey])
}
