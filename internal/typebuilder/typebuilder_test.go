package typebuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-graphql/internal/contentmodel"
	"content-graphql/internal/naming"
)

func testRegistry(t *testing.T) *contentmodel.Registry {
	t.Helper()
	reg, err := contentmodel.NewRegistry(
		&contentmodel.Model{
			Name: "article",
			Attributes: contentmodel.Attributes{
				{Name: "title", Type: contentmodel.TypeString, Required: true},
				{Name: "views", Type: contentmodel.TypeInteger},
				{Name: "secret", Type: contentmodel.TypeString, Private: true},
				{Name: "status", Type: contentmodel.TypeEnumeration, Enum: []string{"draft", "published"}},
				{Name: "author", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyToOne, Target: "writer", Via: "articles"},
				{Name: "tags", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyToMany, Target: "tag", Dominant: true},
				{Name: "seo", Type: contentmodel.TypeComponent, Component: "shared.seo", Required: true},
				{Name: "links", Type: contentmodel.TypeComponent, Component: "shared.seo", Repeatable: true},
				{Name: "body", Type: contentmodel.TypeDynamicZone, Components: []string{"shared.seo", "shared.quote"}},
				{Name: "extras", Type: contentmodel.TypeDynamicZone},
				{Name: "related", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyMorphToMany, Target: "*"},
			},
		},
		&contentmodel.Model{Name: "writer", Attributes: contentmodel.Attributes{
			{Name: "articles", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureOneToMany, Target: "article", Via: "author"},
		}},
		&contentmodel.Model{Name: "tag"},
		&contentmodel.Model{Name: "homepage", Kind: contentmodel.KindSingleType, Attributes: contentmodel.Attributes{
			{Name: "headline", Type: contentmodel.TypeString, Required: true},
		}},
		&contentmodel.Model{Name: "seo", Category: "shared", Kind: contentmodel.KindComponent, Attributes: contentmodel.Attributes{
			{Name: "metaTitle", Type: contentmodel.TypeString},
		}},
		&contentmodel.Model{Name: "quote", Category: "shared", Kind: contentmodel.KindComponent},
	)
	require.NoError(t, err)
	return reg
}

func TestConvertType(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, naming.Default(), nil)
	article, _ := reg.Model("application::article.article")

	tests := []struct {
		attr   string
		root   RootType
		action Action
		want   string
	}{
		{"title", RootQuery, ActionNone, "String!"},
		{"title", RootMutation, ActionCreate, "String!"},
		{"title", RootMutation, ActionUpdate, "String"},
		{"views", RootQuery, ActionNone, "Int"},
		{"status", RootQuery, ActionNone, "ENUM_ARTICLE_STATUS"},
		{"author", RootQuery, ActionNone, "Writer"},
		{"author", RootMutation, ActionCreate, "ID"},
		{"tags", RootQuery, ActionNone, "[Tag]"},
		{"tags", RootMutation, ActionUpdate, "[ID]"},
		{"seo", RootQuery, ActionNone, "ComponentSharedSeo!"},
		{"seo", RootMutation, ActionCreate, "ComponentSharedSeoInput!"},
		{"seo", RootMutation, ActionUpdate, "editComponentSharedSeoInput"},
		{"links", RootQuery, ActionNone, "[ComponentSharedSeo]"},
		{"body", RootQuery, ActionNone, "[ArticleBodyDynamicZone]"},
		{"body", RootMutation, ActionCreate, "[ArticleBodyDynamicZoneInput!]"},
		{"related", RootQuery, ActionNone, "[Morph]"},
	}

	for _, tt := range tests {
		t.Run(tt.attr+"/"+string(tt.root)+"/"+string(tt.action), func(t *testing.T) {
			got, err := b.ConvertType(article.Attribute(tt.attr), article, tt.attr, tt.root, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertScalars(t *testing.T) {
	b := New(testRegistry(t), nil, nil)
	model := &contentmodel.Model{GlobalID: "Thing"}

	tests := []struct {
		typ  contentmodel.AttributeType
		want string
	}{
		{contentmodel.TypeBoolean, "Boolean"},
		{contentmodel.TypeInteger, "Int"},
		{contentmodel.TypeBigInteger, "Long"},
		{contentmodel.TypeFloat, "Float"},
		{contentmodel.TypeDecimal, "Float"},
		{contentmodel.TypeJSON, "JSON"},
		{contentmodel.TypeDate, "Date"},
		{contentmodel.TypeTime, "Time"},
		{contentmodel.TypeDateTime, "DateTime"},
		{contentmodel.TypeTimestamp, "DateTime"},
		{contentmodel.TypeRichText, "String"},
		{contentmodel.TypeEmail, "String"},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			got, err := b.ConvertType(&contentmodel.Attribute{Type: tt.typ}, model, "x", RootQuery, ActionNone)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	named, err := b.ConvertType(&contentmodel.Attribute{Type: contentmodel.TypeEnumeration, Enum: []string{"a"}, EnumName: "Mood"}, model, "mood", RootQuery, ActionNone)
	require.NoError(t, err)
	assert.Equal(t, "Mood", named)
}

func TestConvertTypeUnknownComponent(t *testing.T) {
	b := New(testRegistry(t), nil, nil)
	model := &contentmodel.Model{GlobalID: "Thing"}
	_, err := b.ConvertType(&contentmodel.Attribute{Type: contentmodel.TypeComponent, Component: "nope.nope"}, model, "c", RootQuery, ActionNone)
	require.ErrorIs(t, err, ErrUnknownComponent)
}

func TestGenerateInputModel(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil, nil)

	homepage, _ := reg.Model("application::homepage.homepage")
	got, err := b.GenerateInputModel(homepage, homepage.GlobalID, InputOptions{})
	require.NoError(t, err)
	assert.Equal(t, "input HomepageInput {\n  headline: String!\n}\n\ninput editHomepageInput {\n  headline: String\n}\n", got)

	quote, _ := reg.Component("shared.quote")
	got, err = b.GenerateInputModel(quote, quote.GlobalID, InputOptions{})
	require.NoError(t, err)
	assert.Contains(t, got, "input ComponentSharedQuoteInput {\n  _: String\n}")
	assert.Contains(t, got, "input editComponentSharedQuoteInput {\n  _: String\n}")

	got, err = b.GenerateInputModel(quote, quote.GlobalID, InputOptions{AllowIDs: true})
	require.NoError(t, err)
	assert.Contains(t, got, "input editComponentSharedQuoteInput {\n  id: ID\n}")

	article, _ := reg.Model("application::article.article")
	got, err = b.GenerateInputModel(article, article.GlobalID, InputOptions{})
	require.NoError(t, err)
	assert.NotContains(t, got, "secret")
	assert.Contains(t, got, "tags: [ID]")
}

func TestGenerateInputPayloadArguments(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil, nil)
	article, _ := reg.Model("application::article.article")
	homepage, _ := reg.Model("application::homepage.homepage")

	got, err := b.GenerateInputPayloadArguments(article, article.GlobalID, ActionCreate)
	require.NoError(t, err)
	assert.Equal(t, "input createArticleInput {\n  data: ArticleInput\n}\n\ntype createArticlePayload {\n  article: Article\n}\n", got)

	got, err = b.GenerateInputPayloadArguments(article, article.GlobalID, ActionUpdate)
	require.NoError(t, err)
	assert.Contains(t, got, "input updateArticleInput {\n  where: InputID\n  data: editArticleInput\n}")

	got, err = b.GenerateInputPayloadArguments(article, article.GlobalID, ActionDelete)
	require.NoError(t, err)
	assert.Contains(t, got, "input deleteArticleInput {\n  where: InputID\n}")

	got, err = b.GenerateInputPayloadArguments(homepage, homepage.GlobalID, ActionUpdate)
	require.NoError(t, err)
	assert.Contains(t, got, "input updateHomepageInput {\n  data: editHomepageInput\n}")
	assert.NotContains(t, got, "where")

	got, err = b.GenerateInputPayloadArguments(homepage, homepage.GlobalID, ActionDelete)
	require.NoError(t, err)
	assert.Equal(t, "type deleteHomepagePayload {\n  homepage: Homepage\n}\n", got)

	_, err = b.GenerateInputPayloadArguments(article, article.GlobalID, Action("archive"))
	require.Error(t, err)
}

func TestGenerateEnumsAndDynamicZones(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil, nil)
	article, _ := reg.Model("application::article.article")

	enums, err := b.GenerateEnums(article)
	require.NoError(t, err)
	assert.Equal(t, "enum ENUM_ARTICLE_STATUS {\n  draft\n  published\n}\n", enums)

	zones, err := b.GenerateDynamicZones(article)
	require.NoError(t, err)
	assert.Contains(t, zones, "union ArticleBodyDynamicZone = ComponentSharedSeo | ComponentSharedQuote\n")
	assert.Contains(t, zones, "scalar ArticleBodyDynamicZoneInput\n")
	assert.Contains(t, zones, "type ArticleExtrasDynamicZone {\n  _: Boolean\n}\n")
	assert.Contains(t, zones, "scalar ArticleExtrasDynamicZoneInput\n")

	broken := &contentmodel.Model{GlobalID: "Broken", Attributes: contentmodel.Attributes{
		{Name: "zone", Type: contentmodel.TypeDynamicZone, Components: []string{"missing.block"}},
	}}
	_, err = b.GenerateDynamicZones(broken)
	require.ErrorIs(t, err, ErrUnknownComponent)

	badEnum := &contentmodel.Model{GlobalID: "Bad", Attributes: contentmodel.Attributes{
		{Name: "kind", Type: contentmodel.TypeEnumeration, Enum: []string{"has space"}},
	}}
	_, err = b.GenerateEnums(badEnum)
	require.Error(t, err)
}

func TestDisabledAttributes(t *testing.T) {
	reg := testRegistry(t)
	b := New(reg, nil, func(model *contentmodel.Model, attr string) bool {
		return attr != "status" && attr != "body"
	})
	article, _ := reg.Model("application::article.article")

	enums, err := b.GenerateEnums(article)
	require.NoError(t, err)
	assert.Empty(t, enums)

	zones, err := b.GenerateDynamicZones(article)
	require.NoError(t, err)
	assert.NotContains(t, zones, "ArticleBodyDynamicZone")
	assert.True(t, b.AttributeEnabled(article, "title"))
	assert.True(t, IsNumeric(article.Attribute("views")))
	assert.False(t, IsNumeric(article.Attribute("title")))
}
