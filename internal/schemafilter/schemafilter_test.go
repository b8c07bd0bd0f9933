package schemafilter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"content-graphql/internal/contentmodel"
)

func models() []*contentmodel.Model {
	return []*contentmodel.Model{
		{Name: "article", UID: "application::article.article"},
		{Name: "audit-log", UID: "application::audit-log.audit-log"},
		{Name: "file", UID: "plugin::upload.file"},
		{Name: "seo", UID: "shared.seo", Kind: contentmodel.KindComponent},
	}
}

func names(ms []*contentmodel.Model) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{"allows all by default", Config{}, []string{"article", "audit-log", "file", "seo"}},
		{"deny by name glob", Config{DenyModels: []string{"audit-*"}}, []string{"article", "file", "seo"}},
		{"deny by uid glob", Config{DenyModels: []string{"plugin::*"}}, []string{"article", "audit-log", "seo"}},
		{"allow list keeps components", Config{AllowModels: []string{"ARTICLE"}}, []string{"article", "seo"}},
		{"deny wins over allow", Config{AllowModels: []string{"*"}, DenyModels: []string{"article"}}, []string{"audit-log", "file", "seo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, names(Apply(models(), tt.cfg)))
		})
	}
}

func TestAttributeFilters(t *testing.T) {
	cfg := Config{
		PrivateAttributes:      map[string][]string{"*": {"password", "reset*"}, "article": {"internalNote"}},
		DenyMutationAttributes: map[string][]string{"article": {"views"}},
		DenyMutationModels:     []string{"audit-log"},
	}

	assert.False(t, AttributeAllowed("writer", "password", cfg))
	assert.False(t, AttributeAllowed("writer", "resetToken", cfg))
	assert.False(t, AttributeAllowed("article", "internalnote", cfg))
	assert.True(t, AttributeAllowed("writer", "internalNote", cfg))
	assert.True(t, AttributeAllowed("article", "title", cfg))

	assert.False(t, MutationAttributeAllowed("article", "views", cfg))
	assert.False(t, MutationAttributeAllowed("article", "password", cfg))
	assert.True(t, MutationAttributeAllowed("writer", "views", cfg))

	ms := models()
	assert.True(t, MutationModelAllowed(ms[0], cfg))
	assert.False(t, MutationModelAllowed(ms[1], cfg))
}

func TestInvalidPatternIsIgnored(t *testing.T) {
	assert.True(t, AttributeAllowed("article", "title", Config{PrivateAttributes: map[string][]string{"*": {"[", ""}}}))
}
