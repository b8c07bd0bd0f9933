package sqlstore

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/dbexec"
)

const (
	articleUID = "application::article.article"
	writerUID  = "application::writer.writer"
)

var articleColumns = []string{"id", "title", "views", "status", "author", "seo", "tags"}

func newStore(t *testing.T, opts ...func(*Options)) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	reg, err := contentmodel.NewRegistry(
		&contentmodel.Model{
			Name: "article",
			Attributes: contentmodel.Attributes{
				{Name: "title", Type: contentmodel.TypeString},
				{Name: "views", Type: contentmodel.TypeInteger},
				{Name: "status", Type: contentmodel.TypeEnumeration, Enum: []string{"draft", "published"}},
				{Name: "author", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyToOne, Target: "writer", Via: "articles"},
				{Name: "seo", Type: contentmodel.TypeComponent, Component: "shared.seo"},
				{Name: "tags", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureManyWay, Target: "tag"},
			},
		},
		&contentmodel.Model{
			Name: "writer",
			Attributes: contentmodel.Attributes{
				{Name: "name", Type: contentmodel.TypeString},
				{Name: "articles", Type: contentmodel.TypeRelation, Relation: contentmodel.NatureOneToMany, Target: articleUID, Via: "author"},
			},
		},
		&contentmodel.Model{
			Name:       "tag",
			Attributes: contentmodel.Attributes{{Name: "label", Type: contentmodel.TypeString}},
		},
		&contentmodel.Model{
			Name:       "seo",
			Kind:       contentmodel.KindComponent,
			Category:   "shared",
			Attributes: contentmodel.Attributes{{Name: "metaTitle", Type: contentmodel.TypeString}},
		},
	)
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	o := Options{Executor: dbexec.NewStandardExecutor(db), Registry: reg}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o), mock
}

func query(t *testing.T, s *Store, uid string) backend.Query {
	t.Helper()
	q, err := s.Query(uid)
	require.NoError(t, err)
	return q
}

type ulidArg struct{}

func (ulidArg) Match(v driver.Value) bool {
	str, ok := v.(string)
	if !ok {
		return false
	}
	_, err := ulid.ParseStrict(str)
	return err == nil
}

func TestQueryUnknownModel(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Query("application::missing.missing")
	assert.ErrorIs(t, err, contentmodel.ErrUnknownModel)
	_, err = s.Query("shared.seo")
	assert.ErrorIs(t, err, contentmodel.ErrUnknownModel)
}

func TestFindBuildsFilteredQuery(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery("SELECT `writers`.`id`, `writers`.`name` FROM `writers` WHERE .*`writers`.`name` = \\?.* ORDER BY `writers`.`name` DESC LIMIT 10 OFFSET 5").
		WithArgs("Ann").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("w1", "Ann"))

	records, err := query(t, s, writerUID).Find(context.Background(), backend.Params{
		"name":   "Ann",
		"_sort":  "name:desc",
		"_limit": 10,
		"_start": 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []backend.Record{{"id": "w1", "name": "Ann"}}, records)
}

func TestFindWithoutLimitKeepsOffset(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM `writers` LIMIT 18446744073709551615 OFFSET 2")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	records, err := query(t, s, writerUID).Find(context.Background(), backend.Params{"_start": 2, "_limit": -1})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NotNil(t, records)
}

func TestFindOperators(t *testing.T) {
	tests := []struct {
		name     string
		params   backend.Params
		fragment string
		args     []driver.Value
	}{
		{
			name:     "in",
			params:   backend.Params{"status_in": []any{"draft", "published"}},
			fragment: "`articles`.`status` IN (?,?)",
			args:     []driver.Value{"draft", "published"},
		},
		{
			name:     "greater or equal",
			params:   backend.Params{"views_gte": 10},
			fragment: "`articles`.`views` >= ?",
			args:     []driver.Value{int64(10)},
		},
		{
			name:     "case insensitive contains escapes wildcards",
			params:   backend.Params{"title_containsi": "50%"},
			fragment: "LOWER(`articles`.`title`) LIKE LOWER(?)",
			args:     []driver.Value{`%50\%%`},
		},
		{
			name:     "null check",
			params:   backend.Params{"author_null": true},
			fragment: "`articles`.`author` IS NULL",
		},
		{
			name:     "relation reference by object",
			params:   backend.Params{"author": map[string]any{"id": "w1"}},
			fragment: "`articles`.`author` = ?",
			args:     []driver.Value{"w1"},
		},
		{
			name:     "owned relation path",
			params:   backend.Params{"author.name": "Ann"},
			fragment: "`articles`.`author` IN (SELECT `r1`.`id` FROM `writers` AS `r1` WHERE `r1`.`name` = ?)",
			args:     []driver.Value{"Ann"},
		},
		{
			name:     "stored id list path",
			params:   backend.Params{"tags.label": "go"},
			fragment: "EXISTS (SELECT 1 FROM `tags` AS `r1` WHERE JSON_CONTAINS(`articles`.`tags`, JSON_ARRAY(`r1`.`id`)) AND `r1`.`label` = ?)",
			args:     []driver.Value{"go"},
		},
		{
			name:     "json membership",
			params:   backend.Params{"tags": "t1"},
			fragment: "JSON_CONTAINS(`articles`.`tags`, ?)",
			args:     []driver.Value{`"t1"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newStore(t)
			exp := mock.ExpectQuery(regexp.QuoteMeta(tt.fragment))
			if len(tt.args) > 0 {
				exp.WithArgs(tt.args...)
			}
			exp.WillReturnRows(sqlmock.NewRows(articleColumns))

			_, err := query(t, s, articleUID).Find(context.Background(), tt.params)
			require.NoError(t, err)
		})
	}
}

func TestInverseRelationPath(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("`writers`.`id` IN (SELECT `r1`.`author` FROM `articles` AS `r1` WHERE `r1`.`title` = ?)")).
		WithArgs("Hello").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("w1", "Ann"))

	records, err := query(t, s, writerUID).Find(context.Background(), backend.Params{
		"_where": map[string]any{"articles": map[string]any{"title": "Hello"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestFindRejectsInvalidCriteria(t *testing.T) {
	tests := []struct {
		name   string
		params backend.Params
	}{
		{name: "unknown field", params: backend.Params{"missing": 1}},
		{name: "unknown sort", params: backend.Params{"_sort": "missing:asc"}},
		{name: "bad sort direction", params: backend.Params{"_sort": "title:sideways"}},
		{name: "relation on scalar", params: backend.Params{"title.length": 3}},
		{name: "too deep", params: backend.Params{"author.articles.author.articles.author.name": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newStore(t)
			_, err := query(t, s, articleUID).Find(context.Background(), tt.params)
			assert.ErrorIs(t, err, backend.ErrInvalid)
		})
	}
}

func TestFindDecodesColumns(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery("SELECT .* FROM `articles`").
		WillReturnRows(sqlmock.NewRows(articleColumns).
			AddRow([]byte("a1"), []byte("Hello"), []byte("12"), "draft", "w1", []byte(`{"metaTitle":"Meta"}`), []byte(`["t1","t2"]`)))

	record, err := query(t, s, articleUID).FindOne(context.Background(), backend.Params{"id": "a1"})
	require.NoError(t, err)
	assert.Equal(t, backend.Record{
		"id":     "a1",
		"title":  "Hello",
		"views":  int64(12),
		"status": "draft",
		"author": "w1",
		"seo":    map[string]any{"metaTitle": "Meta"},
		"tags":   []any{"t1", "t2"},
	}, record)
}

func TestCreateAssignsULID(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `articles` (`id`,`title`,`author`,`seo`) VALUES (?,?,?,?)")).
		WithArgs(ulidArg{}, "Hello", "w1", `{"metaTitle":"Meta"}`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM `articles`").
		WithArgs(ulidArg{}).
		WillReturnRows(sqlmock.NewRows(articleColumns).
			AddRow("01HZX3K1G1M4F7Q3K2V9Y8T6AB", "Hello", nil, nil, "w1", `{"metaTitle":"Meta"}`, nil))

	created, err := query(t, s, articleUID).Create(context.Background(), backend.Record{
		"title":   "Hello",
		"author":  map[string]any{"id": "w1"},
		"seo":     map[string]any{"metaTitle": "Meta"},
		"ignored": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", created["title"])
	assert.Equal(t, map[string]any{"metaTitle": "Meta"}, created["seo"])
}

func TestCreateAutoIncrement(t *testing.T) {
	s, mock := newStore(t, func(o *Options) { o.AutoIncrementIDs = true })

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `writers` (`name`) VALUES (?)")).
		WithArgs("Ann").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("SELECT .* FROM `writers`").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Ann"))

	created, err := query(t, s, writerUID).Create(context.Background(), backend.Record{"name": "Ann"})
	require.NoError(t, err)
	assert.Equal(t, backend.Record{"id": int64(7), "name": "Ann"}, created)
}

func TestUpdate(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery("SELECT .* FROM `writers`").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("w1", "Ann"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `writers` SET `name` = ? WHERE `id` = ?")).
		WithArgs("Anna", "w1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT .* FROM `writers`").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("w1", "Anna"))

	updated, err := query(t, s, writerUID).Update(context.Background(), backend.Params{"id": "w1"}, backend.Record{"id": "other", "name": "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "Anna", updated["name"])
}

func TestUpdateMissing(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery("SELECT .* FROM `writers`").
		WithArgs("w9").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	_, err := query(t, s, writerUID).Update(context.Background(), backend.Params{"id": "w9"}, backend.Record{"name": "x"})
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestDelete(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery("SELECT .* FROM `writers`").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow("w1", "Ann"))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM `writers` WHERE `id` = ?")).
		WithArgs("w1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := query(t, s, writerUID).Delete(context.Background(), backend.Params{"id": "w1"})
	require.NoError(t, err)
	assert.Equal(t, backend.Record{"id": "w1", "name": "Ann"}, deleted)
}

func TestWriteErrorsAreNormalized(t *testing.T) {
	tests := []struct {
		name    string
		number  uint16
		wantErr error
	}{
		{name: "duplicate entry", number: 1062, wantErr: backend.ErrConflict},
		{name: "foreign key", number: 1452, wantErr: backend.ErrInvalid},
		{name: "not null", number: 1048, wantErr: backend.ErrInvalid},
		{name: "access denied", number: 1142, wantErr: action.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newStore(t)
			mock.ExpectExec("INSERT INTO `writers`").
				WillReturnError(&mysql.MySQLError{Number: tt.number, Message: tt.name})

			_, err := query(t, s, writerUID).Create(context.Background(), backend.Record{"name": "Ann"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCount(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS `count` FROM `articles` WHERE (`articles`.`status` = ?)")).
		WithArgs("published").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	n, err := query(t, s, articleUID).Count(context.Background(), backend.Params{"status": "published"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestGroup(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT `articles`.`status` AS `_id`, SUM(`articles`.`views`) AS `views`, MAX(`articles`.`views`) AS `top` FROM `articles` GROUP BY `articles`.`status` ORDER BY `articles`.`status`")).
		WillReturnRows(sqlmock.NewRows([]string{"_id", "views", "top"}).
			AddRow([]byte("draft"), []byte("5"), []byte("5")).
			AddRow([]byte("published"), []byte("50"), []byte("40")))

	rows, err := query(t, s, articleUID).Group(backend.GroupSpec{
		By: "status",
		Accumulators: []backend.Accumulator{
			{Alias: "views", Op: "sum", Field: "views"},
			{Alias: "top", Op: "max", Field: "views"},
		},
	}).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []backend.Record{
		{"_id": "draft", "views": float64(5), "top": int64(5)},
		{"_id": "published", "views": float64(50), "top": int64(40)},
	}, rows)
}

func TestGroupRejectsUnknownAggregate(t *testing.T) {
	s, _ := newStore(t)
	_, err := query(t, s, articleUID).Group(backend.GroupSpec{
		Accumulators: []backend.Accumulator{{Alias: "x", Op: "median", Field: "views"}},
	}).Exec(context.Background())
	assert.ErrorIs(t, err, backend.ErrInvalid)
}
