package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"content-graphql/internal/backend"
	"content-graphql/internal/sqlutil"
)

// maxRelationDepth bounds dot-path filters such as `author.articles.title`.
const maxRelationDepth = 4

// where converts conditions into a predicate over the table referenced as
// alias. It returns nil when there is nothing to filter.
func (t *table) where(alias string, conds []backend.Condition, depth int) (sq.Sqlizer, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	and := make(sq.And, 0, len(conds))
	for _, cond := range conds {
		pred, err := t.condition(alias, cond, depth)
		if err != nil {
			return nil, err
		}
		and = append(and, pred)
	}
	return and, nil
}

func (t *table) condition(alias string, cond backend.Condition, depth int) (sq.Sqlizer, error) {
	if head, rest, nested := strings.Cut(cond.Field, "."); nested {
		return t.relationCondition(alias, head, backend.Condition{Field: rest, Op: cond.Op, Value: cond.Value}, depth)
	}
	c, ok := t.byName[cond.Field]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no filterable field %q", backend.ErrInvalid, t.model.UID, cond.Field)
	}
	col := sqlutil.Qualify(alias, c.name)

	switch cond.Op {
	case backend.OpEq:
		if c.kind == kindJSON && cond.Value != nil {
			return jsonContains(col, cond.Value)
		}
		return sq.Eq{col: scalarArg(cond.Value)}, nil
	case backend.OpNe:
		if c.kind == kindJSON && cond.Value != nil {
			pred, err := jsonContains(col, cond.Value)
			if err != nil {
				return nil, err
			}
			return notExpr{pred}, nil
		}
		return sq.NotEq{col: scalarArg(cond.Value)}, nil
	case backend.OpLt:
		return sq.Lt{col: cond.Value}, nil
	case backend.OpLte:
		return sq.LtOrEq{col: cond.Value}, nil
	case backend.OpGt:
		return sq.Gt{col: cond.Value}, nil
	case backend.OpGte:
		return sq.GtOrEq{col: cond.Value}, nil
	case backend.OpIn:
		return sq.Eq{col: cond.Values()}, nil
	case backend.OpNin:
		return sq.NotEq{col: cond.Values()}, nil
	case backend.OpContains:
		return sq.Like{col: likePattern(cond.Value)}, nil
	case backend.OpNContains:
		return sq.NotLike{col: likePattern(cond.Value)}, nil
	case backend.OpContainsi:
		return sq.Expr("LOWER("+col+") LIKE LOWER(?)", likePattern(cond.Value)), nil
	case backend.OpNContainsi:
		return sq.Expr("LOWER("+col+") NOT LIKE LOWER(?)", likePattern(cond.Value)), nil
	case backend.OpNull:
		if cond.IsNullCheck() {
			return sq.Eq{col: nil}, nil
		}
		return sq.NotEq{col: nil}, nil
	}
	return nil, fmt.Errorf("%w: unsupported operator %q", backend.ErrInvalid, cond.Op)
}

// relationCondition filters through the relation named head. Owned keys and
// inverse keys become IN subqueries; stored id lists become correlated EXISTS
// subqueries on JSON membership.
func (t *table) relationCondition(alias, head string, cond backend.Condition, depth int) (sq.Sqlizer, error) {
	if depth >= maxRelationDepth {
		return nil, fmt.Errorf("%w: relation filter %q is nested too deeply", backend.ErrInvalid, head)
	}
	assoc, ok := t.model.Association(head)
	if !ok || assoc.IsMorph() {
		return nil, fmt.Errorf("%w: %s cannot filter through %q", backend.ErrInvalid, t.model.UID, head)
	}
	target, err := t.store.table(assoc.Target)
	if err != nil {
		return nil, err
	}
	sub := fmt.Sprintf("r%d", depth+1)
	inner, err := target.condition(sub, cond, depth+1)
	if err != nil {
		return nil, err
	}
	from := sqlutil.QuoteIdentifier(target.name) + " AS " + sqlutil.QuoteIdentifier(sub)

	own, hasColumn := t.byName[head]
	switch {
	case hasColumn && own.kind == kindRef:
		return inSubquery(sqlutil.Qualify(alias, head), sq.Select(sqlutil.Qualify(sub, target.pk)).From(from).Where(inner))
	case hasColumn && own.kind == kindJSON:
		return existsSubquery(sq.Select("1").From(from).
			Where(sq.Expr(fmt.Sprintf("JSON_CONTAINS(%s, JSON_ARRAY(%s))", sqlutil.Qualify(alias, head), sqlutil.Qualify(sub, target.pk)))).
			Where(inner))
	}

	via, ok := target.byName[assoc.Via]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s has no stored key to filter by", backend.ErrInvalid, t.model.UID, head)
	}
	if via.kind == kindJSON {
		return existsSubquery(sq.Select("1").From(from).
			Where(sq.Expr(fmt.Sprintf("JSON_CONTAINS(%s, JSON_ARRAY(%s))", sqlutil.Qualify(sub, via.name), sqlutil.Qualify(alias, t.pk)))).
			Where(inner))
	}
	return inSubquery(sqlutil.Qualify(alias, t.pk), sq.Select(sqlutil.Qualify(sub, via.name)).From(from).Where(inner))
}

func inSubquery(col string, sub sq.SelectBuilder) (sq.Sqlizer, error) {
	query, args, err := sub.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr(col+" IN ("+query+")", args...), nil
}

func existsSubquery(sub sq.SelectBuilder) (sq.Sqlizer, error) {
	query, args, err := sub.ToSql()
	if err != nil {
		return nil, err
	}
	return sq.Expr("EXISTS ("+query+")", args...), nil
}

func jsonContains(col string, value any) (sq.Sqlizer, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalid, err)
	}
	return sq.Expr("JSON_CONTAINS("+col+", ?)", string(raw)), nil
}

type notExpr struct {
	pred sq.Sqlizer
}

func (n notExpr) ToSql() (string, []any, error) {
	query, args, err := n.pred.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + query + ")", args, nil
}

// scalarArg unwraps `{id: x}` references so relation keys compare by id.
func scalarArg(v any) any {
	if m, ok := v.(map[string]any); ok {
		if id, ok := m["id"]; ok {
			return id
		}
	}
	return v
}

func likePattern(v any) string {
	return sqlutil.ContainsPattern(fmt.Sprint(v))
}
