// Package content provides the default controllers behind the generated CRUD
// operations. Each model gets find, findOne, count, create, update and delete
// actions (find, update and delete for single types) backed by the backend
// query interface.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"time"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/logging"
)

// Options configures the default controllers.
type Options struct {
	// Now stamps timestamp fields. Defaults to time.Now in UTC.
	Now    func() time.Time
	Logger *logging.Logger
}

// Register adds the default actions of every model in registry. Actions that
// are already registered are left alone so applications can replace any of
// them before or after calling Register.
func Register(actions *action.Registry, registry *contentmodel.Registry, provider backend.Provider, opts Options) {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Logger == nil {
		opts.Logger = &logging.Logger{Logger: slog.Default()}
	}
	for _, m := range registry.Models() {
		ctrl := &controller{model: m, provider: provider, now: opts.Now}
		handlers := ctrl.collectionHandlers()
		if m.IsSingleType() {
			handlers = ctrl.singleHandlers()
		}
		registered := 0
		for name, h := range handlers {
			ref := action.ModelRef(m.Scope(), m.Name, name)
			if actions.Exists(ref) {
				continue
			}
			actions.Register(ref, h)
			registered++
		}
		opts.Logger.Debug("default controller registered",
			slog.String("model", m.UID),
			slog.Int("actions", registered),
		)
	}
}

type controller struct {
	model    *contentmodel.Model
	provider backend.Provider
	now      func() time.Time
}

func (c *controller) collectionHandlers() map[string]action.Handler {
	return map[string]action.Handler{
		"find":    c.find,
		"findOne": c.findOne,
		"count":   c.count,
		"create":  c.create,
		"update":  c.update,
		"delete":  c.delete,
	}
}

func (c *controller) singleHandlers() map[string]action.Handler {
	return map[string]action.Handler{
		"find":   c.findSingle,
		"update": c.updateSingle,
		"delete": c.deleteSingle,
	}
}

func (c *controller) query() (backend.Query, error) {
	return c.provider.Query(c.model.UID)
}

func (c *controller) find(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	records, err := q.Find(ctx.Context(), c.params(ctx.Query))
	if err != nil {
		return nil, err
	}
	return list(records), nil
}

func (c *controller) findOne(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	record, err := q.FindOne(ctx.Context(), c.params(ctx.Params))
	if err != nil {
		return nil, err
	}
	return single(record), nil
}

func (c *controller) count(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	n, err := q.Count(ctx.Context(), c.params(ctx.Query))
	if err != nil {
		return nil, err
	}
	return int(n), nil
}

func (c *controller) create(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	data, err := c.data(ctx.Request.Body)
	if err != nil {
		return nil, err
	}
	c.stamp(data, true)
	record, err := q.Create(ctx.Context(), data)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx.Context()).Debug("record created", slog.String("model", c.model.UID), slog.Any("id", record[c.model.PrimaryKey]))
	return single(record), nil
}

func (c *controller) update(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	where := c.params(ctx.Params)
	if _, err := c.existing(ctx.Context(), q, where); err != nil {
		return nil, err
	}
	data, err := c.data(ctx.Request.Body)
	if err != nil {
		return nil, err
	}
	c.stamp(data, false)
	record, err := q.Update(ctx.Context(), where, data)
	if err != nil {
		return nil, err
	}
	return single(record), nil
}

func (c *controller) delete(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	where := c.params(ctx.Params)
	if _, err := c.existing(ctx.Context(), q, where); err != nil {
		return nil, err
	}
	record, err := q.Delete(ctx.Context(), where)
	if err != nil {
		return nil, err
	}
	return single(record), nil
}

func (c *controller) findSingle(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	record, err := q.FindOne(ctx.Context(), backend.Params{})
	if err != nil {
		return nil, err
	}
	return single(record), nil
}

// updateSingle creates the single-type entry on first write.
func (c *controller) updateSingle(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	data, err := c.data(ctx.Request.Body)
	if err != nil {
		return nil, err
	}
	current, err := q.FindOne(ctx.Context(), backend.Params{})
	if err != nil {
		return nil, err
	}
	if current == nil {
		c.stamp(data, true)
		record, err := q.Create(ctx.Context(), data)
		if err != nil {
			return nil, err
		}
		return single(record), nil
	}
	c.stamp(data, false)
	record, err := q.Update(ctx.Context(), backend.Params{c.model.PrimaryKey: current[c.model.PrimaryKey]}, data)
	if err != nil {
		return nil, err
	}
	return single(record), nil
}

func (c *controller) deleteSingle(ctx *action.Context) (any, error) {
	q, err := c.query()
	if err != nil {
		return nil, err
	}
	current, err := q.FindOne(ctx.Context(), backend.Params{})
	if err != nil || current == nil {
		return nil, err
	}
	record, err := q.Delete(ctx.Context(), backend.Params{c.model.PrimaryKey: current[c.model.PrimaryKey]})
	if err != nil {
		return nil, err
	}
	return single(record), nil
}

func (c *controller) existing(ctx context.Context, q backend.Query, where backend.Params) (backend.Record, error) {
	if len(where) == 0 {
		return nil, fmt.Errorf("%w: %s requires a where selector", action.ErrBadRequest, c.model.UID)
	}
	record, err := q.FindOne(ctx, where)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s %v", action.ErrNotFound, c.model.UID, where[c.model.PrimaryKey])
	}
	return record, nil
}

// params maps the public `id` argument onto the primary key.
func (c *controller) params(in map[string]any) backend.Params {
	out := backend.Params(maps.Clone(in))
	if out == nil {
		return backend.Params{}
	}
	pk := c.model.PrimaryKey
	if pk == "id" {
		return out
	}
	for _, key := range sortedKeys(out) {
		if key == "id" || strings.HasPrefix(key, "id_") {
			out[pk+strings.TrimPrefix(key, "id")] = out[key]
			delete(out, key)
		}
	}
	return out
}

// data keeps the declared attributes of a mutation body.
func (c *controller) data(body any) (backend.Record, error) {
	in, ok := body.(map[string]any)
	if body != nil && !ok {
		return nil, fmt.Errorf("%w: %s data must be an object", action.ErrBadRequest, c.model.UID)
	}
	out := make(backend.Record, len(in))
	for key, value := range in {
		if c.model.Attribute(key) != nil {
			out[key] = value
		}
	}
	return out, nil
}

func (c *controller) stamp(data backend.Record, created bool) {
	fields := c.model.TimestampFields()
	if len(fields) == 0 {
		return
	}
	now := c.now()
	if created {
		data[fields[0]] = now
	}
	data[fields[len(fields)-1]] = now
}

func sortedKeys(m backend.Params) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func list(records []backend.Record) []any {
	out := make([]any, 0, len(records))
	for _, r := range records {
		out = append(out, map[string]any(r))
	}
	return out
}

func single(record backend.Record) any {
	if record == nil {
		return nil
	}
	return map[string]any(record)
}
