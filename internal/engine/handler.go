package engine

import (
	"net/http"
	"time"

	"github.com/graphql-go/handler"
)

// Handler serves the engine over HTTP using graphql-go/handler. Each request
// runs with its own association loader. With playground set, browsers that
// GET the endpoint receive the GraphQL Playground.
func (e *Engine) Handler(playground bool) http.Handler {
	h := handler.New(&handler.Config{
		Schema:     &e.schema,
		Pretty:     true,
		Playground: playground,
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, loader := e.Prepare(r.Context())
		h.ContextHandler(ctx, w, r.WithContext(ctx))
		e.finish(ctx, loader, start)
	})
}
