package graphql

import (
	"context"
	"net/http"

	"github.com/0xmhha/eventsync-go/storage"
	"github.com/graphql-go/graphql"
	graphqlhandler "github.com/graphql-go/handler"
	"go.uber.org/zap"
)

// Handler serves GraphQL queries over decoded events
type Handler struct {
	schema  *Schema
	handler *graphqlhandler.Handler
}

// NewHandler creates a new GraphQL handler
func NewHandler(reader storage.EventReader, logger *zap.Logger) (*Handler, error) {
	schema, err := NewSchema(reader, logger)
	if err != nil {
		return nil, err
	}

	h := graphqlhandler.New(&graphqlhandler.Config{
		Schema:   &schema.schema,
		Pretty:   true,
		GraphiQL: false,
	})

	return &Handler{
		schema:  schema,
		handler: h,
	}, nil
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ContextHandler(r.Context(), w, r)
}

// ExecuteQuery executes a GraphQL query (for testing)
func (h *Handler) ExecuteQuery(query string, variables map[string]interface{}) *graphql.Result {
	return graphql.Do(graphql.Params{
		Schema:         h.schema.schema,
		Context:        context.Background(),
		RequestString:  query,
		VariableValues: variables,
	})
}
