package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/money"
)

// ErrNoGraphQL is returned by Recommendations when no endpoint is configured.
var ErrNoGraphQL = errors.New("graphql endpoint not configured")

const recommendationsQuery = `query Recs($id: ID!, $first: Int) {
  recommendedProducts(productId: $id, first: $first) {
    id
    name
    price
    image
  }
}`

// Recommendation is a product suggested for another product.
type Recommendation struct {
	ID    jsonx.ID     `json:"id"`
	Name  string       `json:"name"`
	Price money.Amount `json:"price"`
	Image string       `json:"image"`
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

// GraphQLError carries the errors array of a GraphQL response.
type GraphQLError struct {
	Messages []string
}

func (e *GraphQLError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}

// Recommendations returns up to first products recommended for productID.
func (c *Catalog) Recommendations(ctx context.Context, productID string, first int) ([]Recommendation, error) {
	if c.graphqlURL == "" {
		return nil, ErrNoGraphQL
	}
	if first <= 0 {
		first = 12
	}

	var data struct {
		RecommendedProducts []Recommendation `json:"recommendedProducts"`
	}
	err := c.graphql(ctx, graphqlRequest{
		Query:     recommendationsQuery,
		Variables: map[string]any{"id": productID, "first": first},
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("recommendations for %s: %w", productID, err)
	}

	out := data.RecommendedProducts
	if out == nil {
		out = []Recommendation{}
	}
	for i := range out {
		out[i].Image = c.media.Product(out[i].Image)
	}
	return out, nil
}

// graphql posts req and decodes the data member into v.
func (c *Catalog) graphql(ctx context.Context, req graphqlRequest, v any) error {
	res, err := c.api.Do(ctx, http.MethodPost, c.graphqlURL, req)
	if err != nil {
		return err
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	decodeErr := res.Decode(&envelope)
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return &GraphQLError{Messages: msgs}
	}
	if err := res.Err(); err != nil {
		return err
	}
	if decodeErr != nil {
		return fmt.Errorf("decode graphql response: %w", decodeErr)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return errors.New("graphql response carried no data (status " + strconv.Itoa(res.Status) + ")")
	}
	return json.Unmarshal(envelope.Data, v)
}
