// Package extraction wraps the remote vision endpoint that turns a menu
// photo into structured (drink, price) pairs. The client passes drink names
// through untouched; vocabulary reconciliation happens downstream.
package extraction

import (
	"context"

	"github.com/espressomap/espressomap/internal/entity"
)

// Client is the interface the worker depends on.
type Client interface {
	Extract(ctx context.Context, imageBytes []byte) ([]entity.DrinkPrice, error)
}

// TokenProvider supplies the bearer token for extraction requests and is
// told when the service rejected it.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// extractRequest is the wire shape: a single JSON object with the image
// pre-compressed and base64 encoded.
type extractRequest struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
}

type extractResponse struct {
	Success bool               `json:"success"`
	Drinks  []entity.DrinkPrice `json:"drinks"`
	Message string             `json:"message,omitempty"`
}
