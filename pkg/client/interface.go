package client

import (
	"context"
)

// VisionClient is a chat backend that accepts one image per request
type VisionClient interface {
	SimpleQuery(ctx context.Context, model, prompt, imgB64 string) (string, error)
	// Query sends an optional system prompt ahead of the user prompt
	Query(ctx context.Context, model, system, prompt, imgB64 string) (string, error)
}
