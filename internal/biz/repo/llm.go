package repo

import "context"

// GenerateRepo is the external text/vision generation endpoint.
// Implementations must bound each call with a timeout and surface endpoint
// failures as errors; callers decide whether a failure aborts the turn.
type GenerateRepo interface {
	// Generate produces a completion for a fully rendered prompt.
	// The whole completion is read before returning (no streaming).
	Generate(ctx context.Context, prompt string) (string, error)

	// Describe produces a completion for a prompt plus one base64-encoded
	// image, used by the image-analysis path.
	Describe(ctx context.Context, prompt, imageBase64 string) (string, error)
}
