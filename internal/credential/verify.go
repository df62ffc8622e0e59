package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrEmptySecret is returned when a probe is asked to check a blank key.
var ErrEmptySecret = errors.New("credential: empty secret")

// VerifyGoogle performs a minimal Gemini request to check that key is usable.
func VerifyGoogle(ctx context.Context, key, model string) error {
	if key == "" {
		return ErrEmptySecret
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(key))
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}
	defer client.Close()

	m := client.GenerativeModel(model)
	m.SetMaxOutputTokens(1)
	res, err := m.GenerateContent(ctx, genai.Text("ping"))
	if err != nil {
		return fmt.Errorf("gemini probe failed: %w", err)
	}
	if len(res.Candidates) == 0 {
		return errors.New("gemini probe returned no candidates")
	}
	return nil
}
