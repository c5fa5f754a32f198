package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go-kit/llm"
)

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// CallLLM sends a prompt using the configured model defaults.
func CallLLM(ctx context.Context, prompt string) (string, error) {
	IncrLLMCalls()
	resp, err := cfg.LLMClient.Complete(ctx, "", prompt)
	if err != nil {
		IncrLLMErrors()
		return "", err
	}
	return stripFences(resp), nil
}

// CallLLMOpts sends a prompt with explicit temperature and token limits.
func CallLLMOpts(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	IncrLLMCalls()
	resp, err := cfg.LLMClient.Complete(ctx, "", prompt,
		llm.WithChatTemperature(temperature),
		llm.WithChatMaxTokens(maxTokens),
	)
	if err != nil {
		IncrLLMErrors()
		return "", err
	}
	return stripFences(resp), nil
}

// CallLLMJSON sends a prompt and parses the response as JSON into T.
// A parse failure is an error: enrichment stages treat malformed model
// output the same as a transport failure and isolate it.
func CallLLMJSON[T any](ctx context.Context, prompt string) (T, error) {
	var out T
	raw, err := CallLLM(ctx, prompt)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("llm: parse failed on %q: %w", Truncate(raw, 200), err)
	}
	return out, nil
}
