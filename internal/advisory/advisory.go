// Package advisory produces short operator-facing remediation hints for a
// probed status code. Generators are expensive and may be rate limited;
// callers are expected to gate them on state transitions.
package advisory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// FallbackText replaces an advisory that could not be generated.
const FallbackText = "advisory unavailable"

// FallbackGreeting is shown when the greeting completion fails.
const FallbackGreeting = "Welcome back. Monitoring is ready and checking your targets."

var (
	ErrRateLimited = errors.New("advisory: rate limited")
	ErrDisabled    = errors.New("advisory: generator not configured")
	ErrEmpty       = errors.New("advisory: empty completion")
)

type Generator interface {
	// Generate returns a one-line hint for the classified status.
	Generate(ctx context.Context, statusCode int) (string, error)
	// Complete answers a free-text prompt.
	Complete(ctx context.Context, prompt string) (string, error)
}

func StatusPrompt(statusCode int) string {
	if statusCode == 200 {
		return "The monitored web service is healthy. As a calm operations assistant, " +
			"give the operator a single friendly sentence (under 25 words) confirming the system is stable."
	}
	return fmt.Sprintf("The monitored web service returned HTTP status %d. As an operations assistant, "+
		"give the developer one concrete remediation step in a single sentence (under 30 words).", statusCode)
}

func GreetingPrompt(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "operator"
	}
	return fmt.Sprintf("The administrator %s just opened the uptime dashboard. As a reliable monitoring assistant, "+
		"greet them politely in one short sentence and say monitoring is ready.", name)
}

// Greeting completes the greeting prompt, falling back to a fixed text.
func Greeting(ctx context.Context, g Generator, name string) string {
	if g == nil {
		return FallbackGreeting
	}
	text, err := g.Complete(ctx, GreetingPrompt(name))
	if err != nil || strings.TrimSpace(text) == "" {
		return FallbackGreeting
	}
	return text
}

func clean(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}
