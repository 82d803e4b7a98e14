package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockProvider answers offline. It recognizes a few banking intents and
// turns them into navigate calls; it has no realtime channel.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

var mockIntents = []struct {
	keyword string
	screen  string
}{
	{"transfer", "transfer"},
	{"bill", "pay-bills"},
	{"yen", "fx-trading"},
	{"exchange", "fx-trading"},
	{"insurance", "travel-insurance"},
	{"travel", "travel-insurance"},
	{"loan", "loan-calculator"},
	{"home", "home"},
}

func (p *MockProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	return fmt.Sprintf("Earlier the customer discussed %d items. Last: %s", len(lines), lines[len(lines)-1]), nil
}

func (p *MockProvider) NewChat(context.Context, ChatConfig) (Chat, error) {
	return &mockChat{}, nil
}

type mockChat struct {
	mu    sync.Mutex
	calls int
}

func (c *mockChat) SendText(ctx context.Context, text string) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	lower := strings.ToLower(text)
	for _, in := range mockIntents {
		if strings.Contains(lower, in.keyword) {
			c.calls++
			return &Reply{ToolCalls: []ToolCall{{
				ID:   fmt.Sprintf("mock-%d", c.calls),
				Name: "navigate",
				Args: map[string]any{"screen": in.screen},
			}}}, nil
		}
	}
	return &Reply{Text: "I'm in offline mode. Try asking about transfers, bills, FX, travel insurance or loans."}, nil
}

func (c *mockChat) SendToolResponses(ctx context.Context, responses []ToolResponse) (*Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return &Reply{Text: "Nothing to do."}, nil
	}
	return &Reply{Text: fmt.Sprintf("Done. I've handled %s for you.", responses[0].Name)}, nil
}
