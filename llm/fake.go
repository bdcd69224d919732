package llm

import (
	"context"
	"fmt"
)

// FakeClient returns a canned answer without any network call. When no
// answer is configured it echoes a short citation-shaped reply, which
// keeps prompt-assembly tests readable.
type FakeClient struct {
	Answer string
	// Calls records the conversations passed to Generate.
	Calls [][]Message
}

// NewFakeClient returns a test chat provider.
func NewFakeClient(answer string) *FakeClient {
	return &FakeClient{Answer: answer}
}

func (c *FakeClient) Generate(_ context.Context, messages []Message, _ GenerateOptions) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	c.Calls = append(c.Calls, messages)

	if c.Answer != "" {
		return c.Answer, nil
	}
	return "Based on the provided context, here is the answer [1].", nil
}

var _ Client = (*FakeClient)(nil)
