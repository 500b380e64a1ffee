package app

import (
	"context"
	"strings"
	"sync"
)

// MockCompletionClient is the offline stand-in for the gateway. It powers
// keyless runs and tests.
type MockCompletionClient struct {
	mu    sync.Mutex
	calls int

	// Reply overrides the canned response when set.
	Reply string
	// Err, when set, fails every call.
	Err error
	// Block, when set, makes Complete wait for ctx cancellation instead of
	// answering. Used to exercise timeout paths.
	Block bool
}

func NewMockCompletionClient() *MockCompletionClient {
	return &MockCompletionClient{}
}

func (c *MockCompletionClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *MockCompletionClient) Complete(ctx context.Context, model ModelInfo, msgs []CompletionMessage, opts CompletionOptions) ([]ContentBlock, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.Err != nil {
		return nil, c.Err
	}
	if c.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	reply := c.Reply
	if reply == "" {
		reply = c.cannedReply(msgs)
	}
	return []ContentBlock{{Kind: BlockText, Text: reply}}, nil
}

func (c *MockCompletionClient) cannedReply(msgs []CompletionMessage) string {
	last := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			last = msgs[i].Content
			break
		}
	}
	last = strings.TrimSpace(last)
	if last == "" {
		return "(mock) Hello! Running without an API key; replies are canned."
	}
	if len(last) > 120 {
		last = last[:120] + "..."
	}
	return "(mock) You said: " + last
}
