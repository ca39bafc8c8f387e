package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrMockExhausted is returned when a MockClient has no scripted reply left.
var ErrMockExhausted = errors.New("mock llm: no scripted reply")

// MockClient 用于测试的 LLM 客户端。
// Replies are consumed in order; Handler, when set, takes precedence.
type MockClient struct {
	mu       sync.Mutex
	replies  []mockReply
	requests []Request

	// Handler computes a reply from the request.
	Handler func(ctx context.Context, req Request) (string, error)
}

type mockReply struct {
	text string
	err  error
}

// NewMockClient returns a client that replies with replies in order.
func NewMockClient(replies ...string) *MockClient {
	m := &MockClient{}
	for _, text := range replies {
		m.replies = append(m.replies, mockReply{text: text})
	}
	return m
}

// Reply queues a successful reply.
func (m *MockClient) Reply(text string) *MockClient {
	m.mu.Lock()
	m.replies = append(m.replies, mockReply{text: text})
	m.mu.Unlock()
	return m
}

// Fail queues a failing call.
func (m *MockClient) Fail(err error) *MockClient {
	m.mu.Lock()
	m.replies = append(m.replies, mockReply{err: err})
	m.mu.Unlock()
	return m
}

func (m *MockClient) Send(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	req.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, req)
	handler := m.Handler
	if handler == nil && len(m.replies) == 0 {
		m.mu.Unlock()
		return "", &TransportError{Err: ErrMockExhausted}
	}
	var next mockReply
	if handler == nil {
		next = m.replies[0]
		m.replies = m.replies[1:]
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	return next.text, next.err
}

// Requests returns every request received so far.
func (m *MockClient) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// CallCount reports how many requests were received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
