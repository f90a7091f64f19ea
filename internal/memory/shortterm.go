// Package memory implements the per-agent two-tier memory system:
// a short-term message window with compression, and a long-term fact
// store with substring/token-overlap ranked search.
package memory

import "sync"

// Message is one turn in a short-term window. Role mirrors the
// CompletionProvider's wire shape ("system"|"user"|"assistant"|"tool");
// the core never interprets Role beyond passing it through.
type Message struct {
	Role    string
	Content string
}

// ShortTerm is an ordered sequence of messages bounded by window. Adding
// beyond 2*window triggers NeedsCompression(); the caller (the agent
// loop) decides when to call Compress, which replaces the oldest window
// messages with a single synthetic summary message.
type ShortTerm struct {
	mu       sync.Mutex
	window   int
	messages []Message
	summary  string
	hasSummary bool
}

// NewShortTerm creates a short-term window bounded at the given size.
func NewShortTerm(window int) *ShortTerm {
	if window <= 0 {
		window = 1
	}
	return &ShortTerm{window: window}
}

// Add appends a message. Redaction must already have been applied by
// the caller before the message reaches memory — ShortTerm never
// redacts or otherwise mutates message content.
func (s *ShortTerm) Add(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// NeedsCompression reports whether the message count has exceeded
// 2*window, per the data-model invariant that count never exceeds
// 2*window between compressions.
func (s *ShortTerm) NeedsCompression() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) > 2*s.window
}

// Compress replaces the oldest window messages with a single synthetic
// summary message, folding it into any prior summary. After Compress,
// len(messages) <= window+1, satisfying the post-compression invariant.
func (s *ShortTerm) Compress(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cut := s.window
	if cut > len(s.messages) {
		cut = len(s.messages)
	}
	s.messages = s.messages[cut:]
	s.summary = summary
	s.hasSummary = true
}

// ContextMessages concatenates the compression summary (if any) with
// the most recent <= window messages, preserving order.
func (s *ShortTerm) ContextMessages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.messages
	if len(recent) > s.window {
		recent = recent[len(recent)-s.window:]
	}

	out := make([]Message, 0, len(recent)+1)
	if s.hasSummary {
		out = append(out, Message{Role: "system", Content: s.summary})
	}
	out = append(out, recent...)
	return out
}

// Len returns the current raw message count (pre-window-trim), useful
// for tests asserting the compression threshold.
func (s *ShortTerm) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}
