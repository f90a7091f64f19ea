// Package providers defines the external collaborator seams the core
// depends on but never implements: CompletionProvider (the LLM) and
// Callback (the UI/channel sink). Both are interfaces with virtual
// dispatch, following the teacher's internal/providers.Provider shape,
// because user code extends them (open sets) rather than choosing among
// a small fixed variant list.
package providers

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw-core/internal/action"
	"github.com/nextlevelbuilder/goclaw-core/internal/registry"
)

// Message is one turn in a completion request, generalized from the
// teacher's providers.Message to the core's tool-call shape.
type Message struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments []byte `json:"arguments"`
}

// ToolDefinition describes one registry.Tool in the wire shape a
// CompletionProvider expects (name, description, JSON Schema).
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Parameters  []byte `json:"parameters"`
}

// CompletionRequest is the input to a completion call.
type CompletionRequest struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
	Model    string           `json:"model,omitempty"`
}

// Usage tracks token consumption, including prompt-cache accounting
// (spec §6 cache.* surface): the core only carries these numbers, it
// never interprets them.
type Usage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	CacheCreationTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// CompletionResponse is a completed (non-streaming) model turn.
type CompletionResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        Usage      `json:"usage"`
}

// StreamToken is one streamed delta, passed to Callback.OnToken.
type StreamToken struct {
	Content string
	Done    bool
}

// CompletionProvider is the external LLM capability the core consumes;
// it never implements one itself (spec §1 Non-goals: "does not
// implement LLM inference").
type CompletionProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	CompleteStream(ctx context.Context, req CompletionRequest, onToken func(StreamToken)) (*CompletionResponse, error)
	Name() string
}

// AgentStatus is the set of lifecycle states reported via
// Callback.OnStatusChange.
type AgentStatus int

const (
	StatusIdle AgentStatus = iota
	StatusThinking
	StatusRunning
	StatusWaiting
	StatusError
)

func (s AgentStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusThinking:
		return "thinking"
	case StatusRunning:
		return "running"
	case StatusWaiting:
		return "waiting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Callback is the sink every UI, channel adapter, or voice bridge
// implements to consume the core (spec §1, §6 "Callback contract").
// Every method except RequestApproval must return without blocking;
// RequestApproval may suspend the calling goroutine until the operator
// decides.
type Callback interface {
	OnAssistantMessage(text string)
	OnToken(token string)
	RequestApproval(req *action.Request) bool
	OnToolStart(name string, args []byte)
	OnToolResult(name string, output registry.Output, duration time.Duration)
	OnStatusChange(status AgentStatus)
}

// NoopCallback implements Callback with no-op handlers and an
// always-deny RequestApproval; useful as a base to embed and override
// selectively, and in tests.
type NoopCallback struct{}

func (NoopCallback) OnAssistantMessage(string)                           {}
func (NoopCallback) OnToken(string)                                      {}
func (NoopCallback) RequestApproval(*action.Request) bool                { return false }
func (NoopCallback) OnToolStart(string, []byte)                          {}
func (NoopCallback) OnToolResult(string, registry.Output, time.Duration) {}
func (NoopCallback) OnStatusChange(AgentStatus)                          {}

var _ Callback = NoopCallback{}
