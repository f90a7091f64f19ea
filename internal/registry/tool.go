// Package registry implements the tool registry and the seven-step
// dispatch pipeline: lookup, schema validation, permission check,
// input scanning, timed execution, output scanning, and redaction,
// with an audit entry appended on every call regardless of outcome.
package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/goclaw-core/internal/action"
)

// Tool is the handle every registered capability implements.
type Tool interface {
	Name() string
	Description() string
	ParametersSchema() []byte // raw JSON-Schema document
	RiskLevel() action.RiskLevel
	Timeout() time.Duration

	// Execute runs the tool. Implementations must leave no partially
	// mutated state visible if ctx is cancelled mid-run.
	Execute(ctx context.Context, args json.RawMessage) (Output, error)

	// ActionDetails builds the structured ActionDetails for a
	// particular invocation, used to construct the ActionRequest
	// handed to the Safety Guardian before Execute runs.
	ActionDetails(args json.RawMessage) action.Details
}

// ContentKind tags the shape of a ToolOutput's content.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentJSON
	ContentBinaryDescriptor
)

// Output is the unified return type from tool execution, already
// redacted by the time dispatch hands it back to the caller.
type Output struct {
	Content string
	Kind    ContentKind
	Size    int
	IsError bool
}

// ErrorOutput builds an Output flagged as an error.
func ErrorOutput(message string) Output {
	return Output{Content: message, Kind: ContentText, Size: len(message), IsError: true}
}

// TextOutput builds a plain-text successful Output.
func TextOutput(content string) Output {
	return Output{Content: content, Kind: ContentText, Size: len(content)}
}
