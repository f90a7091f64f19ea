package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nextlevelbuilder/goclaw-core/internal/action"
	"github.com/nextlevelbuilder/goclaw-core/internal/audit"
	"github.com/nextlevelbuilder/goclaw-core/internal/guardian"
	"github.com/nextlevelbuilder/goclaw-core/internal/injection"
	"github.com/nextlevelbuilder/goclaw-core/internal/redact"
)

var log = slog.With("component", "dispatch")

// ErrToolNotFound is returned when Dispatch is called with an unknown
// tool name.
type ErrToolNotFound struct{ Name string }

func (e *ErrToolNotFound) Error() string { return fmt.Sprintf("registry: tool %q not found", e.Name) }

// ErrInvalidArguments wraps a JSON-Schema validation failure.
type ErrInvalidArguments struct{ Err error }

func (e *ErrInvalidArguments) Error() string {
	return fmt.Sprintf("registry: invalid arguments: %v", e.Err)
}
func (e *ErrInvalidArguments) Unwrap() error { return e.Err }

// ErrPermissionDenied is returned when the Safety Guardian denies or
// leaves unapproved a proposed action.
type ErrPermissionDenied struct{ Reason string }

func (e *ErrPermissionDenied) Error() string { return "registry: permission denied: " + e.Reason }

// ErrExecutionFailed wraps an error returned by Tool.Execute.
type ErrExecutionFailed struct{ Err error }

func (e *ErrExecutionFailed) Error() string {
	return fmt.Sprintf("registry: execution failed: %v", e.Err)
}
func (e *ErrExecutionFailed) Unwrap() error { return e.Err }

// ApprovalCallback is invoked when the Guardian returns
// RequiresApproval. It returns whether the action is approved and
// whether the approval should be remembered as "approve all similar".
type ApprovalCallback func(req *action.Request) (approved bool, approveAllSimilar bool)

// Dispatcher runs the seven-step dispatch pipeline over a Registry.
type Dispatcher struct {
	Registry *Registry
	Guardian *guardian.Guardian
	Audit    *audit.Chain
	Approve  ApprovalCallback
}

// NewDispatcher builds a Dispatcher over the given collaborators.
func NewDispatcher(reg *Registry, g *guardian.Guardian, chain *audit.Chain, approve ApprovalCallback) *Dispatcher {
	return &Dispatcher{Registry: reg, Guardian: g, Audit: chain, Approve: approve}
}

// Dispatch executes one tool call end to end: lookup, schema
// validation, permission check, input scan, timed execution, output
// scan, redaction, and audit append — in that order, matching the
// evaluation sequence of a single tool invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, toolName string, args json.RawMessage) (Output, error) {
	start := time.Now()

	tool, ok := d.Registry.Get(toolName)
	if !ok {
		return Output{}, &ErrToolNotFound{Name: toolName}
	}

	if err := validateArgs(tool.ParametersSchema(), args); err != nil {
		return Output{}, &ErrInvalidArguments{Err: err}
	}

	details := tool.ActionDetails(args)
	req, err := d.Guardian.CreateActionRequest(toolName, tool.RiskLevel(), "invoke "+toolName, details)
	if err != nil {
		return Output{}, err
	}

	if err := d.authorize(req); err != nil {
		return Output{}, err
	}

	inputScan := injection.ScanInput(string(args))
	if inputScan.Suspicious && inputScan.Confidence >= 1.0 {
		log.Warn("dispatch denied: high-confidence injection", "tool", toolName, "confidence", inputScan.Confidence)
		d.logExecution(toolName, args, nil, false, time.Since(start))
		return Output{}, &ErrPermissionDenied{Reason: "input flagged as high-confidence injection attempt"}
	}

	out, execErr := d.execute(ctx, tool, args)
	duration := time.Since(start)

	if execErr != nil {
		log.Error("tool execution failed", "tool", toolName, "error", execErr, "duration", duration)
		d.logExecution(toolName, args, nil, false, duration)
		return Output{}, &ErrExecutionFailed{Err: execErr}
	}

	outScan := injection.ScanToolOutput(out.Content)
	if outScan.Suspicious {
		out.Content = injection.WithWarning(out.Content)
	}
	out.Content = redact.Redact(out.Content)
	out.Size = len(out.Content)

	log.Debug("dispatch complete", "tool", toolName, "duration", duration, "is_error", out.IsError)
	d.logExecution(toolName, args, []byte(out.Content), !out.IsError, duration)
	return out, nil
}

func (d *Dispatcher) authorize(req *action.Request) error {
	result := d.Guardian.CheckPermission(req)
	switch {
	case result.IsAllowed():
		return nil
	case result.IsDenied():
		return &ErrPermissionDenied{Reason: result.Reason}
	case result.NeedsApproval():
		if d.Approve == nil {
			return &ErrPermissionDenied{Reason: "action requires approval but no approval callback is configured"}
		}
		approved, approveAll := d.Approve(req)
		if !approved {
			return &ErrPermissionDenied{Reason: "action was not approved"}
		}
		d.Guardian.RecordApproval(req, approveAll)
		return nil
	default:
		return &ErrPermissionDenied{Reason: "unrecognized permission result"}
	}
}

func (d *Dispatcher) execute(ctx context.Context, tool Tool, args json.RawMessage) (Output, error) {
	timeout := tool.Timeout()
	if timeout <= 0 {
		return tool.Execute(ctx, args)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := tool.Execute(execCtx, args)
		done <- result{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-execCtx.Done():
		return Output{}, execCtx.Err()
	}
}

func (d *Dispatcher) logExecution(toolName string, args, output []byte, success bool, duration time.Duration) {
	if d.Guardian == nil {
		return
	}
	_ = d.Guardian.LogExecution(toolName, args, output, success, duration)
}

func validateArgs(schemaBytes []byte, args json.RawMessage) error {
	if len(schemaBytes) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("tool-args.json", bytes.NewReader(schemaBytes)); err != nil {
		return err
	}
	schema, err := compiler.Compile("tool-args.json")
	if err != nil {
		return err
	}

	var v interface{}
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("args is not valid json: %w", err)
	}
	return schema.Validate(v)
}
