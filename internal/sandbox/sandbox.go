// Package sandbox executes untrusted WASM guest code under hard
// resource bounds using tetratelabs/wazero: a guest-visible fuel
// counter enforced via a host import the entrypoint must call
// cooperatively, a linear-memory cap enforced by the runtime itself,
// and an externally-enforced wall-clock timeout. Capability-gated host
// imports are present in the import namespace only when granted.
//
// Fuel is guest-cooperative, not preemptive: host_consume_fuel only
// aborts execution at a point the guest itself calls it. A guest
// module that never calls host_consume_fuel — say, a tight loop with
// no host calls at all — is bounded only by the wall-clock timeout,
// not by FuelLimit. wazero compiles to native code via a host-function
// call boundary, so there is no interpreter loop to instrument without
// its experimental listener API; this core accepts the wall-clock
// fallback rather than depend on an unstable interception surface.
// Any guest module this core generates itself therefore calls
// host_consume_fuel on every loop iteration.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
)

var log = slog.With("component", "sandbox")

// Capability is one optional host-import grant. Capabilities are an
// additive allowlist, never implicit: a capability not present in a
// Config means the corresponding host function is absent from the
// import table, and a guest module that references it fails to
// instantiate.
type Capability string

const (
	CapabilityFileRead  Capability = "file_read"
	CapabilityFileWrite Capability = "file_write"
	CapabilityNetwork   Capability = "network"
)

// Config bounds a single execution. Every field has a usable zero
// value, resolved to a Default* constant by Execute.
type Config struct {
	FuelLimit      uint64 // instruction budget consumed by host_consume_fuel calls
	MemoryPages    uint32 // linear memory cap in 64KiB pages
	WallClock      time.Duration
	Capabilities   map[Capability]bool
	MaxOutputBytes int
}

const (
	DefaultFuelLimit   = 10_000_000
	DefaultMemoryPages = 256 // 16 MiB
	DefaultMaxOutput   = 1 << 20
	DefaultWallClock   = 30 * time.Second
)

func (c Config) fuelLimit() uint64 {
	if c.FuelLimit == 0 {
		return DefaultFuelLimit
	}
	return c.FuelLimit
}

func (c Config) memoryPages() uint32 {
	if c.MemoryPages == 0 {
		return DefaultMemoryPages
	}
	return c.MemoryPages
}

func (c Config) maxOutputBytes() int {
	if c.MaxOutputBytes == 0 {
		return DefaultMaxOutput
	}
	return c.MaxOutputBytes
}

func (c Config) wallClock() time.Duration {
	if c.WallClock <= 0 {
		return DefaultWallClock
	}
	return c.WallClock
}

// ExecutionResult is the outcome of a completed execution.
type ExecutionResult struct {
	Output       []byte
	FuelConsumed uint64
	WithinLimits bool
}

// SandboxError is the closed set of guest-execution failures. Host
// code never panics on guest misbehavior; every guest trap becomes one
// of these values.
type SandboxError struct {
	Kind    string
	Message string
}

func (e *SandboxError) Error() string { return fmt.Sprintf("sandbox: %s: %s", e.Kind, e.Message) }

func newSandboxError(kind, message string) *SandboxError {
	return &SandboxError{Kind: kind, Message: message}
}

var (
	// ErrInvalidModule is returned by ValidateModule when bytes do not
	// parse/verify as a WASM module.
	ErrInvalidModule = errors.New("sandbox: invalid module")
	// ErrOutOfFuel is surfaced when the instruction budget is
	// exhausted; output produced so far is discarded.
	ErrOutOfFuel = errors.New("sandbox: fuel budget exhausted")
)

// Sandbox validates and executes WASM guest modules. It holds no
// per-execution state: every Execute call builds its own
// runtime/instance pair, scoped to that call's Config, so guest state
// never leaks between calls and a per-call memory cap is possible even
// though wazero's memory limit is a runtime-level setting.
type Sandbox struct{}

// New constructs a Sandbox.
func New() *Sandbox {
	return &Sandbox{}
}

// ValidateModule parses and verifies moduleBytes without instantiating
// or running it.
func (s *Sandbox) ValidateModule(ctx context.Context, moduleBytes []byte) error {
	runtime := wazero.NewRuntime(ctx)
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}
	return compiled.Close(ctx)
}

// Execute instantiates moduleBytes, wires in the base host imports
// (host_get_input_len/host_read_input/host_write_output/host_consume_fuel)
// plus any capability-gated imports named in config.Capabilities, and
// invokes the exported entrypoint "_start".
func (s *Sandbox) Execute(ctx context.Context, moduleBytes, input []byte, config Config) (ExecutionResult, error) {
	runtimeCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(config.memoryPages())
	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer runtime.Close(ctx)

	compiled, err := runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}
	defer compiled.Close(ctx)

	execCtx, cancel := context.WithTimeout(ctx, config.wallClock())
	defer cancel()

	state := newHostState(input, config.maxOutputBytes(), config.fuelLimit())
	host, err := buildHostModule(execCtx, runtime, state, config.Capabilities)
	if err != nil {
		return ExecutionResult{}, err
	}
	defer host.Close(execCtx)

	modCfg := wazero.NewModuleConfig().WithName("guest")
	instance, err := runtime.InstantiateModule(execCtx, compiled, modCfg)
	if err != nil {
		return classifyInstantiateError(execCtx, state, err)
	}
	defer instance.Close(execCtx)

	entry := instance.ExportedFunction("_start")
	if entry == nil {
		return ExecutionResult{}, newSandboxError("missing_entrypoint", `module does not export "_start"`)
	}

	if _, err := entry.Call(execCtx); err != nil {
		result, classified := classifyRunError(execCtx, state, err)
		log.Warn("guest execution aborted", "error", classified, "fuel_consumed", state.fuelConsumed)
		return result, classified
	}

	return ExecutionResult{
		Output:       state.output,
		FuelConsumed: state.fuelConsumed,
		WithinLimits: true,
	}, nil
}

func classifyInstantiateError(ctx context.Context, state *hostState, err error) (ExecutionResult, error) {
	if state.outOfFuel {
		return ExecutionResult{FuelConsumed: state.fuelConsumed}, ErrOutOfFuel
	}
	if ctx.Err() != nil {
		return ExecutionResult{}, newSandboxError("wall_clock_exceeded", "execution exceeded wall-clock timeout")
	}
	return ExecutionResult{}, newSandboxError("instantiate_failed", err.Error())
}

func classifyRunError(ctx context.Context, state *hostState, err error) (ExecutionResult, error) {
	if state.outOfFuel {
		return ExecutionResult{FuelConsumed: state.fuelConsumed}, ErrOutOfFuel
	}
	if ctx.Err() != nil {
		return ExecutionResult{FuelConsumed: state.fuelConsumed}, newSandboxError("wall_clock_exceeded", "execution exceeded wall-clock timeout")
	}
	return ExecutionResult{FuelConsumed: state.fuelConsumed}, newSandboxError("trap", err.Error())
}
