package sandbox

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// hostState is the per-execution state visible to host imports. A
// fresh instance is created for every Execute call, so no guest ever
// observes another call's input, output, or fuel counter.
type hostState struct {
	input     []byte
	output    []byte
	maxOutput int

	fuelLimit    uint64
	fuelConsumed uint64
	outOfFuel    bool
}

func newHostState(input []byte, maxOutput int, fuelLimit uint64) *hostState {
	return &hostState{input: input, maxOutput: maxOutput, fuelLimit: fuelLimit}
}

// buildHostModule instantiates the "env" host module exposing the base
// imports plus any capability-gated ones config grants.
func buildHostModule(ctx context.Context, runtime wazero.Runtime, state *hostState, caps map[Capability]bool) (api.Closer, error) {
	builder := runtime.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context) int32 { return int32(len(state.input)) }).
		Export("host_get_input_len")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) int32 {
			n := uint32(len(state.input))
			if length < n {
				n = length
			}
			if n > 0 && !mod.Memory().Write(ptr, state.input[:n]) {
				return -1
			}
			return int32(n)
		}).
		Export("host_read_input")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, ptr, length uint32) {
			if int(length) > state.maxOutput-len(state.output) {
				length = uint32(state.maxOutput - len(state.output))
			}
			if length == 0 {
				return
			}
			data, ok := mod.Memory().Read(ptr, length)
			if !ok {
				return
			}
			state.output = append(state.output, data...)
		}).
		Export("host_write_output")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, amount uint64) int32 {
			state.fuelConsumed += amount
			if state.fuelConsumed > state.fuelLimit {
				state.outOfFuel = true
				panic(sandboxTrap{err: ErrOutOfFuel})
			}
			return 0
		}).
		Export("host_consume_fuel")

	for cap, granted := range caps {
		if !granted {
			continue
		}
		if err := exportCapability(builder, cap); err != nil {
			return nil, err
		}
	}

	return builder.Instantiate(ctx)
}

// sandboxTrap lets host_consume_fuel abort guest execution
// deterministically via panic/recover inside wazero's call machinery,
// which converts it into a runtime error surfaced from Function.Call.
type sandboxTrap struct{ err error }

func (t sandboxTrap) Error() string { return t.err.Error() }

func exportCapability(builder wazero.HostModuleBuilder, cap Capability) error {
	switch cap {
	case CapabilityFileRead:
		builder.NewFunctionBuilder().
			WithFunc(func(ctx context.Context, mod api.Module, pathPtr, pathLen, outPtr, outLen uint32) int32 {
				// Real file I/O is wired by the embedding application
				// via a capability-specific callback; the core only
				// guarantees the import exists when granted.
				return -1
			}).
			Export("host_file_read")
	case CapabilityFileWrite:
		builder.NewFunctionBuilder().
			WithFunc(func(ctx context.Context, mod api.Module, pathPtr, pathLen, dataPtr, dataLen uint32) int32 {
				return -1
			}).
			Export("host_file_write")
	case CapabilityNetwork:
		builder.NewFunctionBuilder().
			WithFunc(func(ctx context.Context, mod api.Module, urlPtr, urlLen uint32) int32 {
				return -1
			}).
			Export("host_network_request")
	default:
		return fmt.Errorf("sandbox: unknown capability %q", cap)
	}
	return nil
}
