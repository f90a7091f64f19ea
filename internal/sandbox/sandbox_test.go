package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

// emptyModule is the minimal valid WASM binary: magic number plus
// version, no sections, no exports. wazero compiles and instantiates
// it without error.
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// infiniteFuelLoopModule is a hand-assembled WASM module exporting
// "_start" as:
//
//	(loop
//	  (drop (call $host_consume_fuel (i64.const 1)))
//	  (br 0))
//
// It never returns on its own, proving fuel metering actually aborts a
// real infinite loop rather than only a guest that cooperatively stops
// early (see the package doc comment on the guest-cooperative limit).
var infiniteFuelLoopModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
	// type section: (i64)->(i32), ()->()
	0x01, 0x09, 0x02, 0x60, 0x01, 0x7e, 0x01, 0x7f, 0x60, 0x00, 0x00,
	// import section: env.host_consume_fuel : type 0
	0x02, 0x19, 0x01, 0x03, 0x65, 0x6e, 0x76, 0x11,
	0x68, 0x6f, 0x73, 0x74, 0x5f, 0x63, 0x6f, 0x6e, 0x73, 0x75, 0x6d, 0x65, 0x5f, 0x66, 0x75, 0x65, 0x6c,
	0x00, 0x00,
	// function section: func 0 (defined) uses type 1
	0x03, 0x02, 0x01, 0x01,
	// export section: "_start" -> func index 1
	0x07, 0x0a, 0x01, 0x06, 0x5f, 0x73, 0x74, 0x61, 0x72, 0x74, 0x00, 0x01,
	// code section: loop { i64.const 1; call 0; drop; br 0 }
	0x0a, 0x0e, 0x01, 0x0c, 0x00,
	0x03, 0x40, // loop (block type empty)
	0x42, 0x01, // i64.const 1
	0x10, 0x00, // call 0
	0x1a,       // drop
	0x0c, 0x00, // br 0
	0x0b, // end (loop)
	0x0b, // end (function)
}

func TestSandbox_ValidateModule_AcceptsEmptyModule(t *testing.T) {
	s := New()
	if err := s.ValidateModule(context.Background(), emptyModule); err != nil {
		t.Fatalf("expected empty module to validate, got %v", err)
	}
}

func TestSandbox_ValidateModule_RejectsGarbage(t *testing.T) {
	s := New()
	err := s.ValidateModule(context.Background(), []byte("not wasm"))
	if !errors.Is(err, ErrInvalidModule) {
		t.Errorf("expected ErrInvalidModule, got %v", err)
	}
}

func TestSandbox_Execute_RejectsInvalidModule(t *testing.T) {
	s := New()
	_, err := s.Execute(context.Background(), []byte("garbage"), nil, Config{})
	if !errors.Is(err, ErrInvalidModule) {
		t.Errorf("expected ErrInvalidModule, got %v", err)
	}
}

func TestSandbox_Execute_MissingEntrypoint(t *testing.T) {
	s := New()
	_, err := s.Execute(context.Background(), emptyModule, nil, Config{})
	var sbErr *SandboxError
	if !errors.As(err, &sbErr) {
		t.Fatalf("expected *SandboxError, got %v", err)
	}
	if sbErr.Kind != "missing_entrypoint" {
		t.Errorf("expected missing_entrypoint kind, got %q", sbErr.Kind)
	}
}

func TestConfig_DefaultsApplyOnZeroValue(t *testing.T) {
	var c Config
	if c.fuelLimit() != DefaultFuelLimit {
		t.Errorf("expected default fuel limit, got %d", c.fuelLimit())
	}
	if c.memoryPages() != DefaultMemoryPages {
		t.Errorf("expected default memory pages, got %d", c.memoryPages())
	}
	if c.maxOutputBytes() != DefaultMaxOutput {
		t.Errorf("expected default max output, got %d", c.maxOutputBytes())
	}
	if c.wallClock() != DefaultWallClock {
		t.Errorf("expected default wall clock, got %v", c.wallClock())
	}
}

func TestConfig_ExplicitValuesOverrideDefaults(t *testing.T) {
	c := Config{
		FuelLimit:      5,
		MemoryPages:    1,
		MaxOutputBytes: 10,
		WallClock:      time.Second,
	}
	if c.fuelLimit() != 5 {
		t.Errorf("expected explicit fuel limit, got %d", c.fuelLimit())
	}
	if c.memoryPages() != 1 {
		t.Errorf("expected explicit memory pages, got %d", c.memoryPages())
	}
	if c.maxOutputBytes() != 10 {
		t.Errorf("expected explicit max output, got %d", c.maxOutputBytes())
	}
	if c.wallClock() != time.Second {
		t.Errorf("expected explicit wall clock, got %v", c.wallClock())
	}
}

func TestSandbox_Execute_InfiniteLoopExhaustsFuel(t *testing.T) {
	s := New()
	_, err := s.Execute(context.Background(), infiniteFuelLoopModule, nil, Config{
		FuelLimit: 1000,
		WallClock: 10 * time.Second,
	})
	if !errors.Is(err, ErrOutOfFuel) {
		t.Fatalf("expected a real infinite loop to be stopped by fuel exhaustion, got %v", err)
	}
}

func TestSandbox_Execute_FuelConsumedMatchesAbortPoint(t *testing.T) {
	s := New()
	const limit = 500
	result, err := s.Execute(context.Background(), infiniteFuelLoopModule, nil, Config{
		FuelLimit: limit,
		WallClock: 10 * time.Second,
	})
	if !errors.Is(err, ErrOutOfFuel) {
		t.Fatalf("expected ErrOutOfFuel, got %v", err)
	}
	// Each loop iteration consumes exactly 1 unit of fuel, so the
	// counter stops at limit+1 — the call that pushed it over.
	if result.FuelConsumed != limit+1 {
		t.Errorf("expected fuel consumed to stop at %d (one past the limit), got %d", limit+1, result.FuelConsumed)
	}
}

func TestSandbox_Execute_CapabilityNotGrantedIsAbsentFromImports(t *testing.T) {
	// A module with no imports at all should still run fine regardless
	// of granted capabilities; this exercises that granting a
	// capability never breaks a module that doesn't use it.
	s := New()
	_, err := s.Execute(context.Background(), emptyModule, nil, Config{
		Capabilities: map[Capability]bool{CapabilityNetwork: true},
	})
	var sbErr *SandboxError
	if !errors.As(err, &sbErr) || sbErr.Kind != "missing_entrypoint" {
		t.Fatalf("expected missing_entrypoint error, got %v", err)
	}
}
