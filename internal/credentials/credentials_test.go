package credentials

import "testing"

func TestMemoryStore_StoreGetDelete(t *testing.T) {
	s := NewMemoryStore()

	if has, _ := s.HasKey("openai"); has {
		t.Fatal("expected no key stored initially")
	}

	if err := s.StoreKey("openai", "sk-test-123"); err != nil {
		t.Fatalf("unexpected error storing key: %v", err)
	}

	value, err := s.GetKey("openai")
	if err != nil {
		t.Fatalf("unexpected error getting key: %v", err)
	}
	if value != "sk-test-123" {
		t.Errorf("expected stored value, got %q", value)
	}

	if has, _ := s.HasKey("openai"); !has {
		t.Error("expected HasKey true after store")
	}

	if err := s.DeleteKey("openai"); err != nil {
		t.Fatalf("unexpected error deleting key: %v", err)
	}
	if _, err := s.GetKey("openai"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_ProvidersDoNotCollide(t *testing.T) {
	s := NewMemoryStore()
	s.StoreKey("openai", "key-a")
	s.StoreKey("anthropic", "key-b")

	openaiKey, _ := s.GetKey("openai")
	anthropicKey, _ := s.GetKey("anthropic")
	if openaiKey == anthropicKey {
		t.Error("expected distinct providers to have distinct keys")
	}
}

func TestMemoryStore_GetMissingReturnsNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetKey("missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteMissingIsNoop(t *testing.T) {
	s := NewMemoryStore()
	if err := s.DeleteKey("missing"); err != nil {
		t.Errorf("expected no error deleting a never-stored key, got %v", err)
	}
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*KeyringStore)(nil)
