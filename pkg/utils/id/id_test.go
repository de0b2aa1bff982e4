package id

import (
	"regexp"
	"sort"
	"testing"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUUIDFormat(t *testing.T) {
	gen := NewUUIDGenerator()
	for i := 0; i < 100; i++ {
		got := gen.Generate()
		if !uuidPattern.MatchString(got) {
			t.Fatalf("invalid UUID v4: %q", got)
		}
	}
}

func TestUUIDUniqueness(t *testing.T) {
	gen := NewUUIDGenerator()
	ids := gen.GenerateN(1000)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate UUID: %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestULIDFormat(t *testing.T) {
	gen := NewULIDGenerator()
	got := gen.Generate()
	if len(got) != 26 {
		t.Errorf("ULID length = %d, want 26", len(got))
	}
}

func TestULIDMonotonic(t *testing.T) {
	gen := NewULIDGenerator()
	ids := gen.GenerateN(1000)

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	for i := range ids {
		if ids[i] != sorted[i] {
			t.Fatalf("ULIDs not monotonic at index %d: %q", i, ids[i])
		}
	}
}

func TestNewByType(t *testing.T) {
	if got := New(TypeUUID); !uuidPattern.MatchString(got) {
		t.Errorf("New(TypeUUID) = %q, not a UUID", got)
	}
	if got := New(TypeULID); len(got) != 26 {
		t.Errorf("New(TypeULID) = %q, not a ULID", got)
	}
	// Unknown types default to UUID.
	if got := New(Type("bogus")); !uuidPattern.MatchString(got) {
		t.Errorf("New(bogus) = %q, want UUID fallback", got)
	}
}
