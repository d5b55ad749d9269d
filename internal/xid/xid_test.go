package xid

import (
	"strings"
	"testing"
)

func TestNewCarriesPrefix(t *testing.T) {
	id := New("tx")
	if !strings.HasPrefix(id, "tx-") {
		t.Fatalf("id %q missing prefix", id)
	}
}

func TestNewDoesNotRepeat(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New("till")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
