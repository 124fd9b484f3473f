package target

import (
	"errors"
	"testing"

	"github.com/ykondo/sshmux/internal/model"
)

func TestParseWithExplicitPort(t *testing.T) {
	tgt, err := Parse("admin@192.0.2.10:2200")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tgt.User != "admin" || tgt.Host != "192.0.2.10" || tgt.Port != 2200 {
		t.Fatalf("unexpected decomposition: %+v", tgt)
	}
	if tgt.Raw != "admin@192.0.2.10:2200" {
		t.Fatalf("raw string not preserved: %q", tgt.Raw)
	}
}

func TestParseDefaultsPort(t *testing.T) {
	tgt, err := Parse("root@10.0.0.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tgt.Port != 22 {
		t.Fatalf("expected default port 22, got %d", tgt.Port)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"bad-target",
		"a@b@c",
		"@host",
		"user@",
		"user@host:0",
		"user@host:70000",
		"user@host:abc",
	}
	for _, raw := range cases {
		if _, err := Parse(raw); !errors.Is(err, model.ErrInvalidTarget) {
			t.Fatalf("expected ErrInvalidTarget for %q, got %v", raw, err)
		}
	}
}

func TestDeriveIDStable(t *testing.T) {
	a, err := DeriveID("root@10.0.0.5")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, _ := DeriveID("root@10.0.0.5")
	if a != b {
		t.Fatalf("id not stable: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", a)
	}
}

func TestDeriveIDKeysOnExactString(t *testing.T) {
	a, _ := DeriveID("root@10.0.0.5")
	b, _ := DeriveID("root@10.0.0.5:22")
	if a == b {
		t.Fatal("explicit :22 must derive a distinct id")
	}
}

func TestDeriveIDRejectsEmpty(t *testing.T) {
	if _, err := DeriveID(""); !errors.Is(err, model.ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}
