package appargs

import (
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		vs   []Validator
		ok   bool
	}{
		{"no args", nil, nil, true},
		{"extra arg", []string{"a"}, nil, false},
		{"dir", []string{"/tmp/snap"}, []Validator{RequiredNonEmpty}, true},
		{"empty dir", []string{""}, []Validator{RequiredNonEmpty}, false},
		{"missing dir", nil, []Validator{RequiredNonEmpty}, false},
		{"id", []string{"d", "0x10"}, []Validator{RequiredNonEmpty, Uint32}, true},
		{"bad id", []string{"d", "x"}, []Validator{RequiredNonEmpty, Uint32}, false},
		{"id too large", []string{"d", "4294967296"}, []Validator{RequiredNonEmpty, Uint32}, false},
		{"optional id missing", []string{"d"}, []Validator{RequiredNonEmpty, Optional(Uint32)}, true},
		{"optional id bad", []string{"d", "-1"}, []Validator{RequiredNonEmpty, Optional(Uint32)}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.args, tc.vs...)
			if tc.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidUsage) {
				t.Fatalf("expected invalid usage, got %v", err)
			}
		})
	}
}
