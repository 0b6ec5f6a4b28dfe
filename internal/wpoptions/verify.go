package wpoptions

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Mismatch describes one managed key whose stored value differs from the
// expected one. Missing rows have Found false.
type Mismatch struct {
	Name     string
	Expected string
	Actual   string
	Found    bool
}

func (m Mismatch) String() string {
	if !m.Found {
		return fmt.Sprintf("%s: missing (want %q)", m.Name, m.Expected)
	}
	return fmt.Sprintf("%s: got %q, want %q", m.Name, m.Actual, m.Expected)
}

// MismatchError lists every key that failed verification.
type MismatchError struct {
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	parts := make([]string, 0, len(e.Mismatches))
	for _, m := range e.Mismatches {
		parts = append(parts, m.String())
	}
	return "options do not match: " + strings.Join(parts, "; ")
}

// Verify checks that every key in expected is stored with exactly that value.
func (s *Store) Verify(ctx context.Context, expected map[string]string) error {
	names := make([]string, 0, len(expected))
	for name := range expected {
		names = append(names, name)
	}
	sort.Strings(names)

	got, err := s.GetMany(ctx, names...)
	if err != nil {
		return err
	}
	var bad []Mismatch
	for _, name := range names {
		o, ok := got[name]
		if !ok || o.Value != expected[name] {
			bad = append(bad, Mismatch{Name: name, Expected: expected[name], Actual: o.Value, Found: ok})
		}
	}
	if len(bad) > 0 {
		return &MismatchError{Mismatches: bad}
	}
	return nil
}
