package tier

import (
	"encoding/json"
	"sort"
	"time"
)

// Snapshot is an immutable set of metric values used for one resolution.
// The zero value is an empty snapshot.
type Snapshot struct {
	values  map[string]float64
	builtAt time.Time
}

// NewSnapshot copies values into a new snapshot taken at builtAt.
func NewSnapshot(values map[string]float64, builtAt time.Time) Snapshot {
	cp := make(map[string]float64, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Snapshot{values: cp, builtAt: builtAt}
}

// Lookup returns the value of name. It satisfies expr.Env.
func (s Snapshot) Lookup(name string) (float64, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Get returns the value of name, or zero.
func (s Snapshot) Get(name string) float64 {
	return s.values[name]
}

// Values returns a copy of the underlying map.
func (s Snapshot) Values() map[string]float64 {
	cp := make(map[string]float64, len(s.values))
	for k, v := range s.values {
		cp[k] = v
	}
	return cp
}

// Names returns the variable names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.values))
	for k := range s.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of variables.
func (s Snapshot) Len() int { return len(s.values) }

// BuiltAt returns when the snapshot was taken.
func (s Snapshot) BuiltAt() time.Time { return s.builtAt }

// Clone returns an independent copy.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s.values, s.builtAt)
}

// MarshalJSON encodes the snapshot as a flat object of variable values.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	if s.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.values)
}

// UnmarshalJSON decodes a flat object of variable values.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var values map[string]float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	s.values = values
	return nil
}
