package rules

import "fmt"

// Store is an immutable, ordered collection of compiled rules. The order is
// evaluation order.
type Store struct {
	rules   []Rule
	index   map[string]int
	enabled int
}

// NewStore compiles rs in the given order. Names must be unique.
func NewStore(rs ...Rule) (*Store, error) {
	s := &Store{
		rules: make([]Rule, 0, len(rs)),
		index: make(map[string]int, len(rs)),
	}
	for _, r := range rs {
		compiled, err := compile(r)
		if err != nil {
			return nil, err
		}
		if _, dup := s.index[compiled.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name %q", compiled.Name)
		}
		s.index[compiled.Name] = len(s.rules)
		s.rules = append(s.rules, compiled)
		if compiled.Enabled {
			s.enabled++
		}
	}
	return s, nil
}

// Len returns the number of rules, enabled or not.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// EnabledCount returns the number of enabled rules.
func (s *Store) EnabledCount() int {
	if s == nil {
		return 0
	}
	return s.enabled
}

// Rules returns the rules in evaluation order.
func (s *Store) Rules() []Rule {
	if s == nil {
		return nil
	}
	return append([]Rule(nil), s.rules...)
}

// Get looks a rule up by name.
func (s *Store) Get(name string) (Rule, bool) {
	if s == nil {
		return Rule{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Rule{}, false
	}
	return s.rules[i], true
}

// WithEnabled returns a copy of the store with the named rule enabled or
// disabled. The receiver is left untouched.
func (s *Store) WithEnabled(name string, enabled bool) (*Store, error) {
	if _, ok := s.Get(name); !ok {
		return nil, fmt.Errorf("rule %q not found", name)
	}
	next := &Store{
		rules: append([]Rule(nil), s.rules...),
		index: s.index,
	}
	next.rules[s.index[name]].Enabled = enabled
	for _, r := range next.rules {
		if r.Enabled {
			next.enabled++
		}
	}
	return next, nil
}
