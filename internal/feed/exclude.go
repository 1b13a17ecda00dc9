package feed

import (
	"encoding/json"
	"os"
)

// ExclusionSet holds identity keys (guids and URLs) of items already known,
// so repeat feed entries are not decoded twice.
type ExclusionSet struct {
	keys map[string]struct{}
}

func NewExclusionSet(keys []string) *ExclusionSet {
	s := &ExclusionSet{keys: make(map[string]struct{}, len(keys))}
	for _, k := range keys {
		if k != "" {
			s.keys[k] = struct{}{}
		}
	}
	return s
}

// LoadExclusionSet reads a JSON array of strings from path. A missing or
// unparseable file degrades to an empty set.
func LoadExclusionSet(path string) *ExclusionSet {
	if path == "" {
		return NewExclusionSet(nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return NewExclusionSet(nil)
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return NewExclusionSet(nil)
	}
	return NewExclusionSet(keys)
}

func (s *ExclusionSet) Has(key string) bool {
	_, ok := s.keys[key]
	return ok
}

func (s *ExclusionSet) Len() int {
	return len(s.keys)
}
