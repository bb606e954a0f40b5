package avu

import (
	"sort"
	"strings"
	"sync"
)

// `Mem` is an in-process `Store`.  Tests and single-process deployments use
// it; daemons use `Mongo`.
type Mem struct {
	mu      sync.Mutex
	entries map[string]map[string]string
}

func NewMem() *Mem {
	return &Mem{
		entries: make(map[string]map[string]string),
	}
}

func (s *Mem) Get(entity, attr string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.entries[entity][attr]
	return v, ok, nil
}

func (s *Mem) Set(entity, attr, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(entity, attr, value)
	return nil
}

func (s *Mem) setLocked(entity, attr, value string) {
	attrs, ok := s.entries[entity]
	if !ok {
		attrs = make(map[string]string)
		s.entries[entity] = attrs
	}
	attrs[attr] = value
}

func (s *Mem) SetCAS(entity, attr, value, expectedPrev string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.entries[entity][attr]
	if stored == value {
		return nil // idempotent
	}
	if stored != expectedPrev {
		return &ConflictError{
			Entity:   entity,
			Attr:     attr,
			Stored:   stored,
			Expected: expectedPrev,
		}
	}
	s.setLocked(entity, attr, value)
	return nil
}

func (s *Mem) Remove(entity, attr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[entity], attr)
	return nil
}

func (s *Mem) RemovePrefix(entity, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for a := range s.entries[entity] {
		if strings.HasPrefix(a, prefix) {
			delete(s.entries[entity], a)
		}
	}
	return nil
}

func (s *Mem) QueryPrefix(entity, prefix string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var es []Entry
	for a, v := range s.entries[entity] {
		if strings.HasPrefix(a, prefix) {
			es = append(es, Entry{Attr: a, Value: v})
		}
	}
	sort.Slice(es, func(i, j int) bool { return es[i].Attr < es[j].Attr })
	return es, nil
}

func (s *Mem) FindEntitiesByAttr(
	attr string, values ...string,
) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ents []string
	for e, attrs := range s.entries {
		v, ok := attrs[attr]
		if !ok {
			continue
		}
		for _, want := range values {
			if v == want {
				ents = append(ents, e)
				break
			}
		}
	}
	sort.Strings(ents)
	return ents, nil
}

func (s *Mem) RemoveEntity(entity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, entity)
	return nil
}
