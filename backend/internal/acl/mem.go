package acl

import (
	"sort"
	"sync"
)

type memKey struct {
	entity    string
	principal string
}

type memGrant struct {
	level     Level
	recursive bool
}

// `Mem` is an in-process `Manager` for tests and single-process use.
type Mem struct {
	mu     sync.Mutex
	grants map[memKey]memGrant
}

func NewMem() *Mem {
	return &Mem{
		grants: make(map[memKey]memGrant),
	}
}

func (m *Mem) Grant(
	entity, principal string, level Level, recursive bool,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[memKey{entity, principal}] = memGrant{level, recursive}
	return nil
}

func (m *Mem) Revoke(entity, principal string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, memKey{entity, principal})
	return nil
}

func (m *Mem) LevelOf(entity, principal string) (Level, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[memKey{entity, principal}].level, nil
}

func (m *Mem) List(entity string) ([]Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var gs []Grant
	for k, g := range m.grants {
		if k.entity == entity {
			gs = append(gs, Grant{
				Principal: k.principal,
				Level:     g.level,
				Recursive: g.recursive,
			})
		}
	}
	sort.Slice(gs, func(i, j int) bool {
		return gs[i].Principal < gs[j].Principal
	})
	return gs, nil
}
