package provenance

import (
	"sync"
	"time"

	"github.com/rdvproject/rdv/backend/pkg/ulid"
)

// `Mem` is an in-process `Log` for tests and single-process deployments.
type Mem struct {
	mu      sync.Mutex
	records map[string][]Record
}

func NewMem() *Mem {
	return &Mem{
		records: make(map[string][]Record),
	}
}

func (l *Mem) Append(entity, actor, action string, t time.Time) error {
	id, err := ulid.New()
	if err != nil {
		return &DBError{
			Op:  OpNewId,
			Err: err,
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[entity] = append(l.records[entity], Record{
		Id:     id,
		Entity: entity,
		Actor:  actor,
		Action: action,
		Time:   t,
	})
	return nil
}

func (l *Mem) List(entity string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rs := l.records[entity]
	out := make([]Record, len(rs))
	for i, r := range rs {
		out[len(rs)-1-i] = r
	}
	return out, nil
}

func (l *Mem) Head(entity string) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rs := l.records[entity]
	if len(rs) == 0 {
		return Record{}, false, nil
	}
	return rs[len(rs)-1], true, nil
}

func (l *Mem) Clear(entity string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, entity)
	return nil
}

func (l *Mem) Copy(src, dst string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.records[src] {
		id, err := ulid.New()
		if err != nil {
			return &DBError{
				Op:  OpNewId,
				Err: err,
			}
		}
		r.Id = id
		r.Entity = dst
		l.records[dst] = append(l.records[dst], r)
	}
	return nil
}
