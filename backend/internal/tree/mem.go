package tree

import (
	"bytes"
	"io"
	"io/ioutil"
	"sort"
	"strings"
	"sync"
)

// `Mem` is an in-process `Store` for tests.
type Mem struct {
	mu          sync.Mutex
	collections map[string]struct{}
	objects     map[string][]byte
}

func NewMem() *Mem {
	return &Mem{
		collections: make(map[string]struct{}),
		objects:     make(map[string][]byte),
	}
}

func (s *Mem) EnsureCollection(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := path; p != ""; p = Parent(p) {
		s.collections[p] = struct{}{}
	}
	return nil
}

func (s *Mem) CollectionExists(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.collections[path]
	return ok, nil
}

func (s *Mem) ListCollections(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var subs []string
	prefix := path + "/"
	for c := range s.collections {
		if strings.HasPrefix(c, prefix) &&
			!strings.Contains(c[len(prefix):], "/") {
			subs = append(subs, c)
		}
	}
	sort.Strings(subs)
	return subs, nil
}

func (s *Mem) ListObjects(path string) ([]ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var objs []ObjectInfo
	prefix := path + "/"
	for o, dat := range s.objects {
		if strings.HasPrefix(o, prefix) &&
			!strings.Contains(o[len(prefix):], "/") {
			objs = append(objs, ObjectInfo{
				Name: Base(o),
				Size: int64(len(dat)),
			})
		}
	}
	sort.Slice(objs, func(i, j int) bool {
		return objs[i].Name < objs[j].Name
	})
	return objs, nil
}

func (s *Mem) ObjectExists(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok, nil
}

func (s *Mem) OpenObject(path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dat, ok := s.objects[path]
	if !ok {
		return nil, &NotFoundError{Path: path}
	}
	return ioutil.NopCloser(bytes.NewReader(dat)), nil
}

type memWriter struct {
	buf   bytes.Buffer
	store *Mem
	path  string
}

func (w *memWriter) Write(p []byte) (int, error) {
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	w.store.objects[w.path] = w.buf.Bytes()
	return nil
}

func (s *Mem) CreateObject(path string) (io.WriteCloser, error) {
	return &memWriter{store: s, path: path}, nil
}

func (s *Mem) RemoveTree(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := path + "/"
	delete(s.collections, path)
	for c := range s.collections {
		if strings.HasPrefix(c, prefix) {
			delete(s.collections, c)
		}
	}
	for o := range s.objects {
		if strings.HasPrefix(o, prefix) {
			delete(s.objects, o)
		}
	}
	return nil
}
