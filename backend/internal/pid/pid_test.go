package pid_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rdvproject/rdv/backend/internal/pid"
	"github.com/stretchr/testify/require"
)

type fakeHandleService struct {
	mu      sync.Mutex
	handles map[string]string
	creates int
	fail    bool
}

func newFakeHandleService() *fakeHandleService {
	return &fakeHandleService{handles: make(map[string]string)}
}

func (s *fakeHandleService) ServeHTTP(
	w http.ResponseWriter, r *http.Request,
) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		ref := r.URL.Path[len("/handles/"):]
		p, ok := s.handles[ref]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"pid": p, "ref": ref,
		})
	case http.MethodPost:
		var h struct {
			Pid string `json:"pid"`
			Ref string `json:"ref"`
		}
		_ = json.NewDecoder(r.Body).Decode(&h)
		s.handles[h.Ref] = h.Pid
		s.creates++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(h)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc := newFakeHandleService()
	srv := httptest.NewServer(svc)
	defer srv.Close()

	c := pid.New(&pid.Config{BaseURL: srv.URL, Prefix: "21.T11998"})

	p1, err := c.Register("ref-1", "https://vault.example.org/p1")
	require.NoError(t, err)
	require.Equal(t, "21.T11998/ref-1", p1)

	// A second registration returns the existing handle.
	p2, err := c.Register("ref-1", "https://vault.example.org/p1")
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.Equal(t, 1, svc.creates)
}

func TestRegisterServiceError(t *testing.T) {
	svc := newFakeHandleService()
	svc.fail = true
	srv := httptest.NewServer(svc)
	defer srv.Close()

	c := pid.New(&pid.Config{BaseURL: srv.URL, Prefix: "21.T11998"})

	_, err := c.Register("ref-1", "https://vault.example.org/p1")
	require.Error(t, err)
	require.True(t, pid.IsServiceError(err))
}
