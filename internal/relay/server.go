package relay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"paircrypt/internal/domain"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Server is an in-memory directory and mailbox.
type Server struct {
	mu        sync.Mutex
	bundles   map[domain.Address]domain.KeyBundle
	mailboxes map[domain.Address][]domain.MailboxItem

	log zerolog.Logger
	now func() time.Time
	mux *http.ServeMux
}

// NewServer returns a Server that logs requests to log.
func NewServer(log zerolog.Logger) *Server {
	s := &Server{
		bundles:   make(map[domain.Address]domain.KeyBundle),
		mailboxes: make(map[domain.Address][]domain.MailboxItem),
		log:       log,
		now:       time.Now,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("PUT /v1/bundles/{addr}", s.putBundle)
	s.mux.HandleFunc("GET /v1/bundles/{addr}", s.getBundle)
	s.mux.HandleFunc("POST /v1/messages/{addr}", s.postMessage)
	s.mux.HandleFunc("GET /v1/messages/{addr}", s.getMessages)
	s.mux.HandleFunc("POST /v1/messages/{addr}/ack", s.ackMessages)
	return s
}

// ServeHTTP implements http.Handler with access logging.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", rec.status).
		Dur("took", time.Since(start)).
		Msg("request")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) putBundle(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var b domain.KeyBundle
	if !decode(w, r, &b) {
		return
	}
	s.mu.Lock()
	s.bundles[addr] = b
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// getBundle returns the bundle and strips its one-time pre-key so no two
// initiators are handed the same one.
func (s *Server) getBundle(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	b, found := s.bundles[addr]
	if found && b.HasOneTimePreKey() {
		stripped := b
		stripped.OneTimePreKeyID, stripped.OneTimePreKey = nil, nil
		s.bundles[addr] = stripped
	}
	s.mu.Unlock()
	if !found {
		http.Error(w, "no bundle", http.StatusNotFound)
		return
	}
	writeJSON(w, b)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	to, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req sendRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Envelope) == 0 {
		http.Error(w, "empty envelope", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.mailboxes[to] = append(s.mailboxes[to], domain.MailboxItem{
		From:      req.From,
		Envelope:  req.Envelope,
		Timestamp: s.now().Unix(),
	})
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	s.mu.Lock()
	items := s.mailboxes[addr]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	out := append([]domain.MailboxItem{}, items...)
	s.mu.Unlock()
	writeJSON(w, out)
}

func (s *Server) ackMessages(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	var req ackRequest
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	box := s.mailboxes[addr]
	if req.Count < 0 || req.Count > len(box) {
		s.mu.Unlock()
		http.Error(w, "bad count", http.StatusBadRequest)
		return
	}
	if req.Count == len(box) {
		delete(s.mailboxes, addr)
	} else {
		s.mailboxes[addr] = box[req.Count:]
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func pathAddress(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(r.PathValue("addr"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return domain.Address{}, false
	}
	return addr, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
