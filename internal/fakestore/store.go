// Package fakestore is an in-memory multi-region object store that speaks
// enough of the storage HTTP protocol for end-to-end tests. Writes become
// visible in their origin region immediately and in every other region after
// a fixed replication lag; last writer (by arrival order) wins.
package fakestore

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config configures a Store.
type Config struct {
	Regions          []string
	DefaultRegion    string
	Lag              time.Duration
	RegionHeader     string
	ConsistentHeader string
	// Now overrides the clock used for replication visibility.
	Now func() time.Time
}

// Request is a recorded incoming request.
type Request struct {
	Method     string
	Key        string
	Region     string // as sent; empty for default routing
	Consistent bool
	Query      string
	Header     http.Header
}

type version struct {
	seq     int64
	origin  string
	at      time.Time
	deleted bool
	body    []byte
	etag    string
}

type fault struct {
	method string
	status int
	left   int
}

// Store implements http.Handler.
type Store struct {
	cfg Config

	mu       sync.Mutex
	seq      int64
	versions map[string][]version
	requests []Request
	faults   []*fault
}

// New creates a store. Header names default to the Tigris ones.
func New(cfg Config) *Store {
	if cfg.RegionHeader == "" {
		cfg.RegionHeader = "X-Tigris-Regions"
	}
	if cfg.ConsistentHeader == "" {
		cfg.ConsistentHeader = "X-Tigris-Consistent"
	}
	if cfg.DefaultRegion == "" && len(cfg.Regions) > 0 {
		cfg.DefaultRegion = cfg.Regions[0]
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		cfg:      cfg,
		versions: make(map[string][]version),
	}
}

// FailNext makes the next n requests with the given method return status.
func (s *Store) FailNext(method string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &fault{method: method, status: status, left: n})
}

// Requests returns a copy of every request received so far.
func (s *Store) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Object returns the bytes region currently serves for key.
func (s *Store) Object(region, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visible(region, key, false)
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v.body...), true
}

// ServeHTTP implements http.Handler for /{bucket}/{key} paths.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/")
	if i := strings.Index(key, "/"); i >= 0 {
		key = key[i+1:]
	} else {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}

	sentRegion := r.Header.Get(s.cfg.RegionHeader)
	region := sentRegion
	if region == "" {
		region = s.cfg.DefaultRegion
	}
	consistent := strings.EqualFold(r.Header.Get(s.cfg.ConsistentHeader), "true")

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:     r.Method,
		Key:        key,
		Region:     sentRegion,
		Consistent: consistent,
		Query:      r.URL.RawQuery,
		Header:     r.Header.Clone(),
	})
	if status, ok := s.takeFault(r.Method); ok {
		s.mu.Unlock()
		w.WriteHeader(status)
		return
	}
	s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		etag := s.put(region, key, body)
		w.Header().Set("ETag", strconv.Quote(etag))
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		s.remove(region, key)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodHead, http.MethodGet:
		s.mu.Lock()
		v, ok := s.visible(region, key, consistent)
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", strconv.Quote(v.etag))
		w.Header().Set("Content-Length", strconv.Itoa(len(v.body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(v.body)
		}
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Store) put(region, key string, body []byte) string {
	sum := md5.Sum(body)
	etag := hex.EncodeToString(sum[:])
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.versions[key] = append(s.versions[key], version{
		seq:    s.seq,
		origin: region,
		at:     s.cfg.Now(),
		body:   body,
		etag:   etag,
	})
	return etag
}

func (s *Store) remove(region, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.versions[key] = append(s.versions[key], version{
		seq:     s.seq,
		origin:  region,
		at:      s.cfg.Now(),
		deleted: true,
	})
}

// visible returns the newest version region can see. Callers hold mu.
func (s *Store) visible(region, key string, consistent bool) (version, bool) {
	now := s.cfg.Now()
	var best *version
	for i := range s.versions[key] {
		v := &s.versions[key][i]
		if !consistent && v.origin != region && now.Sub(v.at) < s.cfg.Lag {
			continue
		}
		if best == nil || v.seq > best.seq {
			best = v
		}
	}
	if best == nil || best.deleted {
		return version{}, false
	}
	return *best, true
}

func (s *Store) takeFault(method string) (int, bool) {
	for _, f := range s.faults {
		if f.method == method && f.left > 0 {
			f.left--
			return f.status, true
		}
	}
	return 0, false
}

// String summarises the store for test failure messages.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("fakestore{keys=%d requests=%d}", len(s.versions), len(s.requests))
}
