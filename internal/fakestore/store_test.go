package fakestore

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNow struct{ t time.Time }

func (f *fakeNow) now() time.Time { return f.t }

func do(t *testing.T, s *Store, method, region string, consistent bool, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, "/bucket/key", bytes.NewReader(body))
	if region != "" {
		req.Header.Set("X-Tigris-Regions", region)
	}
	if consistent {
		req.Header.Set("X-Tigris-Consistent", "true")
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestReplicationLag(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	s := New(Config{Regions: []string{"sjc", "fra"}, Lag: time.Second, Now: clock.now})

	rec := do(t, s, http.MethodPut, "sjc", false, []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"5d41402abc4b2a76b9719d911017c592"`, rec.Header().Get("ETag"))

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodHead, "sjc", false, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodHead, "fra", false, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodHead, "fra", true, nil).Code)

	clock.t = clock.t.Add(time.Second)
	got := do(t, s, http.MethodGet, "fra", false, nil)
	assert.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "hello", got.Body.String())
}

func TestDeleteTombstone(t *testing.T) {
	clock := &fakeNow{t: time.Unix(0, 0)}
	s := New(Config{Regions: []string{"sjc", "fra"}, Lag: time.Second, Now: clock.now})

	do(t, s, http.MethodPut, "fra", false, []byte("v1"))
	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodDelete, "sjc", false, nil).Code)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodHead, "sjc", false, nil).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodHead, "fra", false, nil).Code)

	clock.t = clock.t.Add(time.Second)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodHead, "fra", false, nil).Code)
}

func TestDefaultRegionAndFaults(t *testing.T) {
	s := New(Config{Regions: []string{"sjc", "fra"}, DefaultRegion: "fra", Lag: time.Hour})
	s.FailNext(http.MethodPut, http.StatusServiceUnavailable, 1)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodPut, "", false, []byte("x")).Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "", false, []byte("y")).Code)

	body, ok := s.Object("fra", "key")
	require.True(t, ok)
	assert.Equal(t, []byte("y"), body)
	_, ok = s.Object("sjc", "key")
	assert.False(t, ok)

	reqs := s.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].Region)
	assert.Equal(t, "key", reqs[1].Key)
}
