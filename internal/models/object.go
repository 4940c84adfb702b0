package models

import (
	"net/url"
	"strings"
)

// ObjectRef addresses one object on one storage endpoint. It is immutable
// for the lifetime of a trial.
type ObjectRef struct {
	Endpoint string `json:"endpoint"`
	Bucket   string `json:"bucket"`
	Key      string `json:"key"`
}

// URL returns {endpoint}/{bucket}/{key} with the key path-escaped.
func (r ObjectRef) URL() string {
	return strings.TrimRight(r.Endpoint, "/") + "/" + url.PathEscape(r.Bucket) + "/" + escapeKey(r.Key)
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// RequestOptions carries the routing directives attached to a request.
// An empty Region means default routing and no region header is sent.
type RequestOptions struct {
	Region     string `json:"region,omitempty"`
	Consistent bool   `json:"consistent,omitempty"`
}

// ReadMode selects which HTTP methods a read issues.
type ReadMode string

const (
	ReadHead    ReadMode = "head"
	ReadGet     ReadMode = "get"
	ReadHeadGet ReadMode = "head+get"
)

// ReadsBody reports whether the mode fetches object bytes.
func (m ReadMode) ReadsBody() bool {
	return m == ReadGet || m == ReadHeadGet
}

// WriteRecord is the result of one PUT.
type WriteRecord struct {
	Writer     string `json:"writer"`
	Region     string `json:"region,omitempty"`
	Consistent bool   `json:"consistent,omitempty"`
	Payload    []byte `json:"-"`
	Digest     string `json:"digest"`
	ETag       string `json:"etag"`
	StatusCode int    `json:"status_code"`
}

// ReadSample is a single observation of an object through one read target.
// HeadStatusCode is set when a head+get read issued both requests.
type ReadSample struct {
	Target         ReadTarget `json:"target"`
	StatusCode     int        `json:"status_code"`
	HeadStatusCode int        `json:"head_status_code,omitempty"`
	ETag           string     `json:"etag,omitempty"`
	ContentLength  int64      `json:"content_length"`
	Body           []byte     `json:"-"`
	HasBody        bool       `json:"has_body"`
}

// Found reports whether the sample saw the object.
func (s ReadSample) Found() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// NotFound reports whether every request in the sample returned 404.
func (s ReadSample) NotFound() bool {
	if s.HeadStatusCode != 0 && s.HeadStatusCode != 404 {
		return false
	}
	return s.StatusCode == 404
}
