package poller

import (
	"bytes"

	"github.com/spachava753/convergence/internal/models"
)

// Expectation is what the predicate compares samples against.
type Expectation struct {
	Predicate models.PredicateKind
	// ETag and Payload describe the latest sequential write. Only
	// expect_latest uses them.
	ETag    string
	Payload []byte
}

type verdict int

const (
	pending verdict = iota
	converged
	mismatch
)

// admitsHead reports whether a HEAD response is good enough to spend a GET
// on. It lets head+get targets skip the body while metadata is still stale.
func (e Expectation) admitsHead(head models.ReadSample) bool {
	switch e.Predicate {
	case models.PredicateExpectLatest:
		return e.metadataMatches(head)
	case models.PredicateAgreement:
		return head.Found()
	case models.PredicateAbsent:
		return head.StatusCode == 404
	}
	return false
}

func (e Expectation) metadataMatches(s models.ReadSample) bool {
	if !s.Found() || s.ETag != e.ETag {
		return false
	}
	length := s.ContentLength
	if length < 0 && s.HasBody {
		length = int64(len(s.Body))
	}
	return length == int64(len(e.Payload))
}

// evaluate applies the predicate to one complete sample round.
func (e Expectation) evaluate(samples []models.ReadSample) verdict {
	if len(samples) == 0 {
		return pending
	}
	switch e.Predicate {
	case models.PredicateExpectLatest:
		return e.expectLatest(samples)
	case models.PredicateAgreement:
		return agreement(samples)
	case models.PredicateAbsent:
		for _, s := range samples {
			if !s.NotFound() {
				return pending
			}
		}
		return converged
	}
	return pending
}

func (e Expectation) expectLatest(samples []models.ReadSample) verdict {
	for _, s := range samples {
		if !e.metadataMatches(s) {
			return pending
		}
		if !s.Target.Read.ReadsBody() {
			continue
		}
		if !s.HasBody {
			// head+get stopped after HEAD.
			return pending
		}
		if !bytes.Equal(s.Body, e.Payload) {
			return mismatch
		}
	}
	return converged
}

func agreement(samples []models.ReadSample) verdict {
	first := samples[0]
	for _, s := range samples {
		if !s.Found() || s.ETag != first.ETag {
			return pending
		}
		if s.Target.Read.ReadsBody() && !s.HasBody {
			return pending
		}
	}

	var body []byte
	haveBody := false
	for _, s := range samples {
		if !s.HasBody {
			continue
		}
		if !haveBody {
			body, haveBody = s.Body, true
			continue
		}
		if !bytes.Equal(body, s.Body) {
			return mismatch
		}
	}
	return converged
}
