package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a document does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunSuccess   = "success"
	RunPartial   = "partial"
	RunFailed    = "failed"
	RunNoResults = "no_results"
	RunCancelled = "cancelled"
)

// Run kinds.
const (
	KindCollect   = "collect"
	KindReprocess = "reprocess"
)

// CollectionRun tracks the lifecycle of one collection or reprocess execution.
type CollectionRun struct {
	RunID            string            `json:"runId,omitempty" firestore:"runId,omitempty"`
	Kind             string            `json:"kind,omitempty" firestore:"kind,omitempty"`
	SearchQuery      string            `json:"searchQuery,omitempty" firestore:"searchQuery,omitempty"`
	CEP              string            `json:"cep,omitempty" firestore:"cep,omitempty"`
	MarketsRequested []string          `json:"marketsRequested,omitempty" firestore:"marketsRequested,omitempty"`
	Status           string            `json:"status,omitempty" firestore:"status,omitempty"`
	StartedAt        time.Time         `json:"startedAt,omitempty" firestore:"startedAt,omitempty"`
	FinishedAt       time.Time         `json:"finishedAt,omitempty" firestore:"finishedAt,omitempty"`
	ResultsPerMarket map[string]int    `json:"resultsPerMarket,omitempty" firestore:"resultsPerMarket,omitempty"`
	ErrorsPerMarket  map[string]string `json:"errorsPerMarket,omitempty" firestore:"errorsPerMarket,omitempty"`
	TotalRecords     int               `json:"totalRecords" firestore:"totalRecords"`
	TotalOffers      int               `json:"totalOffers" firestore:"totalOffers"`
	TotalDropped     int               `json:"totalDropped" firestore:"totalDropped"`
	TotalComparable  int               `json:"totalComparable" firestore:"totalComparable"`
	ErrorSample      []ErrorSample     `json:"errorsSample,omitempty" firestore:"errorsSample,omitempty"`
}

// Duration is the run's wall time; ok is false while the run has not finished.
func (r CollectionRun) Duration() (time.Duration, bool) {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0, false
	}
	return r.FinishedAt.Sub(r.StartedAt), true
}

// ErrorSample captures a subset of errors for observability without heavy logging.
type ErrorSample struct {
	Title  string `json:"title,omitempty" firestore:"title,omitempty"`
	Reason string `json:"reason,omitempty" firestore:"reason,omitempty"`
}

// StoredRaw is a raw record kept for reprocessing when parsing rules change.
type StoredRaw struct {
	ID            string    `json:"id" firestore:"id"`
	RunID         string    `json:"runId,omitempty" firestore:"runId,omitempty"`
	ParserVersion string    `json:"parserVersion,omitempty" firestore:"parserVersion,omitempty"`
	LastParsedAt  time.Time `json:"lastParsedAt,omitempty" firestore:"lastParsedAt,omitempty"`
	Record        RawRecord `json:"record" firestore:"record"`
}
