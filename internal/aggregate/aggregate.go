// Package aggregate computes summary statistics over the persistent log.
package aggregate

import (
	"context"
	"fmt"

	"github.com/user/connwatch/internal/store"
)

// DefaultTopN is the number of top processes reported.
const DefaultTopN = 5

// Summary is the lifetime view of the log. It is recomputed from the log on
// every call; no running counters are kept.
type Summary struct {
	TotalCount      int64                `json:"total_connections"`
	SuspiciousCount int64                `json:"suspicious_connections"`
	TopProcesses    []store.ProcessCount `json:"top_processes"`
}

// Aggregator summarizes a store.Log.
type Aggregator struct {
	log  store.Log
	topN int
}

// New returns an Aggregator reporting DefaultTopN processes.
func New(l store.Log) *Aggregator {
	return &Aggregator{log: l, topN: DefaultTopN}
}

// Summarize runs the count and top-process queries.
func (a *Aggregator) Summarize(ctx context.Context) (*Summary, error) {
	counts, err := a.log.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize connections: %w", err)
	}

	top, err := a.log.TopProcesses(ctx, a.topN)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize connections: %w", err)
	}
	if top == nil {
		top = []store.ProcessCount{}
	}

	return &Summary{
		TotalCount:      counts.Total,
		SuspiciousCount: counts.Suspicious,
		TopProcesses:    top,
	}, nil
}
