package connmon

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shirou/gopsutil/v4/process"
)

// UnknownProcess is the name recorded when a pid cannot be resolved.
const UnknownProcess = "Unknown"

// LookupFunc asks the OS for the display name of pid.
type LookupFunc func(ctx context.Context, pid int32) (string, error)

// Resolver maps pids to process names through a bounded cache. Entries
// expire after ttl, which bounds how long a reused pid can report the name
// of the process that previously held it. Failed lookups are not cached.
// Resolver is safe for concurrent use.
type Resolver struct {
	cache  *expirable.LRU[int32, string]
	lookup LookupFunc
}

// NewResolver creates a resolver holding at most size names for ttl
// (ttl <= 0 disables expiry). A nil lookup uses PsutilLookup.
func NewResolver(size int, ttl time.Duration, lookup LookupFunc) *Resolver {
	if size <= 0 {
		size = 4096
	}
	if lookup == nil {
		lookup = PsutilLookup
	}
	return &Resolver{
		cache:  expirable.NewLRU[int32, string](size, nil, ttl),
		lookup: lookup,
	}
}

// Resolve returns the cached name for pid, or queries the OS on a miss.
func (r *Resolver) Resolve(ctx context.Context, pid int32) string {
	if pid <= 0 {
		return UnknownProcess
	}
	if name, ok := r.cache.Get(pid); ok {
		return name
	}

	name, err := r.lookup(ctx, pid)
	if err != nil || name == "" {
		return UnknownProcess
	}
	r.cache.Add(pid, name)
	return name
}

// Invalidate drops pid from the cache, e.g. when the caller knows the
// process exited.
func (r *Resolver) Invalidate(pid int32) {
	r.cache.Remove(pid)
}

// Purge empties the cache.
func (r *Resolver) Purge() {
	r.cache.Purge()
}

// Len returns the number of cached names.
func (r *Resolver) Len() int {
	return r.cache.Len()
}

// PsutilLookup resolves a pid with gopsutil. It fails when the process is
// gone or access is denied.
func PsutilLookup(ctx context.Context, pid int32) (string, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", fmt.Errorf("process %d: %w", pid, err)
	}
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("process %d name: %w", pid, err)
	}
	return name, nil
}
