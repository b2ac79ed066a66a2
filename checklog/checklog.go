// Package checklog records authorization decisions. A Recorder is a
// plugin.AfterCheck that turns every engine check into an Entry and hands
// it to a Store.
package checklog

import (
	"context"
	"time"

	"github.com/xraph/bastion/id"
)

// Entry is a single authorization decision.
type Entry struct {
	ID            id.CheckID `json:"id"`
	PrincipalKind string     `json:"principal_kind"`
	PrincipalID   string     `json:"principal_id"`
	OwnerID       string     `json:"owner_id,omitempty"`
	Role          string     `json:"role,omitempty"`
	Permission    string     `json:"permission"`
	Scope         string     `json:"scope,omitempty"`
	Allowed       bool       `json:"allowed"`
	Decision      string     `json:"decision"`
	Reason        string     `json:"reason,omitempty"`
	EvalTimeNs    int64      `json:"eval_time_ns"`
	CreatedAt     time.Time  `json:"created_at"`
}

// QueryFilter selects entries. Zero fields match everything.
type QueryFilter struct {
	PrincipalID string     `json:"principal_id,omitempty"`
	Decision    string     `json:"decision,omitempty"`
	After       *time.Time `json:"after,omitempty"`
	Limit       int        `json:"limit,omitempty"`
}

// Store defines persistence operations for decision entries.
type Store interface {
	// AppendCheckLog persists a new entry.
	AppendCheckLog(ctx context.Context, e *Entry) error

	// ListCheckLogs returns matching entries, newest first.
	ListCheckLogs(ctx context.Context, filter *QueryFilter) ([]*Entry, error)

	// PurgeCheckLogs removes entries created before the given time.
	PurgeCheckLogs(ctx context.Context, before time.Time) (int64, error)
}

func (f *QueryFilter) matches(e *Entry) bool {
	if f == nil {
		return true
	}
	if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.After != nil && !e.CreatedAt.After(*f.After) {
		return false
	}
	return true
}
