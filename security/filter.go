//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package security vets inbound queries against the caller's role before
// the supervisor dispatches, and bounds every surfaced record by the
// caller's data-sensitivity ceiling.
package security

import (
	"strings"

	"github.com/crewcall-ai/crewcall/identity"
	"github.com/crewcall-ai/crewcall/log"
)

// Denial reasons.
const (
	// ReasonInsufficientPermissions marks a role-based veto.
	ReasonInsufficientPermissions = "insufficient_permissions"
	// ReasonFilterError marks a fail-secure veto after an internal error.
	ReasonFilterError = "security_filter_error"
)

// Decision is the outcome of vetting one query.
type Decision struct {
	// Allowed reports whether the query may be dispatched.
	Allowed bool `json:"allowed"`
	// Query is the (possibly sanitized) query text to dispatch.
	Query string `json:"query,omitempty"`
	// Flagged reports whether sanitization removed sensitive words.
	Flagged bool `json:"flagged"`
	// Reason is the denial reason when Allowed is false.
	Reason string `json:"reason,omitempty"`
}

// defaultSensitiveKeywords is the fixed keyword set scanned on every query.
var defaultSensitiveKeywords = []string{
	"financial", "salary", "budget", "confidential", "internal",
	"strategic", "acquisition", "merger", "lawsuit", "legal", "compliance",
}

// Filter vets queries against the caller's role.
type Filter struct {
	keywords []string
}

// Option configures a Filter.
type Option func(*Filter)

// WithKeywords replaces the sensitive-keyword set.
func WithKeywords(keywords []string) Option {
	return func(f *Filter) {
		f.keywords = keywords
	}
}

// NewFilter creates a filter with the default sensitive-keyword set.
func NewFilter(opts ...Option) *Filter {
	f := &Filter{keywords: defaultSensitiveKeywords}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check vets the query text against the caller's role. Any internal panic
// results in a denial; the filter never fails open.
func (f *Filter) Check(queryText string, caller identity.Caller) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("security filter panicked, denying query: %v", r)
			decision = Decision{Allowed: false, Reason: ReasonFilterError}
		}
	}()

	level := caller.Role.Level()
	lower := strings.ToLower(queryText)
	matched := false
	for _, kw := range f.keywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if matched && level > 2 {
		return Decision{Allowed: false, Reason: ReasonInsufficientPermissions}
	}
	if level > 3 {
		sanitized, removed := f.sanitize(queryText)
		return Decision{Allowed: true, Query: sanitized, Flagged: removed}
	}
	return Decision{Allowed: true, Query: queryText}
}

// sanitize removes sensitive words from the query text and reports whether
// anything was removed.
func (f *Filter) sanitize(queryText string) (string, bool) {
	removed := false
	fields := strings.Fields(queryText)
	kept := fields[:0]
	for _, field := range fields {
		word := strings.ToLower(strings.Trim(field, ".,;:!?\"'()"))
		sensitive := false
		for _, kw := range f.keywords {
			if word == kw {
				sensitive = true
				break
			}
		}
		if sensitive {
			removed = true
			continue
		}
		kept = append(kept, field)
	}
	return strings.Join(kept, " "), removed
}

// FilterRecords drops the records whose sensitivity exceeds the caller's
// ceiling. The level function extracts the sensitivity tag of a record.
func FilterRecords[T any](records []T, level func(T) identity.Sensitivity,
	ceiling identity.Sensitivity) []T {
	out := make([]T, 0, len(records))
	for _, record := range records {
		if level(record).Exceeds(ceiling) {
			continue
		}
		out = append(out, record)
	}
	return out
}
