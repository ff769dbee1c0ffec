//
// Copyright (C) 2026 Crewcall Authors.  All rights reserved.
//
// crewcall is licensed under the Apache License Version 2.0.
//
//

// Package identity defines the caller identity contract produced by the
// external authenticator and consumed by the orchestration engine.
package identity

// Role is the organizational role of a caller.
// Roles are ordered: a smaller level means more privileged.
type Role string

// Role constants, ordered from most to least privileged.
const (
	RoleLeadership       Role = "leadership"
	RoleDirector         Role = "director"
	RoleCreativeDirector Role = "creative_director"
	RoleSalesperson      Role = "salesperson"
)

// Level returns the privilege level of the role. Lower is more privileged.
// Unknown roles map to the least privileged level.
func (r Role) Level() int {
	switch r {
	case RoleLeadership:
		return 1
	case RoleDirector:
		return 2
	case RoleCreativeDirector:
		return 3
	case RoleSalesperson:
		return 4
	default:
		return 4
	}
}

// IsValid checks if the role is one of the defined constants.
func (r Role) IsValid() bool {
	switch r {
	case RoleLeadership, RoleDirector, RoleCreativeDirector, RoleSalesperson:
		return true
	default:
		return false
	}
}

// Sensitivity is one of six ordered data-sensitivity levels applied to any
// record surfaced to a caller.
type Sensitivity int

// Sensitivity levels, ordered from least to most sensitive.
const (
	SensitivityPublic Sensitivity = iota
	SensitivityInternal
	SensitivityConfidential
	SensitivityRestricted
	SensitivitySecret
	SensitivityTopSecret
)

// String returns the string representation of the sensitivity level.
func (s Sensitivity) String() string {
	switch s {
	case SensitivityPublic:
		return "public"
	case SensitivityInternal:
		return "internal"
	case SensitivityConfidential:
		return "confidential"
	case SensitivityRestricted:
		return "restricted"
	case SensitivitySecret:
		return "secret"
	case SensitivityTopSecret:
		return "top_secret"
	default:
		return "unknown"
	}
}

// Exceeds reports whether the level is above the given ceiling.
func (s Sensitivity) Exceeds(ceiling Sensitivity) bool {
	return s > ceiling
}

// Caller is the immutable per-request identity of the user issuing a query.
type Caller struct {
	// UserID is the stable user identifier.
	UserID string `json:"user_id"`
	// Role is the caller's organizational role.
	Role Role `json:"role"`
	// MaxSensitivity is the upper bound on the sensitivity of any record
	// surfaced back to this caller.
	MaxSensitivity Sensitivity `json:"max_sensitivity"`
	// Permissions is the set of permission actions granted to the caller.
	Permissions []string `json:"permissions,omitempty"`
}

// HasPermission reports whether the caller holds the given permission action.
func (c *Caller) HasPermission(action string) bool {
	for _, p := range c.Permissions {
		if p == action {
			return true
		}
	}
	return false
}

// SelectionMode is the explicit agent-selection mode carried on a query.
type SelectionMode string

// Selection modes.
const (
	SelectionAuto   SelectionMode = "auto"
	SelectionSingle SelectionMode = "single"
	SelectionMulti  SelectionMode = "multi"
)

// Query is the unit of work accepted by the supervisor.
type Query struct {
	// Caller is the authenticated identity issuing the query.
	Caller Caller `json:"caller"`
	// Text is the natural-language query text.
	Text string `json:"text"`
	// PreferredAgent is an optional agent hint ("sales", "talent", "analytics").
	PreferredAgent string `json:"preferred_agent,omitempty"`
	// ConversationID is the optional conversation to continue.
	ConversationID string `json:"conversation_id,omitempty"`
	// Mode is the optional explicit agent-selection mode.
	Mode SelectionMode `json:"mode,omitempty"`
	// Metadata carries opaque caller-supplied context.
	Metadata map[string]any `json:"metadata,omitempty"`
}
