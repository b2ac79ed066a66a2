package api

import (
	"github.com/xraph/bastion/customrole"
	"github.com/xraph/bastion/resolver"
)

// CheckResponse is the response for an authorization check.
type CheckResponse struct {
	Allowed    bool        `json:"allowed" description:"Whether the request is allowed"`
	Decision   string      `json:"decision" description:"Decision code"`
	Reason     string      `json:"reason,omitempty" description:"Human-readable reason"`
	MatchedBy  []MatchInfo `json:"matched_by,omitempty" description:"Granting sources"`
	EvalTimeNs int64       `json:"eval_time_ns" description:"Evaluation time in nanoseconds"`
}

// MatchInfo identifies a granting source.
type MatchInfo struct {
	Source string `json:"source" description:"Source (role, credential)"`
	Detail string `json:"detail,omitempty" description:"Match detail"`
}

// BatchCheckResponse contains results for multiple checks.
type BatchCheckResponse struct {
	Results []CheckResponse `json:"results" description:"Check results in order"`
}

// PermissionsResponse lists effective or enumerated permissions.
type PermissionsResponse struct {
	Role        string   `json:"role,omitempty" description:"Role the permissions resolve from"`
	Permissions []string `json:"permissions" description:"Permissions, sorted"`
}

// BaseRoleResponse describes a compiled-in role.
type BaseRoleResponse struct {
	Name        string   `json:"name" description:"Base role name"`
	Permissions []string `json:"permissions" description:"Static permissions"`
}

// RolePermissionsResponse is a role's resolved set plus its chain.
type RolePermissionsResponse struct {
	Role        string         `json:"role" description:"Role name"`
	Permissions []string       `json:"permissions" description:"Resolved permissions"`
	Chain       resolver.Chain `json:"chain" description:"Inheritance chain"`
}

// ImportRolesResponse reports a bulk import.
type ImportRolesResponse struct {
	Results []customrole.ImportResult `json:"results" description:"Per-role outcomes"`
}
