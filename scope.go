package stepup

import (
	"fmt"
	"strconv"
)

// ResourceType enumerates the kinds of sensitive resources a verification or
// access session can be bound to.
type ResourceType uint8

const (
	// ResourceProfile guards a single patient profile.
	ResourceProfile ResourceType = iota + 1
	// ResourceReport guards a single medical report.
	ResourceReport
	// ResourceAllReports guards the full report listing for a user. It
	// carries no resource id.
	ResourceAllReports
)

// String returns the wire name of the resource type ("profile", "report",
// "all_reports"), or "unknown" for unrecognized values.
func (t ResourceType) String() string {
	switch t {
	case ResourceProfile:
		return "profile"
	case ResourceReport:
		return "report"
	case ResourceAllReports:
		return "all_reports"
	default:
		return "unknown"
	}
}

// ParseResourceType maps a wire name back to a ResourceType.
func ParseResourceType(s string) (ResourceType, error) {
	switch s {
	case "profile":
		return ResourceProfile, nil
	case "report":
		return ResourceReport, nil
	case "all_reports":
		return ResourceAllReports, nil
	default:
		return 0, fmt.Errorf("%w: unknown resource type %q", ErrScopeInvalid, s)
	}
}

// ResourceScope is the (resource type, resource id) pair a challenge or
// access session is bound to. ResourceID is 0 exactly when the type carries
// no id (ResourceAllReports). Scopes compare with ==; equality is exact and
// a session bound to one scope never satisfies a check for another.
type ResourceScope struct {
	Type       ResourceType
	ResourceID int64
}

// ScopeFor builds an id-carrying scope (profile or report).
func ScopeFor(t ResourceType, resourceID int64) ResourceScope {
	return ResourceScope{Type: t, ResourceID: resourceID}
}

// AllReportsScope builds the id-less all_reports scope.
func AllReportsScope() ResourceScope {
	return ResourceScope{Type: ResourceAllReports}
}

// Validate enforces the id-presence rule: profile and report scopes require
// a positive resource id, all_reports must not carry one.
func (s ResourceScope) Validate() error {
	switch s.Type {
	case ResourceProfile, ResourceReport:
		if s.ResourceID <= 0 {
			return fmt.Errorf("%w: %s scope requires a resource id", ErrScopeInvalid, s.Type)
		}
	case ResourceAllReports:
		if s.ResourceID != 0 {
			return fmt.Errorf("%w: all_reports scope must not carry a resource id", ErrScopeInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown resource type", ErrScopeInvalid)
	}
	return nil
}

// Key returns the canonical storage key fragment for the scope, e.g.
// "profile:5" or "all_reports".
func (s ResourceScope) Key() string {
	if s.Type == ResourceAllReports {
		return s.Type.String()
	}
	return s.Type.String() + ":" + strconv.FormatInt(s.ResourceID, 10)
}

func (s ResourceScope) String() string {
	return s.Key()
}
