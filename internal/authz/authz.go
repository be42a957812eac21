// Package authz is the single decision point for every privileged operation.
//
// Each action maps to a declarative rule: the roles allowed to perform it and,
// for the approval workflow only, the roles whose permission is scoped to the
// target's department.
package authz

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/telemetry"
	"github.com/miniiam/apiserver/types"
)

// ErrForbidden is matched by every ForbiddenError.
var ErrForbidden = errors.New("forbidden")

// ForbiddenError reports the requirement the caller did not meet.
type ForbiddenError struct {
	Requirement string
}

func (e *ForbiddenError) Error() string {
	return "insufficient permissions: " + e.Requirement
}

func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// Action names a privileged operation.
type Action string

const (
	ActionDeprovision        Action = "deprovision"
	ActionAccessReview       Action = "access_review"
	ActionExportAccessReview Action = "export_access_review"
	ActionSubmitRequest      Action = "submit_access_request"
	ActionResolveRequest     Action = "resolve_access_request"
	ActionViewRequest        Action = "view_access_request"
)

type rule struct {
	// roles allowed to perform the action; nil admits any authenticated identity.
	roles []types.Role
	// departmentScoped lists roles among roles that may only act on a target
	// in their own department.
	departmentScoped []types.Role
}

var policy = map[Action]rule{
	ActionDeprovision:        {roles: []types.Role{types.RoleAdmin}},
	ActionAccessReview:       {roles: []types.Role{types.RoleAdmin}},
	ActionExportAccessReview: {roles: []types.Role{types.RoleAdmin}},
	ActionSubmitRequest:      {},
	ActionResolveRequest: {
		roles:            []types.Role{types.RoleAdmin, types.RoleManager},
		departmentScoped: []types.Role{types.RoleManager},
	},
	ActionViewRequest: {
		roles:            []types.Role{types.RoleAdmin, types.RoleManager},
		departmentScoped: []types.Role{types.RoleManager},
	},
}

// RequireRole returns claim when its role is exactly required.
func RequireRole(claim auth.Claim, required types.Role) (auth.Claim, error) {
	if claim.Role != required {
		return auth.Claim{}, &ForbiddenError{Requirement: fmt.Sprintf("requires role '%s'", required)}
	}
	return claim, nil
}

// Authorize decides whether claim may perform action on target.
// target is the user the action concerns (for the approval workflow, the
// requester) and is only consulted for department-scoped rules.
func Authorize(claim auth.Claim, action Action, target *types.User) error {
	err := evaluate(claim, action, target)
	if err != nil {
		telemetry.AuthorizationDenialsTotal.WithLabelValues(string(action)).Inc()
	}
	return err
}

func evaluate(claim auth.Claim, action Action, target *types.User) error {
	r, ok := policy[action]
	if !ok {
		return &ForbiddenError{Requirement: fmt.Sprintf("unknown action '%s'", action)}
	}
	if r.roles == nil {
		return nil
	}
	if len(r.roles) == 1 {
		_, err := RequireRole(claim, r.roles[0])
		return err
	}
	if !slices.Contains(r.roles, claim.Role) {
		return &ForbiddenError{Requirement: "requires one of roles " + joinRoles(r.roles)}
	}
	if !slices.Contains(r.departmentScoped, claim.Role) {
		return nil
	}
	if target == nil || !sameDepartment(claim.Department, target.Department) {
		return &ForbiddenError{Requirement: fmt.Sprintf("role '%s' may only act within its own department", claim.Role)}
	}
	return nil
}

// sameDepartment treats an unset department as matching nothing, so a Manager
// without a department cannot act on anyone.
func sameDepartment(a, b *string) bool {
	if a == nil || b == nil || *a == "" || *b == "" {
		return false
	}
	return *a == *b
}

func joinRoles(roles []types.Role) string {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, "'"+string(role)+"'")
	}
	return strings.Join(names, ", ")
}
