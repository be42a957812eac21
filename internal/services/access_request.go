package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/authz"
	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/internal/telemetry"
	"github.com/miniiam/apiserver/types"
)

// AccessRequestService drives the access request lifecycle:
// Pending, then exactly one transition to Approved or Rejected.
type AccessRequestService struct {
	store  store.Store
	ledger *audit.Ledger
	now    func() time.Time
}

func NewAccessRequestService(st store.Store, ledger *audit.Ledger) *AccessRequestService {
	return &AccessRequestService{store: st, ledger: ledger, now: time.Now}
}

// Submit files a Pending request on behalf of claim's user.
func (s *AccessRequestService) Submit(ctx context.Context, claim auth.Claim, resource, reason, origin string) (types.AccessRequest, error) {
	if err := authz.Authorize(claim, authz.ActionSubmitRequest, nil); err != nil {
		return types.AccessRequest{}, forbidden(err)
	}

	var created types.AccessRequest
	_, err := s.ledger.Within(ctx, s.store, func(repos store.Repositories) (audit.Entry, error) {
		var err error
		created, err = repos.AccessRequests().Create(ctx, types.AccessRequest{
			UserID:    claim.UserID,
			Resource:  resource,
			Reason:    reason,
			Status:    types.StatusPending,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return audit.Entry{}, ErrUserNotFound
			}
			return audit.Entry{}, fmt.Errorf("create access request: %w", err)
		}

		return audit.Entry{
			ActorID: claim.UserID,
			Action:  audit.ActionRequestAccess,
			Details: fmt.Sprintf("Requested %s - %s", resource, reason),
			Origin:  origin,
		}, nil
	})
	if err != nil {
		return types.AccessRequest{}, ledgerError(err)
	}
	return created, nil
}

// Resolve moves a Pending request to decision. The approver must be an Admin
// or a Manager in the requester's department. Of any number of concurrent
// calls for the same request, exactly one succeeds and the rest fail with
// ErrAlreadyProcessed.
//
// The approver recorded is claim's subject. It is not re-checked for being
// active.
func (s *AccessRequestService) Resolve(ctx context.Context, claim auth.Claim, requestID int, decision types.RequestStatus, origin string) (types.AccessRequest, error) {
	var action, verb string
	switch decision {
	case types.StatusApproved:
		action, verb = audit.ActionApprove, "Approved"
	case types.StatusRejected:
		action, verb = audit.ActionReject, "Rejected"
	default:
		return types.AccessRequest{}, ErrInvalidDecision
	}

	var resolved types.AccessRequest
	_, err := s.ledger.Within(ctx, s.store, func(repos store.Repositories) (audit.Entry, error) {
		req, err := repos.AccessRequests().Get(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return audit.Entry{}, ErrRequestNotFound
			}
			return audit.Entry{}, fmt.Errorf("load access request %d: %w", requestID, err)
		}
		if req.Status != types.StatusPending {
			return audit.Entry{}, ErrAlreadyProcessed
		}

		requester, err := repos.Users().GetByID(ctx, req.UserID)
		if err != nil {
			return audit.Entry{}, fmt.Errorf("load requester %d: %w", req.UserID, err)
		}
		approver, err := liveClaim(ctx, repos.Users(), claim)
		if err != nil {
			return audit.Entry{}, err
		}
		if err := authz.Authorize(approver, authz.ActionResolveRequest, &requester); err != nil {
			return audit.Entry{}, forbidden(err)
		}

		resolved, err = repos.AccessRequests().Resolve(ctx, requestID, decision, claim.Subject)
		if err != nil {
			switch {
			case errors.Is(err, store.ErrConflict):
				return audit.Entry{}, ErrAlreadyProcessed
			case errors.Is(err, store.ErrNotFound):
				return audit.Entry{}, ErrRequestNotFound
			default:
				return audit.Entry{}, fmt.Errorf("resolve access request %d: %w", requestID, err)
			}
		}

		return audit.Entry{
			ActorID: claim.UserID,
			Action:  action,
			Details: fmt.Sprintf("%s request %d for %s", verb, resolved.ID, resolved.Resource),
			Origin:  origin,
		}, nil
	})
	if err != nil {
		return types.AccessRequest{}, ledgerError(err)
	}

	telemetry.AccessRequestsResolvedTotal.WithLabelValues(string(decision)).Inc()
	slog.Info("access request resolved",
		"request_id", resolved.ID,
		"decision", resolved.Status,
		"approver", claim.String(),
	)
	return resolved, nil
}

// Get returns a request to its requester, or to anyone who could resolve it.
func (s *AccessRequestService) Get(ctx context.Context, claim auth.Claim, requestID int) (types.AccessRequest, error) {
	req, err := s.store.AccessRequests().Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.AccessRequest{}, ErrRequestNotFound
		}
		return types.AccessRequest{}, fmt.Errorf("load access request %d: %w", requestID, err)
	}
	if req.UserID == claim.UserID {
		return req, nil
	}

	requester, err := s.store.Users().GetByID(ctx, req.UserID)
	if err != nil {
		return types.AccessRequest{}, fmt.Errorf("load requester %d: %w", req.UserID, err)
	}
	viewer, err := liveClaim(ctx, s.store.Users(), claim)
	if err != nil {
		return types.AccessRequest{}, err
	}
	if err := authz.Authorize(viewer, authz.ActionViewRequest, &requester); err != nil {
		return types.AccessRequest{}, forbidden(err)
	}
	return req, nil
}

// ListMine returns the requests filed by claim's user, oldest first.
func (s *AccessRequestService) ListMine(ctx context.Context, claim auth.Claim) ([]types.AccessRequest, error) {
	requests, err := s.store.AccessRequests().ListByUser(ctx, claim.UserID)
	if err != nil {
		return nil, fmt.Errorf("list access requests: %w", err)
	}
	return requests, nil
}
