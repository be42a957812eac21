package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/authz"
	"github.com/miniiam/apiserver/internal/storage"
	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/types"
)

const exportPrefix = "access-reviews"

// ExportResult locates a written access-review export.
type ExportResult struct {
	Bucket    string    `json:"bucket"`
	Key       string    `json:"key"`
	Generated time.Time `json:"generated"`
}

// ReportService builds governance reports.
type ReportService struct {
	store   store.Store
	storage *storage.Storage
	now     func() time.Time
}

// NewReportService constructs a ReportService. objects may be nil, which
// disables Export.
func NewReportService(st store.Store, objects *storage.Storage) *ReportService {
	return &ReportService{store: st, storage: objects, now: time.Now}
}

// AccessReview lists every account with its privileges. Admin only.
func (s *ReportService) AccessReview(ctx context.Context, claim auth.Claim) (types.AccessReview, error) {
	if err := s.authorize(ctx, claim, authz.ActionAccessReview); err != nil {
		return types.AccessReview{}, err
	}

	users, err := s.store.Users().List(ctx)
	if err != nil {
		return types.AccessReview{}, fmt.Errorf("list users: %w", err)
	}
	return buildAccessReview(users, s.now().UTC()), nil
}

// Export writes the access review together with the full audit trail to
// object storage. Admin only.
func (s *ReportService) Export(ctx context.Context, claim auth.Claim) (ExportResult, error) {
	if err := s.authorize(ctx, claim, authz.ActionExportAccessReview); err != nil {
		return ExportResult{}, err
	}
	if s.storage == nil {
		return ExportResult{}, ErrExportUnavailable
	}

	var users []types.User
	var trail []types.AuditLogEntry
	err := s.store.WithTx(ctx, func(repos store.Repositories) error {
		var err error
		if users, err = repos.Users().List(ctx); err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		if trail, err = repos.AuditLog().List(ctx); err != nil {
			return fmt.Errorf("list audit log: %w", err)
		}
		return nil
	})
	if err != nil {
		return ExportResult{}, err
	}

	generated := s.now().UTC()
	key := fmt.Sprintf("%s/%s-%s.json", exportPrefix, generated.Format("20060102T150405Z"), uuid.NewString())
	export := types.AccessReviewExport{
		Review:   buildAccessReview(users, generated),
		AuditLog: trail,
	}
	if err := s.storage.PutJSON(ctx, key, export); err != nil {
		return ExportResult{}, fmt.Errorf("write export: %w", err)
	}

	slog.Info("exported access review", "actor", claim.String(), "bucket", s.storage.Bucket(), "key", key)
	return ExportResult{Bucket: s.storage.Bucket(), Key: key, Generated: generated}, nil
}

func (s *ReportService) authorize(ctx context.Context, claim auth.Claim, action authz.Action) error {
	actor, err := liveClaim(ctx, s.store.Users(), claim)
	if err != nil {
		return err
	}
	if err := authz.Authorize(actor, action, nil); err != nil {
		return forbidden(err)
	}
	return nil
}

func buildAccessReview(users []types.User, generated time.Time) types.AccessReview {
	review := types.AccessReview{
		Generated: generated,
		Users:     make([]types.AccessReviewEntry, 0, len(users)),
	}
	for _, user := range users {
		privileged := user.Role.Privileged()
		review.Users = append(review.Users, types.AccessReviewEntry{
			Username:   user.Username,
			Role:       user.Role,
			Department: user.Department,
			Active:     user.Active,
			LastLogin:  user.LastLogin,
			Privileged: privileged,
		})
		review.Summary.Total++
		if user.Active {
			review.Summary.Active++
		}
		if privileged {
			review.Summary.Privileged++
		}
	}
	return review
}
