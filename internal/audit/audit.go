// Package audit records privileged actions.
//
// An entry is appended in the same transaction as the mutation it describes,
// so the mutation and its record commit or roll back together. Once the
// transaction commits, the entry is also announced on the message queue for
// downstream consumers; the database row remains the record of truth.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/internal/telemetry"
	"github.com/miniiam/apiserver/types"
)

// Action tags.
const (
	ActionDeprovision   = "DEPROVISION"
	ActionRequestAccess = "REQUEST_ACCESS"
	ActionApprove       = "APPROVE_REQUEST"
	ActionReject        = "REJECT_REQUEST"
)

// ErrWriteFailed is returned when the entry could not be appended. The
// surrounding mutation has been rolled back.
var ErrWriteFailed = errors.New("audit write failed")

const publishTimeout = 5 * time.Second

// Entry describes the action a mutation performed.
type Entry struct {
	ActorID int
	Action  string
	Details string
	// Origin is the caller's network address, if known.
	Origin string
}

// Publisher fans committed entries out to subscribers. *mq.MQ satisfies it.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Event is the message body published for each committed entry.
type Event struct {
	EventID string              `json:"event_id"`
	Entry   types.AuditLogEntry `json:"entry"`
}

// Ledger appends audit entries within units of work.
type Ledger struct {
	publisher Publisher
	channel   string
	now       func() time.Time
}

// NewLedger constructs a Ledger. publisher may be nil, in which case entries
// are only written to the store.
func NewLedger(publisher Publisher, channel string) *Ledger {
	return &Ledger{
		publisher: publisher,
		channel:   channel,
		now:       time.Now,
	}
}

// Within runs mutate and appends the entry it returns in one transaction.
// If mutate fails nothing is written. If the append fails the mutation is
// rolled back and the returned error matches ErrWriteFailed.
func (l *Ledger) Within(ctx context.Context, st store.Store, mutate func(repos store.Repositories) (Entry, error)) (types.AuditLogEntry, error) {
	var written types.AuditLogEntry
	err := st.WithTx(ctx, func(repos store.Repositories) error {
		entry, err := mutate(repos)
		if err != nil {
			return err
		}
		written, err = l.Append(ctx, repos.AuditLog(), entry)
		return err
	})
	if err != nil {
		return types.AuditLogEntry{}, err
	}

	l.announce(ctx, written)
	return written, nil
}

// Append writes entry through repo. Callers must run it inside the
// transaction of the mutation it records.
func (l *Ledger) Append(ctx context.Context, repo store.AuditRepository, entry Entry) (types.AuditLogEntry, error) {
	record := types.AuditLogEntry{
		UserID:    entry.ActorID,
		Action:    entry.Action,
		Timestamp: l.now().UTC(),
	}
	if entry.Details != "" {
		details := entry.Details
		record.Details = &details
	}
	if entry.Origin != "" {
		origin := entry.Origin
		record.IPAddress = &origin
	}

	written, err := repo.Append(ctx, record)
	if err != nil {
		return types.AuditLogEntry{}, fmt.Errorf("%w: %s: %v", ErrWriteFailed, entry.Action, err)
	}
	return written, nil
}

func (l *Ledger) announce(ctx context.Context, entry types.AuditLogEntry) {
	telemetry.AuditEntriesTotal.WithLabelValues(entry.Action).Inc()
	if l.publisher == nil {
		return
	}

	event := Event{EventID: uuid.NewString(), Entry: entry}
	data, err := json.Marshal(event)
	if err != nil {
		l.publishFailed(entry, err)
		return
	}

	// The mutation is committed; publishing outlives a cancelled request.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	attrs := map[string]string{
		"action":   entry.Action,
		"event_id": event.EventID,
		"user_id":  strconv.Itoa(entry.UserID),
	}
	if _, err := l.publisher.Publish(pubCtx, l.channel, data, attrs); err != nil {
		l.publishFailed(entry, err)
	}
}

func (l *Ledger) publishFailed(entry types.AuditLogEntry, err error) {
	telemetry.AuditPublishFailuresTotal.Inc()
	slog.Warn("failed to publish audit event",
		"audit_id", entry.ID,
		"action", entry.Action,
		"channel", l.channel,
		"error", err,
	)
}
