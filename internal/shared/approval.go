package shared

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks order creation.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
	// ApprovalCancel marks a cancellation.
	ApprovalCancel ApprovalAction = "CANCEL"
	// ApprovalShip marks a shipment of an outbound order.
	ApprovalShip ApprovalAction = "SHIP"
)

// ApprovalLog is a single decision taken on an order.
type ApprovalLog struct {
	ID     int64          `json:"id" db:"id"`
	Module string         `json:"module" db:"module"`
	RefID  uuid.UUID      `json:"ref_id" db:"ref_id"`
	Actor  string         `json:"actor" db:"actor"`
	Action ApprovalAction `json:"action" db:"action"`
	Note   string         `json:"note,omitempty" db:"note"`
	At     time.Time      `json:"at" db:"at"`
}

func (l ApprovalLog) validate() error {
	switch {
	case strings.TrimSpace(l.Module) == "":
		return errors.New("approval module required")
	case strings.TrimSpace(l.Actor) == "":
		return errors.New("approval actor required")
	case l.RefID == uuid.Nil:
		return errors.New("approval ref id required")
	case l.Action == "":
		return errors.New("approval action required")
	}
	return nil
}

// ApprovalRefID derives a stable reference for the approval trail of a
// document identified by module and number.
func ApprovalRefID(module, number string) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(module+":"+number))
}

type querier interface {
	execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ApprovalRecorder persists the approval trail of orders.
type ApprovalRecorder struct {
	db     querier
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &ApprovalRecorder{logger: logger}
	if pool != nil {
		r.db = pool
	}
	return r
}

// Record appends one decision. A zero At defaults to the database clock.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil || r.db == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.validate(); err != nil {
		return err
	}
	var at *time.Time
	if !log.At.IsZero() {
		at = &log.At
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()))`, log.Module, log.RefID, log.Actor, string(log.Action), log.Note, at)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err), slog.String("module", log.Module), slog.String("action", string(log.Action)))
		return err
	}
	return nil
}

// List returns the trail for module/ref, oldest first.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.db.Query(ctx, `SELECT id, module, ref_id, actor, action, note, at
FROM approvals WHERE module = $1 AND ref_id = $2 ORDER BY at ASC, id ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[ApprovalLog])
}

// EnsureSubmit records the submit entry once per document.
func (r *ApprovalRecorder) EnsureSubmit(ctx context.Context, module string, ref uuid.UUID, actor, note string) error {
	if r == nil || r.db == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := (ApprovalLog{Module: module, RefID: ref, Actor: actor, Action: ApprovalSubmit}).validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor, action, note)
SELECT $1, $2, $3, 'SUBMIT', $4
WHERE NOT EXISTS (SELECT 1 FROM approvals WHERE module = $1 AND ref_id = $2 AND action = 'SUBMIT')`, module, ref, actor, note)
	return err
}
