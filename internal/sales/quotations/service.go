package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/cascade/internal/observability"
	salesshared "github.com/odyssey-erp/cascade/internal/sales/shared"
	"github.com/odyssey-erp/cascade/internal/shared"
)

// DefaultValidityDays applies to duplicates of quotations that carried a validity date.
const DefaultValidityDays = 30

type Service struct {
	repo    Repository
	seq     salesshared.Sequencer
	tx      shared.TxRunner
	audit   shared.AuditPort
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, seq salesshared.Sequencer, tx shared.TxRunner, audit shared.AuditPort, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if tx == nil {
		tx = shared.DirectRunner{}
	}
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, seq: seq, tx: tx, audit: audit, metrics: metrics, logger: logger, now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Quotation, error) {
	now := s.now()
	q := Quotation{
		CustomerID:   req.CustomerID,
		CustomerCode: req.CustomerCode,
		Country:      req.Country,
		Revision:     "R0",
		Status:       StatusDraft,
		ValidUntil:   req.ValidUntil,
		Notes:        req.Notes,
		ShippingFee:  req.ShippingFee,
		BankCharge:   req.BankCharge,
		Discount:     req.Discount,
		Others:       req.Others,
		CreatedBy:    shared.ActorID(ctx),
		Lines:        linesFromRequest(req.Lines),
	}
	q.Recalculate()
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		number, err := s.seq.Next(ctx, salesshared.SeriesSales, now)
		if err != nil {
			return err
		}
		q.Number = number
		if err := s.repo.Create(ctx, &q); err != nil {
			return fmt.Errorf("create quotation: %w", err)
		}
		return s.record(ctx, "quotation.create", q, nil)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.logger.Info("quotation created", slog.Int64("id", q.ID), slog.String("number", q.Number))
	return q, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Quotation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Quotation, int, error) {
	return s.repo.List(ctx, filter)
}

// Update revises a quotation. Only draft or pending quotations created on the
// current calendar day may be revised; each revision bumps the R number.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (Quotation, error) {
	var q Quotation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		q, err = s.load(ctx, id, req.Version)
		if err != nil {
			return err
		}
		if err := s.checkRevisable(q); err != nil {
			return err
		}
		if req.Country != nil {
			q.Country = *req.Country
		}
		if req.ValidUntil != nil {
			q.ValidUntil = req.ValidUntil
		}
		if req.Notes != nil {
			q.Notes = *req.Notes
		}
		if req.ShippingFee != nil {
			q.ShippingFee = *req.ShippingFee
		}
		if req.BankCharge != nil {
			q.BankCharge = *req.BankCharge
		}
		if req.Discount != nil {
			q.Discount = *req.Discount
		}
		if req.Others != nil {
			q.Others = *req.Others
		}
		if req.Lines != nil {
			q.Lines = linesFromRequest(*req.Lines)
		}
		q.Recalculate()
		q.Revision = salesshared.NextRevision(q.Revision)
		if err := s.repo.Update(ctx, &q); err != nil {
			return err
		}
		if req.Lines != nil {
			lines, err := s.repo.ReplaceLines(ctx, q.ID, q.Lines)
			if err != nil {
				return err
			}
			q.Lines = lines
		}
		return s.record(ctx, "quotation.revise", q, map[string]any{"revision": q.Revision})
	})
	if err != nil {
		return Quotation{}, err
	}
	return q, nil
}

// Editable reports whether the quotation may still be revised.
func (s *Service) Editable(q Quotation) bool {
	return s.checkRevisable(q) == nil
}

func (s *Service) checkRevisable(q Quotation) error {
	if q.Status != StatusDraft && q.Status != StatusPending {
		return fmt.Errorf("%w: status %s", ErrRevisionLocked, q.Status)
	}
	now := s.now()
	created := q.CreatedAt.In(now.Location())
	if created.Year() != now.Year() || created.YearDay() != now.YearDay() {
		return fmt.Errorf("%w: created on %s", ErrRevisionLocked, created.Format("2006-01-02"))
	}
	return nil
}

// Submit moves a draft quotation to pending.
func (s *Service) Submit(ctx context.Context, id int64, req TransitionRequest) (Quotation, error) {
	return s.transition(ctx, id, req.Version, "quotation.submit", func(q *Quotation) error {
		if q.Status != StatusDraft {
			return fmt.Errorf("%w: cannot submit from %s", ErrInvalidStatus, q.Status)
		}
		q.Status = StatusPending
		return nil
	})
}

// Approve moves a pending quotation to approved.
func (s *Service) Approve(ctx context.Context, id int64, req TransitionRequest) (Quotation, error) {
	return s.transition(ctx, id, req.Version, "quotation.approve", func(q *Quotation) error {
		if q.Status != StatusPending {
			return fmt.Errorf("%w: cannot approve from %s", ErrInvalidStatus, q.Status)
		}
		if q.ExpiredAt(s.now()) {
			return ErrExpired
		}
		now := s.now()
		actor := shared.ActorID(ctx)
		q.Status = StatusApproved
		q.ApprovedAt = &now
		q.ApprovedBy = &actor
		return nil
	})
}

// Reject moves a pending quotation to rejected.
func (s *Service) Reject(ctx context.Context, id int64, req TransitionRequest) (Quotation, error) {
	return s.transition(ctx, id, req.Version, "quotation.reject", func(q *Quotation) error {
		if q.Status != StatusPending {
			return fmt.Errorf("%w: cannot reject from %s", ErrInvalidStatus, q.Status)
		}
		now := s.now()
		actor := shared.ActorID(ctx)
		q.Status = StatusRejected
		q.RejectedAt = &now
		q.RejectedBy = &actor
		q.RejectionReason = req.Reason
		return nil
	})
}

// MarkConverted closes an approved, still valid quotation after a sales order
// was created from it. It joins the caller's transaction.
func (s *Service) MarkConverted(ctx context.Context, id int64) (Quotation, error) {
	return s.transition(ctx, id, nil, "quotation.convert", func(q *Quotation) error {
		if q.Status != StatusApproved {
			return fmt.Errorf("%w: only approved quotations can be converted, got %s", ErrInvalidStatus, q.Status)
		}
		if q.ExpiredAt(s.now()) {
			return ErrExpired
		}
		q.Status = StatusConverted
		return nil
	})
}

// ExpireDue expires pending and approved quotations past their validity date.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	ids, err := s.repo.DueForExpiry(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list due quotations: %w", err)
	}
	expired := 0
	for _, id := range ids {
		_, err := s.transition(ctx, id, nil, "quotation.expire", func(q *Quotation) error {
			if q.Status != StatusPending && q.Status != StatusApproved {
				return fmt.Errorf("%w: cannot expire from %s", ErrInvalidStatus, q.Status)
			}
			q.Status = StatusExpired
			return nil
		})
		if err != nil {
			s.logger.Warn("expire quotation", slog.Int64("id", id), slog.Any("error", err))
			continue
		}
		expired++
	}
	return expired, nil
}

// Duplicate copies a quotation under a new number at revision R1, pending.
func (s *Service) Duplicate(ctx context.Context, id int64) (Quotation, error) {
	var dup Quotation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		src, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		now := s.now()
		number, err := s.seq.Next(ctx, salesshared.SeriesSales, now)
		if err != nil {
			return err
		}
		dup = src
		dup.ID = 0
		dup.Number = number
		dup.Revision = "R1"
		dup.Status = StatusPending
		dup.CreatedBy = shared.ActorID(ctx)
		dup.ApprovedBy, dup.ApprovedAt = nil, nil
		dup.RejectedBy, dup.RejectedAt, dup.RejectionReason = nil, nil, ""
		if src.ValidUntil != nil {
			until := now.AddDate(0, 0, DefaultValidityDays)
			dup.ValidUntil = &until
		}
		dup.Lines = make([]Line, len(src.Lines))
		for i, l := range src.Lines {
			l.ID, l.QuotationID = 0, 0
			dup.Lines[i] = l
		}
		dup.Recalculate()
		if err := s.repo.Create(ctx, &dup); err != nil {
			return fmt.Errorf("duplicate quotation: %w", err)
		}
		return s.record(ctx, "quotation.duplicate", dup, map[string]any{"source_id": src.ID})
	})
	if err != nil {
		return Quotation{}, err
	}
	return dup, nil
}

func (s *Service) transition(ctx context.Context, id int64, version *int64, action string, apply func(*Quotation) error) (Quotation, error) {
	var q Quotation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		q, err = s.load(ctx, id, version)
		if err != nil {
			return err
		}
		if err := apply(&q); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, &q); err != nil {
			return err
		}
		return s.record(ctx, action, q, nil)
	})
	if err != nil {
		return Quotation{}, err
	}
	s.metrics.Transition("quotation", string(q.Status))
	return q, nil
}

func (s *Service) load(ctx context.Context, id int64, version *int64) (Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return Quotation{}, err
	}
	if version != nil && *version != q.Version {
		return Quotation{}, fmt.Errorf("%w: expected version %d, found %d", ErrVersionConflict, *version, q.Version)
	}
	return q, nil
}

func (s *Service) record(ctx context.Context, action string, q Quotation, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = q.Number
	meta["status"] = string(q.Status)
	return s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "quotation",
		EntityID: strconv.FormatInt(q.ID, 10),
		Meta:     meta,
	})
}
