package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
	"github.com/odyssey-erp/ledgersync/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgersync/internal/accounting/periods"
	"github.com/odyssey-erp/ledgersync/internal/inventory"
	"github.com/odyssey-erp/ledgersync/internal/masterdata/products"
	"github.com/odyssey-erp/ledgersync/internal/notify"
	"github.com/odyssey-erp/ledgersync/internal/settings"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// Service keeps headers, detail lines, stock movements and postings in step.
type Service struct {
	store    Store
	settings settings.Provider
	notifier Notifier
	audit    AuditPort
	locker   Locker
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the orchestrator. notifier, audit and locker are optional.
func NewService(store Store, provider settings.Provider, notifier Notifier, audit AuditPort, locker Locker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		settings: provider,
		notifier: notifier,
		audit:    audit,
		locker:   locker,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock (testing only).
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// plan is one pass through the shared reconcile path.
type plan struct {
	mode     Mode
	profile  shared.KindProfile
	header   Header
	existing Header
	lines    []DetailLine
	overview journals.Overview
	actorID  int64
	platform string
}

// Save creates the transaction when the header has no id and updates it otherwise.
func (s *Service) Save(ctx context.Context, input SaveInput) (Result, error) {
	if input.Header.ID == 0 {
		return s.Create(ctx, input)
	}
	return s.Update(ctx, input)
}

// Create persists a new transaction with its stock movements and posting.
func (s *Service) Create(ctx context.Context, input SaveInput) (Result, error) {
	if input.Header.ID != 0 {
		return Result{}, fmt.Errorf("%w: create with existing id %d", ErrValidation, input.Header.ID)
	}
	p, err := s.prepare(ModeCreate, input)
	if err != nil {
		return Result{}, err
	}
	var result Result
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		result, err = s.reconcile(ctx, tx, p)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.finish(ctx, ModeCreate, result, p.actorID)
	return result, nil
}

// Update replaces the content of an active transaction.
func (s *Service) Update(ctx context.Context, input SaveInput) (Result, error) {
	if input.Header.ID == 0 {
		return Result{}, fmt.Errorf("%w: update without id", ErrValidation)
	}
	p, err := s.prepare(ModeUpdate, input)
	if err != nil {
		return Result{}, err
	}
	unlock, err := s.lock(ctx, p.header.Kind, p.header.ID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var result Result
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.Headers().GetForUpdate(ctx, p.header.Kind, p.header.ID)
		if err != nil {
			return err
		}
		p.existing = existing
		result, err = s.reconcile(ctx, tx, p)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.finish(ctx, ModeUpdate, result, p.actorID)
	return result, nil
}

// Recover restores a soft-deleted transaction by replaying its detail lines
// through the same path as Create and Update.
func (s *Service) Recover(ctx context.Context, input RecoverInput) (Result, error) {
	profile, err := input.Kind.Profile()
	if err != nil {
		return Result{}, err
	}
	unlock, err := s.lock(ctx, input.Kind, input.ID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var result Result
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.Headers().GetForUpdate(ctx, input.Kind, input.ID)
		if err != nil {
			return err
		}
		stored, err := tx.Lines().ListActive(ctx, existing.ID)
		if err != nil {
			return fmt.Errorf("reconcile: load lines: %w", err)
		}
		cart := make([]DetailLine, 0, len(stored))
		for _, line := range stored {
			cart = append(cart, rebuildLine(line))
		}
		lines, overview, err := Summarise(cart)
		if err != nil {
			return err
		}
		header := existing
		header.Platform = defaultString(input.Platform, existing.Platform)
		result, err = s.reconcile(ctx, tx, plan{
			mode:     ModeRecover,
			profile:  profile,
			header:   header,
			existing: existing,
			lines:    lines,
			overview: overview,
			actorID:  input.ActorID,
			platform: header.Platform,
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}
	s.finish(ctx, ModeRecover, result, input.ActorID)
	return result, nil
}

// Delete soft-deletes an active transaction: its stock movements are removed and
// its posting is reversed. Detail lines are left untouched.
func (s *Service) Delete(ctx context.Context, input DeleteInput) (Result, error) {
	profile, err := input.Kind.Profile()
	if err != nil {
		return Result{}, err
	}
	unlock, err := s.lock(ctx, input.Kind, input.ID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	var result Result
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		existing, err := tx.Headers().GetForUpdate(ctx, input.Kind, input.ID)
		if err != nil {
			return err
		}
		if !existing.Active {
			return fmt.Errorf("%w: %s %d already deleted", ErrInvalidState, input.Kind, input.ID)
		}
		if err := periods.NewGuard(tx.Periods()).Check(ctx, existing.PeriodID); err != nil {
			return err
		}
		at := s.now().UTC()
		if err := tx.Headers().SetActive(ctx, input.Kind, input.ID, false, input.ActorID, at); err != nil {
			return fmt.Errorf("reconcile: deactivate header: %w", err)
		}
		existing.Active = false
		existing.ModifiedBy = input.ActorID
		existing.ModifiedAt = at

		ref := inventory.Ref{ID: existing.ID, Number: existing.Number, Date: existing.Date}
		if _, err := inventory.NewLedger(tx.Movements(), s.now).ReplaceMovements(ctx, input.Kind, ref, nil); err != nil {
			return err
		}
		reversed, ok, err := journals.NewComposer(tx.Postings(), s.now).Reverse(ctx, journals.ReverseInput{
			Locator: journals.Locator{VoucherID: profile.VoucherID, ReferenceID: existing.ID, ReferenceNumber: existing.Number},
			ActorID: input.ActorID,
		})
		if err != nil {
			return err
		}
		result = Result{Header: existing}
		if ok {
			result.Reversed = &reversed
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.recordAudit(ctx, "DELETE", result, input.ActorID)
	s.notify(ctx, notify.EventDeleted, result)
	return result, nil
}

// prepare validates caller input and recomputes every amount.
func (s *Service) prepare(mode Mode, input SaveInput) (plan, error) {
	profile, err := input.Header.Kind.Profile()
	if err != nil {
		return plan{}, err
	}
	header := input.Header
	header.Number = strings.TrimSpace(header.Number)
	if header.Number == "" {
		return plan{}, fmt.Errorf("%w: number required", ErrValidation)
	}
	if strings.IndexFunc(header.Number, unicode.IsControl) >= 0 {
		return plan{}, fmt.Errorf("%w: number contains control characters", ErrValidation)
	}
	if header.CounterpartyID == 0 {
		return plan{}, fmt.Errorf("%w: counterparty required", ErrValidation)
	}
	if header.Date.IsZero() {
		header.Date = s.now().UTC()
	}
	if len(input.Lines) == 0 {
		return plan{}, fmt.Errorf("%w: at least one line required", ErrValidation)
	}
	lines, overview, err := Summarise(input.Lines)
	if err != nil {
		return plan{}, err
	}
	platform := defaultString(input.Platform, header.Platform)
	header.Platform = platform
	return plan{
		mode:     mode,
		profile:  profile,
		header:   header,
		lines:    lines,
		overview: overview,
		actorID:  input.ActorID,
		platform: platform,
	}, nil
}

// reconcile is the single write path shared by Create, Update and Recover.
// It must run inside a Store transaction.
func (s *Service) reconcile(ctx context.Context, tx Tx, p plan) (Result, error) {
	guard := periods.NewGuard(tx.Periods())
	kind := p.profile.Kind
	header := p.header
	now := s.now().UTC()

	switch p.mode {
	case ModeCreate:
		if err := guard.Check(ctx, header.PeriodID); err != nil {
			return Result{}, err
		}
	case ModeUpdate, ModeRecover:
		if p.mode == ModeUpdate && !p.existing.Active {
			return Result{}, fmt.Errorf("%w: %s %d is deleted", ErrInvalidState, kind, p.existing.ID)
		}
		if p.mode == ModeRecover && p.existing.Active {
			return Result{}, fmt.Errorf("%w: %s %d is not deleted", ErrInvalidState, kind, p.existing.ID)
		}
		if err := guard.Check(ctx, p.existing.PeriodID); err != nil {
			return Result{}, err
		}
		if err := guard.Check(ctx, header.PeriodID); err != nil {
			return Result{}, err
		}
	default:
		return Result{}, fmt.Errorf("reconcile: unsupported mode %d", p.mode)
	}

	header.Active = true
	header.ModifiedBy = p.actorID
	header.ModifiedAt = now
	if p.mode == ModeCreate {
		header.CreatedBy = p.actorID
		header.CreatedAt = now
		id, err := tx.Headers().Insert(ctx, header)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile: insert header: %w", err)
		}
		header.ID = id
	} else {
		header.ID = p.existing.ID
		header.CreatedBy = p.existing.CreatedBy
		header.CreatedAt = p.existing.CreatedAt
		if err := tx.Headers().Update(ctx, header); err != nil {
			return Result{}, fmt.Errorf("reconcile: update header: %w", err)
		}
		if _, err := tx.Lines().DeactivateActive(ctx, header.ID); err != nil {
			return Result{}, fmt.Errorf("reconcile: retire lines: %w", err)
		}
	}

	lines := make([]DetailLine, 0, len(p.lines))
	movementLines := make([]inventory.MovementLine, 0, len(p.lines))
	rateLines := make([]products.RateLine, 0, len(p.lines))
	for _, line := range p.lines {
		line.ID = 0
		line.ParentID = header.ID
		line.Active = true
		id, err := tx.Lines().Insert(ctx, line)
		if err != nil {
			return Result{}, fmt.Errorf("reconcile: insert line: %w", err)
		}
		line.ID = id
		lines = append(lines, line)
		movementLines = append(movementLines, inventory.MovementLine{ItemID: line.ItemID, Qty: line.Qty, NetRate: line.NetRate})
		rateLines = append(rateLines, products.RateLine{ItemID: line.ItemID, Rate: line.Rate, UnitID: line.UnitID})
	}

	ref := inventory.Ref{ID: header.ID, Number: header.Number, Date: header.Date}
	movements, err := inventory.NewLedger(tx.Movements(), s.now).ReplaceMovements(ctx, kind, ref, movementLines)
	if err != nil {
		return Result{}, err
	}

	result := Result{Header: header, Lines: lines, Overview: p.overview, Movements: movements}
	composer := journals.NewComposer(tx.Postings(), s.now)
	if p.mode != ModeCreate {
		// The old posting is filed under the number it was written with.
		reversed, ok, err := composer.Reverse(ctx, journals.ReverseInput{
			Locator: journals.Locator{VoucherID: p.profile.VoucherID, ReferenceID: header.ID, ReferenceNumber: p.existing.Number},
			ActorID: p.actorID,
		})
		if err != nil {
			return Result{}, err
		}
		if ok {
			result.Reversed = &reversed
		}
	}

	if !p.overview.Gross.IsZero() {
		accounts, err := mappings.Resolve(ctx, tx.Mappings(), kind)
		if err != nil {
			return Result{}, err
		}
		posting, written, err := composer.Compose(ctx, journals.ComposeInput{
			Locator:       journals.Locator{VoucherID: p.profile.VoucherID, ReferenceID: header.ID, ReferenceNumber: header.Number},
			Date:          header.Date,
			Overview:      p.overview,
			PartyLedgerID: header.CounterpartyID,
			PartyCredit:   p.profile.PartyCredit,
			Accounts:      accounts,
			Label:         string(kind) + " " + header.Number,
			ActorID:       p.actorID,
			Platform:      p.platform,
		})
		if err != nil {
			return Result{}, err
		}
		if written {
			result.Posting = &posting
		}
	}

	synced, err := products.NewRateSync(tx.Products(), s.settings, s.now).Sync(ctx, p.profile, rateLines)
	if err != nil {
		return Result{}, err
	}
	result.RateSync = synced
	return result, nil
}

// Verify checks that stock movements and the posting agree with the stored transaction.
func (s *Service) Verify(ctx context.Context, kind shared.Kind, id int64) (Report, error) {
	profile, err := kind.Profile()
	if err != nil {
		return Report{}, err
	}
	var report Report
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		header, err := tx.Headers().Get(ctx, kind, id)
		if err != nil {
			return err
		}
		report = Report{Kind: kind, ID: id, Number: header.Number, Active: header.Active}

		movements, err := inventory.NewLedger(tx.Movements(), s.now).Movements(ctx, kind, id)
		if err != nil {
			return err
		}
		posting, err := tx.Postings().FindActive(ctx, journals.Locator{VoucherID: profile.VoucherID, ReferenceID: id, ReferenceNumber: header.Number})
		hasPosting := err == nil
		if err != nil && !errors.Is(err, journals.ErrPostingNotFound) {
			return err
		}

		if !header.Active {
			if len(movements) > 0 {
				report.Issues = append(report.Issues, fmt.Sprintf("%d stock movements survive deletion", len(movements)))
			}
			if hasPosting {
				report.Issues = append(report.Issues, fmt.Sprintf("posting %d still active", posting.ID))
			}
			return nil
		}

		stored, err := tx.Lines().ListActive(ctx, id)
		if err != nil {
			return err
		}
		cart := make([]DetailLine, 0, len(stored))
		for _, line := range stored {
			cart = append(cart, rebuildLine(line))
		}
		lines, overview, err := Summarise(cart)
		if err != nil {
			return err
		}
		report.Issues = append(report.Issues, compareMovements(profile, lines, movements)...)

		switch {
		case overview.Gross.IsZero() && hasPosting:
			report.Issues = append(report.Issues, "posting present for zero gross total")
		case !overview.Gross.IsZero() && !hasPosting:
			report.Issues = append(report.Issues, "active posting missing")
		case hasPosting:
			debit, credit := journals.Sum(posting.Lines)
			if !debit.Equal(credit) {
				report.Issues = append(report.Issues, fmt.Sprintf("posting unbalanced: debit %s credit %s", debit.StringFixed(2), credit.StringFixed(2)))
			}
			if !debit.Equal(overview.Gross.Round(2)) {
				report.Issues = append(report.Issues, fmt.Sprintf("posting total %s differs from gross %s", debit.StringFixed(2), overview.Gross.StringFixed(2)))
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	report.Consistent = len(report.Issues) == 0
	return report, nil
}

// RecentIDs lists transactions of kind modified since the given time.
func (s *Service) RecentIDs(ctx context.Context, kind shared.Kind, since time.Time, limit int) ([]int64, error) {
	if _, err := kind.Profile(); err != nil {
		return nil, err
	}
	var ids []int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		ids, err = tx.Headers().ListIDs(ctx, kind, since, limit)
		return err
	})
	return ids, err
}

func compareMovements(profile shared.KindProfile, lines []DetailLine, movements []inventory.Movement) []string {
	if len(lines) != len(movements) {
		return []string{fmt.Sprintf("%d stock movements for %d active lines", len(movements), len(lines))}
	}
	sign := decimal.NewFromInt(profile.Sign())
	var issues []string
	for i, line := range lines {
		m := movements[i]
		if m.ItemID != line.ItemID || !m.Qty.Equal(line.Qty.Mul(sign)) {
			issues = append(issues, fmt.Sprintf("movement %d does not mirror line %d", m.ID, line.ID))
		}
	}
	return issues
}

// rebuildLine strips persisted identity and derived amounts so the line can be replayed.
func rebuildLine(line DetailLine) DetailLine {
	cart := DetailLine{
		ItemID:          line.ItemID,
		UnitID:          line.UnitID,
		Qty:             line.Qty,
		Rate:            line.Rate,
		DiscountPercent: line.DiscountPercent,
		DiscountAmount:  line.DiscountAmount,
	}
	for i := range line.Taxes {
		cart.Taxes[i].Percent = line.Taxes[i].Percent
	}
	return cart
}

func (s *Service) lock(ctx context.Context, kind shared.Kind, id int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, shared.TransactionLockKey(kind, id))
}

func (s *Service) finish(ctx context.Context, mode Mode, result Result, actorID int64) {
	s.recordAudit(ctx, strings.ToUpper(mode.String()), result, actorID)
	s.notify(ctx, mode.Event(), result)
}

func (s *Service) recordAudit(ctx context.Context, action string, result Result, actorID int64) {
	if s.audit == nil {
		return
	}
	meta := map[string]any{
		"number": result.Header.Number,
		"gross":  result.Overview.Gross.StringFixed(2),
	}
	if result.Posting != nil {
		meta["posting_id"] = result.Posting.ID
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   string(result.Header.Kind) + "_" + action,
		Entity:   "transaction",
		EntityID: strconv.FormatInt(result.Header.ID, 10),
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("reconcile: audit record", slog.Int64("id", result.Header.ID), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, event notify.Event, result Result) {
	if s.notifier == nil {
		return
	}
	h := result.Header
	fields := map[string]string{
		"Number":       h.Number,
		"Date":         h.Date.Format("2006-01-02"),
		"Counterparty": strconv.FormatInt(h.CounterpartyID, 10),
		"Lines":        strconv.Itoa(len(result.Lines)),
	}
	amounts := map[string]decimal.Decimal{}
	if event != notify.EventDeleted {
		amounts["Gross"] = result.Overview.Gross
		amounts["Tax"] = result.Overview.ExtraTax
	}
	// Delivery is not bound to the request context.
	s.notifier.Dispatch(context.WithoutCancel(ctx), notify.Notification{
		Kind:          string(h.Kind),
		TransactionID: h.ID,
		Number:        h.Number,
		Event:         event,
		Fields:        fields,
		Amounts:       amounts,
	})
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
