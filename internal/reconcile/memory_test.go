package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/accounting/journals"
	"github.com/odyssey-erp/ledgersync/internal/accounting/mappings"
	"github.com/odyssey-erp/ledgersync/internal/accounting/periods"
	"github.com/odyssey-erp/ledgersync/internal/inventory"
	"github.com/odyssey-erp/ledgersync/internal/masterdata/products"
	"github.com/odyssey-erp/ledgersync/internal/shared"
)

var errInjected = errors.New("injected failure")

// memoryState is everything the memory store persists.
type memoryState struct {
	seq       int64
	periods   map[int64]periods.Period
	headers   map[int64]Header
	lines     []DetailLine
	movements []inventory.Movement
	postings  map[int64]journals.Posting
	products  map[int64]products.Product
	mappings  map[string]int64
	writes    int
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		seq:       s.seq,
		periods:   make(map[int64]periods.Period, len(s.periods)),
		headers:   make(map[int64]Header, len(s.headers)),
		lines:     append([]DetailLine(nil), s.lines...),
		movements: append([]inventory.Movement(nil), s.movements...),
		postings:  make(map[int64]journals.Posting, len(s.postings)),
		products:  make(map[int64]products.Product, len(s.products)),
		mappings:  make(map[string]int64, len(s.mappings)),
		writes:    s.writes,
	}
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.headers {
		out.headers[k] = v
	}
	for k, v := range s.postings {
		v.Lines = append([]journals.PostingLine(nil), v.Lines...)
		out.postings[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.mappings {
		out.mappings[k] = v
	}
	return out
}

func (s *memoryState) nextID() int64 {
	s.seq++
	return s.seq
}

// memoryStore commits a transaction's state only when fn succeeds.
type memoryStore struct {
	mu     sync.Mutex
	state  *memoryState
	failAt string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{state: &memoryState{
		periods:  map[int64]periods.Period{},
		headers:  map[int64]Header{},
		postings: map[int64]journals.Posting{},
		products: map[int64]products.Product{},
		mappings: map[string]int64{},
	}}
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := m.state.clone()
	if err := fn(ctx, &memoryTx{state: working, failAt: m.failAt}); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *memoryStore) addPeriod(p periods.Period) {
	m.state.periods[p.ID] = p
}

func (m *memoryStore) setPeriodLocked(id int64, locked bool) {
	p := m.state.periods[id]
	p.Locked = locked
	m.state.periods[id] = p
}

func (m *memoryStore) addMapping(kind shared.Kind, key string, ledgerID int64) {
	m.state.mappings[string(kind)+"/"+key] = ledgerID
}

func (m *memoryStore) addProduct(p products.Product) {
	m.state.products[p.ID] = p
}

func (m *memoryStore) activeMovements(kind shared.Kind, id int64) []inventory.Movement {
	var out []inventory.Movement
	for _, mv := range m.state.movements {
		if mv.Kind == kind && mv.TransactionID == id {
			out = append(out, mv)
		}
	}
	return out
}

func (m *memoryStore) activePostings(voucherID, refID int64) []journals.Posting {
	var out []journals.Posting
	for _, p := range m.state.postings {
		if p.Active && p.VoucherID == voucherID && p.ReferenceID == refID {
			out = append(out, p)
		}
	}
	return out
}

func (m *memoryStore) activeLines(parentID int64) []DetailLine {
	var out []DetailLine
	for _, l := range m.state.lines {
		if l.Active && l.ParentID == parentID {
			out = append(out, l)
		}
	}
	return out
}

type memoryTx struct {
	state  *memoryState
	failAt string
}

func (t *memoryTx) write(step string) error {
	if t.failAt == step {
		return fmt.Errorf("%s: %w", step, errInjected)
	}
	t.state.writes++
	return nil
}

func (t *memoryTx) Periods() periods.Reader            { return memPeriods{t} }
func (t *memoryTx) Headers() HeaderRepository          { return memHeaders{t} }
func (t *memoryTx) Lines() LineRepository              { return memLines{t} }
func (t *memoryTx) Movements() inventory.MovementStore { return memMovements{t} }
func (t *memoryTx) Postings() journals.PostingStore    { return memPostings{t} }
func (t *memoryTx) Products() products.MasterStore     { return memProducts{t} }
func (t *memoryTx) Mappings() mappings.Repository      { return memMappings{t} }

type memPeriods struct{ t *memoryTx }

func (r memPeriods) Get(_ context.Context, id int64) (periods.Period, error) {
	p, ok := r.t.state.periods[id]
	if !ok {
		return periods.Period{}, periods.ErrNotFound
	}
	return p, nil
}

type memHeaders struct{ t *memoryTx }

func (r memHeaders) Insert(_ context.Context, h Header) (int64, error) {
	if err := r.t.write("headers.insert"); err != nil {
		return 0, err
	}
	for _, existing := range r.t.state.headers {
		if existing.Kind == h.Kind && existing.Number == h.Number {
			return 0, ErrDuplicateNumber
		}
	}
	h.ID = r.t.state.nextID()
	r.t.state.headers[h.ID] = h
	return h.ID, nil
}

func (r memHeaders) Update(_ context.Context, h Header) error {
	if err := r.t.write("headers.update"); err != nil {
		return err
	}
	if _, ok := r.t.state.headers[h.ID]; !ok {
		return shared.MissingReference("transaction", h.ID)
	}
	r.t.state.headers[h.ID] = h
	return nil
}

func (r memHeaders) Get(_ context.Context, kind shared.Kind, id int64) (Header, error) {
	h, ok := r.t.state.headers[id]
	if !ok || h.Kind != kind {
		return Header{}, shared.MissingReference("transaction", fmt.Sprintf("%s/%d", kind, id))
	}
	return h, nil
}

func (r memHeaders) GetForUpdate(ctx context.Context, kind shared.Kind, id int64) (Header, error) {
	return r.Get(ctx, kind, id)
}

func (r memHeaders) SetActive(_ context.Context, kind shared.Kind, id int64, active bool, actorID int64, at time.Time) error {
	if err := r.t.write("headers.set_active"); err != nil {
		return err
	}
	h, ok := r.t.state.headers[id]
	if !ok || h.Kind != kind {
		return shared.MissingReference("transaction", id)
	}
	h.Active = active
	h.ModifiedBy = actorID
	h.ModifiedAt = at
	r.t.state.headers[id] = h
	return nil
}

func (r memHeaders) ListIDs(_ context.Context, kind shared.Kind, since time.Time, limit int) ([]int64, error) {
	var ids []int64
	for id := int64(1); id <= r.t.state.seq && len(ids) < limit; id++ {
		h, ok := r.t.state.headers[id]
		if ok && h.Kind == kind && !h.ModifiedAt.Before(since) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memLines struct{ t *memoryTx }

func (r memLines) ListActive(_ context.Context, parentID int64) ([]DetailLine, error) {
	var out []DetailLine
	for _, l := range r.t.state.lines {
		if l.Active && l.ParentID == parentID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memLines) DeactivateActive(_ context.Context, parentID int64) (int64, error) {
	if err := r.t.write("lines.deactivate"); err != nil {
		return 0, err
	}
	var n int64
	for i := range r.t.state.lines {
		if r.t.state.lines[i].Active && r.t.state.lines[i].ParentID == parentID {
			r.t.state.lines[i].Active = false
			n++
		}
	}
	return n, nil
}

func (r memLines) Insert(_ context.Context, l DetailLine) (int64, error) {
	if err := r.t.write("lines.insert"); err != nil {
		return 0, err
	}
	l.ID = r.t.state.nextID()
	r.t.state.lines = append(r.t.state.lines, l)
	return l.ID, nil
}

type memMovements struct{ t *memoryTx }

func (r memMovements) DeleteByRef(_ context.Context, kind shared.Kind, id int64) (int64, error) {
	if err := r.t.write("movements.delete"); err != nil {
		return 0, err
	}
	var kept []inventory.Movement
	var n int64
	for _, mv := range r.t.state.movements {
		if mv.Kind == kind && mv.TransactionID == id {
			n++
			continue
		}
		kept = append(kept, mv)
	}
	r.t.state.movements = kept
	return n, nil
}

func (r memMovements) Insert(_ context.Context, mv inventory.Movement) (int64, error) {
	if err := r.t.write("movements.insert"); err != nil {
		return 0, err
	}
	mv.ID = r.t.state.nextID()
	r.t.state.movements = append(r.t.state.movements, mv)
	return mv.ID, nil
}

func (r memMovements) ListByRef(_ context.Context, kind shared.Kind, id int64) ([]inventory.Movement, error) {
	var out []inventory.Movement
	for _, mv := range r.t.state.movements {
		if mv.Kind == kind && mv.TransactionID == id {
			out = append(out, mv)
		}
	}
	return out, nil
}

type memPostings struct{ t *memoryTx }

func (r memPostings) FindActive(_ context.Context, loc journals.Locator) (journals.Posting, error) {
	for _, p := range r.t.state.postings {
		if p.Active && p.Locator() == loc {
			return p, nil
		}
	}
	return journals.Posting{}, journals.ErrPostingNotFound
}

func (r memPostings) Insert(_ context.Context, p journals.Posting) (int64, error) {
	if err := r.t.write("postings.insert"); err != nil {
		return 0, err
	}
	p.ID = r.t.state.nextID()
	r.t.state.postings[p.ID] = p
	return p.ID, nil
}

func (r memPostings) Deactivate(_ context.Context, id int64, actorID int64, at time.Time) error {
	if err := r.t.write("postings.deactivate"); err != nil {
		return err
	}
	p, ok := r.t.state.postings[id]
	if !ok {
		return journals.ErrPostingNotFound
	}
	p.Active = false
	p.ModifiedBy = actorID
	p.ModifiedAt = at
	r.t.state.postings[id] = p
	return nil
}

type memProducts struct{ t *memoryTx }

func (r memProducts) UpdateRate(_ context.Context, id int64, rate decimal.Decimal, at time.Time) error {
	if err := r.t.write("products.rate"); err != nil {
		return err
	}
	p, ok := r.t.state.products[id]
	if !ok {
		return shared.MissingReference("product", id)
	}
	p.Rate = rate
	p.UpdatedAt = at
	r.t.state.products[id] = p
	return nil
}

func (r memProducts) UpdateUnit(_ context.Context, id int64, unitID int64, at time.Time) error {
	if err := r.t.write("products.unit"); err != nil {
		return err
	}
	p, ok := r.t.state.products[id]
	if !ok {
		return shared.MissingReference("product", id)
	}
	p.UnitID = unitID
	p.UpdatedAt = at
	r.t.state.products[id] = p
	return nil
}

type memMappings struct{ t *memoryTx }

func (r memMappings) Get(_ context.Context, module, key string) (mappings.AccountMapping, error) {
	id, ok := r.t.state.mappings[module+"/"+key]
	if !ok {
		return mappings.AccountMapping{}, shared.MissingReference("ledger mapping", module+"/"+key)
	}
	return mappings.AccountMapping{Module: module, Key: key, LedgerID: id}, nil
}
