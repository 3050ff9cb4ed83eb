package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledgersync/internal/shared"
)

// SaveRequest is the JSON body for create and update.
type SaveRequest struct {
	CounterpartyID int64         `json:"counterparty_id" validate:"required,gt=0"`
	PeriodID       int64         `json:"period_id" validate:"required,gt=0"`
	Number         string        `json:"number" validate:"required,max=64"`
	Date           time.Time     `json:"date"`
	Lines          []LineRequest `json:"lines" validate:"required,min=1,dive"`
}

// LineRequest is one cart line. Derived amounts are always recomputed.
type LineRequest struct {
	ItemID          int64             `json:"item_id" validate:"required,gt=0"`
	UnitID          int64             `json:"unit_id" validate:"gte=0"`
	Qty             decimal.Decimal   `json:"qty"`
	Rate            decimal.Decimal   `json:"rate"`
	TaxPercents     []decimal.Decimal `json:"tax_percents" validate:"max=3"`
	DiscountPercent decimal.Decimal   `json:"discount_percent"`
	DiscountAmount  decimal.Decimal   `json:"discount_amount"`
}

func (r SaveRequest) toInput(kind shared.Kind, id int64, actorID int64, platform string) SaveInput {
	lines := make([]DetailLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		line := DetailLine{
			ItemID:          l.ItemID,
			UnitID:          l.UnitID,
			Qty:             l.Qty,
			Rate:            l.Rate,
			DiscountPercent: l.DiscountPercent,
			DiscountAmount:  l.DiscountAmount,
		}
		for i, pct := range l.TaxPercents {
			if i < TaxSlots {
				line.Taxes[i].Percent = pct
			}
		}
		lines = append(lines, line)
	}
	return SaveInput{
		Header: Header{
			ID:             id,
			Kind:           kind,
			CounterpartyID: r.CounterpartyID,
			PeriodID:       r.PeriodID,
			Number:         r.Number,
			Date:           r.Date,
			Platform:       platform,
		},
		Lines:    lines,
		ActorID:  actorID,
		Platform: platform,
	}
}

// TransactionResponse summarises the outcome of a write.
type TransactionResponse struct {
	ID                int64           `json:"id"`
	Kind              shared.Kind     `json:"kind"`
	Number            string          `json:"number"`
	Active            bool            `json:"active"`
	Gross             decimal.Decimal `json:"gross"`
	TaxExclusive      decimal.Decimal `json:"tax_exclusive"`
	ExtraTax          decimal.Decimal `json:"extra_tax"`
	Lines             []LineResponse  `json:"lines,omitempty"`
	Movements         int             `json:"movements"`
	PostingID         *int64          `json:"posting_id,omitempty"`
	ReversedPostingID *int64          `json:"reversed_posting_id,omitempty"`
}

// LineResponse echoes a stored line with its computed amounts.
type LineResponse struct {
	ID      int64           `json:"id"`
	ItemID  int64           `json:"item_id"`
	Qty     decimal.Decimal `json:"qty"`
	Rate    decimal.Decimal `json:"rate"`
	Total   decimal.Decimal `json:"total"`
	NetRate decimal.Decimal `json:"net_rate"`
}

func newTransactionResponse(result Result) TransactionResponse {
	resp := TransactionResponse{
		ID:           result.Header.ID,
		Kind:         result.Header.Kind,
		Number:       result.Header.Number,
		Active:       result.Header.Active,
		Gross:        result.Overview.Gross,
		TaxExclusive: result.Overview.TaxExclusive,
		ExtraTax:     result.Overview.ExtraTax,
		Movements:    len(result.Movements),
	}
	for _, l := range result.Lines {
		resp.Lines = append(resp.Lines, LineResponse{ID: l.ID, ItemID: l.ItemID, Qty: l.Qty, Rate: l.Rate, Total: l.Total, NetRate: l.NetRate})
	}
	if result.Posting != nil {
		id := result.Posting.ID
		resp.PostingID = &id
	}
	if result.Reversed != nil {
		id := result.Reversed.ID
		resp.ReversedPostingID = &id
	}
	return resp
}
