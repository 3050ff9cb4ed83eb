package shared

import (
	"errors"
	"strings"
)

// Kind identifies the business transaction that owns stock movements and postings.
type Kind string

const (
	KindPurchase       Kind = "PURCHASE"
	KindPurchaseReturn Kind = "PURCHASE_RETURN"
	KindSale           Kind = "SALE"
	KindSalesReturn    Kind = "SALES_RETURN"
	KindTransferOut    Kind = "TRANSFER_OUT"
	KindTransferIn     Kind = "TRANSFER_IN"
)

// Direction is the stock flow of a kind.
type Direction int

const (
	Inbound Direction = iota + 1
	Outbound
)

// KindProfile captures everything that differs between transaction kinds.
type KindProfile struct {
	Kind      Kind
	Direction Direction
	// PartyCredit is true when the counterparty ledger is credited with the gross total.
	PartyCredit bool
	VoucherID   int64
	// SyncsMasterRate enables copying line rate/unit back to the item master.
	SyncsMasterRate bool
}

var profiles = map[Kind]KindProfile{
	KindPurchase:       {Kind: KindPurchase, Direction: Inbound, PartyCredit: true, VoucherID: 1, SyncsMasterRate: true},
	KindPurchaseReturn: {Kind: KindPurchaseReturn, Direction: Outbound, PartyCredit: false, VoucherID: 2},
	KindSale:           {Kind: KindSale, Direction: Outbound, PartyCredit: false, VoucherID: 3},
	KindSalesReturn:    {Kind: KindSalesReturn, Direction: Inbound, PartyCredit: true, VoucherID: 4},
	KindTransferOut:    {Kind: KindTransferOut, Direction: Outbound, PartyCredit: false, VoucherID: 5},
	KindTransferIn:     {Kind: KindTransferIn, Direction: Inbound, PartyCredit: true, VoucherID: 6},
}

// ErrUnknownKind indicates a transaction kind outside the supported set.
var ErrUnknownKind = errors.New("unknown transaction kind")

// ParseKind normalises user input such as "purchase-return" into a Kind.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")))
	if _, ok := profiles[k]; !ok {
		return "", ErrUnknownKind
	}
	return k, nil
}

// Profile returns the kind's profile.
func (k Kind) Profile() (KindProfile, error) {
	p, ok := profiles[k]
	if !ok {
		return KindProfile{}, ErrUnknownKind
	}
	return p, nil
}

// Sign returns +1 for inbound kinds and -1 for outbound kinds.
func (p KindProfile) Sign() int64 {
	if p.Direction == Outbound {
		return -1
	}
	return 1
}

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindPurchase, KindPurchaseReturn, KindSale, KindSalesReturn, KindTransferOut, KindTransferIn}
}
