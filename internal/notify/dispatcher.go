// Package notify turns transaction lifecycle events into push and email tasks.
// Delivery is best effort: the dispatcher never reports failure to its caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Event is a lifecycle tag.
type Event string

const (
	EventCreated   Event = "created"
	EventUpdated   Event = "updated"
	EventRecovered Event = "recovered"
	EventDeleted   Event = "deleted"
)

// Valid reports whether e belongs to the closed event set.
func (e Event) Valid() bool {
	switch e {
	case EventCreated, EventUpdated, EventRecovered, EventDeleted:
		return true
	}
	return false
}

// Notification describes one lifecycle change.
type Notification struct {
	Kind          string
	TransactionID int64
	Number        string
	Event         Event
	Fields        map[string]string
	// Amounts are formatted into Fields by the dispatcher.
	Amounts map[string]decimal.Decimal
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Dispatcher enqueues delivery tasks.
type Dispatcher struct {
	queue   Enqueuer
	logger  *slog.Logger
	printer *message.Printer
	push    bool
	email   bool
}

// Channels selects which deliveries are enqueued.
type Channels struct {
	Push  bool
	Email bool
}

// NewDispatcher constructs a Dispatcher. A nil queue makes Dispatch a no-op.
func NewDispatcher(queue Enqueuer, channels Channels, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:   queue,
		logger:  logger,
		printer: message.NewPrinter(language.English),
		push:    channels.Push,
		email:   channels.Email,
	}
}

// maxExactCents is the largest cent count a float64 holds exactly.
var maxExactCents = decimal.NewFromInt(1 << 53)

// FormatAmount renders a money amount with grouping and two decimals.
func (d *Dispatcher) FormatAmount(amount decimal.Decimal) string {
	amount = amount.Round(2)
	if amount.Abs().Shift(2).LessThan(maxExactCents) {
		return d.printer.Sprint(number.Decimal(amount.InexactFloat64(), number.Scale(2)))
	}
	return groupFixed(amount.StringFixed(2))
}

// groupFixed inserts thousands separators into a fixed-point decimal string.
func groupFixed(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

// Dispatch enqueues the configured deliveries. Errors are logged and dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if d == nil || d.queue == nil {
		return
	}
	logger := d.logger.With(
		slog.String("kind", n.Kind),
		slog.Int64("transaction_id", n.TransactionID),
		slog.String("event", string(n.Event)),
	)
	if !n.Event.Valid() {
		logger.Warn("notify: unknown event dropped")
		return
	}
	payload := Payload{
		Kind:          n.Kind,
		TransactionID: n.TransactionID,
		Number:        n.Number,
		Event:         n.Event,
		Title:         Title(n),
		Fields:        d.fields(n),
	}

	var g errgroup.Group
	if d.push {
		g.Go(func() error {
			return d.enqueue(ctx, NewPushTask, payload)
		})
	}
	if d.email {
		g.Go(func() error {
			return d.enqueue(ctx, NewEmailTask, payload)
		})
	}
	if err := g.Wait(); err != nil {
		logger.Warn("notify: enqueue failed", slog.Any("error", err))
	}
}

func (d *Dispatcher) fields(n Notification) map[string]string {
	if len(n.Fields) == 0 && len(n.Amounts) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Fields)+len(n.Amounts))
	for k, v := range n.Fields {
		out[k] = v
	}
	for k, v := range n.Amounts {
		out[k] = d.FormatAmount(v)
	}
	return out
}

func (d *Dispatcher) enqueue(ctx context.Context, build func(Payload) (*asynq.Task, error), payload Payload) error {
	task, err := build(payload)
	if err != nil {
		return err
	}
	_, err = d.queue.EnqueueContext(ctx, task, asynq.TaskID(uuid.NewString()))
	if err != nil {
		return fmt.Errorf("%s: %w", task.Type(), err)
	}
	return nil
}

// Title renders the one-line subject for a notification.
func Title(n Notification) string {
	return fmt.Sprintf("%s %s %s", n.Kind, n.Number, n.Event)
}

// Body renders fields as sorted "label: value" lines.
func Body(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out string
	for _, k := range keys {
		out += k + ": " + fields[k] + "\n"
	}
	return out
}
