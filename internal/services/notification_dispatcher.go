package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	notificationIDPrefix       = "ntf_"
	defaultNotificationWorkers = 2
	defaultNotificationQueue   = 128
	defaultNotificationTimeout = 10 * time.Second
)

// NotificationDispatcherDeps configures the asynchronous notification queue.
type NotificationDispatcherDeps struct {
	Notifier    Notifier
	AdminEmail  string
	Workers     int
	QueueSize   int
	Timeout     time.Duration
	Language    language.Tag
	Metrics     Metrics
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type queuedNotification struct {
	ctx     context.Context
	message NotificationMessage
}

type notificationDispatcher struct {
	notifier   Notifier
	adminEmail string
	timeout    time.Duration
	printer    *message.Printer
	metrics    Metrics
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)

	mu     sync.RWMutex
	closed bool
	queue  chan queuedNotification
	wg     sync.WaitGroup
}

// NewNotificationDispatcher starts the worker pool draining the notification queue.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Notifier == nil {
		return nil, errors.New("notification dispatcher: notifier is required")
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultNotificationWorkers
	}
	size := deps.QueueSize
	if size <= 0 {
		size = defaultNotificationQueue
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	tag := deps.Language
	if tag == language.Und {
		tag = language.English
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	d := &notificationDispatcher{
		notifier:   deps.Notifier,
		adminEmail: strings.TrimSpace(deps.AdminEmail),
		timeout:    timeout,
		printer:    message.NewPrinter(tag),
		metrics:    metrics,
		now:        func() time.Time { return clock().UTC() },
		newID:      idGen,
		logger:     logger,
		queue:      make(chan queuedNotification, size),
	}
	d.wg.Add(workers)
	for range workers {
		go d.work()
	}
	return d, nil
}

// Enqueue resolves the recipient and queues the message. A full queue drops the notification.
func (d *notificationDispatcher) Enqueue(ctx context.Context, n Notification) {
	template := string(n.Template)
	recipient, ok := d.recipient(n)
	if !ok {
		d.metrics.NotificationResult(template, "skipped")
		d.logger(ctx, "notification.skipped", map[string]any{
			"template": template,
			"audience": string(n.Audience),
			"orderId":  n.Order.ID,
			"reason":   "no recipient",
		})
		return
	}

	item := queuedNotification{
		ctx: context.WithoutCancel(ctx),
		message: NotificationMessage{
			ID:             notificationIDPrefix + d.newID(),
			Template:       n.Template,
			Recipient:      recipient,
			Order:          n.Order,
			FormattedTotal: d.formatAmount(n.Order.Totals.GrandTotal, n.Order.Currency),
			QueuedAt:       d.now(),
		},
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.metrics.NotificationResult(template, "dropped")
		d.logger(ctx, "notification.dropped", map[string]any{
			"template": template,
			"orderId":  n.Order.ID,
			"reason":   "dispatcher closed",
		})
		return
	}
	select {
	case d.queue <- item:
	default:
		d.metrics.NotificationResult(template, "dropped")
		d.logger(ctx, "notification.dropped", map[string]any{
			"template": template,
			"orderId":  n.Order.ID,
			"reason":   "queue full",
		})
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered.
func (d *notificationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification dispatcher: drain: %w", ctx.Err())
	}
}

func (d *notificationDispatcher) work() {
	defer d.wg.Done()
	for item := range d.queue {
		d.deliver(item)
	}
}

func (d *notificationDispatcher) deliver(item queuedNotification) {
	ctx, cancel := context.WithTimeout(item.ctx, d.timeout)
	defer cancel()

	template := string(item.message.Template)
	if err := d.notifier.Notify(ctx, item.message); err != nil {
		d.metrics.NotificationResult(template, "failed")
		d.logger(item.ctx, "notification.failed", map[string]any{
			"id":       item.message.ID,
			"template": template,
			"orderId":  item.message.Order.ID,
			"error":    err.Error(),
		})
		return
	}
	d.metrics.NotificationResult(template, "sent")
}

func (d *notificationDispatcher) recipient(n Notification) (NotificationRecipient, bool) {
	switch n.Audience {
	case RecipientAdmin:
		if d.adminEmail == "" {
			return NotificationRecipient{}, false
		}
		return NotificationRecipient{Kind: RecipientAdmin, Email: d.adminEmail}, true
	default:
		contact := n.Order.Contact
		if !contact.Reachable() {
			return NotificationRecipient{}, false
		}
		return NotificationRecipient{Kind: RecipientCustomer, Email: contact.Email, Phone: contact.Phone}, true
	}
}

// formatAmount renders minor units in the currency's standard precision, e.g. "USD 1,234.50".
func (d *notificationDispatcher) formatAmount(minor int64, code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return d.printer.Sprintf("%.2f", decimal.New(minor, -2).InexactFloat64())
	}
	scale, _ := currency.Standard.Rounding(unit)
	amount := decimal.New(minor, -2).Round(int32(scale)).InexactFloat64()
	format := fmt.Sprintf("%%s %%.%df", scale)
	return d.printer.Sprintf(format, unit.String(), amount)
}
