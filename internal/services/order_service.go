package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/platform/textutil"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderIDPrefix      = "ord_"
	orderEventIDPrefix = "evt_"
	orderCounterID     = "orders"
	// orderSequenceMax is the largest sequence the six digit order number can render.
	orderSequenceMax int64 = 999999

	maxOrderNotesRunes   = 4000
	maxCancelReasonRunes = 500
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrInvalidTransition indicates the requested status change is not allowed from the current status.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrEmptyCart indicates there is nothing to place an order for.
	ErrEmptyCart = errors.New("order: cart is empty")
	// ErrMissingShippingAddress indicates no usable shipping address was supplied.
	ErrMissingShippingAddress = errors.New("order: shipping address is required")
	// ErrMissingContactChannel indicates the user has neither an email nor a phone number.
	ErrMissingContactChannel = errors.New("order: contact channel is required")
	// ErrOrderBelowMinimumAdvance indicates the grand total is smaller than the fixed advance.
	ErrOrderBelowMinimumAdvance = errors.New("order: total is below the advance payment amount")
	// ErrPaymentSessionUsed indicates the provider payment session already paid for another order.
	ErrPaymentSessionUsed = errors.New("order: payment session already used")
	// ErrOrderNumbersExhausted indicates the order sequence reached its configured maximum.
	ErrOrderNumbersExhausted = errors.New("order: order numbers exhausted")
)

var orderStateTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusCancelled},
	domain.OrderStatusProcessing: {domain.OrderStatusConfirmed, domain.OrderStatusCompleted, domain.OrderStatusCancelled},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCompleted, domain.OrderStatusCancelled},
}

var entryStatuses = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusProcessing,
	domain.OrderStatusConfirmed,
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders        repositories.OrderRepository
	Counters      repositories.CounterRepository
	Carts         repositories.CartRepository
	Users         repositories.UserRepository
	Inventory     InventoryLedger
	Notifications NotificationDispatcher
	UnitOfWork    repositories.UnitOfWork
	Events        OrderEventPublisher
	Metrics       Metrics
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)

	// DefaultEntryStatus applies to orders that were not paid through the provider.
	DefaultEntryStatus string
	// AdvanceAmount is the fixed upfront charge of advance orders, in minor units.
	AdvanceAmount int64
	Currency      string
}

type orderService struct {
	orders        repositories.OrderRepository
	counters      repositories.CounterRepository
	carts         repositories.CartRepository
	users         repositories.UserRepository
	inventory     InventoryLedger
	notifications NotificationDispatcher
	unitOfWork    repositories.UnitOfWork
	events        OrderEventPublisher
	metrics       Metrics
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
	entryStatus   OrderStatus
	advance       int64
	currency      string
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	entry := OrderStatus(strings.ToLower(strings.TrimSpace(deps.DefaultEntryStatus)))
	if entry == "" {
		entry = domain.OrderStatusProcessing
	}
	if !slices.Contains(entryStatuses, entry) {
		return nil, fmt.Errorf("order service: unsupported entry status %q", deps.DefaultEntryStatus)
	}
	if deps.AdvanceAmount < 0 {
		return nil, errors.New("order service: advance amount must not be negative")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:        deps.Orders,
		counters:      deps.Counters,
		carts:         deps.Carts,
		users:         deps.Users,
		inventory:     deps.Inventory,
		notifications: deps.Notifications,
		unitOfWork:    unit,
		events:        deps.Events,
		metrics:       metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:       idGen,
		logger:      logger,
		entryStatus: entry,
		advance:     deps.AdvanceAmount,
		currency:    strings.ToUpper(strings.TrimSpace(deps.Currency)),
	}, nil
}

// Create persists a new order from checkout snapshots. Orders that enter the confirmed state
// deduct inventory right after the insert commits.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, ErrEmptyCart
	}
	if !usableShippingAddress(cmd.ShippingAddress) {
		return Order{}, ErrMissingShippingAddress
	}
	if cmd.Pricing.GrandTotal != cmd.Pricing.Subtotal+cmd.Pricing.TaxAmount {
		return Order{}, fmt.Errorf("%w: grand total does not match subtotal and tax", ErrOrderInvalidInput)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency == "" {
		return Order{}, fmt.Errorf("%w: currency is required", ErrOrderInvalidInput)
	}

	paymentType := cmd.PaymentType
	if paymentType == "" {
		paymentType = domain.PaymentTypeFull
	}
	if paymentType != domain.PaymentTypeFull && paymentType != domain.PaymentTypeAdvance {
		return Order{}, fmt.Errorf("%w: unsupported payment type %q", ErrOrderInvalidInput, paymentType)
	}

	contact, err := s.resolveContact(ctx, userID, cmd.Contact, cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	if !contact.Reachable() {
		return Order{}, ErrMissingContactChannel
	}

	now := s.now()
	order := Order{
		ID:               s.nextOrderID(),
		UserID:           userID,
		PaymentType:      paymentType,
		PaymentMethod:    cmd.PaymentMethod,
		PaymentReference: strings.TrimSpace(cmd.PaymentReference),
		ProviderOrderID:  strings.TrimSpace(cmd.ProviderOrderID),
		Currency:         currency,
		Items:            cloneOrderItems(cmd.Items),
		ShippingAddress:  *cmd.ShippingAddress,
		Contact:          contact,
		Totals:           cmd.Pricing.Totals(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.applyEntryState(&order, cmd.ProviderPaid, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if order.ProviderOrderID != "" {
			if err := s.ensureSessionUnused(txCtx, order.ProviderOrderID); err != nil {
				return err
			}
		}
		number, err := s.generateOrderNumber(txCtx, now)
		if err != nil {
			return err
		}
		order.OrderNumber = number
		if err := s.orders.Insert(txCtx, order); err != nil {
			return s.mapRepositoryError(err)
		}
		if order.ProviderOrderID != "" {
			if err := s.orders.ReservePaymentSession(txCtx, order.ProviderOrderID, order.ID, now); err != nil {
				return s.mapSessionError(err)
			}
		}
		if cmd.Cart != nil && s.carts != nil {
			if err := s.carts.DeleteCart(txCtx, userID, expectedUpdate(cmd.Cart.UpdatedAt)); err != nil {
				return mapCartClearError(err)
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.metrics.OrderTransition("", string(order.Status))
	s.publishEvent(ctx, OrderEventCreated, order, "", nil, "")

	if order.Status == domain.OrderStatusConfirmed {
		if report := s.deductInventory(ctx, order); report != nil {
			order.InventoryDeducted = true
		}
	}
	return order, nil
}

func (s *orderService) applyEntryState(order *Order, providerPaid bool, now time.Time) error {
	switch {
	case order.PaymentType == domain.PaymentTypeAdvance:
		if s.advance <= 0 {
			return fmt.Errorf("%w: advance payments are not configured", ErrOrderInvalidInput)
		}
		if order.Totals.GrandTotal < s.advance {
			return ErrOrderBelowMinimumAdvance
		}
		order.Status = domain.OrderStatusConfirmed
		order.PaymentStatus = domain.PaymentStatusPartiallyPaid
		order.Totals.CODAdvancePayment = s.advance
		order.Totals.CODRemainingPayment = order.Totals.GrandTotal - s.advance
		if order.PaymentMethod == "" {
			order.PaymentMethod = domain.PaymentMethodCOD
		}
	case providerPaid:
		order.Status = domain.OrderStatusConfirmed
		order.PaymentStatus = domain.PaymentStatusPaid
		if order.PaymentMethod == "" {
			order.PaymentMethod = domain.PaymentMethodOnline
		}
	default:
		order.Status = s.entryStatus
		order.PaymentStatus = domain.PaymentStatusPending
		if order.PaymentReference != "" {
			order.PaymentStatus = domain.PaymentStatusPaid
		}
		if order.PaymentMethod == "" {
			order.PaymentMethod = domain.PaymentMethodDirect
		}
	}
	if !slices.Contains(domain.PaymentMethods, order.PaymentMethod) {
		return fmt.Errorf("%w: unsupported payment method %q", ErrOrderInvalidInput, order.PaymentMethod)
	}
	if order.Status == domain.OrderStatusConfirmed {
		order.ConfirmedAt = &now
	}
	return nil
}

// Confirm moves the order to confirmed and marks it paid. Repeating the call on a confirmed order
// returns it unchanged. Inventory deduction and the customer notification are best-effort.
func (s *orderService) Confirm(ctx context.Context, cmd ConfirmOrderCommand) (ConfirmOrderResult, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return ConfirmOrderResult{}, err
	}

	switch order.Status {
	case domain.OrderStatusConfirmed:
		return ConfirmOrderResult{Order: order}, nil
	case domain.OrderStatusCancelled, domain.OrderStatusCompleted:
		return ConfirmOrderResult{}, fmt.Errorf("%w: cannot confirm a %s order", ErrInvalidTransition, order.Status)
	}
	if !canTransition(order.Status, domain.OrderStatusConfirmed) {
		return ConfirmOrderResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, domain.OrderStatusConfirmed)
	}

	now := s.now()
	previous := order.Status
	expected := order.UpdatedAt

	order.Status = domain.OrderStatusConfirmed
	if order.PaymentStatus != domain.PaymentStatusPaid {
		order.PaymentStatus = domain.PaymentStatusPaid
	}
	order.ConfirmedAt = &now
	order.UpdatedAt = now

	updated, err := s.orders.Update(ctx, order, expectedUpdate(expected))
	if err != nil {
		return ConfirmOrderResult{}, s.mapRepositoryError(err)
	}
	order = updated

	s.metrics.OrderTransition(string(previous), string(order.Status))
	s.publishEvent(ctx, OrderEventStatusChanged, order, previous, nil, cmd.ActorID)

	report := s.deductInventory(ctx, order)
	if report != nil {
		order.InventoryDeducted = true
	}
	s.notify(ctx, NotificationOrderConfirmed, RecipientCustomer, order)

	return ConfirmOrderResult{Order: order, Inventory: report}, nil
}

// Cancel moves the order to cancelled and appends the reason to the notes. Stock is not restored.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	if order.Status == domain.OrderStatusCancelled {
		return order, nil
	}
	if !canTransition(order.Status, domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, order.Status)
	}

	now := s.now()
	previous := order.Status
	expected := order.UpdatedAt

	if reason := textutil.PlainText(cmd.Reason, maxCancelReasonRunes); reason != "" {
		order.Notes = textutil.AppendNote(order.Notes, reason, maxOrderNotesRunes)
	}
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	updated, err := s.orders.Update(ctx, order, expectedUpdate(expected))
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	order = updated

	s.metrics.OrderTransition(string(previous), string(order.Status))
	s.publishEvent(ctx, OrderEventStatusChanged, order, previous, nil, cmd.ActorID)
	s.notify(ctx, NotificationOrderCancelled, RecipientCustomer, order)

	return order, nil
}

// UpdateFields applies operator corrections without transition guards or side effects.
func (s *orderService) UpdateFields(ctx context.Context, cmd UpdateOrderFieldsCommand) (Order, error) {
	if cmd.Status == nil && cmd.PaymentStatus == nil && cmd.PaymentMethod == nil && cmd.PaymentReference == nil && cmd.Notes == nil {
		return Order{}, fmt.Errorf("%w: at least one field is required", ErrOrderInvalidInput)
	}

	var (
		status        OrderStatus
		paymentStatus PaymentStatus
		paymentMethod PaymentMethod
	)
	if cmd.Status != nil {
		status = OrderStatus(strings.ToLower(strings.TrimSpace(*cmd.Status)))
		if !slices.Contains(domain.OrderStatuses, status) {
			return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *cmd.Status)
		}
	}
	if cmd.PaymentStatus != nil {
		paymentStatus = PaymentStatus(strings.ToLower(strings.TrimSpace(*cmd.PaymentStatus)))
		if !slices.Contains(domain.PaymentStatuses, paymentStatus) {
			return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrOrderInvalidInput, *cmd.PaymentStatus)
		}
	}
	if cmd.PaymentMethod != nil {
		paymentMethod = PaymentMethod(strings.ToLower(strings.TrimSpace(*cmd.PaymentMethod)))
		if !slices.Contains(domain.PaymentMethods, paymentMethod) {
			return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrOrderInvalidInput, *cmd.PaymentMethod)
		}
	}

	order, err := s.GetOrder(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	previous := order.Status
	expected := order.UpdatedAt
	var fields []string

	if cmd.Status != nil && status != order.Status {
		order.Status = status
		switch status {
		case domain.OrderStatusConfirmed:
			if order.ConfirmedAt == nil {
				order.ConfirmedAt = &now
			}
		case domain.OrderStatusCancelled:
			if order.CancelledAt == nil {
				order.CancelledAt = &now
			}
		}
		fields = append(fields, "status")
	}
	if cmd.PaymentStatus != nil && paymentStatus != order.PaymentStatus {
		order.PaymentStatus = paymentStatus
		fields = append(fields, "paymentStatus")
	}
	if cmd.PaymentMethod != nil && paymentMethod != order.PaymentMethod {
		order.PaymentMethod = paymentMethod
		fields = append(fields, "paymentMethod")
	}
	if cmd.PaymentReference != nil {
		if ref := strings.TrimSpace(*cmd.PaymentReference); ref != order.PaymentReference {
			order.PaymentReference = ref
			fields = append(fields, "paymentReference")
		}
	}
	if cmd.Notes != nil {
		if notes := textutil.PlainText(*cmd.Notes, maxOrderNotesRunes); notes != order.Notes {
			order.Notes = notes
			fields = append(fields, "notes")
		}
	}
	if len(fields) == 0 {
		return order, nil
	}
	order.UpdatedAt = now

	updated, err := s.orders.Update(ctx, order, expectedUpdate(expected))
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	order = updated

	if previous != order.Status {
		s.metrics.OrderTransition(string(previous), string(order.Status))
	}
	s.publishEvent(ctx, OrderEventFieldsUpdated, order, previous, fields, cmd.ActorID)
	s.logger(ctx, "order.fields.updated", map[string]any{
		"orderId": order.ID,
		"fields":  fields,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return order, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	filter.UserID = strings.TrimSpace(filter.UserID)
	statuses := make([]string, 0, len(filter.Status))
	for _, raw := range filter.Status {
		status := strings.ToLower(strings.TrimSpace(raw))
		if status == "" {
			continue
		}
		if !slices.Contains(domain.OrderStatuses, OrderStatus(status)) {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		statuses = append(statuses, status)
	}
	filter.Status = statuses

	page, err := s.orders.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// deductInventory runs the ledger once per order. The claim flips the order's deduction flag
// before any stock moves, so a crash between claim and deduction skips the order rather than
// deducting twice. A nil report means no deduction ran.
func (s *orderService) deductInventory(ctx context.Context, order Order) *InventoryReport {
	if s.inventory == nil || order.InventoryDeducted {
		return nil
	}
	claimed, err := s.orders.ClaimInventoryDeduction(ctx, order.ID, s.now())
	if err != nil {
		s.logger(ctx, "order.inventory.claim_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return nil
	}
	if !claimed {
		return nil
	}
	report, err := s.inventory.ReserveAndDeduct(ctx, order.ID, order.Items)
	if err != nil {
		s.logger(ctx, "order.inventory.deduct_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return nil
	}
	if report.Failed() {
		s.logger(ctx, "order.inventory.partial_failure", map[string]any{
			"orderId":     order.ID,
			"adjustments": len(report.Adjustments),
		})
	}
	return &report
}

func (s *orderService) resolveContact(ctx context.Context, userID string, contact OrderContact, addr *Address) (OrderContact, error) {
	contact.Email = strings.TrimSpace(contact.Email)
	contact.Phone = strings.TrimSpace(contact.Phone)
	if !contact.Reachable() && s.users != nil {
		profile, err := s.users.FindByID(ctx, userID)
		switch {
		case err == nil:
			contact.Email = strings.TrimSpace(profile.Email)
			contact.Phone = strings.TrimSpace(profile.PhoneNumber)
		case isRepoNotFound(err):
		default:
			return OrderContact{}, fmt.Errorf("order: load user contact: %w", err)
		}
	}
	if contact.Phone == "" && addr != nil && addr.Phone != nil {
		contact.Phone = strings.TrimSpace(*addr.Phone)
	}
	return contact, nil
}

func (s *orderService) notify(ctx context.Context, template NotificationTemplate, audience RecipientKind, order Order) {
	if s.notifications == nil {
		return
	}
	s.notifications.Enqueue(ctx, Notification{Template: template, Audience: audience, Order: order})
}

func (s *orderService) publishEvent(ctx context.Context, eventType OrderEventType, order Order, previous OrderStatus, fields []string, actor string) {
	if s.events == nil {
		return
	}
	event := OrderEvent{
		ID:             orderEventIDPrefix + s.newID(),
		Type:           eventType,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		PaymentStatus:  string(order.PaymentStatus),
		Fields:         slices.Clone(fields),
		GrandTotal:     order.Totals.GrandTotal,
		Currency:       order.Currency,
		ActorID:        strings.TrimSpace(actor),
		OccurredAt:     s.now(),
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   string(event.Type),
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.Status,
		})
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var coded *repositories.CodedError
	if errors.As(err, &coded) && coded.Code == repositories.OrderErrorInvalidInput {
		return fmt.Errorf("%w: %s", ErrOrderInvalidInput, coded.Message)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

// ensureSessionUnused rejects a provider session that already paid for an order. It reads, so it
// runs before the first write of the create transaction.
func (s *orderService) ensureSessionUnused(ctx context.Context, providerOrderID string) error {
	orderID, err := s.orders.FindPaymentSession(ctx, providerOrderID)
	if err == nil {
		return fmt.Errorf("%w: session %s redeemed by %s", ErrPaymentSessionUsed, providerOrderID, orderID)
	}
	if isRepoNotFound(err) {
		return nil
	}
	return s.mapRepositoryError(err)
}

func (s *orderService) mapSessionError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: %v", ErrPaymentSessionUsed, err)
	}
	return s.mapRepositoryError(err)
}

// ConfigureOrderCounter stores the step and upper bound of the order number sequence.
func ConfigureOrderCounter(ctx context.Context, counters repositories.CounterRepository) error {
	if counters == nil {
		return errors.New("order counter: counter repository is required")
	}
	limit := orderSequenceMax
	if err := counters.Configure(ctx, orderCounterID, repositories.CounterConfig{Step: 1, MaxValue: &limit}); err != nil {
		return fmt.Errorf("configure order counter: %w", err)
	}
	return nil
}

func (s *orderService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, orderCounterID, 1)
	if err != nil {
		var coded *repositories.CodedError
		if errors.As(err, &coded) && coded.Code == repositories.CounterErrorExhausted {
			return "", fmt.Errorf("%w: %s", ErrOrderNumbersExhausted, coded.Message)
		}
		return "", s.mapRepositoryError(err)
	}
	return fmt.Sprintf("SF-%04d-%06d", now.Year(), seq), nil
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderID() string {
	return orderIDPrefix + s.newID()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// mapCartClearError reports a cart that changed or vanished between the checkout read and the
// order write. The surrounding transaction is rolled back so no order is left behind.
func mapCartClearError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: cart was already checked out", ErrEmptyCart)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: cart changed during checkout", ErrOrderConflict)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func usableShippingAddress(addr *Address) bool {
	if addr == nil {
		return false
	}
	for _, field := range []string{addr.Line1, addr.City, addr.PostalCode, addr.Country} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

func cloneOrderItems(items []OrderLineItem) []OrderLineItem {
	cloned := make([]OrderLineItem, len(items))
	for i, item := range items {
		cloned[i] = item
		cloned[i].Size = cloneStringPtr(item.Size)
		cloned[i].Height = cloneStringPtr(item.Height)
	}
	return cloned
}

func cloneStringPtr(value *string) *string {
	if value == nil {
		return nil
	}
	ref := *value
	return &ref
}

func expectedUpdate(ts time.Time) *time.Time {
	if ts.IsZero() {
		return nil
	}
	return &ts
}

func canTransition(current, target OrderStatus) bool {
	if current == target {
		return true
	}
	next, ok := orderStateTransitions[current]
	if !ok {
		return false
	}
	return slices.Contains(next, target)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
