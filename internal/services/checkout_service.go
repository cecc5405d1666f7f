package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/platform/checkoutlock"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	checkoutOpDirect   = "direct"
	checkoutOpIntent   = "payment_intent"
	checkoutOpComplete = "complete_payment"

	paymentMetaUserID      = "userId"
	paymentMetaPaymentType = "paymentType"
	paymentMetaCartUpdated = "cartUpdatedAt"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutInProgress indicates another checkout of the same user holds the lock.
	ErrCheckoutInProgress = errors.New("checkout: another checkout is in progress")
	// ErrPaymentVerificationFailed indicates the payment evidence is forged or does not match the cart.
	ErrPaymentVerificationFailed = errors.New("checkout: invalid payment signature")
	// ErrPaymentProviderUnavailable indicates the payment provider could not be reached.
	ErrPaymentProviderUnavailable = errors.New("checkout: payment provider unavailable")
	// ErrAddressNotFound indicates the selected address does not belong to the user.
	ErrAddressNotFound = errors.New("checkout: address not found")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts         repositories.CartRepository
	Products      repositories.ProductRepository
	Addresses     repositories.AddressRepository
	Orders        OrderService
	Pricing       PricingCalculator
	Provider      payments.Provider
	Verifier      PaymentVerifier
	Locker        CheckoutLocker
	Notifications NotificationDispatcher
	Metrics       Metrics
	Clock         func() time.Time
	Logger        func(ctx context.Context, event string, fields map[string]any)

	Currency string
	// AdvanceAmount is charged upfront for advance payments, in minor units.
	AdvanceAmount int64
	// ReconcileAmount compares the provider's captured amount against the re-priced cart.
	ReconcileAmount bool
}

type checkoutService struct {
	carts         repositories.CartRepository
	products      repositories.ProductRepository
	addresses     repositories.AddressRepository
	orders        OrderService
	pricing       PricingCalculator
	provider      payments.Provider
	verifier      PaymentVerifier
	locker        CheckoutLocker
	notifications NotificationDispatcher
	metrics       Metrics
	now           func() time.Time
	logger        func(ctx context.Context, event string, fields map[string]any)
	currency      string
	advance       int64
	reconcile     bool
}

// checkoutSnapshot is the cart as read under the checkout lock together with its catalog snapshot.
type checkoutSnapshot struct {
	cart    Cart
	items   []OrderLineItem
	pricing PricingResult
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Addresses == nil {
		return nil, errors.New("checkout service: address repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout service: pricing calculator is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errors.New("checkout service: currency is required")
	}
	if deps.AdvanceAmount < 0 {
		return nil, errors.New("checkout service: advance amount must not be negative")
	}

	var locker CheckoutLocker = checkoutlock.NoopLocker{}
	if deps.Locker != nil {
		locker = deps.Locker
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:         deps.Carts,
		products:      deps.Products,
		addresses:     deps.Addresses,
		orders:        deps.Orders,
		pricing:       deps.Pricing,
		provider:      deps.Provider,
		verifier:      deps.Verifier,
		locker:        locker,
		notifications: deps.Notifications,
		metrics:       metrics,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		currency:  currency,
		advance:   deps.AdvanceAmount,
		reconcile: deps.ReconcileAmount,
	}, nil
}

// PlaceDirect turns the cart into an order paid out of band.
func (s *checkoutService) PlaceDirect(ctx context.Context, cmd PlaceDirectCommand) (order Order, err error) {
	defer func() { s.metrics.CheckoutOutcome(checkoutOpDirect, checkoutOutcome(err)) }()

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	reference := strings.TrimSpace(cmd.PaymentReference)
	if reference == "" {
		return Order{}, fmt.Errorf("%w: payment reference is required", ErrCheckoutInvalidInput)
	}
	method := domain.PaymentMethodDirect
	if raw := strings.TrimSpace(cmd.PaymentMethod); raw != "" {
		method = PaymentMethod(strings.ToLower(raw))
		if !slices.Contains(domain.PaymentMethods, method) {
			return Order{}, fmt.Errorf("%w: unknown payment method %q", ErrCheckoutInvalidInput, raw)
		}
	}

	release, err := s.acquire(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	address, err := s.resolveAddress(ctx, userID, cmd.AddressID)
	if err != nil {
		return Order{}, err
	}

	order, err = s.orders.Create(ctx, CreateOrderCommand{
		UserID:           userID,
		Currency:         s.currency,
		Items:            snap.items,
		Pricing:          snap.pricing,
		ShippingAddress:  address,
		PaymentType:      domain.PaymentTypeFull,
		PaymentMethod:    method,
		PaymentReference: reference,
		Cart:             &snap.cart,
	})
	if err != nil {
		return Order{}, err
	}

	s.notify(ctx, NotificationOrderPlaced, RecipientCustomer, order)
	s.logger(ctx, "checkout.direct.placed", map[string]any{
		"orderId":    order.ID,
		"userId":     userID,
		"grandTotal": order.Totals.GrandTotal,
	})
	return order, nil
}

// CreatePaymentIntent prices the current cart and opens a provider session for the amount due now.
func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (intent PaymentIntent, err error) {
	defer func() { s.metrics.CheckoutOutcome(checkoutOpIntent, checkoutOutcome(err)) }()

	if s.provider == nil {
		return PaymentIntent{}, fmt.Errorf("%w: payment provider is not configured", ErrCheckoutUnavailable)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	paymentType, err := parsePaymentType(cmd.PaymentType)
	if err != nil {
		return PaymentIntent{}, err
	}

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return PaymentIntent{}, err
	}
	totals, due, err := s.amountDue(snap.pricing, paymentType)
	if err != nil {
		return PaymentIntent{}, err
	}

	version := cartVersion(snap.cart)
	providerOrder, err := s.provider.CreateOrder(ctx, payments.CreateOrderRequest{
		Amount:      due,
		Currency:    s.currency,
		Description: fmt.Sprintf("Order for %d item(s)", len(snap.items)),
		Metadata: map[string]string{
			paymentMetaUserID:      userID,
			paymentMetaPaymentType: string(paymentType),
			paymentMetaCartUpdated: version,
		},
		IdempotencyKey: intentIdempotencyKey(userID, paymentType, version, due),
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_intent.failed", map[string]any{
			"userId": userID,
			"amount": due,
			"error":  err.Error(),
		})
		return PaymentIntent{}, fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	amount := providerOrder.Amount
	if amount == 0 {
		amount = due
	}
	return PaymentIntent{
		ProviderOrderID: providerOrder.ID,
		Provider:        providerOrder.Provider,
		ClientSecret:    providerOrder.ClientSecret,
		Amount:          amount,
		Currency:        s.currency,
		PaymentType:     paymentType,
		Totals:          totals,
	}, nil
}

// CompletePayment verifies the provider evidence, re-prices the cart and places a confirmed order.
// Client-supplied totals are never trusted.
func (s *checkoutService) CompletePayment(ctx context.Context, cmd CompletePaymentCommand) (order Order, err error) {
	defer func() { s.metrics.CheckoutOutcome(checkoutOpComplete, checkoutOutcome(err)) }()

	if s.verifier == nil {
		return Order{}, fmt.Errorf("%w: payment verifier is not configured", ErrCheckoutUnavailable)
	}
	userID := strings.TrimSpace(cmd.UserID)
	sessionRef := strings.TrimSpace(cmd.SessionRef)
	paymentRef := strings.TrimSpace(cmd.PaymentRef)
	signature := strings.TrimSpace(cmd.Signature)
	if userID == "" || sessionRef == "" || paymentRef == "" || signature == "" {
		return Order{}, fmt.Errorf("%w: user, session, payment reference and signature are required", ErrCheckoutInvalidInput)
	}
	paymentType, err := parsePaymentType(cmd.PaymentType)
	if err != nil {
		return Order{}, err
	}

	release, err := s.acquire(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	if err := s.verifySignature(ctx, userID, sessionRef, paymentRef, signature); err != nil {
		return Order{}, err
	}

	snap, err := s.snapshot(ctx, userID)
	if err != nil {
		return Order{}, err
	}
	_, due, err := s.amountDue(snap.pricing, paymentType)
	if err != nil {
		return Order{}, err
	}
	if s.reconcile {
		if err := s.reconcilePayment(ctx, userID, sessionRef, paymentRef, snap.cart, due); err != nil {
			return Order{}, err
		}
	}
	address, err := s.resolveAddress(ctx, userID, cmd.AddressID)
	if err != nil {
		return Order{}, err
	}

	order, err = s.orders.Create(ctx, CreateOrderCommand{
		UserID:           userID,
		Currency:         s.currency,
		Items:            snap.items,
		Pricing:          snap.pricing,
		ShippingAddress:  address,
		ProviderPaid:     true,
		PaymentType:      paymentType,
		PaymentReference: paymentRef,
		ProviderOrderID:  sessionRef,
		Cart:             &snap.cart,
	})
	if err != nil {
		return Order{}, err
	}

	s.notify(ctx, NotificationOrderPlaced, RecipientCustomer, order)
	s.notify(ctx, NotificationOrderReceived, RecipientAdmin, order)
	s.logger(ctx, "checkout.payment.completed", map[string]any{
		"orderId":     order.ID,
		"userId":      userID,
		"sessionRef":  sessionRef,
		"paymentType": string(paymentType),
		"grandTotal":  order.Totals.GrandTotal,
	})
	return order, nil
}

func (s *checkoutService) acquire(ctx context.Context, userID string) (func(), error) {
	unlock, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		if errors.Is(err, checkoutlock.ErrLocked) {
			return nil, ErrCheckoutInProgress
		}
		s.logger(ctx, "checkout.lock.failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
		return nil, fmt.Errorf("%w: checkout lock: %v", ErrCheckoutUnavailable, err)
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger(ctx, "checkout.lock.release_failed", map[string]any{
				"userId": userID,
				"error":  err.Error(),
			})
		}
	}, nil
}

func (s *checkoutService) verifySignature(ctx context.Context, userID, sessionRef, paymentRef, signature string) error {
	ok, err := s.verifier.VerifyEvidence(ctx, sessionRef, paymentRef, signature)
	if err != nil {
		s.metrics.PaymentVerification("error")
		s.logger(ctx, "checkout.payment.verifier_failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
	if !ok {
		s.metrics.PaymentVerification("mismatch")
		s.logger(ctx, "checkout.payment.signature_mismatch", map[string]any{
			"userId":     userID,
			"sessionRef": sessionRef,
			"paymentRef": paymentRef,
		})
		return ErrPaymentVerificationFailed
	}
	s.metrics.PaymentVerification("valid")
	return nil
}

// reconcilePayment asks the provider what was actually charged and compares it with the amount
// due for the re-priced cart. The session must have been opened for this version of the cart.
func (s *checkoutService) reconcilePayment(ctx context.Context, userID, sessionRef, paymentRef string, cart Cart, due int64) error {
	if s.provider == nil {
		return fmt.Errorf("%w: payment provider is not configured", ErrCheckoutUnavailable)
	}
	details, err := s.provider.LookupPayment(ctx, sessionRef)
	if err != nil {
		s.logger(ctx, "checkout.payment.lookup_failed", map[string]any{
			"userId":     userID,
			"sessionRef": sessionRef,
			"error":      err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrPaymentProviderUnavailable, err)
	}

	expected := payments.ChargeableAmount(due, s.currency)
	var reason string
	switch {
	case !details.Settled():
		reason = "payment is not settled"
	case details.PaymentRef != "" && details.PaymentRef != paymentRef:
		reason = "payment reference does not match session"
	case details.Metadata[paymentMetaUserID] != "" && details.Metadata[paymentMetaUserID] != userID:
		reason = "session belongs to another user"
	case details.Metadata[paymentMetaCartUpdated] != cartVersion(cart):
		reason = "cart changed since the session was opened"
	case !strings.EqualFold(details.Currency, s.currency):
		reason = "currency mismatch"
	case details.Amount != expected:
		reason = "amount mismatch"
	}
	if reason == "" {
		return nil
	}

	s.metrics.PaymentVerification("reconcile_mismatch")
	s.logger(ctx, "checkout.payment.reconcile_mismatch", map[string]any{
		"userId":     userID,
		"sessionRef": sessionRef,
		"reason":     reason,
		"expected":   expected,
		"charged":    details.Amount,
		"status":     string(details.Status),
	})
	return fmt.Errorf("%w: %s", ErrPaymentVerificationFailed, reason)
}

func cartVersion(cart Cart) string {
	return cart.UpdatedAt.UTC().Format(time.RFC3339Nano)
}

// snapshot reads the cart and copies the current catalog name, image and price onto each line.
func (s *checkoutService) snapshot(ctx context.Context, userID string) (checkoutSnapshot, error) {
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return checkoutSnapshot{}, ErrEmptyCart
		}
		return checkoutSnapshot{}, s.translateRepositoryError(err)
	}
	if cart.IsEmpty() {
		return checkoutSnapshot{}, ErrEmptyCart
	}

	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		if !slices.Contains(ids, item.ProductID) {
			ids = append(ids, item.ProductID)
		}
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return checkoutSnapshot{}, s.translateRepositoryError(err)
	}

	items := make([]OrderLineItem, 0, len(cart.Items))
	lines := make([]PricingLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return checkoutSnapshot{}, fmt.Errorf("%w: product %s is no longer available", ErrInvalidLineItem, item.ProductID)
		}
		if c := strings.TrimSpace(product.Currency); c != "" && !strings.EqualFold(c, s.currency) {
			return checkoutSnapshot{}, fmt.Errorf("%w: product %s is priced in %s", ErrInvalidLineItem, product.ID, c)
		}
		items = append(items, OrderLineItem{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			Size:      cloneStringPtr(item.Size),
			Height:    cloneStringPtr(item.Height),
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		lines = append(lines, PricingLine{UnitPrice: product.Price, Quantity: item.Quantity})
	}

	pricing, err := s.pricing.Calculate(lines)
	if err != nil {
		return checkoutSnapshot{}, err
	}
	for i := range items {
		items[i].Total = items[i].UnitPrice * int64(items[i].Quantity)
	}
	return checkoutSnapshot{cart: cart, items: items, pricing: pricing}, nil
}

func (s *checkoutService) resolveAddress(ctx context.Context, userID, addressID string) (*Address, error) {
	addressID = strings.TrimSpace(addressID)
	var (
		address Address
		err     error
	)
	if addressID != "" {
		address, err = s.addresses.FindByID(ctx, userID, addressID)
		if err != nil {
			if isRepoNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrAddressNotFound, addressID)
			}
			return nil, s.translateRepositoryError(err)
		}
	} else {
		address, err = s.addresses.FindDefaultShipping(ctx, userID)
		if err != nil {
			if isRepoNotFound(err) {
				return nil, ErrMissingShippingAddress
			}
			return nil, s.translateRepositoryError(err)
		}
	}
	return &address, nil
}

// amountDue returns the totals to report and the amount the provider charges now.
func (s *checkoutService) amountDue(pricing PricingResult, paymentType PaymentType) (OrderTotals, int64, error) {
	totals := pricing.Totals()
	if paymentType != domain.PaymentTypeAdvance {
		return totals, totals.GrandTotal, nil
	}
	if s.advance <= 0 {
		return OrderTotals{}, 0, fmt.Errorf("%w: advance payments are not configured", ErrCheckoutInvalidInput)
	}
	if totals.GrandTotal < s.advance {
		return OrderTotals{}, 0, ErrOrderBelowMinimumAdvance
	}
	totals.CODAdvancePayment = s.advance
	totals.CODRemainingPayment = totals.GrandTotal - s.advance
	return totals, s.advance, nil
}

func (s *checkoutService) notify(ctx context.Context, template NotificationTemplate, audience RecipientKind, order Order) {
	if s.notifications == nil {
		return
	}
	s.notifications.Enqueue(ctx, Notification{Template: template, Audience: audience, Order: order})
}

func (s *checkoutService) translateRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
	}
	return err
}

func parsePaymentType(raw PaymentType) (PaymentType, error) {
	paymentType := PaymentType(strings.ToLower(strings.TrimSpace(string(raw))))
	switch paymentType {
	case "":
		return domain.PaymentTypeFull, nil
	case domain.PaymentTypeFull, domain.PaymentTypeAdvance:
		return paymentType, nil
	default:
		return "", fmt.Errorf("%w: unknown payment type %q", ErrCheckoutInvalidInput, raw)
	}
}

// intentIdempotencyKey is stable for one cart version, so a retried request reuses the session.
func intentIdempotencyKey(userID string, paymentType PaymentType, version string, amount int64) string {
	base := strings.Join([]string{userID, string(paymentType), version, strconv.FormatInt(amount, 10)}, "|")
	sum := sha256.Sum256([]byte(base))
	return hex.EncodeToString(sum[:])
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCheckoutInProgress):
		return "locked"
	case errors.Is(err, ErrPaymentVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrEmptyCart),
		errors.Is(err, ErrMissingShippingAddress),
		errors.Is(err, ErrMissingContactChannel),
		errors.Is(err, ErrAddressNotFound),
		errors.Is(err, ErrInvalidLineItem),
		errors.Is(err, ErrOrderBelowMinimumAdvance),
		errors.Is(err, ErrCheckoutInvalidInput),
		errors.Is(err, ErrOrderInvalidInput):
		return "rejected"
	case errors.Is(err, ErrOrderConflict):
		return "conflict"
	default:
		return "error"
	}
}
