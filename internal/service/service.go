// Package service holds the business rules of the POS backend: order
// lifecycle, loyalty accrual and redemption, shift reconciliation and the
// goods adjustment workflow. Storage-level atomicity lives in the store
// implementations; this layer validates, derives and orchestrates.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"duckbunn/backend/internal/cache"
	"duckbunn/backend/internal/domain"
	"duckbunn/backend/internal/mailer"
	"duckbunn/backend/internal/store"
	"duckbunn/backend/internal/xid"
)

// accrualBP is the loyalty accrual rate in basis points: 3% of the order
// total, rounded down.
const accrualBP = 300

type Options struct {
	CancelWindow time.Duration
	StaleAfter   time.Duration
	StatusTTL    time.Duration
	SalesScope   string
}

func (o *Options) fillDefaults() {
	if o.CancelWindow <= 0 {
		o.CancelWindow = 60 * time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 30 * time.Second
	}
	if o.StatusTTL <= 0 {
		o.StatusTTL = 10 * time.Second
	}
	if o.SalesScope == "" {
		o.SalesScope = domain.ShiftSalesScopeAll
	}
}

type Service struct {
	repo     store.Repository
	status   cache.OrderStatusCache
	notifier mailer.Notifier
	opts     Options
}

func New(repo store.Repository, status cache.OrderStatusCache, notifier mailer.Notifier, opts Options) *Service {
	opts.fillDefaults()
	if status == nil {
		status = cache.NoopOrderStatusCache{}
	}
	if notifier == nil {
		notifier = mailer.LogNotifier{}
	}
	return &Service{repo: repo, status: status, notifier: notifier, opts: opts}
}

// Orders.

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.OrderCreateResponse, error) {
	if req.UserID == "" {
		return domain.OrderCreateResponse{}, fmt.Errorf("user_id is required: %w", store.ErrInvalidInput)
	}
	if req.ShiftID == "" {
		return domain.OrderCreateResponse{}, fmt.Errorf("shift_id is required: %w", store.ErrInvalidInput)
	}
	if req.TotalCents <= 0 {
		return domain.OrderCreateResponse{}, fmt.Errorf("total_cents must be positive: %w", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.OrderCreateResponse{}, fmt.Errorf("at least one item is required: %w", store.ErrInvalidInput)
	}
	if req.UsedPoints < 0 {
		return domain.OrderCreateResponse{}, fmt.Errorf("used_points must not be negative: %w", store.ErrInvalidInput)
	}
	if req.UsedPoints > 0 && req.CustomerID == "" {
		return domain.OrderCreateResponse{}, fmt.Errorf("used_points requires a customer: %w", store.ErrInvalidInput)
	}
	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity <= 0 {
			return domain.OrderCreateResponse{}, fmt.Errorf("item needs product_id and positive quantity: %w", store.ErrInvalidItem)
		}
		items = append(items, domain.OrderItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	// Accrual and redemption are mutually exclusive on a single order: a
	// redeeming customer earns nothing on that purchase.
	var earned int64
	if req.CustomerID != "" && req.UsedPoints == 0 {
		earned = req.TotalCents * accrualBP / 10000
	}

	now := time.Now().UTC()
	order := domain.Order{
		ID:            xid.New("ord"),
		Code:          fmt.Sprintf("DH%d%s", now.UnixMilli(), req.UserID),
		UserID:        req.UserID,
		CustomerID:    req.CustomerID,
		ShiftID:       req.ShiftID,
		TotalCents:    req.TotalCents,
		UsedPoints:    req.UsedPoints,
		EarnedPoints:  earned,
		PaymentMethod: req.PaymentMethod,
		CreatedAt:     now,
		Items:         items,
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.OrderCreateResponse{}, err
	}
	return domain.OrderCreateResponse{
		OrderID:      created.ID,
		OrderCode:    created.Code,
		ShiftID:      created.ShiftID,
		TotalCents:   created.TotalCents,
		PointsUsed:   created.UsedPoints,
		PointsEarned: created.EarnedPoints,
	}, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.GetOrderByID(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	return s.repo.ListOrders(ctx, limit)
}

func (s *Service) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return s.repo.ListOrdersByCustomer(ctx, customerID)
}

// GetOrderStatus serves payment polling. Hits go to the short-TTL cache
// first; a miss reads the store and primes the cache.
func (s *Service) GetOrderStatus(ctx context.Context, code string) (domain.OrderStatus, error) {
	if code == "" {
		return domain.OrderStatus{}, fmt.Errorf("order code is required: %w", store.ErrInvalidInput)
	}
	if cached, ok, err := s.status.Get(ctx, code); err != nil {
		log.Printf("[service] WARN: order status cache read: %v", err)
	} else if ok {
		return *cached, nil
	}

	order, err := s.repo.GetOrderByCode(ctx, code)
	if err != nil {
		return domain.OrderStatus{}, err
	}
	status := domain.OrderStatus{OrderCode: order.Code, Status: order.Status, TotalCents: order.TotalCents}
	if err := s.status.Set(ctx, code, status, s.opts.StatusTTL); err != nil {
		log.Printf("[service] WARN: order status cache write: %v", err)
	}
	return status, nil
}

// MarkOrderPaid settles an order after payment confirmation and optionally
// emails the receipt. The email is fire-and-forget on a detached context so
// a slow SMTP server never holds up the payment path.
func (s *Service) MarkOrderPaid(ctx context.Context, code string, sendMail bool, email string) (domain.Order, error) {
	if code == "" {
		return domain.Order{}, fmt.Errorf("order code is required: %w", store.ErrInvalidInput)
	}
	order, err := s.repo.MarkOrderPaid(ctx, code)
	if err != nil {
		return domain.Order{}, err
	}
	if err := s.status.Invalidate(ctx, code); err != nil {
		log.Printf("[service] WARN: order status cache invalidate: %v", err)
	}

	if sendMail {
		to := email
		if to == "" && order.CustomerID != "" {
			if c, err := s.repo.GetCustomerByID(ctx, order.CustomerID); err == nil {
				to = c.Email
			}
		}
		if to != "" {
			go s.sendReceipt(order, to)
		} else {
			log.Printf("[service] WARN: receipt requested for %s but no email address known", order.Code)
		}
	}
	return order, nil
}

func (s *Service) sendReceipt(order domain.Order, to string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	msg, err := mailer.RenderInvoice(order)
	if err != nil {
		log.Printf("[service] WARN: render receipt %s: %v", order.Code, err)
		return
	}
	if err := s.notifier.Send(ctx, to, msg); err != nil {
		log.Printf("[service] WARN: send receipt %s: %v", order.Code, err)
	}
}

// CancelOrder voids a pending order inside the manual cancel window. Callers
// address the order by its code, the same identifier printed on the receipt.
func (s *Service) CancelOrder(ctx context.Context, code string) error {
	order, err := s.repo.GetOrderByCode(ctx, code)
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusPending {
		return fmt.Errorf("order is %s: %w", order.Status, store.ErrInvalidState)
	}
	if time.Since(order.CreatedAt) > s.opts.CancelWindow {
		return store.ErrCancelWindowExpired
	}
	if err := s.repo.CancelOrder(ctx, order.ID); err != nil {
		return err
	}
	if err := s.status.Invalidate(ctx, order.Code); err != nil {
		log.Printf("[service] WARN: order status cache invalidate: %v", err)
	}
	return nil
}

// CancelStalePending cancels every pending order older than the staleness
// cutoff and reports how many were cancelled. One failing order does not
// stop the sweep.
func (s *Service) CancelStalePending(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.opts.StaleAfter)
	stale, err := s.repo.ListStalePendingOrders(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, o := range stale {
		if err := s.repo.CancelOrder(ctx, o.ID); err != nil {
			// Likely raced with a payment or another sweep; skip it.
			if !errors.Is(err, store.ErrInvalidState) && !errors.Is(err, store.ErrNotFound) {
				log.Printf("[service] WARN: sweep cancel %s: %v", o.ID, err)
			}
			continue
		}
		if err := s.status.Invalidate(ctx, o.Code); err != nil {
			log.Printf("[service] WARN: order status cache invalidate: %v", err)
		}
		cancelled++
	}
	return cancelled, nil
}

// HandlePaymentWebhook parses the free-text notification from the payment
// provider, extracts the order code and settles the order.
func (s *Service) HandlePaymentWebhook(ctx context.Context, content string) (domain.Order, error) {
	code := extractOrderCode(content)
	if code == "" {
		return domain.Order{}, fmt.Errorf("no order code in notification: %w", store.ErrInvalidInput)
	}
	return s.MarkOrderPaid(ctx, code, false, "")
}

// An order code is DH followed by the millisecond timestamp and the user id
// suffix. Requiring the digit run keeps a bare "DH" in prose from matching.
var orderCodeRe = regexp.MustCompile(`DH\d+[A-Za-z0-9-]*`)

func extractOrderCode(content string) string {
	return orderCodeRe.FindString(content)
}

// Shifts.

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (domain.Shift, error) {
	if req.UserID == "" {
		return domain.Shift{}, fmt.Errorf("user_id is required: %w", store.ErrInvalidInput)
	}
	if len(req.OpeningBalance) == 0 {
		return domain.Shift{}, fmt.Errorf("opening_balance is required: %w", store.ErrInvalidInput)
	}
	for denom, count := range req.OpeningBalance {
		if denom <= 0 || count < 0 {
			return domain.Shift{}, fmt.Errorf("invalid denomination %d x %d: %w", denom, count, store.ErrInvalidInput)
		}
	}
	shift := domain.Shift{
		ID:                xid.New("shift"),
		UserID:            req.UserID,
		OpeningBalance:    req.OpeningBalance,
		OpeningTotalCents: req.OpeningBalance.TotalCents(),
		OpenedAt:          time.Now().UTC(),
	}
	return s.repo.OpenShift(ctx, shift)
}

func (s *Service) CurrentShift(ctx context.Context, userID string) (domain.Shift, error) {
	if userID == "" {
		return domain.Shift{}, fmt.Errorf("user_id is required: %w", store.ErrInvalidInput)
	}
	return s.repo.GetOpenShiftByUser(ctx, userID, s.opts.SalesScope)
}

func (s *Service) CloseShift(ctx context.Context, shiftID string, req domain.ShiftCloseRequest) (domain.Shift, error) {
	if shiftID == "" {
		return domain.Shift{}, fmt.Errorf("shift id is required: %w", store.ErrInvalidInput)
	}
	if len(req.ClosingBalance) == 0 {
		return domain.Shift{}, fmt.Errorf("closing_balance is required: %w", store.ErrInvalidInput)
	}
	for denom, count := range req.ClosingBalance {
		if denom <= 0 || count < 0 {
			return domain.Shift{}, fmt.Errorf("invalid denomination %d x %d: %w", denom, count, store.ErrInvalidInput)
		}
	}
	return s.repo.CloseShift(ctx, shiftID, req.ClosingBalance, req.ClosingBalance.TotalCents(), s.opts.SalesScope, time.Now().UTC())
}

// Goods documents.

func (s *Service) CreateGoodsDocument(ctx context.Context, req domain.GoodsCreateRequest) (domain.GoodsDocument, error) {
	if req.Code == "" {
		return domain.GoodsDocument{}, fmt.Errorf("code is required: %w", store.ErrInvalidInput)
	}
	if req.Type != domain.GoodsTypeImport && req.Type != domain.GoodsTypeExport {
		return domain.GoodsDocument{}, fmt.Errorf("type must be import or export: %w", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return domain.GoodsDocument{}, fmt.Errorf("at least one item is required: %w", store.ErrInvalidInput)
	}
	items := make([]domain.GoodsLineItem, 0, len(req.Items))
	for _, line := range req.Items {
		if line.ProductID == "" || line.Quantity <= 0 {
			return domain.GoodsDocument{}, fmt.Errorf("item needs product_id and positive quantity: %w", store.ErrInvalidItem)
		}
		items = append(items, domain.GoodsLineItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	doc := domain.GoodsDocument{
		ID:        xid.New("goods"),
		Code:      req.Code,
		Type:      req.Type,
		Note:      req.Note,
		CreatedAt: time.Now().UTC(),
		Items:     items,
	}
	return s.repo.CreateGoodsDocument(ctx, doc)
}

func (s *Service) GetGoodsDocument(ctx context.Context, id string) (domain.GoodsDocument, error) {
	return s.repo.GetGoodsDocumentByID(ctx, id)
}

func (s *Service) ListGoodsDocuments(ctx context.Context) ([]domain.GoodsDocument, error) {
	return s.repo.ListGoodsDocuments(ctx)
}

func (s *Service) ApproveGoodsDocument(ctx context.Context, id string) (domain.GoodsDocument, error) {
	if id == "" {
		return domain.GoodsDocument{}, fmt.Errorf("document id is required: %w", store.ErrInvalidInput)
	}
	return s.repo.ApproveGoodsDocument(ctx, id)
}

// Products.

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("name is required: %w", store.ErrInvalidInput)
	}
	if req.PriceCents < 0 || req.Quantity < 0 {
		return domain.Product{}, fmt.Errorf("price and quantity must not be negative: %w", store.ErrInvalidInput)
	}
	return s.repo.CreateProduct(ctx, domain.Product{
		Name:       req.Name,
		Barcode:    req.Barcode,
		PriceCents: req.PriceCents,
		Category:   req.Category,
		ImageURL:   req.ImageURL,
		Quantity:   req.Quantity,
	})
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.GetProductByID(ctx, id)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if req.PriceCents != nil && *req.PriceCents < 0 {
		return domain.Product{}, fmt.Errorf("price must not be negative: %w", store.ErrInvalidInput)
	}
	return s.repo.UpdateProduct(ctx, id, req)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.repo.DeleteProduct(ctx, id)
}

// Customers.

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if req.Name == "" {
		return domain.Customer{}, fmt.Errorf("name is required: %w", store.ErrInvalidInput)
	}
	if req.Points < 0 {
		return domain.Customer{}, fmt.Errorf("points must not be negative: %w", store.ErrInvalidInput)
	}
	return s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   req.Email,
		Address: req.Address,
		Gender:  req.Gender,
		Points:  req.Points,
	})
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return s.repo.GetCustomerByID(ctx, id)
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	return s.repo.UpdateCustomer(ctx, id, req)
}

func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	return s.repo.DeleteCustomer(ctx, id)
}

// Stats.

func (s *Service) RevenueByDate(ctx context.Context) ([]domain.RevenueByDate, error) {
	return s.repo.RevenueByDate(ctx)
}

func (s *Service) RevenueByProduct(ctx context.Context) ([]domain.RevenueByProduct, error) {
	return s.repo.RevenueByProduct(ctx)
}
