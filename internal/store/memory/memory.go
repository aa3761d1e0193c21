// Package memory implements store.Repository with mutex-guarded maps. It
// mirrors the postgres package's semantics (stock checks, status guards,
// loyalty settlement) and backs the test suites and local development runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"duckbunn/backend/internal/domain"
	"duckbunn/backend/internal/store"
	"duckbunn/backend/internal/xid"
)

type Store struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	customers map[string]domain.Customer
	orders    map[string]domain.Order
	shifts    map[string]domain.Shift
	goods     map[string]domain.GoodsDocument
	users     map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		customers: make(map[string]domain.Customer),
		orders:    make(map[string]domain.Order),
		shifts:    make(map[string]domain.Shift),
		goods:     make(map[string]domain.GoodsDocument),
		users:     make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store preloaded with a small catalog and two customers,
// enough to exercise every flow without external setup.
func NewSeeded() *Store {
	s := New()
	for _, p := range []domain.Product{
		{ID: "prod-espresso", Name: "Espresso", Barcode: "8990000000011", PriceCents: 1800, Category: "coffee", Quantity: 120},
		{ID: "prod-latte", Name: "Cafe Latte", Barcode: "8990000000028", PriceCents: 2800, Category: "coffee", Quantity: 80},
		{ID: "prod-croissant", Name: "Butter Croissant", Barcode: "8990000000035", PriceCents: 2200, Category: "bakery", Quantity: 40},
		{ID: "prod-water", Name: "Mineral Water 600ml", Barcode: "8990000000042", PriceCents: 500, Category: "drinks", Quantity: 200},
	} {
		s.products[p.ID] = p
	}
	for _, c := range []domain.Customer{
		{ID: "cust-ayu", Name: "Ayu Lestari", Phone: "+62-812-1111-2222", Email: "ayu@example.com", Points: 150},
		{ID: "cust-bima", Name: "Bima Prasetyo", Phone: "+62-813-3333-4444", Points: 0},
	} {
		s.customers[c.ID] = c
	}
	return s
}

// Products.

func (s *Store) CreateProduct(_ context.Context, p domain.Product) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = xid.New("prod")
	}
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, store.ErrNotFound
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Barcode != nil {
		p.Barcode = *req.Barcode
	}
	if req.PriceCents != nil {
		p.PriceCents = *req.PriceCents
	}
	if req.Category != nil {
		p.Category = *req.Category
	}
	if req.ImageURL != nil {
		p.ImageURL = *req.ImageURL
	}
	s.products[id] = p
	return p, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// Customers.

func (s *Store) CreateCustomer(_ context.Context, c domain.Customer) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = xid.New("cust")
	}
	s.customers[c.ID] = c
	return c, nil
}

func (s *Store) GetCustomerByID(_ context.Context, id string) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpdateCustomer(_ context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[id]
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Address != nil {
		c.Address = *req.Address
	}
	if req.Gender != nil {
		c.Gender = *req.Gender
	}
	s.customers[id] = c
	return c, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

// Orders.

func (s *Store) CreateOrder(_ context.Context, o domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything before mutating so a failed order leaves no trace,
	// matching the transactional behavior of the postgres store.
	snapshots := make([]domain.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return domain.Order{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
		}
		if p.Quantity < item.Quantity {
			return domain.Order{}, fmt.Errorf("product %s has %d left: %w", item.ProductID, p.Quantity, store.ErrOutOfStock)
		}
		snapshots = append(snapshots, domain.OrderItem{
			ProductID:  p.ID,
			Name:       p.Name,
			Barcode:    p.Barcode,
			PriceCents: p.PriceCents,
			Category:   p.Category,
			Quantity:   item.Quantity,
		})
	}
	if o.CustomerID != "" {
		c, ok := s.customers[o.CustomerID]
		if !ok {
			return domain.Order{}, fmt.Errorf("customer %s: %w", o.CustomerID, store.ErrNotFound)
		}
		if o.UsedPoints > 0 && c.Points < o.UsedPoints {
			return domain.Order{}, fmt.Errorf("customer has %d points: %w", c.Points, store.ErrInsufficientPoints)
		}
	}

	for _, item := range o.Items {
		p := s.products[item.ProductID]
		p.Quantity -= item.Quantity
		s.products[item.ProductID] = p
	}
	if o.CustomerID != "" {
		c := s.customers[o.CustomerID]
		if o.UsedPoints > 0 {
			c.Points -= o.UsedPoints
		} else {
			c.Points += o.EarnedPoints
		}
		s.customers[o.CustomerID] = c
	}

	o.Status = domain.OrderStatusPending
	o.Items = snapshots
	s.orders[o.ID] = o
	return o, nil
}

func (s *Store) GetOrderByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, store.ErrNotFound
	}
	return o, nil
}

func (s *Store) GetOrderByCode(_ context.Context, code string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.Code == code {
			return o, nil
		}
	}
	return domain.Order{}, store.ErrNotFound
}

func (s *Store) ListOrders(_ context.Context, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedOrdersLocked()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListOrdersByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.sortedOrdersLocked() {
		if o.CustomerID == customerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) MarkOrderPaid(_ context.Context, code string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.orders {
		if o.Code == code {
			o.Status = domain.OrderStatusPaid
			s.orders[id] = o
			return o, nil
		}
	}
	return domain.Order{}, store.ErrNotFound
}

func (s *Store) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if o.Status != domain.OrderStatusPending {
		return fmt.Errorf("order is %s: %w", o.Status, store.ErrInvalidState)
	}
	o.Status = domain.OrderStatusCancelled
	s.orders[orderID] = o
	for _, item := range o.Items {
		if p, ok := s.products[item.ProductID]; ok {
			p.Quantity += item.Quantity
			s.products[item.ProductID] = p
		}
	}
	return nil
}

func (s *Store) ListStalePendingOrders(_ context.Context, olderThan time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.sortedOrdersLocked() {
		if o.Status == domain.OrderStatusPending && o.CreatedAt.Before(olderThan) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) RevenueByDate(_ context.Context) ([]domain.RevenueByDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := make(map[string]int64)
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusPaid {
			byDay[o.CreatedAt.Format("2006-01-02")] += o.TotalCents
		}
	}
	out := make([]domain.RevenueByDate, 0, len(byDay))
	for day, total := range byDay {
		out = append(out, domain.RevenueByDate{Date: day, TotalCents: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) RevenueByProduct(_ context.Context) ([]domain.RevenueByProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type agg struct {
		qty   int64
		total int64
	}
	byName := make(map[string]agg)
	for _, o := range s.orders {
		if o.Status != domain.OrderStatusPaid {
			continue
		}
		for _, it := range o.Items {
			a := byName[it.Name]
			a.qty += int64(it.Quantity)
			a.total += int64(it.Quantity) * it.PriceCents
			byName[it.Name] = a
		}
	}
	out := make([]domain.RevenueByProduct, 0, len(byName))
	for name, a := range byName {
		out = append(out, domain.RevenueByProduct{ProductName: name, TotalQuantity: a.qty, TotalCents: a.total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalCents > out[j].TotalCents })
	return out, nil
}

// Shifts.

func (s *Store) OpenShift(_ context.Context, sh domain.Shift) (domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.shifts {
		if existing.UserID == sh.UserID && existing.Status == domain.ShiftStatusOpen {
			return domain.Shift{}, fmt.Errorf("shift %s: %w", existing.ID, store.ErrShiftAlreadyOpen)
		}
	}
	sh.Status = domain.ShiftStatusOpen
	s.shifts[sh.ID] = sh
	return sh, nil
}

func (s *Store) GetOpenShiftByUser(_ context.Context, userID string, salesScope string) (domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.shifts {
		if sh.UserID == userID && sh.Status == domain.ShiftStatusOpen {
			sh.SalesTotalCents = s.shiftSalesLocked(sh.ID, salesScope)
			return sh, nil
		}
	}
	return domain.Shift{}, store.ErrNoOpenShift
}

func (s *Store) CloseShift(_ context.Context, shiftID string, closingBalance domain.DenominationCount, closingTotal int64, salesScope string, closedAt time.Time) (domain.Shift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.shifts[shiftID]
	if !ok || sh.Status != domain.ShiftStatusOpen {
		return domain.Shift{}, store.ErrNotFound
	}
	sales := s.shiftSalesLocked(shiftID, salesScope)
	sh.Status = domain.ShiftStatusClosed
	sh.ClosingBalance = closingBalance
	sh.ClosingTotalCents = closingTotal
	sh.SalesTotalCents = sales
	sh.DifferenceCents = closingTotal - sh.OpeningTotalCents
	sh.ClosedAt = &closedAt
	s.shifts[shiftID] = sh
	return sh, nil
}

func (s *Store) shiftSalesLocked(shiftID, salesScope string) int64 {
	var total int64
	for _, o := range s.orders {
		if o.ShiftID != shiftID {
			continue
		}
		if salesScope == domain.ShiftSalesScopeCashOnly && o.PaymentMethod != "cash" {
			continue
		}
		total += o.TotalCents
	}
	return total
}

// Goods documents.

func (s *Store) CreateGoodsDocument(_ context.Context, d domain.GoodsDocument) (domain.GoodsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frozen := make([]domain.GoodsLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		p, ok := s.products[item.ProductID]
		if !ok {
			return domain.GoodsDocument{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
		}
		frozen = append(frozen, domain.GoodsLineItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: p.PriceCents,
		})
	}
	d.Status = domain.GoodsStatusPending
	d.Items = frozen
	s.goods[d.ID] = d
	return d, nil
}

func (s *Store) GetGoodsDocumentByID(_ context.Context, id string) (domain.GoodsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.goods[id]
	if !ok {
		return domain.GoodsDocument{}, store.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListGoodsDocuments(_ context.Context) ([]domain.GoodsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.GoodsDocument, 0, len(s.goods))
	for _, d := range s.goods {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ApproveGoodsDocument(_ context.Context, id string) (domain.GoodsDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.goods[id]
	if !ok {
		return domain.GoodsDocument{}, store.ErrNotFound
	}
	if d.Status == domain.GoodsStatusApproved {
		return domain.GoodsDocument{}, store.ErrAlreadyApproved
	}

	// Stage every line before touching stock so approval is all-or-nothing;
	// a bad line must not leave earlier lines applied.
	staged := make(map[string]domain.Product, len(d.Items))
	for _, item := range d.Items {
		p, ok := staged[item.ProductID]
		if !ok {
			p, ok = s.products[item.ProductID]
			if !ok {
				return domain.GoodsDocument{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
			}
		}
		switch d.Type {
		case domain.GoodsTypeImport:
			p.Quantity += item.Quantity
		case domain.GoodsTypeExport:
			p.Quantity -= item.Quantity
			if p.Quantity < 0 {
				return domain.GoodsDocument{}, fmt.Errorf("product %s has %d left: %w", item.ProductID, p.Quantity+item.Quantity, store.ErrOutOfStock)
			}
		default:
			return domain.GoodsDocument{}, fmt.Errorf("document type %q: %w", d.Type, store.ErrInvalidState)
		}
		staged[item.ProductID] = p
	}
	for id, p := range staged {
		s.products[id] = p
	}

	d.Status = domain.GoodsStatusApproved
	s.goods[id] = d
	return d, nil
}

// Users.

func (s *Store) CreateUser(_ context.Context, u domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.Username]; ok {
		return store.ErrDuplicate
	}
	s.users[u.Username] = u
	return nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = passwordHash
	s.users[username] = u
	return nil
}

func (s *Store) sortedOrdersLocked() []domain.Order {
	out := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}
