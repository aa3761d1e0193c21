// Package postgres implements store.Repository on PostgreSQL via database/sql
// and the pgx stdlib driver. All multi-row order and stock mutations run in
// serializable transactions with explicit row locks.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"duckbunn/backend/internal/domain"
	"duckbunn/backend/internal/store"
	"duckbunn/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	barcode TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	image_url TEXT NOT NULL DEFAULT '',
	quantity INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	gender TEXT NOT NULL DEFAULT '',
	points BIGINT NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	order_code TEXT NOT NULL UNIQUE,
	user_id TEXT NOT NULL,
	customer_id TEXT NOT NULL DEFAULT '',
	shift_id TEXT NOT NULL,
	total_cents BIGINT NOT NULL,
	used_points BIGINT NOT NULL DEFAULT 0,
	earned_points BIGINT NOT NULL DEFAULT 0,
	payment_method TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders (status, created_at);
CREATE TABLE IF NOT EXISTS order_items (
	order_id TEXT NOT NULL REFERENCES orders(id),
	product_id TEXT NOT NULL,
	name TEXT NOT NULL,
	barcode TEXT NOT NULL DEFAULT '',
	price_cents BIGINT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	quantity INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id);
CREATE TABLE IF NOT EXISTS shifts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	opening_balance TEXT NOT NULL,
	opening_total_cents BIGINT NOT NULL,
	opened_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	closing_balance TEXT,
	closing_total_cents BIGINT NOT NULL DEFAULT 0,
	sales_total_cents BIGINT NOT NULL DEFAULT 0,
	difference_cents BIGINT NOT NULL DEFAULT 0,
	closed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS goods_documents (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL,
	doc_type TEXT NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS goods_items (
	document_id TEXT NOT NULL REFERENCES goods_documents(id),
	product_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price_cents BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) beginSerializable(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

// Products.

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if p.ID == "" {
		p.ID = xid.New("prod")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, name, barcode, price_cents, category, image_url, quantity)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.Barcode, p.PriceCents, p.Category, p.ImageURL, p.Quantity)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx,
		`SELECT id, name, barcode, price_cents, category, image_url, quantity
		 FROM products WHERE id = $1`, id))
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, barcode, price_cents, category, image_url, quantity
		 FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT id, name, barcode, price_cents, category, image_url, quantity
		 FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Product{}, err
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
	_, err = tx.ExecContext(ctx,
		`UPDATE products SET name = $2, barcode = $3, price_cents = $4, category = $5, image_url = $6
		 WHERE id = $1`,
		p.ID, p.Name, p.Barcode, p.PriceCents, p.Category, p.ImageURL)
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Customers.

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error) {
	if c.ID == "" {
		c.ID = xid.New("cust")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (id, name, phone, email, address, gender, points)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Phone, c.Email, c.Address, c.Gender, c.Points)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return c, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id string) (domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, address, gender, points
		 FROM customers WHERE id = $1`, id))
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, phone, email, address, gender, points FROM customers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var out []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.Customer{}, err
	}
	defer func() { _ = tx.Rollback() }()

	c, err := scanCustomer(tx.QueryRowContext(ctx,
		`SELECT id, name, phone, email, address, gender, points
		 FROM customers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Customer{}, err
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
	_, err = tx.ExecContext(ctx,
		`UPDATE customers SET name = $2, phone = $3, email = $4, address = $5, gender = $6
		 WHERE id = $1`,
		c.ID, c.Name, c.Phone, c.Email, c.Address, c.Gender)
	if err != nil {
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Customer{}, err
	}
	return c, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Orders.

// CreateOrder reserves stock, settles loyalty points and records the pending
// order in one serializable transaction. Each product row is locked before
// its quantity check so concurrent checkouts cannot oversell.
func (s *Store) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, order_code, user_id, customer_id, shift_id, total_cents,
			used_points, earned_points, payment_method, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10)`,
		o.ID, o.Code, o.UserID, o.CustomerID, o.ShiftID, o.TotalCents,
		o.UsedPoints, o.EarnedPoints, o.PaymentMethod, o.CreatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	snapshots := make([]domain.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		var (
			name, barcode, category string
			priceCents              int64
			quantity                int
		)
		err := tx.QueryRowContext(ctx,
			`SELECT name, barcode, price_cents, category, quantity
			 FROM products WHERE id = $1 FOR UPDATE`, item.ProductID).
			Scan(&name, &barcode, &priceCents, &category, &quantity)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
		}
		if err != nil {
			return domain.Order{}, fmt.Errorf("lock product %s: %w", item.ProductID, err)
		}
		if quantity < item.Quantity {
			return domain.Order{}, fmt.Errorf("product %s has %d left: %w", item.ProductID, quantity, store.ErrOutOfStock)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE products SET quantity = quantity - $2 WHERE id = $1`,
			item.ProductID, item.Quantity)
		if err != nil {
			return domain.Order{}, fmt.Errorf("decrement stock %s: %w", item.ProductID, err)
		}

		snap := domain.OrderItem{
			ProductID:  item.ProductID,
			Name:       name,
			Barcode:    barcode,
			PriceCents: priceCents,
			Category:   category,
			Quantity:   item.Quantity,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, barcode, price_cents, category, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, snap.ProductID, snap.Name, snap.Barcode, snap.PriceCents, snap.Category, snap.Quantity)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
		snapshots = append(snapshots, snap)
	}

	if o.CustomerID != "" {
		if o.UsedPoints > 0 {
			var points int64
			err := tx.QueryRowContext(ctx,
				`SELECT points FROM customers WHERE id = $1 FOR UPDATE`, o.CustomerID).
				Scan(&points)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.Order{}, fmt.Errorf("customer %s: %w", o.CustomerID, store.ErrNotFound)
			}
			if err != nil {
				return domain.Order{}, fmt.Errorf("lock customer %s: %w", o.CustomerID, err)
			}
			if points < o.UsedPoints {
				return domain.Order{}, fmt.Errorf("customer has %d points: %w", points, store.ErrInsufficientPoints)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE customers SET points = points - $2 WHERE id = $1`,
				o.CustomerID, o.UsedPoints)
			if err != nil {
				return domain.Order{}, fmt.Errorf("redeem points: %w", err)
			}
		} else if o.EarnedPoints > 0 {
			res, err := tx.ExecContext(ctx,
				`UPDATE customers SET points = points + $2 WHERE id = $1`,
				o.CustomerID, o.EarnedPoints)
			if err != nil {
				return domain.Order{}, fmt.Errorf("accrue points: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.Order{}, fmt.Errorf("customer %s: %w", o.CustomerID, store.ErrNotFound)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit order: %w", err)
	}
	o.Status = domain.OrderStatusPending
	o.Items = snapshots
	return o, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}
	o.Items, err = s.orderItems(ctx, o.ID)
	return o, err
}

func (s *Store) GetOrderByCode(ctx context.Context, code string) (domain.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, selectOrder+` WHERE order_code = $1`, code))
	if err != nil {
		return domain.Order{}, err
	}
	o.Items, err = s.orderItems(ctx, o.ID)
	return o, err
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectOrder+` ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		selectOrder+` WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) MarkOrderPaid(ctx context.Context, code string) (domain.Order, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = 'paid' WHERE order_code = $1`, code)
	if err != nil {
		return domain.Order{}, fmt.Errorf("mark paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Order{}, store.ErrNotFound
	}
	return s.GetOrderByCode(ctx, code)
}

// CancelOrder flips a pending order to cancelled and returns its reserved
// stock. The status guard in the UPDATE makes the transition one-way: paid
// and already-cancelled orders are left untouched.
func (s *Store) CancelOrder(ctx context.Context, orderID string) error {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = 'cancelled' WHERE id = $1 AND status = 'pending'`, orderID)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check order status: %w", err)
		}
		return fmt.Errorf("order is %s: %w", status, store.ErrInvalidState)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE products p SET quantity = p.quantity + oi.quantity
		 FROM order_items oi
		 WHERE oi.order_id = $1 AND p.id = oi.product_id`, orderID)
	if err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListStalePendingOrders(ctx context.Context, olderThan time.Time) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		selectOrder+` WHERE status = 'pending' AND created_at < $1 ORDER BY created_at`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (s *Store) RevenueByDate(ctx context.Context) ([]domain.RevenueByDate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT to_char(created_at, 'YYYY-MM-DD') AS day, COALESCE(SUM(total_cents), 0)
		 FROM orders WHERE status = 'paid'
		 GROUP BY day ORDER BY day DESC`)
	if err != nil {
		return nil, fmt.Errorf("revenue by date: %w", err)
	}
	defer rows.Close()

	var out []domain.RevenueByDate
	for rows.Next() {
		var r domain.RevenueByDate
		if err := rows.Scan(&r.Date, &r.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RevenueByProduct(ctx context.Context) ([]domain.RevenueByProduct, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT oi.name, SUM(oi.quantity), SUM(oi.quantity * oi.price_cents)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.status = 'paid'
		 GROUP BY oi.name ORDER BY 3 DESC`)
	if err != nil {
		return nil, fmt.Errorf("revenue by product: %w", err)
	}
	defer rows.Close()

	var out []domain.RevenueByProduct
	for rows.Next() {
		var r domain.RevenueByProduct
		if err := rows.Scan(&r.ProductName, &r.TotalQuantity, &r.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Shifts.

func (s *Store) OpenShift(ctx context.Context, sh domain.Shift) (domain.Shift, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM shifts WHERE user_id = $1 AND status = 'open' FOR UPDATE`, sh.UserID).
		Scan(&existing)
	if err == nil {
		return domain.Shift{}, fmt.Errorf("shift %s: %w", existing, store.ErrShiftAlreadyOpen)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Shift{}, fmt.Errorf("check open shift: %w", err)
	}

	opening, err := json.Marshal(sh.OpeningBalance)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("encode opening balance: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO shifts (id, user_id, status, opening_balance, opening_total_cents, opened_at)
		 VALUES ($1, $2, 'open', $3, $4, $5)`,
		sh.ID, sh.UserID, string(opening), sh.OpeningTotalCents, sh.OpenedAt)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("insert shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Shift{}, err
	}
	sh.Status = domain.ShiftStatusOpen
	return sh, nil
}

func (s *Store) GetOpenShiftByUser(ctx context.Context, userID string, salesScope string) (domain.Shift, error) {
	sh, err := scanShift(s.db.QueryRowContext(ctx,
		selectShift+` WHERE user_id = $1 AND status = 'open'`, userID))
	if errors.Is(err, store.ErrNotFound) {
		return domain.Shift{}, store.ErrNoOpenShift
	}
	if err != nil {
		return domain.Shift{}, err
	}
	sh.SalesTotalCents, err = s.shiftSales(ctx, s.db, sh.ID, salesScope)
	return sh, err
}

// CloseShift reconciles the drawer. Sales total is summed over every order
// referencing the shift regardless of status; difference is raw cash movement
// (closing minus opening), left for the caller to compare against the sales
// total.
func (s *Store) CloseShift(ctx context.Context, shiftID string, closingBalance domain.DenominationCount, closingTotal int64, salesScope string, closedAt time.Time) (domain.Shift, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.Shift{}, err
	}
	defer func() { _ = tx.Rollback() }()

	sh, err := scanShift(tx.QueryRowContext(ctx,
		selectShift+` WHERE id = $1 AND status = 'open' FOR UPDATE`, shiftID))
	if err != nil {
		return domain.Shift{}, err
	}

	sales, err := s.shiftSales(ctx, tx, shiftID, salesScope)
	if err != nil {
		return domain.Shift{}, err
	}

	closing, err := json.Marshal(closingBalance)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("encode closing balance: %w", err)
	}
	diff := closingTotal - sh.OpeningTotalCents
	_, err = tx.ExecContext(ctx,
		`UPDATE shifts SET status = 'closed', closing_balance = $2, closing_total_cents = $3,
			sales_total_cents = $4, difference_cents = $5, closed_at = $6
		 WHERE id = $1`,
		shiftID, string(closing), closingTotal, sales, diff, closedAt)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("close shift: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Shift{}, err
	}

	sh.Status = domain.ShiftStatusClosed
	sh.ClosingBalance = closingBalance
	sh.ClosingTotalCents = closingTotal
	sh.SalesTotalCents = sales
	sh.DifferenceCents = diff
	sh.ClosedAt = &closedAt
	return sh, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) shiftSales(ctx context.Context, q queryer, shiftID, salesScope string) (int64, error) {
	query := `SELECT COALESCE(SUM(total_cents), 0) FROM orders WHERE shift_id = $1`
	if salesScope == domain.ShiftSalesScopeCashOnly {
		query += ` AND payment_method = 'cash'`
	}
	var total int64
	if err := q.QueryRowContext(ctx, query, shiftID).Scan(&total); err != nil {
		return 0, fmt.Errorf("shift sales: %w", err)
	}
	return total, nil
}

// Goods documents.

// CreateGoodsDocument records the draft with the product price frozen per
// line at creation time. Stock does not move until approval.
func (s *Store) CreateGoodsDocument(ctx context.Context, d domain.GoodsDocument) (domain.GoodsDocument, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.GoodsDocument{}, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO goods_documents (id, code, doc_type, note, status, created_at)
		 VALUES ($1, $2, $3, $4, 'pending', $5)`,
		d.ID, d.Code, d.Type, d.Note, d.CreatedAt)
	if err != nil {
		return domain.GoodsDocument{}, fmt.Errorf("insert goods document: %w", err)
	}

	frozen := make([]domain.GoodsLineItem, 0, len(d.Items))
	for _, item := range d.Items {
		var priceCents int64
		err := tx.QueryRowContext(ctx,
			`SELECT price_cents FROM products WHERE id = $1`, item.ProductID).Scan(&priceCents)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GoodsDocument{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
		}
		if err != nil {
			return domain.GoodsDocument{}, fmt.Errorf("price product %s: %w", item.ProductID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO goods_items (document_id, product_id, quantity, price_cents)
			 VALUES ($1, $2, $3, $4)`,
			d.ID, item.ProductID, item.Quantity, priceCents)
		if err != nil {
			return domain.GoodsDocument{}, fmt.Errorf("insert goods item: %w", err)
		}
		frozen = append(frozen, domain.GoodsLineItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: priceCents,
		})
	}

	if err := tx.Commit(); err != nil {
		return domain.GoodsDocument{}, err
	}
	d.Status = domain.GoodsStatusPending
	d.Items = frozen
	return d, nil
}

func (s *Store) GetGoodsDocumentByID(ctx context.Context, id string) (domain.GoodsDocument, error) {
	d, err := scanGoodsDocument(s.db.QueryRowContext(ctx,
		`SELECT id, code, doc_type, note, status, created_at FROM goods_documents WHERE id = $1`, id))
	if err != nil {
		return domain.GoodsDocument{}, err
	}
	d.Items, err = s.goodsItems(ctx, d.ID)
	return d, err
}

func (s *Store) ListGoodsDocuments(ctx context.Context) ([]domain.GoodsDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code, doc_type, note, status, created_at
		 FROM goods_documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list goods documents: %w", err)
	}
	defer rows.Close()

	var out []domain.GoodsDocument
	for rows.Next() {
		d, err := scanGoodsDocument(rows)
		if err != nil {
			return nil, err
		}
		d.Items, err = s.goodsItems(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ApproveGoodsDocument applies the document's stock movement. Imports add
// quantity; exports lock each product row and refuse to drive stock below
// zero. Approval is one-way.
func (s *Store) ApproveGoodsDocument(ctx context.Context, id string) (domain.GoodsDocument, error) {
	tx, err := s.beginSerializable(ctx)
	if err != nil {
		return domain.GoodsDocument{}, err
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanGoodsDocument(tx.QueryRowContext(ctx,
		`SELECT id, code, doc_type, note, status, created_at
		 FROM goods_documents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.GoodsDocument{}, err
	}
	if d.Status == domain.GoodsStatusApproved {
		return domain.GoodsDocument{}, store.ErrAlreadyApproved
	}
	d.Items, err = s.goodsItemsTx(ctx, tx, d.ID)
	if err != nil {
		return domain.GoodsDocument{}, err
	}

	for _, item := range d.Items {
		switch d.Type {
		case domain.GoodsTypeImport:
			res, err := tx.ExecContext(ctx,
				`UPDATE products SET quantity = quantity + $2 WHERE id = $1`,
				item.ProductID, item.Quantity)
			if err != nil {
				return domain.GoodsDocument{}, fmt.Errorf("import stock %s: %w", item.ProductID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return domain.GoodsDocument{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
			}
		case domain.GoodsTypeExport:
			var quantity int
			err := tx.QueryRowContext(ctx,
				`SELECT quantity FROM products WHERE id = $1 FOR UPDATE`, item.ProductID).
				Scan(&quantity)
			if errors.Is(err, sql.ErrNoRows) {
				return domain.GoodsDocument{}, fmt.Errorf("product %s: %w", item.ProductID, store.ErrInvalidItem)
			}
			if err != nil {
				return domain.GoodsDocument{}, fmt.Errorf("lock product %s: %w", item.ProductID, err)
			}
			if quantity < item.Quantity {
				return domain.GoodsDocument{}, fmt.Errorf("product %s has %d left: %w", item.ProductID, quantity, store.ErrOutOfStock)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE products SET quantity = quantity - $2 WHERE id = $1`,
				item.ProductID, item.Quantity)
			if err != nil {
				return domain.GoodsDocument{}, fmt.Errorf("export stock %s: %w", item.ProductID, err)
			}
		default:
			return domain.GoodsDocument{}, fmt.Errorf("document type %q: %w", d.Type, store.ErrInvalidState)
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE goods_documents SET status = 'approved' WHERE id = $1`, id)
	if err != nil {
		return domain.GoodsDocument{}, fmt.Errorf("approve document: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.GoodsDocument{}, err
	}
	d.Status = domain.GoodsStatusApproved
	return d, nil
}

// Users.

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password, role, active, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (username) DO NOTHING`,
		u.Username, u.Password, u.Role, u.Active, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrDuplicate
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password, role, active, created_at FROM users WHERE username = $1`,
		username).
		Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UserAccount{}, store.ErrNotFound
	}
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, password, role, active, created_at FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password = $2 WHERE username = $1`, username, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Row scanning helpers.

const selectOrder = `SELECT id, order_code, user_id, customer_id, shift_id, total_cents,
	used_points, earned_points, payment_method, status, created_at FROM orders`

const selectShift = `SELECT id, user_id, status, opening_balance, opening_total_cents, opened_at,
	closing_balance, closing_total_cents, sales_total_cents, difference_cents, closed_at FROM shifts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Barcode, &p.PriceCents, &p.Category, &p.ImageURL, &p.Quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}
	return p, nil
}

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.Gender, &c.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Customer{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Customer{}, fmt.Errorf("scan customer: %w", err)
	}
	return c, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Code, &o.UserID, &o.CustomerID, &o.ShiftID, &o.TotalCents,
		&o.UsedPoints, &o.EarnedPoints, &o.PaymentMethod, &o.Status, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	return o, nil
}

func scanShift(row rowScanner) (domain.Shift, error) {
	var (
		sh       domain.Shift
		opening  string
		closing  sql.NullString
		closedAt sql.NullTime
	)
	err := row.Scan(&sh.ID, &sh.UserID, &sh.Status, &opening, &sh.OpeningTotalCents, &sh.OpenedAt,
		&closing, &sh.ClosingTotalCents, &sh.SalesTotalCents, &sh.DifferenceCents, &closedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Shift{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Shift{}, fmt.Errorf("scan shift: %w", err)
	}
	if err := json.Unmarshal([]byte(opening), &sh.OpeningBalance); err != nil {
		return domain.Shift{}, fmt.Errorf("decode opening balance: %w", err)
	}
	if closing.Valid && strings.TrimSpace(closing.String) != "" {
		if err := json.Unmarshal([]byte(closing.String), &sh.ClosingBalance); err != nil {
			return domain.Shift{}, fmt.Errorf("decode closing balance: %w", err)
		}
	}
	if closedAt.Valid {
		t := closedAt.Time
		sh.ClosedAt = &t
	}
	return sh, nil
}

func scanGoodsDocument(row rowScanner) (domain.GoodsDocument, error) {
	var d domain.GoodsDocument
	err := row.Scan(&d.ID, &d.Code, &d.Type, &d.Note, &d.Status, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GoodsDocument{}, store.ErrNotFound
	}
	if err != nil {
		return domain.GoodsDocument{}, fmt.Errorf("scan goods document: %w", err)
	}
	return d, nil
}

func collectOrders(rows *sql.Rows) ([]domain.Order, error) {
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) orderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, name, barcode, price_cents, category, quantity
		 FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("order items: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Barcode, &it.PriceCents, &it.Category, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) goodsItems(ctx context.Context, documentID string) ([]domain.GoodsLineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, quantity, price_cents FROM goods_items WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, fmt.Errorf("goods items: %w", err)
	}
	defer rows.Close()
	return collectGoodsItems(rows)
}

func (s *Store) goodsItemsTx(ctx context.Context, tx *sql.Tx, documentID string) ([]domain.GoodsLineItem, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT product_id, quantity, price_cents FROM goods_items WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, fmt.Errorf("goods items: %w", err)
	}
	defer rows.Close()
	return collectGoodsItems(rows)
}

func collectGoodsItems(rows *sql.Rows) ([]domain.GoodsLineItem, error) {
	var out []domain.GoodsLineItem
	for rows.Next() {
		var it domain.GoodsLineItem
		if err := rows.Scan(&it.ProductID, &it.Quantity, &it.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
