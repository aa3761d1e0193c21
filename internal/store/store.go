// Package store defines the persistence contract for the POS backend and the
// sentinel errors that callers branch on. Two implementations exist: the
// postgres package for production and the memory package for tests and local
// development.
package store

import (
	"context"
	"errors"
	"time"

	"duckbunn/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidItem         = errors.New("invalid item")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInvalidState        = errors.New("invalid state")
	ErrInsufficientPoints  = errors.New("insufficient points")
	ErrShiftAlreadyOpen    = errors.New("shift already open")
	ErrNoOpenShift         = errors.New("no open shift")
	ErrAlreadyApproved     = errors.New("document already approved")
	ErrCancelWindowExpired = errors.New("cancel window expired")
	ErrDuplicate           = errors.New("duplicate")
)

// Repository is the full persistence surface. Order mutations are atomic:
// stock, loyalty points and the order row commit or roll back together.
type Repository interface {
	// Products.
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	GetProductByID(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// Customers.
	CreateCustomer(ctx context.Context, c domain.Customer) (domain.Customer, error)
	GetCustomerByID(ctx context.Context, id string) (domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	// Orders.
	CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error)
	GetOrderByID(ctx context.Context, id string) (domain.Order, error)
	GetOrderByCode(ctx context.Context, code string) (domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]domain.Order, error)
	MarkOrderPaid(ctx context.Context, code string) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListStalePendingOrders(ctx context.Context, olderThan time.Time) ([]domain.Order, error)
	RevenueByDate(ctx context.Context) ([]domain.RevenueByDate, error)
	RevenueByProduct(ctx context.Context) ([]domain.RevenueByProduct, error)

	// Shifts.
	OpenShift(ctx context.Context, s domain.Shift) (domain.Shift, error)
	GetOpenShiftByUser(ctx context.Context, userID string, salesScope string) (domain.Shift, error)
	CloseShift(ctx context.Context, shiftID string, closingBalance domain.DenominationCount, closingTotal int64, salesScope string, closedAt time.Time) (domain.Shift, error)

	// Goods import/export documents.
	CreateGoodsDocument(ctx context.Context, d domain.GoodsDocument) (domain.GoodsDocument, error)
	GetGoodsDocumentByID(ctx context.Context, id string) (domain.GoodsDocument, error)
	ListGoodsDocuments(ctx context.Context) ([]domain.GoodsDocument, error)
	ApproveGoodsDocument(ctx context.Context, id string) (domain.GoodsDocument, error)

	// Auth users.
	CreateUser(ctx context.Context, u domain.UserAccount) error
	GetUserByUsername(ctx context.Context, username string) (domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username, passwordHash string) error
}
