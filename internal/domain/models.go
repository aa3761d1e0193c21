package domain

import "time"

type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode"`
	PriceCents int64  `json:"price_cents"`
	Category   string `json:"category"`
	ImageURL   string `json:"image_url,omitempty"`
	Quantity   int    `json:"quantity"`
}

type ProductCreateRequest struct {
	Name       string `json:"name"`
	Barcode    string `json:"barcode"`
	PriceCents int64  `json:"price_cents"`
	Category   string `json:"category"`
	ImageURL   string `json:"image_url,omitempty"`
	Quantity   int    `json:"quantity"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	Barcode    *string `json:"barcode,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	Category   *string `json:"category,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
}

type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Points  int64  `json:"points"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Points  int64  `json:"points,omitempty"`
}

type CustomerUpdateRequest struct {
	Name    *string `json:"name,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Email   *string `json:"email,omitempty"`
	Address *string `json:"address,omitempty"`
	Gender  *string `json:"gender,omitempty"`
}

// OrderItem is a frozen snapshot of the product at the time of sale. Later
// product edits never change a historical order. ProductID is kept as the
// join key for stock release on cancellation.
type OrderItem struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode"`
	PriceCents int64  `json:"price_cents"`
	Category   string `json:"category"`
	Quantity   int    `json:"quantity"`
}

type Order struct {
	ID            string      `json:"id"`
	Code          string      `json:"order_code"`
	UserID        string      `json:"user_id"`
	CustomerID    string      `json:"customer_id,omitempty"`
	ShiftID       string      `json:"shift_id"`
	TotalCents    int64       `json:"total_cents"`
	UsedPoints    int64       `json:"used_points"`
	EarnedPoints  int64       `json:"earned_points"`
	PaymentMethod string      `json:"payment_method,omitempty"`
	Status        string      `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	Items         []OrderItem `json:"items,omitempty"`
}

type OrderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type OrderCreateRequest struct {
	UserID        string             `json:"user_id"`
	CustomerID    string             `json:"customer_id,omitempty"`
	ShiftID       string             `json:"shift_id"`
	TotalCents    int64              `json:"total_cents"`
	UsedPoints    int64              `json:"used_points,omitempty"`
	PaymentMethod string             `json:"payment_method,omitempty"`
	Items         []OrderLineRequest `json:"items"`
}

type OrderCreateResponse struct {
	OrderID      string `json:"order_id"`
	OrderCode    string `json:"order_code"`
	ShiftID      string `json:"shift_id"`
	TotalCents   int64  `json:"total_cents"`
	PointsUsed   int64  `json:"points_used"`
	PointsEarned int64  `json:"points_earned"`
}

type OrderStatus struct {
	OrderCode  string `json:"order_code"`
	Status     string `json:"status"`
	TotalCents int64  `json:"total_cents"`
}

type MarkPaidRequest struct {
	SendMail bool   `json:"send_mail,omitempty"`
	Email    string `json:"email,omitempty"`
}

type PaymentWebhookRequest struct {
	Content string `json:"content"`
}

// DenominationCount maps a banknote or coin denomination (in cents) to how
// many of it were counted in the drawer. encoding/json represents the integer
// keys as strings, which is also the serialized form persisted on shifts.
type DenominationCount map[int64]int

func (d DenominationCount) TotalCents() int64 {
	var total int64
	for denom, count := range d {
		total += denom * int64(count)
	}
	return total
}

type Shift struct {
	ID                string            `json:"id"`
	UserID            string            `json:"user_id"`
	Status            string            `json:"status"`
	OpeningBalance    DenominationCount `json:"opening_balance"`
	OpeningTotalCents int64             `json:"opening_total_cents"`
	OpenedAt          time.Time         `json:"opened_at"`
	ClosingBalance    DenominationCount `json:"closing_balance,omitempty"`
	ClosingTotalCents int64             `json:"closing_total_cents,omitempty"`
	SalesTotalCents   int64             `json:"sales_total_cents"`
	DifferenceCents   int64             `json:"difference_cents,omitempty"`
	ClosedAt          *time.Time        `json:"closed_at,omitempty"`
}

type ShiftOpenRequest struct {
	UserID         string            `json:"user_id"`
	OpeningBalance DenominationCount `json:"opening_balance"`
}

type ShiftCloseRequest struct {
	ClosingBalance DenominationCount `json:"closing_balance"`
}

type ShiftResponse struct {
	Shift Shift `json:"shift"`
}

type GoodsLineItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type GoodsDocument struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Type      string          `json:"type"`
	Note      string          `json:"note,omitempty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Items     []GoodsLineItem `json:"items"`
}

type GoodsLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type GoodsCreateRequest struct {
	Code  string             `json:"code"`
	Type  string             `json:"type"`
	Note  string             `json:"note,omitempty"`
	Items []GoodsLineRequest `json:"items"`
}

type RevenueByDate struct {
	Date       string `json:"date"`
	TotalCents int64  `json:"total_cents"`
}

type RevenueByProduct struct {
	ProductName   string `json:"product_name"`
	TotalQuantity int64  `json:"total_quantity"`
	TotalCents    int64  `json:"total_cents"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"
)

const (
	ShiftStatusOpen   = "open"
	ShiftStatusClosed = "closed"
)

const (
	GoodsStatusPending  = "pending"
	GoodsStatusApproved = "approved"

	GoodsTypeImport = "import"
	GoodsTypeExport = "export"
)

const (
	ShiftSalesScopeAll      = "all"
	ShiftSalesScopeCashOnly = "cash_only"
)
