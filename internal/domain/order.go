package domain

import (
	"time"

	"github.com/google/uuid"
)

// CartItem is a client-supplied cart line. Its price is advisory only.
type CartItem struct {
	Name      string   `json:"name"`
	Category  Category `json:"category,omitempty"`
	UnitPrice float64  `json:"unit_price"`
	Quantity  int      `json:"quantity"`
}

// LineItem is a priced line of a committed order
type LineItem struct {
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Name      string    `json:"name" db:"name"`
	Category  Category  `json:"category" db:"category"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
	Quantity  int       `json:"quantity" db:"quantity"`
}

// Order is an immutable ledger entry
type Order struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	Principal        string     `json:"principal" db:"principal"`
	IdempotencyToken string     `json:"idempotency_token,omitempty" db:"idempotency_token"`
	LineItems        []LineItem `json:"line_items"`
	Total            float64    `json:"total" db:"total"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
}
