package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category groups catalog lines. The shop sells spare parts and workshop services.
type Category string

const (
	CategoryPart    Category = "part"
	CategoryService Category = "service"
)

// Categories lists every category in catalog lookup order.
var Categories = []Category{CategoryPart, CategoryService}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	return c == CategoryPart || c == CategoryService
}

// ParseCategory converts s into a Category
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	return c, c.Valid()
}

// Product represents a catalog line
type Product struct {
	ID                uuid.UUID `json:"id" db:"id"`
	Category          Category  `json:"category" db:"category"`
	Name              string    `json:"name" db:"name"`
	Description       string    `json:"description" db:"description"`
	Price             float64   `json:"price" db:"price"`
	QuantityAvailable int       `json:"quantity_available" db:"quantity_available"`
	ImageRef          string    `json:"image_ref,omitempty" db:"image_ref"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}
