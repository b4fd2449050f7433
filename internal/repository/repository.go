package repository

import "database/sql"

// Repositories bundles every store the server wires into its services
type Repositories struct {
	Products      ProductRepository
	Orders        OrderRepository
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
}

// NewPostgresRepositories builds all repositories on a shared pool
func NewPostgresRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Products:      NewProductRepository(db),
		Orders:        NewOrderRepository(db),
		Users:         NewUserRepository(db),
		RefreshTokens: NewRefreshTokenRepository(db),
	}
}

// NewMemoryRepositories builds process-local repositories
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Products:      NewMemoryProductRepository(),
		Orders:        NewMemoryOrderRepository(),
		Users:         NewMemoryUserRepository(),
		RefreshTokens: NewMemoryRefreshTokenRepository(),
	}
}
