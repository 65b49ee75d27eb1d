package model

import "github.com/iliyamo/booking-engine/internal/money"

// Role is the caller role carried in the access token's "role" claim.
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleOperator Role = "OPERATOR"
	RoleAdmin    Role = "ADMIN"
)

// Customer is the read-only projection of a `customers` row.
type Customer struct {
	ID     uint64 // customers.id
	UserID uint64 // customers.user_id (token subject)
	Name   string // customers.name
	Email  string // customers.email
}

// Listing is the read-only projection of a `listings` row. Nil rates
// fall back to the platform defaults.
type Listing struct {
	ID               uint64       // listings.id
	OperatorID       uint64       // listings.operator_id (token subject of the operator)
	Title            string       // listings.title
	Format           Format       // listings.booking_format
	BasePrice        money.Amount // listings.base_price_paise
	TaxRateBP        *int         // listings.tax_rate_bp
	AdvancePercent   *int         // listings.advance_percent
	CommissionRateBP *int         // listings.commission_rate_bp
}
