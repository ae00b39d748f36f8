// Package domain contains the issuer/customer directory models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// CustomerType selects which directory collection a customer is resolved
// against. Closed set.
type CustomerType string

const (
	CustomerTypeFranchise  CustomerType = "FRANCHISE"
	CustomerTypeRestaurant CustomerType = "RESTAURANT"
)

func (t CustomerType) Valid() bool {
	switch t {
	case CustomerTypeFranchise, CustomerTypeRestaurant:
		return true
	}
	return false
}

// Issuer is a billing entity (a franchise). An issuer may be looked up by
// UID, slug, or legacy name; all three aliases stay valid simultaneously.
type Issuer struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UID        string       `gorm:"type:text;not null;uniqueIndex"`
	Slug       string       `gorm:"type:text;not null;uniqueIndex"`
	LegacyName string       `gorm:"type:text;index"`
	Name       string       `gorm:"type:text;not null"`
	TaxID      string       `gorm:"type:text;not null"`
	Address    string       `gorm:"type:text"`
	Email      string       `gorm:"type:text"`
	Phone      string       `gorm:"type:text"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Issuer) TableName() string { return "issuers" }

// Customer is a billable counterparty, either a franchise or a restaurant.
type Customer struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Type      CustomerType `gorm:"type:text;not null;index"`
	UID       string       `gorm:"type:text;not null;uniqueIndex"`
	Name      string       `gorm:"type:text;not null"`
	TaxID     string       `gorm:"type:text;not null"`
	Address   string       `gorm:"type:text"`
	Email     string       `gorm:"type:text"`
	Phone     string       `gorm:"type:text"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Customer) TableName() string { return "customers" }

// Snapshot is a point-in-time copy of a party's identity and fiscal data,
// embedded into invoices and payment receipts so later directory edits never
// retroactively change an issued document.
type Snapshot struct {
	Name    string `json:"name"`
	TaxID   string `json:"tax_id"`
	Address string `json:"address,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

// Snapshot copies an issuer's fiscal identity.
func (i Issuer) Snapshot() Snapshot {
	return Snapshot{
		Name:    i.Name,
		TaxID:   i.TaxID,
		Address: i.Address,
		Email:   i.Email,
		Phone:   i.Phone,
	}
}

// Snapshot copies a customer's fiscal identity.
func (c Customer) Snapshot() Snapshot {
	return Snapshot{
		Name:    c.Name,
		TaxID:   c.TaxID,
		Address: c.Address,
		Email:   c.Email,
		Phone:   c.Phone,
	}
}
