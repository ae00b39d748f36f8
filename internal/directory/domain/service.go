package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateIssuerRequest struct {
	Name       string
	LegacyName string
	TaxID      string
	Address    string
	Email      string
	Phone      string
}

type CreateCustomerRequest struct {
	Type    CustomerType
	Name    string
	TaxID   string
	Address string
	Email   string
	Phone   string
}

type Service interface {
	CreateIssuer(ctx context.Context, req CreateIssuerRequest) (Issuer, error)
	CreateCustomer(ctx context.Context, req CreateCustomerRequest) (Customer, error)

	// ResolveIssuer accepts a UID, slug, legacy name, or numeric ID and
	// returns the canonical issuer record.
	ResolveIssuer(ctx context.Context, ref string) (Issuer, error)
	ResolveCustomer(ctx context.Context, customerType CustomerType, ref string) (Customer, error)

	GetIssuer(ctx context.Context, id snowflake.ID) (Issuer, error)
	GetCustomer(ctx context.Context, id snowflake.ID) (Customer, error)
}

var (
	ErrIssuerNotFound      = errors.New("issuer_not_found")
	ErrCustomerNotFound    = errors.New("customer_not_found")
	ErrInvalidCustomerType = errors.New("invalid_customer_type")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidTaxID        = errors.New("invalid_tax_id")
)
