package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	"github.com/repartia/treasury/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID        *snowflake.Node
	issuerRepo   repository.Repository[directorydomain.Issuer]
	customerRepo repository.Repository[directorydomain.Customer]
}

func NewService(p Params) directorydomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("directory.service"),
		genID: p.GenID,

		issuerRepo:   repository.ProvideStore[directorydomain.Issuer](p.DB),
		customerRepo: repository.ProvideStore[directorydomain.Customer](p.DB),
	}
}

func (s *Service) CreateIssuer(ctx context.Context, req directorydomain.CreateIssuerRequest) (directorydomain.Issuer, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return directorydomain.Issuer{}, directorydomain.ErrInvalidName
	}
	taxID := strings.TrimSpace(req.TaxID)
	if taxID == "" {
		return directorydomain.Issuer{}, directorydomain.ErrInvalidTaxID
	}

	now := time.Now().UTC()
	issuer := directorydomain.Issuer{
		ID:         s.genID.Generate(),
		UID:        uuid.NewString(),
		Slug:       slug.Make(name),
		LegacyName: strings.TrimSpace(req.LegacyName),
		Name:       name,
		TaxID:      taxID,
		Address:    strings.TrimSpace(req.Address),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.issuerRepo.Create(ctx, &issuer); err != nil {
		return directorydomain.Issuer{}, err
	}
	return issuer, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req directorydomain.CreateCustomerRequest) (directorydomain.Customer, error) {
	if !req.Type.Valid() {
		return directorydomain.Customer{}, directorydomain.ErrInvalidCustomerType
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return directorydomain.Customer{}, directorydomain.ErrInvalidName
	}
	taxID := strings.TrimSpace(req.TaxID)
	if taxID == "" {
		return directorydomain.Customer{}, directorydomain.ErrInvalidTaxID
	}

	now := time.Now().UTC()
	customer := directorydomain.Customer{
		ID:        s.genID.Generate(),
		Type:      req.Type,
		UID:       uuid.NewString(),
		Name:      name,
		TaxID:     taxID,
		Address:   strings.TrimSpace(req.Address),
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.customerRepo.Create(ctx, &customer); err != nil {
		return directorydomain.Customer{}, err
	}
	return customer, nil
}

// ResolveIssuer tolerates multiple simultaneously-valid aliases: UID, slug,
// legacy name, and the raw snowflake ID all resolve to the same canonical row.
func (s *Service) ResolveIssuer(ctx context.Context, ref string) (directorydomain.Issuer, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return directorydomain.Issuer{}, directorydomain.ErrIssuerNotFound
	}

	if id, err := snowflake.ParseString(ref); err == nil {
		if issuer, err := s.issuerRepo.FindOne(ctx, &directorydomain.Issuer{ID: id}); err == nil && issuer != nil {
			return *issuer, nil
		}
	}

	if issuer, err := s.issuerRepo.FindOne(ctx, &directorydomain.Issuer{UID: ref}); err != nil {
		return directorydomain.Issuer{}, err
	} else if issuer != nil {
		return *issuer, nil
	}

	if issuer, err := s.issuerRepo.FindOne(ctx, &directorydomain.Issuer{Slug: slug.Make(ref)}); err != nil {
		return directorydomain.Issuer{}, err
	} else if issuer != nil {
		return *issuer, nil
	}

	if issuer, err := s.issuerRepo.FindOne(ctx, &directorydomain.Issuer{LegacyName: ref}); err != nil {
		return directorydomain.Issuer{}, err
	} else if issuer != nil {
		return *issuer, nil
	}

	return directorydomain.Issuer{}, directorydomain.ErrIssuerNotFound
}

func (s *Service) ResolveCustomer(ctx context.Context, customerType directorydomain.CustomerType, ref string) (directorydomain.Customer, error) {
	if !customerType.Valid() {
		return directorydomain.Customer{}, directorydomain.ErrInvalidCustomerType
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return directorydomain.Customer{}, directorydomain.ErrCustomerNotFound
	}

	if id, err := snowflake.ParseString(ref); err == nil {
		if customer, err := s.customerRepo.FindOne(ctx, &directorydomain.Customer{ID: id, Type: customerType}); err == nil && customer != nil {
			return *customer, nil
		}
	}

	customer, err := s.customerRepo.FindOne(ctx, &directorydomain.Customer{UID: ref, Type: customerType})
	if err != nil {
		return directorydomain.Customer{}, err
	}
	if customer == nil {
		return directorydomain.Customer{}, directorydomain.ErrCustomerNotFound
	}
	return *customer, nil
}

func (s *Service) GetIssuer(ctx context.Context, id snowflake.ID) (directorydomain.Issuer, error) {
	issuer, err := s.issuerRepo.FindOne(ctx, &directorydomain.Issuer{ID: id})
	if err != nil {
		return directorydomain.Issuer{}, err
	}
	if issuer == nil {
		return directorydomain.Issuer{}, directorydomain.ErrIssuerNotFound
	}
	return *issuer, nil
}

func (s *Service) GetCustomer(ctx context.Context, id snowflake.ID) (directorydomain.Customer, error) {
	customer, err := s.customerRepo.FindOne(ctx, &directorydomain.Customer{ID: id})
	if err != nil {
		return directorydomain.Customer{}, err
	}
	if customer == nil {
		return directorydomain.Customer{}, directorydomain.ErrCustomerNotFound
	}
	return *customer, nil
}
