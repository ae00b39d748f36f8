package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) directorydomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&directorydomain.Issuer{}, &directorydomain.Customer{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return NewService(Params{DB: db, Log: zap.NewNop(), GenID: node})
}

func TestResolveIssuerAliases(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.CreateIssuer(ctx, directorydomain.CreateIssuerRequest{
		Name:       "Franquicia Centro",
		LegacyName: "Centro",
		TaxID:      "B12345678",
	})
	if err != nil {
		t.Fatalf("create issuer: %v", err)
	}
	if created.Slug != "franquicia-centro" {
		t.Fatalf("slug = %q, want franquicia-centro", created.Slug)
	}

	// Every alias resolves to the same canonical row.
	refs := []string{
		created.ID.String(),
		created.UID,
		created.Slug,
		"Franquicia Centro",
		"Centro",
	}
	for _, ref := range refs {
		resolved, err := svc.ResolveIssuer(ctx, ref)
		if err != nil {
			t.Fatalf("resolve %q: %v", ref, err)
		}
		if resolved.ID != created.ID {
			t.Fatalf("resolve %q = %d, want %d", ref, resolved.ID, created.ID)
		}
	}
}

func TestResolveIssuerNotFound(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, ref := range []string{"", "   ", "no-such-issuer"} {
		if _, err := svc.ResolveIssuer(ctx, ref); !errors.Is(err, directorydomain.ErrIssuerNotFound) {
			t.Fatalf("resolve %q err = %v, want ErrIssuerNotFound", ref, err)
		}
	}
}

func TestResolveCustomerScopedByType(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	restaurant, err := svc.CreateCustomer(ctx, directorydomain.CreateCustomerRequest{
		Type:  directorydomain.CustomerTypeRestaurant,
		Name:  "Asador El Roble",
		TaxID: "B87654321",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	resolved, err := svc.ResolveCustomer(ctx, directorydomain.CustomerTypeRestaurant, restaurant.UID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != restaurant.ID {
		t.Fatalf("resolved %d, want %d", resolved.ID, restaurant.ID)
	}

	// The same reference under the wrong type collection misses.
	if _, err := svc.ResolveCustomer(ctx, directorydomain.CustomerTypeFranchise, restaurant.UID); !errors.Is(err, directorydomain.ErrCustomerNotFound) {
		t.Fatalf("cross-type err = %v, want ErrCustomerNotFound", err)
	}

	if _, err := svc.ResolveCustomer(ctx, "SUPPLIER", restaurant.UID); !errors.Is(err, directorydomain.ErrInvalidCustomerType) {
		t.Fatalf("bad type err = %v, want ErrInvalidCustomerType", err)
	}
}

func TestCreateIssuerValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateIssuer(ctx, directorydomain.CreateIssuerRequest{Name: "  ", TaxID: "B1"}); !errors.Is(err, directorydomain.ErrInvalidName) {
		t.Fatalf("err = %v, want ErrInvalidName", err)
	}
	if _, err := svc.CreateIssuer(ctx, directorydomain.CreateIssuerRequest{Name: "X", TaxID: ""}); !errors.Is(err, directorydomain.ErrInvalidTaxID) {
		t.Fatalf("err = %v, want ErrInvalidTaxID", err)
	}
}

func TestSnapshotCopiesFiscalIdentity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issuer, err := svc.CreateIssuer(ctx, directorydomain.CreateIssuerRequest{
		Name:    "Franquicia Centro",
		TaxID:   "B12345678",
		Address: "Calle Mayor 1",
	})
	if err != nil {
		t.Fatalf("create issuer: %v", err)
	}

	snap := issuer.Snapshot()
	if snap.Name != issuer.Name || snap.TaxID != issuer.TaxID || snap.Address != issuer.Address {
		t.Fatalf("snapshot = %+v", snap)
	}
}
