package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	auditrepository "github.com/repartia/treasury/internal/audit/repository"
	auditservice "github.com/repartia/treasury/internal/audit/service"
	"github.com/repartia/treasury/internal/clock"
	"github.com/repartia/treasury/internal/config"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	directoryservice "github.com/repartia/treasury/internal/directory/service"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	expenseservice "github.com/repartia/treasury/internal/expense/service"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	invoiceservice "github.com/repartia/treasury/internal/invoice/service"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	vault    taxvaultdomain.Service
	invoices invoicedomain.Service
	expenses expensedomain.Service
	issuer   directorydomain.Issuer
	customer directorydomain.Customer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&directorydomain.Issuer{},
		&directorydomain.Customer{},
		&invoicedomain.Invoice{},
		&paymentdomain.PaymentReceipt{},
		&taxvaultdomain.VaultEntry{},
		&expensedomain.Expense{},
		&auditdomain.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	cfg := config.Config{
		DueDays:               30,
		DefaultTaxRate:        "0.21",
		IRPFRate:              "0.15",
		ReconcilePricePerUnit: "2.00",
	}

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Repo: auditrepository.Provide(),
	})
	dirSvc := directoryservice.NewService(directoryservice.Params{
		DB: db, Log: log, GenID: node,
	})
	vaultSvc := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: fake, Cfg: cfg, AuditSvc: auditSvc,
	})
	invSvc := invoiceservice.NewService(invoiceservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Cfg: cfg,
		Directory: dirSvc, TaxVault: vaultSvc, AuditSvc: auditSvc,
	})
	expSvc := expenseservice.NewService(expenseservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, TaxVault: vaultSvc, AuditSvc: auditSvc,
	})

	ctx := context.Background()
	issuer, err := dirSvc.CreateIssuer(ctx, directorydomain.CreateIssuerRequest{
		Name: "Franquicia Centro", TaxID: "B12345678",
	})
	if err != nil {
		t.Fatalf("create issuer: %v", err)
	}
	customer, err := dirSvc.CreateCustomer(ctx, directorydomain.CreateCustomerRequest{
		Type: directorydomain.CustomerTypeRestaurant, Name: "Asador El Roble", TaxID: "B87654321",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	return &testEnv{
		db:       db,
		clock:    fake,
		vault:    vaultSvc,
		invoices: invSvc,
		expenses: expSvc,
		issuer:   issuer,
		customer: customer,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// issueInvoice issues a two-line invoice: subtotal 80, output tax 11.30.
func issueInvoice(t *testing.T, env *testEnv) invoicedomain.Invoice {
	t.Helper()
	ctx := context.Background()
	id, err := env.invoices.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		IssuerRef:    env.issuer.ID.String(),
		CustomerRef:  env.customer.ID.String(),
		CustomerType: env.customer.Type,
		Lines: []invoicedomain.LineRequest{
			{Description: "Repartos", Quantity: dec("3"), UnitPrice: dec("10"), TaxRate: dec("0.21")},
			{Description: "Cuota", Quantity: dec("1"), UnitPrice: dec("50"), TaxRate: dec("0.10")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	invoice, err := env.invoices.IssueInvoice(ctx, id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return invoice
}

func TestIssuanceAccumulatesOutputTaxAndIrpf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := issueInvoice(t, env)

	entry, err := env.vault.GetEntry(ctx, env.issuer.ID, "2026-03")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.IvaRepercutido.Equal(dec("11.30")) {
		t.Fatalf("iva repercutido = %s, want 11.30", entry.IvaRepercutido)
	}
	// 80 * 0.15 = 12.00
	if !entry.IrpfReserva.Equal(dec("12.00")) {
		t.Fatalf("irpf reserva = %s, want 12.00", entry.IrpfReserva)
	}
	if !entry.IvaSoportado.IsZero() {
		t.Fatalf("iva soportado = %s, want 0", entry.IvaSoportado)
	}
	if len(entry.InvoiceIDs) != 1 || entry.InvoiceIDs[0] != invoice.ID {
		t.Fatalf("invoice ids = %v", entry.InvoiceIDs)
	}
}

func TestExpenseAccumulatesInputTax(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	expense, err := env.expenses.CreateExpense(ctx, expensedomain.CreateExpenseRequest{
		IssuerID:  env.issuer.ID,
		Category:  "combustible",
		Amount:    dec("40"),
		TaxAmount: dec("8.40"),
	}, "tester")
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	entry, err := env.vault.GetEntry(ctx, env.issuer.ID, "2026-03")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.IvaSoportado.Equal(dec("8.40")) {
		t.Fatalf("iva soportado = %s, want 8.40", entry.IvaSoportado)
	}
	if len(entry.ExpenseIDs) != 1 || entry.ExpenseIDs[0] != expense.ID {
		t.Fatalf("expense ids = %v", entry.ExpenseIDs)
	}
}

func TestMonthlyCloseLocksPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issueInvoice(t, env)

	_, err := env.expenses.CreateExpense(ctx, expensedomain.CreateExpenseRequest{
		IssuerID:  env.issuer.ID,
		Category:  "combustible",
		Amount:    dec("40"),
		TaxAmount: dec("8.40"),
	}, "tester")
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}

	summary, err := env.vault.ExecuteMonthlyClose(ctx, env.issuer.ID, "2026-03", "gestor")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if summary.TotalInvoices != 1 {
		t.Fatalf("total invoices = %d, want 1", summary.TotalInvoices)
	}
	if !summary.TotalIncome.Equal(dec("80")) {
		t.Fatalf("total income = %s, want 80", summary.TotalIncome)
	}
	if !summary.TotalExpenses.Equal(dec("40")) {
		t.Fatalf("total expenses = %s, want 40", summary.TotalExpenses)
	}
	// 11.30 - 8.40 + 12.00
	if !summary.TotalTax.Equal(dec("14.90")) {
		t.Fatalf("total tax = %s, want 14.90", summary.TotalTax)
	}

	entry, err := env.vault.GetEntry(ctx, env.issuer.ID, "2026-03")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.IsLocked || entry.LockedAt == nil || entry.LockedBy != "gestor" {
		t.Fatalf("entry not locked: %+v", entry)
	}

	if _, err := env.vault.ExecuteMonthlyClose(ctx, env.issuer.ID, "2026-03", "gestor"); !errors.Is(err, taxvaultdomain.ErrMonthAlreadyClosed) {
		t.Fatalf("second close err = %v, want ErrMonthAlreadyClosed", err)
	}
}

func TestLockedPeriodRejectsExpense(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.vault.ExecuteMonthlyClose(ctx, env.issuer.ID, "2026-03", "gestor"); err != nil {
		t.Fatalf("close: %v", err)
	}

	_, err := env.expenses.CreateExpense(ctx, expensedomain.CreateExpenseRequest{
		IssuerID:  env.issuer.ID,
		Category:  "combustible",
		Amount:    dec("40"),
		TaxAmount: dec("8.40"),
	}, "tester")
	if !errors.Is(err, taxvaultdomain.ErrVaultLocked) {
		t.Fatalf("err = %v, want ErrVaultLocked", err)
	}

	// The posting rolled back with the vault leg.
	var count int64
	if err := env.db.Model(&expensedomain.Expense{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expenses = %d, want 0", count)
	}
}

func TestRecalculateMonthHealsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issueInvoice(t, env)

	// Corrupt the accumulated figure directly.
	err := env.db.Model(&taxvaultdomain.VaultEntry{}).
		Where("issuer_id = ? AND period = ?", env.issuer.ID, "2026-03").
		Update("iva_repercutido", dec("999")).Error
	if err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	entry, err := env.vault.RecalculateMonth(ctx, env.issuer.ID, "2026-03")
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if !entry.IvaRepercutido.Equal(dec("11.30")) {
		t.Fatalf("iva repercutido = %s, want 11.30", entry.IvaRepercutido)
	}
}

func TestRecalculateLockedMonthFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.vault.ExecuteMonthlyClose(ctx, env.issuer.ID, "2026-03", "gestor"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := env.vault.RecalculateMonth(ctx, env.issuer.ID, "2026-03"); !errors.Is(err, taxvaultdomain.ErrVaultLocked) {
		t.Fatalf("err = %v, want ErrVaultLocked", err)
	}
}

func TestRequestUnlockWritesAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	issueInvoice(t, env)

	// Only a locked entry can be the subject of an unlock request.
	err := env.vault.RequestUnlock(ctx, env.issuer.ID, "2026-03", "gestor", "missing expense")
	if !errors.Is(err, taxvaultdomain.ErrEntryNotFound) {
		t.Fatalf("unlocked entry err = %v, want ErrEntryNotFound", err)
	}

	if _, err := env.vault.ExecuteMonthlyClose(ctx, env.issuer.ID, "2026-03", "gestor"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := env.vault.RequestUnlock(ctx, env.issuer.ID, "2026-03", "gestor", "missing expense"); err != nil {
		t.Fatalf("request unlock: %v", err)
	}

	var count int64
	err = env.db.Model(&auditdomain.AuditLog{}).
		Where("action = ?", "taxvault.unlock_requested").
		Count(&count).Error
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("audit rows = %d, want 1", count)
	}

	// The entry itself stays locked.
	entry, err := env.vault.GetEntry(ctx, env.issuer.ID, "2026-03")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.IsLocked {
		t.Fatal("entry unlocked by request")
	}
}

func TestGetEntryValidatesPeriod(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.vault.GetEntry(ctx, env.issuer.ID, "2026-03"); !errors.Is(err, taxvaultdomain.ErrEntryNotFound) {
		t.Fatalf("missing entry err = %v, want ErrEntryNotFound", err)
	}
	if _, err := env.vault.GetEntry(ctx, env.issuer.ID, "march"); !errors.Is(err, taxvaultdomain.ErrInvalidPeriod) {
		t.Fatalf("bad period err = %v, want ErrInvalidPeriod", err)
	}
}

func TestRectificationNetsOutContribution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := issueInvoice(t, env)

	if _, err := env.invoices.RectifyInvoice(ctx, invoice.ID, "error en importes", "tester"); err != nil {
		t.Fatalf("rectify: %v", err)
	}

	entry, err := env.vault.GetEntry(ctx, env.issuer.ID, "2026-03")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if !entry.IvaRepercutido.IsZero() {
		t.Fatalf("iva repercutido = %s, want 0", entry.IvaRepercutido)
	}
	if !entry.IrpfReserva.IsZero() {
		t.Fatalf("irpf reserva = %s, want 0", entry.IrpfReserva)
	}
	if len(entry.InvoiceIDs) != 2 {
		t.Fatalf("invoice ids = %v, want original and rectifier", entry.InvoiceIDs)
	}
}
