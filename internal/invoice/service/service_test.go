package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
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
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	taxvaultservice "github.com/repartia/treasury/internal/taxvault/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	invoices invoicedomain.Service
	vault    taxvaultdomain.Service
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
	vaultSvc := taxvaultservice.NewService(taxvaultservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake, Cfg: cfg, AuditSvc: auditSvc,
	})
	invSvc := NewService(Params{
		DB: db, Log: log, GenID: node, Clock: fake, Cfg: cfg,
		Directory: dirSvc, TaxVault: vaultSvc, AuditSvc: auditSvc,
	})

	ctx := context.Background()
	issuer, err := dirSvc.CreateIssuer(ctx, directorydomain.CreateIssuerRequest{
		Name: "Franquicia Centro", LegacyName: "Centro", TaxID: "B12345678",
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
		invoices: invSvc,
		vault:    vaultSvc,
		issuer:   issuer,
		customer: customer,
	}
}

func (e *testEnv) draft(t *testing.T, customer directorydomain.Customer) snowflake.ID {
	t.Helper()
	id, err := e.invoices.CreateDraft(context.Background(), invoicedomain.CreateDraftRequest{
		IssuerRef:    e.issuer.ID.String(),
		CustomerRef:  customer.ID.String(),
		CustomerType: customer.Type,
		Lines: []invoicedomain.LineRequest{
			{Description: "Repartos", Quantity: dec("3"), UnitPrice: dec("10"), TaxRate: dec("0.21")},
			{Description: "Gestión", Quantity: dec("1"), UnitPrice: dec("50"), TaxRate: dec("0.10")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	return id
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCreateDraftComputesTotals(t *testing.T) {
	env := newTestEnv(t)
	id := env.draft(t, env.customer)

	invoice, err := env.invoices.GetInvoice(context.Background(), id)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft {
		t.Fatalf("status = %s, want DRAFT", invoice.Status)
	}
	if invoice.Number != nil {
		t.Fatalf("draft has number %d, want none", *invoice.Number)
	}
	if !invoice.Subtotal.Equal(dec("80")) {
		t.Fatalf("subtotal = %s, want 80", invoice.Subtotal)
	}
	if !invoice.Total.Equal(dec("91.3")) {
		t.Fatalf("total = %s, want 91.3", invoice.Total)
	}
	if invoice.CustomerSnapshot.Name != env.customer.Name {
		t.Fatalf("customer snapshot = %q", invoice.CustomerSnapshot.Name)
	}
}

func TestIssueAssignsSequentialNumbers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.draft(t, env.customer)
	issued, err := env.invoices.IssueInvoice(ctx, first)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Series != "2026" || issued.Number == nil || *issued.Number != 1 {
		t.Fatalf("issued = %s #%v, want series 2026 number 1", issued.Series, issued.Number)
	}
	if issued.FullNumber != "2026/0001" {
		t.Fatalf("full number = %q, want 2026/0001", issued.FullNumber)
	}

	// Different customer so the duplicate-period guard stays out of the way.
	dirSvc := directoryservice.NewService(directoryservice.Params{
		DB: env.db, Log: zap.NewNop(), GenID: mustNode(t),
	})
	other, err := dirSvc.CreateCustomer(ctx, directorydomain.CreateCustomerRequest{
		Type: directorydomain.CustomerTypeFranchise, Name: "Franquicia Sur", TaxID: "B11112222",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	second := env.draft(t, other)
	issued2, err := env.invoices.IssueInvoice(ctx, second)
	if err != nil {
		t.Fatalf("issue second: %v", err)
	}
	if issued2.Number == nil || *issued2.Number != 2 || issued2.FullNumber != "2026/0002" {
		t.Fatalf("second = %q, want 2026/0002", issued2.FullNumber)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	return node
}

func TestIssueTwiceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.draft(t, env.customer)
	if _, err := env.invoices.IssueInvoice(ctx, id); err != nil {
		t.Fatalf("first issue: %v", err)
	}

	_, err := env.invoices.IssueInvoice(ctx, id)
	var notDraft *invoicedomain.NotDraftError
	if !errors.As(err, &notDraft) {
		t.Fatalf("second issue err = %v, want NotDraftError", err)
	}
	if notDraft.Status != invoicedomain.InvoiceStatusIssued {
		t.Fatalf("reported status = %s, want ISSUED", notDraft.Status)
	}
}

func TestDuplicatePeriodGuard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.draft(t, env.customer)

	_, err := env.invoices.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
		IssuerRef:    env.issuer.Slug,
		CustomerRef:  env.customer.ID.String(),
		CustomerType: env.customer.Type,
		Lines: []invoicedomain.LineRequest{
			{Description: "Repartos", Quantity: dec("1"), UnitPrice: dec("5"), TaxRate: dec("0.21")},
		},
	}, "tester")
	var duplicate *invoicedomain.DuplicateInvoiceError
	if !errors.As(err, &duplicate) {
		t.Fatalf("err = %v, want DuplicateInvoiceError", err)
	}
}

// limitToSingleConn serializes database access at the pool. SQLite reports
// busy instead of blocking concurrent writers, so contention tests need a
// single shared connection.
func limitToSingleConn(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

func TestConcurrentDraftsSamePeriodKeepOne(t *testing.T) {
	env := newTestEnv(t)
	limitToSingleConn(t, env.db)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.invoices.CreateDraft(ctx, invoicedomain.CreateDraftRequest{
				IssuerRef:    env.issuer.ID.String(),
				CustomerRef:  env.customer.ID.String(),
				CustomerType: env.customer.Type,
				Lines: []invoicedomain.LineRequest{
					{Description: "Repartos", Quantity: dec("1"), UnitPrice: dec("5"), TaxRate: dec("0.21")},
				},
			}, "tester")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var created, rejected int
	for err := range results {
		var duplicate *invoicedomain.DuplicateInvoiceError
		switch {
		case err == nil:
			created++
		case errors.As(err, &duplicate):
			rejected++
		default:
			t.Fatalf("create draft: %v", err)
		}
	}
	if created != 1 || rejected != attempts-1 {
		t.Fatalf("created = %d, rejected = %d, want 1 and %d", created, rejected, attempts-1)
	}
	assertCount(t, env.db, &invoicedomain.Invoice{},
		"issuer_id = ? AND customer_id = ?", []any{env.issuer.ID, env.customer.ID}, 1)
}

func TestConcurrentIssueYieldsGaplessNumbers(t *testing.T) {
	env := newTestEnv(t)
	limitToSingleConn(t, env.db)
	ctx := context.Background()

	dirSvc := directoryservice.NewService(directoryservice.Params{
		DB: env.db, Log: zap.NewNop(), GenID: mustNode(t),
	})

	// One customer per draft so the period guard stays out of the way.
	const total = 6
	drafts := make([]snowflake.ID, 0, total)
	for i := 0; i < total; i++ {
		cust, err := dirSvc.CreateCustomer(ctx, directorydomain.CreateCustomerRequest{
			Type:  directorydomain.CustomerTypeRestaurant,
			Name:  fmt.Sprintf("Restaurante %d", i),
			TaxID: fmt.Sprintf("B%08d", i),
		})
		if err != nil {
			t.Fatalf("create customer: %v", err)
		}
		drafts = append(drafts, env.draft(t, cust))
	}

	var wg sync.WaitGroup
	numbers := make(chan int64, total)
	failures := make(chan error, total)
	for _, id := range drafts {
		wg.Add(1)
		go func(id snowflake.ID) {
			defer wg.Done()
			issued, err := env.invoices.IssueInvoice(ctx, id)
			if err != nil {
				failures <- err
				return
			}
			numbers <- *issued.Number
		}(id)
	}
	wg.Wait()
	close(numbers)
	close(failures)

	for err := range failures {
		t.Fatalf("issue: %v", err)
	}
	seen := make(map[int64]bool, total)
	for number := range numbers {
		if seen[number] {
			t.Fatalf("number %d assigned twice", number)
		}
		seen[number] = true
	}
	for want := int64(1); want <= total; want++ {
		if !seen[want] {
			t.Fatalf("number %d never assigned", want)
		}
	}
}

func TestRectifyNegatesAndClosesOriginal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.draft(t, env.customer)
	issued, err := env.invoices.IssueInvoice(ctx, id)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rectifier, err := env.invoices.RectifyInvoice(ctx, issued.ID, "pricing error", "tester")
	if err != nil {
		t.Fatalf("rectify: %v", err)
	}
	if rectifier.Type != invoicedomain.InvoiceTypeRectificative {
		t.Fatalf("type = %s", rectifier.Type)
	}
	if rectifier.FullNumber != "R2026/0001" {
		t.Fatalf("full number = %q, want R2026/0001", rectifier.FullNumber)
	}
	if !rectifier.Total.Equal(issued.Total.Neg()) {
		t.Fatalf("rectifier total = %s, want %s", rectifier.Total, issued.Total.Neg())
	}
	if !rectifier.RemainingAmount.Equal(rectifier.Total) {
		t.Fatalf("remaining = %s, want %s", rectifier.RemainingAmount, rectifier.Total)
	}
	if rectifier.OriginalInvoiceID == nil || *rectifier.OriginalInvoiceID != issued.ID {
		t.Fatalf("original link = %v", rectifier.OriginalInvoiceID)
	}

	original, err := env.invoices.GetInvoice(ctx, issued.ID)
	if err != nil {
		t.Fatalf("reload original: %v", err)
	}
	if original.Status != invoicedomain.InvoiceStatusRectified {
		t.Fatalf("original status = %s, want RECTIFIED", original.Status)
	}
	if !original.RectifyingInvoiceIDs.Contains(rectifier.ID) {
		t.Fatalf("original missing back-reference")
	}

	if _, err := env.invoices.RectifyInvoice(ctx, issued.ID, "again", "tester"); !errors.Is(err, invoicedomain.ErrAlreadyRectified) {
		t.Fatalf("second rectify err = %v, want ErrAlreadyRectified", err)
	}
}

func TestRectifyDraftFails(t *testing.T) {
	env := newTestEnv(t)
	id := env.draft(t, env.customer)

	_, err := env.invoices.RectifyInvoice(context.Background(), id, "oops", "tester")
	if !errors.Is(err, invoicedomain.ErrInvalidRectification) {
		t.Fatalf("err = %v, want ErrInvalidRectification", err)
	}
}

func TestUpdateDraftRecomputesTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.draft(t, env.customer)

	err := env.invoices.UpdateDraft(ctx, id, invoicedomain.UpdateDraftRequest{
		Lines: []invoicedomain.LineRequest{
			{Description: "Repartos", Quantity: dec("2"), UnitPrice: dec("10"), TaxRate: dec("0.21")},
		},
	})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}

	invoice, err := env.invoices.GetInvoice(ctx, id)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if !invoice.Subtotal.Equal(dec("20")) || !invoice.Total.Equal(dec("24.2")) {
		t.Fatalf("totals = %s / %s, want 20 / 24.2", invoice.Subtotal, invoice.Total)
	}
	if !invoice.RemainingAmount.Equal(dec("24.2")) {
		t.Fatalf("remaining = %s, want 24.2", invoice.RemainingAmount)
	}
}

func TestUpdateIssuedInvoiceFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.draft(t, env.customer)
	if _, err := env.invoices.IssueInvoice(ctx, id); err != nil {
		t.Fatalf("issue: %v", err)
	}

	err := env.invoices.UpdateDraft(ctx, id, invoicedomain.UpdateDraftRequest{})
	var notDraft *invoicedomain.NotDraftError
	if !errors.As(err, &notDraft) {
		t.Fatalf("err = %v, want NotDraftError", err)
	}
}

func TestDeleteDraftCascadesReceipts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.draft(t, env.customer)

	// Orphan receipt left behind by an aborted workflow.
	receipt := paymentdomain.PaymentReceipt{
		ID:          snowflake.ID(424242),
		InvoiceID:   id,
		IssuerID:    env.issuer.ID,
		Amount:      dec("10"),
		PaymentDate: env.clock.Now(),
		CreatedBy:   "tester",
		CreatedAt:   env.clock.Now(),
	}
	if err := env.db.Create(&receipt).Error; err != nil {
		t.Fatalf("seed receipt: %v", err)
	}

	if err := env.invoices.DeleteDraft(ctx, id, "tester"); err != nil {
		t.Fatalf("delete draft: %v", err)
	}

	if _, err := env.invoices.GetInvoice(ctx, id); !errors.Is(err, invoicedomain.ErrInvoiceNotFound) {
		t.Fatalf("get after delete err = %v, want ErrInvoiceNotFound", err)
	}
	assertCount(t, env.db, &paymentdomain.PaymentReceipt{}, "invoice_id = ?", []any{id}, 0)
}

func TestIssueIntoLockedPeriodFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.vault.ExecuteMonthlyClose(ctx, env.issuer.ID, "2026-03", "treasurer"); err != nil {
		t.Fatalf("close: %v", err)
	}

	id := env.draft(t, env.customer)
	if _, err := env.invoices.IssueInvoice(ctx, id); !errors.Is(err, taxvaultdomain.ErrVaultLocked) {
		t.Fatalf("issue err = %v, want ErrVaultLocked", err)
	}

	// The aborted transaction must not have burned a number.
	invoice, err := env.invoices.GetInvoice(ctx, id)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if invoice.Status != invoicedomain.InvoiceStatusDraft || invoice.Number != nil {
		t.Fatalf("invoice = %s #%v, want untouched draft", invoice.Status, invoice.Number)
	}
}

func assertCount(t *testing.T, db *gorm.DB, model any, where string, args []any, want int64) {
	t.Helper()
	var got int64
	if err := db.Model(model).Where(where, args...).Count(&got).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if got != want {
		t.Fatalf("count = %d, want %d", got, want)
	}
}
