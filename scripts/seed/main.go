package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type seedAccount struct {
	code    string
	name    string
	accType accounts.AccountType
	parent  string
}

// Chart of accounts. Codes match the posting defaults in app.PostingConfig.
var chart = []seedAccount{
	// Assets
	{"1000", "Aset", accounts.AccountTypeAsset, ""},
	{"1100", "Kas dan Bank", accounts.AccountTypeAsset, "1000"},
	{"1110", "Kas", accounts.AccountTypeAsset, "1100"},
	{"1120", "Bank BCA", accounts.AccountTypeAsset, "1100"},
	{"1150", "Dana Belum Disetor", accounts.AccountTypeAsset, "1100"},
	{"1200", "Piutang", accounts.AccountTypeAsset, "1000"},
	{"1210", "Piutang Usaha", accounts.AccountTypeAsset, "1200"},
	// Liabilities
	{"2000", "Kewajiban", accounts.AccountTypeLiability, ""},
	{"2100", "Hutang Lancar", accounts.AccountTypeLiability, "2000"},
	{"2110", "Hutang Usaha", accounts.AccountTypeLiability, "2100"},
	{"2120", "Hutang Pajak", accounts.AccountTypeLiability, "2100"},
	{"2130", "Hutang Gaji", accounts.AccountTypeLiability, "2100"},
	{"2140", "Hutang Iuran Jaminan Sosial", accounts.AccountTypeLiability, "2100"},
	// Equity
	{"3000", "Ekuitas", accounts.AccountTypeEquity, ""},
	{"3100", "Modal Disetor", accounts.AccountTypeEquity, "3000"},
	{"3200", "Laba Ditahan", accounts.AccountTypeEquity, "3000"},
	// Income
	{"4000", "Pendapatan", accounts.AccountTypeIncome, ""},
	{"4100", "Pendapatan Penjualan", accounts.AccountTypeIncome, "4000"},
	// Cost of goods sold
	{"5000", "Beban Pokok Penjualan", accounts.AccountTypeCOGS, ""},
	// Expenses
	{"6000", "Beban Operasional", accounts.AccountTypeExpense, ""},
	{"6100", "Beban Gaji", accounts.AccountTypeExpense, "6000"},
	{"6110", "Beban Iuran Jaminan Sosial", accounts.AccountTypeExpense, "6000"},
	{"6200", "Beban Sewa", accounts.AccountTypeExpense, "6000"},
}

func main() {
	ctx := context.Background()
	tenant, err := shared.ParseTenant(getenv("SEED_TENANT_ID", "00000000-0000-0000-0000-000000000001"))
	if err != nil {
		log.Fatalf("seed tenant: %v", err)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.RedisAddr = ""
	ledger, err := app.OpenLedger(ctx, cfg, app.NewLogger(cfg), nil)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()

	fmt.Printf("→ Seeding chart of accounts for %s...\n", tenant)
	ids, err := seedChart(ctx, ledger.Accounts, tenant)
	if err != nil {
		log.Fatalf("seed accounts: %v", err)
	}

	fmt.Println("→ Seeding opening balance...")
	if err := seedOpeningBalance(ctx, ledger.Journals, tenant, ids); err != nil {
		log.Fatalf("seed opening balance: %v", err)
	}

	fmt.Println("✓ Seed complete")
}

func seedChart(ctx context.Context, svc *accounts.Service, tenant shared.Tenant) (map[string]int64, error) {
	ids := make(map[string]int64, len(chart))
	for _, a := range chart {
		in := accounts.CreateInput{Code: a.code, Name: a.name, Type: a.accType}
		if a.parent != "" {
			parentID := ids[a.parent]
			in.ParentID = &parentID
		}
		account, err := svc.CreateAccount(ctx, tenant, in)
		if errors.Is(err, acctshared.ErrDuplicateAccountCode) {
			account, err = svc.FindByCode(ctx, tenant, a.code)
		}
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", a.code, err)
		}
		ids[a.code] = account.ID
	}
	return ids, nil
}

func seedOpeningBalance(ctx context.Context, svc *journals.Service, tenant shared.Tenant, ids map[string]int64) error {
	capital := decimal.NewFromInt(250_000_000)
	now := time.Now().UTC()
	_, err := svc.CreateJournalEntry(ctx, tenant, journals.CreateInput{
		Reference:   "OB-" + now.Format("2006"),
		Description: "Setoran modal awal",
		EntryDate:   time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC),
		Status:      journals.StatusPosted,
		Source:      "seed",
		SourceID:    "opening-balance",
		Lines: []journals.LineInput{
			{AccountID: ids["1120"], Debit: capital},
			{AccountID: ids["3100"], Credit: capital},
		},
	})
	if errors.Is(err, acctshared.ErrSourceAlreadyLinked) {
		return nil
	}
	return err
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
