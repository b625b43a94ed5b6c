package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags written on producer entries.
const (
	SourceInvoicePayment = "invoice_payment"
	SourcePayroll        = "payroll"
)

// MethodCash is the payment method deposited straight to the cash account.
const MethodCash = "cash"

// InvoicePaymentReceived is emitted when a customer payment is recorded against an invoice.
type InvoicePaymentReceived struct {
	PaymentID string          `json:"payment_id"`
	InvoiceID string          `json:"invoice_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	PaidAt    time.Time       `json:"paid_at"`
	Reference string          `json:"reference,omitempty"`
	CreatedBy *int64          `json:"created_by,omitempty"`
}

// PayrollEntry is one employee's figures in a completed run.
type PayrollEntry struct {
	EmployeeID           string          `json:"employee_id"`
	Gross                decimal.Decimal `json:"gross"`
	EmployerContribution decimal.Decimal `json:"employer_contribution"`
	IncomeTax            decimal.Decimal `json:"income_tax"`
	EmployeeContribution decimal.Decimal `json:"employee_contribution"`
}

// PayrollRunCompleted is emitted once a payroll run is approved.
type PayrollRunCompleted struct {
	RunID     string         `json:"run_id"`
	PayDate   time.Time      `json:"pay_date"`
	Entries   []PayrollEntry `json:"entries"`
	CreatedBy *int64         `json:"created_by,omitempty"`
}

// PostingAccounts holds the chart-of-accounts codes producers post to.
type PostingAccounts struct {
	Cash                        string
	UndepositedFunds            string
	AccountsReceivable          string
	SalaryExpense               string
	EmployerContributionExpense string
	NetPayPayable               string
	TaxPayable                  string
	EmployerContributionPayable string
}

// DefaultPostingAccounts matches the seeded chart of accounts.
func DefaultPostingAccounts() PostingAccounts {
	return PostingAccounts{
		Cash:                        "1110",
		UndepositedFunds:            "1150",
		AccountsReceivable:          "1210",
		SalaryExpense:               "6100",
		EmployerContributionExpense: "6110",
		NetPayPayable:               "2130",
		TaxPayable:                  "2120",
		EmployerContributionPayable: "2140",
	}
}
