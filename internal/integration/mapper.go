package integration

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type payrollTotals struct {
	Gross                decimal.Decimal
	EmployerContribution decimal.Decimal
	IncomeTax            decimal.Decimal
	EmployeeContribution decimal.Decimal
}

// NetPay is what employees receive after withholding.
func (t payrollTotals) NetPay() decimal.Decimal {
	return t.Gross.Sub(t.IncomeTax).Sub(t.EmployeeContribution)
}

// TaxPayable combines income tax and the employee contribution withheld.
func (t payrollTotals) TaxPayable() decimal.Decimal {
	return t.IncomeTax.Add(t.EmployeeContribution)
}

func sumPayroll(entries []PayrollEntry) (payrollTotals, error) {
	var t payrollTotals
	for _, e := range entries {
		for _, v := range []decimal.Decimal{e.Gross, e.EmployerContribution, e.IncomeTax, e.EmployeeContribution} {
			if v.IsNegative() {
				return payrollTotals{}, fmt.Errorf("%w: employee %s has a negative amount", acctshared.ErrInvalidAmount, e.EmployeeID)
			}
		}
		t.Gross = t.Gross.Add(e.Gross)
		t.EmployerContribution = t.EmployerContribution.Add(e.EmployerContribution)
		t.IncomeTax = t.IncomeTax.Add(e.IncomeTax)
		t.EmployeeContribution = t.EmployeeContribution.Add(e.EmployeeContribution)
	}
	t.Gross = acctshared.Round2(t.Gross)
	t.EmployerContribution = acctshared.Round2(t.EmployerContribution)
	t.IncomeTax = acctshared.Round2(t.IncomeTax)
	t.EmployeeContribution = acctshared.Round2(t.EmployeeContribution)
	return t, nil
}

func (a PostingAccounts) depositCode(method string) string {
	if strings.EqualFold(strings.TrimSpace(method), MethodCash) {
		return a.Cash
	}
	return a.UndepositedFunds
}

func (a PostingAccounts) payrollCodes() []string {
	return []string{a.SalaryExpense, a.EmployerContributionExpense, a.NetPayPayable, a.TaxPayable, a.EmployerContributionPayable}
}

func (a PostingAccounts) invoiceRoles(method string) map[string]string {
	deposit := "undeposited_funds"
	if strings.EqualFold(strings.TrimSpace(method), MethodCash) {
		deposit = "cash"
	}
	return map[string]string{deposit: a.depositCode(method), "accounts_receivable": a.AccountsReceivable}
}

func (a PostingAccounts) payrollRoles() map[string]string {
	return map[string]string{
		"salary_expense":                a.SalaryExpense,
		"employer_contribution_expense": a.EmployerContributionExpense,
		"net_pay_payable":               a.NetPayPayable,
		"tax_payable":                   a.TaxPayable,
		"employer_contribution_payable": a.EmployerContributionPayable,
	}
}

// requireCodes names every role whose account code is not configured.
func requireCodes(roles map[string]string) error {
	var unset []string
	for role, code := range roles {
		if strings.TrimSpace(code) == "" {
			unset = append(unset, role+" (unset)")
		}
	}
	return shared.NewMissingAccountsError(unset)
}
