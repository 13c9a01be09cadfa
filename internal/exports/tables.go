package exports

import (
	"strings"
	"time"

	"github.com/angelmondragon/earnings-ledger/pkg/db/models"
	"github.com/angelmondragon/earnings-ledger/pkg/money"
)

const dateTimeLayout = "2006-01-02 15:04:05"

// Select keeps only the named columns, in the order given. Names match
// case-insensitively; unknown names are ignored. An empty list keeps the table.
func (t Table) Select(fields []string) Table {
	if len(fields) == 0 {
		return t
	}
	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		index[strings.ToLower(c)] = i
	}
	var keep []int
	for _, f := range fields {
		if i, ok := index[strings.ToLower(strings.TrimSpace(f))]; ok {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return t
	}
	out := Table{Name: t.Name, Columns: make([]string, len(keep)), Rows: make([][]string, len(t.Rows))}
	for j, i := range keep {
		out.Columns[j] = t.Columns[i]
	}
	for r, row := range t.Rows {
		cells := make([]string, len(keep))
		for j, i := range keep {
			if i < len(row) {
				cells[j] = row[i]
			}
		}
		out.Rows[r] = cells
	}
	return out
}

// Commissions lays out commissions for export.
func Commissions(rows []models.Commission) Table {
	table := Table{
		Name: "commissions",
		Columns: []string{
			"ID", "Reseller ID", "Transaction Reference", "Client", "Product",
			"Sale Amount", "Rate", "Amount", "Status", "Calculated", "Approved", "Paid",
		},
		Rows: make([][]string, 0, len(rows)),
	}
	for _, c := range rows {
		table.Rows = append(table.Rows, []string{
			c.ID.String(),
			c.ResellerID.String(),
			c.TransactionReference,
			c.ClientName,
			c.ProductName,
			money.Format(c.SaleAmount),
			money.Format(c.CommissionRate),
			money.Format(c.Amount),
			string(c.Status),
			FormatTime(c.CalculationDate),
			FormatTimePtr(c.ApprovalDate),
			FormatTimePtr(c.PaidDate),
		})
	}
	return table
}

// Invoices lays out invoices for export.
func Invoices(rows []models.Invoice) Table {
	table := Table{
		Name: "invoices",
		Columns: []string{
			"Invoice Number", "Reseller ID", "Period Start", "Period End",
			"Subtotal", "Tax", "Total", "Status", "Issued", "Due", "Paid",
		},
		Rows: make([][]string, 0, len(rows)),
	}
	for _, i := range rows {
		table.Rows = append(table.Rows, []string{
			i.InvoiceNumber,
			i.ResellerID.String(),
			i.PeriodStart.UTC().Format("2006-01-02"),
			i.PeriodEnd.UTC().Format("2006-01-02"),
			money.Format(i.Subtotal),
			money.Format(i.TaxAmount),
			money.Format(i.TotalAmount),
			string(i.Status),
			i.IssueDate.UTC().Format("2006-01-02"),
			i.DueDate.UTC().Format("2006-01-02"),
			FormatTimePtr(i.PaymentDate),
		})
	}
	return table
}

// Payouts lays out payouts for export.
func Payouts(rows []models.Payout) Table {
	table := Table{
		Name: "payouts",
		Columns: []string{
			"Reference", "Reseller ID", "Amount", "Fee", "Net", "Method",
			"Status", "Requested", "Processed", "Completed", "Transaction ID",
		},
		Rows: make([][]string, 0, len(rows)),
	}
	for _, p := range rows {
		txID := ""
		if p.TransactionID != nil {
			txID = *p.TransactionID
		}
		table.Rows = append(table.Rows, []string{
			p.ReferenceNumber,
			p.ResellerID.String(),
			money.Format(p.Amount),
			money.Format(p.TransactionFee),
			money.Format(p.NetAmount),
			string(p.PaymentMethod),
			string(p.Status),
			FormatTime(p.RequestDate),
			FormatTimePtr(p.ProcessDate),
			FormatTimePtr(p.CompletionDate),
			txID,
		})
	}
	return table
}

// FormatTime renders t in UTC, or "" for the zero time.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeLayout)
}

// FormatTimePtr is FormatTime for optional timestamps.
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}
