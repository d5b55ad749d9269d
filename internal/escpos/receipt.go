package escpos

import (
	"fmt"
	"strings"

	"tillpoint/backend/internal/domain"
)

const receiptWidth = 32

// Receipt renders a transaction into a printable command buffer plus the
// plain-text preview shown on the terminal screen.
func Receipt(tx domain.Transaction) ([]byte, string) {
	lines := previewLines(tx)

	b := NewBuilder().
		Init().
		Align(AlignCenter).
		Size(2, 2).
		Bold(true).
		Text("TILLPOINT").
		Size(1, 1).
		Bold(false).
		Align(AlignLeft)

	for _, line := range lines {
		b.Text(line)
	}

	b.Feed(1).
		Align(AlignCenter).
		QR(tx.ID).
		Feed(2).
		FullCut()

	return b.Serialize(), strings.Join(lines, "\n")
}

func previewLines(tx domain.Transaction) []string {
	lines := make([]string, 0, len(tx.Items)+12)
	lines = append(lines,
		strings.Repeat("=", receiptWidth),
		PadLine("Trx", tx.ID, receiptWidth),
		PadLine("Kasir", tx.StaffName, receiptWidth),
		PadLine("Waktu", tx.CreatedAt.Format("2006-01-02 15:04"), receiptWidth),
		strings.Repeat("-", receiptWidth),
	)
	for _, item := range tx.Items {
		lines = append(lines, PadLine(
			fmt.Sprintf("%s x%d", item.Name, item.Qty),
			formatCents(item.UnitPriceCents*int64(item.Qty)),
			receiptWidth,
		))
	}
	lines = append(lines, strings.Repeat("-", receiptWidth))
	if tx.DiscountCents > 0 {
		lines = append(lines, PadLine("Diskon", "-"+formatCents(tx.DiscountCents), receiptWidth))
	}
	if tx.TaxCents > 0 {
		lines = append(lines, PadLine("Pajak", formatCents(tx.TaxCents), receiptWidth))
	}
	lines = append(lines,
		PadLine("TOTAL", formatCents(tx.TotalCents), receiptWidth),
		PadLine("Bayar", formatCents(tx.AmountPaidCents), receiptWidth),
	)
	if tx.ChangeCents > 0 {
		lines = append(lines, PadLine("Kembali", formatCents(tx.ChangeCents), receiptWidth))
	}
	for _, line := range tx.Payment.EffectiveLines(tx.TotalCents) {
		lines = append(lines, PadLine(" "+line.TenderName, formatCents(line.AmountCents), receiptWidth))
	}
	if tx.Status == domain.TxStatusRefunded {
		lines = append(lines, strings.Repeat("*", receiptWidth), "** REFUNDED **")
	}
	lines = append(lines, strings.Repeat("=", receiptWidth), "Terima kasih")
	return lines
}

func formatCents(v int64) string {
	return fmt.Sprintf("%d.%02d", v/100, v%100)
}
