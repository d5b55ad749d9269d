// Package till holds the pure arithmetic over till aggregates. The store
// applies the same arithmetic statement-by-statement; this package is the
// reference used on every till read so stored figures can drift without
// poisoning what callers see.
package till

import "tillpoint/backend/internal/domain"

// Breakdown maps tender name to the cents collected under it. Values never
// go below zero.
type Breakdown map[string]int64

func (b Breakdown) ApplyPayment(tender string, amountCents int64) {
	if tender == "" {
		tender = domain.TenderCash
	}
	b[tender] += amountCents
}

// ReversePayment subtracts a tender amount, flooring the bucket at zero so a
// reversal can never push a drawer figure negative.
func (b Breakdown) ReversePayment(tender string, amountCents int64) {
	if tender == "" {
		tender = domain.TenderCash
	}
	next := b[tender] - amountCents
	if next < 0 {
		next = 0
	}
	b[tender] = next
}

func (b Breakdown) Total() int64 {
	var total int64
	for _, v := range b {
		total += v
	}
	return total
}

func (b Breakdown) Clone() Breakdown {
	out := make(Breakdown, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

type Aggregate struct {
	TotalSalesCents  int64
	TransactionCount int64
	Tenders          Breakdown
}

// Recompute derives the aggregate from scratch over the transactions
// currently linked to a till. Each transaction contributes its total under
// its effective tender lines, so the aggregate total always equals the sum
// of the breakdown.
func Recompute(txs []domain.Transaction) Aggregate {
	agg := Aggregate{Tenders: make(Breakdown)}
	for _, tx := range txs {
		agg.TransactionCount++
		agg.TotalSalesCents += tx.TotalCents
		for _, line := range tx.Payment.EffectiveLines(tx.TotalCents) {
			agg.Tenders.ApplyPayment(line.TenderName, line.AmountCents)
		}
	}
	return agg
}
