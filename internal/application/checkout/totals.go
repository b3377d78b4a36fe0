package checkout

import (
	"math"

	domain "github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

// taxRate is the flat rate applied once a shipping address is present.
const taxRate = 0.10

func fulfillmentOptions() []domain.FulfillmentOption {
	return []domain.FulfillmentOption{
		{
			ID:          domain.FulfillmentStandard,
			Title:       "Standard Shipping",
			Description: "Arrives in 4-5 days",
			Carrier:     "USPS",
			Amount:      500,
		},
		{
			ID:          domain.FulfillmentExpress,
			Title:       "Express Shipping",
			Description: "Arrives in 1-2 days",
			Carrier:     "FedEx",
			Amount:      1000,
		},
	}
}

// recalculate rebuilds every total on the payload from scratch. Shipping
// and tax only apply once an address is present; the tax base excludes
// shipping.
func recalculate(p *domain.Payload) {
	var subtotal int64
	for i := range p.LineItems {
		li := &p.LineItems[i]
		lineTotal := li.UnitPrice * int64(li.Quantity)
		li.Totals = []domain.Total{
			{Type: domain.TotalSubtotal, DisplayText: "Subtotal", Amount: lineTotal},
			{Type: domain.TotalGrand, DisplayText: "Total", Amount: lineTotal},
		}
		subtotal += lineTotal
	}

	var discount int64
	for _, d := range p.AppliedDiscounts {
		discount += d.Amount
	}
	if discount > subtotal {
		discount = subtotal
	}

	totals := []domain.Total{
		{Type: domain.TotalSubtotal, DisplayText: "Subtotal", Amount: subtotal},
	}
	if discount > 0 {
		totals = append(totals, domain.Total{Type: domain.TotalDiscount, DisplayText: "Discount", Amount: discount})
	}

	grand := subtotal - discount
	if p.ShippingAddress != nil {
		var shipping int64
		if opt := p.SelectedFulfillmentOption(); opt != nil {
			shipping = opt.Amount
		}
		tax := int64(math.Round(float64(subtotal-discount) * taxRate))
		totals = append(totals,
			domain.Total{Type: domain.TotalFulfillment, DisplayText: "Shipping", Amount: shipping},
			domain.Total{Type: domain.TotalTax, DisplayText: "Tax", Amount: tax},
		)
		grand += shipping + tax
	}

	totals = append(totals, domain.Total{Type: domain.TotalGrand, DisplayText: "Total", Amount: grand})
	p.Totals = totals
}
