package checkout

// PayloadVersion tags the on-disk payload shape so future migrations can
// detect and upgrade old rows. Readers treat unknown versions like
// corrupt payloads.
const PayloadVersion = 1

const DefaultCurrency = "USD"

// Payload is the structured basket state persisted as an opaque JSON
// envelope. Storage backends never inspect it beyond (de)serialization.
type Payload struct {
	Version          int          `json:"version"`
	Currency         string       `json:"currency"`
	CustomerEmail    string       `json:"customer_email,omitempty"`
	LineItems        []LineItem   `json:"line_items"`
	ShippingAddress  *Address     `json:"shipping_address,omitempty"`
	PaymentRef       string       `json:"payment_ref,omitempty"`
	CouponCodes      []string     `json:"coupon_codes,omitempty"`
	AppliedDiscounts []Discount   `json:"applied_discounts,omitempty"`
	Fulfillment      *Fulfillment `json:"fulfillment,omitempty"`
	Totals           []Total      `json:"totals"`
	ProviderOrderNo  string       `json:"provider_order_no,omitempty"`
}

type LineItem struct {
	ProductID string  `json:"product_id"`
	Title     string  `json:"title"`
	UnitPrice int64   `json:"unit_price"`
	ImageURL  string  `json:"image_url,omitempty"`
	Quantity  int     `json:"quantity"`
	Totals    []Total `json:"totals,omitempty"`
}

type Address struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	StreetAddress string `json:"street_address"`
	Locality      string `json:"locality"`
	Region        string `json:"region"`
	PostalCode    string `json:"postal_code"`
	Country       string `json:"country"`
}

type Discount struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	Amount int64  `json:"amount"`
}

// Fulfillment option ids exposed by the checkout.
const (
	FulfillmentStandard = "standard"
	FulfillmentExpress  = "express"
)

type Fulfillment struct {
	Options          []FulfillmentOption `json:"options"`
	SelectedOptionID string              `json:"selected_option_id"`
}

type FulfillmentOption struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Carrier     string `json:"carrier,omitempty"`
	Amount      int64  `json:"amount"`
}

type TotalType string

const (
	TotalSubtotal    TotalType = "subtotal"
	TotalDiscount    TotalType = "discount"
	TotalFulfillment TotalType = "fulfillment"
	TotalTax         TotalType = "tax"
	TotalGrand       TotalType = "total"
)

type Total struct {
	Type        TotalType `json:"type"`
	DisplayText string    `json:"display_text"`
	Amount      int64     `json:"amount"`
}

// FindLineItem returns the line item for the product, or nil.
func (p *Payload) FindLineItem(productID string) *LineItem {
	for i := range p.LineItems {
		if p.LineItems[i].ProductID == productID {
			return &p.LineItems[i]
		}
	}
	return nil
}

// Total returns the amount for the given total type, zero when missing.
func (p *Payload) Total(t TotalType) int64 {
	for _, total := range p.Totals {
		if total.Type == t {
			return total.Amount
		}
	}
	return 0
}

// SelectedFulfillmentOption resolves the currently selected shipping
// option, or nil when no address has been supplied yet.
func (p *Payload) SelectedFulfillmentOption() *FulfillmentOption {
	if p.Fulfillment == nil {
		return nil
	}
	for i := range p.Fulfillment.Options {
		if p.Fulfillment.Options[i].ID == p.Fulfillment.SelectedOptionID {
			return &p.Fulfillment.Options[i]
		}
	}
	return nil
}

func (p Payload) Clone() Payload {
	clone := p
	clone.LineItems = make([]LineItem, len(p.LineItems))
	for i, li := range p.LineItems {
		clone.LineItems[i] = li
		clone.LineItems[i].Totals = append([]Total(nil), li.Totals...)
	}
	clone.Totals = append([]Total(nil), p.Totals...)
	clone.CouponCodes = append([]string(nil), p.CouponCodes...)
	clone.AppliedDiscounts = append([]Discount(nil), p.AppliedDiscounts...)
	if p.ShippingAddress != nil {
		addr := *p.ShippingAddress
		clone.ShippingAddress = &addr
	}
	if p.Fulfillment != nil {
		f := *p.Fulfillment
		f.Options = append([]FulfillmentOption(nil), p.Fulfillment.Options...)
		clone.Fulfillment = &f
	}
	return clone
}
