package staticcatalog

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ucp-labs/checkout-core/internal/domain/catalog"
	"github.com/ucp-labs/checkout-core/internal/domain/checkout"
)

// Provider is the dev-mode stand-in for the remote shopper API: a fixed
// product set, a couple of coupon codes, and order numbers minted from a
// local counter.
type Provider struct {
	mu       sync.RWMutex
	products map[string]catalog.Product
	coupons  map[string]int64 // code -> percent off subtotal
	orderSeq atomic.Int64
}

func New() *Provider {
	p := &Provider{
		products: make(map[string]catalog.Product),
		coupons: map[string]int64{
			"SAVE10":  10,
			"WELCOME": 5,
		},
	}
	for _, product := range defaultProducts {
		p.products[product.ID] = product
	}
	return p
}

var defaultProducts = []catalog.Product{
	{ID: "SKU-TSHIRT", Title: "Classic Tee", Price: 1999, ImageURL: "https://cdn.example.dev/tshirt.jpg", Category: "apparel"},
	{ID: "SKU-HOODIE", Title: "Zip Hoodie", Price: 5499, ImageURL: "https://cdn.example.dev/hoodie.jpg", Category: "apparel"},
	{ID: "SKU-MUG", Title: "Ceramic Mug", Price: 1250, ImageURL: "https://cdn.example.dev/mug.jpg", Category: "home"},
	{ID: "SKU-POSTER", Title: "Framed Poster", Price: 3200, ImageURL: "https://cdn.example.dev/poster.jpg", Category: "home"},
	{ID: "SKU-STICKERS", Title: "Sticker Pack", Price: 499, ImageURL: "https://cdn.example.dev/stickers.jpg", Category: "accessories"},
}

// Add registers a product, replacing any previous entry with the same id.
func (p *Provider) Add(product catalog.Product) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.products[product.ID] = product
}

func (p *Provider) GetProduct(_ context.Context, productID string) (*catalog.Product, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	product, ok := p.products[productID]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &product, nil
}

func (p *Provider) SearchProducts(_ context.Context, query string) ([]*catalog.Product, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	q := strings.ToLower(query)
	var out []*catalog.Product
	for _, stored := range p.products {
		if q == "" ||
			strings.Contains(strings.ToLower(stored.Title), q) ||
			strings.Contains(strings.ToLower(stored.ID), q) ||
			strings.Contains(strings.ToLower(stored.Category), q) {
			clone := stored
			out = append(out, &clone)
		}
	}
	slices.SortFunc(out, func(a, b *catalog.Product) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SubmitOrder accepts any finalizable session and mints a sequential
// dev order number.
func (p *Provider) SubmitOrder(_ context.Context, session *checkout.Session) (string, error) {
	return fmt.Sprintf("DEV-%06d", p.orderSeq.Add(1)), nil
}

// ValidateCoupon resolves a coupon code against the fixed dev set.
func (p *Provider) ValidateCoupon(_ context.Context, code string, subtotal int64) (checkout.Discount, error) {
	p.mu.RLock()
	percent, ok := p.coupons[strings.ToUpper(code)]
	p.mu.RUnlock()
	if !ok {
		return checkout.Discount{}, catalog.ErrNotFound
	}
	return checkout.Discount{
		Code:   code,
		Title:  fmt.Sprintf("%d%% off", percent),
		Amount: subtotal * percent / 100,
	}, nil
}
