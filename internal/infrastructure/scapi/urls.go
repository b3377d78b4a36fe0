package scapi

import "fmt"

// Config identifies one shopper-API tenant. Host carries the scheme,
// e.g. https://abc123.api.commercecloud.example.com.
type Config struct {
	Host         string
	OrgID        string
	ClientID     string
	ClientSecret string
	ChannelID    string
	SiteID       string
}

func (c Config) authURL() string {
	return fmt.Sprintf("%s/shopper/auth/v1/organizations/%s/oauth2/token", c.Host, c.OrgID)
}

func (c Config) productSearchURL() string {
	return fmt.Sprintf("%s/search/shopper-search/v1/organizations/%s/product-search", c.Host, c.OrgID)
}

func (c Config) basketsURL() string {
	return fmt.Sprintf("%s/checkout/shopper-baskets/v1/organizations/%s/baskets?siteId=%s", c.Host, c.OrgID, c.SiteID)
}

func (c Config) basketSubURL(basketID, sub string) string {
	return fmt.Sprintf("%s/checkout/shopper-baskets/v1/organizations/%s/baskets/%s/%s?siteId=%s",
		c.Host, c.OrgID, basketID, sub, c.SiteID)
}

func (c Config) basketItemsURL(basketID string) string    { return c.basketSubURL(basketID, "items") }
func (c Config) basketCustomerURL(basketID string) string { return c.basketSubURL(basketID, "customer") }
func (c Config) basketBillingURL(basketID string) string {
	return c.basketSubURL(basketID, "billing-address")
}
func (c Config) basketShipmentURL(basketID string) string {
	return c.basketSubURL(basketID, "shipments/me")
}
func (c Config) basketPaymentURL(basketID string) string {
	return c.basketSubURL(basketID, "payment-instruments")
}
func (c Config) basketCouponsURL(basketID string) string { return c.basketSubURL(basketID, "coupons") }

func (c Config) ordersURL() string {
	return fmt.Sprintf("%s/checkout/shopper-orders/v1/organizations/%s/orders?siteId=%s", c.Host, c.OrgID, c.SiteID)
}
