// products.go — Stripe product and price creation for DocVerify credit packs.
// Credit packs are one-time purchases, not subscriptions.
package stripe

import (
	"fmt"
	"log"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/price"
	"github.com/stripe/stripe-go/v76/product"
)

// PackPrice holds the Stripe IDs for a credit pack.
type PackPrice struct {
	ProductID string
	PriceID   string
}

// CreditPacks defines the purchasable verification credit bundles.
// Amounts are in USD cents. Slugs must match the credit_packs DB seed.
var CreditPacks = []struct {
	Name    string
	Slug    string
	Credits int
	Amount  int64 // USD cents
}{
	{"DocVerify Starter", "starter", 10, 499},
	{"DocVerify Pro", "pro", 50, 1999},
	{"DocVerify Bulk", "bulk", 200, 5999},
}

// CreateProducts creates all DocVerify credit pack products and one-time
// prices in Stripe. Returns a map of pack slug → PackPrice. Call from the
// seed command after configuring STRIPE_SECRET_KEY.
func (c *Client) CreateProducts() (map[string]PackPrice, error) {
	results := make(map[string]PackPrice)

	for _, pack := range CreditPacks {
		pp, err := c.createPackProduct(pack.Name, pack.Slug, pack.Credits, pack.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to create pack %s: %w", pack.Slug, err)
		}
		results[pack.Slug] = pp
		log.Printf("Created Stripe product for %s: product=%s price=%s",
			pack.Name, pp.ProductID, pp.PriceID)
	}
	return results, nil
}

// createPackProduct creates one Stripe product with a single one-time price.
func (c *Client) createPackProduct(name, slug string, credits int, amount int64) (PackPrice, error) {
	prod, err := product.New(&stripe.ProductParams{
		Name: stripe.String(name),
		Metadata: map[string]string{
			"docverify_pack": slug,
			"credits":        fmt.Sprintf("%d", credits),
		},
	})
	if err != nil {
		return PackPrice{}, fmt.Errorf("product.New: %w", err)
	}

	pr, err := price.New(&stripe.PriceParams{
		Product:    stripe.String(prod.ID),
		Currency:   stripe.String("usd"),
		UnitAmount: stripe.Int64(amount),
		Metadata: map[string]string{
			"docverify_pack": slug,
		},
	})
	if err != nil {
		return PackPrice{}, fmt.Errorf("price.New: %w", err)
	}

	return PackPrice{ProductID: prod.ID, PriceID: pr.ID}, nil
}
