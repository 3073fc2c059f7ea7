// Package httpapi exposes the commerce services over HTTP. Handlers stay
// thin: decode, delegate to a service, map the result or error. All domain
// decisions live in internal/commerce.
package httpapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/xenking/shoppie-backend/internal/commerce"
	"github.com/xenking/shoppie-backend/internal/domain/auth"
	"github.com/xenking/shoppie-backend/internal/domain/product"
)

// Config holds non-dependency settings for the Handler.
type Config struct {
	// APIKeyPepper is the HMAC key used to hash client API keys before lookup.
	APIKeyPepper []byte
	// OpsKey guards the fulfillment endpoints (status advancement, return
	// resolution). Empty disables those routes.
	OpsKey string
}

// Handler carries the services behind the HTTP surface.
type Handler struct {
	products product.Repository
	carts    *commerce.CartService
	coupons  *commerce.CouponTracker
	orders   *commerce.OrderService
	wallets  *commerce.WalletService
	apikeys  auth.Repository

	pepper []byte
	opsKey string
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(
	cfg Config,
	products product.Repository,
	carts *commerce.CartService,
	coupons *commerce.CouponTracker,
	orders *commerce.OrderService,
	wallets *commerce.WalletService,
	apikeys auth.Repository,
) *Handler {
	return &Handler{
		products: products,
		carts:    carts,
		coupons:  coupons,
		orders:   orders,
		wallets:  wallets,
		apikeys:  apikeys,
		pepper:   cfg.APIKeyPepper,
		opsKey:   cfg.OpsKey,
	}
}

// Router builds the chi route tree for the API.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", h.ListProducts)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddToCart)
			r.Delete("/cart/items/{productID}", h.RemoveFromCart)
			r.Post("/cart/coupon", h.ApplyCoupon)
			r.Delete("/cart/coupon", h.RemoveCoupon)

			r.Get("/wallet", h.GetWallet)
			r.Get("/wallet/transactions", h.ListWalletTransactions)
			r.Post("/wallet/topup", h.TopUpWallet)

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Post("/orders/{id}/items/{itemID}/cancel", h.CancelItem)
			r.Post("/orders/{id}/return", h.ReturnOrder)

			r.Post("/checkout", h.CreateCheckout)
			r.Post("/checkout/confirm", h.ConfirmPayment)
		})

		if h.opsKey != "" {
			r.Group(func(r chi.Router) {
				r.Use(h.AuthenticateOps)

				r.Post("/fulfillment/orders/{id}/status", h.AdvanceOrderStatus)
				r.Post("/fulfillment/orders/{id}/return", h.ResolveReturn)
			})
		}
	})

	return r
}
