package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/cart"
)

type cartItemResponse struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type cartResponse struct {
	Items      []cartItemResponse `json:"items"`
	TotalItems int                `json:"total_items"`
	SubTotal   decimal.Decimal    `json:"subtotal"`
	CouponCode string             `json:"coupon_code,omitempty"`
	Discount   decimal.Decimal    `json:"discount"`
	FinalTotal decimal.Decimal    `json:"final_total"`
}

func toCartResponse(c *cart.Cart) cartResponse {
	items := make([]cartItemResponse, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, cartItemResponse{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Image:       it.Image,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Subtotal(),
		})
	}
	return cartResponse{
		Items:      items,
		TotalItems: c.TotalItems,
		SubTotal:   c.SubTotal,
		CouponCode: c.CouponCode,
		Discount:   c.Discount,
		FinalTotal: c.FinalTotal,
	}
}

// GetCart returns the user's cart, revalidating any applied coupon.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.GetCart(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type addToCartRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds a product to the cart or bumps its quantity.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.ProductID == "" || req.Quantity <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "product_id and a positive quantity are required")
		return
	}

	c, err := h.carts.AddToCart(r.Context(), userID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// RemoveFromCart drops a product line from the cart.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.RemoveFromCart(r.Context(), userID(r.Context()), chi.URLParam(r, "productID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon applies a coupon code to the cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}

	c, err := h.coupons.Apply(r.Context(), userID(r.Context()), req.Code)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

// RemoveCoupon detaches the applied coupon from the cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.Remove(r.Context(), userID(r.Context()))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}
