package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/shoppie-backend/internal/domain/product"
)

type productResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Category     string          `json:"category,omitempty"`
	Image        string          `json:"image,omitempty"`
	Price        decimal.Decimal `json:"price"`
	RegularPrice decimal.Decimal `json:"regular_price"`
	InStock      bool            `json:"in_stock"`
}

func toProductResponse(p *product.Product) productResponse {
	return productResponse{
		ID:           p.ID,
		Name:         p.Name,
		Category:     p.Category,
		Image:        p.Image,
		Price:        p.Price(),
		RegularPrice: p.RegularPrice,
		InStock:      p.Quantity > 0,
	}
}

// ListProducts returns the purchasable catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for i := range products {
		resp = append(resp, toProductResponse(&products[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetProduct returns a single product by id.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(p))
}
