package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/jx"

	"github.com/xenking/webstore/internal/domain/product"
)

// ListProducts returns the whole catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, products) })
}

// GetProduct returns one product or 404.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	p, err := h.products.GetByID(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// ListProductsByCategory returns the products of one category. An unknown
// category yields an empty list.
func (h *Handler) ListProductsByCategory(w http.ResponseWriter, r *http.Request) {
	categoryID, err := pathID(r, "categoryId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	products, err := h.products.ListByCategory(r.Context(), categoryID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, products) })
}

// SearchProducts matches ?term= against names and descriptions.
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("term"))
	if term == "" {
		respondError(w, r, badRequest("Search term cannot be empty"))
		return
	}
	products, err := h.products.Search(r.Context(), term)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProducts(e, products) })
}

// CreateProduct adds a product and responds 201 with a Location header.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var p product.Product
	if err := decodeBody(w, r, func(d *jx.Decoder) (err error) {
		p, err = decodeProduct(d)
		return err
	}); err != nil {
		respondError(w, r, err)
		return
	}
	if err := p.Validate(); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.products.Create(r.Context(), &p); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/products/"+strconv.FormatInt(p.ID, 10))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, &p) })
}

// UpdateProduct overwrites a product and responds 204.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var p product.Product
	if err := decodeBody(w, r, func(d *jx.Decoder) (err error) {
		p, err = decodeProduct(d)
		return err
	}); err != nil {
		respondError(w, r, err)
		return
	}
	p.ID = id
	if err := p.Validate(); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.products.Update(r.Context(), &p); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteProduct removes a product and responds 204. Existing orders keep
// their lines.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.products.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
