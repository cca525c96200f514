package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/jx"

	"github.com/xenking/webstore/internal/domain/order"
)

// CreateOrder places an order and responds 201 with the created order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req order.CreateRequest
	if err := decodeBody(w, r, func(d *jx.Decoder) (err error) {
		req, err = decodeCreateOrder(d)
		return err
	}); err != nil {
		respondError(w, r, err)
		return
	}

	o, err := h.orders.CreateOrder(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/orders/"+strconv.FormatInt(o.ID, 10))
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

// GetOrder returns an order with its items and customer name.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o, true) })
}

// ListCustomerOrders returns the customer's orders, newest first, without
// their items.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r, "customerId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	orders, err := h.orders.ListCustomerOrders(r.Context(), customerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range orders {
			encodeOrder(e, &orders[i], false)
		}
		e.ArrEnd()
	})
}

// UpdateOrderStatus changes the status and responds 204.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var status string
	if err := decodeBody(w, r, func(d *jx.Decoder) (err error) {
		status, err = decodeStatus(d)
		return err
	}); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.orders.UpdateStatus(r.Context(), id, status); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelOrder cancels a Pending order and responds 204.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.orders.CancelOrder(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetDiscountInfo reports the customer's loyalty tier, or 404 when it cannot
// be determined.
func (h *Handler) GetDiscountInfo(w http.ResponseWriter, r *http.Request) {
	customerID, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	info, ok := h.orders.DiscountInfo(r.Context(), customerID)
	if !ok {
		writeError(w, http.StatusNotFound, "discount information is not available")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeDiscountInfo(e, info) })
}
