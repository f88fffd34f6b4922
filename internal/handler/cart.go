package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-cart/internal/domain/cart"
)

const (
	msgAddFailed   = "Failed to add product to cart. Please try again later."
	msgTotalFailed = "Failed to calculate cart total. Please try again later."
)

// AddToCart handles POST /cart.
func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var productID, rawQuantity string
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = readString(d)
		case "quantity":
			rawQuantity, err = readNumber(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, msgAddFailed)
		return
	}

	quantity, err := cart.ParseQuantity(rawQuantity)
	if err != nil {
		writeError(w, r, err, msgAddFailed)
		return
	}

	res, err := h.cart.AddToCart(r.Context(), productID, quantity)
	if err != nil {
		writeError(w, r, err, msgAddFailed)
		return
	}

	msg := "Product quantity updated in cart"
	if res.Created {
		msg = "Product added to cart"
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.FieldStart("productId")
		e.Str(res.ProductID)
		e.FieldStart("quantity")
		e.Int64(res.Quantity)
		e.ObjEnd()
	})
}

// GetCart handles GET /cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.cart.GetCart(r.Context())
	if err != nil {
		writeError(w, r, err, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, item := range c.Items {
			e.ObjStart()
			e.FieldStart("productId")
			e.Str(item.Product.ID)
			e.FieldStart("quantity")
			e.Int64(item.Quantity)
			e.FieldStart("lineTotal")
			e.Raw([]byte(item.LineTotal.StringFixed(2)))
			e.FieldStart("createdAt")
			e.Str(item.AddedAt.UTC().Format(time.RFC3339Nano))
			e.FieldStart("product")
			encodeProduct(e, item.Product)
			e.ObjEnd()
		}
		e.ArrEnd()
	})
}

// GetCartTotal handles GET /cart/total.
func (h *Handler) GetCartTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.cart.GetCartTotal(r.Context())
	if err != nil {
		writeError(w, r, err, msgTotalFailed)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("total")
		e.Raw([]byte(total.StringFixed(2)))
		e.ObjEnd()
	})
}

// RemoveFromCart handles DELETE /cart/{productId}.
func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.RemoveFromCart(r.Context(), chi.URLParam(r, "productId")); err != nil {
		writeError(w, r, err, msgInternal)
		return
	}
	writeMessage(w, http.StatusOK, "Product removed from cart")
}
