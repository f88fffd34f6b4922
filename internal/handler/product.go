package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-cart/internal/domain/product"
)

// CreateProduct handles POST /products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var name, rawPrice string
	err := readObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			name, err = readString(d)
		case "price":
			rawPrice, err = readPrice(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		writeError(w, r, err, msgInternal)
		return
	}
	if err := product.ValidateName(name); err != nil {
		writeError(w, r, err, msgInternal)
		return
	}
	price, err := product.ParsePrice(rawPrice)
	if err != nil {
		writeError(w, r, err, msgInternal)
		return
	}

	id, err := h.products.Create(r.Context(), name, price)
	if err != nil {
		writeError(w, r, err, msgInternal)
		return
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str("Product added")
		e.FieldStart("productId")
		e.Str(id)
		e.ObjEnd()
	})
}

// readPrice accepts a JSON number or a numeric string.
func readPrice(d *jx.Decoder) (string, error) {
	if d.Next() == jx.String {
		return d.Str()
	}
	return readNumber(d)
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, p := range products {
			encodeProduct(e, p)
		}
		e.ArrEnd()
	})
}

// GetProduct handles GET /products/{productId}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.Get(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err, msgInternal)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeProduct(e, *p)
	})
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("_id")
	e.Str(p.ID)
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Raw([]byte(p.Price.String()))
	e.FieldStart("createdAt")
	e.Str(p.CreatedAt.UTC().Format(time.RFC3339Nano))
	e.ObjEnd()
}
