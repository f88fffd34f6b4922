// Package handler exposes the catalog and cart services over HTTP.
package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/apperr"
	"github.com/xenking/kart-cart/internal/domain/cart"
	"github.com/xenking/kart-cart/internal/domain/product"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

const msgInternal = "Internal server error"

var errBadBody = apperr.Validation("body", "Invalid request body")

// Handler serves the catalog and cart routes.
type Handler struct {
	products *product.Service
	cart     *cart.Service
}

// New creates a Handler over the given services.
func New(products *product.Service, cart *cart.Service) *Handler {
	return &Handler{
		products: products,
		cart:     cart,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.NotFound(h.notFound)
	r.MethodNotAllowed(h.methodNotAllowed)

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{productId}", h.GetProduct)
	})
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/", h.AddToCart)
		r.Get("/total", h.GetCartTotal)
		r.Delete("/{productId}", h.RemoveFromCart)
	})
}

func (h *Handler) notFound(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusNotFound, "Route not found")
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// readObject decodes a JSON object body, calling fn for every field.
func readObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errBadBody
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return errBadBody
	}
	if err := d.Obj(fn); err != nil {
		if apperr.Classified(err) {
			return err
		}
		return errBadBody
	}
	return nil
}

// readString returns the field as a string, or "" for any other JSON type.
func readString(d *jx.Decoder) (string, error) {
	if d.Next() != jx.String {
		return "", d.Skip()
	}
	return d.Str()
}

// readNumber returns the textual form of a JSON number, or "" for any other
// JSON type.
func readNumber(d *jx.Decoder) (string, error) {
	if d.Next() != jx.Number {
		return "", d.Skip()
	}
	num, err := d.Num()
	if err != nil {
		return "", err
	}
	return num.String(), nil
}

// writeError maps err to a status by kind. Store failures are logged and
// answered with internalMsg so driver details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	var (
		validation *apperr.ValidationError
		notFound   *apperr.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		writeMessage(w, http.StatusBadRequest, validation.Reason)
	case errors.As(err, &notFound):
		writeMessage(w, http.StatusNotFound, notFound.Error())
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeMessage(w, http.StatusInternalServerError, internalMsg)
	}
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("message")
		e.Str(msg)
		e.ObjEnd()
	})
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
