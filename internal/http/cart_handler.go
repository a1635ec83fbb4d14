package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/cart-reminder-service-go/internal/http/middleware"
)

const requestTimeout = 3 * time.Second

type CartService interface {
	AddProduct(ctx context.Context, customerEmail, productID string, quantity int) (cart.Item, error)
	GetActiveCart(ctx context.Context, customerEmail string) (cart.Cart, error)
	FinalizeCart(ctx context.Context, cartID string) (cart.Cart, error)
}

// TokenVerifier checks the completion token carried by reminder links.
type TokenVerifier interface {
	Verify(cartID, token string) bool
}

type StatsReader interface {
	Get(ctx context.Context) (cart.Statistics, error)
}

type CartHandler struct {
	carts  CartService
	tokens TokenVerifier
	stats  StatsReader
	logger *slog.Logger
}

func NewCartHandler(carts CartService, tokens TokenVerifier, stats StatsReader, logger *slog.Logger) *CartHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CartHandler{carts: carts, tokens: tokens, stats: stats, logger: logger}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type cartResponse struct {
	cart.Cart
	Total string `json:"total"`
}

func newCartResponse(c cart.Cart) cartResponse {
	if c.Items == nil {
		c.Items = []cart.Item{}
	}
	return cartResponse{Cart: c, Total: c.Total().StringFixed(2)}
}

type addProductRequest struct {
	CustomerEmail string `json:"customer_email"`
	ProductID     string `json:"product_id"`
	Quantity      *int   `json:"quantity"`
}

func (h *CartHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var body addProductRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	email, ok := normalizeEmail(body.CustomerEmail)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "customer_email must be a valid email address")
		return
	}
	quantity := 1
	if body.Quantity != nil {
		quantity = *body.Quantity
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	item, err := h.carts.AddProduct(ctx, email, body.ProductID, quantity)
	if err != nil {
		h.fail(w, r, "add product", err)
		return
	}

	writeJSON(w, http.StatusCreated, response{
		Success: true,
		Message: "product added to cart",
		Data: map[string]any{
			"cart_id":   item.CartID,
			"cart_item": item,
		},
	})
}

func (h *CartHandler) GetActiveCart(w http.ResponseWriter, r *http.Request) {
	email, ok := normalizeEmail(r.URL.Query().Get("customer_email"))
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "customer_email must be a valid email address")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.carts.GetActiveCart(ctx, email)
	if err != nil {
		h.fail(w, r, "get active cart", err)
		return
	}

	writeJSON(w, http.StatusOK, response{Success: true, Data: newCartResponse(c)})
}

func (h *CartHandler) FinalizeCart(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, chi.URLParam(r, "cartId"))
}

// CompleteCart is the target of the link in reminder notifications. It
// finalizes the cart when the token matches.
func (h *CartHandler) CompleteCart(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")
	if !h.tokens.Verify(cartID, r.URL.Query().Get("token")) {
		writeError(w, http.StatusForbidden, "invalid completion token")
		return
	}
	h.finalize(w, r, cartID)
}

func (h *CartHandler) finalize(w http.ResponseWriter, r *http.Request, cartID string) {
	if cartID == "" {
		writeError(w, http.StatusBadRequest, "missing cartId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	c, err := h.carts.FinalizeCart(ctx, cartID)
	if err != nil {
		h.fail(w, r, "finalize cart", err)
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Message: "cart finalized",
		Data:    newCartResponse(c),
	})
}

func (h *CartHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	st, err := h.stats.Get(ctx)
	if err != nil {
		h.fail(w, r, "load statistics", err)
		return
	}
	writeJSON(w, http.StatusOK, response{Success: true, Data: st})
}

func (h *CartHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "cart-service"})
}

// fail maps domain error kinds to status codes. An unknown product is a
// client mistake in the request body, not a missing resource.
func (h *CartHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, cart.ErrProductNotFound), errors.Is(err, cart.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cart.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, cart.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(r.Context(), op+" failed",
			"error", err,
			"correlation_id", middleware.GetCorrelationID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// normalizeEmail accepts a bare address only, no display name.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", false
	}
	return raw, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, response{Success: false, Message: msg})
}
