package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProductHandler struct {
	catalog catalog.Catalog
	timeout time.Duration
	log     *zap.Logger
}

func NewProductHandler(c catalog.Catalog, timeout time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: c, timeout: timeout, log: log}
}

type CreateProductRequestDTO struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
	Category    string          `json:"category"`
}

// GET /api/v1/products?skip=&limit=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	skip, ok := queryInt(w, r, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit", catalog.DefaultLimit)
	if !ok {
		return
	}

	products, err := h.catalog.ListProducts(ctx, skip, limit)
	if err != nil {
		handleError(w, h.log, err)
		return
	}
	if products == nil {
		products = []*domain.Product{}
	}

	respondJSON(w, http.StatusOK, products)
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

// POST /api/v1/products (admin)
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	product := &domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
		Category:    req.Category,
	}
	if err := h.catalog.CreateProduct(ctx, product); err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

// DELETE /api/v1/products/{product_id} (admin)
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		handleError(w, h.log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", key+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}
