package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"stockwright/internal/catalog"
	"stockwright/internal/errs"
	"stockwright/internal/feasibility"
	applog "stockwright/internal/log"
	"stockwright/models"
)

const productsPrefix = "/api/products"

type formulaRequest struct {
	Lines []catalog.FormulaLineInput `json:"lines"`
}

type feasibilityRequest struct {
	Lines []feasibility.Line `json:"lines"`
}

// ProductResource serves /api/products, formulas and feasibility.
func ProductResource(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}

	segments := splitPath(r.URL.Path, productsPrefix)
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listProducts(w, r)
		case http.MethodPost:
			createProduct(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	productID, err := parseID(segments[0])
	if err != nil {
		applog.Debug(r.Context(), "invalid product identifier", "identifier", segments[0], "error", err)
		http.NotFound(w, r)
		return
	}

	switch {
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		product, err := services.Catalog.GetProduct(r.Context(), productID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, product)
	case len(segments) == 2 && segments[1] == "formula":
		switch r.Method {
		case http.MethodGet:
			product, err := services.Catalog.GetProduct(r.Context(), productID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			lines := product.Formula
			if lines == nil {
				lines = []models.FormulaLine{}
			}
			writeJSON(w, http.StatusOK, lines)
		case http.MethodPut:
			replaceFormula(w, r, productID)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPut)
		}
	case len(segments) == 2 && segments[1] == "feasibility":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		productFeasibility(w, r, productID)
	default:
		http.NotFound(w, r)
	}
}

// FormulaFeasibility evaluates an ad-hoc list of lines against current stock.
func FormulaFeasibility(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req feasibilityRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := services.Feasibility.ForFormula(r.Context(), req.Lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := services.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := services.Catalog.CreateProduct(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func replaceFormula(w http.ResponseWriter, r *http.Request, productID uint) {
	var req formulaRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	product, err := services.Catalog.ReplaceFormula(r.Context(), productID, req.Lines)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func productFeasibility(w http.ResponseWriter, r *http.Request, productID uint) {
	quantity := decimal.Zero
	if raw := strings.TrimSpace(r.URL.Query().Get("quantity")); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, r, errs.Invalid("quantity", "must be a decimal number"))
			return
		}
		quantity = parsed
	}
	cached, err := parseBool(r, "cached")
	if err != nil {
		writeError(w, r, err)
		return
	}
	engine := services.Feasibility
	if cached {
		// Snapshot reads; a material never recomputed is reported as not found.
		engine = engine.WithReader(services.Recomputer)
	}
	result, err := engine.ForProduct(r.Context(), productID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
