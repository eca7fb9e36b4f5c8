package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"stockwright/internal/catalog"
	applog "stockwright/internal/log"
	"stockwright/internal/store"
	"stockwright/models"
)

const materialsPrefix = "/api/materials"

type stockResponse struct {
	MaterialID     uint            `json:"material_id"`
	Quantity       decimal.Decimal `json:"quantity"`
	RawQuantity    decimal.Decimal `json:"raw_quantity"`
	MovementCount  int             `json:"movement_count"`
	LastMovementAt *time.Time      `json:"last_movement_at,omitempty"`
	AsOf           *time.Time      `json:"as_of,omitempty"`
	// Source is "ledger" for an on-demand fold and "snapshot" for the cache.
	Source     string     `json:"source"`
	ComputedAt *time.Time `json:"computed_at,omitempty"`
}

type movementRequest struct {
	Quantity   decimal.Decimal  `json:"quantity"`
	Direction  models.Direction `json:"direction"`
	OccurredAt *time.Time       `json:"occurred_at"`
	Notes      string           `json:"notes"`
	Reference  string           `json:"reference"`
}

// MaterialResource serves /api/materials and its sub-resources.
func MaterialResource(w http.ResponseWriter, r *http.Request) {
	if !available(w, r) {
		return
	}

	segments := splitPath(r.URL.Path, materialsPrefix)
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			listMaterials(w, r)
		case http.MethodPost:
			createMaterial(w, r)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	materialID, err := parseID(segments[0])
	if err != nil {
		applog.Debug(r.Context(), "invalid material identifier", "identifier", segments[0], "error", err)
		http.NotFound(w, r)
		return
	}

	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			material, err := services.Catalog.GetMaterial(r.Context(), materialID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, material)
		case http.MethodDelete:
			if err := services.Catalog.DeleteMaterial(r.Context(), materialID); err != nil {
				writeError(w, r, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodDelete)
		}
		return
	}

	if len(segments) == 3 && segments[1] == "stock" && segments[2] == "recompute" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		recomputeMaterial(w, r, materialID)
		return
	}
	if len(segments) > 2 {
		http.NotFound(w, r)
		return
	}

	switch segments[1] {
	case "deactivate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		material, err := services.Catalog.DeactivateMaterial(r.Context(), materialID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, material)
	case "stock":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		showStock(w, r, materialID)
	case "movements":
		switch r.Method {
		case http.MethodGet:
			listMovements(w, r, materialID)
		case http.MethodPost:
			recordMovement(w, r, materialID)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	default:
		http.NotFound(w, r)
	}
}

func listMaterials(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := parseBool(r, "active")
	if err != nil {
		writeError(w, r, err)
		return
	}
	materials, err := services.Catalog.ListMaterials(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if materials == nil {
		materials = []models.Material{}
	}
	writeJSON(w, http.StatusOK, materials)
}

func createMaterial(w http.ResponseWriter, r *http.Request) {
	var in catalog.MaterialInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	material, err := services.Catalog.CreateMaterial(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, material)
}

func showStock(w http.ResponseWriter, r *http.Request, materialID uint) {
	cached, err := parseBool(r, "cached")
	if err != nil {
		writeError(w, r, err)
		return
	}
	asOf, err := parseAsOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if cached {
		if !asOf.IsZero() {
			writeJSONError(w, http.StatusBadRequest, "as_of cannot be combined with cached")
			return
		}
		snapshot, err := services.Recomputer.CachedStock(r.Context(), materialID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshotResponse(snapshot))
		return
	}

	balance, err := services.Calculator.Balance(r.Context(), materialID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := stockResponse{
		MaterialID:     materialID,
		Quantity:       balance.Quantity,
		RawQuantity:    balance.Raw,
		MovementCount:  balance.MovementCount,
		LastMovementAt: balance.LastMovementAt,
		Source:         "ledger",
	}
	if !asOf.IsZero() {
		resp.AsOf = &asOf
	}
	writeJSON(w, http.StatusOK, resp)
}

func snapshotResponse(snapshot *models.StockSnapshot) stockResponse {
	computedAt := snapshot.ComputedAt
	return stockResponse{
		MaterialID:    snapshot.MaterialID,
		Quantity:      snapshot.Quantity,
		RawQuantity:   snapshot.RawQuantity,
		MovementCount: snapshot.MovementCount,
		Source:        "snapshot",
		ComputedAt:    &computedAt,
	}
}

// recomputeMaterial refreshes one material's snapshot outside a full pass.
func recomputeMaterial(w http.ResponseWriter, r *http.Request, materialID uint) {
	snapshot, err := services.Recomputer.Recompute(r.Context(), materialID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snapshot))
}

func listMovements(w http.ResponseWriter, r *http.Request, materialID uint) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	movements, err := services.Ledger.Movements(r.Context(), materialID, asOf)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if movements == nil {
		movements = []models.Movement{}
	}
	writeJSON(w, http.StatusOK, movements)
}

func recordMovement(w http.ResponseWriter, r *http.Request, materialID uint) {
	var req movementRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}
	in := store.MovementInput{
		MaterialID: materialID,
		Quantity:   req.Quantity,
		Direction:  req.Direction,
		Notes:      req.Notes,
		Reference:  req.Reference,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}
	result, err := services.Ledger.Record(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	writeJSON(w, http.StatusCreated, result)
}
