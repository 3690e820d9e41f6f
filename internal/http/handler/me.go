package handler

import (
	"net/http"

	"warden/internal/auth"
)

type MeHandler struct{}

func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"operator_id": id.OperatorID,
		"admin":       id.Admin,
	})
}
