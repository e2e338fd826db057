package revision

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/pkg/boq"
)

type RevisionDTO struct {
	Id            int    `json:"id"`
	OriginalBoqId int    `json:"originalBoqId"`
	NewBoqId      int    `json:"newBoqId"`
	Reason        string `json:"reason"`
	RequestedById int    `json:"requestedById,omitempty"`
}

func revisionToDTO(r Revision) RevisionDTO {
	return RevisionDTO{
		Id:            r.Id,
		OriginalBoqId: r.OriginalBoqId,
		NewBoqId:      r.NewBoqId,
		Reason:        r.Reason,
		RequestedById: r.RequestedById,
	}
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

type createRevisionRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	boqId, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req createRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Debugf("Creating revision of BOQ %d", boqId)

	revised, err := h.service.CreateRevision(r.Context(), boqId, req.Reason)
	if err != nil {
		boq.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(boq.BOQToDTO(revised)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	boqId, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	revisions, err := h.service.History(r.Context(), boqId)
	if err != nil {
		boq.WriteError(w, err)
		return
	}

	dtos := make([]RevisionDTO, 0, len(revisions))
	for _, rev := range revisions {
		dtos = append(dtos, revisionToDTO(rev))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func pathId(r *http.Request, name string) (int, error) {
	value, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}
