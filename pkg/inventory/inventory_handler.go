package inventory

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
)

type StockMoveDTO struct {
	Id              int             `json:"id"`
	Reference       string          `json:"reference,omitempty"`
	ProductId       int             `json:"productId"`
	BoqLineId       int             `json:"boqLineId,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitCost        decimal.Decimal `json:"unitCost"`
	SourceKind      string          `json:"sourceKind"`
	DestinationKind string          `json:"destinationKind"`
	State           string          `json:"state"`
}

type CompletionDTO struct {
	Move             StockMoveDTO `json:"move"`
	ConsumedBudget   bool         `json:"consumedBudget"`
	ExpenseAccountId int          `json:"expenseAccountId,omitempty"`
}

func moveToDTO(m StockMove) StockMoveDTO {
	return StockMoveDTO{
		Id:              m.Id,
		Reference:       m.Reference,
		ProductId:       m.ProductId,
		BoqLineId:       m.BoqLineId,
		Quantity:        m.Quantity,
		UnitCost:        m.UnitCost,
		SourceKind:      string(m.SourceKind),
		DestinationKind: string(m.DestinationKind),
		State:           string(m.State),
	}
}

func dtoToMove(dto StockMoveDTO) StockMove {
	return StockMove{
		Id:              dto.Id,
		Reference:       dto.Reference,
		ProductId:       dto.ProductId,
		BoqLineId:       dto.BoqLineId,
		Quantity:        dto.Quantity,
		UnitCost:        dto.UnitCost,
		SourceKind:      LocationKind(dto.SourceKind),
		DestinationKind: LocationKind(dto.DestinationKind),
	}
}

func writeError(w http.ResponseWriter, err error) {
	var exceeded consumption.BudgetExceededError
	var contended consumption.ConcurrentModificationError
	switch {
	case errors.As(err, &exceeded):
		http.Error(w, exceeded.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &contended):
		http.Error(w, contended.Error(), http.StatusConflict)
	case errors.Is(err, ErrMoveNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		boq.WriteError(w, err)
	}
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new stock move")
	w.Header().Set("Content-Type", "application/json")

	var dto StockMoveDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), dtoToMove(dto))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(moveToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	moves, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]StockMoveDTO, 0, len(moves))
	for _, m := range moves {
		dtos = append(dtos, moveToDTO(m))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(moveToDTO(m)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	completion, err := h.service.Complete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	dto := CompletionDTO{
		Move:             moveToDTO(completion.Move),
		ConsumedBudget:   completion.ConsumedBudget,
		ExpenseAccountId: completion.ExpenseAccountId,
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(moveToDTO(m)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func pathId(r *http.Request) (int, error) {
	value, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}
