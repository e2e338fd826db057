package purchase

import (
	"context"
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

type OrderDTO struct {
	Id        int            `json:"id"`
	Number    string         `json:"number"`
	OrderType string         `json:"orderType"`
	ProjectId int            `json:"projectId,omitempty"`
	BoqId     int            `json:"boqId,omitempty"`
	State     string         `json:"state"`
	Lines     []OrderLineDTO `json:"lines,omitempty"`
}

type OrderLineDTO struct {
	Id          int             `json:"id"`
	OrderId     int             `json:"orderId"`
	BoqLineId   int             `json:"boqLineId,omitempty"`
	ProductId   int             `json:"productId,omitempty"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Uom         string          `json:"uom,omitempty"`
}

func orderToDTO(o Order) OrderDTO {
	dto := OrderDTO{
		Id:        o.Id,
		Number:    o.Number,
		OrderType: string(o.OrderType),
		ProjectId: o.ProjectId,
		BoqId:     o.BoqId,
		State:     string(o.State),
	}
	for _, l := range o.Lines {
		dto.Lines = append(dto.Lines, OrderLineDTO{
			Id:          l.Id,
			OrderId:     l.OrderId,
			BoqLineId:   l.BoqLineId,
			ProductId:   l.ProductId,
			Description: l.Description,
			Quantity:    l.Quantity,
			Uom:         l.Uom,
		})
	}
	return dto
}

func dtoToOrder(dto OrderDTO) Order {
	o := Order{
		Id:        dto.Id,
		Number:    dto.Number,
		OrderType: OrderType(dto.OrderType),
		ProjectId: dto.ProjectId,
		BoqId:     dto.BoqId,
	}
	for _, l := range dto.Lines {
		o.Lines = append(o.Lines, OrderLine{
			BoqLineId:   l.BoqLineId,
			ProductId:   l.ProductId,
			Description: l.Description,
			Quantity:    l.Quantity,
			Uom:         l.Uom,
		})
	}
	return o
}

func writeError(w http.ResponseWriter, err error) {
	var exceeded consumption.BudgetExceededError
	switch {
	case errors.As(err, &exceeded):
		http.Error(w, exceeded.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, ErrOrderNotFound):
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
	log.Debug("Creating new purchase order")
	w.Header().Set("Content-Type", "application/json")

	var dto OrderDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), dtoToOrder(dto))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(orderToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	orders, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]OrderDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, orderToDTO(o))
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

	o, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(orderToDTO(o)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Confirm)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int) (Order, error)) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	o, err := op(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(orderToDTO(o)); err != nil {
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
