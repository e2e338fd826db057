package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sitemate/sitemate/pkg/boq"
	"github.com/sitemate/sitemate/pkg/consumption"
)

type BillDTO struct {
	Id       int           `json:"id"`
	Number   string        `json:"number"`
	BillType string        `json:"billType"`
	Currency string        `json:"currency"`
	BillDate string        `json:"billDate"`
	State    string        `json:"state"`
	Lines    []BillLineDTO `json:"lines,omitempty"`
}

type BillLineDTO struct {
	Id             int             `json:"id"`
	BillId         int             `json:"billId"`
	PurchaseLineId int             `json:"purchaseLineId,omitempty"`
	BoqLineId      int             `json:"boqLineId,omitempty"`
	ProductId      int             `json:"productId,omitempty"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity"`
	Subtotal       decimal.Decimal `json:"subtotal"`
}

func billToDTO(b Bill) BillDTO {
	dto := BillDTO{
		Id:       b.Id,
		Number:   b.Number,
		BillType: string(b.BillType),
		Currency: b.Currency,
		BillDate: b.BillDate.Format(dateFormat),
		State:    string(b.State),
	}
	for _, l := range b.Lines {
		dto.Lines = append(dto.Lines, BillLineDTO{
			Id:             l.Id,
			BillId:         l.BillId,
			PurchaseLineId: l.PurchaseLineId,
			BoqLineId:      l.BoqLineId,
			ProductId:      l.ProductId,
			Description:    l.Description,
			Quantity:       l.Quantity,
			Subtotal:       l.Subtotal,
		})
	}
	return dto
}

func dtoToBill(dto BillDTO) (Bill, error) {
	b := Bill{
		Id:       dto.Id,
		Number:   dto.Number,
		BillType: BillType(dto.BillType),
		Currency: dto.Currency,
	}
	if dto.BillDate != "" {
		date, err := time.Parse(dateFormat, dto.BillDate)
		if err != nil {
			return Bill{}, fmt.Errorf("invalid bill date %q: %w", dto.BillDate, err)
		}
		b.BillDate = date
	}
	for _, l := range dto.Lines {
		b.Lines = append(b.Lines, BillLine{
			PurchaseLineId: l.PurchaseLineId,
			BoqLineId:      l.BoqLineId,
			ProductId:      l.ProductId,
			Description:    l.Description,
			Quantity:       l.Quantity,
			Subtotal:       l.Subtotal,
		})
	}
	return b, nil
}

func writeError(w http.ResponseWriter, err error) {
	var exceeded consumption.BudgetExceededError
	var contended consumption.ConcurrentModificationError
	switch {
	case errors.As(err, &exceeded):
		http.Error(w, exceeded.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &contended):
		http.Error(w, contended.Error(), http.StatusConflict)
	case errors.Is(err, ErrBillNotFound), errors.Is(err, ErrNoRate):
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
	log.Debug("Creating new vendor bill")
	w.Header().Set("Content-Type", "application/json")

	var dto BillDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	bill, err := dtoToBill(dto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), bill)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(billToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	bills, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	dtos := make([]BillDTO, 0, len(bills))
	for _, b := range bills {
		dtos = append(dtos, billToDTO(b))
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

	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(billToDTO(b)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	posted, err := h.service.Post(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(billToDTO(posted)); err != nil {
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
