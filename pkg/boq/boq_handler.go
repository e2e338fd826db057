package boq

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type BOQDTO struct {
	Id                int             `json:"id"`
	Name              string          `json:"name"`
	ProjectId         int             `json:"projectId"`
	SaleOrderId       int             `json:"saleOrderId,omitempty"`
	AnalyticAccountId int             `json:"analyticAccountId"`
	CompanyId         int             `json:"companyId"`
	Currency          string          `json:"currency"`
	Version           int             `json:"version"`
	State             string          `json:"state"`
	ApprovalDate      string          `json:"approvalDate,omitempty"`
	ApprovedById      int             `json:"approvedById,omitempty"`
	TotalBudget       decimal.Decimal `json:"totalBudget"`
	Sections          []SectionDTO    `json:"sections,omitempty"`
	Lines             []LineDTO       `json:"lines,omitempty"`
}

type SectionDTO struct {
	Id       int    `json:"id"`
	BoqId    int    `json:"boqId"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

type LineDTO struct {
	Id                   int             `json:"id"`
	BoqId                int             `json:"boqId"`
	SectionId            int             `json:"sectionId,omitempty"`
	ProductId            int             `json:"productId,omitempty"`
	Sequence             int             `json:"sequence"`
	Description          string          `json:"description"`
	DisplayType          string          `json:"displayType"`
	CostType             string          `json:"costType,omitempty"`
	Quantity             decimal.Decimal `json:"quantity"`
	Uom                  string          `json:"uom,omitempty"`
	Rate                 decimal.Decimal `json:"rate"`
	BudgetAmount         decimal.Decimal `json:"budgetAmount"`
	AdditionalQuantity   decimal.Decimal `json:"additionalQuantity"`
	AllowOverConsumption bool            `json:"allowOverConsumption"`
	ExpenseAccountId     int             `json:"expenseAccountId,omitempty"`
	IsComplete           bool            `json:"isComplete"`
}

type LineStatusDTO struct {
	Line              LineDTO         `json:"line"`
	OrderedQuantity   decimal.Decimal `json:"orderedQuantity"`
	ConsumedQuantity  decimal.Decimal `json:"consumedQuantity"`
	ConsumedAmount    decimal.Decimal `json:"consumedAmount"`
	RemainingQuantity decimal.Decimal `json:"remainingQuantity"`
	RemainingAmount   decimal.Decimal `json:"remainingAmount"`
	IsComplete        bool            `json:"isComplete"`
}

func BOQToDTO(b BOQ) BOQDTO {
	dto := BOQDTO{
		Id:                b.Id,
		Name:              b.Name,
		ProjectId:         b.ProjectId,
		SaleOrderId:       b.SaleOrderId,
		AnalyticAccountId: b.AnalyticAccountId,
		CompanyId:         b.CompanyId,
		Currency:          b.Currency,
		Version:           b.Version,
		State:             string(b.State),
		ApprovedById:      b.ApprovedById,
		TotalBudget:       b.TotalBudget,
	}
	if !b.ApprovalDate.IsZero() {
		dto.ApprovalDate = b.ApprovalDate.Format(dateFormat)
	}
	for _, s := range b.Sections {
		dto.Sections = append(dto.Sections, SectionToDTO(s))
	}
	for _, l := range b.Lines {
		dto.Lines = append(dto.Lines, LineToDTO(l))
	}
	return dto
}

func SectionToDTO(s Section) SectionDTO {
	return SectionDTO{Id: s.Id, BoqId: s.BoqId, Name: s.Name, Sequence: s.Sequence}
}

func LineToDTO(l Line) LineDTO {
	return LineDTO{
		Id:                   l.Id,
		BoqId:                l.BoqId,
		SectionId:            l.SectionId,
		ProductId:            l.ProductId,
		Sequence:             l.Sequence,
		Description:          l.Description,
		DisplayType:          string(l.DisplayType),
		CostType:             string(l.CostType),
		Quantity:             l.Quantity,
		Uom:                  l.Uom,
		Rate:                 l.Rate,
		BudgetAmount:         l.BudgetAmount,
		AdditionalQuantity:   l.AdditionalQuantity,
		AllowOverConsumption: l.AllowOverConsumption,
		ExpenseAccountId:     l.ExpenseAccountId,
		IsComplete:           l.IsComplete,
	}
}

func DTOToLine(dto LineDTO) Line {
	return Line{
		Id:                   dto.Id,
		BoqId:                dto.BoqId,
		SectionId:            dto.SectionId,
		ProductId:            dto.ProductId,
		Sequence:             dto.Sequence,
		Description:          dto.Description,
		DisplayType:          DisplayType(dto.DisplayType),
		CostType:             CostType(dto.CostType),
		Quantity:             dto.Quantity,
		Uom:                  dto.Uom,
		Rate:                 dto.Rate,
		AdditionalQuantity:   dto.AdditionalQuantity,
		AllowOverConsumption: dto.AllowOverConsumption,
		ExpenseAccountId:     dto.ExpenseAccountId,
	}
}

// WriteError maps domain errors to HTTP status codes. Shared by the handlers
// that surface BOQ errors.
func WriteError(w http.ResponseWriter, err error) {
	var validation ValidationError
	var locked LockedDocumentError
	var invalidState InvalidStateError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.As(err, &locked):
		http.Error(w, locked.Error(), http.StatusConflict)
	case errors.As(err, &invalidState):
		http.Error(w, invalidState.Error(), http.StatusConflict)
	case errors.Is(err, ErrBOQNotFound), errors.Is(err, ErrLineNotFound), errors.Is(err, ErrProductNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service}
}

type createBOQRequest struct {
	Name              string `json:"name"`
	ProjectId         int    `json:"projectId"`
	SaleOrderId       int    `json:"saleOrderId"`
	AnalyticAccountId int    `json:"analyticAccountId"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new BOQ")
	w.Header().Set("Content-Type", "application/json")

	var req createBOQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), NewBOQ{
		Name:              req.Name,
		ProjectId:         req.ProjectId,
		SaleOrderId:       req.SaleOrderId,
		AnalyticAccountId: req.AnalyticAccountId,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(BOQToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) GetAll(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	boqs, err := h.service.List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	dtos := make([]BOQDTO, 0, len(boqs))
	for _, b := range boqs {
		dtos = append(dtos, BOQToDTO(b))
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(BOQToDTO(b)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

type addSectionRequest struct {
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

func (h *Handler) AddSection(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	boqId, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req addSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.AddSection(r.Context(), Section{BoqId: boqId, Name: req.Name, Sequence: req.Sequence})
	if err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(SectionToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) AddLine(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	boqId, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto LineDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	line := DTOToLine(dto)
	line.BoqId = boqId

	created, err := h.service.AddLine(r.Context(), line)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(LineToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	lineId, err := pathId(r, "lineId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto LineDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if dto.Id != 0 && dto.Id != lineId {
		http.Error(w, "Line id in request body does not match the path", http.StatusBadRequest)
		return
	}
	line := DTOToLine(dto)
	line.Id = lineId

	updated, err := h.service.UpdateLine(r.Context(), line)
	if err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(LineToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	lineId, err := pathId(r, "lineId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.service.DeleteLine(r.Context(), lineId); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transition handles the four lifecycle endpoints. The target operation is
// chosen by the route's action variable.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var b BOQ
	switch mux.Vars(r)["action"] {
	case "submit":
		b, err = h.service.Submit(r.Context(), id)
	case "approve":
		b, err = h.service.Approve(r.Context(), id)
	case "lock":
		b, err = h.service.Lock(r.Context(), id)
	case "close":
		b, err = h.service.Close(r.Context(), id)
	default:
		http.Error(w, "Unknown action", http.StatusNotFound)
		return
	}
	if err != nil {
		WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(BOQToDTO(b)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) LineStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	lineId, err := pathId(r, "lineId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status, err := h.service.LineStatus(r.Context(), lineId)
	if err != nil {
		WriteError(w, err)
		return
	}

	dto := LineStatusDTO{
		Line:              LineToDTO(status.Line),
		OrderedQuantity:   status.Usage.Ordered,
		ConsumedQuantity:  status.Usage.ConsumedQty,
		ConsumedAmount:    status.Usage.ConsumedAmount,
		RemainingQuantity: status.RemainingQuantity,
		RemainingAmount:   status.RemainingAmount,
		IsComplete:        status.IsComplete,
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) PurchasableLines(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	boqId, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lines, err := h.service.PurchasableLines(r.Context(), boqId)
	if err != nil {
		WriteError(w, err)
		return
	}

	dtos := make([]LineDTO, 0, len(lines))
	for _, l := range lines {
		dtos = append(dtos, LineToDTO(l))
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
