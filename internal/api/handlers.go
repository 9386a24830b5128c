package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Bagi4-source/Mirotok/internal/store"
)

type page[T any] struct {
	Count   int64 `json:"count"`
	Results []T   `json:"results"`
}

type registerRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	Username   string `json:"username" validate:"max=64"`
	Name       string `json:"name" validate:"max=256"`
}

type resultRequest struct {
	TelegramID int64 `json:"telegram_id" validate:"required,gt=0"`
	Result     *int  `json:"result" validate:"required"`
}

type paymentRequest struct {
	TelegramID int64  `json:"telegram_id" validate:"required,gt=0"`
	TariffID   string `json:"tariff_id" validate:"required"`
}

type resolveRequest struct {
	Status *bool `json:"status" validate:"required"`
}

type tariffRequest struct {
	Days   int `json:"days" validate:"required,gt=0,lte=3660"`
	Amount int `json:"amount" validate:"required,gt=0"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required"`
}

func queryInt(r *http.Request, key string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryTelegramID(r *http.Request) (int64, bool, error) {
	v := strings.TrimSpace(r.URL.Query().Get("telegram_id"))
	if v == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false, fmt.Errorf("telegram_id must be a positive integer")
	}
	return id, true, nil
}

func queryPage(r *http.Request) (store.Page, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return store.Page{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return store.Page{}, err
	}
	return store.Page{Limit: limit, Offset: offset}, nil
}

// ==========================================
// ПОЛЬЗОВАТЕЛИ
// ==========================================

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	user := &store.User{TelegramID: req.TelegramID, Username: req.Username, Name: req.Name}
	if err := h.repo.UpsertUser(r.Context(), user); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	id, ok, err := queryTelegramID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if ok {
		out := page[store.User]{Results: []store.User{}}
		user, err := h.repo.GetUser(r.Context(), id)
		switch {
		case err == nil:
			out.Count, out.Results = 1, []store.User{*user}
		case !errors.Is(err, store.ErrNotFound):
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	p, err := queryPage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	users, total, err := h.repo.ListUsers(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[store.User]{Count: total, Results: nonNil(users)})
}

// ==========================================
// РЕЗУЛЬТАТЫ
// ==========================================

func (h *Handler) addResult(w http.ResponseWriter, r *http.Request) {
	var req resultRequest
	if !h.decode(w, r, &req) {
		return
	}
	result := &store.Result{TelegramID: req.TelegramID, Result: *req.Result}
	if err := h.repo.AddResult(r.Context(), result); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	id, ok, err := queryTelegramID(r)
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, "telegram_id is required")
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := h.repo.ListResults(r.Context(), id, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[store.Result]{Count: int64(len(results)), Results: nonNil(results)})
}

// ==========================================
// ЗАЯВКИ
// ==========================================

// createRequest snapshots the tariff price and length into the request.
func (h *Handler) createRequest(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	tariff, err := h.repo.GetTariff(r.Context(), req.TariffID)
	if err != nil {
		fail(w, r, err)
		return
	}
	pr := &store.PaymentRequest{
		TelegramID: req.TelegramID,
		TariffID:   tariff.ID,
		Amount:     tariff.Amount,
		Days:       tariff.Days,
	}
	if err := h.repo.CreateRequest(r.Context(), pr); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pr)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request) {
	id, ok, err := queryTelegramID(r)
	if err != nil || !ok {
		writeError(w, http.StatusBadRequest, "telegram_id is required")
		return
	}
	p, err := queryPage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqs, total, err := h.repo.ListRequests(r.Context(), id, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[store.PaymentRequest]{Count: total, Results: nonNil(reqs)})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	p, err := queryPage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqs, total, err := h.repo.ListPendingRequests(r.Context(), p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[store.PaymentRequest]{Count: total, Results: nonNil(reqs)})
}

func (h *Handler) getRequest(w http.ResponseWriter, r *http.Request) {
	pr, err := h.repo.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pr)
}

func (h *Handler) resolveRequest(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.repo.ResolveRequest(r.Context(), chi.URLParam(r, "id"), *req.Status, h.now())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ==========================================
// ТАРИФЫ И ТЕКСТЫ
// ==========================================

func (h *Handler) listTariffs(w http.ResponseWriter, r *http.Request) {
	tariffs, err := h.repo.ListTariffs(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(tariffs))
}

func (h *Handler) getTariff(w http.ResponseWriter, r *http.Request) {
	tariff, err := h.repo.GetTariff(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tariff)
}

func (h *Handler) createTariff(w http.ResponseWriter, r *http.Request) {
	var req tariffRequest
	if !h.decode(w, r, &req) {
		return
	}
	tariff := &store.Tariff{Days: req.Days, Amount: req.Amount}
	if err := h.repo.CreateTariff(r.Context(), tariff); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tariff)
}

func (h *Handler) deleteTariff(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.DeleteTariff(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getMessage(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	if tag == "" {
		writeError(w, http.StatusBadRequest, "tag is required")
		return
	}
	msg, err := h.repo.GetMessage(r.Context(), tag)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) putMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decode(w, r, &req) {
		return
	}
	msg := &store.Message{Tag: chi.URLParam(r, "tag"), Text: req.Text}
	if err := h.repo.PutMessage(r.Context(), msg); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
