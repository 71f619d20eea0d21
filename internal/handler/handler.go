// Package handler содержит HTTP-обработчики API сервиса credpulse.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/credpulse-system/internal/dispatch"
	"github.com/mmeshcher/credpulse-system/internal/middleware"
	"github.com/mmeshcher/credpulse-system/internal/model"
	"github.com/mmeshcher/credpulse-system/internal/repository"
	"github.com/mmeshcher/credpulse-system/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, password string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*model.Profile, error)
	GetBalance(ctx context.Context, userID int64) (*model.Balance, error)
	ListActiveMissions(ctx context.Context) ([]model.Mission, error)
	StartMission(ctx context.Context, userID, missionID int64) (bool, error)
	ListUserMissions(ctx context.Context, userID int64) ([]model.UserMission, error)
	RequestPayout(ctx context.Context, userID, creds int64, paypalEmail string) (int64, error)
	ListPayoutsByUser(ctx context.Context, userID int64) ([]model.PayoutRequest, error)
	ListTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)

	CreateMission(ctx context.Context, m model.Mission) (int64, error)
	SetMissionActive(ctx context.Context, missionID int64, active bool) error
	ListMissionsForReview(ctx context.Context) ([]repository.MissionForReview, error)
	ApproveMission(ctx context.Context, userMissionID int64) (int64, error)
	ListPendingPayouts(ctx context.Context, limit int) ([]model.PayoutRequest, error)
	ListStalePayouts(ctx context.Context, olderThan time.Duration) ([]model.PayoutRequest, error)
	ApprovePayout(ctx context.Context, id int64) error
	MarkManuallyPaid(ctx context.Context, id int64) error
	RequeuePayout(ctx context.Context, id int64) error
}

// DispatchRunner определяет контракт запуска джоба выплат по требованию.
type DispatchRunner interface {
	Run(ctx context.Context) (dispatch.Summary, error)
}

// Handler реализует HTTP-обработчики API сервиса credpulse.
type Handler struct {
	service        Service
	dispatcher     DispatchRunner
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	staleAfter     time.Duration
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, d DispatchRunner, logger *zap.Logger, auth *middleware.AuthMiddleware, staleAfter time.Duration) *Handler {
	return &Handler{
		service:        s,
		dispatcher:     d,
		logger:         logger,
		authMiddleware: auth,
		staleAfter:     staleAfter,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func idParam(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, userID, model.RoleUser); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if err := h.authMiddleware.SetAuthCookie(w, user.ID, user.Role); err != nil {
		h.logger.Error("set auth cookie error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type profileResponse struct {
	Balance     int64  `json:"balance"`
	BalanceUSD  string `json:"balance_usd"`
	PayPalEmail string `json:"paypal_email,omitempty"`
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, profileResponse{
		Balance:     profile.Balance,
		BalanceUSD:  model.FormatUSD(model.CredsToUSDCents(profile.Balance)),
		PayPalEmail: profile.PayPalEmail,
	})
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.logger.Error("get balance error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, balance)
}

type missionResponse struct {
	ID              int64  `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	Category        string `json:"category,omitempty"`
	Reward          int64  `json:"reward"`
	PartnerName     string `json:"partner_name,omitempty"`
	PartnerLogoURL  string `json:"partner_logo_url,omitempty"`
	CallToActionURL string `json:"call_to_action_url"`
}

// ListMissions возвращает активные миссии каталога.
func (h *Handler) ListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.service.ListActiveMissions(r.Context())
	if err != nil {
		h.logger.Error("list missions error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]missionResponse, 0, len(missions))
	for _, m := range missions {
		resp = append(resp, missionResponse{
			ID:              m.ID,
			Title:           m.Title,
			Description:     m.Description,
			Category:        m.Category,
			Reward:          m.Reward,
			PartnerName:     m.PartnerName,
			PartnerLogoURL:  m.PartnerLogoURL,
			CallToActionURL: m.CallToActionURL,
		})
	}

	h.writeJSON(w, resp)
}

// StartMission отмечает начало миссии текущим пользователем.
func (h *Handler) StartMission(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	missionID, ok := idParam(r, "missionID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	alreadyStarted, err := h.service.StartMission(r.Context(), userID, missionID)
	if err != nil {
		if errors.Is(err, repository.ErrMissionNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("start mission error", zap.Error(err),
			zap.Int64("userID", userID), zap.Int64("missionID", missionID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if alreadyStarted {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

type userMissionResponse struct {
	ID        int64  `json:"id"`
	MissionID int64  `json:"mission_id"`
	Status    string `json:"status"`
	StartedAt string `json:"started_at"`
}

// GetUserMissions возвращает миссии текущего пользователя.
func (h *Handler) GetUserMissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	missions, err := h.service.ListUserMissions(r.Context(), userID)
	if err != nil {
		h.logger.Error("get user missions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(missions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]userMissionResponse, 0, len(missions))
	for _, um := range missions {
		resp = append(resp, userMissionResponse{
			ID:        um.ID,
			MissionID: um.MissionID,
			Status:    string(um.Status),
			StartedAt: um.StartedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type payoutRequestBody struct {
	Creds       int64  `json:"creds"`
	PayPalEmail string `json:"paypal_email"`
}

type payoutCreatedResponse struct {
	ID int64 `json:"id"`
}

// RequestPayout создаёт заявку на вывод средств текущего пользователя.
// Запрос не является безопасно повторяемым: при неоднозначном сбое повторная
// отправка может привести к двойному списанию.
func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req payoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.RequestPayout(r.Context(), userID, req.Creds, req.PayPalEmail)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrBelowMinimum), errors.Is(err, service.ErrInvalidDestination):
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, repository.ErrInsufficientBalance):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		default:
			h.logger.Error("request payout error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, payoutCreatedResponse{ID: id})
}

type payoutResponse struct {
	ID            int64  `json:"id"`
	Creds         int64  `json:"creds"`
	USDAmount     string `json:"usd_amount"`
	PayPalEmail   string `json:"paypal_email"`
	Status        string `json:"status"`
	RequestedAt   string `json:"requested_at"`
	ProcessedAt   string `json:"processed_at,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func toPayoutResponse(p model.PayoutRequest) payoutResponse {
	resp := payoutResponse{
		ID:          p.ID,
		Creds:       p.Creds,
		USDAmount:   model.FormatUSD(p.USDCents),
		PayPalEmail: p.PayPalEmail,
		Status:      string(p.Status),
		RequestedAt: p.RequestedAt.Format(time.RFC3339),
	}
	if p.ProcessedAt != nil {
		resp.ProcessedAt = p.ProcessedAt.Format(time.RFC3339)
	}
	if p.TransactionID != nil {
		resp.TransactionID = *p.TransactionID
	}
	return resp
}

// GetPayouts возвращает историю заявок текущего пользователя.
func (h *Handler) GetPayouts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payouts, err := h.service.ListPayoutsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get payouts error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payouts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, toPayoutResponse(p))
	}

	h.writeJSON(w, resp)
}

type transactionResponse struct {
	Amount      int64  `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// GetTransactions возвращает журнал операций текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	transactions, err := h.service.ListTransactionsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get transactions error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(transactions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(transactions))
	for _, tr := range transactions {
		resp = append(resp, transactionResponse{
			Amount:      tr.Amount,
			Type:        string(tr.Type),
			Description: tr.Description,
			CreatedAt:   tr.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

type createMissionRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	Reward          int64  `json:"reward"`
	PartnerName     string `json:"partner_name"`
	PartnerLogoURL  string `json:"partner_logo_url"`
	CallToActionURL string `json:"call_to_action_url"`
}

// CreateMission добавляет новую миссию в каталог (только для администратора).
func (h *Handler) CreateMission(w http.ResponseWriter, r *http.Request) {
	var req createMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.CreateMission(r.Context(), model.Mission{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		Reward:          req.Reward,
		PartnerName:     req.PartnerName,
		PartnerLogoURL:  req.PartnerLogoURL,
		CallToActionURL: req.CallToActionURL,
		IsActive:        true,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]int64{"id": id}); err != nil {
		h.logger.Error("write create mission response", zap.Error(err))
	}
}

type reviewMissionResponse struct {
	UserMissionID int64  `json:"user_mission_id"`
	UserEmail     string `json:"user_email"`
	MissionTitle  string `json:"mission_title"`
	Reward        int64  `json:"reward"`
	StartedAt     string `json:"started_at"`
}

// GetMissionsForReview возвращает начатые миссии, ожидающие одобрения.
func (h *Handler) GetMissionsForReview(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListMissionsForReview(r.Context())
	if err != nil {
		h.logger.Error("list missions for review error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]reviewMissionResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, reviewMissionResponse{
			UserMissionID: item.UserMissionID,
			UserEmail:     item.UserEmail,
			MissionTitle:  item.MissionTitle,
			Reward:        item.Reward,
			StartedAt:     item.StartedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, resp)
}

// ApproveMission одобряет миссию пользователя и начисляет вознаграждение.
func (h *Handler) ApproveMission(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r, "userMissionID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	reward, err := h.service.ApproveMission(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserMissionNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrMissionAlreadyApproved):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("approve mission error", zap.Error(err), zap.Int64("userMissionID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, map[string]int64{"reward": reward})
}

// GetPendingPayouts возвращает заявки, ожидающие решения администратора.
func (h *Handler) GetPendingPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.service.ListPendingPayouts(r.Context(), 100)
	if err != nil {
		h.logger.Error("list pending payouts error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, toPayoutResponse(p))
	}

	h.writeJSON(w, resp)
}

// GetStalePayouts возвращает заявки, зависшие в processing: исход на стороне
// провайдера неоднозначен и требует ручной сверки оператором.
func (h *Handler) GetStalePayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.service.ListStalePayouts(r.Context(), h.staleAfter)
	if err != nil {
		h.logger.Error("list stale payouts error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]payoutResponse, 0, len(payouts))
	for _, p := range payouts {
		resp = append(resp, toPayoutResponse(p))
	}

	h.writeJSON(w, resp)
}

func (h *Handler) payoutStatusAction(w http.ResponseWriter, r *http.Request, action func(context.Context, int64) error, name string) {
	id, ok := idParam(r, "payoutID")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := action(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrPayoutNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrPayoutStatusConflict):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error(name+" error", zap.Error(err), zap.Int64("payoutID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// ApprovePayout одобряет заявку для автоматической выплаты.
func (h *Handler) ApprovePayout(w http.ResponseWriter, r *http.Request) {
	h.payoutStatusAction(w, r, h.service.ApprovePayout, "approve payout")
}

// MarkPayoutPaid завершает заявку, оплаченную администратором вручную.
func (h *Handler) MarkPayoutPaid(w http.ResponseWriter, r *http.Request) {
	h.payoutStatusAction(w, r, h.service.MarkManuallyPaid, "mark payout paid")
}

// RequeuePayout возвращает неуспешную заявку в очередь.
func (h *Handler) RequeuePayout(w http.ResponseWriter, r *http.Request) {
	h.payoutStatusAction(w, r, h.service.RequeuePayout, "requeue payout")
}

type dispatchResponse struct {
	Success        bool   `json:"success"`
	ProcessedCount int    `json:"processed_count"`
	FoundCount     int    `json:"found_count"`
	Error          string `json:"error,omitempty"`
}

// RunDispatch запускает джоб выплат по требованию. Повторный запуск безопасен:
// каждую заявку защищает атомарный переход статуса в хранилище.
func (h *Handler) RunDispatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.dispatcher.Run(r.Context())
	if err != nil {
		h.logger.Error("dispatch run error", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(dispatchResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	h.writeJSON(w, dispatchResponse{
		Success:        true,
		ProcessedCount: summary.Processed,
		FoundCount:     summary.Found,
	})
}
