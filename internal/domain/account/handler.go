package account

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/forkful/loyalty-api/internal/domain/ledger"
	"github.com/forkful/loyalty-api/internal/domain/points"
	"github.com/forkful/loyalty-api/internal/domain/referral"
	"github.com/forkful/loyalty-api/internal/domain/reward"
	"github.com/forkful/loyalty-api/internal/middleware"
	"github.com/forkful/loyalty-api/internal/pkg/response"
	"github.com/forkful/loyalty-api/internal/pkg/validator"
)

// Handler exposes the loyalty facade over HTTP.
type Handler struct {
	svc *Service

	// serviceToken gates endpoints called service-to-service by the ordering
	// flow rather than by an end user.
	serviceToken string
}

func NewHandler(svc *Service, serviceToken string) *Handler {
	return &Handler{svc: svc, serviceToken: serviceToken}
}

func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"balance": balance})
}

func (h *Handler) Tier(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	info, err := h.svc.GetTier(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, info)
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transactions, err := h.svc.ListTransactions(r.Context(), accountID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"transactions": transactions})
}

func (h *Handler) Rewards(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{"rewards": h.svc.ListRewards()})
}

func (h *Handler) Earn(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req earnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Struct(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	awarded, err := h.svc.EarnForOrder(r.Context(), accountID, req.OrderID, req.OrderTotal, req.HasHealthyItems)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"points_awarded": awarded})
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Struct(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	applied, err := h.svc.Redeem(r.Context(), accountID, req.SessionID, req.RewardID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"applied_reward": applied})
}

func (h *Handler) ClearApplied(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		response.BadRequest(w, "session id is required")
		return
	}
	if err := h.svc.ClearApplied(r.Context(), sessionID); err != nil {
		h.writeError(w, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) Discount(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		response.BadRequest(w, "session_id is required")
		return
	}
	subtotal, err := strconv.ParseFloat(r.URL.Query().Get("subtotal"), 64)
	if err != nil || subtotal < 0 {
		response.BadRequest(w, "subtotal must be a non-negative number")
		return
	}

	discount, err := h.svc.CalculateDiscount(r.Context(), sessionID, subtotal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"discount": discount})
}

func (h *Handler) IssueReferralCode(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	code, err := h.svc.IssueReferralCode(r.Context(), accountID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"code": code})
}

func (h *Handler) ApplyReferralCode(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req applyReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Struct(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.ApplyReferralCode(r.Context(), req.Code, accountID, req.Identity); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "pending"})
}

// CompleteReferral is called by the order-placement service when a referred
// identity places their first order, not by end users.
func (h *Handler) CompleteReferral(w http.ResponseWriter, r *http.Request) {
	if h.serviceToken == "" || r.Header.Get("X-Service-Token") != h.serviceToken {
		response.Forbidden(w, "service token required")
		return
	}

	var req completeReferralRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON body")
		return
	}
	if details := validator.Struct(req); details != nil {
		response.ValidationError(w, details)
		return
	}

	if err := h.svc.CompleteReferral(r.Context(), req.Identity); err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"status": "ok"})
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.GetAccountID(r.Context())
	if accountID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	key, err := h.svc.ExportHistory(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, ErrExportDisabled) {
			response.Error(w, http.StatusNotImplemented, "EXPORT_DISABLED", "ledger export is not configured")
			return
		}
		h.writeError(w, err)
		return
	}
	response.OK(w, map[string]interface{}{"key": key})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, points.ErrInvalidAmount):
		response.BadRequest(w, "order total must be greater than zero")
	case errors.Is(err, reward.ErrUnknownReward):
		response.NotFound(w, "unknown reward")
	case errors.Is(err, reward.ErrInsufficientPoints):
		response.Conflict(w, "insufficient points for this reward")
	case errors.Is(err, referral.ErrSelfReferral):
		response.Conflict(w, "you cannot apply your own referral code")
	case errors.Is(err, referral.ErrInvalidCodeFormat):
		response.BadRequest(w, "referral code format is invalid")
	case errors.Is(err, referral.ErrCodeNotFound):
		response.NotFound(w, "referral code not found")
	case errors.Is(err, referral.ErrCodeGenerationFailed):
		response.ServiceUnavailable(w, "could not generate a referral code, try again")
	case errors.Is(err, ledger.ErrInvalidTransaction):
		response.BadRequest(w, "invalid transaction")
	case errors.Is(err, ledger.ErrTemporarilyUnavailable):
		response.ServiceUnavailable(w, "loyalty ledger is busy, try again")
	default:
		response.InternalError(w)
	}
}

// Routes mounts the loyalty endpoints. Everything except the catalog,
// discount lookup, and the service-to-service completion hook requires an
// authenticated account.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Get("/rewards", h.Rewards)
	r.Get("/discount", h.Discount)
	r.Delete("/redeem/{sessionID}", h.ClearApplied)
	r.Post("/referrals/complete", h.CompleteReferral)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/balance", h.Balance)
		r.Get("/tier", h.Tier)
		r.Get("/transactions", h.Transactions)
		r.Post("/earn", h.Earn)
		r.Post("/redeem", h.Redeem)
		r.Post("/referrals/code", h.IssueReferralCode)
		r.Post("/referrals/apply", h.ApplyReferralCode)
		r.Post("/export", h.Export)
	})

	return r
}
