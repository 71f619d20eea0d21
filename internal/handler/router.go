package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/credpulse-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса credpulse.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/missions", h.ListMissions)
			r.Post("/missions/{missionID}/start", h.StartMission)

			r.Get("/user/profile", h.GetProfile)
			r.Get("/user/balance", h.GetBalance)
			r.Get("/user/missions", h.GetUserMissions)

			r.Post("/user/payouts", h.RequestPayout)
			r.Get("/user/payouts", h.GetPayouts)
			r.Get("/user/transactions", h.GetTransactions)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.RequireAdmin)

			r.Post("/missions", h.CreateMission)
			r.Get("/missions/review", h.GetMissionsForReview)
			r.Post("/user-missions/{userMissionID}/approve", h.ApproveMission)

			r.Get("/payouts/pending", h.GetPendingPayouts)
			r.Get("/payouts/stale", h.GetStalePayouts)
			r.Post("/payouts/{payoutID}/approve", h.ApprovePayout)
			r.Post("/payouts/{payoutID}/mark-paid", h.MarkPayoutPaid)
			r.Post("/payouts/{payoutID}/requeue", h.RequeuePayout)

			r.Post("/dispatch", h.RunDispatch)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
