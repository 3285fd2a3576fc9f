package api

import (
	"net/http"

	"github.com/ashureev/skill-worlds/internal/identity"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the /api routes. Auth and catalog routes are
// public; everything else requires a token. limit may be nil.
func (h *Handler) RegisterRoutes(r chi.Router, tokens identity.TokenValidator, limit func(http.Handler) http.Handler) {
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/api", func(r chi.Router) {
		r.With(limit).Post("/auth/register", h.Register)
		r.With(limit).Post("/auth/login", h.Login)
		r.Get("/careers", h.ListCareers)
		r.Get("/careers/{id}", h.GetCareer)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(tokens))

			r.Post("/auth/logout", h.Logout)
			r.Get("/me", h.GetMe)
			r.Get("/dashboard", h.GetDashboard)
			r.Post("/resources/{id}/complete", h.CompleteResource)
			r.Put("/profile", h.UpdateProfile)

			r.Route("/flow", func(r chi.Router) {
				r.Use(limit)
				r.Post("/", h.StartFlow)
				r.Get("/", h.GetFlow)
				r.Post("/method", h.ChooseMethod)
				r.Post("/chat/reply", h.ChatReply)
				r.Post("/chat/toggle", h.ChatToggle)
				r.Post("/chat/continue", h.ChatContinue)
				r.Post("/manual/toggle", h.ManualToggle)
				r.Post("/manual/proceed", h.ManualProceed)
				r.Get("/test", h.GetTest)
				r.Post("/test/answer", h.AnswerTest)
				r.Get("/test/explanation", h.GetExplanation)
				r.Post("/test/next", h.NextQuestion)
				r.Post("/test/submit", h.SubmitTest)
				r.Post("/finish", h.FinishFlow)
			})
		})
	})
}
