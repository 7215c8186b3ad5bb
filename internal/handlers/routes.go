package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"partsmarket/models"
)

// Routes собирает роутер API
func (h *Handler) Routes() http.Handler {
	staff := RequireRole(models.RoleAdmin, models.RoleOperator)
	anyone := RequireRole(models.RoleAdmin, models.RoleOperator, models.RoleBuyer)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)
		r.Post("/auth/login", h.LoginHandler)

		// клиент без авторизации, по телефону
		r.Post("/client/orders", h.CreateOrderHandler)
		r.Get("/client/orders", h.ClientOrdersHandler)
		r.Post("/client/orders/{orderId}/decision", h.ClientDecisionHandler)

		// вебхук базы для CRM
		r.Post("/hooks/orders", h.OrderHookHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Use(anyone)

			r.Get("/me", h.MeHandler)

			// заказы
			r.Get("/orders", h.ListOrdersHandler)
			r.Get("/orders/{orderId}", h.GetOrderHandler)
			r.Post("/orders/{orderId}/offers", h.CreateOfferHandler)
			r.Put("/offers/{offerId}", h.UpdateOfferHandler)

			// закупщик
			r.Get("/buyer/orders", h.BuyerOrdersHandler)
			r.Post("/buyer/labels", h.ToggleLabelHandler)
			r.Get("/buyer/brands", h.QuickBrandsHandler)
			r.Get("/buyer/counts", h.BuyerCountsHandler)
			r.Get("/buyer/dashboard", h.DashboardHandler)

			// чат
			r.Get("/chat/threads", h.ThreadsHandler)
			r.Get("/chat/unread", h.UnreadHandler)
			r.Get("/chat/stream", h.StreamHandler)
			r.Post("/chat/messages", h.SendMessageHandler)
			r.Get("/chat/orders/{orderId}/users/{userId}", h.ListMessagesHandler)
			r.Post("/chat/orders/{orderId}/users/{userId}/read", h.MarkReadHandler)
			r.Post("/chat/orders/{orderId}/users/{userId}/archive", h.ArchiveChatHandler)
			r.Delete("/chat/orders/{orderId}/users/{userId}", h.DeleteChatHandler)

			r.Get("/finance/rates", h.GetRatesHandler)

			r.Group(func(r chi.Router) {
				r.Use(staff)

				r.Post("/orders", h.CreateOrderHandler)
				r.Get("/orders/counts", h.OrderCountsHandler)
				r.Patch("/orders/{orderId}", h.UpdateOrderMetadataHandler)
				r.Post("/orders/{orderId}/events", h.ApplyEventHandler)
				r.Get("/orders/{orderId}/history", h.StatusHistoryHandler)
				r.Put("/orders/{orderId}/items/{itemId}", h.UpdateOrderItemHandler)
				r.Put("/orders/{orderId}/items/{itemId}/price", h.SetItemPriceHandler)
				r.Post("/orders/{orderId}/winners", h.ApproveWinnersHandler)
				r.Patch("/offer-items/{itemId}", h.UpdateOfferItemHandler)
				r.Delete("/offer-items/{itemId}/winner", h.ResetWinnerHandler)

				r.Get("/emails", h.ListEmailsHandler)
				r.Post("/emails/{emailId}/lock", h.LockEmailHandler)
				r.Delete("/emails/{emailId}/lock", h.UnlockEmailHandler)
				r.Post("/emails/{emailId}/archive", h.ArchiveEmailHandler)

				r.Post("/parse", h.ParseHandler)
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(models.RoleAdmin))

				r.Put("/finance/rates", h.PutRatesHandler)
				r.Get("/admin/users", h.ListUsersHandler)
				r.Post("/admin/users", h.CreateUserHandler)
				r.Delete("/admin/orders", h.ResetOrdersHandler)
			})
		})
	})
	return r
}
