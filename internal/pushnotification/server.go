package pushnotification

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kazz187/appbuilder/internal/config"
	"github.com/kazz187/appbuilder/internal/pushsubscription"
	"github.com/kazz187/appbuilder/pkg/cerr"
)

type Server struct {
	vapidEnv *config.VAPIDEnv
	repo     pushsubscription.Repository
	sender   Notifier
}

func NewServer(vapidEnv *config.VAPIDEnv, repo pushsubscription.Repository, sender Notifier) *Server {
	return &Server{
		vapidEnv: vapidEnv,
		repo:     repo,
		sender:   sender,
	}
}

func (s *Server) Routes(r chi.Router) {
	r.Route("/push-subscriptions", func(r chi.Router) {
		r.Get("/vapid-public-key", s.getVapidPublicKey)
		r.Post("/", s.register)
		r.Delete("/", s.unregister)
		r.Post("/test", s.sendTest)
	})
}

type subscriptionRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dh_key"`
	AuthKey   string `json:"auth_key"`
}

func (s *Server) getVapidPublicKey(_ http.ResponseWriter, r *http.Request) {
	if s.vapidEnv.PublicKey == "" {
		cerr.SetNewJSONError(r.Context(), cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(r.Context(), map[string]string{"public_key": s.vapidEnv.PublicKey})
}

func (s *Server) register(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	switch {
	case req.Endpoint == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	case req.P256dhKey == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "p256dh_key is required", nil)
		return
	case req.AuthKey == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "auth_key is required", nil)
		return
	}

	sub := pushsubscription.NewSubscription(req.Endpoint, req.P256dhKey, req.AuthKey)
	created, err := s.repo.Upsert(ctx, sub)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	cerr.SetJSONResponseWithStatus(ctx, status, sub)
}

func (s *Server) unregister(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := s.repo.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"status": "unregistered"})
}

func (s *Server) sendTest(_ http.ResponseWriter, r *http.Request) {
	s.sender.SendToAll(r.Context(), &NotificationPayload{
		Title: "appbuilder test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(r.Context(), map[string]string{"status": "sent"})
}
