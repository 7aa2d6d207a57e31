package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/handlers"

	"github.com/npezzotti/go-chatroom/internal/config"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/feed"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/server"
)

type GoChatApp struct {
	log            *slog.Logger
	db             database.GoChatRepository
	kv             kv.Store
	presence       *presence.Store
	rooms          *rooms.Index
	feed           *feed.Feed
	users          rooms.UserDirectory
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
}

// NewGoChatApp builds the HTTP surface. metrics is mounted at /debug/vars
// when non-nil.
func NewGoChatApp(logger *slog.Logger, cs *server.ChatServer, db database.GoChatRepository, store kv.Store, metrics http.Handler, cfg *config.Config) *GoChatApp {
	users := database.NewUserDirectory(db)
	s := &GoChatApp{
		log:            logger,
		db:             db,
		kv:             store,
		presence:       presence.NewStore(store),
		rooms:          rooms.NewIndex(store, users),
		feed:           feed.New(store),
		users:          users,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(s.routes(metrics))

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: s.errorHandler(h),
	}

	return s
}

func (s *GoChatApp) routes(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/healthz", s.healthCheck)
	r.Post("/login", s.login)
	r.Get("/room/0/preload", s.preloadGeneral)
	r.Get("/users", s.getUsers)
	if metrics != nil {
		r.Method(http.MethodGet, "/debug/vars", metrics)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(s.authMiddleware)

		pr.Post("/logout", s.logout)
		pr.Get("/me", s.session)
		pr.Get("/ws", s.serveWs)

		pr.Post("/room", s.createPrivateRoom)
		pr.Get("/room/{id}/messages", s.getRoomMessages)
		pr.Post("/rooms", s.createGroupRoom)
		pr.Post("/rooms/{id}/join", s.joinGroupRoom)
		pr.Get("/rooms/{id}", s.getUserRooms)
		pr.Get("/users/online", s.getOnlineUsers)

		pr.Route("/api", func(ar chi.Router) {
			ar.Get("/conversations/{userId}", s.getConversations)
			ar.Get("/messages/{roomId}", s.getConversationMessages)
			ar.Post("/messages/{roomId}/read", s.markRead)
			ar.Get("/group-messages/{roomId}", s.getGroupMessages)
		})
	})

	return r
}

// Handler returns the fully wrapped request handler.
func (s *GoChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *GoChatApp) Start() error {
	s.log.Info("starting server", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *GoChatApp) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
