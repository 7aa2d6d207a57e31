package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/server"
	"github.com/npezzotti/go-chatroom/internal/types"
)

const (
	preloadSize             = 20
	defaultConversationSize = 50
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CreatePrivateRoomRequest struct {
	User1 types.ID `json:"user1"`
	User2 types.ID `json:"user2"`
}

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type PreloadResponse struct {
	Id       string          `json:"id"`
	Name     string          `json:"name"`
	Messages []types.Message `json:"messages"`
}

type ConversationsResponse struct {
	Conversations []types.Conversation `json:"conversations"`
}

type ConversationMessagesResponse struct {
	Messages []types.ConversationMessage `json:"messages"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("json encode", "err", err)
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, errResp *ApiError) {
	if errResp.Err != nil {
		s.log.Error("request failed", "err", errResp.Err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}
	if err := s.kv.Ping(r.Context()); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// login signs in an existing user or registers a new one when the username
// is not taken yet.
func (s *GoChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	lr.Username = strings.TrimSpace(lr.Username)
	if lr.Username == "" || lr.Password == "" {
		s.writeError(w, NewBadRequestError())
		return
	}

	status := http.StatusOK
	account, err := s.db.GetAccountByUsername(r.Context(), lr.Username)
	switch {
	case errors.Is(err, database.ErrNotFound):
		pwdHash, err := hashPassword(lr.Password)
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}

		account, err = s.db.CreateAccount(r.Context(), database.CreateAccountParams{
			Username:     lr.Username,
			PasswordHash: pwdHash,
		})
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}

		if err := s.rooms.JoinGroupRoom(r.Context(), account.User().Id, rooms.GeneralRoomId); err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}
		status = http.StatusCreated
	case err != nil:
		s.writeError(w, NewInternalServerError(err))
		return
	default:
		if !verifyPassword(account.PasswordHash, lr.Password) {
			s.writeError(w, NewUnauthorizedError())
			return
		}
	}

	user := account.User()
	token, err := s.createJwtForSession(user, defaultJwtExpiration)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	http.SetCookie(w, createJwtCookie(token, defaultJwtExpiration))

	s.writeJson(w, status, user)
}

func (s *GoChatApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createJwtCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *GoChatApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	account, err := s.db.GetAccountById(r.Context(), userId)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	s.writeJson(w, http.StatusOK, account.User())
}

func (s *GoChatApp) createPrivateRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req CreatePrivateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	if req.User1 == "" || req.User2 == "" || req.User1 == req.User2 {
		s.writeError(w, NewBadRequestError())
		return
	}

	if userId != req.User1 && userId != req.User2 {
		s.writeError(w, NewForbiddenError())
		return
	}

	roomKey, _, err := s.rooms.EnsurePrivateRoom(r.Context(), req.User1, req.User2)
	if err != nil {
		if errors.Is(err, rooms.ErrSameUser) {
			s.writeError(w, NewBadRequestError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	room, err := s.rooms.PrivateDescriptor(r.Context(), roomKey)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, room)
}

func (s *GoChatApp) createGroupRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}

	roomId, err := s.rooms.CreateGroupRoom(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, rooms.ErrEmptyName) {
			s.writeError(w, NewBadRequestError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if err := s.rooms.JoinGroupRoom(r.Context(), userId, roomId); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusCreated, types.RoomDescriptor{
		Id:    roomId,
		Names: []string{strings.TrimSpace(req.Name)},
	})
}

func (s *GoChatApp) joinGroupRoom(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	roomId := chi.URLParam(r, "id")
	name, err := s.rooms.RoomName(r.Context(), roomId)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	if err := s.rooms.JoinGroupRoom(r.Context(), userId, roomId); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, types.RoomDescriptor{Id: roomId, Names: []string{name}})
}

func (s *GoChatApp) preloadGeneral(w http.ResponseWriter, r *http.Request) {
	name, err := s.rooms.RoomName(r.Context(), rooms.GeneralRoomId)
	if err != nil && !errors.Is(err, kv.ErrNil) {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	messages, err := s.feed.Read(r.Context(), rooms.GeneralRoomId, 0, preloadSize)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, PreloadResponse{
		Id:       rooms.GeneralRoomId,
		Name:     name,
		Messages: messages,
	})
}

// canAccessRoom reports whether the user may read a room. Group rooms are
// public; private rooms are limited to their two participants.
func canAccessRoom(roomId string, userId types.ID) bool {
	if !rooms.IsPrivateKey(roomId) {
		return true
	}

	a, b, err := rooms.ParsePrivateKey(roomId)
	if err != nil {
		return false
	}
	return userId == a || userId == b
}

func (s *GoChatApp) getRoomMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	roomId, err := rooms.CanonicalRoomId(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, NewBadRequestError())
		return
	}
	if !canAccessRoom(roomId, userId) {
		s.writeError(w, NewForbiddenError())
		return
	}

	offset, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil || offset < 0 {
		s.writeError(w, NewBadRequestError())
		return
	}

	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size < 0 {
		s.writeError(w, NewBadRequestError())
		return
	}

	messages, err := s.feed.Read(r.Context(), roomId, offset, size)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *GoChatApp) getOnlineUsers(w http.ResponseWriter, r *http.Request) {
	ids, err := s.presence.ListOnline(r.Context())
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	users := make(map[types.ID]types.UserPresence, len(ids))
	for _, id := range ids {
		username, err := s.users.Username(r.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				continue
			}
			s.writeError(w, NewInternalServerError(err))
			return
		}
		users[id] = types.UserPresence{Id: id, Username: username, Online: true}
	}

	s.writeJson(w, http.StatusOK, users)
}

// getUsers resolves ?ids=1&ids=2 (or ?ids=1,2) to usernames and presence.
func (s *GoChatApp) getUsers(w http.ResponseWriter, r *http.Request) {
	var ids []types.ID
	for _, v := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, types.ID(id))
			}
		}
	}

	if len(ids) == 0 {
		s.writeError(w, NewBadRequestError())
		return
	}

	users := make(map[types.ID]types.UserPresence, len(ids))
	for _, id := range ids {
		username, err := s.users.Username(r.Context(), id)
		if err != nil {
			s.writeError(w, storeError(err))
			return
		}

		online, err := s.presence.IsOnline(r.Context(), id)
		if err != nil {
			s.writeError(w, NewInternalServerError(err))
			return
		}

		users[id] = types.UserPresence{Id: id, Username: username, Online: online}
	}

	s.writeJson(w, http.StatusOK, users)
}

// sameUser checks that the path parameter names the session user.
func sameUser(r *http.Request, param string) bool {
	userId, ok := UserId(r.Context())
	return ok && types.ID(chi.URLParam(r, param)) == userId
}

func (s *GoChatApp) getUserRooms(w http.ResponseWriter, r *http.Request) {
	// the user id shares the {id} segment with /rooms/{id}/join
	if !sameUser(r, "id") {
		s.writeError(w, NewForbiddenError())
		return
	}

	listed, err := s.rooms.ListRoomsForUser(r.Context(), types.ID(chi.URLParam(r, "id")))
	if err != nil {
		if errors.Is(err, rooms.ErrInvalidPrivateKey) {
			s.writeError(w, NewBadRequestError())
			return
		}
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, listed)
}

func (s *GoChatApp) getConversations(w http.ResponseWriter, r *http.Request) {
	if !sameUser(r, "userId") {
		s.writeError(w, NewForbiddenError())
		return
	}

	conversations, err := s.db.ListConversations(r.Context(), types.ID(chi.URLParam(r, "userId")))
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, ConversationsResponse{Conversations: conversations})
}

// intParam parses a query parameter, falling back to def when it is missing
// or not a positive integer.
func intParam(r *http.Request, name string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (s *GoChatApp) getConversationMessages(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	roomId := chi.URLParam(r, "roomId")
	if !canAccessRoom(roomId, userId) {
		s.writeError(w, NewForbiddenError())
		return
	}

	limit := intParam(r, "limit", defaultConversationSize)
	skip := intParam(r, "skip", 0)

	messages, err := s.db.ListRoomMessages(r.Context(), roomId, limit, skip)
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, ConversationMessagesResponse{Messages: messages})
}

func (s *GoChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, _ := UserId(r.Context())
	roomId := chi.URLParam(r, "roomId")
	if !canAccessRoom(roomId, userId) {
		s.writeError(w, NewForbiddenError())
		return
	}

	if err := s.db.MarkRead(r.Context(), roomId, userId); err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	s.writeJson(w, http.StatusOK, SuccessResponse{Success: true})
}

func (s *GoChatApp) getGroupMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.db.ListGroupMessages(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		s.writeError(w, NewInternalServerError(err))
		return
	}

	if messages == nil {
		messages = []types.ConversationMessage{}
	}

	s.writeJson(w, http.StatusOK, ConversationMessagesResponse{Messages: messages})
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, ok := UserId(r.Context())
	if !ok {
		s.writeError(w, NewUnauthorizedError())
		return
	}

	account, err := s.db.GetAccountById(r.Context(), id)
	if err != nil {
		s.writeError(w, storeError(err))
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Info("error upgrading connection", "err", err)
		return
	}

	client := server.NewClient(account.User(), conn, s.cs, s.log)
	if !s.cs.RegisterClient(client) {
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
