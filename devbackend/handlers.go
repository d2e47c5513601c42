package devbackend

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/internal/utils"
)

const maxRequestBody = 64 << 10

type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         *User  `json:"user,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type telegramRequest struct {
	InitData     string `json:"init_data"`
	CurrentToken string `json:"current_token"`
}

type vkRequest struct {
	LaunchParams string `json:"launch_params"`
	CurrentToken string `json:"current_token"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type validationItem struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if items := required(map[string]string{"email": req.Email, "password": req.Password}); len(items) > 0 {
			writeValidation(w, items)
			return
		}

		user, err := s.users.GetByEmail(strings.ToLower(req.Email))
		if err != nil || !CheckPasswordHash(req.Password, user.PasswordHash) {
			writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		user.LastLogin = s.nowFunc()
		if err := s.users.Upsert(user); err != nil {
			writeDetail(w, http.StatusInternalServerError, "cannot update user")
			return
		}
		s.writeTokens(w, http.StatusOK, user)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		email := strings.ToLower(strings.TrimSpace(req.Email))

		items := required(map[string]string{"email": email, "password": req.Password})
		if email != "" {
			if err := ValidateEmail(email); err != nil {
				items = append(items, validationItem{Loc: []string{"body", "email"}, Msg: err.Error(), Type: "value_error"})
			}
		}
		if req.Password != "" {
			if err := ValidatePasswordStrength(req.Password); err != nil {
				items = append(items, validationItem{Loc: []string{"body", "password"}, Msg: err.Error(), Type: "value_error"})
			}
		}
		if len(items) > 0 {
			writeValidation(w, items)
			return
		}

		s.accounts.Lock()
		defer s.accounts.Unlock()
		if _, err := s.users.GetByEmail(email); err == nil {
			writeDetail(w, http.StatusConflict, "Email already registered")
			return
		}

		hash, err := HashPassword(req.Password)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "cannot hash password")
			return
		}
		user := &User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    req.FirstName,
			LastName:     req.LastName,
			DateJoined:   s.nowFunc(),
			LastLogin:    s.nowFunc(),
		}
		if err := s.users.Upsert(user); err != nil {
			writeDetail(w, http.StatusInternalServerError, "cannot create user")
			return
		}
		s.writeTokens(w, http.StatusCreated, user)
	}
}

func (s *Server) TelegramHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req telegramRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if items := required(map[string]string{"init_data": req.InitData}); len(items) > 0 {
			writeValidation(w, items)
			return
		}

		tgUser, err := VerifyTelegramInitData(req.InitData, s.cfg.GetTelegramBotToken(), s.cfg.GetInitDataMaxAge(), s.nowFunc())
		if err != nil {
			s.log.Info().Err(err).Msg("telegram init data rejected")
			if errors.Is(err, errors.ErrAuthExpired) {
				writeDetail(w, http.StatusUnauthorized, "Init data expired")
				return
			}
			writeDetail(w, http.StatusUnauthorized, "Invalid init data")
			return
		}

		user, err := s.platformUser(req.CurrentToken,
			func() (*User, error) { return s.users.GetByTelegramID(tgUser.ID) },
			func(u *User) bool {
				if u.TelegramID != nil {
					return *u.TelegramID == tgUser.ID
				}
				u.TelegramID = utils.Ptr(tgUser.ID)
				return true
			},
			func() *User {
				return &User{TelegramID: utils.Ptr(tgUser.ID), FirstName: tgUser.FirstName, LastName: tgUser.LastName}
			},
		)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "cannot resolve user")
			return
		}
		s.writeTokens(w, http.StatusOK, user)
	}
}

func (s *Server) VKHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req vkRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if items := required(map[string]string{"launch_params": req.LaunchParams}); len(items) > 0 {
			writeValidation(w, items)
			return
		}

		vkID, err := VerifyVKLaunchParams(req.LaunchParams, s.cfg.GetVKAppSecret())
		if err != nil {
			s.log.Info().Err(err).Msg("vk launch params rejected")
			writeDetail(w, http.StatusUnauthorized, "Invalid launch params")
			return
		}

		user, err := s.platformUser(req.CurrentToken,
			func() (*User, error) { return s.users.GetByVKID(vkID) },
			func(u *User) bool {
				if u.VKID != nil {
					return *u.VKID == vkID
				}
				u.VKID = utils.Ptr(vkID)
				return true
			},
			func() *User {
				return &User{VKID: utils.Ptr(vkID), FirstName: req.FirstName, LastName: req.LastName}
			},
		)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "cannot resolve user")
			return
		}
		s.writeTokens(w, http.StatusOK, user)
	}
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeBody(w, r, &req) {
			return
		}
		userID, err := s.refresh.Consume(req.RefreshToken)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}
		user, err := s.users.GetByID(userID)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
			return
		}

		access, refresh, err := s.issue(user)
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "cannot issue tokens")
			return
		}
		writeJSON(w, http.StatusOK, authResponse{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "bearer",
			ExpiresIn:    int(s.cfg.GetAccessTokenExpiry().Seconds()),
		})
	}
}

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, user)
	}
}

// platformUser finds the user for a verified platform id. Without one, a valid
// currentToken links the id to that token's user; otherwise a new user is created.
func (s *Server) platformUser(currentToken string, find func() (*User, error), link func(*User) bool, create func() *User) (*User, error) {
	s.accounts.Lock()
	defer s.accounts.Unlock()

	if user, err := find(); err == nil {
		return user, nil
	}

	if currentToken != "" {
		if user, ok := s.tokenUser(currentToken); ok && link(user) {
			if err := s.users.Upsert(user); err != nil {
				return nil, err
			}
			s.log.Info().Str("user_id", user.ID).Msg("linked platform account")
			return user, nil
		}
	}

	user := create()
	user.DateJoined = s.nowFunc()
	user.LastLogin = user.DateJoined
	if err := s.users.Upsert(user); err != nil {
		return nil, err
	}
	return s.users.GetByID(user.ID)
}

func (s *Server) bearerUser(header string) (*User, bool) {
	return s.tokenUser(bearerToken(header))
}

func (s *Server) tokenUser(tokenStr string) (*User, bool) {
	if tokenStr == "" {
		return nil, false
	}
	sub, err := s.access.Verify(tokenStr)
	if err != nil {
		return nil, false
	}
	user, err := s.users.GetByID(sub)
	if err != nil {
		return nil, false
	}
	return user, true
}

func (s *Server) issue(user *User) (string, string, error) {
	access, err := s.access.Issue(user)
	if err != nil {
		return "", "", err
	}
	refresh, err := s.refresh.Create(user.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (s *Server) writeTokens(w http.ResponseWriter, status int, user *User) {
	access, refresh, err := s.issue(user)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "cannot issue tokens")
		return
	}
	writeJSON(w, status, authResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(s.cfg.GetAccessTokenExpiry().Seconds()),
		User:         user,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

func required(fields map[string]string) []validationItem {
	var items []validationItem
	for _, name := range []string{"email", "password", "init_data", "launch_params"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			items = append(items, validationItem{Loc: []string{"body", name}, Msg: "field required", Type: "missing"})
		}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeValidation(w http.ResponseWriter, items []validationItem) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string][]validationItem{"detail": items})
}
