package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/jdholdren/feedhub/internal/feedhub"
	"github.com/jdholdren/feedhub/internal/serverutil"
)

type (
	UserResp struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		CreatedAt time.Time `json:"created_at"`
	}

	// Viewer is the structured data about the current user in the frontend.
	Viewer struct {
		UserResp

		FollowedCount int `json:"followed_count"`
	}
)

func apiUser(usr feedhub.User) UserResp {
	return UserResp{
		ID:        usr.ID,
		Email:     usr.Email,
		CreatedAt: usr.CreatedAt,
	}
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	sess := session(r, s.secureCookie)
	if sess.UserID == "" {
		return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
	}
	usr, err := s.subs.User(ctx, sess.UserID)
	if errors.Is(err, feedhub.ErrNotFound) {
		return serverutil.WriteJSON(w, http.StatusOK, struct{}{})
	}
	if err != nil {
		return err
	}

	// Only the count is needed for the nav bar
	_, total, err := s.subs.ListFollowedFeeds(ctx, usr.ID, 0, 1)
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, Viewer{
		UserResp:      apiUser(usr),
		FollowedCount: total,
	})
}
