package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	fherrs "github.com/jdholdren/feedhub/internal/errors"
	"github.com/jdholdren/feedhub/internal/feedhub"
	"github.com/jdholdren/feedhub/internal/serverutil"
)

type (
	FeedResp struct {
		ID          string    `json:"id"`
		URL         string    `json:"url"`
		Name        string    `json:"name"`
		Description *string   `json:"description"`
		CreatedAt   time.Time `json:"created_at"`
		UpdatedAt   time.Time `json:"updated_at"`
	}

	FeedsResp struct {
		Data       []FeedResp     `json:"data"`
		Count      int            `json:"count"`
		Pagination paginationMeta `json:"pagination"`
	}

	PostFeedReq struct {
		URL         string `json:"url"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	MessageResp struct {
		Message string `json:"message"`
	}
)

func apiFeed(f feedhub.Feed) FeedResp {
	return FeedResp{
		ID:          f.ID,
		URL:         f.URL,
		Name:        f.Name,
		Description: f.Description,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

func apiFeeds(feeds []feedhub.Feed, total, limit, offset int) FeedsResp {
	data := make([]FeedResp, 0, len(feeds))
	for _, f := range feeds {
		data = append(data, apiFeed(f))
	}

	return FeedsResp{
		Data:  data,
		Count: total,
		Pagination: paginationMeta{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	}
}

// Lists the feeds the current user follows.
func (s *Server) getFeeds(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx           = r.Context()
		sess          = session(r, s.secureCookie)
		limit, offset = parsePaginationParams(r, defaultPageLimit, maxPageLimit)
	)

	feeds, total, err := s.subs.ListFollowedFeeds(ctx, sess.UserID, offset, limit)
	if err != nil {
		return apiErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiFeeds(feeds, total, limit, offset))
}

// Lists every feed anyone has registered.
func (s *Server) getAllFeeds(w http.ResponseWriter, r *http.Request) error {
	limit, offset := parsePaginationParams(r, defaultPageLimit, maxPageLimit)

	feeds, total, err := s.subs.ListAllFeeds(r.Context(), offset, limit)
	if err != nil {
		return apiErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, apiFeeds(feeds, total, limit, offset))
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) error {
	feedID := mux.Vars(r)["feedID"]
	if feed, ok := s.feedCache.Get(feedID); ok {
		return serverutil.WriteJSON(w, http.StatusOK, apiFeed(feed))
	}

	feed, err := s.subs.Feed(r.Context(), feedID)
	if err != nil {
		return apiErr(err)
	}
	s.feedCache.Add(feed.ID, feed)

	return serverutil.WriteJSON(w, http.StatusOK, apiFeed(feed))
}

// Registers a feed by url if it's new and follows it.
func (s *Server) postFeed(w http.ResponseWriter, r *http.Request) error {
	body, err := serverutil.DecodeJSON[PostFeedReq](r.Body)
	if err != nil {
		return err
	}

	sess := session(r, s.secureCookie)
	feed, err := s.subs.CreateAndFollow(r.Context(), sess.UserID, feedhub.FeedInput{
		URL:         body.URL,
		Name:        body.Name,
		Description: body.Description,
	})
	if errors.Is(err, feedhub.ErrAlreadyFollowing) {
		return fherrs.E(http.StatusBadRequest, "You are already following a feed with this URL")
	}
	if err != nil {
		return apiErr(err)
	}
	s.feedCache.Add(feed.ID, feed)

	return serverutil.WriteJSON(w, http.StatusOK, apiFeed(feed))
}

func (s *Server) postFollow(w http.ResponseWriter, r *http.Request) error {
	sess := session(r, s.secureCookie)

	feed, err := s.subs.FollowFeed(r.Context(), sess.UserID, mux.Vars(r)["feedID"])
	if err != nil {
		return apiErr(err)
	}
	s.feedCache.Add(feed.ID, feed)

	return serverutil.WriteJSON(w, http.StatusOK, apiFeed(feed))
}

func (s *Server) deleteFollow(w http.ResponseWriter, r *http.Request) error {
	sess := session(r, s.secureCookie)

	if err := s.subs.UnfollowFeed(r.Context(), sess.UserID, mux.Vars(r)["feedID"]); err != nil {
		return apiErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, MessageResp{Message: "Feed unfollowed successfully"})
}
