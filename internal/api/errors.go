package api

import (
	"errors"
	"net/http"

	fherrs "github.com/jdholdren/feedhub/internal/errors"
	"github.com/jdholdren/feedhub/internal/feedhub"
)

// apiErr gives domain errors the status and message the frontend expects.
//
// Anything it doesn't recognize is passed through to be reported as an opaque 500.
func apiErr(err error) error {
	var (
		verr *feedhub.ValidationError
		perr *feedhub.ParseError
	)
	switch {
	case errors.As(err, &verr):
		return fherrs.E(http.StatusUnprocessableEntity, verr.Error(), fherrs.Detail{Field: verr.Field, Error: verr.Reason})
	case errors.As(err, &perr):
		return fherrs.E(http.StatusBadRequest, "Invalid OPML file format. Could not parse XML.")
	case errors.Is(err, feedhub.ErrUserNotFound):
		return fherrs.E(http.StatusUnauthorized, "Your session is no longer valid, please log in again")
	case errors.Is(err, feedhub.ErrNotFound):
		return fherrs.E(http.StatusNotFound, "Feed not found")
	case errors.Is(err, feedhub.ErrAlreadyFollowing):
		return fherrs.E(http.StatusBadRequest, "You are already following this feed")
	case errors.Is(err, feedhub.ErrNotFollowing):
		return fherrs.E(http.StatusBadRequest, "You are not following this feed")
	case errors.Is(err, feedhub.ErrNoEntries):
		return fherrs.E(http.StatusBadRequest, "No valid feed entries found in the OPML file.")
	}

	return err
}
