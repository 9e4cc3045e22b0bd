package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	fherrs "github.com/jdholdren/feedhub/internal/errors"
	"github.com/jdholdren/feedhub/internal/opml"
	"github.com/jdholdren/feedhub/internal/serverutil"
)

type OPMLImportResp struct {
	Message       string `json:"message"`
	ImportedCount int    `json:"imported_count"`
	SkippedCount  int    `json:"skipped_count"`
}

// Follows every feed in an uploaded OPML document.
func (s *Server) postOPMLImport(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, opml.MaxDocumentSize+(1<<20))
	if err := r.ParseMultipartForm(opml.MaxDocumentSize); err != nil {
		return fherrs.E(http.StatusBadRequest, "expected a multipart upload")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return fherrs.E(http.StatusBadRequest, fherrs.Detail{Field: "file", Error: "is required"}, "missing file")
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".opml", ".xml":
	default:
		return fherrs.E(http.StatusBadRequest, "Invalid file format. Only OPML files are supported.")
	}

	entries, err := opml.Parse(file)
	if err != nil {
		return apiErr(err)
	}

	sess := session(r, s.secureCookie)
	summary, err := s.subs.ImportOPMLEntries(r.Context(), sess.UserID, entries)
	if err != nil {
		return apiErr(err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, OPMLImportResp{
		Message:       fmt.Sprintf("OPML import completed. %d feeds imported, %d feeds skipped.", summary.Imported, summary.Skipped),
		ImportedCount: summary.Imported,
		SkippedCount:  summary.Skipped,
	})
}
