package api

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/logicossoftware/go-mobi"
	"github.com/logicossoftware/go-mobi/mdocx"
)

const mobiContentType = "application/x-mobipocket-ebook"

var unsafeFilenameChars = regexp.MustCompile(`[^-A-Za-z0-9_.]+`)

// handleConvert reads an MDOCX bundle from the request body and answers
// with the MOBI book. Query parameters override the configured defaults:
// compression (none|palmdoc), periodical (true|false, unset means auto),
// thumbnail (true|false), end_records (true|false) and toc_depth (1-3).
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	opts, tocDepth, err := s.buildOptions(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	bundle, err := mdocx.Read(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("bundle exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "invalid mdocx bundle: "+err.Error(), http.StatusBadRequest)
		return
	}

	doc, nav, err := mdocx.Convert(bundle, mdocx.WithTOCDepth(tocDepth), mdocx.WithConvertLogger(s.log))
	if err != nil {
		jsonError(w, "convert bundle: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var warnings []mobi.Warning
	opts = append(opts,
		mobi.WithLogger(s.log),
		mobi.WithWarningHandler(func(wn mobi.Warning) { warnings = append(warnings, wn) }))
	book, err := mobi.Build(doc, nav, opts...)
	if err != nil {
		jsonError(w, "build mobi: "+err.Error(), buildErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", mobiContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(book)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.mobi"`, bookFilename(doc.Metadata.Title)))
	w.Header().Set("X-Mobi-Warnings", strconv.Itoa(len(warnings)))
	w.WriteHeader(http.StatusOK)
	w.Write(book)
}

func (s *Server) buildOptions(r *http.Request) ([]mobi.Option, int, error) {
	q := r.URL.Query()

	name := s.cfg.Compression
	if v := q.Get("compression"); v != "" {
		name = v
	}
	comp, err := mobi.ParseCompression(name)
	if err != nil {
		return nil, 0, err
	}
	opts := []mobi.Option{mobi.WithCompression(comp), mobi.WithMaxImageSize(s.cfg.MaxImageSize)}

	thumbnail, err := boolParam(q.Get("thumbnail"), s.cfg.Thumbnail)
	if err != nil {
		return nil, 0, fmt.Errorf("thumbnail: %w", err)
	}
	endRecords, err := boolParam(q.Get("end_records"), s.cfg.EndRecords)
	if err != nil {
		return nil, 0, fmt.Errorf("end_records: %w", err)
	}
	opts = append(opts, mobi.WithThumbnail(thumbnail), mobi.WithEndRecords(endRecords))

	if v := q.Get("periodical"); v != "" {
		periodical, err := strconv.ParseBool(v)
		if err != nil {
			return nil, 0, fmt.Errorf("periodical: %w", err)
		}
		mode := mobi.IndexBook
		if periodical {
			mode = mobi.IndexPeriodical
		}
		opts = append(opts, mobi.WithIndexMode(mode))
	}

	depth := s.cfg.TOCDepth
	if v := q.Get("toc_depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 3 {
			return nil, 0, fmt.Errorf("toc_depth must be 1, 2 or 3")
		}
		depth = n
	}
	return opts, depth, nil
}

func boolParam(v string, fallback bool) (bool, error) {
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

// buildErrorStatus maps a build failure to a status code. Problems with the
// submitted content are the client's; anything else is ours.
func buildErrorStatus(err error) int {
	switch {
	case errors.Is(err, mobi.ErrValidation),
		errors.Is(err, mobi.ErrInvalidLayout),
		errors.Is(err, mobi.ErrUnsupportedIndex),
		errors.Is(err, mobi.ErrIndexTooLarge),
		errors.Is(err, mobi.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mobi.ErrUnsupportedCompression):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

type recordInfo struct {
	Index int `json:"index"`
	Size  int `json:"size"`
}

type inspectResponse struct {
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Creator     string       `json:"creator"`
	Created     time.Time    `json:"created"`
	Title       string       `json:"title"`
	Compression uint16       `json:"compression"`
	TextLength  uint32       `json:"text_length"`
	TextRecords uint16       `json:"text_records"`
	BookType    uint32       `json:"book_type"`
	Records     []recordInfo `json:"records"`
}

// handleInspect summarizes the record layout of a MOBI file.
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "failed to read body: "+err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	h, records, err := mobi.SplitRecords(data)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(records) == 0 {
		jsonError(w, "database holds no records", http.StatusBadRequest)
		return
	}
	resp := inspectResponse{Name: h.Name, Type: h.Type, Creator: h.Creator, Created: h.Created}
	for i, rec := range records {
		resp.Records = append(resp.Records, recordInfo{Index: i, Size: len(rec)})
	}
	if rec0 := records[0]; len(rec0) >= 16+0x4c && string(rec0[16:20]) == "MOBI" {
		resp.Compression = binary.BigEndian.Uint16(rec0[0:2])
		resp.TextLength = binary.BigEndian.Uint32(rec0[4:8])
		resp.TextRecords = binary.BigEndian.Uint16(rec0[8:10])
		resp.BookType = binary.BigEndian.Uint32(rec0[16+0x08:])
		off := binary.BigEndian.Uint32(rec0[16+0x44:])
		n := binary.BigEndian.Uint32(rec0[16+0x48:])
		if uint64(off)+uint64(n) <= uint64(len(rec0)) {
			resp.Title = string(rec0[off : off+n])
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func bookFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "_")
	if name == "" || name == "_" {
		name = "book"
	}
	return name
}
