package api

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/core/fingerprint"
	"github.com/FocuswithJustin/docdiff/core/query"
	"github.com/FocuswithJustin/docdiff/core/sqlite"
	"github.com/FocuswithJustin/docdiff/internal/cache"
	"github.com/FocuswithJustin/docdiff/internal/compare"
	"github.com/FocuswithJustin/docdiff/internal/logging"
	"github.com/FocuswithJustin/docdiff/internal/prompt"
	"github.com/FocuswithJustin/docdiff/internal/report"
	"github.com/FocuswithJustin/docdiff/internal/server"
	"github.com/FocuswithJustin/docdiff/internal/session"
	"github.com/FocuswithJustin/docdiff/internal/validation"
)

// ServiceInfo is returned by the root endpoint.
type ServiceInfo struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status    string      `json:"status"`
	Version   string      `json:"version"`
	Uptime    string      `json:"uptime"`
	Storage   sqlite.Info `json:"storage"`
	Cache     cache.Stats `json:"cache"`
	WebSocket int         `json:"websocketClients"`
}

// Counts tallies items by kind.
type Counts struct {
	Insertions int `json:"insertions"`
	Deletions  int `json:"deletions"`
	Comments   int `json:"comments"`
}

func countItems(items []docx.Item) Counts {
	var c Counts
	for _, it := range items {
		switch it.Kind {
		case docx.Insertion:
			c.Insertions++
		case docx.Deletion:
			c.Deletions++
		case docx.Comment:
			c.Comments++
		}
	}
	return c
}

// ExtractResult is the response of POST /extract.
type ExtractResult struct {
	Name        string      `json:"name"`
	Fingerprint string      `json:"fingerprint"`
	Paragraphs  int         `json:"paragraphs"`
	FullText    string      `json:"fullText"`
	Items       []docx.Item `json:"items"`
	Counts      Counts      `json:"counts"`
	Filter      string      `json:"filter,omitempty"`
}

// Prompts are the analysis requests built for a comparison.
type Prompts struct {
	ChangeAnalysis  *prompt.Request `json:"changeAnalysis,omitempty"`
	Commentary      *prompt.Request `json:"commentary,omitempty"`
	IntelligentDiff *prompt.Request `json:"intelligentDiff,omitempty"`
}

// CompareResult is the response of POST /compare.
type CompareResult struct {
	*compare.Comparison
	Counts           Counts   `json:"counts"`
	NothingToAnalyze bool     `json:"nothingToAnalyze"`
	SessionKey       string   `json:"sessionKey,omitempty"`
	Prompts          *Prompts `json:"prompts,omitempty"`
}

var endpoints = []string{
	"GET /health",
	"POST /extract",
	"POST /compare",
	"POST /report",
	"GET /sessions",
	"POST /sessions",
	"GET /sessions/{key}",
	"DELETE /sessions/{key}",
	"GET /sessions/{key}/export",
	"GET /sessions/{key}/report",
	"GET /ws",
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, ServiceInfo{
		Name:      "docdiff",
		Version:   Version,
		Endpoints: endpoints,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusNotFound, CodeNotFound, "Endpoint not found")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthInfo{
		Status:    "healthy",
		Version:   Version,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Storage:   sqlite.GetInfo(),
		Cache:     s.docs.Stats(),
		WebSocket: s.hub.Clients(),
	})
}

// parseDocument extracts src, reusing the result for identical bytes
// uploaded under the same name. The name is part of the key because
// parse errors name the file and concurrent loads share one error.
func (s *Server) parseDocument(ctx context.Context, src *compare.Source) (*docx.Document, error) {
	key := fingerprint.Of(src.Data) + "\x00" + src.Name
	return s.docs.GetOrLoad(key, func() (*docx.Document, error) {
		doc, err := docx.Parse(src.Data, src.Name, docx.WithLogger(logging.LoggerFromContext(ctx)))
		if err != nil {
			logging.ParseFailed(ctx, src.Name, err)
			return nil, err
		}
		logging.DocumentParsed(ctx, src.Name, fingerprint.Short(src.Data), doc.Paragraphs(), len(doc.Items))
		return doc, nil
	})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(r); err != nil {
		respondErr(w, r, err)
		return
	}
	src, err := s.formSource(r, "file", true)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if !src.LooksLikeDOCX() {
		respondErr(w, r, errors.NewUnsupported("format", src.Name+": only .docx documents can be extracted"))
		return
	}

	filter, err := query.Parse(r.URL.Query().Get("where"))
	if err != nil {
		respondErr(w, r, err)
		return
	}

	doc, err := s.parseDocument(r.Context(), src)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	items := filter.Apply(doc.Items)
	respondMeta(w, http.StatusOK, ExtractResult{
		Name:        src.Name,
		Fingerprint: fingerprint.Of(src.Data),
		Paragraphs:  doc.Paragraphs(),
		FullText:    doc.FullText,
		Items:       items,
		Counts:      countItems(items),
		Filter:      filter.String(),
	}, &APIMeta{Total: len(items)})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opID := uuid.NewString()

	if err := s.parseForm(r); err != nil {
		respondErr(w, r, err)
		return
	}

	var in compare.Inputs
	for _, f := range []struct {
		field    string
		dst      **compare.Source
		required bool
	}{
		{"old", &in.Old, true},
		{"new", &in.New, true},
		{"stakeholder", &in.Stakeholder, false},
		{"commentary", &in.Commentary, false},
	} {
		src, err := s.formSource(r, f.field, f.required)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		*f.dst = src
	}

	s.hub.Progress("compare", opID, "extract", "Extracting documents", 10)
	c, err := compare.Run(ctx, in, compare.Options{
		Logger: logging.LoggerFromContext(ctx),
		Parse:  s.parseDocument,
	})
	if err != nil {
		s.hub.Fail("compare", opID, err.Error())
		respondErr(w, r, err)
		return
	}

	q := r.URL.Query()
	analysisCtx := contextFromForm(r)
	result := CompareResult{
		Comparison:       c,
		Counts:           countItems(c.Items),
		NothingToAnalyze: c.Empty(),
	}

	if q.Get("prompts") == "true" {
		s.hub.Progress("compare", opID, "prompts", "Building analysis requests", 60)
		result.Prompts, err = BuildPrompts(c, analysisCtx)
		if err != nil {
			s.hub.Fail("compare", opID, err.Error())
			respondErr(w, r, err)
			return
		}
	}

	if q.Get("save") == "true" || q.Get("session") != "" {
		s.hub.Progress("compare", opID, "save", "Saving session", 80)
		key, err := s.store.Save(ctx, q.Get("session"), session.FromComparison(c, analysisCtx))
		if err != nil {
			s.hub.Fail("compare", opID, "failed to save session")
			respondErr(w, r, err)
			return
		}
		result.SessionKey = key
		logging.SessionEvent(ctx, "session_saved", key, "items", len(c.Items))
	}

	s.hub.Complete("compare", opID, "Comparison complete", map[string]any{
		"items":      len(c.Items),
		"sessionKey": result.SessionKey,
	})
	respondMeta(w, http.StatusOK, result, &APIMeta{Total: len(c.Items)})
}

// BuildPrompts prepares every analysis the comparison supports.
func BuildPrompts(c *compare.Comparison, ctx *prompt.Context) (*Prompts, error) {
	p := &Prompts{}
	if !c.Empty() {
		req, err := prompt.BuildChangeAnalysis(c.NewText, c.Items)
		if err != nil {
			return nil, err
		}
		p.ChangeAnalysis = req
	}
	if c.CommentaryText != "" {
		p.Commentary = prompt.BuildCommentaryAnalysis(c.CommentaryText)
	}
	if c.StakeholderText != "" {
		withStakeholder := prompt.Context{ReportStyle: prompt.StyleBalanced}
		if ctx != nil {
			withStakeholder = *ctx
		}
		if withStakeholder.StakeholderPriorities == "" {
			withStakeholder.StakeholderPriorities = c.StakeholderText
		}
		ctx = &withStakeholder
	}
	req, err := prompt.BuildIntelligentDiff(c.OldText, c.NewText, c.Items, nil, ctx)
	if err != nil {
		return nil, err
	}
	p.IntelligentDiff = req
	return p, nil
}

// contextFromForm reads the optional analysis context fields. It
// returns nil when none are set.
func contextFromForm(r *http.Request) *prompt.Context {
	field := func(name string) string {
		return server.LimitStringLength(server.SanitizeUserInput(r.FormValue(name)), 2000)
	}
	ctx := &prompt.Context{
		DocumentPerspective: field("perspective"),
		IntendedRecipient:   field("recipient"),
		ReportStyle:         prompt.ReportStyle(field("style")),
		FocusArea:           field("focus"),
		GeneralContext:      field("background"),
	}
	if *ctx == (prompt.Context{}) {
		return nil
	}
	if ctx.ReportStyle == "" {
		ctx.ReportStyle = prompt.StyleBalanced
	}
	return ctx
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, session.MaxImportSize+1))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if len(data) > session.MaxImportSize {
		respondErr(w, r, validation.ErrUploadTooLarge)
		return
	}
	st, err := session.Decode(data)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	s.writeReport(w, r, st)
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	st, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	s.writeReport(w, r, st)
}

func (s *Server) writeReport(w http.ResponseWriter, r *http.Request, st *session.State) {
	q := r.URL.Query()
	rep := report.FromSession(st)
	if name := q.Get("oldName"); name != "" {
		rep.OldName = name
	}
	if name := q.Get("newName"); name != "" {
		rep.NewName = name
	}

	var buf bytes.Buffer
	contentType := "text/html; charset=utf-8"
	render := report.HTML
	if q.Get("format") == "json" {
		contentType = "application/json"
		render = report.JSON
	}
	if err := render(&buf, rep); err != nil {
		respondErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if contentType != "application/json" {
		w.Header().Set("Content-Security-Policy", server.ReportCSPConfig().BuildCSPHeader())
	}
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if list == nil {
		list = []session.Summary{}
	}
	respondMeta(w, http.StatusOK, list, &APIMeta{Total: len(list)})
}

func (s *Server) handleImportSession(w http.ResponseWriter, r *http.Request) {
	st, err := session.Import(r.Body)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	key, err := s.store.Save(r.Context(), r.URL.Query().Get("key"), st)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	logging.SessionEvent(r.Context(), "session_imported", key, "items", len(st.ExtractedItems))
	respond(w, http.StatusCreated, map[string]string{"key": key})
}

// loadSession fetches the session named in the path, answering 404 when
// it does not exist.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*session.State, bool) {
	key := r.PathValue("key")
	st, err := s.store.Load(r.Context(), key)
	if err != nil {
		respondErr(w, r, err)
		return nil, false
	}
	if st == nil {
		respondErr(w, r, errors.NewNotFound("session", key))
		return nil, false
	}
	return st, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if st, ok := s.loadSession(w, r); ok {
		respond(w, http.StatusOK, st)
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.loadSession(w, r); !ok {
		return
	}
	key := r.PathValue("key")
	if err := s.store.Clear(r.Context(), key); err != nil {
		respondErr(w, r, err)
		return
	}
	logging.SessionEvent(r.Context(), "session_cleared", key)
	respond(w, http.StatusOK, map[string]string{"deleted": key})
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	st, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	compress, _ := strconv.ParseBool(r.URL.Query().Get("compress"))

	var buf bytes.Buffer
	if err := session.Export(&buf, st, compress); err != nil {
		respondErr(w, r, err)
		return
	}

	contentType := "application/json"
	if compress {
		contentType = "application/x-xz"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+session.ExportFileName(time.Now(), compress)+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// parseForm reads a multipart body.
func (s *Server) parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if stderrors.As(err, &maxBytes) {
		return err
	}
	return errors.NewValidation("body", "expected a multipart/form-data upload: "+err.Error())
}

// formSource reads one uploaded file. Optional fields that are absent
// yield nil.
func (s *Server) formSource(r *http.Request, field string, required bool) (*compare.Source, error) {
	file, header, err := r.FormFile(field)
	if stderrors.Is(err, http.ErrMissingFile) {
		if required {
			return nil, errors.NewValidation(field, "file is required")
		}
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewValidation(field, err.Error())
	}
	defer file.Close()

	return s.readUpload(field, file, header)
}

func (s *Server) readUpload(field string, file multipart.File, header *multipart.FileHeader) (*compare.Source, error) {
	if ct := header.Header.Get("Content-Type"); !server.ValidateContentType(ct, server.AllowedUploadContentTypes) {
		logging.SecurityEvent("upload_rejected", "api", "field", field, "content_type", ct)
		return nil, errors.Wrapf(validation.ErrTypeMismatch, "%s: content type %q not accepted", field, ct)
	}

	name, err := validation.SanitizeFilename(header.Filename)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", field)
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	if _, err := validation.ValidateUpload(name, data, s.cfg.MaxUploadBytes); err != nil {
		return nil, errors.Wrapf(err, "%s", field)
	}
	return &compare.Source{Name: name, Data: data}, nil
}
