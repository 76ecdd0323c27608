package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/FocuswithJustin/docdiff/core/docx"
	"github.com/FocuswithJustin/docdiff/core/errors"
	"github.com/FocuswithJustin/docdiff/core/fingerprint"
	"github.com/FocuswithJustin/docdiff/core/query"
	"github.com/FocuswithJustin/docdiff/core/sqlite"
	"github.com/FocuswithJustin/docdiff/internal/api"
	"github.com/FocuswithJustin/docdiff/internal/compare"
	"github.com/FocuswithJustin/docdiff/internal/logging"
	"github.com/FocuswithJustin/docdiff/internal/prompt"
	"github.com/FocuswithJustin/docdiff/internal/report"
	"github.com/FocuswithJustin/docdiff/internal/session"
	"github.com/FocuswithJustin/docdiff/internal/validation"
)

// readSource loads a document from disk.
func readSource(path string) (*compare.Source, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, errors.NewValidation("path", err.Error())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIO("read", path, err)
	}
	if len(data) > validation.MaxUploadSize {
		return nil, errors.NewValidation("path",
			fmt.Sprintf("%s: %d bytes exceeds the %d byte limit", path, len(data), validation.MaxUploadSize))
	}
	return &compare.Source{Name: filepath.Base(path), Data: data}, nil
}

func optionalSource(path string) (*compare.Source, error) {
	if path == "" {
		return nil, nil
	}
	return readSource(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func quote(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		s = string(r[:n-1]) + "…"
	}
	return fmt.Sprintf("%q", s)
}

// printItems writes one line per item.
func printItems(w io.Writer, items []docx.Item) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAUTHOR\tSECTION\tCONTENT")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.ID, it.Kind, it.AuthorOr(docx.UnknownAuthor), quote(it.SectionContext, 30), quote(it.Content(), 60))
	}
	return tw.Flush()
}

// ExtractCmd prints the tracked changes and comments of one document.
type ExtractCmd struct {
	File   string `arg:"" help:"Document to extract (.docx)" type:"path"`
	Format string `help:"Output format (text, json)" default:"text" enum:"text,json"`
	Where  string `help:"Only items matching this filter, e.g. 'type:comment author~smith'"`
	Text   bool   `help:"Also print the reconstructed document text"`
}

// Run executes the extract command.
func (c *ExtractCmd) Run(ctx context.Context, g *Globals) error {
	src, err := readSource(c.File)
	if err != nil {
		return err
	}
	if !src.LooksLikeDOCX() {
		return errors.NewUnsupported("format", src.Name+": only .docx documents can be extracted")
	}

	var filter *query.Filter
	if c.Where != "" {
		if filter, err = query.Parse(c.Where); err != nil {
			return err
		}
	}

	doc, err := docx.Parse(src.Data, src.Name, docx.WithLogger(logging.LoggerFromContext(ctx)))
	if err != nil {
		logging.ParseFailed(ctx, src.Name, err)
		return err
	}
	fp := fingerprint.Of(src.Data)
	logging.DocumentParsed(ctx, src.Name, fp, doc.Paragraphs(), len(doc.Items))

	items := doc.Items
	if filter != nil {
		items = filter.Apply(items)
	}

	if c.Format == "json" {
		out := struct {
			Name        string      `json:"name"`
			Fingerprint string      `json:"fingerprint"`
			FullText    string      `json:"fullText,omitempty"`
			Items       []docx.Item `json:"items"`
		}{Name: src.Name, Fingerprint: fp, Items: items}
		if out.Items == nil {
			out.Items = []docx.Item{}
		}
		if c.Text {
			out.FullText = doc.FullText
		}
		return writeJSON(g.stdout, out)
	}

	fmt.Fprintf(g.stdout, "%s (%s): %d paragraphs, %d insertions, %d deletions, %d comments\n",
		src.Name, short(fp), doc.Paragraphs(),
		doc.Count(docx.Insertion), doc.Count(docx.Deletion), doc.Count(docx.Comment))
	if filter != nil {
		fmt.Fprintf(g.stdout, "%d items match %s\n", len(items), filter)
	}
	if len(items) > 0 {
		fmt.Fprintln(g.stdout)
		if err := printItems(g.stdout, items); err != nil {
			return err
		}
	}
	if c.Text {
		fmt.Fprintln(g.stdout)
		fmt.Fprint(g.stdout, doc.FullText)
	}
	return nil
}

// ContextFlags steer the holistic analysis prompt.
type ContextFlags struct {
	Perspective string `help:"Whose side of the document you are on"`
	Recipient   string `help:"Who will read the analysis"`
	Style       string `help:"Report style" default:"Balanced" enum:"High Level,Technical,Balanced"`
	Focus       string `help:"Area to focus on"`
	Background  string `help:"General background for the analysis"`
}

func (f ContextFlags) context() *prompt.Context {
	if f.Perspective == "" && f.Recipient == "" && f.Focus == "" && f.Background == "" {
		return nil
	}
	return &prompt.Context{
		DocumentPerspective: f.Perspective,
		IntendedRecipient:   f.Recipient,
		ReportStyle:         prompt.ReportStyle(f.Style),
		FocusArea:           f.Focus,
		GeneralContext:      f.Background,
	}
}

// CompareCmd extracts an old and a new version for analysis.
type CompareCmd struct {
	Old         string `arg:"" help:"Old version (.docx) whose changes are assessed" type:"path"`
	New         string `arg:"" help:"New version (.docx)" type:"path"`
	Stakeholder string `help:"Stakeholder priorities document (.docx)" type:"path"`
	Commentary  string `help:"Comment response document (.docx)" type:"path"`
	Prompt      bool   `help:"Print the analysis requests as JSON"`
	Session     string `help:"Save the comparison under this session key"`

	ContextFlags `embed:"" prefix:"context-"`
}

// Run executes the compare command.
func (c *CompareCmd) Run(ctx context.Context, g *Globals) error {
	var in compare.Inputs
	var err error
	if in.Old, err = readSource(c.Old); err != nil {
		return err
	}
	if in.New, err = readSource(c.New); err != nil {
		return err
	}
	if in.Stakeholder, err = optionalSource(c.Stakeholder); err != nil {
		return err
	}
	if in.Commentary, err = optionalSource(c.Commentary); err != nil {
		return err
	}

	cmp, err := compare.Run(ctx, in, compare.Options{Logger: logging.LoggerFromContext(ctx)})
	if err != nil {
		return err
	}
	analysisCtx := c.ContextFlags.context()

	if c.Session != "" {
		store, err := g.openStore()
		if err != nil {
			return err
		}
		defer store.Close()
		if _, err := store.Save(ctx, c.Session, session.FromComparison(cmp, analysisCtx)); err != nil {
			return err
		}
		logging.SessionEvent(ctx, "saved", c.Session, "items", len(cmp.Items))
	}

	if c.Prompt {
		prompts, err := api.BuildPrompts(cmp, analysisCtx)
		if err != nil {
			return err
		}
		return writeJSON(g.stdout, prompts)
	}

	fmt.Fprintf(g.stdout, "old: %s (%s)\nnew: %s (%s)\n",
		cmp.OldName, short(cmp.OldFingerprint),
		cmp.NewName, short(cmp.NewFingerprint))
	if cmp.Empty() {
		fmt.Fprintln(g.stdout, prompt.ErrNothingToAnalyze.Error())
	} else {
		fmt.Fprintf(g.stdout, "%d items to assess\n\n", len(cmp.Items))
		if err := printItems(g.stdout, cmp.Items); err != nil {
			return err
		}
	}
	if c.Session != "" {
		fmt.Fprintf(g.stdout, "\nsaved session %s\n", c.Session)
	}
	return nil
}

// ReportCmd renders a saved session.
type ReportCmd struct {
	Session string `help:"Session key" default:"${default_session}"`
	Out     string `help:"Write the report to this file instead of stdout" type:"path"`
	Format  string `help:"Report format (html, json)" default:"html" enum:"html,json"`
	OldName string `name:"old-name" help:"Display name of the old version"`
	NewName string `name:"new-name" help:"Display name of the new version"`
}

// Run executes the report command.
func (c *ReportCmd) Run(ctx context.Context, g *Globals) error {
	st, err := loadSession(ctx, g, c.Session)
	if err != nil {
		return err
	}

	r := report.FromSession(st)
	r.Generated = time.Now()
	if c.OldName != "" {
		r.OldName = c.OldName
	}
	if c.NewName != "" {
		r.NewName = c.NewName
	}

	return writeOutput(g, c.Out, func(w io.Writer) error {
		if c.Format == "json" {
			return report.JSON(w, r)
		}
		return report.HTML(w, r)
	})
}

// writeOutput runs write against path, or stdout when path is empty.
func writeOutput(g *Globals, path string, write func(io.Writer) error) error {
	if path == "" {
		return write(g.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.NewIO("create", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.NewIO("close", path, err)
	}
	fmt.Fprintf(g.stdout, "wrote %s\n", path)
	return nil
}

func loadSession(ctx context.Context, g *Globals, key string) (*session.State, error) {
	store, err := g.openStoreReadOnly()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewNotFound("session", key)
	}
	if err != nil {
		return nil, err
	}
	defer store.Close()

	st, err := store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.NewNotFound("session", key)
	}
	return st, nil
}

// SessionGroup groups the session management commands.
type SessionGroup struct {
	List   SessionListCmd   `cmd:"" help:"List saved sessions"`
	Show   SessionShowCmd   `cmd:"" help:"Print a saved session as JSON"`
	Clear  SessionClearCmd  `cmd:"" help:"Delete a saved session"`
	Export SessionExportCmd `cmd:"" help:"Export a session to a file"`
	Import SessionImportCmd `cmd:"" help:"Import a session file"`
	Apply  SessionApplyCmd  `cmd:"" help:"Store model answers and notes in a session"`
}

// SessionListCmd lists saved sessions.
type SessionListCmd struct{}

// Run executes the session list command.
func (c *SessionListCmd) Run(ctx context.Context, g *Globals) error {
	store, err := g.openStoreReadOnly()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(g.stdout, "no saved sessions")
		return nil
	}
	if err != nil {
		return err
	}
	defer store.Close()

	sums, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Fprintln(g.stdout, "no saved sessions")
		return nil
	}

	tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tOLD\tNEW\tITEMS\tRESULTS\tUPDATED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.Key, s.OldName, s.NewName, s.Items, s.Results, s.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// SessionShowCmd prints a session.
type SessionShowCmd struct {
	Key string `arg:"" optional:"" help:"Session key" default:"${default_session}"`
}

// Run executes the session show command.
func (c *SessionShowCmd) Run(ctx context.Context, g *Globals) error {
	st, err := loadSession(ctx, g, c.Key)
	if err != nil {
		return err
	}
	return session.Export(g.stdout, st, false)
}

// SessionClearCmd deletes a session.
type SessionClearCmd struct {
	Key string `arg:"" optional:"" help:"Session key" default:"${default_session}"`
}

// Run executes the session clear command.
func (c *SessionClearCmd) Run(ctx context.Context, g *Globals) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Clear(ctx, c.Key); err != nil {
		return err
	}
	logging.SessionEvent(ctx, "cleared", c.Key)
	fmt.Fprintf(g.stdout, "cleared session %s\n", c.Key)
	return nil
}

// SessionExportCmd writes a session file.
type SessionExportCmd struct {
	Key      string `arg:"" optional:"" help:"Session key" default:"${default_session}"`
	Out      string `help:"Output file (default: dated name in the current directory, - for stdout)"`
	Compress bool   `help:"Compress the file with xz"`
}

// Run executes the session export command.
func (c *SessionExportCmd) Run(ctx context.Context, g *Globals) error {
	st, err := loadSession(ctx, g, c.Key)
	if err != nil {
		return err
	}

	out := c.Out
	switch out {
	case "":
		out = session.ExportFileName(time.Now(), c.Compress)
	case "-":
		out = ""
	}
	return writeOutput(g, out, func(w io.Writer) error {
		return session.Export(w, st, c.Compress)
	})
}

// SessionImportCmd loads a session file into the database.
type SessionImportCmd struct {
	File string `arg:"" help:"Session file (.json or .json.xz), - for stdin"`
	Key  string `help:"Store under this key" default:"${default_session}"`
}

// Run executes the session import command.
func (c *SessionImportCmd) Run(ctx context.Context, g *Globals) error {
	r := g.stdin
	if c.File != "-" {
		f, err := os.Open(c.File)
		if err != nil {
			return errors.NewIO("open", c.File, err)
		}
		defer f.Close()
		r = f
	}

	st, err := session.Import(r)
	if err != nil {
		return err
	}

	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.Save(ctx, c.Key, st); err != nil {
		return err
	}
	logging.SessionEvent(ctx, "imported", c.Key, "items", len(st.ExtractedItems))
	fmt.Fprintf(g.stdout, "imported %d items and %d results into session %s\n",
		len(st.ExtractedItems), len(st.AnalysisResults), c.Key)
	return nil
}

// SessionApplyCmd stores model answers for the prompts printed by
// compare --prompt, and user notes on individual results.
type SessionApplyCmd struct {
	Key        string            `arg:"" optional:"" help:"Session key" default:"${default_session}"`
	Changes    string            `help:"Change analysis answer (JSON)" type:"existingfile"`
	Commentary string            `help:"Commentary analysis answer (JSON)" type:"existingfile"`
	Diff       string            `help:"Intelligent diff answer (JSON)" type:"existingfile"`
	Note       map[string]string `help:"Attach notes to a result, as ITEM-ID=TEXT"`
}

// Run executes the session apply command.
func (c *SessionApplyCmd) Run(ctx context.Context, g *Globals) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := store.Load(ctx, c.Key)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.NewNotFound("session", c.Key)
	}

	applied := 0
	if c.Changes != "" {
		results, err := readAnswer(c.Changes, prompt.ParseChangeAnalysis)
		if err != nil {
			return err
		}
		for _, r := range results {
			st.Set(r)
		}
		dropped := st.ReattachResults(st.ExtractedItems)
		applied += len(results) - dropped
		if dropped > 0 {
			fmt.Fprintf(g.stdout, "ignored %d results for unknown items\n", dropped)
		}
	}
	if c.Commentary != "" {
		if st.CommentaryAnalysis, err = readAnswer(c.Commentary, prompt.ParseCommentaryAnalysis); err != nil {
			return err
		}
		applied++
	}
	if c.Diff != "" {
		if st.IntelligentDiff, err = readAnswer(c.Diff, prompt.ParseIntelligentDiff); err != nil {
			return err
		}
		applied++
	}
	for id, notes := range c.Note {
		if !st.SetNotes(id, notes) {
			return errors.NewNotFound("result", id)
		}
		applied++
	}

	if _, err := store.Save(ctx, c.Key, st); err != nil {
		return err
	}
	logging.SessionEvent(ctx, "applied", c.Key, "updates", applied)
	fmt.Fprintf(g.stdout, "applied %d updates to session %s\n", applied, c.Key)
	return nil
}

func readAnswer[T any](path string, parse func([]byte) (T, error)) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		return zero, errors.NewIO("read", path, err)
	}
	v, err := parse(data)
	if err != nil {
		return zero, errors.Wrapf(err, "%s", path)
	}
	return v, nil
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	Port      int           `help:"Port to listen on" default:"8080"`
	APIKey    string        `name:"api-key" help:"Require this key in X-API-Key" env:"DOCDIFF_API_KEY"`
	RateLimit int           `name:"rate-limit" help:"Requests per minute per client (0 disables)" default:"0"`
	RateBurst int           `name:"rate-burst" help:"Rate limit burst size" default:"10"`
	Origins   []string      `help:"Allowed CORS and WebSocket origins (default: any)"`
	MaxUpload int64         `name:"max-upload" help:"Per-file upload limit in bytes" default:"${max_upload}"`
	CacheTTL  time.Duration `name:"cache-ttl" help:"Lifetime of cached parse results" default:"15m"`
	CacheSize int           `name:"cache-size" help:"Maximum cached parse results" default:"64"`
	TLSCert   string        `name:"tls-cert" help:"TLS certificate file" type:"existingfile"`
	TLSKey    string        `name:"tls-key" help:"TLS private key file" type:"existingfile"`
}

func (c *ServeCmd) config() api.Config {
	cfg := api.DefaultConfig()
	cfg.Port = c.Port
	cfg.RateLimitRequests = c.RateLimit
	cfg.RateLimitBurst = c.RateBurst
	cfg.AllowedOrigins = c.Origins
	cfg.MaxUploadBytes = c.MaxUpload
	cfg.CacheTTL = c.CacheTTL
	cfg.CacheEntries = c.CacheSize
	if c.APIKey != "" {
		cfg.Auth = api.AuthConfig{Enabled: true, APIKey: c.APIKey}
	}
	if c.TLSCert != "" || c.TLSKey != "" {
		cfg.TLS = api.TLSConfig{Enabled: true, CertFile: c.TLSCert, KeyFile: c.TLSKey}
	}
	return cfg
}

// Run executes the serve command.
func (c *ServeCmd) Run(ctx context.Context, g *Globals) error {
	store, err := g.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	srv, err := api.New(c.config(), store.WithLogger(logging.GetLogger()))
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)
}

// VersionCmd prints version information.
type VersionCmd struct{}

// Run executes the version command.
func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintf(g.stdout, "docdiff %s (sqlite driver %s)\n", version, sqlite.DriverName())
	return nil
}

func short(fp string) string {
	if len(fp) > fingerprint.ShortLen {
		return fp[:fingerprint.ShortLen]
	}
	return fp
}
