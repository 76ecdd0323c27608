// Command docdiff extracts tracked changes and comments from Word
// documents, compares document versions and manages analysis sessions.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/docdiff/internal/api"
	"github.com/FocuswithJustin/docdiff/internal/logging"
	"github.com/FocuswithJustin/docdiff/internal/session"
	"github.com/FocuswithJustin/docdiff/internal/validation"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)" default:"warn" enum:"debug,info,warn,error"`
	LogFormat string `name:"log-format" help:"Log format (text, json)" default:"text" enum:"text,json"`
	DB        string `name:"db" help:"Session database path" default:"${db_path}" type:"path"`

	stdout io.Writer `kong:"-"`
	stdin  io.Reader `kong:"-"`
}

// CLI defines the command-line interface for docdiff.
type CLI struct {
	Globals

	Extract ExtractCmd   `cmd:"" help:"Extract tracked changes and comments from a .docx file"`
	Compare CompareCmd   `cmd:"" help:"Extract an old and a new version and prepare their analysis"`
	Report  ReportCmd    `cmd:"" help:"Render a saved session as an HTML or JSON report"`
	Session SessionGroup `cmd:"" help:"Manage saved sessions"`
	Serve   ServeCmd     `cmd:"" help:"Start the REST API server"`
	Version VersionCmd   `cmd:"" help:"Print version information"`
}

// openStore opens the session database, creating its directory.
func (g *Globals) openStore() (*session.Store, error) {
	if err := validation.ValidatePath(g.DB); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if dir := filepath.Dir(g.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return session.Open(g.DB)
}

// openStoreReadOnly opens an existing session database for commands that
// only read sessions. It never creates the database file.
func (g *Globals) openStoreReadOnly() (*session.Store, error) {
	if err := validation.ValidatePath(g.DB); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	return session.OpenReadOnly(g.DB)
}

func (g *Globals) initLogging() error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

// defaultDBPath places the database under the user's data directory.
func defaultDBPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "docdiff", "sessions.db")
	}
	return "docdiff.db"
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	opts := []kong.Option{
		kong.Name("docdiff"),
		kong.Description("Track how a document's changes and comments fare between versions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.DefaultEnvars("DOCDIFF"),
		kong.Vars{
			"db_path":         defaultDBPath(),
			"default_session": session.DefaultKey,
			"max_upload":      strconv.Itoa(validation.MaxUploadSize),
			"version":         version,
		},
	}
	return kong.New(cli, append(opts, options...)...)
}

// run parses args and executes the selected command.
func run(ctx context.Context, args []string, stdout io.Writer, stdin io.Reader, options ...kong.Option) error {
	var cli CLI
	parser, err := newParser(&cli, options...)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cli.stdout = stdout
	cli.stdin = stdin
	if err := cli.initLogging(); err != nil {
		return err
	}

	kctx.BindTo(ctx, (*context.Context)(nil))
	return kctx.Run(&cli.Globals)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api.Version = version
	err := run(ctx, os.Args[1:], os.Stdout, os.Stdin,
		kong.Configuration(kong.JSON, "~/.config/docdiff/config.json"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "docdiff:", err)
		os.Exit(1)
	}
}
