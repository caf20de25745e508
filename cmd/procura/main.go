// Command procura is a terminal client for the procurement backend. It keeps
// the session in the configured credential store, a file profile by default,
// so consecutive invocations share one login.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"procura/internal/api"
	"procura/internal/app"
	"procura/internal/auth/models"
	"procura/internal/platform/config"
	"procura/internal/platform/logger"
	dErrors "procura/pkg/domain-errors"
	"procura/pkg/platform/httputil"
)

const (
	exitOK    = 0
	exitError = 1
	// exitSession means the command needs a login.
	exitSession = 2
	exitUsage   = 64
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("procura", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "path to a YAML config file")
	verbose := global.Bool("v", false, "log at debug level to stderr")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		printUsage(stderr)
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}
	level := "error"
	if *verbose {
		level = "debug"
	}
	a, err := app.New(ctx, cfg, logger.NewWithLevel(stderr, level))
	if err != nil {
		fmt.Fprintf(stderr, "init: %v\n", err)
		return exitError
	}
	defer a.Close()

	cmd := &commands{app: a, stdout: stdout, stderr: stderr}
	name, rest := global.Arg(0), global.Args()[1:]
	switch name {
	case "login":
		return cmd.login(ctx, rest)
	case "logout":
		return cmd.logout(ctx)
	case "whoami":
		return cmd.whoami(ctx)
	case "refresh":
		return cmd.refresh(ctx)
	case "get":
		return cmd.get(ctx, rest)
	case "help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n\n", name)
		printUsage(stderr)
		return exitUsage
	}
}

type commands struct {
	app    *app.App
	stdout io.Writer
	stderr io.Writer
}

func (c *commands) login(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (or PROCURA_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *password == "" {
		*password = os.Getenv("PROCURA_PASSWORD")
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(c.stderr, "login requires -email and -password")
		return exitUsage
	}

	result, err := c.app.Auth.Login(ctx, strings.ToLower(strings.TrimSpace(*email)), *password)
	if err != nil {
		return c.fail(err)
	}
	return c.print(result.User)
}

func (c *commands) logout(ctx context.Context) int {
	if err := c.app.Auth.Logout(ctx); err != nil {
		return c.fail(err)
	}
	return c.print(map[string]string{"status": "logged_out"})
}

func (c *commands) whoami(ctx context.Context) int {
	user, err := c.app.Auth.CurrentUser(ctx)
	if err != nil {
		return c.fail(err)
	}
	if user == nil {
		return c.fail(dErrors.New(dErrors.CodeUnauthorized, "not logged in"))
	}
	return c.print(user)
}

func (c *commands) refresh(ctx context.Context) int {
	token, err := c.app.Auth.RefreshAccessToken(ctx)
	if err != nil {
		return c.fail(err)
	}
	out := map[string]any{"status": "refreshed"}
	if claims, ok := models.ParseAccessClaims(token); ok && !claims.ExpiresAt.IsZero() {
		out["expiresAt"] = claims.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return c.print(out)
}

func (c *commands) get(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	var params paramFlag
	fs.Var(&params, "param", "query parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(c.stderr, "get requires a resource, e.g. get projects p-100 budget")
		return exitUsage
	}

	data, err := api.QueryFetchParams[json.RawMessage](ctx, c.app.Client, fs.Args(), url.Values(params), api.On401Throw)
	if err != nil {
		return c.fail(err)
	}
	return c.print(data)
}

func (c *commands) print(v any) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(c.stderr, "encode output: %v\n", err)
		return exitError
	}
	return exitOK
}

// fail prints err the way the portal renders errors.
func (c *commands) fail(err error) int {
	code := dErrors.CodeOf(err)
	body := httputil.ErrorResponse{Error: httputil.DomainCodeToHTTPCode(code), Description: err.Error()}
	enc := json.NewEncoder(c.stderr)
	_ = enc.Encode(body)
	switch code {
	case dErrors.CodeUnauthorized, dErrors.CodeMalformedToken, dErrors.CodeInvalidCredentials:
		return exitSession
	default:
		return exitError
	}
}

// paramFlag collects repeated -param key=value flags.
type paramFlag url.Values

func (p *paramFlag) String() string {
	return url.Values(*p).Encode()
}

func (p *paramFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("param %q must be key=value", s)
	}
	if *p == nil {
		*p = paramFlag{}
	}
	url.Values(*p).Add(key, value)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `procura - terminal client for the procurement backend

Usage:
  procura [-config path] [-v] <command> [flags]

Commands:
  login     Log in and store the session (-email, -password)
  logout    Clear the stored session
  whoami    Show the current user
  refresh   Refresh the access token
  get       Fetch a resource: get <resource> [id] [sub-resource] [-param k=v]

Examples:
  procura login -email pm@procura.test -password password123
  procura get projects p-100 budget
  procura get -param q=rebar search
`)
}
