// Command adminctl runs admin screen operations from a terminal. The session
// (identity and permission map) is kept in a local JSON file written by the
// login command.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"catalog-admin-go/internal/access"
	"catalog-admin-go/internal/client"
	"catalog-admin-go/internal/config"
	"catalog-admin-go/internal/gateway"
	"catalog-admin-go/internal/model"
	"catalog-admin-go/internal/service"
)

type cli struct {
	Config  string     `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Session string     `kong:"help='Session file.',default='${session_file}',env='ADMINCTL_SESSION'"`
	BaseURL string     `kong:"name='api-base-url',help='Backend API origin (overrides config).',env='API_BASE_URL'"`
	APIKey  string     `kong:"help='Backend API key value (overrides config).',env='API_KEY'"`
	Verbose bool       `kong:"short='v',help='Log gateway activity to stderr.'"`
	Login   loginCmd   `kong:"cmd,help='Store the admin identity and permission map.'"`
	Logout  logoutCmd  `kong:"cmd,help='Remove the stored session.'"`
	Access  accessCmd  `kong:"cmd,help='Show access levels.'"`
	List    listCmd    `kong:"cmd,help='List a module.'"`
	Create  createCmd  `kong:"cmd,help='Create an item from a JSON document.'"`
	Update  updateCmd  `kong:"cmd,help='Update an item from a JSON document.'"`
	Delete  deleteCmd  `kong:"cmd,help='Delete an item.'"`
	Dash    dashCmd    `kong:"cmd,name='dashboard',help='Show dashboard counts.'"`
	Request requestCmd `kong:"cmd,help='Send a raw request through the gateway.'"`
}

// app is shared by every command.
type app struct {
	cfg      *config.Config
	sessions access.FileSessions
	gateway  *gateway.Gateway
	catalog  *service.CatalogService
	out      io.Writer
}

type loginCmd struct {
	Email       string `kong:"arg,help='Admin identity.'"`
	Permissions string `kong:"arg,optional,help='Permission map as a JSON object.'"`
}

func (c *loginCmd) Run(a *app) error {
	perms := strings.TrimSpace(c.Permissions)
	if perms != "" && !json.Valid([]byte(perms)) {
		return errors.New("permissions: not valid JSON")
	}
	if err := a.sessions.Save(access.Session{Identity: c.Email, Permissions: []byte(perms)}); err != nil {
		return err
	}
	_, err := fmt.Fprintf(a.out, "session stored in %s\n", a.sessions.Path)
	return err
}

type logoutCmd struct{}

func (c *logoutCmd) Run(a *app) error {
	if err := os.Remove(a.sessions.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session: %w", err)
	}
	return nil
}

type accessCmd struct {
	Module []string `kong:"arg,optional,help='Module keys (default: all).'"`
}

func (c *accessCmd) Run(ctx context.Context, a *app) error {
	modules := c.Module
	if len(modules) == 0 {
		for _, m := range a.cfg.Modules {
			modules = append(modules, m.Key)
		}
		modules = append(modules, service.DashboardModule)
	}

	levels := make(map[string]access.Level, len(modules))
	for _, m := range modules {
		level, err := a.catalog.Access(ctx, m)
		if err != nil {
			return err
		}
		levels[m] = level
	}
	return a.print(levels)
}

type listCmd struct {
	Module string `kong:"arg,help='Module key.'"`
}

func (c *listCmd) Run(ctx context.Context, a *app) error {
	page, err := a.catalog.Load(ctx, c.Module)
	if page != nil {
		if perr := a.print(page); perr != nil {
			return perr
		}
	}
	return err
}

type createCmd struct {
	Module string `kong:"arg,help='Module key.'"`
	Data   string `kong:"short='d',help='JSON body, or @file to read it from a file.',required"`
}

func (c *createCmd) Run(ctx context.Context, a *app) error {
	body, err := readData(c.Data)
	if err != nil {
		return err
	}
	return a.mutate(ctx, model.Mutation{Module: c.Module, Op: model.OpCreate, Body: body})
}

type updateCmd struct {
	Module string `kong:"arg,help='Module key.'"`
	ID     string `kong:"arg,help='Item id.'"`
	Data   string `kong:"short='d',help='JSON body, or @file to read it from a file.',required"`
}

func (c *updateCmd) Run(ctx context.Context, a *app) error {
	body, err := readData(c.Data)
	if err != nil {
		return err
	}
	return a.mutate(ctx, model.Mutation{Module: c.Module, Op: model.OpUpdate, ID: c.ID, Body: body})
}

type deleteCmd struct {
	Module string `kong:"arg,help='Module key.'"`
	ID     string `kong:"arg,help='Item id.'"`
}

func (c *deleteCmd) Run(ctx context.Context, a *app) error {
	return a.mutate(ctx, model.Mutation{Module: c.Module, Op: model.OpDelete, ID: c.ID})
}

type dashCmd struct{}

func (c *dashCmd) Run(ctx context.Context, a *app) error {
	d, err := a.catalog.Dashboard(ctx)
	if err != nil {
		return err
	}
	return a.print(d)
}

type requestCmd struct {
	Method string   `kong:"arg,help='HTTP method.'"`
	Target string   `kong:"arg,help='Backend path or absolute URL.'"`
	Data   string   `kong:"short='d',help='JSON body, or @file to read it from a file.'"`
	Header []string `kong:"short='H',help='Extra header as Name: value.'"`
}

func (c *requestCmd) Run(ctx context.Context, a *app) error {
	opts := &gateway.RequestOptions{
		Method: strings.ToUpper(c.Method),
		Header: make(map[string][]string),
	}
	for _, h := range c.Header {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return fmt.Errorf("header %q: want Name: value", h)
		}
		opts.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if c.Data != "" {
		body, err := readData(c.Data)
		if err != nil {
			return err
		}
		opts.Body = body
	}

	resp, err := a.gateway.Send(ctx, c.Target, opts)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(a.out, "%d\n%s\n", resp.StatusCode, resp.Body); err != nil {
		return err
	}
	return resp.Err()
}

func (a *app) mutate(ctx context.Context, m model.Mutation) error {
	res, err := a.catalog.Mutate(ctx, m)
	if err != nil {
		return err
	}
	return a.print(res)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readData returns a JSON body from an inline document or an @file reference.
func readData(s string) (json.RawMessage, error) {
	data := []byte(s)
	if path, ok := strings.CutPrefix(s, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".adminctl-session.json"
	}
	return filepath.Join(dir, "catalog-admin", "session.json")
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("adminctl"),
		kong.Description("Catalog admin operations from the command line."),
		kong.Vars{"session_file": defaultSessionFile()},
	)

	cfg, err := config.Load(&config.CLI{Config: c.Config, BaseURL: c.BaseURL, APIKey: c.APIKey})
	kctx.FatalIfErrorf(err)

	level := slog.LevelWarn
	if c.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sessions := access.FileSessions{Path: c.Session}
	gw := gateway.New(cfg, client.NewBackendClient(cfg, logger, nil), logger, nil)
	resolver := access.NewResolver(cfg, sessions, logger, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{
		cfg:      cfg,
		sessions: sessions,
		gateway:  gw,
		catalog:  service.NewCatalogService(gw, resolver, cfg, logger),
		out:      os.Stdout,
	}
	kctx.BindTo(ctx, (*context.Context)(nil))
	err = kctx.Run(a)
	stop()
	kctx.FatalIfErrorf(err)
}
