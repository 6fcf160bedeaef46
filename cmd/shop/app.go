package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/auth"
	"github.com/atinyakov/sockcs/internal/client/cart"
	"github.com/atinyakov/sockcs/internal/client/catalog"
	"github.com/atinyakov/sockcs/internal/client/media"
	"github.com/atinyakov/sockcs/internal/client/orders"
	"github.com/atinyakov/sockcs/internal/client/shell"
	"github.com/atinyakov/sockcs/internal/client/staff"
	"github.com/atinyakov/sockcs/internal/client/storage"
	"github.com/atinyakov/sockcs/internal/config"
	"github.com/atinyakov/sockcs/internal/logger"
)

// app is the wired client: options, logger and the storefront services.
type app struct {
	opts     *config.Options
	log      *zap.Logger
	services shell.Services
}

func newApp(f flags) (*app, error) {
	opts, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.apiBase != "" {
		opts.SetAPIBase(f.apiBase)
	}
	if f.logLevel != "" {
		opts.LogLevel = f.logLevel
	}

	l := logger.New()
	if err := l.Init(opts.LogLevel); err != nil {
		return nil, err
	}
	log := l.Log

	timeout, err := opts.Timeout()
	if err != nil {
		return nil, err
	}
	apiOpts := []api.Option{api.WithTimeout(timeout), api.WithLogger(log)}
	if opts.CAFile != "" {
		o, err := api.WithRootCA(opts.CAFile)
		if err != nil {
			return nil, err
		}
		apiOpts = append(apiOpts, o)
	}
	client, err := api.New(opts.APIBase, apiOpts...)
	if err != nil {
		return nil, err
	}

	ls := storage.New(opts.TokenFile)
	if err := ls.Load(); err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.TokenFile, err)
	}

	r := media.New(opts.MediaOrigin, opts.APIBase)
	session := auth.NewSession(client, auth.NewTokenStore(ls), log)
	return &app{
		opts: opts,
		log:  log,
		services: shell.Services{
			Session: session,
			Cart:    cart.NewSyncer(session, r, log),
			Catalog: catalog.New(session, r, opts.GraphQLURL, log),
			Orders:  orders.New(session, ls, r, log),
			Staff:   staff.New(session, r, log),
		},
	}, nil
}

func (a *app) close() { _ = a.log.Sync() }
