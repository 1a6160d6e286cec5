// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package loader turns a configuration document into registered tools:
// stores, then integrations, then applications, then registry entries.
package loader

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stacklok/toolhost/pkg/application"
	"github.com/stacklok/toolhost/pkg/apps"
	"github.com/stacklok/toolhost/pkg/config"
	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/integration"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/store"
	"github.com/stacklok/toolhost/pkg/tools"
)

// maxParallelBuilds bounds concurrent application construction.
const maxParallelBuilds = 8

// Resolver is a late-binding lookup for applications that are neither
// named by module nor built in. It reports false when it does not know the
// application.
type Resolver func(ctx context.Context, app config.AppConfig) (application.Factory, bool, error)

// StoreFactory creates a store from its configuration.
type StoreFactory func(ctx context.Context, cfg store.Config) (store.Store, error)

// Loader builds applications and installs their tools into a registry.
type Loader struct {
	registry     *tools.Registry
	modules      map[string]application.Factory
	builtins     map[string]application.Factory
	resolvers    []Resolver
	newStore     StoreFactory
	integOpts    []integration.Option
	refresher    *integration.Refresher
	skipBuiltins bool
}

// Option configures a Loader.
type Option func(*Loader)

// WithModule registers an implementation under an explicit module id.
func WithModule(id string, f application.Factory) Option {
	return func(l *Loader) {
		l.modules[id] = f
	}
}

// WithBuiltin registers an implementation under a slug, replacing any
// compiled-in application with the same slug.
func WithBuiltin(slug string, f application.Factory) Option {
	return func(l *Loader) {
		l.builtins[slug] = f
	}
}

// WithoutBuiltins leaves out the compiled-in applications.
func WithoutBuiltins() Option {
	return func(l *Loader) {
		l.skipBuiltins = true
	}
}

// WithResolver appends a late-binding resolver. Resolvers are consulted in
// the order they were added.
func WithResolver(r Resolver) Option {
	return func(l *Loader) {
		l.resolvers = append(l.resolvers, r)
	}
}

// WithStoreFactory replaces store.NewStore.
func WithStoreFactory(f StoreFactory) Option {
	return func(l *Loader) {
		l.newStore = f
	}
}

// WithIntegrationOptions passes options to every integration.
func WithIntegrationOptions(opts ...integration.Option) Option {
	return func(l *Loader) {
		l.integOpts = append(l.integOpts, opts...)
	}
}

// New creates a Loader that installs tools into registry.
func New(registry *tools.Registry, opts ...Option) *Loader {
	l := &Loader{
		registry:  registry,
		modules:   map[string]application.Factory{},
		builtins:  map[string]application.Factory{},
		newStore:  store.NewStore,
		refresher: integration.NewRefresher(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if !l.skipBuiltins {
		for _, b := range apps.Builtins() {
			if _, ok := l.builtins[b.Slug]; !ok {
				l.builtins[b.Slug] = b.Factory
			}
			if _, ok := l.modules[b.Module]; !ok {
				l.modules[b.Module] = b.Factory
			}
		}
	}
	return l
}

// Loaded is an application whose tools are registered.
type Loaded struct {
	Config      config.AppConfig
	Application application.Application
	Tools       []string
}

// Result reports the outcome of Load.
type Result struct {
	// Store is the default credential store
	Store store.Store
	// Applications lists the loaded applications in configuration order
	Applications []Loaded
	// Failures holds one ApplicationLoadError per application that failed
	Failures []error
}

// Load builds every configured application. An application that fails to
// build or register is reported in Result.Failures and the others still
// load. Only a failure to create the default store is returned as an error.
func (l *Loader) Load(ctx context.Context, cfg *config.Config) (*Result, error) {
	defaultStore, err := l.newStore(ctx, storeConfig(cfg.Store, cfg.Name))
	if err != nil {
		return nil, hosterr.NewConfigurationError("failed to create the default store", []string{"store"}, err)
	}
	logger.Infof("Using %s credential store", defaultStore.Type())

	built := make([]application.Application, len(cfg.Apps))
	errs := make([]error, len(cfg.Apps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelBuilds)
	for i := range cfg.Apps {
		g.Go(func() error {
			app, err := l.build(gctx, cfg, &cfg.Apps[i], defaultStore)
			if err != nil {
				errs[i] = hosterr.NewApplicationLoadError(cfg.Apps[i].Name, err)
				return nil
			}
			built[i] = app
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Store: defaultStore}
	for i, app := range built {
		appCfg := cfg.Apps[i]
		if errs[i] != nil {
			logger.Warnf("Failed to load application %s: %v", appCfg.Name, errs[i])
			res.Failures = append(res.Failures, errs[i])
			continue
		}
		names, err := l.install(app, appCfg)
		if err != nil {
			logger.Warnf("Failed to register tools of application %s: %v", appCfg.Name, err)
			res.Failures = append(res.Failures, hosterr.NewApplicationLoadError(appCfg.Name, err))
			continue
		}
		logger.Infof("Loaded application %s with %d tool(s)", appCfg.Name, len(names))
		res.Applications = append(res.Applications, Loaded{Config: appCfg, Application: app, Tools: names})
	}
	return res, nil
}

func (l *Loader) build(
	ctx context.Context, cfg *config.Config, appCfg *config.AppConfig, defaultStore store.Store,
) (application.Application, error) {
	factory, err := l.resolve(ctx, *appCfg)
	if err != nil {
		return nil, err
	}

	var integ integration.Integration
	if appCfg.Integration != nil {
		st := defaultStore
		if appCfg.Store != nil {
			st, err = l.newStore(ctx, storeConfig(*appCfg.Store, cfg.Name))
			if err != nil {
				return nil, fmt.Errorf("failed to create store: %w", err)
			}
		}
		opts := append([]integration.Option{integration.WithRefresher(l.refresher)}, l.integOpts...)
		integ, err = integration.New(ctx, integrationConfig(*appCfg.Integration), st, opts...)
		if err != nil {
			return nil, err
		}
	}

	app, err := factory(ctx, application.Config{
		Slug:        appCfg.Name,
		Integration: integ,
		Options:     appCfg.Options,
		RateLimit:   appCfg.RateLimit,
		Timeout:     time.Duration(appCfg.Timeout),
		CABundle:    appCfg.CABundle,
	})
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("factory returned no application")
	}
	return app, nil
}

// BuildIntegration creates the integration of the named application over
// its credential store without building the application. The returned store
// is the one the integration reads and writes.
func (l *Loader) BuildIntegration(
	ctx context.Context, cfg *config.Config, name string,
) (integration.Integration, store.Store, error) {
	idx := slices.IndexFunc(cfg.Apps, func(a config.AppConfig) bool { return a.Name == name })
	if idx < 0 {
		return nil, nil, hosterr.NewConfigurationError(fmt.Sprintf("application %q is not configured", name),
			[]string{"apps"}, nil)
	}
	appCfg := cfg.Apps[idx]
	if appCfg.Integration == nil {
		return nil, nil, hosterr.NewConfigurationError(
			fmt.Sprintf("application %q has no integration", name),
			[]string{fmt.Sprintf("apps[%d].integration", idx)}, nil)
	}

	sc := cfg.Store
	if appCfg.Store != nil {
		sc = *appCfg.Store
	}
	st, err := l.newStore(ctx, storeConfig(sc, cfg.Name))
	if err != nil {
		return nil, nil, hosterr.NewConfigurationError("failed to create the credential store", []string{"store"}, err)
	}
	opts := append([]integration.Option{integration.WithRefresher(l.refresher)}, l.integOpts...)
	integ, err := integration.New(ctx, integrationConfig(*appCfg.Integration), st, opts...)
	if err != nil {
		return nil, nil, err
	}
	return integ, st, nil
}

// resolve picks the implementation: explicit module, then built-in slug,
// then resolvers in order.
func (l *Loader) resolve(ctx context.Context, appCfg config.AppConfig) (application.Factory, error) {
	if appCfg.Module != "" {
		if f, ok := l.modules[appCfg.Module]; ok {
			return f, nil
		}
		return nil, fmt.Errorf("unknown module %q", appCfg.Module)
	}
	if f, ok := l.builtins[appCfg.Name]; ok {
		return f, nil
	}
	for _, r := range l.resolvers {
		f, ok, err := r(ctx, appCfg)
		if err != nil {
			return nil, err
		}
		if ok && f != nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("no implementation found for application %q", appCfg.Name)
}

// install registers the tools of app that pass its filter under the
// application namespace. On any failure the tools already registered for
// app are removed again.
func (l *Loader) install(app application.Application, appCfg config.AppConfig) ([]string, error) {
	namespace := appCfg.ToolNamespace()
	filter, err := toolFilter(appCfg)
	if err != nil {
		return nil, err
	}
	fns, err := filter.Apply(app.ListTools())
	if err != nil {
		return nil, err
	}

	var names []string
	rollback := func() {
		for _, n := range names {
			_ = l.registry.Unregister(n)
		}
	}

	for _, fn := range fns {
		t, err := l.registry.RegisterFunc(fn, namespace)
		if err != nil {
			rollback()
			return nil, err
		}
		names = append(names, t.Name)
	}

	if rp, ok := app.(application.ResourceProvider); ok {
		for _, res := range rp.ListResources() {
			if err := l.registry.AddResource(res); err != nil {
				logger.Warnf("Skipping resource %s of %s: %v", res.URI, app.Slug(), err)
			}
		}
	}
	if pp, ok := app.(application.PromptProvider); ok {
		for _, p := range pp.ListPrompts() {
			np := *p
			np.Name = tools.Namespaced(namespace, p.Name)
			if err := l.registry.AddPrompt(&np); err != nil {
				logger.Warnf("Skipping prompt %s of %s: %v", np.Name, app.Slug(), err)
			}
		}
	}
	return names, nil
}

// toolFilter builds the tool filter of an application, or nil when it
// configures none.
func toolFilter(appCfg config.AppConfig) (*tools.Filter, error) {
	if len(appCfg.Tools) == 0 && len(appCfg.ToolsOverride) == 0 {
		return nil, nil
	}
	opts := []tools.FilterOption{tools.WithToolsFilter(appCfg.Tools...)}
	for actual, o := range appCfg.ToolsOverride {
		opts = append(opts, tools.WithToolsOverride(actual, o.Name, o.Description))
	}
	return tools.NewFilter(opts...)
}

func storeConfig(sc config.StoreConfig, appName string) store.Config {
	return store.Config{
		Type:    store.Type(sc.Type),
		Path:    sc.Path,
		Name:    sc.Name,
		URL:     sc.URL,
		Prefix:  sc.Prefix,
		AppName: appName,
	}
}

func integrationConfig(ic config.IntegrationConfig) integration.Config {
	return integration.Config{
		Name:         ic.Name,
		Type:         integration.Kind(ic.Type),
		Headers:      ic.Headers,
		Query:        ic.Query,
		ClientID:     ic.ClientID,
		ClientSecret: ic.ClientSecret,
		AuthURL:      ic.AuthURL,
		TokenURL:     ic.TokenURL,
		Scopes:       ic.Scopes,
		CallbackPort: ic.CallbackPort,
		RedirectURL:  ic.RedirectURL,
		Issuer:       ic.Issuer,
	}
}
