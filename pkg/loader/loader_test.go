// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package loader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolhost/pkg/application"
	"github.com/stacklok/toolhost/pkg/config"
	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/integration"
	"github.com/stacklok/toolhost/pkg/store"
	"github.com/stacklok/toolhost/pkg/tools"
)

type fakeApp struct {
	application.Base
	origin string
	names  []string
}

func (f *fakeApp) ListTools() []tools.Func {
	fns := make([]tools.Func, 0, len(f.names))
	for _, n := range f.names {
		origin := f.origin
		fns = append(fns, tools.Func{
			Name: n,
			Fn:   func(context.Context) (string, error) { return origin, nil },
		})
	}
	return fns
}

func (f *fakeApp) ListPrompts() []*tools.Prompt {
	return []*tools.Prompt{{
		Name: "hello",
		Render: func(context.Context, map[string]string) ([]tools.PromptMessage, error) {
			return []tools.PromptMessage{{Role: "user", Text: "hi"}}, nil
		},
	}}
}

func fakeFactory(origin string, names ...string) application.Factory {
	return func(_ context.Context, cfg application.Config) (application.Application, error) {
		return &fakeApp{Base: application.NewBase(cfg), origin: origin, names: names}, nil
	}
}

func memoryStores() (StoreFactory, *[]store.Config) {
	var mu sync.Mutex
	var seen []store.Config
	return func(_ context.Context, cfg store.Config) (store.Store, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, cfg)
		return store.NewMemoryStore(), nil
	}, &seen
}

func defaultConfig(apps ...config.AppConfig) *config.Config {
	cfg := &config.Config{Name: "test", Apps: apps}
	_ = cfg.ApplyDefaults()
	return cfg
}

func TestLoad_NamespacesAvoidCollisions(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	stores, _ := memoryStores()
	l := New(reg,
		WithoutBuiltins(),
		WithStoreFactory(stores),
		WithBuiltin("github", fakeFactory("github", "list")),
		WithResolver(func(_ context.Context, app config.AppConfig) (application.Factory, bool, error) {
			if app.Name == "jira" {
				return fakeFactory("jira", "list"), true, nil
			}
			return nil, false, nil
		}),
	)

	res, err := l.Load(context.Background(), defaultConfig(
		config.AppConfig{Name: "github"},
		config.AppConfig{Name: "jira"},
	))
	require.NoError(t, err)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Applications, 2)
	assert.Equal(t, []string{"github__list"}, res.Applications[0].Tools)
	assert.Equal(t, []string{"jira__list"}, res.Applications[1].Tools)
	assert.Equal(t, []string{"github__list", "jira__list"}, reg.Names())

	dup, err := tools.NewTool("github__list", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	err = reg.Register(dup)
	assert.True(t, hosterr.IsToolNameConflict(err))

	out, err := reg.Call(context.Background(), "jira__list", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "jira", out.Value)

	prompts := reg.Prompts()
	require.Len(t, prompts, 2)
	assert.Equal(t, "github__hello", prompts[0].Name)
}

func TestLoad_ResolutionOrder(t *testing.T) {
	t.Parallel()

	resolver := func(_ context.Context, _ config.AppConfig) (application.Factory, bool, error) {
		return fakeFactory("resolver", "run"), true, nil
	}

	tests := []struct {
		name string
		app  config.AppConfig
		want string
	}{
		{name: "explicit module wins", app: config.AppConfig{Name: "svc", Module: "custom/App"}, want: "module"},
		{name: "builtin before resolver", app: config.AppConfig{Name: "svc"}, want: "builtin"},
		{name: "resolver last", app: config.AppConfig{Name: "other"}, want: "resolver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := tools.NewRegistry()
			stores, _ := memoryStores()
			l := New(reg,
				WithoutBuiltins(),
				WithStoreFactory(stores),
				WithModule("custom/App", fakeFactory("module", "run")),
				WithBuiltin("svc", fakeFactory("builtin", "run")),
				WithResolver(func(context.Context, config.AppConfig) (application.Factory, bool, error) {
					return nil, false, nil
				}),
				WithResolver(resolver),
			)

			res, err := l.Load(context.Background(), defaultConfig(tt.app))
			require.NoError(t, err)
			require.Len(t, res.Applications, 1)

			out, err := reg.Call(context.Background(), tt.app.Name+"__run", map[string]any{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Value)
		})
	}
}

func TestLoad_FailOpenPerApplication(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	stores, _ := memoryStores()
	l := New(reg,
		WithoutBuiltins(),
		WithStoreFactory(stores),
		WithBuiltin("good", fakeFactory("good", "ping")),
		WithBuiltin("badinteg", fakeFactory("badinteg", "ping")),
		WithBuiltin("broken", func(context.Context, application.Config) (application.Application, error) {
			return nil, errors.New("boom")
		}),
		WithResolver(func(context.Context, config.AppConfig) (application.Factory, bool, error) {
			return nil, false, errors.New("resolver unavailable")
		}),
	)

	res, err := l.Load(context.Background(), defaultConfig(
		config.AppConfig{Name: "broken"},
		config.AppConfig{Name: "missing"},
		config.AppConfig{Name: "good"},
		config.AppConfig{Name: "unknown-module", Module: "nope/App"},
		config.AppConfig{Name: "badinteg", Integration: &config.IntegrationConfig{Name: "k", Type: "saml"}},
	))
	require.NoError(t, err)
	require.Len(t, res.Applications, 1)
	assert.Equal(t, "good", res.Applications[0].Config.Name)
	require.Len(t, res.Failures, 4)
	for _, f := range res.Failures {
		assert.Equal(t, hosterr.KindApplicationLoad, hosterr.KindOf(f))
	}
	assert.Contains(t, res.Failures[0].Error(), "boom")
	assert.Contains(t, res.Failures[1].Error(), "resolver unavailable")
	assert.Contains(t, res.Failures[2].Error(), "unknown module")
	assert.Contains(t, res.Failures[3].Error(), "unknown integration type")
	assert.Equal(t, []string{"good__ping"}, reg.Names())
}

func TestLoad_RollsBackPartialRegistration(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	existing, err := tools.NewTool("app__second", "", nil, func(context.Context, map[string]any) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(existing))

	stores, _ := memoryStores()
	l := New(reg, WithoutBuiltins(), WithStoreFactory(stores),
		WithBuiltin("app", fakeFactory("app", "first", "second", "third")))

	res, err := l.Load(context.Background(), defaultConfig(config.AppConfig{Name: "app"}))
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.True(t, hosterr.IsToolNameConflict(res.Failures[0]))
	assert.Equal(t, []string{"app__second"}, reg.Names())
}

func TestLoad_ToolFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		appCfg    config.AppConfig
		wantNames []string
		wantFail  bool
	}{
		{
			name: "filter and rename",
			appCfg: config.AppConfig{
				Name:  "app",
				Tools: []string{"first", "third"},
				ToolsOverride: map[string]config.ToolOverride{
					"third": {Name: "last", Description: "renamed"},
				},
			},
			wantNames: []string{"app__first", "app__last"},
		},
		{
			name:     "unknown tool name",
			appCfg:   config.AppConfig{Name: "app", Tools: []string{"fourth"}},
			wantFail: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reg := tools.NewRegistry()
			stores, _ := memoryStores()
			l := New(reg, WithoutBuiltins(), WithStoreFactory(stores),
				WithBuiltin("app", fakeFactory("app", "first", "second", "third")))

			res, err := l.Load(context.Background(), defaultConfig(tt.appCfg))
			require.NoError(t, err)
			if tt.wantFail {
				require.Len(t, res.Failures, 1)
				assert.True(t, hosterr.HasKind(res.Failures[0], hosterr.KindApplicationLoad))
				assert.Empty(t, reg.Names())
				return
			}
			require.Empty(t, res.Failures)
			assert.ElementsMatch(t, tt.wantNames, reg.Names())
			require.Len(t, res.Applications, 1)
			assert.ElementsMatch(t, tt.wantNames, res.Applications[0].Tools)

			tool, err := reg.Get("app__last")
			require.NoError(t, err)
			assert.Equal(t, "renamed", tool.Description)
		})
	}
}

func TestLoad_DefaultStoreFailureIsFatal(t *testing.T) {
	t.Parallel()

	l := New(tools.NewRegistry(), WithStoreFactory(func(context.Context, store.Config) (store.Store, error) {
		return nil, hosterr.NewStoreUnavailableError("redis", errors.New("connection refused"))
	}))
	_, err := l.Load(context.Background(), defaultConfig())
	require.Error(t, err)
	assert.True(t, hosterr.IsConfiguration(err))
}

func TestLoad_IntegrationsAndStores(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	stores, seen := memoryStores()

	var got []integration.Integration
	var mu sync.Mutex
	capture := func(_ context.Context, cfg application.Config) (application.Application, error) {
		mu.Lock()
		got = append(got, cfg.Integration)
		mu.Unlock()
		return &fakeApp{Base: application.NewBase(cfg), names: []string{"t"}}, nil
	}

	l := New(reg, WithoutBuiltins(), WithStoreFactory(stores), WithBuiltin("a", capture), WithBuiltin("b", capture))
	cfg := defaultConfig(
		config.AppConfig{Name: "a", Integration: &config.IntegrationConfig{Name: "A_KEY", Type: "api_key"}},
		config.AppConfig{
			Name:        "b",
			Namespace:   "bee",
			Integration: &config.IntegrationConfig{Name: "B_KEY", Type: "basic_auth"},
			Store:       &config.StoreConfig{Type: "disk", Path: "/tmp/b"},
		},
	)
	res, err := l.Load(context.Background(), cfg)
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	assert.Equal(t, []string{"a__t", "bee__t"}, reg.Names())

	require.Len(t, got, 2)
	kinds := map[integration.Kind]string{}
	for _, integ := range got {
		require.NotNil(t, integ)
		kinds[integ.Kind()] = integ.Name()
	}
	assert.Equal(t, map[integration.Kind]string{integration.KindAPIKey: "A_KEY", integration.KindBasicAuth: "B_KEY"}, kinds)

	require.Len(t, *seen, 2)
	assert.Equal(t, store.MemoryType, (*seen)[0].Type)
	assert.Equal(t, store.DiskType, (*seen)[1].Type)
	assert.Equal(t, "/tmp/b", (*seen)[1].Path)
	assert.Equal(t, "test", (*seen)[1].AppName)
}

func TestLoad_Builtins(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	stores, _ := memoryStores()
	l := New(reg, WithStoreFactory(stores))

	res, err := l.Load(context.Background(), defaultConfig(
		config.AppConfig{Name: "zenquotes"},
		config.AppConfig{Name: "search", Module: "tavily/App",
			Integration: &config.IntegrationConfig{Name: "TAVILY_API_KEY", Type: "api_key"}},
	))
	require.NoError(t, err)
	require.Empty(t, res.Failures)
	assert.Equal(t, []string{"zenquotes__get_quote", "search__search", "search__extract"}, reg.Names())
	assert.Len(t, reg.Resources(), 1)
}

func TestBuildIntegration(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig(
		config.AppConfig{
			Name:        "tavily",
			Integration: &config.IntegrationConfig{Name: "TAVILY_API_KEY", Type: "api_key"},
		},
		config.AppConfig{Name: "zenquotes"},
	)

	tests := []struct {
		name     string
		app      string
		wantKind integration.Kind
		wantErr  bool
	}{
		{name: "api key", app: "tavily", wantKind: integration.KindAPIKey},
		{name: "no integration", app: "zenquotes", wantErr: true},
		{name: "not configured", app: "github", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stores, _ := memoryStores()
			l := New(tools.NewRegistry(), WithoutBuiltins(), WithStoreFactory(stores))
			integ, st, err := l.BuildIntegration(context.Background(), cfg, tt.app)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, hosterr.IsConfiguration(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, integ.Kind())

			require.NoError(t, integ.SetCredentials(context.Background(), []byte("tvly-secret")))
			got, err := st.Get(context.Background(), "TAVILY_API_KEY")
			require.NoError(t, err)
			assert.Equal(t, []byte("tvly-secret"), got)
		})
	}
}
