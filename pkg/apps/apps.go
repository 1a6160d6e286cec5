// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package apps lists the applications compiled into toolhost.
package apps

import (
	"github.com/stacklok/toolhost/pkg/application"
	"github.com/stacklok/toolhost/pkg/apps/github"
	"github.com/stacklok/toolhost/pkg/apps/tavily"
	"github.com/stacklok/toolhost/pkg/apps/zenquotes"
)

// Builtin is a compiled-in application.
type Builtin struct {
	Slug    string
	Module  string
	Factory application.Factory
}

// Builtins returns the compiled-in applications ordered by slug.
func Builtins() []Builtin {
	return []Builtin{
		{Slug: github.Slug, Module: github.Module, Factory: github.New},
		{Slug: tavily.Slug, Module: tavily.Module, Factory: tavily.New},
		{Slug: zenquotes.Slug, Module: zenquotes.Module, Factory: zenquotes.New},
	}
}
