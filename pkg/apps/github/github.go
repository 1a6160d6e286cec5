// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package github exposes a small set of GitHub GraphQL queries.
package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacklok/toolhost/pkg/application"
	"github.com/stacklok/toolhost/pkg/tools"
)

const (
	// Slug is the built-in application name.
	Slug = "github"
	// Module is the explicit implementation identifier.
	Module = "github/App"
	// DefaultEndpoint is the public GraphQL endpoint.
	DefaultEndpoint = "https://api.github.com/graphql"
)

// App is the GitHub application.
type App struct {
	*application.GraphQLApplication
}

// New creates the application.
func New(_ context.Context, cfg application.Config) (application.Application, error) {
	gql, err := application.NewGraphQLApplication(cfg, DefaultEndpoint)
	if err != nil {
		return nil, err
	}
	return &App{GraphQLApplication: gql}, nil
}

// ListTools implements application.Application.
func (a *App) ListTools() []tools.Func {
	return []tools.Func{
		{Name: "list", Doc: listDoc, Fn: a.List},
		{Name: "viewer", Doc: "Return the authenticated user.", Fn: a.Viewer},
	}
}

// ListPrompts implements application.PromptProvider.
func (*App) ListPrompts() []*tools.Prompt {
	return []*tools.Prompt{{
		Name:        "review_repositories",
		Description: "Ask for a review of an owner's recently updated repositories",
		Arguments: []tools.PromptArgument{
			{Name: "owner", Description: "User or organization login", Required: true},
		},
		Render: func(_ context.Context, args map[string]string) ([]tools.PromptMessage, error) {
			return []tools.PromptMessage{{
				Role: "user",
				Text: fmt.Sprintf("Use github__list with owner %q, then summarize which repositories "+
					"changed most recently and what they are for.", args["owner"]),
			}}, nil
		},
	}}
}

const listDoc = `List repositories ordered by most recent update.

:param owner: User or organization login. The authenticated user when empty.
:type owner: str
:param first: Number of repositories to return (default 10)
:type first: int
:param privacy: Restrict to "PUBLIC" or "PRIVATE" repositories.
`

// ListInput are the arguments of the list tool.
type ListInput struct {
	Owner   string `json:"owner,omitempty"`
	First   int    `json:"first,omitempty"`
	Privacy string `json:"privacy,omitempty" enum:"PUBLIC,PRIVATE"`
}

// Repository is one entry returned by the list tool.
type Repository struct {
	Name        string `json:"name"`
	Owner       string `json:"owner"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Stars       int64  `json:"stars"`
	Private     bool   `json:"private"`
	UpdatedAt   string `json:"updated_at"`
}

const repositoryFields = `nodes { name url description stargazerCount isPrivate updatedAt owner { login } }`

// List returns repositories of an owner, or of the authenticated user.
func (a *App) List(ctx context.Context, in ListInput) ([]Repository, error) {
	first := in.First
	if first <= 0 || first > 100 {
		first = 10
	}
	vars := map[string]any{"first": first}
	var args []string
	args = append(args, "first: $first", "orderBy: {field: UPDATED_AT, direction: DESC}")
	params := []string{"$first: Int!"}
	if in.Privacy != "" {
		vars["privacy"] = in.Privacy
		params = append(params, "$privacy: RepositoryPrivacy")
		args = append(args, "privacy: $privacy")
	}

	var query, root string
	if in.Owner != "" {
		vars["owner"] = in.Owner
		params = append(params, "$owner: String!")
		query = fmt.Sprintf("query(%s) { repositoryOwner(login: $owner) { repositories(%s) { %s } } }",
			strings.Join(params, ", "), strings.Join(args, ", "), repositoryFields)
		root = "repositoryOwner.repositories.nodes"
	} else {
		query = fmt.Sprintf("query(%s) { viewer { repositories(%s) { %s } } }",
			strings.Join(params, ", "), strings.Join(args, ", "), repositoryFields)
		root = "viewer.repositories.nodes"
	}

	data, err := a.ExecuteQuery(ctx, query, vars)
	if err != nil {
		return nil, err
	}

	nodes := data.Get(root).Array()
	repos := make([]Repository, 0, len(nodes))
	for _, n := range nodes {
		repos = append(repos, Repository{
			Name:        n.Get("name").String(),
			Owner:       n.Get("owner.login").String(),
			URL:         n.Get("url").String(),
			Description: n.Get("description").String(),
			Stars:       n.Get("stargazerCount").Int(),
			Private:     n.Get("isPrivate").Bool(),
			UpdatedAt:   n.Get("updatedAt").String(),
		})
	}
	return repos, nil
}

// User is the authenticated GitHub user.
type User struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	URL   string `json:"url"`
}

// Viewer returns the authenticated user.
func (a *App) Viewer(ctx context.Context) (*User, error) {
	data, err := a.ExecuteQuery(ctx, "query { viewer { login name url } }", nil)
	if err != nil {
		return nil, err
	}
	v := data.Get("viewer")
	return &User{
		Login: v.Get("login").String(),
		Name:  v.Get("name").String(),
		URL:   v.Get("url").String(),
	}, nil
}
