// Package client provides transport-agnostic access to a nari server: an
// HTTP/JSON implementation of the full API and a gRPC implementation of the
// command service.
package client

import (
	"context"

	"github.com/alfredjeanlab/nari/internal/model"
)

// Client runs commands against a nari server. It is implemented by
// HTTPClient and GRPCClient.
type Client interface {
	Dispatch(ctx context.Context, inv *model.Invocation) (*model.Response, error)
	Health(ctx context.Context) (string, error)
	Close() error
}

// LedgerClient adds the read-only ledger endpoints served over HTTP.
type LedgerClient interface {
	Client

	ListCommands(ctx context.Context) ([]CommandInfo, error)
	ListBadges(ctx context.Context) (*ListBadgesResponse, error)
	GetBadge(ctx context.Context, memberID string) (*model.BadgeRecord, error)
	GetMemberEvents(ctx context.Context, memberID string) ([]*model.Event, error)
	ListEvents(ctx context.Context, limit int) ([]*model.Event, error)
}

// CommandInfo describes one registered command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Usage       string   `json:"usage"`
	Summary     string   `json:"summary,omitempty"`
	Requirement string   `json:"requirement"`
}

// ListBadgesResponse is the response from ListBadges.
type ListBadgesResponse struct {
	Badges []*model.BadgeRecord `json:"badges"`
	Total  int                  `json:"total"`
}
