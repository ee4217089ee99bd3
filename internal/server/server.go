package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alfredjeanlab/nari/internal/dispatch"
	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/registry"
	"github.com/alfredjeanlab/nari/internal/store"
)

// Dispatcher is the part of *dispatch.Dispatcher the transports need.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv *model.Invocation) *model.Response
	Handlers() []*dispatch.Handler
	Usage(h *dispatch.Handler) string
}

// NariServer serves the command pipeline and the ledger over HTTP and gRPC.
type NariServer struct {
	disp     Dispatcher
	registry *registry.Registry
	store    store.Store
	sseHub   *EventHub
	logger   *slog.Logger
}

// Options configures a NariServer. Dispatcher, Registry and Store are
// required.
type Options struct {
	Dispatcher Dispatcher
	Registry   *registry.Registry
	Store      store.Store

	// Hub feeds GET /v1/events/stream. Publish ledger events to it (usually
	// via events.Fanout next to NATS). A nil Hub gets a private one.
	Hub    *EventHub
	Logger *slog.Logger
}

// NewNariServer returns a server bound to the given pipeline and ledger.
func NewNariServer(opts Options) (*NariServer, error) {
	if opts.Dispatcher == nil || opts.Registry == nil || opts.Store == nil {
		return nil, errors.New("server: dispatcher, registry and store are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Hub == nil {
		opts.Hub = NewEventHub(opts.Logger)
	}
	return &NariServer{
		disp:     opts.Dispatcher,
		registry: opts.Registry,
		store:    opts.Store,
		sseHub:   opts.Hub,
		logger:   opts.Logger,
	}, nil
}

// commandInfo is the wire form of a registered command.
type commandInfo struct {
	Name        string   `json:"name"`
	Aliases     []string `json:"aliases,omitempty"`
	Usage       string   `json:"usage"`
	Summary     string   `json:"summary,omitempty"`
	Requirement string   `json:"requirement"`
}

func (s *NariServer) commands() []commandInfo {
	handlers := s.disp.Handlers()
	out := make([]commandInfo, 0, len(handlers))
	for _, h := range handlers {
		out = append(out, commandInfo{
			Name:        h.Name,
			Aliases:     h.Aliases,
			Usage:       s.disp.Usage(h),
			Summary:     h.Summary,
			Requirement: h.Requirement.String(),
		})
	}
	return out
}
