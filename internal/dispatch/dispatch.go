// Package dispatch runs inbound command invocations through a fixed
// pipeline: resolve the handler, parse its arguments, authorize the
// principal, execute the body, and normalize the outcome into a
// model.Response. Every invocation is independent; a failure or panic in
// one never affects another.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/nari/internal/authz"
	"github.com/alfredjeanlab/nari/internal/idgen"
	"github.com/alfredjeanlab/nari/internal/metrics"
	"github.com/alfredjeanlab/nari/internal/model"
)

// UnknownPolicy selects what happens when no handler matches.
type UnknownPolicy string

const (
	// PolicySilent marks the response silent so transports drop it.
	PolicySilent UnknownPolicy = "silent"
	// PolicyReply tells the caller the command does not exist.
	PolicyReply UnknownPolicy = "reply"
)

// ParseUnknownPolicy validates a configured policy name.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch p := UnknownPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicySilent, PolicyReply:
		return p, nil
	case "":
		return PolicySilent, nil
	default:
		return "", fmt.Errorf("unknown command policy %q: want silent or reply", s)
	}
}

// Reply texts for outcomes the dispatcher produces itself.
const (
	TextMissingRole       = "🚫 You don't have permission to use this command."
	TextMissingPermission = "🚫 You lack the required permissions."
	TextInternalError     = "⚠️ Something went wrong. Please try again later."
)

// Request is what a handler body receives.
type Request struct {
	Invocation *model.Invocation
	Principal  model.Principal
	Args       Args
}

// HandlerFunc is a command body. Returning an error lets the dispatcher
// pick the response kind; returning a response gives the handler full
// control over the reply.
type HandlerFunc func(ctx context.Context, req *Request) (*model.Response, error)

// Handler describes one command.
type Handler struct {
	Name        string
	Aliases     []string
	Summary     string
	Requirement authz.Requirement
	Args        []ArgSpec
	Run         HandlerFunc
}

// Options configures a Dispatcher. Resolver is required.
type Options struct {
	Resolver      Resolver
	UnknownPolicy UnknownPolicy
	// CommandPrefix is shown in usage hints (";visa done @member").
	CommandPrefix string
	Logger        *slog.Logger
}

// Dispatcher holds the command table.
type Dispatcher struct {
	mu       sync.RWMutex
	byName   map[string]*Handler
	handlers []*Handler

	resolver Resolver
	policy   UnknownPolicy
	prefix   string
	logger   *slog.Logger
}

func New(opts Options) (*Dispatcher, error) {
	if opts.Resolver == nil {
		return nil, errors.New("dispatch: resolver is required")
	}
	d := &Dispatcher{
		byName:   make(map[string]*Handler),
		resolver: opts.Resolver,
		policy:   opts.UnknownPolicy,
		prefix:   opts.CommandPrefix,
		logger:   opts.Logger,
	}
	if d.policy == "" {
		d.policy = PolicySilent
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d, nil
}

// Register adds h under its name and aliases.
func (d *Dispatcher) Register(h *Handler) error {
	if h.Name == "" || h.Run == nil {
		return errors.New("dispatch: handler needs a name and a body")
	}
	for i, spec := range h.Args {
		if spec.Kind == ArgRest && i != len(h.Args)-1 {
			return fmt.Errorf("dispatch: %s: rest argument %q must be last", h.Name, spec.Name)
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	keys := append([]string{h.Name}, h.Aliases...)
	for _, k := range keys {
		if _, dup := d.byName[normalize(k)]; dup {
			return fmt.Errorf("dispatch: command name %q already registered", k)
		}
	}
	for _, k := range keys {
		d.byName[normalize(k)] = h
	}
	d.handlers = append(d.handlers, h)
	return nil
}

// Lookup resolves a command name or alias.
func (d *Dispatcher) Lookup(name string) (*Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byName[normalize(name)]
	return h, ok
}

// Handlers returns the registered handlers in registration order.
func (d *Dispatcher) Handlers() []*Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.handlers)
}

// Usage renders the usage line for h.
func (d *Dispatcher) Usage(h *Handler) string {
	parts := []string{d.prefix + h.Name}
	for _, a := range h.Args {
		parts = append(parts, a.usage())
	}
	return strings.Join(parts, " ")
}

// Dispatch runs inv through the pipeline. It never returns nil.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *model.Invocation) *model.Response {
	start := time.Now()
	if id, err := idgen.Ensure(inv.ID); err == nil {
		inv.ID = id
	}

	h, ok := d.Lookup(inv.Command)
	if !ok {
		resp := d.unknown(inv)
		metrics.CommandsTotal.WithLabelValues("unknown", string(resp.Kind)).Inc()
		return resp
	}

	resp := d.run(ctx, h, inv)
	resp.InvocationID = inv.ID
	resp.Command = h.Name

	metrics.CommandsTotal.WithLabelValues(h.Name, string(resp.Kind)).Inc()
	metrics.CommandDuration.WithLabelValues(h.Name).Observe(time.Since(start).Seconds())
	d.logger.Debug("command dispatched",
		"command", h.Name, "invocation_id", inv.ID, "principal", inv.Principal.ID,
		"kind", resp.Kind, "duration", time.Since(start))
	return resp
}

func (d *Dispatcher) unknown(inv *model.Invocation) *model.Response {
	resp := &model.Response{
		InvocationID: inv.ID,
		Command:      inv.Command,
		Kind:         model.KindUnknownCommand,
		Text:         fmt.Sprintf("❓ Unknown command %q. Try %scmdlist.", inv.Command, d.prefix),
		Silent:       d.policy == PolicySilent,
	}
	return resp
}

func (d *Dispatcher) run(ctx context.Context, h *Handler, inv *model.Invocation) *model.Response {
	args, err := parseArgs(h.Args, inv.Args, inv, d.resolver)
	if err != nil {
		return argumentResponse(&ArgumentError{Command: h.Name, Usage: d.Usage(h), Msg: err.Error()})
	}

	if dec := authz.Authorize(inv.Principal, h.Requirement); !dec.Allowed {
		d.logger.Info("command denied",
			"command", h.Name, "principal", inv.Principal.ID, "reason", dec.Reason, "missing", dec.Missing)
		text := TextMissingRole
		if dec.Reason == authz.ReasonMissingPermission {
			text = TextMissingPermission
		}
		return &model.Response{
			Kind: model.KindDenied,
			Text: text,
			Data: map[string]any{"reason": string(dec.Reason), "missing": dec.Missing},
		}
	}

	resp, err := d.execute(ctx, h, &Request{Invocation: inv, Principal: inv.Principal, Args: args})
	if err != nil {
		return d.errorResponse(h, inv, err)
	}
	if resp == nil {
		resp = &model.Response{Kind: model.KindSuccess}
	}
	if resp.Kind == "" {
		resp.Kind = model.KindSuccess
	}
	return resp
}

func (d *Dispatcher) execute(ctx context.Context, h *Handler, req *Request) (resp *model.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("panic in %s: %v", h.Name, r)
		}
	}()
	return h.Run(ctx, req)
}

func (d *Dispatcher) errorResponse(h *Handler, inv *model.Invocation, err error) *model.Response {
	kind := KindOf(err)
	switch kind {
	case model.KindArgumentError:
		var argErr *ArgumentError
		errors.As(err, &argErr)
		if argErr.Usage == "" {
			argErr.Usage = d.Usage(h)
		}
		return argumentResponse(argErr)
	case model.KindInternalError:
		d.logger.Error("command failed",
			"command", h.Name, "invocation_id", inv.ID, "principal", inv.Principal.ID, "err", err)
		return &model.Response{Kind: kind, Text: TextInternalError}
	default:
		return &model.Response{Kind: kind, Text: "❌ " + err.Error()}
	}
}

func argumentResponse(e *ArgumentError) *model.Response {
	return &model.Response{
		Kind: model.KindArgumentError,
		Text: fmt.Sprintf("❌ %s. Use: %s", capitalize(e.Msg), e.Usage),
		Data: map[string]any{"usage": e.Usage},
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
