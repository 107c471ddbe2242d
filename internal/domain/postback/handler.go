package postback

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pointly/pointly-api/internal/pkg/logger"
	"github.com/pointly/pointly-api/internal/pkg/response"
)

// Handler exposes provider callbacks over HTTP. Every request is answered
// with 200 and the provider's ack body, whatever the engine decided.
type Handler struct {
	engine     *Engine
	providers  []*Provider
	byName     map[string]*Provider
	backendURL string
}

func NewHandler(engine *Engine, providers []*Provider, backendURL string) *Handler {
	byName := make(map[string]*Provider, len(providers))
	for _, p := range providers {
		byName[p.Name] = p
		for _, alias := range p.Aliases {
			byName[alias] = p
		}
	}
	return &Handler{
		engine:     engine,
		providers:  providers,
		byName:     byName,
		backendURL: strings.TrimRight(backendURL, "/"),
	}
}

// Callback dispatches /{provider} to the matching provider configuration.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(chi.URLParam(r, "provider"))
	p, ok := h.byName[name]
	if !ok {
		logger.FromContext(r.Context()).Warn().
			Str("provider", name).
			Str("path", r.URL.Path).
			Msg("postback for unknown provider")
		postbackRequests.WithLabelValues("unknown", "unknown_provider").Inc()
		response.Text(w, http.StatusOK, "OK")
		return
	}
	h.serve(w, r, p)
}

// For returns a handler bound to a single provider, used for legacy paths.
func (h *Handler) For(p *Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, p)
	}
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, p *Provider) {
	// A provider hanging up must not abort a commit halfway.
	ctx := context.WithoutCancel(r.Context())

	params, err := ParseParams(r)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("provider", p.Name).Msg("postback body unreadable, using query only")
	}

	res := h.engine.Process(ctx, p, Inbound{
		Params:      params,
		ClientIP:    r.RemoteAddr,
		CallbackURL: h.callbackURL(r, p),
		Method:      r.Method,
	})

	body := p.Ack.Success
	if res.Outcome.Rejected() {
		body = p.Ack.Invalid
	}
	response.Text(w, http.StatusOK, body)
}

// callbackURL rebuilds the URL the provider signed: the public base URL, the
// request path and the raw query with the signature parameter removed.
func (h *Handler) callbackURL(r *http.Request, p *Provider) string {
	if p.Auth != AuthURLHMAC {
		return ""
	}
	u := h.backendURL + r.URL.EscapedPath()
	if q := stripQueryParams(r.URL.RawQuery, p.SignatureFields...); q != "" {
		u += "?" + q
	}
	return u
}

// stripQueryParams drops keys from a raw query while preserving the order and
// encoding of everything else.
func stripQueryParams(rawQuery string, keys ...string) string {
	if rawQuery == "" {
		return ""
	}
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if _, ok := drop[key]; ok {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "&")
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{provider}", h.Callback)
	r.Post("/{provider}", h.Callback)
	return r
}

// RegisterLegacy mounts the historical per-provider paths on r.
func (h *Handler) RegisterLegacy(r chi.Router) {
	for _, p := range h.providers {
		for _, path := range p.LegacyPaths {
			r.Get(path, h.For(p))
			r.Post(path, h.For(p))
		}
	}
}
