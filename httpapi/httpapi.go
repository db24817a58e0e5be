// Package httpapi exposes the channel router and the texture registry over
// HTTP with chi.
//
//	POST /channels/*         request envelope in, response envelope out
//	GET  /textures/{id}      current frame as PNG
//	GET  /textures/{id}/info {"id","width","height","frames"}
//	GET  /health             {"status":"ok"}
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/webtex/channel"
	"github.com/hazyhaar/webtex/idgen"
	"github.com/hazyhaar/webtex/kit"
	"github.com/hazyhaar/webtex/pixbuf"
	"github.com/hazyhaar/webtex/texture"
)

// maxBody caps a channel call payload.
const maxBody = 1 << 20

// FrameSource serves texture frames.
type FrameSource interface {
	Frame(id int64) (pixbuf.Frame, bool)
	Info(id int64) (texture.Info, bool)
}

// Server holds the HTTP handlers.
type Server struct {
	caller   kit.ChannelCaller
	textures FrameSource
	newID    idgen.Generator
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRequestIDGenerator overrides idgen.Request for inbound calls.
func WithRequestIDGenerator(gen idgen.Generator) Option {
	return func(s *Server) { s.newID = gen }
}

// New creates a Server.
func New(caller kit.ChannelCaller, textures FrameSource, opts ...Option) *Server {
	s := &Server{
		caller:   caller,
		textures: textures,
		newID:    idgen.Request,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RegisterHTTP mounts the routes on r. Callers that do not use Handler
// should install DefaultStack first; without it calls still work but carry
// no request id.
func (s *Server) RegisterHTTP(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Post("/channels/*", s.handleCall)
	r.Get("/textures/{id}", s.handleFrame)
	r.Get("/textures/{id}/info", s.handleInfo)
}

// Handler returns a standalone router with DefaultStack and every route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range DefaultStack(s.logger, s.newID) {
		r.Use(mw)
	}
	s.RegisterHTTP(r)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		http.Error(w, "channel name required", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > maxBody {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	ctx := r.Context()
	reqID := kit.GetRequestID(ctx)
	out, err := s.caller.Call(ctx, name, body)
	if err != nil {
		var nf *channel.ErrChannelNotFound
		if errors.As(err, &nf) {
			http.Error(w, nf.Error(), http.StatusNotFound)
			return
		}
		s.logger.Warn("httpapi: call failed", "channel", name, "request_id", reqID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id, ok := textureID(w, r)
	if !ok {
		return
	}
	frame, found := s.textures.Frame(id)
	if !found {
		http.Error(w, "texture not found", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := texture.EncodePNG(&buf, frame); err != nil {
		s.logger.Warn("httpapi: encode frame", "texture_id", id, "error", err)
		http.Error(w, "encode frame", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := textureID(w, r)
	if !ok {
		return
	}
	info, found := s.textures.Info(id)
	if !found {
		http.Error(w, "texture not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func textureID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		http.Error(w, "invalid texture id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
