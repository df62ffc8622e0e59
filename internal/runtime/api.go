package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/loqalabs/loqa-podcast/internal/backend"
	"github.com/loqalabs/loqa-podcast/internal/credential"
	"github.com/loqalabs/loqa-podcast/internal/i18n"
	"github.com/loqalabs/loqa-podcast/internal/job"
	"github.com/loqalabs/loqa-podcast/internal/preferences"
	"github.com/loqalabs/loqa-podcast/internal/reference"
	"github.com/loqalabs/loqa-podcast/internal/session"
)

const maxBody = 1 << 20

type api struct {
	// ctx ends open event streams on shutdown.
	ctx   context.Context
	stack *Stack
	log   *slog.Logger
}

func newAPI(ctx context.Context, stack *Stack, log *slog.Logger) *api {
	return &api{ctx: ctx, stack: stack, log: log.With(slog.String("component", "http-api"))}
}

// routes registers the control API. The simulated service is mounted at
// /generate and /audio/ when it is enabled.
func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/references", a.listReferences)
	mux.HandleFunc("POST /v1/references", a.addReferences)
	mux.HandleFunc("DELETE /v1/references", a.removeReferences)
	mux.HandleFunc("GET /v1/preferences", a.getPreferences)
	mux.HandleFunc("PUT /v1/preferences", a.putPreferences)
	mux.HandleFunc("POST /v1/catalog/{category}", a.addOption)
	mux.HandleFunc("GET /v1/credentials", a.listCredentials)
	mux.HandleFunc("PUT /v1/credentials/{provider}", a.putCredential)
	mux.HandleFunc("POST /v1/sessions", a.submit)
	mux.HandleFunc("POST /v1/news", a.submitNews)
	mux.HandleFunc("GET /v1/session", a.currentSession)
	mux.HandleFunc("DELETE /v1/session", a.cancelSession)
	mux.HandleFunc("GET /v1/session/events", a.sessionEvents)
	mux.HandleFunc("GET /v1/history", a.listHistory)
	mux.HandleFunc("GET /v1/history/{id}", a.sessionHistory)
	mux.HandleFunc("DELETE /v1/draft", a.clearDraft)

	if a.stack.Config.Backend.Enabled {
		mux.Handle("/generate", backend.Handler(a.stack.Simulator, a.log))
		mux.Handle(a.stack.Config.Backend.AudioPrefix+"/", backend.AudioHandler(40))
	}
}

type referencesResponse struct {
	Content []reference.Reference `json:"content"`
	Image   []reference.Reference `json:"image"`
}

func (a *api) listReferences(w http.ResponseWriter, _ *http.Request) {
	content, image := a.stack.Client.References()
	writeJSON(w, http.StatusOK, referencesResponse{Content: nonNil(content), Image: nonNil(image)})
}

func (a *api) addReferences(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	res := a.stack.Client.Ingest(r.Context(), body.Text)
	writeJSON(w, http.StatusOK, res)
}

func (a *api) removeReferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	url := q.Get("url")
	if url == "" {
		a.stack.Client.ResetReferences(r.Context())
		w.WriteHeader(http.StatusNoContent)
		return
	}
	kind := reference.Content
	if k := q.Get("kind"); k != "" {
		parsed, ok := reference.ParseKind(k)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown kind "+strconv.Quote(k))
			return
		}
		kind = parsed
	}
	if !a.stack.Client.RemoveReference(r.Context(), kind, url) {
		writeError(w, http.StatusNotFound, "reference not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type preferencesResponse struct {
	Preferences preferences.Preferences `json:"preferences"`
	Catalog     preferences.Catalog     `json:"catalog"`
	Engines     []preferences.Engine    `json:"engines"`
}

func (a *api) getPreferences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, preferencesResponse{
		Preferences: a.stack.Client.Preferences(),
		Catalog:     a.stack.Client.Catalog(),
		Engines:     preferences.Engines(),
	})
}

func (a *api) putPreferences(w http.ResponseWriter, r *http.Request) {
	p := a.stack.Client.Preferences()
	if !decodeBody(w, r, &p) {
		return
	}
	if err := a.stack.Client.SetPreferences(r.Context(), p); err != nil {
		a.writeSubmitError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, a.stack.Client.Preferences())
}

func (a *api) addOption(w http.ResponseWriter, r *http.Request) {
	cat, err := preferences.ParseCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var body struct {
		Value string `json:"value"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	added, err := a.stack.Client.AddOption(r.Context(), cat, body.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added, "options": a.stack.Client.Catalog().Options(cat)})
}

func (a *api) listCredentials(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers":  credential.Providers(),
		"configured": nonNil(a.stack.Client.ConfiguredProviders()),
	})
}

func (a *api) putCredential(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := a.stack.Client.SetCredential(r.PathValue("provider"), body.Secret); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) submit(w http.ResponseWriter, _ *http.Request) {
	id, err := a.stack.Client.Submit()
	if err != nil {
		a.writeSubmitError(w, err, id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

func (a *api) submitNews(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topics string `json:"topics"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	id, err := a.stack.Client.SubmitNews(body.Topics)
	if err != nil {
		a.writeSubmitError(w, err, id)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

func (a *api) currentSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.stack.Client.Session())
}

// sessionEvents streams snapshots as server-sent events, starting with the
// current one.
func (a *api) sessionEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	snaps, stop := a.stack.Client.Watch(16)
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				a.log.Error("encode snapshot failed", slogError(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (a *api) cancelSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": a.stack.Client.Cancel()})
}

func (a *api) listHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := a.stack.History.ListSessions(r.Context(), limit)
	if err != nil {
		a.log.Error("list history failed", slogError(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": nonNil(sessions)})
}

func (a *api) sessionHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := a.stack.History.ListSessionEvents(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		a.log.Error("list session events failed", slogError(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": nonNil(events)})
}

func (a *api) clearDraft(w http.ResponseWriter, r *http.Request) {
	if err := a.stack.Client.Clear(r.Context()); err != nil {
		a.log.Error("clear draft failed", slogError(err))
		writeError(w, http.StatusInternalServerError, "could not clear draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSubmitError maps the job and session error taxonomy onto status codes.
func (a *api) writeSubmitError(w http.ResponseWriter, err error, sessionID string) {
	var (
		verr *job.ValidationError
		merr *job.MissingCredentialError
		terr *session.TransportError
	)
	loc := a.stack.Localizer
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error: loc.Text(i18n.MsgInvalidInput, map[string]any{"Field": verr.Field, "Reason": verr.Reason}),
			Field: verr.Field,
		})
	case errors.As(err, &merr):
		writeJSON(w, http.StatusPreconditionFailed, errorBody{
			Error:    loc.Text(i18n.MsgMissingCredential, map[string]any{"Provider": merr.Provider}),
			Provider: merr.Provider,
		})
	case errors.As(err, &terr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: terr.Error(), SessionID: sessionID})
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.Error("submit failed", slogError(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type errorBody struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
