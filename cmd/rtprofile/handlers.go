package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/goccy/go-json"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"gocloud.dev/gcerrors"

	"github.com/getsentry/rtprofile/internal/display"
	"github.com/getsentry/rtprofile/internal/httputil"
	"github.com/getsentry/rtprofile/internal/pprofutil"
	"github.com/getsentry/rtprofile/internal/publish"
	"github.com/getsentry/rtprofile/internal/session"
	"github.com/getsentry/rtprofile/internal/source"
	"github.com/getsentry/rtprofile/internal/speedscope"
	"github.com/getsentry/rtprofile/internal/storageutil"
	"github.com/getsentry/rtprofile/internal/tracer"
)

type postProfileResponse struct {
	ID string `json:"profile_id"`
}

func (e *environment) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (e *environment) postProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.config.MaxEventLogBytes))
	if err != nil {
		hub.CaptureException(err)
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
		} else {
			w.WriteHeader(http.StatusBadRequest)
		}
		return
	}

	s := sentry.StartSpan(ctx, "json.unmarshal")
	s.Description = "Read event log"
	l, err := source.ReadLog(bytes.NewReader(body))
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	startedAt := time.Now()
	if !l.StartedAt.IsZero() {
		startedAt = l.StartedAt.Time()
	}
	s = sentry.StartSpan(ctx, "processing")
	s.Description = "Replay event log"
	result, err := source.Profile(ctx, l, tracer.WithMaxDepth(e.config.MaxDepth))
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	p := session.New(result, startedAt)
	hub.Scope().SetTag("profile_id", p.ID)

	s = sentry.StartSpan(ctx, "gcs.write")
	s.Description = "Write profile to storage"
	err = storageutil.CompressedWrite(ctx, e.profilesBucket, p.StoragePath(), p)
	s.Finish()
	if err != nil {
		hub.CaptureException(err)
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusTooManyRequests)
		} else if code := gcerrors.Code(err); code == gcerrors.FailedPrecondition {
			w.WriteHeader(http.StatusPreconditionFailed)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	if e.functionsWriter != nil {
		s = sentry.StartSpan(ctx, "processing")
		s.Description = "Send functions to Kafka"
		m := publish.NewFunctionsMessage(p, e.config.Environment, e.config.RetentionDays)
		err = publish.Functions(ctx, e.functionsWriter, m)
		s.Finish()
		if err != nil {
			// The profile is stored, metrics are best effort.
			hub.CaptureException(err)
			log.Err(err).Str("profile_id", p.ID).Msg("can't publish functions")
		}
	}

	writeJSON(w, r, http.StatusCreated, postProfileResponse{ID: p.ID})
}

// loadProfile reads the session named by the profile_id route parameter.
// It writes the error status and returns false when it can't.
func (e *environment) loadProfile(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
	ctx := r.Context()
	hub := sentry.GetHubFromContext(ctx)
	ps := httprouter.ParamsFromContext(ctx)
	id := ps.ByName("profile_id")
	hub.Scope().SetTag("profile_id", id)

	s := sentry.StartSpan(ctx, "gcs.read")
	s.Description = "Read profile from storage"
	var p session.Session
	err := storageutil.UnmarshalCompressed(ctx, e.profilesBucket, session.StoragePath(id), &p)
	s.Finish()
	if err != nil {
		if errors.Is(err, storageutil.ErrObjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return p, false
		}
		hub.CaptureException(err)
		if errors.Is(err, context.DeadlineExceeded) {
			w.WriteHeader(http.StatusTooManyRequests)
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return p, false
	}
	return p, true
}

func (e *environment) getCallTree(w http.ResponseWriter, r *http.Request) {
	threadID, filtered, err := httputil.GetOptionalUintQueryParameter(w, r, "thread_id")
	if err != nil {
		return
	}
	p, ok := e.loadProfile(w, r)
	if !ok {
		return
	}
	forest := p.Forest()
	names := p.ThreadNames()
	if !filtered {
		writeJSON(w, r, http.StatusOK, display.TreeView(forest, names))
		return
	}
	if _, exists := forest[threadID]; !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, []display.ThreadDisplayData{
		display.ThreadView(forest, threadID, names[threadID]),
	})
}

func (e *environment) getFunctions(w http.ResponseWriter, r *http.Request) {
	p, ok := e.loadProfile(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, p.Functions)
}

func (e *environment) getSpeedscope(w http.ResponseWriter, r *http.Request) {
	p, ok := e.loadProfile(w, r)
	if !ok {
		return
	}
	o := speedscope.FromForest(p.Forest(), p.ThreadNames(), p.StartNS, p.DurationNS)
	o.ProfileID = p.ID
	writeJSON(w, r, http.StatusOK, o)
}

func (e *environment) getPprof(w http.ResponseWriter, r *http.Request) {
	p, ok := e.loadProfile(w, r)
	if !ok {
		return
	}
	prof := pprofutil.FromForest(p.Forest(), p.ThreadNames(), p.StartedAt, p.DurationNS)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+p.ID+`.pb.gz"`)
	if err := prof.Write(w); err != nil {
		sentry.GetHubFromContext(r.Context()).CaptureException(err)
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	s := sentry.StartSpan(r.Context(), "json.marshal")
	defer s.Finish()
	b, err := json.Marshal(v)
	if err != nil {
		sentry.GetHubFromContext(r.Context()).CaptureException(err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
