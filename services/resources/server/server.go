// Package server exposes the resources service over plain JSON HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"itsdu-backend/lib/browser"
	"itsdu-backend/lib/scrapers/itslearning/planner"
	"itsdu-backend/lib/scrapers/itslearning/resource"
	"itsdu-backend/lib/transfer"
)

// Api is the slice of the resources service the handlers call.
type Api interface {
	GetSSOURL(ctx context.Context, target string) (string, error)
	GetResourceFile(ctx context.Context, ref resource.Reference) (resource.ResolvedLink, error)
	GetBlob(ctx context.Context, ref resource.Reference) ([]byte, error)
	GetMediaURL(ctx context.Context, ref resource.Reference) (string, error)
	GetOfficeDocument(ctx context.Context, ref resource.Reference) (resource.OfficeDocument, error)
	StreamResource(ctx context.Context, ref resource.Reference, dst io.Writer, onProgress func(transfer.Progress)) error
	GetCoursePlans(ctx context.Context, courseID string) ([]planner.CoursePlanEntry, error)
	GetCoursePlanElements(ctx context.Context, courseID, topicID string) ([]planner.PlanGridRow, error)
}

type handler struct {
	api Api
}

// Mount registers the resource routes on mux.
func Mount(mux *http.ServeMux, api Api) {
	h := handler{api: api}

	mux.HandleFunc("GET /api/sso-url", h.ssoURL)
	mux.HandleFunc("GET /api/resources/{elementId}/file", h.resourceFile)
	mux.HandleFunc("GET /api/resources/{elementId}/blob", h.resourceBlob)
	mux.HandleFunc("GET /api/resources/{elementId}/media", h.resourceMedia)
	mux.HandleFunc("GET /api/resources/{elementId}/office", h.resourceOffice)
	mux.HandleFunc("GET /api/resources/{elementId}/stream", h.resourceStream)
	mux.HandleFunc("GET /api/courses/{courseId}/plans", h.coursePlans)
	mux.HandleFunc("GET /api/courses/{courseId}/topics/{topicId}/elements", h.coursePlanElements)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the scraping error taxonomy onto status codes. The
// portal misbehaving is never this process's fault, so those failures
// surface as upstream errors rather than 500s.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resource.ErrAuthLink):
		status = http.StatusUnauthorized
	case errors.Is(err, resource.ErrUnresolvableResource),
		errors.Is(err, resource.ErrMediaNotFound):
		status = http.StatusNotFound
	case errors.Is(err, browser.ErrNavigationTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, transfer.ErrTransferFailed):
		status = http.StatusBadGateway
	}

	slog.ErrorContext(ctx, "request failed", "status", status, "err", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h handler) ssoURL(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing url parameter"})
		return
	}

	sso, err := h.api.GetSSOURL(r.Context(), target)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": sso})
}

func reference(r *http.Request) resource.Reference {
	return resource.Reference{ElementID: r.PathValue("elementId")}
}

func (h handler) resourceFile(w http.ResponseWriter, r *http.Request) {
	link, err := h.api.GetResourceFile(r.Context(), reference(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (h handler) resourceBlob(w http.ResponseWriter, r *http.Request) {
	blob, err := h.api.GetBlob(r.Context(), reference(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(blob)
}

func (h handler) resourceMedia(w http.ResponseWriter, r *http.Request) {
	mediaURL, err := h.api.GetMediaURL(r.Context(), reference(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": mediaURL})
}

func (h handler) resourceOffice(w http.ResponseWriter, r *http.Request) {
	doc, err := h.api.GetOfficeDocument(r.Context(), reference(r))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h handler) resourceStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/octet-stream")
	// headers are committed once streaming starts; a mid-stream failure
	// can only cut the connection, not change the status
	err := h.api.StreamResource(r.Context(), reference(r), w, nil)
	if err != nil {
		writeError(r.Context(), w, err)
	}
}

func (h handler) coursePlans(w http.ResponseWriter, r *http.Request) {
	entries, err := h.api.GetCoursePlans(r.Context(), r.PathValue("courseId"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h handler) coursePlanElements(w http.ResponseWriter, r *http.Request) {
	rows, err := h.api.GetCoursePlanElements(
		r.Context(),
		r.PathValue("courseId"),
		r.PathValue("topicId"),
	)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
