// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi is the thin boundary adapter between the outside world
// and the orchestrator: it decodes requests, submits tasks, and answers
// immediately with "accepted" or the task's current snapshot. It never runs
// pipeline work itself.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/starfield-tools/esm-translate/internal/orchestrator"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

// API mounts the engine's routes onto a gorilla/mux router.
type API struct {
	Orchestrator *orchestrator.Orchestrator
}

func (api *API) MountRoutes(r *mux.Router) {
	r = r.PathPrefix("/engine").Subrouter()
	r.StrictSlash(true)

	r.HandleFunc("/translate", api.submitTranslate).Methods(http.MethodPost)
	r.HandleFunc("/assembly", api.submitAssembly).Methods(http.MethodPost)
	r.HandleFunc("/tasks/{id}", api.getTask).Methods(http.MethodGet)
}

// ErrorResponse model
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(rw http.ResponseWriter, statusCode int, code string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{Error: code})
}

func writeJSON(rw http.ResponseWriter, statusCode int, payload interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	if err := json.NewEncoder(rw).Encode(payload); err != nil {
		log.Errorf("httpapi: encoding response: %v", err)
	}
}

func decode(r io.Reader, val interface{}) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

func (api *API) submitTranslate(rw http.ResponseWriter, r *http.Request) {
	var req orchestrator.SubmitTaskRequest
	if err := decode(r.Body, &req); err != nil {
		writeError(rw, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.TaskID == "" || req.FilePath == "" {
		writeError(rw, http.StatusBadRequest, "MISSING_PARAMS")
		return
	}

	snap := api.Orchestrator.SubmitTask(req)
	writeJSON(rw, http.StatusAccepted, map[string]string{
		"taskId": snap.TaskID,
		"status": "accepted",
	})
}

func (api *API) submitAssembly(rw http.ResponseWriter, r *http.Request) {
	var req orchestrator.SubmitAssemblyRequest
	if err := decode(r.Body, &req); err != nil {
		writeError(rw, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.TaskID == "" || req.FilePath == "" {
		writeError(rw, http.StatusBadRequest, "MISSING_PARAMS")
		return
	}

	snap := api.Orchestrator.SubmitAssembly(req)
	writeJSON(rw, http.StatusAccepted, map[string]string{
		"taskId": snap.TaskID,
		"status": "accepted",
	})
}

func (api *API) getTask(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := api.Orchestrator.Get(id)
	if !ok {
		writeError(rw, http.StatusNotFound, "TASK_NOT_FOUND")
		return
	}
	writeJSON(rw, http.StatusOK, snap)
}
