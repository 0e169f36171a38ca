// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/autobrr/reval/internal/buildinfo"
	"github.com/autobrr/reval/internal/update"
)

type VersionHandler struct {
	updateService *update.Service
}

func NewVersionHandler(updateService *update.Service) *VersionHandler {
	return &VersionHandler{
		updateService: updateService,
	}
}

type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

type LatestVersionResponse struct {
	TagName     string `json:"tag_name"`
	Name        string `json:"name,omitempty"`
	HTMLURL     string `json:"html_url"`
	PublishedAt string `json:"published_at"`
}

func (h *VersionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, VersionResponse{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		Date:    buildinfo.Date,
	})
}

func (h *VersionHandler) GetLatestVersion(w http.ResponseWriter, r *http.Request) {
	release := h.updateService.GetLatestRelease(r.Context())
	if release == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	response := LatestVersionResponse{
		TagName:     release.TagName,
		HTMLURL:     release.HTMLURL,
		PublishedAt: release.PublishedAt.Format("2006-01-02T15:04:05Z"),
	}

	if release.Name != nil {
		response.Name = *release.Name
	}

	RespondJSON(w, http.StatusOK, response)
}
