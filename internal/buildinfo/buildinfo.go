// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package buildinfo

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	Version   = "0.0.0-dev"
	Commit    = ""
	Date      = ""
	UserAgent = ""
)

func init() {
	UserAgent = fmt.Sprintf("reval/%s (%s %s)", Version, runtime.GOOS, runtime.GOARCH)
}

// PluginTag identifies this validator to the iaptic API. It is sent in the
// device block of every validation request.
func PluginTag() string {
	return fmt.Sprintf("iaptic-storekit2/%s", Version)
}

type buildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func String() string {
	return fmt.Sprintf("Version: %v\nCommit: %v\nBuild date: %s\n", Version, Commit, Date)
}

func Print() {
	fmt.Printf("Version: %v\nCommit: %v\nBuild date: %s\n", Version, Commit, Date)
}

func JSON() ([]byte, error) {
	i := buildInfo{
		Version: Version,
		Commit:  Commit,
		Date:    Date,
	}

	data, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}

	return data, nil
}
