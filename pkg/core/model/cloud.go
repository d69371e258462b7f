// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package model

// CloudInstance is an instance which is hosted by the cloud control
// plane.
type CloudInstance struct {
	ID      string  `json:"id"`
	Org     string  `json:"org_slug"`
	Name    string  `json:"name"`
	Version Version `json:"version"`
	Status  string  `json:"status"`
	UIURL   string  `json:"ui_url"`
}

// FullName returns the org/name form of the ci instance name.
func (ci *CloudInstance) FullName() string {
	return ci.Org + "/" + ci.Name
}

// CloudUpgradeRequest asks the control plane to upgrade an instance.
type CloudUpgradeRequest struct {
	Org     string  `json:"org"`
	Name    string  `json:"name"`
	Version Version `json:"version"`
	Force   bool    `json:"force"`
}
