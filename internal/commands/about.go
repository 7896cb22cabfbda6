package commands

import (
	"context"
	"encoding/json"
)

const AppInfo = "app_info"

// CheckForUpdatesEvent is emitted to the front-end when the user picks
// "Check for Updates…" in the application menu.
const CheckForUpdatesEvent = "menu-check-for-updates"

// About is the application's About-panel metadata.
type About struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Copyright    string   `json:"copyright"`
	Authors      []string `json:"authors"`
	Comments     string   `json:"comments"`
	License      string   `json:"license"`
	Website      string   `json:"website"`
	WebsiteLabel string   `json:"website_label"`
	UpdateEvent  string   `json:"update_event"`
}

// DefaultAbout returns Gerbtrace's metadata. An empty version reads 1.0.0.
func DefaultAbout(version string) About {
	if version == "" || version == "(devel)" {
		version = "1.0.0"
	}
	return About{
		Name:         "Gerbtrace",
		Version:      version,
		Copyright:    "© Newmatik GmbH",
		Authors:      []string{"Newmatik GmbH"},
		Comments:     "View and compare Gerber PCB files.",
		License:      "MIT",
		Website:      "https://gerbtrace.com",
		WebsiteLabel: "gerbtrace.com",
		UpdateEvent:  CheckForUpdatesEvent,
	}
}

// RegisterAbout registers app_info, which returns about unchanged.
func RegisterAbout(r *Router, about About) {
	r.Register(AppInfo, func(context.Context, json.RawMessage) (any, error) {
		return about, nil
	})
}
