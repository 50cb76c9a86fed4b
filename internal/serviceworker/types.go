// Package serviceworker observes and controls service workers of a browser
// context over the DevTools ServiceWorker domain.
package serviceworker

import "time"

type Mode string

const (
	ModeAllow         Mode = "allow"
	ModeBlock         Mode = "block"
	ModeBlockOnDomain Mode = "block-on-domain"
	ModeUnregisterAll Mode = "unregister-all"
)

type OverrideMode string

const (
	OverrideAllow OverrideMode = "allow"
	OverrideBlock OverrideMode = "block"
)

type DomainOverride struct {
	Domain string       `yaml:"domain" json:"domain"`
	Mode   OverrideMode `yaml:"mode" json:"mode"`
}

// Control is the per-session service worker policy.
type Control struct {
	Mode              Mode             `yaml:"mode" json:"mode"`
	Overrides         []DomainOverride `yaml:"overrides" json:"overrides"`
	BlockedDomains    []string         `yaml:"blocked_domains" json:"blocked_domains"`
	UnregisterOnStart bool             `yaml:"unregister_on_start" json:"unregister_on_start"`
}

type Registration struct {
	RegistrationID string
	ScopeURL       string
	IsDeleted      bool
}

type Version struct {
	VersionID      string
	RegistrationID string
	ScriptURL      string
	RunningStatus  string
	Status         string
}

type Status string

const (
	StatusInstalled  Status = "installed"
	StatusActivating Status = "activating"
	StatusRunning    Status = "running"
	StatusStopped    Status = "stopped"
)

// Worker joins a registration with its most recent version.
type Worker struct {
	RegistrationID string `json:"registration_id"`
	ScopeURL       string `json:"scope_url"`
	ScriptURL      string `json:"script_url"`
	VersionID      string `json:"version_id,omitempty"`
	Status         Status `json:"status"`
}

type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventDeleted      EventKind = "deleted"
	EventUnregistered EventKind = "unregistered"
)

// Event is passed to an Observer when the controller's view changes or it
// acts on a registration.
type Event struct {
	Kind           EventKind
	RegistrationID string
	ScopeURL       string
	At             time.Time
}

type Observer func(Event)
