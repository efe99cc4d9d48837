package config

import (
	"os"
	"strings"

	"github.com/seenimoa/form13f/internal/infra"
)

// UASource represents where the User-Agent comes from.
type UASource string

const (
	UASourceEnv     UASource = "env"
	UASourceConfig  UASource = "config"
	UASourceDefault UASource = "default"
)

// UAStatus describes the configured User-Agent. SEC rejects requests
// whose User-Agent carries no contact address.
type UAStatus struct {
	Value      string   `json:"value"`
	Source     UASource `json:"source"`
	HasContact bool     `json:"has_contact"`
	IsDefault  bool     `json:"is_default"`
}

// CheckUserAgent reports the status of the configured User-Agent.
func CheckUserAgent(cfg *Config) UAStatus {
	ua := cfg.SEC.UserAgent
	status := UAStatus{
		Value:      ua,
		HasContact: strings.Contains(ua, "@"),
		IsDefault:  ua == "" || ua == infra.DefaultUserAgent,
	}

	switch {
	case status.IsDefault:
		status.Source = UASourceDefault
	case os.Getenv("FORM13F_SEC_USER_AGENT") != "" || os.Getenv("SEC_USER_AGENT") != "":
		status.Source = UASourceEnv
	default:
		status.Source = UASourceConfig
	}
	return status
}
