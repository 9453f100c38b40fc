package service

import (
	"strings"

	"github.com/mssola/user_agent"
	"github.com/sakif/devtree/internal/model"
)

// describeAgent splits a raw User-Agent header into the browser, OS and
// device class shown on the owner's dashboard. The raw string is kept.
func describeAgent(raw string) model.RecentVisit {
	rv := model.RecentVisit{UserAgent: raw}
	if strings.TrimSpace(raw) == "" {
		return rv
	}

	ua := user_agent.New(raw)

	name, version := ua.Browser()
	if name != "" {
		rv.Browser = strings.TrimSpace(name + " " + majorVersion(version))
	}
	rv.OS = ua.OS()

	switch {
	case ua.Bot():
		rv.Device = "bot"
	case ua.Mobile():
		rv.Device = "mobile"
	default:
		rv.Device = "desktop"
	}
	return rv
}

// majorVersion keeps "120" out of "120.0.6099.109".
func majorVersion(v string) string {
	major, _, _ := strings.Cut(v, ".")
	return major
}
