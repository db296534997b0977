package compiler

import (
	"net/url"
	"regexp"
	"strings"

	"dashshot/internal/models"
)

var lookerHost = regexp.MustCompile(`^https://.+\.looker\.com`)

func isPowerBIURL(u string) bool    { return strings.HasPrefix(u, "https://app.powerbi.com") }
func isDynamicsURL(u string) bool   { return strings.Contains(u, ".dynamics.com/main.aspx") }
func isLookerURL(u string) bool     { return lookerHost.MatchString(u) }
func isTableauURL(u string) bool    { return strings.Contains(u, "online.tableau.com") }
func isSalesforceURL(u string) bool { return strings.Contains(u, "lightning.force.com") }
func isSplunkURL(u string) bool     { return strings.Contains(u, "splunk") }
func isKibanaURL(u string) bool     { return strings.Contains(u, "_plugin/kibana/") }

// Hosts whose grouped selectors make the browser type into the same input
// twice; only the id alternative is kept.
var simplifiedHosts = []string{"studio.amillionads.com", "aws.amazon.com"}

// Hosts where full-page captures past the viewport come out blank.
var viewportOnlyHosts = []string{"looker.com", "metabaseapp.com", "splunk", "geckoboard.com"}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// TerminalURL is the page the capture must end on: the href of the final
// screenshot marker that carries one, else the href of the last click that
// navigated.
func TerminalURL(events []models.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if e := events[i]; e.Action == models.ActionScreenshot && e.Href != "" {
			return e.Href
		}
	}
	for i := len(events) - 1; i >= 0; i-- {
		if e := events[i]; e.Action == models.ActionClick && e.Href != "" {
			return e.Href
		}
	}
	return ""
}

// InitialURL is the href of the first GOTO event.
func InitialURL(events []models.Event) string {
	for _, e := range events {
		if e.Action == models.ActionGoto {
			return e.Href
		}
	}
	return ""
}

// Platform returns the host of the terminal URL, or "" when it does not parse.
func Platform(events []models.Event) string {
	u, err := url.Parse(TerminalURL(events))
	if err != nil {
		return ""
	}
	return u.Host
}

// Account returns the first email-like value typed during the recording.
func Account(events []models.Event) string {
	for _, e := range events {
		if e.IsEmailLike() {
			return e.Value
		}
	}
	return ""
}
