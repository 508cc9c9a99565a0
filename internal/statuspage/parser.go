package statuspage

import (
	"regexp"
	"strings"
	"time"
)

// Keywords the page uses for a component state, matched case-insensitively.
var keywordStatus = map[string]Status{
	"operational":          StatusOperational,
	"degraded performance": StatusDegraded,
	"partial outage":       StatusPartialOutage,
	"major outage":         StatusMajorOutage,
	"maintenance":          StatusMaintenance,
}

// Banner phrases, checked in order; first match wins.
var overallBanners = []struct {
	phrase  string
	overall Overall
}{
	{"All Systems Operational", OverallOperational},
	{"Some Systems Experiencing Issues", OverallPartial},
	{"Major Service Outage", OverallMajor},
}

// servicePatterns holds one compiled pattern per entry of Services.
// The window between the name and the keyword is unbounded.
var servicePatterns = compileServicePatterns()

func compileServicePatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(Services))
	for i, svc := range Services {
		out[i] = regexp.MustCompile(`(?is)` + regexp.QuoteMeta(svc.Pattern) +
			`.*?(Operational|Degraded Performance|Partial Outage|Major Outage|Maintenance)`)
	}
	return out
}

// Parse maps raw page text to a Snapshot. It never fails: services that
// cannot be found are StatusUnavailable and an unrecognised page is
// OverallUnknown.
func Parse(text string) *Snapshot {
	snap := &Snapshot{
		Services:  make([]ServiceStatus, len(Services)),
		Overall:   OverallUnknown,
		FetchedAt: time.Now().UTC(),
	}

	for i, svc := range Services {
		status := StatusUnavailable
		if m := servicePatterns[i].FindStringSubmatch(text); m != nil {
			if st, ok := keywordStatus[strings.ToLower(m[1])]; ok {
				status = st
			}
		}
		snap.Services[i] = ServiceStatus{Service: svc, Status: status}
	}

	for _, b := range overallBanners {
		if strings.Contains(text, b.phrase) {
			snap.Overall = b.overall
			break
		}
	}

	return snap
}
