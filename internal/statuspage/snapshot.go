// Package statuspage fetches and parses the Cfx.re status page.
package statuspage

import "time"

// Status is the state of one service on the status page.
type Status string

const (
	StatusOperational   Status = "operational"
	StatusDegraded      Status = "degraded_performance"
	StatusPartialOutage Status = "partial_outage"
	StatusMajorOutage   Status = "major_outage"
	StatusMaintenance   Status = "maintenance"
	StatusUnavailable   Status = "unavailable"
)

// Overall is the page-wide classification.
type Overall string

const (
	OverallOperational Overall = "all_operational"
	OverallPartial     Overall = "partial_issues"
	OverallMajor       Overall = "major_outage"
	OverallUnknown     Overall = "unknown"
)

// Group buckets services for display.
type Group string

const (
	GroupGaming    Group = "gaming"
	GroupPlatform  Group = "platform"
	GroupCommunity Group = "community"
)

// Service is one tracked component of the status page.
type Service struct {
	ID      string
	Name    string // display name
	Emoji   string
	Pattern string // literal text searched for on the page
	Group   Group
}

// Services is the closed set of tracked services, in display order.
var Services = []Service{
	{ID: "fivem", Name: "FiveM", Emoji: "🎮", Pattern: "FiveM", Group: GroupGaming},
	{ID: "redm", Name: "RedM", Emoji: "🤠", Pattern: "RedM", Group: GroupGaming},
	{ID: "fxserver", Name: "FXServer", Emoji: "🖥️", Pattern: "Cfx.re Platform Server (FXServer)", Group: GroupGaming},
	{ID: "game-services", Name: "Game Services", Emoji: "🎯", Pattern: "Game Services", Group: GroupGaming},
	{ID: "cnl", Name: "CnL", Emoji: "🔗", Pattern: "CnL", Group: GroupPlatform},
	{ID: "policy", Name: "Policy", Emoji: "📋", Pattern: "Policy", Group: GroupPlatform},
	{ID: "keymaster", Name: "Keymaster", Emoji: "🔑", Pattern: "Keymaster", Group: GroupPlatform},
	{ID: "web-services", Name: "Web Services", Emoji: "🌐", Pattern: "Web Services", Group: GroupPlatform},
	{ID: "forums", Name: "Forums", Emoji: "💬", Pattern: "Forums", Group: GroupCommunity},
	{ID: "server-list", Name: "Server List", Emoji: "📋", Pattern: "Server List Frontend", Group: GroupCommunity},
	{ID: "runtime", Name: "Runtime", Emoji: "⚡", Pattern: `"Runtime"`, Group: GroupCommunity},
	{ID: "idms", Name: "IDMS", Emoji: "🆔", Pattern: "IDMS", Group: GroupCommunity},
	{ID: "portal", Name: "Portal", Emoji: "🚪", Pattern: "Portal", Group: GroupCommunity},
}

// ServiceStatus pairs a service with its parsed status.
type ServiceStatus struct {
	Service Service
	Status  Status
}

// Snapshot is the parsed result of one status page fetch. It is never
// modified after Parse returns it.
type Snapshot struct {
	Services  []ServiceStatus
	Overall   Overall
	FetchedAt time.Time
}

// Status returns the status of the service with the given id.
func (s *Snapshot) Status(id string) (Status, bool) {
	for _, ss := range s.Services {
		if ss.Service.ID == id {
			return ss.Status, true
		}
	}
	return "", false
}

// InGroup returns the services of one display group, in display order.
func (s *Snapshot) InGroup(g Group) []ServiceStatus {
	var out []ServiceStatus
	for _, ss := range s.Services {
		if ss.Service.Group == g {
			out = append(out, ss)
		}
	}
	return out
}

// Label is the human readable status text.
func (st Status) Label() string {
	switch st {
	case StatusOperational:
		return "🟢 Operational"
	case StatusDegraded:
		return "🟡 Degraded Performance"
	case StatusPartialOutage:
		return "🟠 Partial Outage"
	case StatusMajorOutage:
		return "🔴 Major Outage"
	case StatusMaintenance:
		return "🔧 Maintenance"
	default:
		return "❓ Unavailable"
	}
}

func (o Overall) Label() string {
	switch o {
	case OverallOperational:
		return "🟢 All systems operational"
	case OverallPartial:
		return "🟡 Some systems experiencing issues"
	case OverallMajor:
		return "🔴 Major service outage"
	default:
		return "❓ Overall status unknown"
	}
}

// Color is the embed color for the overall state.
func (o Overall) Color() int {
	switch o {
	case OverallOperational:
		return 0x00ff00
	case OverallPartial:
		return 0xffff00
	case OverallMajor:
		return 0xff0000
	default:
		return 0x808080
	}
}
