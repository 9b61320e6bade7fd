// Package triage classifies free-form requests into swarm task types
// and complexity tiers using keyword heuristics, and formats swarm
// status and alert reports for display. It sits between request intake
// and the delegation facade: only requests triage recognizes are worth
// an auction.
package triage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/swarmflow/swarm"
)

// Classification is the triage verdict for one request.
type Classification struct {
	Type       swarm.TaskType
	Complexity swarm.Complexity
}

// Analyze classifies a request into a task type and complexity tier.
// The second return is false when the request does not look like
// delegable work and should be handled locally. Matching is keyword
// based and case insensitive; rule order matters, most specific first.
func Analyze(input string) (Classification, bool) {
	lower := strings.ToLower(strings.TrimSpace(input))
	words := len(strings.Fields(lower))

	contains := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}

	if contains("scan", "vulnerability", "security audit", "penetration test", "exploit") {
		c := swarm.ComplexityModerate
		switch {
		case contains("full scan", "comprehensive", "deep scan"):
			c = swarm.ComplexityComplex
		case contains("quick scan", "basic scan"):
			c = swarm.ComplexitySimple
		}
		return Classification{swarm.TaskSecurityAnalysis, c}, true
	}

	if contains("check for vulnerabilities", "find vulnerabilities", "cve", "security holes") {
		return Classification{swarm.TaskVulnerabilityScanning, swarm.ComplexityModerate}, true
	}

	if contains("analyze code", "review code", "code quality", "refactor", "optimize code") {
		c := swarm.ComplexityModerate
		if words > 20 || contains("entire", "all files") {
			c = swarm.ComplexityComplex
		}
		return Classification{swarm.TaskCodeAnalysis, c}, true
	}

	if contains("monitor network", "network traffic", "packet capture", "network analysis") {
		return Classification{swarm.TaskNetworkMonitoring, swarm.ComplexityIntensive}, true
	}

	if contains("search files", "find files", "organize files", "clean up files") {
		c := swarm.ComplexityModerate
		if contains("entire", "all drives") {
			c = swarm.ComplexityComplex
		}
		return Classification{swarm.TaskFileSystemOperation, c}, true
	}

	if contains("scrape", "extract data from", "crawl website", "download all") {
		return Classification{swarm.TaskWebScraping, swarm.ComplexityComplex}, true
	}

	if contains("process data", "analyze dataset", "parse", "transform data", "aggregate") {
		c := swarm.ComplexityModerate
		if contains("large", "millions", "big data") {
			c = swarm.ComplexityIntensive
		}
		return Classification{swarm.TaskDataProcessing, c}, true
	}

	if contains("process emails", "analyze inbox", "sort emails", "filter emails") {
		return Classification{swarm.TaskEmailProcessing, swarm.ComplexityModerate}, true
	}

	// Long or explicitly multi-step requests fall through to general
	// computation even without a domain keyword.
	if words > 30 || contains("step by step", "comprehensive analysis", "detailed report") {
		return Classification{swarm.TaskGeneralComputation, swarm.ComplexityComplex}, true
	}

	return Classification{}, false
}

// IsStatusCommand reports whether the input is one of the exact swarm
// status commands.
func IsStatusCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "swarm status", "show swarm", "swarm info", "workers status":
		return true
	}
	return false
}

// IsAlertsCommand reports whether the input is one of the exact swarm
// alerts commands.
func IsAlertsCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "swarm alerts", "show alerts", "worker alerts", "check alerts":
		return true
	}
	return false
}

// FormatStatus renders a status snapshot as markdown. A nil snapshot
// means the visibility gate is off and renders as a hint instead.
func FormatStatus(status *swarm.StatusSnapshot) string {
	if status == nil {
		return "Swarm mode is currently hidden. Use `swarm mode on` to reveal worker activity."
	}

	var b strings.Builder
	b.WriteString("**Swarm Status**\n\n")
	fmt.Fprintf(&b, "**Total Workers:** %d\n", status.TotalWorkers)
	fmt.Fprintf(&b, "**Active Workers:** %d\n", status.ActiveWorkers)
	fmt.Fprintf(&b, "**Pending Auctions:** %d\n", status.PendingAuctions)
	fmt.Fprintf(&b, "**Active Tasks:** %d\n\n", status.ActiveTasks)

	if len(status.Workers) == 0 {
		b.WriteString("*No workers currently registered.*\n")
		return b.String()
	}

	b.WriteString("**Registered Workers:**\n")
	for _, w := range status.Workers {
		fmt.Fprintf(&b, "- **%s** (%s) - Load: %.0f%%, Tasks: %d, Specializations: %s\n",
			w.Name, w.Status, w.CurrentLoad*100, w.ActiveTasks, joinTypes(w.Specializations))
	}
	return b.String()
}

// FormatAlerts renders drained alerts as markdown, most severe detail
// markers first within each entry. An empty slice renders as an
// all-clear line.
func FormatAlerts(alerts []swarm.Alert) string {
	if len(alerts) == 0 {
		return "No pending alerts from workers. All systems nominal."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Swarm Alerts** (%d)\n\n", len(alerts))
	for _, a := range alerts {
		fmt.Fprintf(&b, "[%s] **%s** from %s\n", severityTag(a.Severity), a.Category, a.WorkerName)
		fmt.Fprintf(&b, "   %s\n", a.Description)
		if len(a.Details) > 0 {
			if raw, err := json.Marshal(a.Details); err == nil {
				fmt.Fprintf(&b, "   Details: %s\n", raw)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func severityTag(s swarm.Severity) string {
	switch s {
	case swarm.SeverityCritical:
		return "CRITICAL"
	case swarm.SeverityHigh:
		return "HIGH"
	case swarm.SeverityMedium:
		return "MEDIUM"
	case swarm.SeverityLow:
		return "LOW"
	default:
		return "INFO"
	}
}

func joinTypes(types []swarm.TaskType) string {
	if len(types) == 0 {
		return "none"
	}
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
