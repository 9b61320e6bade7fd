package swarm

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType tags the kind of work a task involves. Workers declare the
// task types they specialize in; auctions match announcements against
// those specializations.
type TaskType string

const (
	TaskSecurityAnalysis      TaskType = "security_analysis"
	TaskVulnerabilityScanning TaskType = "vulnerability_scanning"
	TaskCodeAnalysis          TaskType = "code_analysis"
	TaskDataProcessing        TaskType = "data_processing"
	TaskNetworkMonitoring     TaskType = "network_monitoring"
	TaskFileSystemOperation   TaskType = "file_system_operation"
	TaskWebScraping           TaskType = "web_scraping"
	TaskEmailProcessing       TaskType = "email_processing"
	TaskScheduledTask         TaskType = "scheduled_task"
	TaskGeneralComputation    TaskType = "general_computation"
)

// customTaskPrefix marks the open "custom" arm of the task type set.
const customTaskPrefix = "custom:"

// CustomTaskType builds a task type outside the fixed set. The name is
// preserved verbatim after the "custom:" prefix.
func CustomTaskType(name string) TaskType {
	return TaskType(customTaskPrefix + name)
}

// IsCustom reports whether t is a custom task type.
func (t TaskType) IsCustom() bool {
	return strings.HasPrefix(string(t), customTaskPrefix)
}

// CustomName returns the name of a custom task type, or "" and false
// for members of the fixed set.
func (t TaskType) CustomName() (string, bool) {
	if !t.IsCustom() {
		return "", false
	}
	return strings.TrimPrefix(string(t), customTaskPrefix), true
}

// Known reports whether t is a member of the fixed set or a well-formed
// custom type.
func (t TaskType) Known() bool {
	switch t {
	case TaskSecurityAnalysis, TaskVulnerabilityScanning, TaskCodeAnalysis,
		TaskDataProcessing, TaskNetworkMonitoring, TaskFileSystemOperation,
		TaskWebScraping, TaskEmailProcessing, TaskScheduledTask,
		TaskGeneralComputation:
		return true
	}
	return t.IsCustom()
}

// Complexity tiers a task by expected effort. The ordering is
// meaningful: only ComplexityComplex and above justify the overhead of
// a swarm auction.
type Complexity int

const (
	ComplexityTrivial Complexity = iota // < 1 second
	ComplexitySimple                    // 1-10 seconds
	ComplexityModerate                  // 10-60 seconds
	ComplexityComplex                   // 1-10 minutes
	ComplexityIntensive                 // > 10 minutes
)

var complexityNames = map[Complexity]string{
	ComplexityTrivial:   "trivial",
	ComplexitySimple:    "simple",
	ComplexityModerate:  "moderate",
	ComplexityComplex:   "complex",
	ComplexityIntensive: "intensive",
}

func (c Complexity) String() string {
	if name, ok := complexityNames[c]; ok {
		return name
	}
	return fmt.Sprintf("complexity(%d)", int(c))
}

// MarshalJSON encodes the complexity as its lowercase name.
func (c Complexity) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a complexity from its lowercase name.
func (c *Complexity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for tier, name := range complexityNames {
		if name == s {
			*c = tier
			return nil
		}
	}
	return fmt.Errorf("unknown complexity %q", s)
}

// ParseComplexity converts a lowercase tier name into a Complexity.
func ParseComplexity(s string) (Complexity, error) {
	for tier, name := range complexityNames {
		if name == s {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("unknown complexity %q", s)
}

// Severity ranks an alert. Ordering is meaningful: Info < Low < Medium
// < High < Critical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalJSON encodes the severity as its lowercase name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its lowercase name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for sev, n := range severityNames {
		if n == name {
			*s = sev
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", name)
}

// WorkerStatus describes a worker's self-reported availability.
type WorkerStatus string

const (
	StatusIdle        WorkerStatus = "idle"
	StatusBusy        WorkerStatus = "busy"
	StatusOverloaded  WorkerStatus = "overloaded"
	StatusMaintenance WorkerStatus = "maintenance"
	StatusOffline     WorkerStatus = "offline"
)

// TaskAnnouncement is broadcast by the orchestrator to open an auction.
type TaskAnnouncement struct {
	TaskID      uuid.UUID      `json:"task_id"`
	Description string         `json:"description"`
	Type        TaskType       `json:"task_type"`
	Complexity  Complexity     `json:"complexity"`
	Deadline    *time.Duration `json:"deadline,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Bid score weights: confidence 40%, specialization match 35%,
// availability 25%.
const (
	bidWeightConfidence   = 0.40
	bidWeightMatch        = 0.35
	bidWeightAvailability = 0.25
)

// Bid is a worker's sealed offer to execute an announced task.
type Bid struct {
	TaskID              uuid.UUID     `json:"task_id"`
	WorkerID            uuid.UUID     `json:"worker_id"`
	WorkerName          string        `json:"worker_name"`
	Confidence          float64       `json:"confidence"`
	EstimatedDuration   time.Duration `json:"estimated_duration"`
	SpecializationMatch float64       `json:"specialization_match"`
	CurrentLoad         float64       `json:"current_load"`
	Timestamp           time.Time     `json:"timestamp"`
}

// OverallScore combines confidence, specialization match, and
// availability into one comparable score in [0,1]. All inputs are
// clamped to [0,1] before weighting.
func (b Bid) OverallScore() float64 {
	availability := 1 - clamp01(b.CurrentLoad)
	return clamp01(b.Confidence)*bidWeightConfidence +
		clamp01(b.SpecializationMatch)*bidWeightMatch +
		availability*bidWeightAvailability
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Assignment records the outcome of a won auction.
type Assignment struct {
	TaskID    uuid.UUID        `json:"task_id"`
	WorkerID  uuid.UUID        `json:"worker_id"`
	Task      TaskAnnouncement `json:"task"`
	Timestamp time.Time        `json:"timestamp"`
}

// Result is a worker's report after executing an assigned task.
type Result struct {
	TaskID        uuid.UUID     `json:"task_id"`
	WorkerID      uuid.UUID     `json:"worker_id"`
	WorkerName    string        `json:"worker_name"`
	Success       bool          `json:"success"`
	Payload       any           `json:"payload,omitempty"`
	Error         string        `json:"error,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Alert is an unsolicited anomaly report from a worker. Alerts carry no
// task linkage; they are queued until the orchestrator drains them.
type Alert struct {
	AlertID     uuid.UUID      `json:"alert_id"`
	WorkerID    uuid.UUID      `json:"worker_id"`
	WorkerName  string         `json:"worker_name"`
	Severity    Severity       `json:"severity"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Details     map[string]any `json:"details,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Heartbeat is a worker's periodic liveness signal.
type Heartbeat struct {
	WorkerID    uuid.UUID    `json:"worker_id"`
	WorkerName  string       `json:"worker_name"`
	Status      WorkerStatus `json:"status"`
	CurrentLoad float64      `json:"current_load"`
	ActiveTasks int          `json:"active_tasks"`
	Timestamp   time.Time    `json:"timestamp"`
}

// Registration announces a worker joining the swarm.
type Registration struct {
	WorkerID           uuid.UUID  `json:"worker_id"`
	WorkerName         string     `json:"worker_name"`
	Specializations    []TaskType `json:"specializations"`
	MaxConcurrentTasks int        `json:"max_concurrent_tasks"`
	Capabilities       []string   `json:"capabilities,omitempty"`
	Timestamp          time.Time  `json:"timestamp"`
}

// Deregistration announces a worker leaving the swarm.
type Deregistration struct {
	WorkerID  uuid.UUID `json:"worker_id"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageKind discriminates the swarm message union.
type MessageKind string

const (
	KindTaskAnnouncement MessageKind = "task_announcement"
	KindTaskBid          MessageKind = "task_bid"
	KindTaskAssignment   MessageKind = "task_assignment"
	KindTaskResult       MessageKind = "task_result"
	KindAnomalyAlert     MessageKind = "anomaly_alert"
	KindHeartbeat        MessageKind = "heartbeat"
	KindRegistration     MessageKind = "registration"
	KindDeregistration   MessageKind = "deregistration"
)

// Message is the tagged union carried on the broadcast channel. Exactly
// one payload field is non-nil, selected by Kind. The shape round-trips
// through JSON so it can cross a process boundary unchanged.
type Message struct {
	Kind           MessageKind       `json:"kind"`
	Announcement   *TaskAnnouncement `json:"announcement,omitempty"`
	Bid            *Bid              `json:"bid,omitempty"`
	Assignment     *Assignment       `json:"assignment,omitempty"`
	Result         *Result           `json:"result,omitempty"`
	Alert          *Alert            `json:"alert,omitempty"`
	Heartbeat      *Heartbeat        `json:"heartbeat,omitempty"`
	Registration   *Registration     `json:"registration,omitempty"`
	Deregistration *Deregistration   `json:"deregistration,omitempty"`
}

// NewAnnouncementMessage wraps a task announcement for broadcast.
func NewAnnouncementMessage(a TaskAnnouncement) Message {
	return Message{Kind: KindTaskAnnouncement, Announcement: &a}
}

// NewBidMessage wraps a bid for broadcast.
func NewBidMessage(b Bid) Message {
	return Message{Kind: KindTaskBid, Bid: &b}
}

// NewAssignmentMessage wraps an assignment for broadcast.
func NewAssignmentMessage(a Assignment) Message {
	return Message{Kind: KindTaskAssignment, Assignment: &a}
}

// NewResultMessage wraps a task result for broadcast.
func NewResultMessage(r Result) Message {
	return Message{Kind: KindTaskResult, Result: &r}
}

// NewAlertMessage wraps an anomaly alert for broadcast.
func NewAlertMessage(a Alert) Message {
	return Message{Kind: KindAnomalyAlert, Alert: &a}
}

// NewHeartbeatMessage wraps a heartbeat for broadcast.
func NewHeartbeatMessage(h Heartbeat) Message {
	return Message{Kind: KindHeartbeat, Heartbeat: &h}
}

// NewRegistrationMessage wraps a registration for broadcast.
func NewRegistrationMessage(r Registration) Message {
	return Message{Kind: KindRegistration, Registration: &r}
}

// NewDeregistrationMessage wraps a deregistration for broadcast.
func NewDeregistrationMessage(d Deregistration) Message {
	return Message{Kind: KindDeregistration, Deregistration: &d}
}

// Validate checks that the payload field matching Kind is set.
func (m Message) Validate() error {
	var ok bool
	switch m.Kind {
	case KindTaskAnnouncement:
		ok = m.Announcement != nil
	case KindTaskBid:
		ok = m.Bid != nil
	case KindTaskAssignment:
		ok = m.Assignment != nil
	case KindTaskResult:
		ok = m.Result != nil
	case KindAnomalyAlert:
		ok = m.Alert != nil
	case KindHeartbeat:
		ok = m.Heartbeat != nil
	case KindRegistration:
		ok = m.Registration != nil
	case KindDeregistration:
		ok = m.Deregistration != nil
	default:
		return fmt.Errorf("unknown message kind %q", m.Kind)
	}
	if !ok {
		return fmt.Errorf("message kind %q has no payload", m.Kind)
	}
	return nil
}
