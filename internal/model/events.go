package model

// ---------------------------------------------------------------------------
// Detection events
// ---------------------------------------------------------------------------

// Event is a detection event: a field map with a "type", an optional
// "activity" and the identifying fields for its kind. Field maps rather than
// structs because ground truth and detections come from different producers
// and only the identifying keys they share are compared.
type Event map[string]interface{}

// Event types produced by the harness and the extractors.
const (
	EventProcess         = "process"
	EventConnection      = "network_connection"
	EventModule          = "module"
	EventFileActivity    = "file_activity"
	EventNetworkActivity = "network_activity"
)

// File activities tracked by the rate-sweep harness.
const (
	ActivityCreated  = "created"
	ActivityModified = "modified"
	ActivityCopied   = "copied"
	ActivityRenamed  = "renamed"
	ActivityDeleted  = "deleted"
)

// Activities is the fixed activity order used for ground truth and curves.
var Activities = []string{ActivityCreated, ActivityModified, ActivityCopied, ActivityRenamed, ActivityDeleted}

func ProcessEvent(name string, pid int) Event {
	return Event{"type": EventProcess, "name": name, "pid": pid}
}

func ConnectionEvent(localAddr string, localPort int, remoteAddr string, remotePort int) Event {
	return Event{
		"type":           EventConnection,
		"local_address":  localAddr,
		"local_port":     localPort,
		"remote_address": remoteAddr,
		"remote_port":    remotePort,
	}
}

func ModuleEvent(name, baseAddress string) Event {
	return Event{"type": EventModule, "name": name, "base_address": baseAddress}
}

// FileEvent builds a file-activity event. An empty target is stored as nil,
// which is how deletions are represented.
func FileEvent(activity, source, target string) Event {
	e := Event{"type": EventFileActivity, "activity": activity, "source_file": source, "target_file": nil}
	if target != "" {
		e["target_file"] = target
	}
	return e
}

// Type returns the event's "type" field, or "" when absent.
func (e Event) Type() string {
	s, _ := e["type"].(string)
	return s
}

// Activity returns the event's "activity" field, or "" when absent.
func (e Event) Activity() string {
	s, _ := e["activity"].(string)
	return s
}

// Has reports whether key is present.
func (e Event) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// ---------------------------------------------------------------------------
// Detection metrics
// ---------------------------------------------------------------------------

// DetectionMetrics are recomputed from scratch on every calculation.
type DetectionMetrics struct {
	ActualEvents        int     `json:"actual_events"`
	ReturnedEvents      int     `json:"returned_events"`
	DetectionPercentage float64 `json:"detection_percentage"`
	TruePositives       int     `json:"true_positives"`
	FalsePositives      int     `json:"false_positives"`
	FalseNegatives      int     `json:"false_negatives"`
	Precision           float64 `json:"precision"`
	Recall              float64 `json:"recall"`
	F1Score             float64 `json:"f1_score"`
	AnalysisTime        float64 `json:"analysis_time"`
	EventsPerSecond     float64 `json:"events_per_second"`
}

type OverallMetrics struct {
	ActualEvents        int     `json:"actual_events"`
	ReturnedEvents      int     `json:"returned_events"`
	DetectionPercentage float64 `json:"detection_percentage"`
	AnalysisTime        float64 `json:"analysis_time"`
	EventsPerSecond     float64 `json:"events_per_second"`
}

type ClassificationMetrics struct {
	TruePositives  int     `json:"true_positives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1Score        float64 `json:"f1_score"`
}

// EventTypeCount is the per-type breakdown of detections. Percentage is
// relative to the ground-truth size.
type EventTypeCount struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type RawEventData struct {
	GroundTruthEvents []Event `json:"ground_truth_events"`
	DetectedEvents    []Event `json:"detected_events"`
}

type DetailedMetrics struct {
	Overall        OverallMetrics            `json:"overall"`
	Classification ClassificationMetrics     `json:"classification"`
	ByEventType    map[string]EventTypeCount `json:"by_event_type"`
	RawData        RawEventData              `json:"raw_data"`
}
