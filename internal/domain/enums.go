package domain

import (
	"path/filepath"
	"strings"
)

// DocumentFormat describes how a raw document's text is laid out.
type DocumentFormat string

const (
	FormatPlain    DocumentFormat = "plain"
	FormatMarkdown DocumentFormat = "markdown"
)

// FormatForName infers the document format from a file name's extension.
func FormatForName(name string) DocumentFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return FormatMarkdown
	default:
		return FormatPlain
	}
}

// DocumentState represents the lifecycle of one document through the pipeline.
type DocumentState string

const (
	StatePending     DocumentState = "pending"
	StateChunked     DocumentState = "chunked"
	StateMined       DocumentState = "mined"
	StateValidated   DocumentState = "validated"
	StateStrategized DocumentState = "strategized"
	StatePersisted   DocumentState = "persisted"
	StateFailed      DocumentState = "failed"
	StateSkipped     DocumentState = "skipped"
)

// Terminal reports whether no further transitions follow this state.
func (s DocumentState) Terminal() bool {
	return s == StatePersisted || s == StateFailed || s == StateSkipped
}

// StageName identifies one independently configured analysis stage.
type StageName string

const (
	StageMiner      StageName = "Miner"
	StageValidator  StageName = "Validator"
	StageStrategist StageName = "Strategist"
	StageClusterer  StageName = "Clusterer"
	StageArchitect  StageName = "Architect"
)

// AllStages lists every stage in pipeline order.
var AllStages = []StageName{
	StageMiner,
	StageValidator,
	StageStrategist,
	StageClusterer,
	StageArchitect,
}

// Sequence returns the stage's one-based position in AllStages, or 0 if unknown.
func (s StageName) Sequence() int {
	for i, st := range AllStages {
		if st == s {
			return i + 1
		}
	}
	return 0
}

// StageStates maps per-document stages to the state reached when they succeed.
var StageStates = map[StageName]DocumentState{
	StageMiner:      StateMined,
	StageValidator:  StateValidated,
	StageStrategist: StateStrategized,
}

// Record payload keys read by the orchestrator. Everything else is opaque.
const (
	KeyPacketID       = "packet_id"
	KeyExtractedItems = "extracted_items"
	KeyTraceLog       = "trace_log"
	KeyClusters       = "clusters"
	KeyMarkdownReport = "markdown_report"
)

// MergedPacketID marks a record assembled from one or more Miner partials.
const MergedPacketID = "MERGED"

// AllDocumentsCluster names the synthetic cluster used when clustering fails.
const AllDocumentsCluster = "All"
