package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RawDocument is one input transcript, read whole from the input directory.
type RawDocument struct {
	Name    string         `json:"name"`
	Content string         `json:"-"`
	Format  DocumentFormat `json:"format"`
}

// TextChunk is a contiguous slice of a document's text.
type TextChunk struct {
	Index int    `json:"index"` // zero-based
	Total int    `json:"total"`
	Text  string `json:"-"`
}

// Label returns the positional marker prepended to the chunk before mining.
func (c TextChunk) Label() string {
	return fmt.Sprintf("[PART %d/%d]", c.Index+1, c.Total)
}

// Payload returns the labelled chunk text as sent to the Miner stage.
func (c TextChunk) Payload() string {
	return c.Label() + " \n " + c.Text
}

// ExtractedItem is one idea mined from a transcript. The engine's schema is
// loose, so the item keeps every key it was given and exposes typed accessors
// for the ones the orchestrator reads.
type ExtractedItem map[string]any

func (i ExtractedItem) str(key string) string {
	if s, ok := i[key].(string); ok {
		return s
	}
	return ""
}

func (i ExtractedItem) CoreIdea() string { return i.str("core_idea") }
func (i ExtractedItem) Problem() string  { return i.str("problem") }
func (i ExtractedItem) Solution() string { return i.str("solution") }
func (i ExtractedItem) UserMood() string { return i.str("user_mood") }

// CodeSnippets returns the string entries of the item's code_snippets list.
func (i ExtractedItem) CodeSnippets() []string {
	raw, ok := i["code_snippets"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// DocumentRecord accumulates the analysis of one document across stages.
// Annotations hold every top-level key contributed by later stages
// (tech_evaluation, market_intelligence, ...) and serialize flat beside the
// known keys.
type DocumentRecord struct {
	PacketID       string
	ExtractedItems []ExtractedItem
	TraceLog       []string
	Annotations    map[string]any
}

// NewDocumentRecord creates an empty merged record.
func NewDocumentRecord() *DocumentRecord {
	return &DocumentRecord{
		PacketID:       MergedPacketID,
		ExtractedItems: []ExtractedItem{},
		TraceLog:       []string{},
		Annotations:    map[string]any{},
	}
}

// Apply shallow-merges a stage payload into the record. New keys are added
// and existing keys are overwritten. Known keys whose value has the wrong
// shape leave the record untouched and are returned in sorted order.
func (r *DocumentRecord) Apply(payload map[string]any) (rejected []string) {
	if r.Annotations == nil {
		r.Annotations = map[string]any{}
	}
	for k, v := range payload {
		switch k {
		case KeyPacketID:
			if s, ok := v.(string); ok {
				r.PacketID = s
			} else {
				rejected = append(rejected, k)
			}
		case KeyExtractedItems:
			if items, ok := DecodeItems(v); ok {
				r.ExtractedItems = items
			} else {
				rejected = append(rejected, k)
			}
		case KeyTraceLog:
			if notes, ok := DecodeTraceLog(v); ok {
				r.TraceLog = notes
			} else {
				rejected = append(rejected, k)
			}
		default:
			r.Annotations[k] = v
		}
	}
	sort.Strings(rejected)
	return rejected
}

// Concepts returns the core idea of every extracted item, skipping blanks.
func (r *DocumentRecord) Concepts() []string {
	concepts := make([]string, 0, len(r.ExtractedItems))
	for _, item := range r.ExtractedItems {
		if c := item.CoreIdea(); c != "" {
			concepts = append(concepts, c)
		}
	}
	return concepts
}

func (r *DocumentRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Annotations)+3)
	for k, v := range r.Annotations {
		out[k] = v
	}
	items := r.ExtractedItems
	if items == nil {
		items = []ExtractedItem{}
	}
	notes := r.TraceLog
	if notes == nil {
		notes = []string{}
	}
	out[KeyPacketID] = r.PacketID
	out[KeyExtractedItems] = items
	out[KeyTraceLog] = notes
	return json.Marshal(out)
}

func (r *DocumentRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = DocumentRecord{
		ExtractedItems: []ExtractedItem{},
		TraceLog:       []string{},
		Annotations:    map[string]any{},
	}
	r.Apply(raw)
	return nil
}

// DecodeItems converts a decoded JSON list into extracted items, dropping
// entries that are not objects. ok is false when v is not a list.
func DecodeItems(v any) ([]ExtractedItem, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	items := make([]ExtractedItem, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			items = append(items, ExtractedItem(m))
		}
	}
	return items, true
}

// DecodeTraceLog converts a decoded JSON list into trace notes. Non-string
// entries are kept as compact JSON text. ok is false when v is not a list.
func DecodeTraceLog(v any) ([]string, bool) {
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	notes := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			notes = append(notes, s)
			continue
		}
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		notes = append(notes, string(b))
	}
	return notes, true
}

// NamedRecord pairs a persisted record with its output file name.
type NamedRecord struct {
	File   string
	Record *DocumentRecord
}

// StageSnapshot is the audit-trail envelope written after each successful stage.
type StageSnapshot struct {
	Document   string          `json:"document"`
	Stage      StageName       `json:"stage"`
	Sequence   int             `json:"sequence"`
	CapturedAt time.Time       `json:"captured_at"`
	Record     *DocumentRecord `json:"record"`
}

// CorpusSummary is the minimized view of one record sent to the Clusterer.
type CorpusSummary struct {
	File     string   `json:"file"`
	Concepts []string `json:"concepts"`
}

// Cluster is a named group of documents sharing a concept.
type Cluster struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// ArchitectureReport is the synthesized output for one cluster.
type ArchitectureReport struct {
	Cluster     string         `json:"cluster"`
	Documents   []string       `json:"documents"`
	GeneratedAt time.Time      `json:"generated_at"`
	Analysis    map[string]any `json:"analysis"`
}

// MarkdownReport returns the narrative report if the Architect produced one.
func (a *ArchitectureReport) MarkdownReport() string {
	if s, ok := a.Analysis[KeyMarkdownReport].(string); ok {
		return s
	}
	return ""
}

// DocumentOutcome records where one document ended up in a run.
type DocumentOutcome struct {
	Document   string        `json:"document"`
	State      DocumentState `json:"state"`
	Chunks     int           `json:"chunks"`
	MinedParts int           `json:"mined_parts"`
	Items      int           `json:"items"`
	StageCalls int           `json:"stage_calls"`
	Error      string        `json:"error,omitempty"`
}

// RunSummary describes one complete invocation of the pipeline and synthesis.
type RunSummary struct {
	RunID         uuid.UUID         `db:"id" json:"run_id"`
	StartedAt     time.Time         `db:"started_at" json:"started_at"`
	FinishedAt    time.Time         `db:"finished_at" json:"finished_at"`
	Documents     []DocumentOutcome `json:"documents"`
	Clusters      []Cluster         `json:"clusters"`
	Reports       []string          `json:"reports"`
	ClusterFailed bool              `json:"cluster_fallback"`
	RecordsLoaded int               `json:"records_loaded"`
}

// Count returns how many documents ended in the given state.
func (s *RunSummary) Count(state DocumentState) int {
	n := 0
	for _, d := range s.Documents {
		if d.State == state {
			n++
		}
	}
	return n
}

// LedgerEntry is one recorded state transition of a document within a run.
type LedgerEntry struct {
	ID         uuid.UUID     `db:"id" json:"id"`
	RunID      uuid.UUID     `db:"run_id" json:"run_id"`
	Document   string        `db:"document" json:"document"`
	State      DocumentState `db:"state" json:"state"`
	Detail     string        `db:"detail" json:"detail"`
	RecordedAt time.Time     `db:"recorded_at" json:"recorded_at"`
}
