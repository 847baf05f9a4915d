package engine

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ideaforge/internal/domain"
)

// CurrentDatePlaceholder is replaced with today's date when a profile is rendered.
const CurrentDatePlaceholder = "[CURRENT_DATE]"

// Profile is the behavioral instruction set for one stage.
type Profile struct {
	Stage        domain.StageName
	Instructions string
	Retrieval    bool
}

// profileOverride is one stage entry in a profiles YAML file. Unset fields
// keep the built-in value.
type profileOverride struct {
	Instructions string `yaml:"instructions"`
	Retrieval    *bool  `yaml:"retrieval"`
}

// Render returns the instructions with placeholders filled in.
func (p Profile) Render(now time.Time) string {
	return strings.ReplaceAll(p.Instructions, CurrentDatePlaceholder, now.Format("2006-01-02"))
}

// Profiles maps each stage to its instruction profile.
type Profiles map[domain.StageName]Profile

// Get returns the profile for a stage, or an empty profile carrying only the name.
func (p Profiles) Get(stage domain.StageName) Profile {
	if prof, ok := p[stage]; ok {
		return prof
	}
	return Profile{Stage: stage}
}

const minerInstructions = `ROLE: You are "Content Miner". You read long, messy conversation logs and extract structured data.
CRITICAL: If the input carries a [PART X/Y] marker it is one part of a larger whole. Extract everything present in this part only, independently of other parts; merging is handled by the orchestrator.
RULE: If a code block changes compared with an earlier version in the conversation, add a "code_evolution_note" to the item.
OUTPUT JSON SCHEMA: { "extracted_items": [ { "core_idea": "...", "problem": "...", "solution": "...", "code_snippets": ["..."], "user_mood": "..." } ], "trace_log": ["..."] }
Return only the JSON object.`

const validatorInstructions = `ROLE: You are "Tech Validator". Audit the raw idea inventory produced by the Miner against its code and technical claims.
ANALYSIS: Idea/code consistency: if an idea claims to be "modular" but the code is monolithic, flag it as "High Tech Debt".
Code quality: do the code blocks follow modern standards (SOLID, async, ...)?
OUTPUT: Return a JSON object with a "tech_evaluation" key: { "integrity_score": 1-100, "refactoring_needs": "...", "architecture_type": "Microservices/Monolith/Serverless/..." }.`

const strategistInstructions = `ROLE: You are "GTM Strategist". Take the technical data and evaluate it against market dynamics as of [CURRENT_DATE].
ANALYSIS: How does this idea position within current market trends? Competitor, complement, or weak for its market?
Does the market need this product right now (market readiness)?
OUTPUT: Return a JSON object with a "market_intelligence" key: { "market_fit_score": 1-100, "competitors": [...], "pivot_suggestion": "..." }.`

const clusteringInstructions = `ROLE: You are "Tech Validator". Read the analysis summaries and group them by product or concept.
Each summary has a "file" name and its "concepts". Use the file names exactly as given.
OUTPUT: { "clusters": { "<cluster name>": ["<file>.json", ...], ... } }`

const architectInstructions = `ROLE: You are "Grand Architect". You are given one topic cluster and every analysis file that belongs to it.
GOAL: Combine all the partial ideas in the cluster into a coherent, complete product architecture and map how the ideas evolved.
Define the final product: what was this cluster really trying to build, and what can be extracted from it?
OUTPUT: A JSON object with a detailed "markdown_report" string, plus structured findings such as gap-filling code, services, a whitepaper outline and a GTM strategy.`

// DefaultProfiles returns the built-in instruction profiles for every stage.
func DefaultProfiles() Profiles {
	return Profiles{
		domain.StageMiner:      {Stage: domain.StageMiner, Instructions: minerInstructions},
		domain.StageValidator:  {Stage: domain.StageValidator, Instructions: validatorInstructions},
		domain.StageStrategist: {Stage: domain.StageStrategist, Instructions: strategistInstructions, Retrieval: true},
		domain.StageClusterer:  {Stage: domain.StageClusterer, Instructions: clusteringInstructions},
		domain.StageArchitect:  {Stage: domain.StageArchitect, Instructions: architectInstructions},
	}
}

// LoadProfiles returns the default profiles overlaid with any stages defined
// in the YAML file at path. An empty path yields the defaults.
//
//	Strategist:
//	  instructions: "..."
//	  retrieval: true
func LoadProfiles(path string) (Profiles, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles file: %w", err)
	}
	var overrides map[string]profileOverride
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing profiles file: %w", err)
	}

	known := make(map[string]bool, len(domain.AllStages))
	for _, s := range domain.AllStages {
		known[string(s)] = true
	}
	for name, o := range overrides {
		if !known[name] {
			return nil, fmt.Errorf("profiles file: unknown stage %q", name)
		}
		stage := domain.StageName(name)
		prof := profiles[stage]
		if strings.TrimSpace(o.Instructions) != "" {
			prof.Instructions = o.Instructions
		}
		if o.Retrieval != nil {
			prof.Retrieval = *o.Retrieval
		}
		profiles[stage] = prof
	}
	return profiles, nil
}
