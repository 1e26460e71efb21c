package planner

import (
	"math"
	"regexp"
	"strings"
)

// Level grades how much thinking effort a prompt demands. It drives both the
// sampling parameters and whether the retrieval pipeline runs at all.
type Level string

const (
	LevelMinimal  Level = "MINIMAL"
	LevelSimple   Level = "SIMPLE"
	LevelModerate Level = "MODERATE"
	LevelComplex  Level = "COMPLEX"
)

// SamplingParams are the per-turn generation knobs derived from the prompt.
type SamplingParams struct {
	Temperature     float64
	TopP            float64
	MinP            float64
	TopK            int
	RepeatPenalty   float64
	PresencePenalty float64
}

// Analysis is the output of scoring one user prompt.
type Analysis struct {
	Score      float64
	Creativity float64
	Level      Level
	Params     SamplingParams
	BaseCtx    int
}

// Verbs and nouns indicating a high-effort thinking task.
var taskIntensityKeywords = []string{
	"analyze", "analysis", "compare", "contrast", "explain", "why",
	"describe", "summarize", "refactor", "debug", "solve", "math",
	"calculate", "logic", "proof", "architecture", "impact", "relationship",
	"consequence", "difference", "history", "scientific", "detailed",
	"step-by-step", "implementation", "optimization", "comprehensive",
	"advanced", "complex",
}

// Technical and formal domain markers, these predict determinism.
var deterministicDomainKeywords = []string{
	"code", "coding", "program", "function", "class", "variable",
	"interface", "api", "json", "csv", "table", "strict", "sql",
	"database", "python", "javascript", "c++", "rust", "equation",
	"formula", "data", "deep", "neural",
}

// Markers of divergent thinking, these predict creativity.
var creativeIntentKeywords = []string{
	"story", "poem", "imagine", "joke", "funny", "metaphor",
	"analogy", "brainstorm", "lyrics", "fiction", "plot", "character",
	"dialogue", "creative writing", "improv", "scenario", "beautiful",
	"narrative", "myth", "legend", "haiku", "sonnet", "fable", "creative",
	"fictional", "abstract", "artistic", "personality", "whimsical",
}

// Conversational fillers that predict a low-effort response.
var simpleKeywords = []string{
	"hi", "hello", "hey", "thanks", "thank", "bye", "goodbye",
	"ok", "okay", "cool", "nice", "yep", "nope", "yes", "no",
}

var (
	alnumOnly    = regexp.MustCompile(`[^a-zA-Z0-9]`)
	sentenceEnds = regexp.MustCompile(`[.!?]+`)
	bulletLine   = regexp.MustCompile(`(?m)^\s*[-*•]\s+`)
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func countHits(lower string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	return hits
}

// readabilityScore is the Automated Readability Index normalised to [0,1].
// It gauges the linguistic sophistication of the request.
func readabilityScore(text string) float64 {
	characters := float64(len(alnumOnly.ReplaceAllString(text, "")))
	words := float64(len(strings.Fields(text)))
	if words == 0 {
		return 0
	}
	sentences := float64(len(sentenceEnds.FindAllString(text, -1)))
	if sentences == 0 {
		sentences = 1
	}
	ari := 4.71*(characters/words) + 0.5*(words/sentences) - 21.43
	return clamp01(ari / 14)
}

// structuralScore detects structural markers in the prompt.
func structuralScore(text string) float64 {
	score := 0.0
	if q := strings.Count(text, "?"); q > 1 {
		score += 0.5 * math.Min(float64(q), 2)
	}
	if strings.Contains(text, "```") {
		score += 0.7
	}
	if bulletLine.MatchString(text) {
		score += 0.4
	}
	return math.Min(1, score)
}

// complexityMetrics computes the raw complexity and creativity scores.
func complexityMetrics(input string) (complexity, creativity float64) {
	lower := strings.ToLower(input)

	intensityHits := countHits(lower, taskIntensityKeywords)
	detDomainHits := countHits(lower, deterministicDomainKeywords)
	intent := float64(intensityHits)*0.4 + float64(detDomainHits)*0.3

	wordCount := len(strings.Fields(input))
	lenScore := 0.0
	if wordCount > 0 {
		lenScore = math.Min(1, math.Log(float64(wordCount+1))/math.Log(80))
	}

	complexity = intent*0.5 + structuralScore(input)*0.25 +
		readabilityScore(input)*0.15 + lenScore*0.1

	// Filler words only dampen the score when nothing suggests a real task.
	if countHits(lower, simpleKeywords) > 0 && intensityHits == 0 &&
		detDomainHits == 0 && wordCount < 10 {
		complexity -= 0.4
	}

	creativeHits := countHits(lower, creativeIntentKeywords)
	creativeIntensity := 0.0
	if creativeHits > 0 {
		creativeIntensity = 0.4 + math.Min(float64(creativeHits-1), 3)*0.2
	}
	creativity = creativeIntensity - float64(detDomainHits)*0.3

	return round2(clamp01(complexity)), round2(clamp01(creativity))
}

// baseCtxForLevel maps the effort level to the context window the turn
// requests before the VRAM safety clamp.
func baseCtxForLevel(level Level) int {
	switch level {
	case LevelMinimal:
		return 1024
	case LevelSimple:
		return 2048
	case LevelModerate:
		return 4096
	default:
		return 8192
	}
}

// Analyze scores one prompt and derives the sampling parameters for the
// response. Pure arithmetic, no model calls.
func Analyze(input string) Analysis {
	if strings.TrimSpace(input) == "" {
		return Analysis{
			Level:   LevelMinimal,
			BaseCtx: baseCtxForLevel(LevelMinimal),
			Params: SamplingParams{
				Temperature:   0.1,
				TopP:          0.4,
				TopK:          20,
				RepeatPenalty: 1.05,
			},
		}
	}

	score, creativity := complexityMetrics(input)

	var level Level
	var basePenalty float64
	switch {
	case score <= 0.02:
		level, basePenalty = LevelMinimal, 1.05
	case score < 0.15:
		level, basePenalty = LevelSimple, 1.1
	case score < 0.45:
		level, basePenalty = LevelModerate, 1.15
	default:
		level, basePenalty = LevelComplex, 1.2
	}

	return Analysis{
		Score:      score,
		Creativity: creativity,
		Level:      level,
		BaseCtx:    baseCtxForLevel(level),
		Params: SamplingParams{
			Temperature:     round2(0.1 + creativity*0.7),
			TopP:            round2(0.4 + creativity*0.55),
			MinP:            round2(creativity * 0.1),
			TopK:            int(20 + creativity*80),
			RepeatPenalty:   round2(basePenalty + creativity*0.3),
			PresencePenalty: round2(creativity * 0.6),
		},
	}
}

// IsCreative reports whether the prompt has a strong creative intent.
func IsCreative(input string) bool {
	_, creativity := complexityMetrics(input)
	return creativity > 0.5
}
