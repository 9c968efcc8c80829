package llm

import (
	"encoding/json"
	"math"
	"strings"

	"novel-orchestrator/internal/domain/entity"
	"novel-orchestrator/internal/workflow/node"
	"novel-orchestrator/pkg/metrics"
)

const neutralScore = 5.0

// Feedback 评估反馈
type Feedback struct {
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Summary      string   `json:"summary"`
}

// Evaluation 评估结果，分数范围 0-10
type Evaluation struct {
	Scores           map[string]float64 `json:"scores"`
	OverallScore     float64            `json:"overallScore"`
	Feedback         Feedback           `json:"feedback"`
	WordCount        int                `json:"wordCount"`
	ReadabilityLevel string             `json:"readabilityLevel"`
	Fallback         bool               `json:"fallback"`
}

type rawEvaluation struct {
	Scores           map[string]float64 `json:"scores"`
	OverallScore     *float64           `json:"overallScore"`
	Feedback         Feedback           `json:"feedback"`
	ReadabilityLevel string             `json:"readabilityLevel"`
}

// ParseEvaluation 从模型输出中提取结构化评估，失败时返回中性默认值
func ParseEvaluation(content string, criteria []string, text string) *Evaluation {
	eval := parseEvaluation(content)
	if eval == nil {
		eval = NeutralEvaluation(criteria)
		metrics.EvaluationParseFallback.Inc()
	}
	eval.WordCount = entity.CountWords(text)
	if eval.ReadabilityLevel == "" {
		eval.ReadabilityLevel = EstimateReadability(text)
	}
	metrics.EvaluationScore.WithLabelValues(boolLabel(eval.Fallback)).Observe(eval.OverallScore)
	return eval
}

func parseEvaluation(content string) *Evaluation {
	raw := node.ExtractJSONObject(content)
	if !strings.HasPrefix(raw, "{") {
		return nil
	}
	var r rawEvaluation
	if err := json.Unmarshal([]byte(raw), &r); err != nil || len(r.Scores) == 0 {
		return nil
	}

	scores := make(map[string]float64, len(r.Scores))
	sum := 0.0
	for k, v := range r.Scores {
		v = clampScore(v)
		scores[k] = v
		sum += v
	}
	overall := sum / float64(len(scores))
	if r.OverallScore != nil {
		overall = clampScore(*r.OverallScore)
	}
	fb := r.Feedback
	if fb.Strengths == nil {
		fb.Strengths = []string{}
	}
	if fb.Improvements == nil {
		fb.Improvements = []string{}
	}
	return &Evaluation{
		Scores:           scores,
		OverallScore:     math.Round(overall*10) / 10,
		Feedback:         fb,
		ReadabilityLevel: strings.ToLower(strings.TrimSpace(r.ReadabilityLevel)),
	}
}

// NeutralEvaluation 中性默认评估
func NeutralEvaluation(criteria []string) *Evaluation {
	if len(criteria) == 0 {
		criteria = DefaultCriteria
	}
	scores := make(map[string]float64, len(criteria))
	for _, c := range criteria {
		scores[c] = neutralScore
	}
	return &Evaluation{
		Scores:       scores,
		OverallScore: neutralScore,
		Feedback: Feedback{
			Strengths:    []string{"The text was produced without errors."},
			Improvements: []string{"Automatic evaluation was unavailable; review the text manually."},
			Summary:      "Neutral scores assigned because the evaluation could not be parsed.",
		},
		Fallback: true,
	}
}

// EstimateReadability 按平均句长粗略估计可读性
func EstimateReadability(text string) string {
	sentences := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?', '。', '！', '？':
			sentences++
		}
	}
	if sentences == 0 {
		sentences = 1
	}
	avg := float64(entity.CountWords(text)) / float64(sentences)
	switch {
	case avg < 12:
		return "easy"
	case avg < 22:
		return "moderate"
	default:
		return "advanced"
	}
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(10, v))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
