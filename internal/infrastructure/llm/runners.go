package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codefix/backend/internal/core/ports"
	"github.com/codefix/backend/internal/domain"
	"github.com/codefix/backend/internal/infrastructure/logger"
)

const architectSystem = `You are a senior software architect focused on overall code structure.
Analyze the submitted file and report on: module layout, responsibilities,
coupling, error-handling strategy, and structural risks. Be concrete and
reference line-level evidence. Respond in plain text.`

const reviewerSystem = `You are a professional code reviewer focused on quality and security.
Given the code and the architect's structural report, list concrete defects:
bugs, unsafe patterns, missing validation, resource leaks, and style issues
that affect correctness. Number each finding. Respond in plain text.`

const optimizerSystem = `You are a code optimization expert. Using the architect and reviewer
reports, produce a corrected version of the file.
Respond with a single JSON object and nothing else:
{"fixed_code": "<full corrected file>", "summary": "<what changed and why>", "quality_score": <0-10>}`

// ArchitectRunner produces the structural analysis report.
type ArchitectRunner struct {
	client *Client
	logger *logger.Logger
}

func NewArchitectRunner(client *Client, log *logger.Logger) *ArchitectRunner {
	return &ArchitectRunner{client: client, logger: log}
}

var _ ports.StageRunner = (*ArchitectRunner)(nil)

func (r *ArchitectRunner) Run(ctx context.Context, sc *ports.StageContext) (*ports.StageResult, error) {
	user := fmt.Sprintf("File: %s\n\n```\n%s\n```", sc.FileName, sc.OriginalContent)
	report, err := r.client.Chat(ctx, architectSystem, user)
	if err != nil {
		return nil, fmt.Errorf("architect analysis: %w", err)
	}

	sc.ArchitectReport = report
	return &ports.StageResult{
		Report:  report,
		Metrics: domain.JSONB{"report_len": len(report)},
	}, nil
}

// ReviewerRunner produces the defect report, consuming the architect output.
type ReviewerRunner struct {
	client *Client
	logger *logger.Logger
}

func NewReviewerRunner(client *Client, log *logger.Logger) *ReviewerRunner {
	return &ReviewerRunner{client: client, logger: log}
}

var _ ports.StageRunner = (*ReviewerRunner)(nil)

func (r *ReviewerRunner) Run(ctx context.Context, sc *ports.StageContext) (*ports.StageResult, error) {
	user := fmt.Sprintf(
		"File: %s\n\nArchitect report:\n%s\n\nCode:\n```\n%s\n```",
		sc.FileName, sc.ArchitectReport, sc.OriginalContent,
	)
	report, err := r.client.Chat(ctx, reviewerSystem, user)
	if err != nil {
		return nil, fmt.Errorf("code review: %w", err)
	}

	sc.ReviewerReport = report
	return &ports.StageResult{
		Report:  report,
		Metrics: domain.JSONB{"report_len": len(report)},
	}, nil
}

// OptimizerRunner generates the fixed file, consuming both reports.
type OptimizerRunner struct {
	client *Client
	logger *logger.Logger
}

func NewOptimizerRunner(client *Client, log *logger.Logger) *OptimizerRunner {
	return &OptimizerRunner{client: client, logger: log}
}

var _ ports.StageRunner = (*OptimizerRunner)(nil)

type optimizerOutput struct {
	FixedCode    string  `json:"fixed_code"`
	Summary      string  `json:"summary"`
	QualityScore float64 `json:"quality_score"`
}

func (r *OptimizerRunner) Run(ctx context.Context, sc *ports.StageContext) (*ports.StageResult, error) {
	user := fmt.Sprintf(
		"File: %s\n\nArchitect report:\n%s\n\nReviewer report:\n%s\n\nOriginal code:\n```\n%s\n```",
		sc.FileName, sc.ArchitectReport, sc.ReviewerReport, sc.OriginalContent,
	)
	raw, err := r.client.Chat(ctx, optimizerSystem, user)
	if err != nil {
		return nil, fmt.Errorf("optimization: %w", err)
	}

	out, err := parseOptimizerOutput(raw)
	if err != nil {
		r.logger.Errorw("optimizer_parse_failed", "task_id", sc.TaskID, "error", err)
		return nil, fmt.Errorf("optimization: %w", err)
	}

	sc.FixedContent = out.FixedCode
	sc.OptimizerSummary = out.Summary
	sc.QualityScore = out.QualityScore

	return &ports.StageResult{
		Report: out.Summary,
		Metrics: domain.JSONB{
			"quality_score": out.QualityScore,
			"fixed_len":     len(out.FixedCode),
		},
	}, nil
}

// parseOptimizerOutput tolerates models that wrap the JSON object in a
// markdown fence or surrounding prose.
func parseOptimizerOutput(raw string) (*optimizerOutput, error) {
	candidate := strings.TrimSpace(raw)
	if i := strings.Index(candidate, "{"); i >= 0 {
		if j := strings.LastIndex(candidate, "}"); j > i {
			candidate = candidate[i : j+1]
		}
	}

	var out optimizerOutput
	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		return nil, fmt.Errorf("invalid optimizer output: %w", err)
	}
	if out.FixedCode == "" {
		return nil, fmt.Errorf("optimizer output contains no fixed code")
	}
	return &out, nil
}
