package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/PolyCortex/consts"
	"github.com/dyike/PolyCortex/internal/llm"
	"github.com/dyike/PolyCortex/internal/logging"
	"github.com/dyike/PolyCortex/internal/tools"
	"github.com/dyike/PolyCortex/internal/utils"
	"github.com/dyike/PolyCortex/models"
)

// MinReasons is the number of distinct reasons a verdict needs to count.
const MinReasons = 3

// Outcome is the result of reviewing one candidate.
type Outcome struct {
	Phase      models.Phase    `json:"phase"`
	Accepted   bool            `json:"accepted"`
	Verdict    *models.Verdict `json:"verdict,omitempty"`
	Violations []string        `json:"violations,omitempty"`
}

// Critique is the feedback handed back to the executor on rejection.
func (o *Outcome) Critique() string {
	var b strings.Builder
	switch o.Phase {
	case models.PhaseResearch:
		b.WriteString("Research needs improvement:")
	case models.PhaseAnalysis:
		b.WriteString("Analysis needs improvement:")
	default:
		b.WriteString("Trade decision needs improvement:")
	}
	for _, v := range o.Violations {
		b.WriteString("\n- ")
		b.WriteString(v)
	}
	if o.Verdict != nil && o.Verdict.ImprovementInstructions != "" {
		b.WriteString("\n")
		b.WriteString(o.Verdict.ImprovementInstructions)
	}
	return b.String()
}

// ToolMessage answers the terminal call with the review result. The verdict
// and any rule violations travel in Extra under the artifact key.
func (o *Outcome) ToolMessage(call schema.ToolCall) *schema.Message {
	status, content := consts.ToolStatusError, o.Critique()
	if o.Accepted {
		status = consts.ToolStatusSuccess
		content = "accepted"
		if o.Verdict != nil {
			content = strings.Join(o.Verdict.Reasons, "\n")
		}
	}
	msg := tools.Result(call, content, status)
	msg.Extra[consts.ExtraPhase] = string(o.Phase)
	msg.Extra[consts.ExtraArtifact] = o
	return msg
}

type judgeProfile struct {
	subject string
	goal    string
	checker string
}

var judges = map[models.Phase]judgeProfile{
	models.PhaseResearch: {"the research gathered", "proceed with market analysis", "reflection/research"},
	models.PhaseAnalysis: {"a market analysis", "make a trading decision", "reflection/analysis"},
	models.PhaseTrade:    {"a trade decision", "execute", "reflection/trade"},
}

// Reviewer is the validator behind every reflect node.
type Reviewer struct {
	engine llm.Engine
}

func NewReviewer(engine llm.Engine) *Reviewer {
	return &Reviewer{engine: engine}
}

// Review judges the candidate of the current phase. The trade phase runs the
// deterministic rules first and only consults the judge when they pass, so a
// rejection by the rules costs no model call. Engine failures are returned
// unchanged and end the run.
func (r *Reviewer) Review(ctx context.Context, st *models.WorkflowState) (*Outcome, error) {
	out := &Outcome{Phase: st.Phase}
	var candidate any
	switch st.Phase {
	case models.PhaseResearch:
		if st.ResearchInfo == nil {
			return nil, fmt.Errorf("review research: no candidate")
		}
		candidate = st.ResearchInfo
	case models.PhaseAnalysis:
		if st.AnalysisInfo == nil {
			return nil, fmt.Errorf("review analysis: no candidate")
		}
		candidate = st.AnalysisInfo
	case models.PhaseTrade:
		out.Violations = CheckTrade(st, st.TradeInfo)
		if len(out.Violations) > 0 {
			logging.FromContext(ctx).Info("trade rejected by rules", "violations", len(out.Violations))
			return out, nil
		}
		candidate = st.TradeInfo
	default:
		return nil, fmt.Errorf("review: phase %q has no validator", st.Phase)
	}

	verdict, err := r.judge(ctx, st, candidate)
	if err != nil {
		return nil, err
	}
	out.Verdict = verdict
	out.Accepted = verdict.IsSatisfactory
	return out, nil
}

func (r *Reviewer) judge(ctx context.Context, st *models.WorkflowState, candidate any) (*models.Verdict, error) {
	profile := judges[st.Phase]
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(utils.MustLoadPrompt("reflection/system")),
		schema.MessagesPlaceholder("history", false),
		schema.UserMessage(utils.MustLoadPrompt(profile.checker)),
	)

	history := st.Messages
	if len(history) > 0 {
		history = history[:len(history)-1]
	}
	msgs, err := tpl.Format(ctx, map[string]any{
		"subject":         profile.subject,
		"goal":            profile.goal,
		"market_data":     utils.JSONBlock(marketContext(st)),
		"history":         history,
		"candidate":       utils.JSONBlock(candidate),
		"available_funds": fmt.Sprintf("%.2f", st.AvailableFunds),
	})
	if err != nil {
		return nil, fmt.Errorf("format %s review prompt: %w", st.Phase, err)
	}

	var v models.Verdict
	if err := llm.InvokeStructured(ctx, r.engine, msgs, tools.VerdictTool(), &v); err != nil {
		return nil, fmt.Errorf("%s judge: %w", st.Phase, err)
	}
	return normalize(&v), nil
}

// normalize drops blank reasons and rejects verdicts that give fewer than
// MinReasons of them.
func normalize(v *models.Verdict) *models.Verdict {
	reasons := v.Reasons[:0]
	for _, r := range v.Reasons {
		if r = strings.TrimSpace(r); r != "" {
			reasons = append(reasons, r)
		}
	}
	v.Reasons = reasons
	if len(v.Reasons) < MinReasons && v.IsSatisfactory {
		v.IsSatisfactory = false
		if v.ImprovementInstructions == "" {
			v.ImprovementInstructions = fmt.Sprintf("The review gave %d reasons, at least %d are required. Strengthen the candidate so it can be justified in detail.", len(v.Reasons), MinReasons)
		}
	}
	return v
}

// marketContext is the market view shared by every judge.
func marketContext(st *models.WorkflowState) map[string]any {
	ctx := map[string]any{
		"market_id":       st.MarketID,
		"positions":       st.Positions,
		"available_funds": st.AvailableFunds,
	}
	if m := st.MarketData; m != nil {
		ctx["question"] = m.Question
		ctx["description"] = m.EnrichedDescription()
		ctx["outcomes"] = m.Outcomes
		ctx["outcome_prices"] = m.OutcomePrices
		ctx["token_ids"] = m.TokenIDs
	}
	return ctx
}
