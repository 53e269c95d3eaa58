package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"boardroom/internal/domain"
	"boardroom/internal/llm"
)

const advisoryPreamble = `Operating rules:
- You work in advisory mode. Nothing is executed automatically in third-party systems.
- Calls to action and drafts only run after a human confirms them.
- Never invent numbers, clients or sources. If data is missing, say exactly what is missing.
- Answer with: (1) a short diagnosis, (2) 3 priority actions, (3) 1 alert, (4) how to measure the result.`

const marketRules = `Market rules: use only the market figures given above and cite their sources. If market context is
unavailable, say so and do not estimate market numbers.`

const noMarket = `Market research: not used for this answer. Do not invent market numbers or external sources.`

const synthesisInstructions = `You are closing the meeting. Reply with a single JSON object:
{"summary": string, "decision": {"decision_type": string, "category": string, "title": string,
"description": string, "rationale": string, "options_considered": array, "chosen_option": string,
"expected_impact": object, "success_metrics": array, "implementation_plan": array,
"human_approval_required": boolean}}`

const chatFollowUp = "Meanwhile, tell me which area to prioritize (cash, operations, clients, marketing, technology or people) and I will structure next steps with the data available."

const (
	hintNotConfigured = "AI integrations are not configured, so I cannot analyze this right now. Ask an administrator to set an API key for OpenRouter, Anthropic, OpenAI or Gemini."
	hintChatFailed    = "Could not get a response from the AI provider right now. Please try again in a moment."
	hintMeetingConfig = "AI integrations are not configured. Set an API key for OpenRouter, Anthropic, OpenAI or Gemini and run the meeting again."
	hintMeetingFailed = "Failed to run the meeting now. Try again."
)

func meetingInstructions(maxLines int) string {
	return fmt.Sprintf(`You are speaking in an executive meeting. Use at most %d lines. Bring the numbers from your area,
name the risk you see, and when your view conflicts with a colleague's, state the trade-off explicitly.`, maxLines)
}

// TaskForRole picks the generation task hint for a role.
func TaskForRole(role domain.Role) llm.Task {
	switch role {
	case domain.RoleCHRO:
		return llm.TaskHR
	case domain.RoleCMO, domain.RoleCEO:
		return llm.TaskStrategy
	default:
		return llm.TaskAnalysis
	}
}

var predictionKinds = map[domain.Role][]string{
	domain.RoleCFO:  {domain.KindPaymentRisk, domain.KindRevenue, domain.KindLTV, domain.KindChurn},
	domain.RoleCCO:  {domain.KindChurn, domain.KindPaymentRisk, domain.KindLTV},
	domain.RoleCOO:  {domain.KindDemandCapacity, domain.KindDelay, domain.KindBudgetOverrun},
	domain.RoleCMO:  {domain.KindConversion, domain.KindChurn, domain.KindRevenue},
	domain.RoleCTO:  {domain.KindDemandCapacity, domain.KindPerformance},
	domain.RoleCHRO: {domain.KindPerformance, domain.KindDemandCapacity},
}

var defaultPredictionKinds = []string{
	domain.KindPaymentRisk, domain.KindChurn, domain.KindRevenue, domain.KindDemandCapacity, domain.KindBudgetOverrun, domain.KindConversion,
}

// PredictionKinds returns the prediction kinds relevant to role, in priority order.
func PredictionKinds(role domain.Role) []string {
	if kinds, ok := predictionKinds[role]; ok {
		return append([]string(nil), kinds...)
	}
	return append([]string(nil), defaultPredictionKinds...)
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// CapLines keeps the first n non-blank lines of s.
func CapLines(s string, n int) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, strings.TrimRight(line, " \t\r"))
		if n > 0 && len(out) == n {
			break
		}
	}
	return strings.Join(out, "\n")
}

func hasURL(s string) bool {
	return strings.Contains(s, "http://") || strings.Contains(s, "https://")
}
