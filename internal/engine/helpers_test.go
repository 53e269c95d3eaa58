package engine

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"boardroom/internal/domain"
)

func TestParseSynthesis(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantSummary string
		want        domain.Decision
	}{
		{
			name:        "fenced json",
			text:        "Here you go:\n```json\n{\"summary\":\"Cut costs.\",\"decision\":{\"title\":\"Freeze travel\",\"category\":\"cost\",\"human_approval_required\":false,\"success_metrics\":[\"-10% opex\"]}}\n```",
			wantSummary: "Cut costs.",
			want: domain.Decision{
				DecisionType: "strategy", Category: "cost", Title: "Freeze travel", Description: "Cut costs.",
				SuccessMetrics: json.RawMessage(`["-10% opex"]`), Status: "proposed", ApprovedBy: []string{},
			},
		},
		{
			name:        "not json",
			text:        "no idea",
			wantSummary: "Synthesis unavailable.",
			want: domain.Decision{
				DecisionType: "strategy", Category: "general", Title: "Decision: Q3 plan", Description: "Synthesis unavailable.",
				HumanApprovalRequired: true, Status: "proposed", ApprovedBy: []string{},
			},
		},
		{
			name:        "null fields default",
			text:        `{"summary":"  ","decision":{"decision_type":"hiring","expected_impact":null,"human_approval_required":true}}`,
			wantSummary: "Synthesis unavailable.",
			want: domain.Decision{
				DecisionType: "hiring", Category: "general", Title: "Decision: Q3 plan", Description: "Synthesis unavailable.",
				HumanApprovalRequired: true, Status: "proposed", ApprovedBy: []string{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, got := ParseSynthesis(tt.text, "Q3 plan")
			if summary != tt.wantSummary {
				t.Fatalf("summary = %q, want %q", summary, tt.wantSummary)
			}
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFingerprintIgnoresKeyOrder(t *testing.T) {
	a := domain.RecommendedAction{ID: "a1", Title: "Task", ActionType: ActionCreateKanbanTask}
	fp1, err := Fingerprint("ins-1", a, map[string]any{"title": "x", "priority": "high"})
	if err != nil {
		t.Fatal(err)
	}
	fp2, _ := Fingerprint("ins-1", a, map[string]any{"priority": "high", "title": "x"})
	fp3, _ := Fingerprint("ins-2", a, map[string]any{"priority": "high", "title": "x"})
	if fp1 != fp2 {
		t.Fatalf("fingerprint depends on key order")
	}
	if fp1 == fp3 {
		t.Fatalf("fingerprint ignores the insight")
	}
}

func TestIsExecutable(t *testing.T) {
	cases := []struct {
		action   string
		risk     string
		external bool
		want     bool
	}{
		{ActionCreateKanbanTask, "low", false, true},
		{ActionSendDirectMessage, "medium", false, true},
		{ActionScheduleMeeting, "Critical", false, false},
		{ActionCreateKanbanTask, "high", false, false},
		{ActionCreateKanbanTask, "low", true, false},
		{"post_to_slack", "low", false, false},
	}
	for _, c := range cases {
		if got := IsExecutable(c.action, c.risk, c.external); got != c.want {
			t.Errorf("IsExecutable(%s, %s, %v) = %v", c.action, c.risk, c.external, got)
		}
	}
}

func TestNormalizePriority(t *testing.T) {
	for in, want := range map[string]string{"ALTA": "high", "urgente": "urgent", "": "medium", "baixa": "low", "whatever": "medium"} {
		if got := NormalizePriority(in); got != want {
			t.Errorf("NormalizePriority(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTextHelperProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("clamped confidence stays in range", prop.ForAll(
		func(v float64) bool {
			c := ClampConfidence(v)
			return c >= 0 && c <= 100 && (v < 0 || v > 100 || c == v)
		},
		gen.Float64Range(-1000, 1000),
	))

	properties.Property("truncate keeps a valid prefix within n bytes", prop.ForAll(
		func(s string, n int) bool {
			out := Truncate(s, n)
			return len(out) <= n && strings.HasPrefix(s, out) && utf8.ValidString(out)
		},
		gen.AnyString(),
		gen.IntRange(1, 64),
	))

	properties.Property("cap lines never exceeds n non-blank lines", prop.ForAll(
		func(lines []string, n int) bool {
			out := CapLines(strings.Join(lines, "\n"), n)
			if out == "" {
				return true
			}
			got := strings.Split(out, "\n")
			for _, l := range got {
				if strings.TrimSpace(l) == "" {
					return false
				}
			}
			return len(got) <= n
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(1, 20),
	))

	properties.Property("synthesizer speaks last and others keep their order", prop.ForAll(
		func(idx []int, synth int) bool {
			var execs []domain.Executive
			for _, i := range idx {
				execs = append(execs, domain.Executive{Role: domain.Roles[i]})
			}
			target := domain.Roles[synth]
			out := OrderParticipants(execs, target)
			if len(out) != len(execs) {
				return false
			}
			var wantOthers, gotOthers []domain.Role
			for _, e := range execs {
				if e.Role != target {
					wantOthers = append(wantOthers, e.Role)
				}
			}
			seenSynth := false
			for _, e := range out {
				if e.Role == target {
					seenSynth = true
					continue
				}
				if seenSynth {
					return false
				}
				gotOthers = append(gotOthers, e.Role)
			}
			return cmp.Equal(wantOthers, gotOthers)
		},
		gen.SliceOf(gen.IntRange(0, len(domain.Roles)-1)),
		gen.IntRange(0, len(domain.Roles)-1),
	))

	properties.TestingRun(t)
}
