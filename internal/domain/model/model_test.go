package model_test

import (
	"strings"
	"testing"
	"time"

	model "github.com/okian/sieve/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestItemText(t *testing.T) {
	convey.Convey("Given an item", t, func() {
		it := model.Item{ID: "1", Title: "AI tutors", Abstract: "We study adoption.", Keywords: "llm; school"}

		convey.Convey("Then text joins title, abstract and keywords", func() {
			convey.So(it.Text(), convey.ShouldEqual, "AI tutors We study adoption. llm; school")
		})
	})
}

func TestResultSetSlot(t *testing.T) {
	convey.Convey("Given a fresh T3 result", t, func() {
		r := model.NewResult(model.Item{ID: "7", Title: "t", Year: "2024", Source: "Scopus"}, model.T3)

		convey.Convey("Then header fields are copied and consensus is uncertain", func() {
			convey.So(r.ID, convey.ShouldEqual, "7")
			convey.So(r.Source, convey.ShouldEqual, "Scopus")
			convey.So(r.Consensus, convey.ShouldEqual, model.Consensus("uncertain"))
			convey.So(r.A.Used() || r.B.Used(), convey.ShouldBeFalse)
		})

		convey.Convey("When both slots are set", func() {
			r.SetSlot(model.SlotA, model.Outcome{Decision: model.Include, Confidence: 0.9})
			r.SetSlot(model.SlotB, model.Outcome{Decision: model.Exclude, Confidence: 0.8})

			convey.Convey("Then consensus is recomputed", func() {
				convey.So(r.Consensus, convey.ShouldEqual, model.Consensus("conflict"))
			})

			convey.Convey("And a later overwrite updates it again", func() {
				r.SetSlot(model.SlotB, model.Outcome{Decision: model.Include})
				convey.So(r.Consensus, convey.ShouldEqual, model.Consensus("include"))
				convey.So(r.Slot(model.SlotA).Confidence, convey.ShouldEqual, 0.9)
			})
		})

		convey.Convey("When a slot fails", func() {
			r.SetSlot(model.SlotA, model.TimeoutOutcome("codex(gpt-5.1-codex-mini)", 300*time.Second, "gpt-5.1-codex-mini"))
			r.SetSlot(model.SlotB, model.Outcome{Decision: model.Include})

			convey.Convey("Then only that slot is reported failed", func() {
				convey.So(r.FailedSlots(), convey.ShouldResemble, []model.Slot{model.SlotA})
				convey.So(r.Consensus, convey.ShouldEqual, model.Consensus("include"))
			})
		})
	})
}

func TestSlotsAndTiers(t *testing.T) {
	convey.Convey("Given slot and tier parsing", t, func() {
		convey.So(model.SlotA.Other(), convey.ShouldEqual, model.SlotB)
		convey.So(model.SlotB.Other(), convey.ShouldEqual, model.SlotA)

		s, ok := model.ParseSlot("b")
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(s, convey.ShouldEqual, model.SlotB)
		_, ok = model.ParseSlot("C")
		convey.So(ok, convey.ShouldBeFalse)

		tier, ok := model.ParseTier(" t2 ")
		convey.So(ok, convey.ShouldBeTrue)
		convey.So(tier, convey.ShouldEqual, model.T2)
		_, ok = model.ParseTier("T4")
		convey.So(ok, convey.ShouldBeFalse)
	})
}

func TestClassifyFailure(t *testing.T) {
	convey.Convey("Given failure outcomes built by the constructors", t, func() {
		cases := []struct {
			outcome model.Outcome
			want    model.FailureKind
		}{
			{model.CrashOutcome("gemini(gemini-2.5-pro)", "segfault", "gemini-2.5-pro"), model.FailureCrash},
			{model.CrashOutcome("claude", "exit status 1", "claude"), model.FailureCrash},
			{model.CrashOutcome("gemini", "", ""), model.FailureCrash},
			{model.TimeoutOutcome("codex(m1)", 90*time.Second, "m1"), model.FailureTimeout},
			{model.EmptyOutcome("codex", "no output", ""), model.FailureEmpty},
			{model.ExhaustedOutcome("gemini(gemini-2.5-flash)", "Quota exceeded for model", "gemini-2.5-flash"), model.FailureExhausted},
			{model.ParseOutcome("I think this paper is relevant", "m"), model.FailureParse},
		}

		convey.Convey("Then the persisted rationale maps back to the same kind", func() {
			for _, tc := range cases {
				convey.So(tc.outcome.Decision, convey.ShouldEqual, model.Uncertain)
				convey.So(tc.outcome.ExcludeCode, convey.ShouldEqual, model.DefaultExcludeCode)
				convey.So(model.ClassifyFailure(tc.outcome.Decision, tc.outcome.Rationale, tc.outcome.ModelUsed), convey.ShouldEqual, tc.want)

				stored := tc.outcome
				stored.Failure = model.FailureNone
				convey.So(stored.Kind(), convey.ShouldEqual, tc.want)
				convey.So(stored.Failed(), convey.ShouldBeTrue)
			}
		})

		convey.Convey("Then the timeout tag carries whole seconds", func() {
			o := model.TimeoutOutcome("codex", 1500*time.Millisecond, "")
			convey.So(o.Rationale, convey.ShouldEqual, "codex timed out after 2s")
		})
	})

	convey.Convey("Given rationales that are not failures", t, func() {
		convey.Convey("Then decisive decisions are never failed", func() {
			convey.So(model.ClassifyFailure(model.Include, "codex failed: x", ""), convey.ShouldEqual, model.FailureNone)
		})

		convey.Convey("Then ordinary uncertain rationales are not failures", func() {
			convey.So(model.ClassifyFailure(model.Uncertain, "The abstract is too short to decide.", "m1"), convey.ShouldEqual, model.FailureNone)
			o := model.Outcome{Decision: model.Uncertain, Rationale: "The study's intervention failed to show effects"}
			convey.So(o.Failed(), convey.ShouldBeFalse)
		})

		convey.Convey("Then judge rationales shaped like tags stay judgments", func() {
			for _, r := range []string{
				"Recruitment failed: abstract gives no sample size.",
				"Abstract empty: only title available.",
				"Budget exhausted: the intervention stopped early.",
			} {
				convey.So(model.ClassifyFailure(model.Uncertain, r, "gemini-2.5-pro"), convey.ShouldEqual, model.FailureNone)
				o := model.Outcome{Decision: model.Uncertain, Rationale: r, ModelUsed: "gemini-2.5-pro"}
				convey.So(o.Failed(), convey.ShouldBeFalse)
			}
		})

		convey.Convey("Then a tag whose label disagrees with the recorded model is not a failure", func() {
			convey.So(model.ClassifyFailure(model.Uncertain, "gemini failed: nothing", "gemini-2.5-pro"), convey.ShouldEqual, model.FailureNone)
			convey.So(model.ClassifyFailure(model.Uncertain, "codex(m1) timed out after 300s", "m2"), convey.ShouldEqual, model.FailureNone)
			convey.So(model.ClassifyFailure(model.Uncertain, "codex(m1) timed out after 300s", "m1"), convey.ShouldEqual, model.FailureTimeout)
		})

		convey.Convey("Then unused slots are not failures", func() {
			convey.So(model.Outcome{}.Failed(), convey.ShouldBeFalse)
		})
	})

	convey.Convey("Given a substituted failure", t, func() {
		r := model.SubstitutePrefix("codex", "gpt-5.3-codex-spark") + "codex(gpt-5.3-codex-spark) timed out after 300s"

		convey.Convey("Then the substitution prefix is skipped", func() {
			convey.So(model.ClassifyFailure(model.Uncertain, r, "gpt-5.3-codex-spark"), convey.ShouldEqual, model.FailureTimeout)
		})
	})
}

func TestSnippetAndLabel(t *testing.T) {
	convey.Convey("Given long stderr", t, func() {
		long := strings.Repeat("é", 500)

		convey.Convey("Then snippets are cut to the rune limit", func() {
			convey.So([]rune(model.Snippet(long)), convey.ShouldHaveLength, model.MaxSnippet)
			convey.So(model.Snippet("  short \n"), convey.ShouldEqual, "short")
		})
	})

	convey.Convey("Given labels", t, func() {
		convey.So(model.Label("codex", "m1"), convey.ShouldEqual, "codex(m1)")
		convey.So(model.Label("claude", ""), convey.ShouldEqual, "claude")
	})
}
