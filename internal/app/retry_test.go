package app_test

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/okian/sieve/internal/adapters/checkpoint"
	"github.com/okian/sieve/internal/adapters/judge"
	"github.com/okian/sieve/internal/app"
	"github.com/okian/sieve/internal/config"
	"github.com/okian/sieve/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	codexMini  = "gpt-5.1-codex-mini"
	codexSpark = "gpt-5.3-codex-spark"
)

var (
	decisiveB = model.Outcome{Decision: model.Exclude, Confidence: 0.75, ExcludeCode: "E4", Rationale: "no outcome measured", ModelUsed: "gemini-2.5-pro"}
	timeoutA  = model.TimeoutOutcome("codex("+codexMini+")", 300*time.Second, codexMini)
	timeoutB  = model.TimeoutOutcome("gemini(gemini-2.5-pro)", 300*time.Second, "gemini-2.5-pro")
	crashB    = model.CrashOutcome("gemini(gemini-2.5-pro)", "boom", "gemini-2.5-pro")
	quotaA    = model.ExhaustedOutcome("codex("+codexMini+")", `matched "usage limit"`, codexMini)
)

func t3Result(id string, a, b model.Outcome) model.Result {
	r := model.NewResult(model.Item{ID: id, Title: "Title " + id, Year: "2022"}, model.T3)
	r.SetSlot(model.SlotA, a)
	r.SetSlot(model.SlotB, b)
	return r
}

func t2Result(id string, b model.Outcome) model.Result {
	r := model.NewResult(model.Item{ID: id, Title: "Title " + id}, model.T2)
	r.SetSlot(model.SlotB, b)
	return r
}

func exhausted(c judge.Call) model.Outcome {
	return model.ExhaustedOutcome(model.Label(c.Provider, c.Model), `matched "usage limit"`, c.Model)
}

func seed(store checkpoint.Store, results ...model.Result) {
	if err := store.Save(context.Background(), results); err != nil {
		panic(err)
	}
}

func planIDs(results []model.Result) []string {
	var ids []string
	for _, t := range app.Plan(results) {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestPlan(t *testing.T) {
	Convey("Given results with every kind of slot state", t, func() {
		t1 := model.NewResult(model.Item{ID: "t1"}, model.T1)
		t1.SetSlot(model.SlotA, model.Outcome{Decision: model.Exclude, Rationale: "T1 keyword pre-filter"})
		t1.SetSlot(model.SlotB, model.Outcome{Decision: model.Exclude, Rationale: "T1 keyword pre-filter"})
		genuine := model.Outcome{Decision: model.Uncertain, Rationale: "abstract too vague to judge", ModelUsed: codexMini}
		decisiveWithTag := model.Outcome{Decision: model.Include, Rationale: "codex failed: to find flaws", ModelUsed: codexMini}

		results := []model.Result{
			t1,
			t2Result("t2b", crashB),
			t3Result("t3a", timeoutA, decisiveB),
			t3Result("t3b", decisiveB, model.ParseOutcome("no json here", "gemini-2.5-pro")),
			t3Result("t3ab", quotaA, timeoutB),
			t3Result("ok-uncertain", genuine, decisiveB),
			t3Result("ok-tagged", decisiveWithTag, decisiveB),
		}

		tasks := app.Plan(results)

		Convey("Then only failed slots are selected and grouped by tier and slot", func() {
			So(len(tasks), ShouldEqual, 4)
			got := map[string]app.Group{}
			for _, tk := range tasks {
				got[tk.ID] = tk.Group
			}
			So(got, ShouldResemble, map[string]app.Group{
				"t2b":  app.GroupT2B,
				"t3a":  app.GroupT3A,
				"t3b":  app.GroupT3B,
				"t3ab": app.GroupT3AB,
			})
		})

		Convey("Then tasks keep their snapshot position and slot order", func() {
			So(tasks[0].Index, ShouldEqual, 1)
			So(tasks[0].Substitute(), ShouldBeTrue)
			So(tasks[3].Slots, ShouldResemble, []model.Slot{model.SlotA, model.SlotB})
			So(tasks[3].Substitute(), ShouldBeFalse)
		})
	})
}

func TestRetrySlotIsolation(t *testing.T) {
	Convey("Given a T3 result where A timed out and B decided", t, func() {
		cfg := testConfig(t.TempDir())
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		other := t3Result("other", decisiveB, decisiveB)
		seed(store, t3Result("x", timeoutA, decisiveB), other)
		before, err := store.Load(context.Background())
		So(err, ShouldBeNil)

		inv := &stubInvoker{}
		rc, err := app.NewRetryCoordinator(cfg, store, inv, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)

		after, err := store.Load(context.Background())
		So(err, ShouldBeNil)

		Convey("Then only A and the consensus change", func() {
			So(after[0].B, ShouldResemble, before[0].B)
			So(after[0].A.Decision, ShouldEqual, model.Include)
			So(after[0].A.ModelUsed, ShouldEqual, codexMini)
			So(after[0].Consensus, ShouldEqual, model.Consensus("conflict"))
			So(after[1], ShouldResemble, before[1])
		})

		Convey("Then the report counts one recovered T3/A task", func() {
			So(rep.Groups, ShouldResemble, map[app.Group]app.GroupCounts{
				app.GroupT3A: {Selected: 1, Recovered: 1},
			})
			So(rep.Recovered(), ShouldEqual, 1)
			So(rep.StillFailed(), ShouldEqual, 0)

			var buf bytes.Buffer
			So(rep.WriteYAML(&buf), ShouldBeNil)
			So(buf.String(), ShouldContainSubstring, "T3/A:")
			So(buf.String(), ShouldContainSubstring, "recovered: 1")
			So(rep.Lines(), ShouldResemble, []string{"T3/A   selected=1 recovered=1 undecided=0 still_failed=0"})
		})

		Convey("Then the prompt falls back to the stored header fields", func() {
			So(inv.prompts(), ShouldResemble, map[string]int{"x": 1})
		})
	})
}

func TestRetrySubstitute(t *testing.T) {
	Convey("Given a T2 result whose single slot B crashed", t, func() {
		cfg := testConfig(t.TempDir())
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		seed(store, t2Result("x", crashB))

		inv := &stubInvoker{}
		rc, err := app.NewRetryCoordinator(cfg, store, inv, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), []model.Item{{ID: "x", Title: "Title x"}})
		So(err, ShouldBeNil)

		Convey("Then the other slot's provider fills slot B with a disclosed substitution", func() {
			calls := inv.Calls()
			So(len(calls), ShouldEqual, 1)
			So(calls[0].Provider, ShouldEqual, "codex")
			So(calls[0].Model, ShouldEqual, codexMini)

			stored, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			r := stored[0]
			So(r.A.Used(), ShouldBeFalse)
			So(r.B.Decision, ShouldEqual, model.Include)
			So(r.B.Rationale, ShouldEqual, "codex-sub("+codexMini+"): fits")
			So(r.Consensus, ShouldEqual, model.Consensus("include"))
			So(rep.Groups[app.GroupT2B], ShouldResemble, app.GroupCounts{Selected: 1, Recovered: 1})
		})
	})

	Convey("Given a substitute that fails too", t, func() {
		cfg := testConfig(t.TempDir())
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		seed(store, t2Result("x", crashB))

		inv := &stubInvoker{fn: func(_ context.Context, c judge.Call) model.Outcome {
			return model.TimeoutOutcome(model.Label(c.Provider, c.Model), 300*time.Second, c.Model)
		}}
		rc, err := app.NewRetryCoordinator(cfg, store, inv, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)

		Convey("Then the prefixed failure is still recognized and selected again", func() {
			stored, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			So(stored[0].B.Rationale, ShouldEqual, "codex-sub("+codexMini+"): codex("+codexMini+") timed out after 300s")
			So(stored[0].B.Kind(), ShouldEqual, model.FailureTimeout)
			So(rep.StillFailed(), ShouldEqual, 1)
			So(planIDs(stored), ShouldResemble, []string{"x"})
		})
	})
}

func TestRetryUndecided(t *testing.T) {
	Convey("Given a failed slot whose judge now answers uncertain", t, func() {
		cfg := testConfig(t.TempDir())
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		seed(store, t3Result("x", timeoutA, decisiveB))

		inv := &stubInvoker{fn: func(_ context.Context, c judge.Call) model.Outcome {
			return model.Outcome{Decision: model.Uncertain, ExcludeCode: model.DefaultExcludeCode, Rationale: "Recruitment failed: abstract gives no sample size.", ModelUsed: c.Model}
		}}
		rc, err := app.NewRetryCoordinator(cfg, store, inv, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)

		Convey("Then the task is counted undecided, not recovered", func() {
			So(rep.Groups, ShouldResemble, map[app.Group]app.GroupCounts{
				app.GroupT3A: {Selected: 1, Undecided: 1},
			})
			So(rep.Recovered(), ShouldEqual, 0)
			So(rep.Undecided(), ShouldEqual, 1)
			So(rep.StillFailed(), ShouldEqual, 0)
			So(rep.Lines(), ShouldResemble, []string{"T3/A   selected=1 recovered=0 undecided=1 still_failed=0"})
		})

		Convey("Then the stored judgment is not mistaken for a failure", func() {
			stored, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			So(stored[0].A.Rationale, ShouldStartWith, "Recruitment failed:")
			So(stored[0].A.Failed(), ShouldBeFalse)
			So(app.Plan(stored), ShouldBeEmpty)
		})
	})
}

func TestRetryLadder(t *testing.T) {
	Convey("Given a provider whose first model is out of quota", t, func() {
		cfg := testConfig(t.TempDir())
		cfg.WorkerCount = 1
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		seed(store,
			t3Result("a1", timeoutA, decisiveB),
			t3Result("a2", quotaA, decisiveB),
			t3Result("a3", timeoutA, decisiveB),
			t3Result("a4", timeoutA, decisiveB),
			t3Result("a5", timeoutA, decisiveB),
		)
		inv := &stubInvoker{fn: func(_ context.Context, c judge.Call) model.Outcome {
			if c.Model == codexMini {
				return exhausted(c)
			}
			return include(c)
		}}
		rc, err := app.NewRetryCoordinator(cfg, store, inv, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)

		Convey("Then the exhausted model is tried once and later calls start at the next rung", func() {
			perModel := map[string]int{}
			for _, c := range inv.Calls() {
				perModel[c.Model]++
			}
			So(perModel, ShouldResemble, map[string]int{codexMini: 1, codexSpark: 5})

			l, ok := rc.Ladder("codex")
			So(ok, ShouldBeTrue)
			m, ok := l.Current()
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, codexSpark)
			So(rep.Ladders["codex"], ShouldEqual, codexSpark)
			So(rep.Groups[app.GroupT3A], ShouldResemble, app.GroupCounts{Selected: 5, Recovered: 5})
		})
	})

	Convey("Given concurrent callers that all hit the exhausted first rung", t, func() {
		l := app.NewLadder("codex", []string{"m1", "m2", "m3"})
		inv := &stubInvoker{fn: func(_ context.Context, c judge.Call) model.Outcome {
			if c.Model == "m1" {
				return exhausted(c)
			}
			return include(c)
		}}

		var wg sync.WaitGroup
		outs := make([]model.Outcome, 16)
		for i := range outs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				outs[i] = l.Call(context.Background(), inv, "p", time.Second)
			}()
		}
		wg.Wait()

		Convey("Then the ladder advances exactly one rung", func() {
			m, ok := l.Current()
			So(ok, ShouldBeTrue)
			So(m, ShouldEqual, "m2")
			for _, o := range outs {
				So(o.Decision, ShouldEqual, model.Include)
				So(o.ModelUsed, ShouldEqual, "m2")
			}
		})
	})
}

func TestRetryExhaustedIsIdempotent(t *testing.T) {
	Convey("Given a provider that is out of quota on every model", t, func() {
		cfg := testConfig(t.TempDir())
		cfg.WorkerCount = 1
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		seed(store,
			t3Result("a1", quotaA, decisiveB),
			t3Result("a2", timeoutA, decisiveB),
			t3Result("ab", quotaA, timeoutB),
		)
		initial, err := store.Load(context.Background())
		So(err, ShouldBeNil)
		So(planIDs(initial), ShouldResemble, []string{"a1", "a2", "ab"})

		answer := func(_ context.Context, c judge.Call) model.Outcome {
			if c.Provider == "codex" {
				return exhausted(c)
			}
			return include(c)
		}
		first := &stubInvoker{fn: answer}
		rc, err := app.NewRetryCoordinator(cfg, store, first, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)

		Convey("Then each rung is tried once and the slots say the ladder ran out", func() {
			codexCalls := 0
			for _, c := range first.Calls() {
				if c.Provider == "codex" {
					codexCalls++
				}
			}
			So(codexCalls, ShouldEqual, 2)
			So(rep.StillFailed(), ShouldEqual, 3)
			So(rep.Ladders["codex"], ShouldEqual, "exhausted")

			stored, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			for _, r := range stored {
				So(r.A.Rationale, ShouldEqual, "codex("+codexSpark+") exhausted: "+app.ExhaustedDetail)
				So(r.A.Kind(), ShouldEqual, model.FailureExhausted)
			}
			So(resultsByID(stored)["ab"].B.Decision, ShouldEqual, model.Include)
		})

		Convey("Then a second pass selects the same items and ends in the same state", func() {
			mid, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			So(planIDs(mid), ShouldResemble, []string{"a1", "a2", "ab"})

			rc2, err := app.NewRetryCoordinator(cfg, store, &stubInvoker{fn: answer}, app.WithPrompt(idPrompt()))
			So(err, ShouldBeNil)
			rep2, err := rc2.Run(context.Background(), nil)
			So(err, ShouldBeNil)
			So(rep2.StillFailed(), ShouldEqual, 3)

			end, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			So(planIDs(end), ShouldResemble, []string{"a1", "a2", "ab"})
			So(end, ShouldResemble, mid)
		})
	})
}

func TestRetryBothSlots(t *testing.T) {
	Convey("Given a T3 result where both slots failed", t, func() {
		cfg := testConfig(t.TempDir())
		store := checkpoint.NewCSV(cfg.Checkpoint.Path)
		seed(store, t3Result("ab", quotaA, timeoutB))

		inv := &stubInvoker{fn: func(_ context.Context, c judge.Call) model.Outcome {
			if c.Provider == "gemini" {
				return exclude(c)
			}
			return include(c)
		}}
		rc, err := app.NewRetryCoordinator(cfg, store, inv, app.WithPrompt(idPrompt()))
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)

		Convey("Then A is retried through its ladder before B through its own", func() {
			calls := inv.Calls()
			So(len(calls), ShouldEqual, 2)
			So(calls[0].Provider, ShouldEqual, "codex")
			So(calls[1].Provider, ShouldEqual, "gemini")
			So(calls[1].Model, ShouldEqual, "gemini-2.5-flash")

			stored, err := store.Load(context.Background())
			So(err, ShouldBeNil)
			So(stored[0].A.Decision, ShouldEqual, model.Include)
			So(stored[0].B.Decision, ShouldEqual, model.Exclude)
			So(stored[0].Consensus, ShouldEqual, model.Consensus("conflict"))
			So(rep.Groups[app.GroupT3AB], ShouldResemble, app.GroupCounts{Selected: 1, Recovered: 1})
		})
	})

	Convey("Given a checkpoint without failures", t, func() {
		cfg := testConfig(t.TempDir())
		store := &countingStore{Store: checkpoint.NewCSV(cfg.Checkpoint.Path)}
		seed(store.Store, t3Result("ok", decisiveB, decisiveB))
		inv := &stubInvoker{}
		rc, err := app.NewRetryCoordinator(cfg, store, inv)
		So(err, ShouldBeNil)
		rep, err := rc.Run(context.Background(), nil)
		So(err, ShouldBeNil)
		So(rep.Selected(), ShouldEqual, 0)
		So(len(inv.Calls()), ShouldEqual, 0)
		So(store.Saves(), ShouldEqual, 0)
	})

	Convey("Given a provider without an explicit ladder", t, func() {
		cfg := testConfig(t.TempDir())
		p := cfg.Providers["codex"]
		p.FallbackModels = nil
		cfg.Providers = map[string]config.Provider{"codex": p, "gemini": cfg.Providers["gemini"]}
		rc, err := app.NewRetryCoordinator(cfg, checkpoint.NewCSV(cfg.Checkpoint.Path), &stubInvoker{})
		So(err, ShouldBeNil)
		l, ok := rc.Ladder("codex")
		So(ok, ShouldBeTrue)
		m, _ := l.Current()
		So(m, ShouldEqual, p.Model)
	})
}
