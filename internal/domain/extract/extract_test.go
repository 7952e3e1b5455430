package extract_test

import (
	"errors"
	"testing"

	"github.com/okian/sieve/internal/domain/consensus"
	"github.com/okian/sieve/internal/domain/extract"
	"github.com/smartystreets/goconvey/convey"
)

const payload = `{"decision": "Include", "confidence": 0.85, "exclude_code": "", "rationale": " Empirical UTAUT survey of 300 students. "}`

func TestJSON(t *testing.T) {
	convey.Convey("Given the same object in three wrappings", t, func() {
		bare := payload
		fenced := "Here is my assessment:\n```json\n" + payload + "\n```\nThanks."
		prose := "After reading the abstract, my verdict is " + payload + " and nothing more."

		convey.Convey("Then all three extract to the same judgment", func() {
			want, err := extract.ParseJudgment(bare)
			convey.So(err, convey.ShouldBeNil)
			for _, text := range []string{fenced, prose} {
				got, err := extract.ParseJudgment(text)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got, convey.ShouldResemble, want)
			}
		})

		convey.Convey("Then fields are normalized", func() {
			j, _ := extract.ParseJudgment(bare)
			convey.So(j.Decision, convey.ShouldEqual, consensus.Include)
			convey.So(j.Confidence, convey.ShouldEqual, 0.85)
			convey.So(j.ExcludeCode, convey.ShouldEqual, "NA")
			convey.So(j.Rationale, convey.ShouldEqual, "Empirical UTAUT survey of 300 students.")
		})
	})

	convey.Convey("Given unlabeled fences and nested objects", t, func() {
		text := "```\n{\"decision\":\"exclude\",\"criteria_flags\":{\"english\":\"yes\"},\"rationale\":\"uses {braces} in text\"}\n```"

		obj, err := extract.JSON(text)

		convey.Convey("Then the whole object is returned", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(obj["decision"], convey.ShouldEqual, "exclude")
			convey.So(obj["criteria_flags"], convey.ShouldNotBeNil)
		})
	})

	convey.Convey("Given a stray brace before the object", t, func() {
		text := `Score { pending. Final: {"decision": "exclude", "confidence": "0.4"}`

		j, err := extract.ParseJudgment(text)

		convey.Convey("Then the first balanced span wins", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(j.Decision, convey.ShouldEqual, consensus.Exclude)
			convey.So(j.Confidence, convey.ShouldEqual, 0.4)
		})
	})

	convey.Convey("Given output without a usable object", t, func() {
		convey.Convey("Then empty output is distinguishable", func() {
			_, err := extract.JSON("   \n ")
			convey.So(errors.Is(err, extract.ErrEmptyOutput), convey.ShouldBeTrue)
		})

		convey.Convey("Then prose without braces reports no JSON", func() {
			_, err := extract.JSON("I would include this paper.")
			convey.So(errors.Is(err, extract.ErrNoJSON), convey.ShouldBeTrue)
		})

		convey.Convey("Then a balanced but invalid span reports malformed JSON", func() {
			_, err := extract.JSON("verdict: {decision: include}")
			convey.So(errors.Is(err, extract.ErrMalformedJSON), convey.ShouldBeTrue)
		})

		convey.Convey("Then an unterminated object reports no JSON", func() {
			_, err := extract.JSON(`{"decision": "include"`)
			convey.So(errors.Is(err, extract.ErrNoJSON), convey.ShouldBeTrue)
		})
	})
}

func TestConfidenceCoercion(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`{"confidence": 0.7}`, 0.7},
		{`{"confidence": "0.55"}`, 0.55},
		{`{"confidence": "high"}`, 0},
		{`{"confidence": null}`, 0},
		{`{"confidence": 7}`, 1},
		{`{"confidence": -0.2}`, 0},
		{`{"confidence": "NaN"}`, 0},
		{`{}`, 0},
	}

	convey.Convey("Given confidence values of mixed types", t, func() {
		for _, tc := range cases {
			j, err := extract.ParseJudgment(tc.raw)
			convey.So(err, convey.ShouldBeNil)
			convey.So(j.Confidence, convey.ShouldEqual, tc.want)
			convey.So(j.Decision, convey.ShouldEqual, consensus.Uncertain)
		}
	})
}
