package resolve

import (
	"github.com/veltra/findex/internal/domain"
	"github.com/veltra/findex/internal/domain/filter"
)

// Stage labels the cascade stage a resolution terminated on.
type Stage string

const (
	// StageFull means every requested constraint was honored.
	StageFull Stage = "full"
	// StageRelaxed1 means the first constraint in the relax order was dropped.
	StageRelaxed1 Stage = "relaxed_1"
	// StageRelaxed2 means only the first-relaxed constraint was kept.
	StageRelaxed2 Stage = "relaxed_2"
	// StageUnfiltered means only exclusions applied, with a relevance floor.
	StageUnfiltered Stage = "unfiltered"
	// StageNoSignal means the query carried nothing searchable.
	StageNoSignal Stage = "no_signal"
	// StageEmpty means every attempted stage came back empty.
	StageEmpty Stage = "empty"
)

const (
	narrativeFull       = "all filters satisfied"
	narrativeUnfiltered = "no filters matched; best-effort semantic results"
	narrativeNoSignal   = "no query signal"
	narrativeEmpty      = "no products found"
)

// stagePlan is one attempt of the cascade: the predicate to apply, the
// relevance floor (0 for none), and how to describe the attempt if it
// terminates the cascade.
type stagePlan struct {
	stage     Stage
	predicate filter.Predicate
	minScore  float64
	narrative string
}

// planStages builds the cascade for a query. Stages are strictly weaker from
// first to last; a stage whose relaxation is meaningless for this query (the
// constraint it drops was never requested, or its predicate would repeat an
// earlier one) is left out. Exclusions are part of every stage.
//
// relaxOrder names the constraints in the order they are dropped, e.g.
// ["price", "color"] drops price first.
func planStages(q domain.Query, excluded []string, relaxOrder []string, minScore float64) []stagePlan {
	exclusion := filter.NotIn("handle", excluded)
	constraints := map[string]filter.Clause{
		"color": colorClause(q),
		"price": priceClause(q),
	}

	full := filter.New(constraints["color"], constraints["price"], exclusion)
	plans := []stagePlan{{
		stage:     StageFull,
		predicate: full,
		narrative: narrativeFull,
	}}

	// Intermediate stages only exist when both constraints were requested;
	// otherwise dropping one repeats stage 1 or stage 4.
	if q.HasColor() && q.HasPrice() {
		first, second := relaxOrder[0], relaxOrder[1]
		plans = append(plans,
			stagePlan{
				stage:     StageRelaxed1,
				predicate: filter.New(constraints[second], exclusion),
				narrative: first + " relaxed",
			},
			stagePlan{
				stage:     StageRelaxed2,
				predicate: filter.New(constraints[first], exclusion),
				narrative: second + " relaxed",
			},
		)
	}

	// With no constraints requested, stage 1 is already unfiltered and the
	// relevance floor could only shrink its result set.
	if q.HasColor() || q.HasPrice() {
		plans = append(plans, stagePlan{
			stage:     StageUnfiltered,
			predicate: filter.New(exclusion),
			minScore:  minScore,
			narrative: narrativeUnfiltered,
		})
	}

	return plans
}

func colorClause(q domain.Query) filter.Clause {
	if !q.HasColor() {
		return filter.Clause{}
	}
	return filter.Equals("color", q.Color)
}

func priceClause(q domain.Query) filter.Clause {
	if !q.HasPrice() {
		return filter.Clause{}
	}
	return filter.AtMost("price", *q.MaxPrice)
}
