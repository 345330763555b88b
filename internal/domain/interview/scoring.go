package interview

// Guided-interview scoring. All answer lookups use storage-convention keys.
//
// The composite score (0-6) increments once for each of: ideation with
// intent, a plan being present, a current-risk rating >= 3, prior
// hospitalization, abuse history, and an agitation rating >= 4 (falling back
// to a legacy frustration rating >= 7 when agitation is unset). The score is
// only computed when all seven contributing fields are present.

const (
	riskHigh     = "High"
	riskModerate = "Moderate"
	riskLow      = "Low"
	riskNone     = "None"
)

func updateGuidedScores(a *Assignment) {
	ans := a.Answers

	ideation, okIdeation := boolAnswer(ans, "suicidal_yes_no")
	intent, okIntent := boolAnswer(ans, "intent_yes_no")
	plan, okPlan := boolAnswer(ans, "plan_yes_no")
	riskRating, okRisk := numAnswer(ans, "suicide_risk")
	hospitalized, okHosp := boolAnswer(ans, "hospitalized_yes_no")
	abuse, okAbuse := boolAnswer(ans, "abuse_yes_no")
	agitation, okAgitation := numAnswer(ans, "rate_agitation")
	frustration, okFrustration := numAnswer(ans, "frustration")

	a.Score = nil
	if okIdeation && okIntent && okPlan && okRisk && okHosp && okAbuse && (okAgitation || okFrustration) {
		score := 0
		if intent && ideation {
			score++
		}
		if plan {
			score++
		}
		if riskRating >= 3 {
			score++
		}
		if hospitalized {
			score++
		}
		if abuse {
			score++
		}
		if okAgitation {
			if agitation >= 4 {
				score++
			}
		} else if frustration >= 7 {
			score++
		}
		a.Score = &score
	}

	current, okCurrent := boolAnswer(ans, "current_yes_no")
	a.CurrentAttempt = nil
	if okCurrent {
		label := "No Current Attempt"
		if current {
			label = "Current Attempt"
		}
		a.CurrentAttempt = &label
	}

	// Plan-and-intent ordinal: plan present maps the current-risk rating
	// through the same buckets used for the suicide index; no plan means no
	// contribution.
	planIntent := 0
	if okPlan && plan && okRisk {
		planIntent = bucketRating(riskRating)
	}
	a.PlanAndIntent = nil
	// A denied plan labels as "No Plan and Intent" on its own; the risk
	// rating is only needed to grade an affirmed plan.
	if okPlan && (!plan || okRisk) {
		a.PlanAndIntent = strPtr(planIntentLabel(planIntent))
	}

	a.Risk = deriveRisk(a.Score, okCurrent && current, planIntent)

	a.SuicideIndexScore = nil
	a.SuicideIndexLabel = nil
	wishLive, okLive := numAnswer(ans, "wish_live")
	wishDie, okDie := numAnswer(ans, "wish_die")
	if okLive && okDie {
		idx := bucketRating(wishLive) - bucketRating(wishDie)
		a.SuicideIndexScore = &idx
		a.SuicideIndexLabel = strPtr(suicideIndexLabel(idx))
	}
}

func deriveRisk(score *int, currentAttempt bool, planIntent int) *string {
	if score == nil && !currentAttempt && planIntent == 0 {
		return nil
	}
	s := 0
	if score != nil {
		s = *score
	}
	switch {
	case s >= 5 || currentAttempt || planIntent == 3:
		return strPtr(riskHigh)
	case s >= 3 || planIntent == 2:
		return strPtr(riskModerate)
	case s >= 1 || planIntent == 1:
		return strPtr(riskLow)
	default:
		return strPtr(riskNone)
	}
}

// bucketRating maps a 0-9 rating into {1,2,3} via thresholds <3, [3,6), >=6.
func bucketRating(v float64) int {
	switch {
	case v < 3:
		return 1
	case v < 6:
		return 2
	default:
		return 3
	}
}

func planIntentLabel(ordinal int) string {
	switch ordinal {
	case 3:
		return "Strong Plan and Intent"
	case 2:
		return "Moderate Plan and Intent"
	case 1:
		return "Low Plan and Intent"
	default:
		return "No Plan and Intent"
	}
}

func suicideIndexLabel(idx int) string {
	switch {
	case idx > 0:
		return "Wish to Live"
	case idx < 0:
		return "Wish to Die"
	default:
		return "Ambivalent"
	}
}

func boolAnswer(answers map[string]interface{}, key string) (bool, bool) {
	v, ok := answers[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func numAnswer(answers map[string]interface{}, key string) (float64, bool) {
	v, ok := answers[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func strPtr(s string) *string { return &s }
