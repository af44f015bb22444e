package rules

import (
	"fmt"
	"strings"
)

type InsuranceResult struct {
	Blocked  bool     `json:"blocked"`
	Warnings bool     `json:"warnings"`
	Messages []string `json:"messages,omitempty"`
}

// EvaluateInsurance applies plan-specific rules to exam. companions are the
// other exams booked together with it. A refuse rule blocks; the other
// kinds only add warnings. All matching rules contribute messages.
func EvaluateInsurance(rules []InsuranceRule, plan, exam string, companions []string) InsuranceResult {
	var res InsuranceResult
	if strings.TrimSpace(plan) == "" {
		return res
	}

	for _, rule := range rules {
		if !matches(plan, []string{rule.Plan}) || !matches(exam, rule.Exams) {
			continue
		}

		switch rule.Kind {
		case KindRefuse:
			res.Blocked = true
			res.Messages = append(res.Messages, messageOr(rule.Message,
				fmt.Sprintf("plan %s does not cover %s", plan, exam)))
		case KindRequireBundle:
			if bundled(companions, rule.Companions) {
				continue
			}
			res.Warnings = true
			res.Messages = append(res.Messages, messageOr(rule.Message,
				fmt.Sprintf("plan %s requires %s to be booked with %s", plan, exam, strings.Join(rule.Companions, " or "))))
		case KindWarn:
			res.Warnings = true
			res.Messages = append(res.Messages, messageOr(rule.Message,
				fmt.Sprintf("check plan %s coverage for %s", plan, exam)))
		}
	}

	return res
}

// CheckDoctorPlan returns a refusal message when the doctor does not take
// plan, or "" when the plan is acceptable. An empty accepted list means
// every plan not explicitly blocked is taken.
func CheckDoctorPlan(accepted, blocked []string, plan string) string {
	if strings.TrimSpace(plan) == "" {
		return ""
	}
	for _, b := range blocked {
		if matches(plan, []string{b}) {
			return fmt.Sprintf("doctor does not accept plan %s", plan)
		}
	}
	if len(accepted) > 0 && !matches(plan, accepted) {
		return fmt.Sprintf("plan %s is not among the doctor's accepted plans", plan)
	}
	return ""
}

func bundled(companions, required []string) bool {
	for _, c := range companions {
		if matches(c, required) {
			return true
		}
	}
	return false
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
