package ledger

import "fmt"

// Plan is a quota preset applied when an account is created or renewed.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) DefaultQuota() int64 {
	switch p {
	case PlanBasic:
		return 500
	case PlanPro:
		return 3000
	case PlanEnterprise:
		return 10000
	}
	return 0
}

func ParsePlan(s string) (Plan, error) {
	switch Plan(s) {
	case PlanBasic, PlanPro, PlanEnterprise:
		return Plan(s), nil
	}
	return "", fmt.Errorf("unknown plan %q", s)
}
