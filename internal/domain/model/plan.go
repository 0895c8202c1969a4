package model

import (
	"time"

	"course-platform/internal/domain"
)

// PlanDuration is the billing cycle length in months.
type PlanDuration int

const (
	Duration1Month   PlanDuration = 1
	Duration6Months  PlanDuration = 6
	Duration12Months PlanDuration = 12
)

func (d PlanDuration) Valid() bool {
	return d == Duration1Month || d == Duration6Months || d == Duration12Months
}

// Period returns the wall-clock length of one billing period.
func (d PlanDuration) Period(from time.Time) time.Time {
	return from.AddDate(0, int(d), 0)
}

// PlanPrice is one of a plan's up-to-three price points, each with its own
// gateway plan identifier.
type PlanPrice struct {
	Price          int64
	ExternalPlanID string
}

// SubscriptionPlan is an admin-managed catalog entry granting access to a set
// of courses for the duration of a paid period.
type SubscriptionPlan struct {
	ID        string
	Name      string
	Prices    map[PlanDuration]PlanPrice
	CourseIDs []string
	CreatedAt time.Time
}

func (p *SubscriptionPlan) IsZero() bool { return p == nil || p.ID == "" }

// PriceFor returns the price point for a duration, if the plan offers it.
func (p *SubscriptionPlan) PriceFor(d PlanDuration) (PlanPrice, bool) {
	pp, ok := p.Prices[d]
	return pp, ok
}

// Covers reports whether the plan's course set includes courseID.
func (p *SubscriptionPlan) Covers(courseID string) bool {
	for _, id := range p.CourseIDs {
		if id == courseID {
			return true
		}
	}
	return false
}

// NewSubscriptionPlan validates and constructs a plan.
func NewSubscriptionPlan(id, name string, prices map[PlanDuration]PlanPrice, courseIDs []string) (*SubscriptionPlan, error) {
	if id == "" || name == "" || len(prices) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	for d, pp := range prices {
		if !d.Valid() || pp.Price <= 0 {
			return nil, domain.ErrInvalidArgument
		}
	}
	return &SubscriptionPlan{
		ID:        id,
		Name:      name,
		Prices:    prices,
		CourseIDs: courseIDs,
		CreatedAt: time.Now(),
	}, nil
}
