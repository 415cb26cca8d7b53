// Package discount prices a bundle of courses bought in one payment.
package discount

import (
	"math"

	"github.com/smallbiznis/kelas/internal/registration/domain"
)

const basisPoints = 10000

type Quote struct {
	Rule       *domain.DiscountRule
	Total      int64
	Discounted int64
	// Shares holds the per-course charge; it always sums to Discounted.
	Shares []int64
}

// Select returns the active rule with the highest threshold not above count.
// rules must be ordered by ascending MinCourses.
func Select(rules []domain.DiscountRule, count int) *domain.DiscountRule {
	var selected *domain.DiscountRule
	for i := range rules {
		rule := rules[i]
		if !rule.IsActive || rule.MinCourses > count {
			continue
		}
		if selected == nil || rule.MinCourses >= selected.MinCourses {
			selected = &rules[i]
		}
	}
	return selected
}

// Apply returns total after rule. Percentages round half up on minor units
// and fixed amounts never take the total below zero.
func Apply(total int64, rule *domain.DiscountRule) int64 {
	if rule == nil || total <= 0 {
		return total
	}
	switch {
	case rule.DiscountPercent != nil:
		bp := int64(math.Round(*rule.DiscountPercent * 100))
		if bp <= 0 {
			return total
		}
		if bp > basisPoints {
			bp = basisPoints
		}
		return total - (total*bp+basisPoints/2)/basisPoints
	case rule.DiscountAmount != nil:
		if *rule.DiscountAmount <= 0 {
			return total
		}
		if *rule.DiscountAmount >= total {
			return 0
		}
		return total - *rule.DiscountAmount
	default:
		return total
	}
}

// Allocate splits amount evenly across count courses. The remainder goes to
// the first course.
func Allocate(amount int64, count int) []int64 {
	if count <= 0 {
		return nil
	}
	shares := make([]int64, count)
	base := amount / int64(count)
	for i := range shares {
		shares[i] = base
	}
	shares[0] += amount - base*int64(count)
	return shares
}

func Price(total int64, count int, rules []domain.DiscountRule) Quote {
	rule := Select(rules, count)
	discounted := Apply(total, rule)
	return Quote{
		Rule:       rule,
		Total:      total,
		Discounted: discounted,
		Shares:     Allocate(discounted, count),
	}
}
