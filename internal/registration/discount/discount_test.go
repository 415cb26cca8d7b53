package discount

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kelas/internal/registration/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func percent(threshold int, pct float64) domain.DiscountRule {
	return domain.DiscountRule{ID: snowflake.ID(1000 + threshold), MinCourses: threshold, DiscountPercent: &pct, IsActive: true}
}

func fixed(threshold int, amount int64) domain.DiscountRule {
	return domain.DiscountRule{ID: snowflake.ID(2000 + threshold), MinCourses: threshold, DiscountAmount: &amount, IsActive: true}
}

func TestSelectHighestEligibleThreshold(t *testing.T) {
	inactive := percent(3, 50)
	inactive.IsActive = false
	rules := []domain.DiscountRule{percent(2, 10), inactive, percent(4, 20)}

	assert.Nil(t, Select(rules, 1))
	assert.Equal(t, 2, Select(rules, 2).MinCourses)
	assert.Equal(t, 2, Select(rules, 3).MinCourses)
	assert.Equal(t, 4, Select(rules, 4).MinCourses)
	assert.Equal(t, 4, Select(rules, 9).MinCourses)
	assert.Nil(t, Select(nil, 5))
}

func TestApply(t *testing.T) {
	cases := []struct {
		name  string
		total int64
		rule  *domain.DiscountRule
		want  int64
	}{
		{name: "no rule", total: 10000, want: 10000},
		{name: "ten percent", total: 10000, rule: ptr(percent(2, 10)), want: 9000},
		{name: "fractional percent rounds half up", total: 999, rule: ptr(percent(2, 12.5)), want: 874},
		{name: "over hundred percent clamps", total: 500, rule: ptr(percent(2, 150)), want: 0},
		{name: "fixed amount", total: 10000, rule: ptr(fixed(2, 2500)), want: 7500},
		{name: "fixed amount floors at zero", total: 1000, rule: ptr(fixed(2, 5000)), want: 0},
		{name: "zero total", total: 0, rule: ptr(percent(2, 10)), want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Apply(tc.total, tc.rule))
		})
	}
}

func TestAllocateRemainderToFirstCourse(t *testing.T) {
	assert.Equal(t, []int64{4500, 4500}, Allocate(9000, 2))
	assert.Equal(t, []int64{3334, 3333, 3333}, Allocate(10000, 3))
	assert.Equal(t, []int64{7}, Allocate(7, 1))
	assert.Nil(t, Allocate(100, 0))
}

func TestPriceSharesSumToDiscountedTotal(t *testing.T) {
	rules := []domain.DiscountRule{percent(2, 10), percent(3, 15), fixed(5, 1234)}
	for _, total := range []int64{1, 99, 10000, 12345, 99999} {
		for count := 1; count <= 7; count++ {
			q := Price(total, count, rules)
			require.Len(t, q.Shares, count)

			var sum int64
			for _, s := range q.Shares {
				assert.GreaterOrEqual(t, s, int64(0))
				sum += s
			}
			assert.Equal(t, q.Discounted, sum, "total=%d count=%d", total, count)
			assert.LessOrEqual(t, q.Discounted, total)
		}
	}
}

func TestPriceBundleScenario(t *testing.T) {
	q := Price(10000, 2, []domain.DiscountRule{percent(2, 10)})
	require.NotNil(t, q.Rule)
	assert.Equal(t, int64(9000), q.Discounted)
	assert.Equal(t, []int64{4500, 4500}, q.Shares)
}

func ptr(r domain.DiscountRule) *domain.DiscountRule { return &r }
