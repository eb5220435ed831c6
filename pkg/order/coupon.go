package order

import (
	"fmt"
	"strings"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
)

// applyCoupon matches the coupon's requirements against items and returns
// the discount: the regular price of the covered units minus the coupon
// total. Units are consumed in line order so one unit never fills two
// requirements.
func applyCoupon(cp catalog.Coupon, items []LineItem) (catalog.Price, error) {
	remaining := make([]int, len(items))
	for i, li := range items {
		remaining[i] = li.Quantity
	}

	var covered catalog.Price
	for _, req := range cp.Requires {
		need := req.Count
		for i, li := range items {
			if need == 0 {
				break
			}
			if remaining[i] == 0 || !satisfies(req, li) {
				continue
			}
			take := min(need, remaining[i])
			covered += li.UnitPrice * catalog.Price(take)
			remaining[i] -= take
			need -= take
		}
		if need > 0 {
			return 0, fmt.Errorf("%w: %s requires %s", ErrCouponIneligible, cp.Code, cp.Eligibility)
		}
	}

	if covered <= cp.Total {
		return 0, nil
	}
	return covered - cp.Total, nil
}

func satisfies(req catalog.Requirement, li LineItem) bool {
	if !strings.EqualFold(req.Item, li.Product) {
		return false
	}
	if req.Size != catalog.SizeRegular && req.Size != li.Size {
		return false
	}
	return len(li.Toppings) <= req.Toppings
}
