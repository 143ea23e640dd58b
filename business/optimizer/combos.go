package optimizer

import (
	"prebidOptimizer/domain"
)

// ConfigCombos expands a candidate map into its cartesian product, folding
// keys in sorted order so the action index is stable across runs. Any empty
// candidate list yields no combos.
func ConfigCombos(candidates map[string][]any) []domain.ConfigCombo {
	var prev []domain.ConfigCombo
	for i, key := range ConfigKeys(candidates) {
		vals := candidates[key]
		if len(vals) == 0 {
			return nil
		}

		curr := make([]domain.ConfigCombo, 0, max(len(prev), 1)*len(vals))
		if i == 0 {
			for _, v := range vals {
				curr = append(curr, domain.ConfigCombo{key: v})
			}
		} else {
			for _, combo := range prev {
				for _, v := range vals {
					next := make(domain.ConfigCombo, len(combo)+1)
					for k, cv := range combo {
						next[k] = cv
					}
					next[key] = v
					curr = append(curr, next)
				}
			}
		}
		prev = curr
	}
	return prev
}

// ConfigKeys returns the tunable configuration keys in fold order.
func ConfigKeys(candidates map[string][]any) []string {
	return domain.SortedKeys(candidates)
}
