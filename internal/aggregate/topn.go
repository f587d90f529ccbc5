package aggregate

import (
	"encoding/json"
	"sort"

	"gorm.io/datatypes"
)

// topN is the cap applied to every breakdown dimension.
const topN = 10

// BreakdownItem is one entry of a serialized top-N list.
type BreakdownItem struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// topNFromCounts ranks a value->count map, capped at topN. Ties break
// by count descending then value ascending, so recomputation is
// byte-stable.
func topNFromCounts(counts map[string]int64) []BreakdownItem {
	items := make([]BreakdownItem, 0, len(counts))
	for v, c := range counts {
		if v == "" {
			continue
		}
		items = append(items, BreakdownItem{Value: v, Count: c})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count != items[j].Count {
			return items[i].Count > items[j].Count
		}
		return items[i].Value < items[j].Value
	})
	if len(items) > topN {
		items = items[:topN]
	}
	return items
}

func marshalBreakdown(items []BreakdownItem) datatypes.JSON {
	raw, err := json.Marshal(items)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

func unmarshalBreakdown(raw datatypes.JSON) []BreakdownItem {
	if len(raw) == 0 {
		return nil
	}
	var items []BreakdownItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// mergeBreakdowns sums child top lists and re-ranks. Values that fell
// off a child's cap are gone for good; this is the usual top-N rollup
// approximation.
func mergeBreakdowns(lists ...datatypes.JSON) datatypes.JSON {
	counts := make(map[string]int64)
	for _, raw := range lists {
		for _, item := range unmarshalBreakdown(raw) {
			counts[item.Value] += item.Count
		}
	}
	return marshalBreakdown(topNFromCounts(counts))
}
