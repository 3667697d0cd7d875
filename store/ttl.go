package store

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
)

// IsDeleted reports whether item carries a TTL at or before now.
func IsDeleted(item Item, now int64) bool {
	ttl, ok := item[AttrTTL].AsNumber()
	if !ok {
		return false // No TTL = active
	}
	return ttl <= now
}

// ActiveFilter drops items whose TTL has expired. Use this when building
// custom queries that need TTL filtering.
func ActiveFilter(now int64) expression.ConditionBuilder {
	return expression.AttributeNotExists(expression.Name(AttrTTL)).
		Or(expression.Name(AttrTTL).GreaterThan(expression.Value(now)))
}

// ActiveCondition requires the item to exist and not be deleted.
func ActiveCondition(now int64) expression.ConditionBuilder {
	return expression.AttributeExists(expression.Name(AttrPK)).And(ActiveFilter(now))
}

// FilterActive returns the items of items that are not deleted at now.
func FilterActive(items []Item, now int64) []Item {
	out := items[:0:0]
	for _, it := range items {
		if !IsDeleted(it, now) {
			out = append(out, it)
		}
	}
	return out
}
