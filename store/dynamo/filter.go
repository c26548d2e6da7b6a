package dynamo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/relval/store"
)

// IsDeleted checks if an item has an expired TTL (is marked for deletion).
func IsDeleted(item map[string]types.AttributeValue, now time.Time) bool {
	ttlAttr, exists := item[TTLAttr]
	if !exists {
		return false // No TTL = active
	}
	ttlNum, ok := ttlAttr.(*types.AttributeValueMemberN)
	if !ok {
		return false
	}
	ttl, err := strconv.ParseInt(ttlNum.Value, 10, 64)
	if err != nil {
		return false
	}
	return ttl <= now.Unix()
}

// TTLFilterExpr returns the filter expression to exclude deleted items.
func TTLFilterExpr() string {
	return "(attribute_not_exists(#ttl) OR #ttl > :now)"
}

// Filter is a scan filter expression with its placeholders.
type Filter struct {
	Expression string
	Names      map[string]string
	Values     map[string]types.AttributeValue
}

// BuildFilter renders the TTL filter plus every clause DynamoDB can evaluate
// exactly. Wildcards and case-insensitive equality are left to the client.
func BuildFilter(clauses []store.Clause, now time.Time) Filter {
	f := Filter{
		Expression: TTLFilterExpr(),
		Names:      map[string]string{"#ttl": TTLAttr},
		Values: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}

	parts := []string{f.Expression}
	segments := map[string]string{}
	for i, c := range clauses {
		if c.Op == store.OpMatch || c.Op == store.OpNotMatch {
			continue
		}
		if _, isString := c.Value.(string); isString && c.IgnoreCase && (c.Op == store.OpEq || c.Op == store.OpNe) {
			continue
		}
		value, ok := attributeValue(c.Value)
		if !ok {
			continue
		}

		path := f.path(c.Path, segments)
		valueKey := fmt.Sprintf(":val%d", i)
		f.Values[valueKey] = value

		switch c.Op {
		case store.OpEq:
			parts = append(parts, fmt.Sprintf("%s = %s", path, valueKey))
		case store.OpLt:
			parts = append(parts, fmt.Sprintf("%s < %s", path, valueKey))
		case store.OpGt:
			parts = append(parts, fmt.Sprintf("%s > %s", path, valueKey))
		case store.OpNe:
			parts = append(parts, fmt.Sprintf("(attribute_not_exists(%s) OR %s <> %s)", path, path, valueKey))
		}
	}
	f.Expression = strings.Join(parts, " AND ")
	return f
}

// path maps a dotted path onto expression attribute names (#attr0.#attr1).
func (f *Filter) path(dotted string, segments map[string]string) string {
	segs := store.PathSegments(dotted)
	names := make([]string, len(segs))
	for i, seg := range segs {
		name, ok := segments[seg]
		if !ok {
			name = fmt.Sprintf("#attr%d", len(segments))
			segments[seg] = name
			f.Names[name] = seg
		}
		names[i] = name
	}
	return strings.Join(names, ".")
}

func attributeValue(v any) (types.AttributeValue, bool) {
	switch t := v.(type) {
	case string:
		return &types.AttributeValueMemberS{Value: t}, true
	case float64:
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(t, 'f', -1, 64)}, true
	case bool:
		return &types.AttributeValueMemberBOOL{Value: t}, true
	}
	return nil, false
}
