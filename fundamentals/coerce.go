package fundamentals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	models "vuoksi-trader/database/models_pkg"
)

// CoerceLineItems keeps the numeric items of raw statement data. Numbers,
// numeric strings, json.Number and {"value": x} data points are accepted;
// everything else is returned in dropped.
func CoerceLineItems(raw map[string]any) (items models.LineItems, dropped []string) {
	items = make(models.LineItems, len(raw))
	for key, v := range raw {
		if f, ok := toFloat(v, 0); ok {
			items[key] = f
		} else {
			dropped = append(dropped, key)
		}
	}
	return items, dropped
}

func toFloat(v any, depth int) (float64, bool) {
	if depth > 2 {
		return 0, false
	}
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.RawMessage:
		var inner any
		if err := json.Unmarshal(x, &inner); err != nil {
			return 0, false
		}
		return toFloat(inner, depth+1)
	case map[string]any:
		inner, ok := x["value"]
		if !ok {
			return 0, false
		}
		return toFloat(inner, depth+1)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
