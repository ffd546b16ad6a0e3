package stores

import (
	"fmt"
	"strconv"
)

// scriptResult reads a Lua array reply as strings. Missing (nil) elements
// become "".
func scriptResult(raw interface{}) ([]string, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script reply %T", raw)
	}
	out := make([]string, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case nil:
		case string:
			out[i] = v
		case int64:
			out[i] = strconv.FormatInt(v, 10)
		default:
			return nil, fmt.Errorf("unexpected script reply element %T", item)
		}
	}
	return out, nil
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
