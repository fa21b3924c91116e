package keys

import (
	"fmt"
	"sort"
	"strings"
)

// Type ranks for the total order: nulls first, then booleans, numerics,
// strings, arrays, objects. Anything else sorts after objects by its
// string form.
func typeRank(value interface{}) int {
	switch normalize(value).(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case []interface{}:
		return 4
	case map[string]interface{}:
		return 5
	default:
		if _, ok := AsFloat64(value); ok {
			return 2
		}
		return 6
	}
}

// Compare imposes the total order used by ordered indexes and sorting:
// nulls < booleans (false < true) < numerics by numeric value (an
// integer and a float compare numerically) < strings by byte order <
// arrays elementwise < objects by sorted field name then value.
func Compare(a, b interface{}) int {
	a, b = normalize(a), normalize(b)
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case 0:
		return 0

	case 1:
		ab, bb := a.(bool), b.(bool)
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1

	case 2:
		return compareNumeric(a, b)

	case 3:
		return strings.Compare(a.(string), b.(string))

	case 4:
		aa, ba := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(aa) && i < len(ba); i++ {
			if c := Compare(aa[i], ba[i]); c != 0 {
				return c
			}
		}
		return len(aa) - len(ba)

	case 5:
		return compareObjects(a.(map[string]interface{}), b.(map[string]interface{}))

	default:
		return strings.Compare(stringify(a), stringify(b))
	}
}

func compareNumeric(a, b interface{}) int {
	ai, aIsInt := AsInt64(a)
	bi, bIsInt := AsInt64(b)
	if aIsInt && bIsInt {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	}

	af, _ := AsFloat64(a)
	bf, _ := AsFloat64(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func compareObjects(a, b map[string]interface{}) int {
	ak := make([]string, 0, len(a))
	for k := range a {
		ak = append(ak, k)
	}
	bk := make([]string, 0, len(b))
	for k := range b {
		bk = append(bk, k)
	}
	sort.Strings(ak)
	sort.Strings(bk)

	for i := 0; i < len(ak) && i < len(bk); i++ {
		if c := strings.Compare(ak[i], bk[i]); c != 0 {
			return c
		}
		if c := Compare(a[ak[i]], b[bk[i]]); c != 0 {
			return c
		}
	}
	return len(ak) - len(bk)
}

// Equal reports value equality under the index key semantics
func Equal(a, b interface{}) bool {
	return Compare(a, b) == 0
}

func stringify(value interface{}) string {
	return fmt.Sprintf("%v", value)
}
