package sandwich

import (
	"fmt"
	"strconv"
	"strings"
)

// returnRangeInt32 converts a string like 0-4,6-7 to [0,1,2,3,4,6,7]. Every value
// must be within [0, max).
func returnRangeInt32(rangeString string, max int32) (result []int32, err error) {
	for _, split := range strings.Split(rangeString, ",") {
		split = strings.TrimSpace(split)
		if split == "" {
			continue
		}

		low, high, isRange := strings.Cut(split, "-")
		if !isRange {
			high = low
		}

		lowValue, err := strconv.ParseInt(strings.TrimSpace(low), 10, 32)
		if err != nil {
			return nil, err
		}

		highValue, err := strconv.ParseInt(strings.TrimSpace(high), 10, 32)
		if err != nil {
			return nil, err
		}

		if lowValue > highValue {
			return nil, fmt.Errorf("range %q is reversed", split)
		}

		if lowValue < 0 || highValue >= int64(max) {
			return nil, fmt.Errorf("range %q is outside 0-%d", split, int64(max)-1)
		}

		for i := lowValue; i <= highValue; i++ {
			result = append(result, int32(i))
		}
	}

	return result, nil
}
