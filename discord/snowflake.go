package discord

import (
	"bytes"
	"fmt"
	"strconv"
)

var null = []byte("null")

// Snowflake is a platform ID. It is sent as a string over the wire.
type Snowflake int64

func (s Snowflake) IsNil() bool {
	return s == 0
}

func (s *Snowflake) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, null) {
		*s = 0

		return nil
	}

	if len(b) >= 2 && b[0] == '"' {
		b = b[1 : len(b)-1]
	}

	if len(b) == 0 {
		*s = 0

		return nil
	}

	i, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("failed to unmarshal snowflake: %w", err)
	}

	*s = Snowflake(i)

	return nil
}

func (s Snowflake) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// String returns the decimal form, or an empty string for the zero ID.
func (s Snowflake) String() string {
	if s == 0 {
		return ""
	}

	return strconv.FormatInt(int64(s), 10)
}
