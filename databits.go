package serial

import (
	"fmt"
	"strconv"
	"strings"
)

type DataBits int

func (d DataBits) Int() int {
	return int(d)
}

const (
	DataBits5 DataBits = 5
	DataBits6 DataBits = 6
	DataBits7 DataBits = 7
	DataBits8 DataBits = 8
)

// ParseDataBits accepts "5" through "8".
func ParseDataBits(s string) (DataBits, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 5 || n > 8 {
		return 0, fmt.Errorf("%w: data bits must be 5-8, got: %q", ErrInvalidConfiguration, s)
	}
	return DataBits(n), nil
}
