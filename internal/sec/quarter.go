package sec

import (
	"fmt"
	"strconv"
	"strings"
)

// Quarter is a calendar quarter, 1 through 4.
type Quarter int

// ParseQuarter accepts "1".."4", "Q1".."Q4" and "QTR1".."QTR4" in any case.
func ParseQuarter(s string) (Quarter, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(t, "QTR"):
		t = strings.TrimPrefix(t, "QTR")
	case strings.HasPrefix(t, "Q"):
		t = strings.TrimPrefix(t, "Q")
	}
	n, err := strconv.Atoi(t)
	if err != nil || n < 1 || n > 4 {
		return 0, &ConfigError{Field: "quarter", Detail: fmt.Sprintf("%q is not a quarter (want 1-4, Q1-Q4 or QTR1-QTR4)", s)}
	}
	return Quarter(n), nil
}

// String returns the token EDGAR uses in full-index paths, e.g. "QTR1".
func (q Quarter) String() string {
	return "QTR" + strconv.Itoa(int(q))
}
