package index

import (
	"iter"

	"github.com/samber/lo"

	"github.com/seenimoa/form13f/internal/sec"
)

// Unbounded disables the count limit in Select.
const Unbounded = -1

// AllowList is a set of CIKs compared without leading zeros.
type AllowList map[string]struct{}

// NewAllowList builds an allow-list from raw CIK strings.
func NewAllowList(ciks []string) AllowList {
	return lo.SliceToMap(lo.Uniq(lo.Map(ciks, func(c string, _ int) string {
		return sec.TrimCIK(c)
	})), func(c string) (string, struct{}) {
		return c, struct{}{}
	})
}

// Contains reports whether cik is allowed.
func (a AllowList) Contains(cik string) bool {
	_, ok := a[sec.TrimCIK(cik)]
	return ok
}

// Select narrows refs. A non-empty allow-list yields every allowed
// reference and ignores limit. Otherwise the first limit references are
// yielded and the rest of refs is never read; Unbounded yields them all.
func Select(refs iter.Seq[sec.Filing], allow AllowList, limit int) iter.Seq[sec.Filing] {
	return func(yield func(sec.Filing) bool) {
		if len(allow) > 0 {
			for f := range refs {
				if allow.Contains(f.CIK) && !yield(f) {
					return
				}
			}
			return
		}
		if limit == 0 {
			return
		}
		remaining := limit
		for f := range refs {
			if !yield(f) {
				return
			}
			if remaining > 0 {
				remaining--
				if remaining == 0 {
					return
				}
			}
		}
	}
}
