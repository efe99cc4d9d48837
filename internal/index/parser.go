package index

import (
	"bytes"
	"iter"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/seenimoa/form13f/internal/sec"
)

// Parse yields a Filing for every line of raw that contains formType, in
// file order. Fields are anchored from the end of the line because the
// company name is the only field that may contain spaces:
//
//	13F-HR   ACME CAPITAL PARTNERS   123456   2021-02-10   edgar/data/123456/0001-21-000001.txt
//	[0]      [1 .. n-4]              [n-3]    [n-2]        [n-1]
func Parse(raw []byte, formType string) iter.Seq[sec.Filing] {
	token := []byte(formType)
	return func(yield func(sec.Filing) bool) {
		if len(token) == 0 {
			return
		}
		for line := range bytes.Lines(raw) {
			if !bytes.Contains(line, token) {
				continue
			}
			f, ok := parseLine(decodeLine(line))
			if !ok {
				continue
			}
			if !yield(f) {
				return
			}
		}
	}
}

func parseLine(line string) (sec.Filing, bool) {
	words := strings.Fields(line)
	n := len(words)
	if n < 4 {
		return sec.Filing{}, false
	}
	return sec.Filing{
		CIK:  words[n-3],
		Name: strings.Join(words[1:n-3], " "),
		Path: words[n-1],
	}, true
}

// decodeLine treats invalid UTF-8 as Windows-1252, which older index
// files use for accented company names.
func decodeLine(line []byte) string {
	if utf8.Valid(line) {
		return string(line)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(line)
	if err != nil {
		return strings.ToValidUTF8(string(line), "�")
	}
	return string(decoded)
}
