// Package holdings extracts 13F information-table entries from a filing
// document. It accepts the full-text submission (XML sections wrapped in
// <XML> tags), a bare XML document, or either one rendered inside an
// HTML <pre> block.
package holdings

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/shopspring/decimal"

	"github.com/seenimoa/form13f/internal/sec"
)

// Holding is one information-table entry.
type Holding struct {
	CUSIP    string
	Issuer   string
	Value    string
	Quantity string
	Type     string
}

// Record attaches the filer identity of f.
func (h Holding) Record(f sec.Filing) sec.Record {
	return sec.Record{
		CIK:      f.CIK,
		Name:     f.Name,
		CUSIP:    h.CUSIP,
		Issuer:   h.Issuer,
		Value:    h.Value,
		Quantity: h.Quantity,
		Type:     h.Type,
	}
}

// Filer is the identity a filing document declares about itself.
type Filer struct {
	CIK  string
	Name string
}

var (
	xmlSection = regexp.MustCompile(`(?is)<XML>(.*?)</XML>`)
	xmlOpen    = regexp.MustCompile(`(?i)<XML>`)
)

// Element names are matched on local name, ignoring case, so both
// "ns1:infoTable" and the lowercased "infotable" are found.
var (
	infoTableExpr = xpath.MustCompile("//" + foldPath("infoTable"))
	filerCIKExpr  = xpath.MustCompile("//" + foldPath("credentials", "cik"))
	filerNameExpr = xpath.MustCompile("//" + foldPath("filingManager", "name"))
)

type field struct {
	name    string
	expr    *xpath.Expr
	numeric bool
}

var fields = []field{
	{"cusip", xpath.MustCompile(foldPath("cusip")), false},
	{"nameOfIssuer", xpath.MustCompile(foldPath("nameOfIssuer")), false},
	{"value", xpath.MustCompile(foldPath("value")), true},
	{"sshPrnamt", xpath.MustCompile(foldPath("shrsOrPrnAmt", "sshPrnamt")), true},
	{"sshPrnamtType", xpath.MustCompile(foldPath("shrsOrPrnAmt", "sshPrnamtType")), false},
}

const (
	upperASCII = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerASCII = "abcdefghijklmnopqrstuvwxyz"
)

func foldPath(names ...string) string {
	steps := make([]string, len(names))
	for i, n := range names {
		steps[i] = fmt.Sprintf("*[translate(local-name(),'%s','%s')='%s']", upperASCII, lowerASCII, strings.ToLower(n))
	}
	return strings.Join(steps, "/")
}

// Document is a parsed filing.
type Document struct {
	roots []*xmlquery.Node
}

// Load parses raw into a Document. It fails when the document is empty,
// when an <XML> section is never closed (a truncated transfer) or when a
// section cannot be parsed at all.
func Load(raw []byte) (*Document, error) {
	text, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty document")
	}

	sections := xmlSection.FindAllStringSubmatch(text, -1)
	if opened := len(xmlOpen.FindAllStringIndex(text, -1)); opened != len(sections) {
		return nil, fmt.Errorf("parse xml section %d: unterminated", len(sections))
	}
	var bodies []string
	if len(sections) == 0 {
		bodies = []string{text}
	} else {
		for _, s := range sections {
			bodies = append(bodies, s[1])
		}
	}

	doc := &Document{}
	for i, body := range bodies {
		body = strings.TrimSpace(body)
		if body == "" {
			continue
		}
		root, err := xmlquery.Parse(strings.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse xml section %d: %w", i, err)
		}
		doc.roots = append(doc.roots, root)
	}
	return doc, nil
}

// unwrap returns the text of the first <pre> block when raw is an HTML
// page, and raw itself otherwise.
func unwrap(raw []byte) (string, error) {
	head := bytes.ToLower(raw[:min(len(raw), 2048)])
	if !bytes.Contains(head, []byte("<html")) && !bytes.Contains(head, []byte("<!doctype html")) {
		return string(raw), nil
	}
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("parse html wrapper: %w", err)
	}
	pre := page.Find("pre").First()
	if pre.Length() == 0 {
		return string(raw), nil
	}
	return pre.Text(), nil
}

// Filer returns the CIK and manager name from the cover page, if present.
func (d *Document) Filer() (Filer, bool) {
	for _, root := range d.roots {
		cik := xmlquery.QuerySelector(root, filerCIKExpr)
		if cik == nil {
			continue
		}
		f := Filer{CIK: strings.Trim(strings.TrimSpace(cik.InnerText()), `"`)}
		if name := xmlquery.QuerySelector(root, filerNameExpr); name != nil {
			f.Name = strings.TrimSpace(name.InnerText())
		}
		return f, f.CIK != ""
	}
	return Filer{}, false
}

// Holdings yields every information-table entry in document order.
// An entry lacking a required field yields a *sec.MalformedRecordError
// in its place; iteration continues with the next entry.
func (d *Document) Holdings() iter.Seq2[Holding, error] {
	return func(yield func(Holding, error) bool) {
		i := 0
		for _, root := range d.roots {
			for _, item := range xmlquery.QuerySelectorAll(root, infoTableExpr) {
				h, err := extract(item, i)
				i++
				if !yield(h, err) {
					return
				}
			}
		}
	}
}

func extract(item *xmlquery.Node, index int) (Holding, error) {
	var vals [5]string
	for i, f := range fields {
		n := xmlquery.QuerySelector(item, f.expr)
		if n == nil {
			return Holding{}, &sec.MalformedRecordError{Index: index, Field: f.name}
		}
		v := strings.TrimSpace(n.InnerText())
		if v == "" {
			return Holding{}, &sec.MalformedRecordError{Index: index, Field: f.name}
		}
		// Numbers are validated but emitted as filed.
		if f.numeric {
			if _, err := decimal.NewFromString(strings.ReplaceAll(v, ",", "")); err != nil {
				return Holding{}, &sec.MalformedRecordError{Index: index, Field: f.name, Value: v}
			}
		}
		vals[i] = v
	}
	return Holding{
		CUSIP:    vals[0],
		Issuer:   vals[1],
		Value:    vals[2],
		Quantity: vals[3],
		Type:     vals[4],
	}, nil
}
