package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/form13f/internal/emit"
	"github.com/seenimoa/form13f/internal/index"
	"github.com/seenimoa/form13f/internal/sec"
)

// fakeSource serves documents by path and records what was fetched.
type fakeSource struct {
	mu      sync.Mutex
	docs    map[string]string
	fetched []string
	delay   time.Duration
}

func (s *fakeSource) Fetch(ctx context.Context, path string) ([]byte, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, path)
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	doc, ok := s.docs[path]
	if !ok {
		return nil, &sec.FetchFailedError{URL: path, Err: errors.New("HTTP 404")}
	}
	return []byte(doc), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func table(rows ...[5]string) string {
	var b strings.Builder
	b.WriteString(`<informationTable xmlns="http://www.sec.gov/edgar/document/thirteenf/informationtable">`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<infoTable><nameOfIssuer>%s</nameOfIssuer><cusip>%s</cusip><value>%s</value>`+
			`<shrsOrPrnAmt><sshPrnamt>%s</sshPrnamt><sshPrnamtType>%s</sshPrnamtType></shrsOrPrnAmt></infoTable>`,
			r[1], r[0], r[2], r[3], r[4])
	}
	b.WriteString(`</informationTable>`)
	return b.String()
}

// Lines follow form.idx columns: form type, company name, CIK, date filed, file name.
const threeLineIndex = `13F-HR      Zeta Holdings LLC        0000999999  2021-02-01  edgar/data/999999/doc0.txt
13F-HR      Acme Capital Partners    0000123456  2021-02-10  edgar/data/123456/doc1.txt
13F-HR      Omega Fund               0000777777  2021-02-11  edgar/data/777777/doc2.txt
`

func TestEndToEndFirstFiling(t *testing.T) {
	// The first matching line is filtered out by form type, so the
	// Acme line is the first 13F-HR reference.
	raw := strings.Replace(threeLineIndex, "13F-HR      Zeta", "10-K        Zeta", 1)
	src := &fakeSource{docs: map[string]string{
		"edgar/data/123456/doc1.txt": table(
			[5]string{"CUSIP1", "X", "100", "10", "SH"},
			[5]string{"CUSIP2", "Y", "200", "20", "SH"},
		),
	}}

	var out strings.Builder
	sink := emit.NewCSV(&out, emit.RecordColumns)
	if err := sink.Header(); err != nil {
		t.Fatal(err)
	}

	refs := index.Select(index.Parse([]byte(raw), "13F-HR"), nil, 1)
	stats, err := NewRunner(src, sink, Options{Logger: quietLogger()}).Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(src.fetched) != 1 || src.fetched[0] != "edgar/data/123456/doc1.txt" {
		t.Errorf("fetched %v, want exactly doc1", src.fetched)
	}
	want := "cik,name,cusip,issuer,value,quantity,type\n" +
		"0000123456,Acme Capital Partners,CUSIP1,X,100,10,SH\n" +
		"0000123456,Acme Capital Partners,CUSIP2,Y,200,20,SH\n"
	if out.String() != want {
		t.Errorf("output mismatch:\n got %q\nwant %q", out.String(), want)
	}
	if stats != (Stats{Filings: 1, Records: 2}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// recordingSink keeps records in memory.
type recordingSink struct {
	mu      sync.Mutex
	records []sec.Record
	err     error
}

func (s *recordingSink) Emit(r sec.Record) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.records = append(s.records, r)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Flush() error { return nil }

func TestFetchFailureSkipsOnlyThatFiling(t *testing.T) {
	src := &fakeSource{docs: map[string]string{
		"edgar/data/999999/doc0.txt": table([5]string{"A", "IA", "1", "1", "SH"}),
		"edgar/data/777777/doc2.txt": table([5]string{"C", "IC", "3", "3", "PRN"}),
	}}
	sink := &recordingSink{}

	refs := index.Select(index.Parse([]byte(threeLineIndex), "13F-HR"), nil, index.Unbounded)
	stats, err := NewRunner(src, sink, Options{Logger: quietLogger()}).Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 || stats.Filings != 2 || stats.Records != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(sink.records) != 2 || sink.records[0].CUSIP != "A" || sink.records[1].CUSIP != "C" {
		t.Errorf("unexpected records %+v", sink.records)
	}
}

func TestMalformedHoldingIsDropped(t *testing.T) {
	doc := table(
		[5]string{"", "NoCusip", "1", "1", "SH"},
		[5]string{"B", "IB", "2", "2", "SH"},
	)
	src := &fakeSource{docs: map[string]string{"edgar/data/123456/doc1.txt": doc}}
	sink := &recordingSink{}

	refs := index.Select(index.Parse([]byte(threeLineIndex), "13F-HR"), index.NewAllowList([]string{"123456"}), 0)
	stats, err := NewRunner(src, sink, Options{Logger: quietLogger()}).Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Malformed != 1 || stats.Records != 1 || stats.Filings != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if len(sink.records) != 1 || sink.records[0].CUSIP != "B" {
		t.Errorf("unexpected records %+v", sink.records)
	}
}

func TestUnparseableFilingIsSkipped(t *testing.T) {
	src := &fakeSource{docs: map[string]string{
		"edgar/data/123456/doc1.txt": "<XML><a><b></a></XML>",
	}}
	sink := &recordingSink{}
	refs := index.Select(index.Parse([]byte(threeLineIndex), "13F-HR"), index.NewAllowList([]string{"123456"}), 0)
	stats, err := NewRunner(src, sink, Options{Logger: quietLogger()}).Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Skipped != 1 || len(sink.records) != 0 {
		t.Errorf("unexpected stats %+v records %+v", stats, sink.records)
	}
}

func TestTruncatedFilingIsSkipped(t *testing.T) {
	full := "<XML>\n<edgarSubmission><credentials><cik>0000123456</cik></credentials></edgarSubmission>\n</XML>\n" +
		"<XML>\n" + table(
		[5]string{"CUSIP1", "X", "100", "10", "SH"},
		[5]string{"CUSIP2", "Y", "200", "20", "SH"},
	) + "\n</XML>\n"

	for name, doc := range map[string]string{
		"cut inside info table": full[:strings.Index(full, "CUSIP2")],
		"empty body":            "",
	} {
		t.Run(name, func(t *testing.T) {
			src := &fakeSource{docs: map[string]string{"edgar/data/123456/doc1.txt": doc}}
			sink := &recordingSink{}
			refs := index.Select(index.Parse([]byte(threeLineIndex), "13F-HR"), index.NewAllowList([]string{"123456"}), 0)
			stats, err := NewRunner(src, sink, Options{Logger: quietLogger()}).Run(context.Background(), refs)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if stats.Skipped != 1 || stats.Filings != 0 || len(sink.records) != 0 {
				t.Errorf("unexpected stats %+v records %+v", stats, sink.records)
			}
		})
	}
}

func TestRecordsCarryParentIdentity(t *testing.T) {
	docs := map[string]string{}
	var refs []sec.Filing
	for i := 0; i < 6; i++ {
		path := fmt.Sprintf("edgar/data/%d/doc.txt", i)
		refs = append(refs, sec.Filing{CIK: fmt.Sprintf("%010d", i+1), Name: fmt.Sprintf("Fund %d", i), Path: path})
		docs[path] = table(
			[5]string{fmt.Sprintf("C%d-1", i), "I", "1", "1", "SH"},
			[5]string{fmt.Sprintf("C%d-2", i), "I", "1", "1", "SH"},
			[5]string{fmt.Sprintf("C%d-3", i), "I", "1", "1", "SH"},
		)
	}
	seq := func(yield func(sec.Filing) bool) {
		for _, f := range refs {
			if !yield(f) {
				return
			}
		}
	}

	src := &fakeSource{docs: docs, delay: time.Millisecond}
	sink := &recordingSink{}
	if _, err := NewRunner(src, sink, Options{Concurrency: 4, Logger: quietLogger()}).Run(context.Background(), seq); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sink.records) != 18 {
		t.Fatalf("expected 18 records, got %d", len(sink.records))
	}

	byCIK := map[string]sec.Filing{}
	for _, f := range refs {
		byCIK[f.CIK] = f
	}
	// Every record matches its parent and rows of one filing are contiguous.
	seen := map[string]bool{}
	for i, r := range sink.records {
		parent, ok := byCIK[r.CIK]
		if !ok || parent.Name != r.Name {
			t.Errorf("record %d has identity %q/%q not matching any filing", i, r.CIK, r.Name)
		}
		if !strings.HasPrefix(r.CUSIP, "C") {
			t.Errorf("unexpected cusip %q", r.CUSIP)
		}
		if i%3 == 0 {
			if seen[r.CIK] {
				t.Errorf("rows for %s are not contiguous", r.CIK)
			}
			seen[r.CIK] = true
			continue
		}
		if sink.records[i-1].CIK != r.CIK {
			t.Errorf("rows interleave at %d", i)
		}
	}
}

func TestSelectionCompletesBeforeFetch(t *testing.T) {
	src := &fakeSource{docs: map[string]string{}}
	produced := 0
	seq := func(yield func(sec.Filing) bool) {
		for i := 0; i < 3; i++ {
			produced++
			if !yield(sec.Filing{CIK: "1", Path: fmt.Sprintf("p%d", i)}) {
				return
			}
		}
		src.mu.Lock()
		defer src.mu.Unlock()
		if len(src.fetched) != 0 {
			t.Errorf("fetch started before selection finished")
		}
	}
	if _, err := NewRunner(src, &recordingSink{}, Options{Concurrency: 2, Logger: quietLogger()}).Run(context.Background(), seq); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if produced != 3 {
		t.Errorf("expected 3 references, got %d", produced)
	}
}

func TestSinkFailureAborts(t *testing.T) {
	src := &fakeSource{docs: map[string]string{
		"edgar/data/999999/doc0.txt": table([5]string{"A", "IA", "1", "1", "SH"}),
	}}
	sink := &recordingSink{err: errors.New("broken pipe")}
	refs := index.Select(index.Parse([]byte(threeLineIndex), "13F-HR"), nil, 1)
	_, err := NewRunner(src, sink, Options{Logger: quietLogger()}).Run(context.Background(), refs)
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestCancelledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &fakeSource{docs: map[string]string{}}
	refs := index.Select(index.Parse([]byte(threeLineIndex), "13F-HR"), nil, index.Unbounded)
	_, err := NewRunner(src, &recordingSink{}, Options{Logger: quietLogger()}).Run(ctx, refs)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(src.fetched) != 0 {
		t.Errorf("no fetch should start after cancellation, got %v", src.fetched)
	}
}
