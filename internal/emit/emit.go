// Package emit writes pipeline output as CSV.
package emit

import (
	"encoding/csv"
	"io"

	"github.com/seenimoa/form13f/internal/sec"
)

// Column sets.
var (
	RecordColumns = []string{"cik", "name", "cusip", "issuer", "value", "quantity", "type"}
	FilingColumns = []string{"cik", "name", "path"}
)

// CSV writes a header row followed by data rows.
type CSV struct {
	w       *csv.Writer
	columns []string
	started bool
}

// NewCSV creates a writer for the given columns.
func NewCSV(w io.Writer, columns []string) *CSV {
	return &CSV{w: csv.NewWriter(w), columns: columns}
}

// Header writes the header row. It is a no-op after the first call.
func (c *CSV) Header() error {
	if c.started {
		return nil
	}
	c.started = true
	return c.w.Write(c.columns)
}

// Emit writes one holding row.
func (c *CSV) Emit(r sec.Record) error {
	return c.row([]string{r.CIK, r.Name, r.CUSIP, r.Issuer, r.Value, r.Quantity, r.Type})
}

// EmitFiling writes one filing reference row.
func (c *CSV) EmitFiling(f sec.Filing) error {
	return c.row([]string{f.CIK, f.Name, f.Path})
}

func (c *CSV) row(fields []string) error {
	if err := c.Header(); err != nil {
		return err
	}
	return c.w.Write(fields)
}

// Flush pushes buffered rows to the underlying writer.
func (c *CSV) Flush() error {
	c.w.Flush()
	return c.w.Error()
}
