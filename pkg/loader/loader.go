// Package loader reads service-history CSV files into typed records.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/soundprediction/go-servicegraph/pkg/types"
)

// RenameMap maps human-readable source column names to the identifier-safe
// names used as statement parameters. Name, make, problem and cause are
// already identifier-safe and pass through unchanged.
var RenameMap = map[string]string{
	"SR ref no":               types.ColSRRefNo,
	"SR date":                 types.ColSRDate,
	"commission date":         types.ColCommissionDate,
	"machine model":           types.ColMachineModel,
	"serial number":           types.ColSerialNumber,
	"component serial number": types.ColComponentSerialNumber,
	"sub assembly":            types.ColSubAssembly,
	"problem summary":         types.ColProblemSummary,
	"problem reported":        types.ColProblemReported,
	"failure mode":            types.ColFailureMode,
	"corrective action":       types.ColCorrectiveAction,
	"product category":        types.ColProductCategory,
	"assigned account":        types.ColAssignedAccount,
	"type of activity":        types.ColTypeOfActivity,
	"defect no":               types.ColDefectNo,
	"complaint category":      types.ColComplaintCategory,
}

// naTokens are the cell values pandas reads as missing by default. Matching
// is case-sensitive, so "NONE" or "Na" stay as written.
var naTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {}, "-NaN": {}, "-nan": {},
	"1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {}, "NA": {}, "NULL": {}, "NaN": {}, "None": {},
	"n/a": {}, "nan": {}, "null": {},
}

// Table is a loaded file: the renamed header and one record per data row.
type Table struct {
	Header  []string
	Records []types.ServiceRecord
}

// Option configures Load.
type Option func(*options)

type options struct {
	comma rune
}

// WithDelimiter sets the field delimiter. The default is a comma.
func WithDelimiter(r rune) Option {
	return func(o *options) { o.comma = r }
}

// Load reads path into a Table. Unreadable files fail with KindIO; malformed
// files or files lacking expected columns fail with KindMalformedInput.
func Load(path string, opts ...Option) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, types.NewError(types.KindIO, "load csv", err)
	}
	defer f.Close()

	return Read(f, opts...)
}

// Read parses CSV content from r. See Load.
func Read(r io.Reader, opts ...Option) (*Table, error) {
	o := options{comma: ','}
	for _, opt := range opts {
		opt(&o)
	}

	cr := csv.NewReader(r)
	cr.Comma = o.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rawHeader, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, types.NewError(types.KindMalformedInput, "load csv", errors.New("file has no header row"))
		}
		return nil, types.NewError(types.KindMalformedInput, "load csv", err)
	}

	header := RenameColumns(rawHeader)
	positions := make(map[string]int, len(header))
	for i, col := range header {
		if _, seen := positions[col]; !seen {
			positions[col] = i
		}
	}
	if missing := missingColumns(positions); len(missing) > 0 {
		return nil, types.NewError(types.KindMalformedInput, "load csv",
			fmt.Errorf("%w: %s", types.ErrMissingColumns, strings.Join(missing, ", ")))
	}

	table := &Table{Header: header}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.NewError(types.KindMalformedInput, "load csv", fmt.Errorf("line %d: %w", line, err))
		}
		if isBlank(row) {
			continue
		}

		var rec types.ServiceRecord
		for _, col := range types.Columns {
			idx := positions[col]
			if idx < len(row) {
				rec.Set(col, normalize(row[idx]))
			}
		}
		table.Records = append(table.Records, rec)
	}
	return table, nil
}

// RenameColumns applies RenameMap to a header row. Unknown columns keep their
// trimmed names.
func RenameColumns(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if renamed, ok := RenameMap[h]; ok {
			h = renamed
		}
		out[i] = h
	}
	return out
}

// WriteRenamed writes the table back out with the renamed header, one column
// per record field. Missing values are written as empty cells.
func WriteRenamed(path string, table *Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.NewError(types.KindIO, "write renamed csv", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return types.NewError(types.KindIO, "write renamed csv", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(types.Columns); err != nil {
		return types.NewError(types.KindIO, "write renamed csv", err)
	}
	for _, rec := range table.Records {
		if err := w.Write(rec.Values()); err != nil {
			return types.NewError(types.KindIO, "write renamed csv", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return types.NewError(types.KindIO, "write renamed csv", err)
	}
	return nil
}

// Column returns every value of a renamed column in row order.
func (t *Table) Column(column string) []string {
	out := make([]string, 0, len(t.Records))
	for _, rec := range t.Records {
		v, _ := rec.Field(column)
		out = append(out, v)
	}
	return out
}

func missingColumns(positions map[string]int) []string {
	var missing []string
	for _, col := range types.Columns {
		if _, ok := positions[col]; !ok {
			missing = append(missing, col)
		}
	}
	sort.Strings(missing)
	return missing
}

func normalize(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := naTokens[v]; ok {
		return ""
	}
	return v
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
