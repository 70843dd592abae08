package casehold

import (
	"fmt"

	"github.com/haasonsaas/ranktune/internal/jsonl"
)

// ReadRows loads corpus rows from a local JSON Lines dump, for preparing
// data without hub access. Rows are validated the same way fetched rows
// are; the first malformed row aborts the load.
func ReadRows(path string) ([]Row, error) {
	rows, err := jsonl.ReadFile[Row](path)
	if err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := row.Validate(); err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i, err)
		}
	}
	return rows, nil
}
