// Package htmltable turns HTML tables containing rowspan/colspan merged
// cells into dense rectangular grids of strings.
package htmltable

import (
	"errors"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoTable is returned when the input contains no table rows.
var ErrNoTable = errors.New("no table found")

// Table holds one normalized table: a header row plus data rows, all
// padded to the same width.
type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Parse normalizes the first table found in the HTML fragment.
func Parse(fragment string) (*Table, error) {
	tables, err := ParseAll(fragment)
	if err != nil {
		return nil, err
	}
	return tables[0], nil
}

// ParseAll normalizes every table found in the HTML fragment.
func ParseAll(fragment string) ([]*Table, error) {
	if strings.TrimSpace(fragment) == "" {
		return nil, errors.New("input is empty")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}

	var tables []*Table
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		if t := normalize(table.Find("tr")); t != nil {
			tables = append(tables, t)
		}
	})

	if len(tables) == 0 {
		return nil, ErrNoTable
	}
	return tables, nil
}

// normalize walks the rows of one table and resolves merged cells into
// a dense grid. Returns nil when the selection holds no rows.
func normalize(rows *goquery.Selection) *Table {
	if rows.Length() == 0 {
		return nil
	}

	// Sparse grid: nil means the slot was never covered by any cell.
	var grid [][]*string
	maxCols := 0

	rows.Each(func(rowIdx int, row *goquery.Selection) {
		for len(grid) <= rowIdx {
			grid = append(grid, nil)
		}

		colIdx := 0
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			// Skip slots already claimed by a rowspan from above.
			for colIdx < len(grid[rowIdx]) && grid[rowIdx][colIdx] != nil {
				colIdx++
			}

			colspan := spanAttr(cell, "colspan")
			rowspan := spanAttr(cell, "rowspan")
			content := strings.TrimSpace(cell.Text())

			for r := 0; r < rowspan; r++ {
				targetRow := rowIdx + r
				for len(grid) <= targetRow {
					grid = append(grid, nil)
				}
				for c := 0; c < colspan; c++ {
					targetCol := colIdx + c
					for len(grid[targetRow]) <= targetCol {
						grid[targetRow] = append(grid[targetRow], nil)
					}
					// The origin slot keeps the text; every other
					// covered slot gets an explicit empty string so
					// later rows stay aligned.
					v := ""
					if r == 0 && c == 0 {
						v = content
					}
					s := v
					grid[targetRow][targetCol] = &s
					if targetCol+1 > maxCols {
						maxCols = targetCol + 1
					}
				}
			}

			colIdx += colspan
		})
	})

	// Convert to plain strings and right-pad every row.
	out := make([][]string, len(grid))
	for i, row := range grid {
		dense := make([]string, maxCols)
		for j, cell := range row {
			if cell != nil {
				dense[j] = *cell
			}
		}
		out[i] = dense
	}

	return &Table{Headers: out[0], Rows: out[1:]}
}

func spanAttr(cell *goquery.Selection, name string) int {
	if v, ok := cell.Attr(name); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 1 {
			return n
		}
	}
	return 1
}
