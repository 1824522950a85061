// Package output provides terminal output helpers for bridgectl.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warnColor    = color.New(color.FgYellow)
)

func Success(format string, a ...interface{}) {
	successColor.Printf("✓ "+format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	infoColor.Printf(format+"\n", a...)
}

func Warn(format string, a ...interface{}) {
	warnColor.Printf("⚠ "+format+"\n", a...)
}

func JSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Table renders aligned columnar output. Cells may carry their own color;
// alignment is computed on the uncolored width.
type Table struct {
	headers []string
	rows    [][]Cell
}

// Cell is one table cell, optionally colored.
type Cell struct {
	Text  string
	Color *color.Color
}

// Plain returns an uncolored cell.
func Plain(text string) Cell {
	return Cell{Text: text}
}

// Colored returns a cell rendered with the given color.
func Colored(text string, c *color.Color) Cell {
	return Cell{Text: text, Color: c}
}

func NewTable(headers []string) *Table {
	return &Table{
		headers: headers,
		rows:    [][]Cell{},
	}
}

func (t *Table) AddRow(row []Cell) {
	t.rows = append(t.rows, row)
}

func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = len(header)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if len(cell.Text) > widths[i] {
				widths[i] = len(cell.Text)
			}
		}
	}

	headerColor := color.New(color.FgWhite, color.Bold)
	for i, header := range t.headers {
		headerColor.Printf("%-*s  ", widths[i], header)
	}
	fmt.Println()

	for i := range t.headers {
		fmt.Print(strings.Repeat("-", widths[i]) + "  ")
	}
	fmt.Println()

	for _, row := range t.rows {
		for i, cell := range row {
			padded := fmt.Sprintf("%-*s", widths[i], cell.Text)
			if cell.Color != nil {
				cell.Color.Print(padded)
				fmt.Print("  ")
			} else {
				fmt.Print(padded + "  ")
			}
		}
		fmt.Println()
	}
}
