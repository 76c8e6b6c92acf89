// Package xlsxreport renders club reports as Excel workbooks.
package xlsxreport

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Overland-East-Bay/rider-standings-api/internal/app/standings"
)

const StandingsSheet = "Standings"

var standingsHeader = []any{"Rank", "Member ID", "Name", "Locality", "Initial score", "Current score", "Tier", "Computed at"}

// WriteStandings writes rows as a single-sheet workbook to w. The generation time goes in a
// footer row below the table.
func WriteStandings(w io.Writer, rows []standings.Standing, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), StandingsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := f.SetSheetRow(StandingsSheet, "A1", &standingsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(StandingsSheet, "A1", "H1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, r := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		cells := []any{
			r.Rank,
			int64(r.MemberID),
			r.DisplayName,
			string(r.Locality),
			r.InitialScore,
			r.CurrentScore,
			r.Tier.Label,
			r.ComputedAt.UTC().Format(time.RFC3339),
		}
		if err := f.SetSheetRow(StandingsSheet, axis, &cells); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	footer, err := excelize.CoordinatesToCellName(1, len(rows)+3)
	if err != nil {
		return err
	}
	if err := f.SetCellStr(StandingsSheet, footer, "Generated "+generatedAt.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}

	if err := f.SetColWidth(StandingsSheet, "C", "D", 24); err != nil {
		return err
	}
	if err := f.SetColWidth(StandingsSheet, "H", "H", 22); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
