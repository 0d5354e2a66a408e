package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// WriteXLSX exports the report as a single-sheet workbook.
func WriteXLSX(rep *Report, path string) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Reconciliation")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{
		"District", "Phase", "Outcome", "Checks", "Significant Changes",
		"Snapshot Updates", "Stable Days", "Extensions", "Extension Days",
		"Membership", "Clubs", "Distinguished",
		"Membership Impact %", "Club Count Impact %", "Distinguished Impact %",
		"Overall Significance",
	} {
		header.AddCell().SetString(h)
	}

	for _, d := range rep.Districts {
		row := sheet.AddRow()
		row.AddCell().SetString(d.DistrictID)
		row.AddCell().SetString(string(d.Phase))
		row.AddCell().SetString(string(d.Outcome))
		row.AddCell().SetInt(d.Checks)
		row.AddCell().SetInt(d.SignificantChanges)
		row.AddCell().SetInt(d.SnapshotUpdates)
		row.AddCell().SetInt(d.StableDays)
		row.AddCell().SetInt(d.Extensions)
		row.AddCell().SetInt(d.ExtensionDays)
		row.AddCell().SetInt(d.LastMembership)
		row.AddCell().SetInt(d.LastClubCount)
		row.AddCell().SetInt(d.LastDistinguished)
		row.AddCell().SetFloatWithFormat(d.Metrics.MembershipImpact, "0.00")
		row.AddCell().SetFloatWithFormat(d.Metrics.ClubCountImpact, "0.00")
		row.AddCell().SetFloatWithFormat(d.Metrics.DistinguishedImpact, "0.00")
		row.AddCell().SetFloatWithFormat(d.Metrics.OverallSignificance, "0.00")
	}

	if err := file.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}
