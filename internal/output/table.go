package output

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vitalsync/vitalsync/internal/core"
	"github.com/vitalsync/vitalsync/internal/core/offsets"
)

// TableFormatter renders listings as ASCII tables.
type TableFormatter struct{}

// FormatUsers renders the user directory as a table.
func (f *TableFormatter) FormatUsers(users []core.User) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"ID", "Project", "User", "Source", "Start", "End", "Authorized"})

	for _, u := range users {
		t.AppendRow(table.Row{
			u.VersionedID(),
			u.ProjectID,
			u.UserID,
			u.SourceID,
			formatDate(u.StartDate),
			formatDatePtr(u.EndDate),
			yesNo(u.Authorized),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", fmt.Sprintf("%d users", len(users))})
	return t.Render(), nil
}

// FormatOffsets renders stored offsets as a table.
func (f *TableFormatter) FormatOffsets(offs []offsets.Offset) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"User", "Route", "Offset"})

	for _, o := range offs {
		t.AppendRow(table.Row{o.UserID, o.Route, o.Offset.UTC().Format(time.RFC3339)})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d offsets", len(offs))})
	return t.Render(), nil
}

func formatDate(v time.Time) string {
	if v.IsZero() {
		return "-"
	}
	return v.UTC().Format("2006-01-02")
}

func formatDatePtr(v *time.Time) string {
	if v == nil {
		return "-"
	}
	return formatDate(*v)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
