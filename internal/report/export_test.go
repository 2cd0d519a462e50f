package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sumire/defects/internal/domain"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func sampleRows() []domain.ExportRow {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return []domain.ExportRow{
		{
			ID:          2,
			ProjectName: strPtr("Tower A"),
			Title:       "Crack in wall, level 3",
			Description: strPtr("Width \"2mm\"\nnear the stairs"),
			Priority:    domain.PriorityCritical,
			Status:      domain.DefectStatusClosed,
			Assignee:    strPtr("ivan"),
			Reporter:    strPtr("olga"),
			DueDate:     timePtr(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)),
			CreatedAt:   created,
			ResolvedAt:  timePtr(time.Date(2024, 3, 8, 17, 0, 0, 0, time.UTC)),
		},
		{
			ID:        1,
			Title:     "Missing handrail",
			Priority:  domain.PriorityLow,
			Status:    domain.DefectStatusNew,
			CreatedAt: created,
		},
	}
}

func TestRecord_Fallbacks(t *testing.T) {
	rec := Record(sampleRows()[1])

	assert.Equal(t, []string{
		"1", "N/A", "Missing handrail", "", "low", "new",
		"Unassigned", "Unknown", "N/A", "2024-03-01", "N/A",
	}, rec)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\uFEFF")))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "export_csv", buf.Bytes())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRows()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "Tower A", rows[1][1])
	assert.Equal(t, "critical", rows[1][4])
	assert.Equal(t, "Unassigned", rows[2][6])
}

func TestWrite_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Format("pdf"), nil)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "format", verr.Field)
}

func TestFormat(t *testing.T) {
	assert.True(t, FormatCSV.Valid())
	assert.True(t, FormatXLSX.Valid())
	assert.False(t, Format("json").Valid())
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
}
