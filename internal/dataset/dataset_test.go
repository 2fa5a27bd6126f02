package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/triangulate/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSV_HeaderAliases(t *testing.T) {
	path := writeFile(t, "orgs.csv", `ID,Organisation,Region,URL,Contact Person,Role,Telephone,Email Address,Status,Confidence,Sources
ORG-1,Acme Plumbing,Gauteng,http://acme.co.za,Jane Doe,Owner,,jane@acme.co.za,Verified,80,https://cipc.gov.za/1; https://acme.co.za
,Beta Builders,Western Cape,,,,,,,,

,,,,,,,,,,
`)

	orgs, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, orgs, 2)

	assert.Equal(t, model.Organisation{
		ID:           "ORG-1",
		Name:         "Acme Plumbing",
		Province:     "Gauteng",
		Website:      "http://acme.co.za",
		ContactName:  "Jane Doe",
		ContactTitle: "Owner",
		Email:        "jane@acme.co.za",
		Status:       model.StatusVerified,
		Confidence:   80,
		KnownSources: []string{"https://cipc.gov.za/1", "https://acme.co.za"},
	}, orgs[0])

	assert.Equal(t, "ROW-2", orgs[1].ID)
	assert.Equal(t, model.StatusCandidate, orgs[1].Status)
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "open csv")

	_, err = ReadCSV(writeFile(t, "noname.csv", "id,website\n1,x.org\n"))
	assert.ErrorContains(t, err, `missing required column "name"`)

	_, err = ReadCSV(writeFile(t, "dup.csv", "id,name\nA,One\nA,Two\n"))
	assert.ErrorContains(t, err, `duplicate id "A"`)

	_, err = ReadCSV(writeFile(t, "conf.csv", "id,name,confidence\nA,One,high\n"))
	assert.ErrorContains(t, err, "confidence")

	_, err = ReadCSV(writeFile(t, "empty.csv", ""))
	assert.ErrorContains(t, err, "no header row")
}

func sample() []model.Organisation {
	return []model.Organisation{
		{ID: "A", Name: "Acme", Website: "https://acme.co.za", Phone: "+27821234567", Status: model.StatusVerified, Confidence: 95, KnownSources: []string{"https://cipc.gov.za/1", "https://press.example.com/a"}},
		{ID: "B", Name: "Beta, \"The\" Builders", Status: model.StatusNeedsReview},
	}
}

func TestCSV_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, Write(path, sample()))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestXLSX_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, Write(path, sample()))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, sample(), got)
}

func TestReadXLSX_NamedSheet(t *testing.T) {
	f := xlsx.NewFile()
	_, err := f.AddSheet("Notes")
	require.NoError(t, err)
	sheet, err := f.AddSheet("Data")
	require.NoError(t, err)
	addRow(sheet, []string{"Company", "Website"})
	addRow(sheet, []string{"Gamma", "gamma.org"})

	path := filepath.Join(t.TempDir(), "in.xlsx")
	require.NoError(t, f.Save(path))

	got, err := ReadXLSX(path, "Data")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Gamma", got[0].Name)
	assert.Equal(t, "gamma.org", got[0].Website)

	_, err = ReadXLSX(path, "Missing")
	assert.ErrorContains(t, err, `sheet "Missing" not found`)

	_, err = ReadXLSX(path, "")
	assert.ErrorContains(t, err, "no header row")
}

func TestUnsupportedExtension(t *testing.T) {
	_, err := Read("orgs.json")
	assert.ErrorContains(t, err, "unsupported file type")
	assert.ErrorContains(t, Write("orgs.txt", nil), "unsupported file type")
}
