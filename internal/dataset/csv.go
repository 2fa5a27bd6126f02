package dataset

import (
	"encoding/csv"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triangulate/internal/model"
)

// ReadCSV reads a CSV dataset with a header row.
func ReadCSV(path string) ([]model.Organisation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open csv")
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "dataset: read csv")
	}
	return parseRows(records)
}

// WriteCSV writes orgs with the canonical header.
func WriteCSV(path string, orgs []model.Organisation) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "dataset: create csv")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Columns); err != nil {
		return eris.Wrap(err, "dataset: write header")
	}
	for _, o := range orgs {
		if err := w.Write(toRow(o)); err != nil {
			return eris.Wrapf(err, "dataset: write row %s", o.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "dataset: flush csv")
	}
	return eris.Wrap(f.Sync(), "dataset: sync csv")
}
