// Package dataset reads and writes the tabular organisation datasets the
// pipeline enriches.
package dataset

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/triangulate/internal/model"
)

// Columns is the canonical column order used when writing.
var Columns = []string{
	"id", "name", "province", "website", "contact_name", "contact_title",
	"phone", "email", "status", "confidence", "known_sources",
}

// aliases maps accepted header spellings onto canonical columns.
var aliases = map[string]string{
	"organisation":   "name",
	"organization":   "name",
	"company":        "name",
	"region":         "province",
	"url":            "website",
	"contact":        "contact_name",
	"contact_person": "contact_name",
	"title":          "contact_title",
	"role":           "contact_title",
	"telephone":      "phone",
	"phone_number":   "phone",
	"email_address":  "email",
	"sources":        "known_sources",
	"evidence":       "known_sources",
}

// sourceSep separates known source URLs within one cell.
const sourceSep = ";"

func canonicalColumn(h string) string {
	key := strings.ToLower(strings.TrimSpace(h))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if c, ok := aliases[key]; ok {
		return c
	}
	return key
}

// Read loads a dataset, choosing the format from the file extension.
func Read(path string) ([]model.Organisation, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path)
	case ".xlsx":
		return ReadXLSX(path, "")
	}
	return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
}

// Write stores a dataset, choosing the format from the file extension.
func Write(path string, orgs []model.Organisation) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return WriteCSV(path, orgs)
	case ".xlsx":
		return WriteXLSX(path, orgs)
	}
	return eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
}

// parseRows maps a header row plus data rows onto organisations. Rows
// without an id get a positional one; duplicate ids are an error.
func parseRows(records [][]string) ([]model.Organisation, error) {
	if len(records) == 0 {
		return nil, eris.New("dataset: no header row")
	}

	colIdx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		c := canonicalColumn(h)
		if _, dup := colIdx[c]; !dup {
			colIdx[c] = i
		}
	}
	if _, ok := colIdx["name"]; !ok {
		return nil, eris.New(`dataset: missing required column "name"`)
	}

	seen := make(map[string]bool)
	var orgs []model.Organisation
	for n, row := range records[1:] {
		get := func(col string) string {
			i, ok := colIdx[col]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if isBlank(row) {
			continue
		}

		org := model.Organisation{
			ID:           get("id"),
			Name:         get("name"),
			Province:     get("province"),
			Website:      get("website"),
			ContactName:  get("contact_name"),
			ContactTitle: get("contact_title"),
			Phone:        get("phone"),
			Email:        get("email"),
			Status:       model.ParseStatus(get("status")),
		}
		if org.ID == "" {
			org.ID = fmt.Sprintf("ROW-%d", n+1)
		}
		if seen[org.ID] {
			return nil, eris.Errorf("dataset: duplicate id %q on row %d", org.ID, n+2)
		}
		seen[org.ID] = true

		if c := get("confidence"); c != "" {
			v, err := strconv.Atoi(c)
			if err != nil {
				return nil, eris.Wrapf(err, "dataset: row %d confidence %q", n+2, c)
			}
			org.Confidence = v
		}
		for _, s := range strings.Split(get("known_sources"), sourceSep) {
			if s = strings.TrimSpace(s); s != "" {
				org.KnownSources = append(org.KnownSources, s)
			}
		}
		orgs = append(orgs, org)
	}
	return orgs, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func toRow(o model.Organisation) []string {
	return []string{
		o.ID, o.Name, o.Province, o.Website, o.ContactName, o.ContactTitle,
		o.Phone, o.Email, string(o.Status), strconv.Itoa(o.Confidence),
		strings.Join(o.KnownSources, sourceSep),
	}
}
