package store

import (
	"context"
)

// Stats holds row counts of the entity tables.
type Stats struct {
	Driver        string `json:"driver"`
	Files         int64  `json:"files"`
	Packages      int64  `json:"packages"`
	PackageFiles  int64  `json:"packages_files"`
	Licenses      int64  `json:"licenses"`
	FileLicenses  int64  `json:"files_licenses"`
	Documents     int64  `json:"documents"`
	Namespaces    int64  `json:"document_namespaces"`
	Identifiers   int64  `json:"identifiers"`
	Relationships int64  `json:"relationships"`
	Annotations   int64  `json:"annotations"`
	Creators      int64  `json:"creators"`
	Scanners      int64  `json:"scanners"`
	FileScans     int64  `json:"files_scans"`
	PackageScans  int64  `json:"packages_scans"`
}

// Stats counts the rows of every entity table.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Driver: s.driver}
	err := s.WithReadTx(ctx, func(tx *Tx) error {
		for table, dest := range map[string]*int64{
			"files":               &st.Files,
			"packages":            &st.Packages,
			"packages_files":      &st.PackageFiles,
			"licenses":            &st.Licenses,
			"files_licenses":      &st.FileLicenses,
			"documents":           &st.Documents,
			"document_namespaces": &st.Namespaces,
			"identifiers":         &st.Identifiers,
			"relationships":       &st.Relationships,
			"annotations":         &st.Annotations,
			"creators":            &st.Creators,
			"scanners":            &st.Scanners,
			"files_scans":         &st.FileScans,
			"packages_scans":      &st.PackageScans,
		} {
			n, err := tx.count(ctx, "store.Stats", "SELECT COUNT(*) FROM "+table)
			if err != nil {
				return err
			}
			*dest = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}
