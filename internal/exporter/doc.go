// Package exporter writes revised tables as downloadable artifacts.
//
// CSVWriter produces UTF-8 CSV with a header row and no index column, with an
// optional byte order mark for Excel. XLSXWriter produces a single-sheet
// workbook with numeric cells stored as numbers. Artifacts are named
// output_<YYYYMMDD_HHMMSS>.<ext> by FileName.
//
// Example usage:
//
//	w, err := exporter.ForFormat("csv", exporter.WriteOptions{BOMPrefix: true})
//	if err != nil {
//		return err
//	}
//	path, err := exporter.WriteFile(dir, time.Now(), w, result)
package exporter
