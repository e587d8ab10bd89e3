// =============================================================================
// Invoice Reconciler - File Manager Utility
// =============================================================================
//
// This module provides file management utilities for the reconciler:
//   - Statement file discovery and description
//   - Statement archival (moving files of completed sessions)
//   - Report file naming
//   - Session summary logs
//
// ARCHIVAL STRATEGY:
//   - Statement files are moved to the archive once their session is
//     completed, so the inbox only holds statements still being worked on
//   - Files of saved/cancelled/error sessions stay where they are
//   - Reports and summary logs are written to the output directory
//
// =============================================================================

package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ginjaninja78/invoice-reconciler/internal/types"
)

// Supported statement and ledger formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// =============================================================================
// FILE MANAGER
// =============================================================================

// FileManager handles file operations for the reconciler.
type FileManager struct {
	// StatementsDir is where bank statement files are dropped.
	StatementsDir string

	// OutputDir is where reports and summary logs are written.
	OutputDir string

	// ArchiveDir receives statement files of completed sessions.
	ArchiveDir string

	// UseTimestampSubdirs creates date-based subdirectories in the archive.
	// Example: statements_archive/2024/01/15/march.csv
	UseTimestampSubdirs bool
}

// NewFileManager creates a new FileManager with the specified directories.
func NewFileManager(statementsDir, outputDir, archiveDir string) *FileManager {
	return &FileManager{
		StatementsDir: statementsDir,
		OutputDir:     outputDir,
		ArchiveDir:    archiveDir,
	}
}

// =============================================================================
// DIRECTORY MANAGEMENT
// =============================================================================

// EnsureDirectories creates all required directories if they don't exist.
func (fm *FileManager) EnsureDirectories() error {
	for _, dir := range []string{fm.StatementsDir, fm.OutputDir, fm.ArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// =============================================================================
// FILE DISCOVERY
// =============================================================================

// DiscoverStatements lists the CSV and XLSX files in the statements
// directory, sorted by name so runs are reproducible.
func (fm *FileManager) DiscoverStatements() ([]string, error) {
	entries, err := os.ReadDir(fm.StatementsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan statements directory: %w", err)
	}

	var result []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "~$") {
			// "~$" files are Excel lock files.
			continue
		}
		if _, err := DetectFormat(entry.Name()); err != nil {
			continue
		}
		result = append(result, filepath.Join(fm.StatementsDir, entry.Name()))
	}

	sort.Strings(result)
	return result, nil
}

// DetectFormat returns FormatCSV or FormatXLSX based on the file extension.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported file type %q (expected .csv or .xlsx)", filepath.Ext(path))
}

// Describe builds the metadata recorded for a statement file.
func Describe(path string) (types.FileMeta, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.FileMeta{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return types.FileMeta{}, fmt.Errorf("%s is a directory", path)
	}

	format, err := DetectFormat(path)
	if err != nil {
		return types.FileMeta{}, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	return types.FileMeta{
		Name:       info.Name(),
		Path:       abs,
		Size:       info.Size(),
		Format:     format,
		ModifiedAt: info.ModTime().UTC(),
	}, nil
}

// =============================================================================
// FILE ARCHIVAL
// =============================================================================

// ArchiveStatement moves a statement file to the archive directory and
// returns its new path.
func (fm *FileManager) ArchiveStatement(filePath string) (string, error) {
	archivePath := fm.getArchivePath(filePath)

	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	if err := os.Rename(filePath, archivePath); err != nil {
		// If rename fails (e.g., cross-device), try copy and delete.
		if err := copyFile(filePath, archivePath); err != nil {
			return "", fmt.Errorf("failed to copy file to archive: %w", err)
		}
		if err := os.Remove(filePath); err != nil {
			return "", fmt.Errorf("failed to remove original file: %w", err)
		}
	}

	return archivePath, nil
}

// getArchivePath constructs the archive path for a file.
func (fm *FileManager) getArchivePath(filePath string) string {
	fileName := filepath.Base(filePath)

	if fm.UseTimestampSubdirs {
		now := time.Now()
		return filepath.Join(
			fm.ArchiveDir,
			fmt.Sprintf("%d", now.Year()),
			fmt.Sprintf("%02d", now.Month()),
			fmt.Sprintf("%02d", now.Day()),
			fileName,
		)
	}

	return filepath.Join(fm.ArchiveDir, fileName)
}

// =============================================================================
// REPORT FILE NAMING
// =============================================================================

// GenerateReportFileName builds a report file name.
//
// PARAMETERS:
//   - format: The format string for the file name.
//             Placeholders:
//               {uuid}      - A random UUID
//               {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//               {date}      - Current date (YYYYMMDD)
//               {month}     - Reconciliation month, from params
//               {session}   - Session id, from params
//   - ext: The file extension without the dot ("xml", "xlsx").
//   - params: A map of placeholder values.
//
// EXAMPLE:
//   format: "reconciliation_{month}_{timestamp}"
//   params: {"month": "2024-03"}
//   output: "reconciliation_2024-03_20240415_143022.xml"
//
// A format without any placeholder gets a uuid suffix so repeated exports
// never overwrite each other.
func GenerateReportFileName(format, ext string, params map[string]string) string {
	now := time.Now()

	if format == "" {
		format = "reconciliation_{uuid}"
	}
	if !strings.Contains(format, "{") {
		format += "_{uuid}"
	}

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}

	suffix := "." + strings.TrimPrefix(ext, ".")
	if !strings.HasSuffix(strings.ToLower(result), strings.ToLower(suffix)) {
		result += suffix
	}

	return result
}

// =============================================================================
// SESSION SUMMARY
// =============================================================================

// WriteSummaryLog writes a human-readable summary of a session to the output
// directory and returns its path.
func WriteSummaryLog(session types.Session, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("session_summary_%s_%s.txt", session.ID, timestamp))

	file, err := os.Create(summaryPath)
	if err != nil {
		return "", fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	s := session.Summary

	fmt.Fprintf(writer, "Invoice Reconciler - Session Summary\n"+
		"================================================================================\n\n"+
		"Session:\n"+
		"  ID:         %s\n"+
		"  Month:      %s\n"+
		"  Status:     %s\n"+
		"  Started:    %s\n"+
		"  Updated:    %s\n\n"+
		"Statistics:\n"+
		"  Transactions:        %d\n"+
		"  Debit Transactions:  %d\n"+
		"  Reconciled:          %d\n"+
		"  Unreconciled:        %d\n"+
		"  Progress:            %.0f%%\n"+
		"  Reconciled Amount:   %s\n\n",
		session.ID,
		session.Data.ReconciliationMonth,
		session.Status,
		session.Date.Format("2006-01-02 15:04:05"),
		session.UpdatedAt.Format("2006-01-02 15:04:05"),
		s.TotalTransactions,
		s.TotalDebitTransactions,
		s.ReconciledCount,
		s.UnreconciledCount,
		s.ProgressPercentage,
		s.ReconciledAmount.StringFixed(2))

	if len(session.Data.BankStatements) > 0 {
		writer.WriteString("Bank Statements:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, f := range session.Data.BankStatements {
			fmt.Fprintf(writer, "  %s (%s, %d bytes)\n", f.Name, f.Format, f.Size)
		}
		writer.WriteString("\n")
	}

	if pending := session.PendingDebits(); len(pending) > 0 {
		writer.WriteString("Pending Debits:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for _, tx := range pending {
			fmt.Fprintf(writer, "  %-20s %s %12s  %s\n", tx.ID, tx.Date.Format("2006-01-02"), tx.Amount.StringFixed(2), tx.Description)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary file: %w", err)
	}

	return summaryPath, nil
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// copyFile copies a file from src to dst.
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
