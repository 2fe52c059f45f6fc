// Package validation checks uploaded files and local paths before ingestion.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "allocator/internal/errors"
)

// UploadRules bounds what an upload may be
type UploadRules struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// FileValidator provides file validation shared by the server and the CLI
type FileValidator struct {
	rules  UploadRules
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(rules UploadRules, logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		rules:  rules,
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// MaxBytes returns the upload size limit, zero meaning unlimited
func (v *FileValidator) MaxBytes() int64 { return v.rules.MaxBytes }

// CleanName strips any directory part a client may have sent with the file name
func CleanName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	return filepath.Base(filepath.Clean("/" + name))
}

// ValidateUpload checks the name and size of an uploaded file
func (v *FileValidator) ValidateUpload(name string, size int64) error {
	base := CleanName(name)
	if base == "" || base == "/" || base == "." {
		return apperrors.NewInvalidParameterError("file name is required")
	}

	if strings.HasPrefix(base, "~$") {
		v.logger.Warn("Rejected temporary Excel file", slog.String("file", base))
		return apperrors.NewInvalidParameterError("file %s is a temporary Excel file", base)
	}

	ext := strings.ToLower(filepath.Ext(base))
	if !v.allowed(ext) {
		v.logger.Warn("Rejected file extension",
			slog.String("file", base),
			slog.String("extension", ext))
		return apperrors.NewUnreadableFormatError(
			fmt.Sprintf("file %s has unsupported extension %q", base, ext), nil).
			WithContext("allowed_extensions", v.rules.AllowedExtensions)
	}

	if size == 0 {
		return apperrors.NewInvalidParameterError("file %s is empty", base)
	}
	if v.rules.MaxBytes > 0 && size > v.rules.MaxBytes {
		v.logger.Warn("Rejected oversized upload",
			slog.String("file", base),
			slog.Int64("size", size),
			slog.Int64("max_bytes", v.rules.MaxBytes))
		return apperrors.ErrPayloadTooLarge
	}

	v.logger.Debug("Upload validated",
		slog.String("file", base),
		slog.Int64("size", size))
	return nil
}

// ValidateFile checks that a local file exists, is readable and passes ValidateUpload
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return apperrors.NewInvalidParameterError("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return apperrors.NewInvalidParameterError("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	return v.ValidateUpload(filepath.Base(path), info.Size())
}

// ValidateOutputDirectory ensures the output directory exists and is writable
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}

func (v *FileValidator) allowed(ext string) bool {
	if len(v.rules.AllowedExtensions) == 0 {
		return true
	}
	for _, a := range v.rules.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
