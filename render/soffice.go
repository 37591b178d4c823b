package render

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// sofficeTimeout bounds a single DOCX to PDF conversion.
const sofficeTimeout = 120 * time.Second

// sofficeCandidates are common LibreOffice install locations checked before
// falling back to a PATH lookup.
var sofficeCandidates = []string{
	`C:\Program Files\LibreOffice\program\soffice.exe`,
	`C:\Program Files (x86)\LibreOffice\program\soffice.exe`,
	"/Applications/LibreOffice.app/Contents/MacOS/soffice",
	"/usr/bin/soffice",
	"/usr/bin/libreoffice",
	"/snap/bin/libreoffice",
}

// FindSoffice auto-detects the LibreOffice soffice executable. Returns an
// empty string when LibreOffice is not installed.
func FindSoffice() string {
	for _, candidate := range sofficeCandidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate
		}
	}
	for _, name := range []string{"soffice", "libreoffice"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// Service implements Renderer using go-fitz for PDF pages and a headless
// LibreOffice conversion for DOCX pages.
type Service struct {
	sofficePath string
}

// NewService creates a Service. sofficePath may be an explicit executable
// path, or "auto" to trigger auto-detection.
func NewService(sofficePath string) *Service {
	if sofficePath == "auto" {
		sofficePath = FindSoffice()
	}
	if Logger != nil {
		if sofficePath != "" {
			Logger.Info("LibreOffice found", "path", sofficePath)
		} else {
			Logger.Warn("LibreOffice not found, DOCX rendering disabled")
		}
	}
	return &Service{sofficePath: sofficePath}
}

// SofficeAvailable reports whether DOCX rendering can work.
func (s *Service) SofficeAvailable() bool {
	return s.sofficePath != ""
}

// RenderPDF converts all pages of a PDF file to images at the given DPI.
func (s *Service) RenderPDF(path string, dpi int) ([]PageImage, error) {
	return renderPDFPages(path, dpi)
}

// RenderDOCX converts a DOCX to an intermediate PDF with LibreOffice, then
// renders the PDF pages with go-fitz.
func (s *Service) RenderDOCX(ctx context.Context, path string, dpi int) ([]PageImage, error) {
	if s.sofficePath == "" {
		return nil, ErrUnavailable
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve DOCX path: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "soffice_convert_")
	if err != nil {
		return nil, fmt.Errorf("unable to create temp dir for conversion: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx, cancel := context.WithTimeout(ctx, sofficeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.sofficePath,
		"--headless",
		"--convert-to", "pdf",
		"--outdir", tmpDir,
		absPath,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("LibreOffice conversion failed: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	pdfPath, err := findConvertedPDF(tmpDir, absPath)
	if err != nil {
		return nil, err
	}

	return renderPDFPages(pdfPath, dpi)
}

// Close cleans up resources (no-op, documents are closed per-render)
func (s *Service) Close() error {
	return nil
}

// findConvertedPDF locates the PDF LibreOffice produced. It first looks for
// the expected <stem>.pdf name, then for any PDF in the output directory.
func findConvertedPDF(dir, docxPath string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(docxPath), filepath.Ext(docxPath))
	expected := filepath.Join(dir, stem+".pdf")
	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.pdf"))
	if err != nil || len(matches) == 0 {
		return "", fmt.Errorf("no PDF produced by LibreOffice in %s", dir)
	}
	return matches[0], nil
}
