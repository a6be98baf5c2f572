package velocityscout

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velocity-scout/internal/models"
)

var reportTime = time.Date(2025, 6, 15, 14, 30, 5, 0, time.UTC)

func reportItems() []models.DiscoveredItem {
	return []models.DiscoveredItem{{
		ID:              "abc",
		Title:           "Mountain dive",
		Channel:         "Skyline",
		Subscribers:     12500,
		UploadDate:      "2025-06-10",
		Views:           1500000,
		DurationSeconds: 185,
		ViewVelocity:    300000,
		URL:             "https://www.youtube.com/watch?v=abc",
	}}
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, "fpv", reportItems(), reportTime))

	want := "--- YouTube Analysis Results (2025-06-15 14:30) ---\n" +
		"Search Keyword: fpv\n\n" +
		"🏆 #1. Mountain dive\n" +
		"   - Channel: Skyline (12,500 subscribers)\n" +
		"   - Upload Date: 2025-06-10 / Views: 1,500,000\n" +
		"   - Video Duration: 3m 5s\n" +
		"   - 🔥 View Velocity: 300000.0\n" +
		"   - URL: https://www.youtube.com/watch?v=abc\n\n"
	assert.Equal(t, want, buf.String())
}

func TestSaveReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), ReportFileName("fpv", reportTime))
	assert.Equal(t, "AnalysisResult_fpv_20250615_143005.txt", filepath.Base(path))

	require.NoError(t, SaveReport(path, "fpv", reportItems(), reportTime))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "🏆 #1. Mountain dive")
}

func TestSaveReportReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale report"), 0644))

	require.NoError(t, SaveReport(path, "fpv", reportItems(), reportTime))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale report")
	assert.Contains(t, string(data), "Search Keyword: fpv")

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".velocity-scout-report-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
