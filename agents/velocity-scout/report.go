package velocityscout

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"velocity-scout/internal/models"
	"velocity-scout/shared/storage"
)

// ReportFileName is the default file name for a saved text report.
func ReportFileName(keyword string, now time.Time) string {
	return fmt.Sprintf("AnalysisResult_%s_%s.txt", keyword, now.Format("20060102_150405"))
}

// WriteReport renders ranked items as the plain-text results report.
func WriteReport(w io.Writer, keyword string, items []models.DiscoveredItem, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "--- YouTube Analysis Results (%s) ---\n", now.Format("2006-01-02 15:04"))
	fmt.Fprintf(bw, "Search Keyword: %s\n\n", keyword)

	for i, v := range items {
		fmt.Fprintf(bw, "🏆 #%d. %s\n", i+1, v.Title)
		fmt.Fprintf(bw, "   - Channel: %s (%s subscribers)\n", v.Channel, humanize.Comma(v.Subscribers))
		fmt.Fprintf(bw, "   - Upload Date: %s / Views: %s\n", v.UploadDate, humanize.Comma(v.Views))
		fmt.Fprintf(bw, "   - Video Duration: %dm %ds\n", v.DurationSeconds/60, v.DurationSeconds%60)
		fmt.Fprintf(bw, "   - 🔥 View Velocity: %.1f\n", v.ViewVelocity)
		fmt.Fprintf(bw, "   - URL: %s\n\n", v.URL)
	}

	return bw.Flush()
}

// SaveReport writes the text report to path, replacing it atomically.
func SaveReport(path, keyword string, items []models.DiscoveredItem, now time.Time) error {
	_, err := storage.ReplaceFile(path, ".velocity-scout-report-*.tmp", func(w io.Writer) error {
		return WriteReport(w, keyword, items, now)
	})
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}
