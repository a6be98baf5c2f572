package email

import (
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"velocity-scout/internal/models"
	"velocity-scout/shared/config"
)

type capture struct {
	calls int
	addr  string
	to    []string
	msg   string
}

func newTestSender(c *capture) *Sender {
	s := NewSender(&config.EmailConfig{
		SMTPServer: "smtp.example.com",
		SMTPPort:   587,
		Username:   "user",
		Password:   "pass",
		FromEmail:  "scout@example.com",
		ToEmail:    "me@example.com",
	})
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		c.calls++
		c.addr = addr
		c.to = to
		c.msg = string(msg)
		return nil
	}
	return s
}

func TestSendReport(t *testing.T) {
	var c capture
	report := &models.DigestReport{
		Date: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC),
		Keywords: []models.KeywordReport{
			{Keyword: "fpv drone", Items: []models.DiscoveredItem{
				{ID: "a", Title: "Crazy <dive>", Channel: "Skyline", URL: "https://www.youtube.com/watch?v=a", Views: 1250000, Subscribers: 4200, ViewVelocity: 62500.4},
			}},
			{Keyword: "cinewhoop", Error: "API error: quotaExceeded"},
			{Keyword: "tinywhoop"},
		},
	}

	require.NoError(t, newTestSender(&c).SendReport(report))
	require.Equal(t, 1, c.calls)
	assert.Equal(t, "smtp.example.com:587", c.addr)
	assert.Equal(t, []string{"me@example.com"}, c.to)

	assert.Contains(t, c.msg, "Subject: Video Velocity Digest - 1 Fast-Rising Videos (Jun 15, 2025)")
	assert.Contains(t, c.msg, "Content-Type: text/html; charset=UTF-8")
	assert.Contains(t, c.msg, "Crazy &lt;dive&gt;")
	assert.Contains(t, c.msg, "1,250,000")
	assert.Contains(t, c.msg, "62,500")
	assert.Contains(t, c.msg, "API error: quotaExceeded")
	assert.Contains(t, c.msg, "No videos matched the filters.")
	assert.True(t, strings.Index(c.msg, "fpv drone") < strings.Index(c.msg, "cinewhoop"))
}

func TestSendReportSkipsEmptyDigest(t *testing.T) {
	var c capture
	err := newTestSender(&c).SendReport(&models.DigestReport{
		Keywords: []models.KeywordReport{{Keyword: "nothing"}},
	})
	require.NoError(t, err)
	assert.Zero(t, c.calls)

	assert.Error(t, newTestSender(&c).SendReport(nil))
}

func TestDigestBodyFormatsCounts(t *testing.T) {
	tests := []struct {
		name     string
		item     models.DiscoveredItem
		contains []string
	}{
		{"small counts", models.DiscoveredItem{ID: "s", Views: 999, Subscribers: 0, ViewVelocity: 12.6}, []string{">999<", ">0<", ">13<"}},
		{"thousands", models.DiscoveredItem{ID: "t", Views: 1234567, Subscribers: 123456, ViewVelocity: 999999.5}, []string{">1,234,567<", ">123,456<", ">1,000,000<"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := newTestSender(&capture{}).generateEmailBody(&models.DigestReport{
				Keywords: []models.KeywordReport{{Keyword: "fpv", Items: []models.DiscoveredItem{tt.item}}},
			})
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, body, want)
			}
		})
	}
}
