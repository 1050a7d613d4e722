// Package alert forwards High+ findings to a Telegram chat as they're
// produced, using the same shared HTTP transport conventions the registry
// client uses rather than standing up a separate client from scratch.
package alert

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpeldep/internal/config"
	"github.com/xkilldash9x/scalpeldep/internal/model"
	"github.com/xkilldash9x/scalpeldep/internal/network"
)

const telegramAPIBase = "https://api.telegram.org"

// minAlertSeverity is the floor above which a finding is forwarded: High
// and Critical, per the documented "High+" forwarding rule.
const minAlertSeverity = model.SeverityHigh

// Forwarder posts scan results to a Telegram chat via the Bot API's
// sendMessage method. Safe for concurrent use; the underlying client is.
type Forwarder struct {
	client  network.Doer
	token   string
	chatID  string
	logger  *zap.Logger
	baseURL string
}

// New builds a Forwarder from Telegram and network configuration. Returns
// (nil, false) when the forwarder is disabled or missing required
// credentials, so callers can treat a nil Forwarder as "do nothing"
// without littering every call site with an Enabled check.
func New(telegramCfg config.TelegramConfig, netCfg config.NetworkConfig, logger *zap.Logger) (*Forwarder, bool) {
	if !telegramCfg.Enabled || telegramCfg.Token == "" || telegramCfg.ChatID == "" {
		return nil, false
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientCfg := network.NewDefaultClientConfig()
	clientCfg.RequestTimeout = netCfg.Timeout
	clientCfg.IgnoreTLSErrors = netCfg.IgnoreTLSErrors
	if netCfg.Proxy.Enabled && netCfg.Proxy.Address != "" {
		if u, err := url.Parse(netCfg.Proxy.Address); err == nil {
			clientCfg.ProxyURL = u
		}
	}

	return &Forwarder{
		client:  network.NewClient(clientCfg),
		token:   telegramCfg.Token,
		chatID:  telegramCfg.ChatID,
		logger:  logger.Named("alert"),
		baseURL: telegramAPIBase,
	}, true
}

// ForwardTarget sends one summary message for the target, then one
// message per High+ finding, mirroring the dual notification shape of a
// scan summary plus per-finding detail. Errors from individual sends are
// logged, not returned, so a Telegram outage never fails the scan itself.
func (f *Forwarder) ForwardTarget(ctx context.Context, report *model.TargetReport) {
	if f == nil {
		return
	}

	alertable := filterHighPlus(report.Findings)
	if err := f.Send(ctx, summaryMessage(report, len(alertable))); err != nil {
		f.logger.Warn("failed to send scan summary alert", zap.String("target", report.URL), zap.Error(err))
	}

	for _, finding := range alertable {
		if err := f.Send(ctx, findingMessage(report.URL, finding)); err != nil {
			f.logger.Warn("failed to send finding alert",
				zap.String("target", report.URL), zap.String("package", finding.Name), zap.Error(err))
		}
	}
}

func filterHighPlus(findings []model.Finding) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		if f.Severity >= minAlertSeverity {
			out = append(out, f)
		}
	}
	return out
}

func summaryMessage(report *model.TargetReport, alertCount int) string {
	return fmt.Sprintf("*Scan complete*\nTarget: `%s`\nStatus: %s\nScripts seen: %d\nHigh+ findings: %d",
		escapeMarkdown(report.URL), report.Status, report.ScriptsSeen, alertCount)
}

func findingMessage(targetURL string, f model.Finding) string {
	return fmt.Sprintf("*Dependency confusion candidate*\nTarget: `%s`\nPackage: `%s`\nClass: %s\nSeverity: *%s*\nConfidence: %s\nEvidence: %d source(s)",
		escapeMarkdown(targetURL), escapeMarkdown(f.Name), f.Class, strings.ToUpper(f.Severity.String()), f.Confidence, len(f.Evidence))
}

// escapeMarkdown escapes the characters Telegram's legacy Markdown parse
// mode treats specially, so a package name or URL containing one of them
// can't break message formatting.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")
	return replacer.Replace(s)
}

// Send posts a single Markdown-formatted message to the configured chat.
func (f *Forwarder) Send(ctx context.Context, text string) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", f.baseURL, f.token)

	form := url.Values{
		"chat_id":    {f.chatID},
		"text":       {text},
		"parse_mode": {"Markdown"},
	}

	resp, err := network.DoWithRetry(ctx, f.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, 2)
	if err != nil {
		return fmt.Errorf("telegram sendMessage failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage returned status %s", resp.Status)
	}
	return nil
}
