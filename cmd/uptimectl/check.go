package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hamed0406/uptimedispatch/internal/domain"
	"github.com/hamed0406/uptimedispatch/internal/probe"
)

type checkOutput struct {
	URL        string            `json:"url"`
	Status     domain.TickStatus `json:"status"`
	HTTPStatus int               `json:"http_status,omitempty"`
	LatencyMS  float64           `json:"latency_ms"`
	Reason     string            `json:"reason,omitempty"`
	DNSClass   string            `json:"dns_class,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Probe a URL once the way a worker would, with DNS diagnosis when down",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := runCheck(cmd, probe.NewHTTPChecker(cfg.ProbeTimeout), args[0])
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), out)
		}
		printCheck(cmd.OutOrStdout(), out)
		return nil
	},
}

func runCheck(cmd *cobra.Command, chk probe.Checker, raw string) checkOutput {
	url := probe.NormalizeURL(raw)
	res := chk.Check(cmd.Context(), url)

	out := checkOutput{
		URL:        url,
		Status:     domain.StatusDown,
		HTTPStatus: res.StatusCode,
		LatencyMS:  res.LatencyMS,
		Reason:     res.Message,
	}
	if res.Success {
		out.Status = domain.StatusUp
		return out
	}

	// If HTTP check fails, run DNS check
	dns := probe.Diagnose(cmd.Context(), nil, url)
	out.DNSClass = dns.Class
	if logger != nil {
		logger.Info("dns_check",
			zap.String("domain", dns.Domain),
			zap.String("class", dns.Class),
			zap.Strings("nameservers", dns.Nameservers),
			zap.String("cname", dns.CNAME),
			zap.String("resolver_error", dns.ResolverError),
		)
	}
	return out
}

func printCheck(w io.Writer, out checkOutput) {
	fmt.Fprintf(w, "%s %s\n", out.URL, strings.ToUpper(string(out.Status)))
	if out.HTTPStatus != 0 {
		fmt.Fprintf(w, "  http:    %d\n", out.HTTPStatus)
	}
	fmt.Fprintf(w, "  latency: %.1fms\n", out.LatencyMS)
	if out.Reason != "" {
		fmt.Fprintf(w, "  reason:  %s\n", out.Reason)
	}
	if out.DNSClass != "" {
		fmt.Fprintf(w, "  dns:     %s\n", out.DNSClass)
	}
}
