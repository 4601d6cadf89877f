// Package doctor runs startup health checks, grounded on the teacher's
// internal/doctor package (probe.go/security_audit.go's
// Check-struct-plus-pass-bool report shape).
package doctor

import (
	"fmt"
	"net"
	"time"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/config"
)

// Check is one pass/fail diagnostic result.
type Check struct {
	Name   string
	Pass   bool
	Detail string
}

// Report is the full set of checks run for one doctor invocation.
type Report struct {
	Checks []Check
}

// Healthy reports whether every check in the report passed.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if !c.Pass {
			return false
		}
	}
	return true
}

// Run executes the standard set of startup checks against cfg and the
// constructed tool registry: config validity, model API key presence, tool
// registration completeness, and server port availability.
func Run(cfg *config.Config, tools *agent.ToolRegistry) Report {
	var report Report
	report.Checks = append(report.Checks, checkConfig(cfg))
	report.Checks = append(report.Checks, checkAPIKey(cfg))
	report.Checks = append(report.Checks, checkTools(tools))
	report.Checks = append(report.Checks, checkPort(cfg.Server.Host, cfg.Server.Port))
	return report
}

func checkConfig(cfg *config.Config) Check {
	if err := cfg.Validate(); err != nil {
		return Check{Name: "config", Pass: false, Detail: err.Error()}
	}
	return Check{Name: "config", Pass: true, Detail: "valid"}
}

func checkAPIKey(cfg *config.Config) Check {
	if _, err := cfg.APIKey(); err != nil {
		return Check{Name: "model_api_key", Pass: false, Detail: err.Error()}
	}
	return Check{Name: "model_api_key", Pass: true, Detail: "present"}
}

// expectedTools is the spec §4.4 tool surface every deployment must
// register.
var expectedTools = []string{
	"get_network_requests",
	"get_request_details",
	"get_request_body_chunk",
	"search_requests",
	"search_request_content",
	"get_cache_statistics",
	"expose_request_data",
	"execute_javascript",
}

func checkTools(tools *agent.ToolRegistry) Check {
	if tools == nil {
		return Check{Name: "tools", Pass: false, Detail: "tool registry not initialized"}
	}
	registered := make(map[string]bool)
	for _, name := range tools.Names() {
		registered[name] = true
	}
	var missing []string
	for _, name := range expectedTools {
		if !registered[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Check{Name: "tools", Pass: false, Detail: fmt.Sprintf("missing tools: %v", missing)}
	}
	return Check{Name: "tools", Pass: true, Detail: fmt.Sprintf("%d tools registered", len(registered))}
}

func checkPort(host string, port int) Check {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return Check{Name: "server_port", Pass: false, Detail: fmt.Sprintf("%s unavailable: %v", addr, err)}
	}
	_ = ln.Close()
	// give the OS a beat to release the port before the real server binds.
	time.Sleep(10 * time.Millisecond)
	return Check{Name: "server_port", Pass: true, Detail: fmt.Sprintf("%s available", addr)}
}
