package doctor

import (
	"net"
	"strings"
	"testing"

	"github.com/pagewarden/warden/internal/agent"
	"github.com/pagewarden/warden/internal/agent/tools"
	"github.com/pagewarden/warden/internal/agent/scriptqueue"
	"github.com/pagewarden/warden/internal/config"
	"github.com/pagewarden/warden/internal/networkcache"
)

func fullToolRegistry(t *testing.T) *agent.ToolRegistry {
	t.Helper()
	reg := agent.NewToolRegistry()
	cache := networkcache.New()
	queue := scriptqueue.New(nil)
	all := []agent.Tool{
		&tools.GetNetworkRequests{Cache: cache},
		&tools.GetRequestDetails{Cache: cache},
		&tools.GetRequestBodyChunk{Cache: cache},
		&tools.SearchRequests{Cache: cache},
		&tools.SearchRequestContent{Cache: cache},
		&tools.GetCacheStatistics{Cache: cache},
		&tools.ExposeRequestData{Cache: cache, Queue: queue},
		&tools.ExecuteJavaScript{Queue: queue},
	}
	for _, tool := range all {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("Register(%s) error: %v", tool.Name(), err)
		}
	}
	return reg
}

func TestRun_AllChecksPass(t *testing.T) {
	cfg := config.Default()
	cfg.Model.APIKeyEnv = "DOCTOR_TEST_API_KEY"
	t.Setenv("DOCTOR_TEST_API_KEY", "secret")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port

	report := Run(cfg, fullToolRegistry(t))
	if !report.Healthy() {
		t.Fatalf("expected a healthy report, got %+v", report.Checks)
	}
}

func TestRun_MissingAPIKeyFailsThatCheckOnly(t *testing.T) {
	cfg := config.Default()
	cfg.Model.APIKeyEnv = "DOCTOR_TEST_API_KEY_UNSET"
	t.Setenv("DOCTOR_TEST_API_KEY_UNSET", "")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen error: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = port

	report := Run(cfg, fullToolRegistry(t))
	if report.Healthy() {
		t.Fatal("expected the report to be unhealthy when the API key is unset")
	}
	var sawAPIKeyFailure bool
	for _, c := range report.Checks {
		if c.Name == "model_api_key" {
			if c.Pass {
				t.Error("model_api_key check should have failed")
			}
			sawAPIKeyFailure = true
		} else if !c.Pass {
			t.Errorf("check %q failed (%s); only model_api_key should fail", c.Name, c.Detail)
		}
	}
	if !sawAPIKeyFailure {
		t.Error("expected a model_api_key check in the report")
	}
}

func TestCheckTools_ReportsMissingToolsByName(t *testing.T) {
	reg := agent.NewToolRegistry()
	cache := networkcache.New()
	reg.Register(&tools.GetNetworkRequests{Cache: cache})

	check := checkTools(reg)
	if check.Pass {
		t.Error("expected checkTools to fail when most tools are unregistered")
	}
	if !strings.Contains(check.Detail, "execute_javascript") || strings.Contains(check.Detail, "get_network_requests") {
		t.Errorf("Detail = %q, want the unregistered tools named and the registered one absent", check.Detail)
	}
}

func TestCheckTools_NilRegistry(t *testing.T) {
	check := checkTools(nil)
	if check.Pass {
		t.Error("expected checkTools to fail for a nil registry")
	}
}

func TestCheckPort_UnavailablePortFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen error: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	check := checkPort("127.0.0.1", port)
	if check.Pass {
		t.Error("expected checkPort to fail for a port that is already bound")
	}
}

func TestReport_Healthy(t *testing.T) {
	r := Report{Checks: []Check{{Pass: true}, {Pass: true}}}
	if !r.Healthy() {
		t.Error("expected Healthy() true when every check passes")
	}
	r.Checks = append(r.Checks, Check{Pass: false})
	if r.Healthy() {
		t.Error("expected Healthy() false when a check fails")
	}
}
