package readiness

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	domainErrors "github.com/core-tools/hsu-entrypoint/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHTTPCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" && r.Header.Get("X-Probe") == "entrypoint" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ok := &HTTPCheck{URL: server.URL + "/healthz", Headers: map[string]string{"X-Probe": "entrypoint"}}
	assert.NoError(t, ok.Check(context.Background()))

	failing := &HTTPCheck{URL: server.URL + "/other"}
	err := failing.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestGRPCCheck(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	go server.Serve(listener)
	defer server.Stop()

	healthServer.SetServingStatus("wordpress", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serving := &GRPCCheck{Address: listener.Addr().String()}
	assert.NoError(t, serving.Check(ctx))

	notServing := &GRPCCheck{Address: listener.Addr().String(), Service: "wordpress"}
	err = notServing.Check(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SERVING")
	assert.Equal(t, "grpc://"+listener.Addr().String()+"/wordpress", notServing.Name())
}

func TestExecCheck(t *testing.T) {
	assert.NoError(t, (&ExecCheck{Command: "true"}).Check(context.Background()))

	err := (&ExecCheck{Command: "sh", Args: []string{"-c", "echo 'syntax error' >&2; exit 1"}}).Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestMySQLCheck_Unreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	check := &MySQLCheck{Host: "127.0.0.1", Port: port, User: "wp", Password: "pw", Database: "wordpress"}
	assert.Equal(t, "mysql://wp@127.0.0.1:"+strconv.Itoa(port)+"/wordpress", check.Name())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, check.Check(ctx))
}

func TestNewCheck(t *testing.T) {
	check, err := NewCheck(CheckConfig{Type: CheckTypeMySQL, MySQL: MySQLCheckConfig{
		Host: "mariadb", User: "wp", Database: "wordpress",
	}}, nil)
	require.NoError(t, err)
	mysqlCheck, ok := check.(*MySQLCheck)
	require.True(t, ok)
	assert.Equal(t, 3306, mysqlCheck.Port)

	named, err := NewCheck(CheckConfig{Name: "php-fpm", Type: CheckTypeTCP, TCP: TCPCheckConfig{Host: "wordpress", Port: 9000}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "php-fpm", named.Name())
}

func TestNewCheck_NamedCheckDelegates(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	check, err := NewCheck(CheckConfig{Name: "php-fpm", Type: CheckTypeTCP, TCP: TCPCheckConfig{Host: "127.0.0.1", Port: port}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "php-fpm", check.Name())
	assert.NoError(t, check.Check(context.Background()))

	require.NoError(t, listener.Close())
	assert.Error(t, check.Check(context.Background()))
}

func TestValidateCheckConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    CheckConfig
		shouldErr bool
	}{
		{name: "valid_tcp", config: CheckConfig{Type: CheckTypeTCP, TCP: TCPCheckConfig{Host: "wordpress", Port: 9000}}},
		{name: "tcp_missing_host", config: CheckConfig{Type: CheckTypeTCP, TCP: TCPCheckConfig{Port: 9000}}, shouldErr: true},
		{name: "tcp_bad_port", config: CheckConfig{Type: CheckTypeTCP, TCP: TCPCheckConfig{Host: "x", Port: 70000}}, shouldErr: true},
		{name: "mysql_missing_database", config: CheckConfig{Type: CheckTypeMySQL, MySQL: MySQLCheckConfig{Host: "db", User: "u"}}, shouldErr: true},
		{name: "http_bad_scheme", config: CheckConfig{Type: CheckTypeHTTP, HTTP: HTTPCheckConfig{URL: "ftp://x"}}, shouldErr: true},
		{name: "grpc_missing_port", config: CheckConfig{Type: CheckTypeGRPC, GRPC: GRPCCheckConfig{Address: "localhost"}}, shouldErr: true},
		{name: "exec_blank", config: CheckConfig{Type: CheckTypeExec, Exec: ExecCheckConfig{Command: " "}}, shouldErr: true},
		{name: "process_missing_pid_file", config: CheckConfig{Type: CheckTypeProcess}, shouldErr: true},
		{name: "unknown_type", config: CheckConfig{Type: "smtp"}, shouldErr: true},
		{
			name: "negative_retry_interval",
			config: CheckConfig{
				Type:  CheckTypeTCP,
				TCP:   TCPCheckConfig{Host: "wordpress", Port: 9000},
				Retry: RetryPolicy{Interval: -time.Second},
			},
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCheckConfig(tt.config)
			if tt.shouldErr {
				assert.Error(t, err)
				assert.True(t, domainErrors.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
