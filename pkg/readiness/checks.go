package readiness

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Dialer opens network connections; *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// TCPCheck is ready when a TCP connection to Address can be established.
type TCPCheck struct {
	Address string
	Dialer  Dialer
}

func NewTCPCheck(host string, port int, dialer Dialer) *TCPCheck {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	return &TCPCheck{
		Address: net.JoinHostPort(host, strconv.Itoa(port)),
		Dialer:  dialer,
	}
}

func (c *TCPCheck) Name() string {
	return "tcp://" + c.Address
}

func (c *TCPCheck) Check(ctx context.Context) error {
	conn, err := c.Dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return fmt.Errorf("TCP connection failed: %w", err)
	}
	return conn.Close()
}

// MySQLCheck is ready when the credentials authenticate against Database
// and "SELECT 1" returns.
type MySQLCheck struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

func (c *MySQLCheck) Name() string {
	return fmt.Sprintf("mysql://%s@%s/%s", c.User, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database)
}

func (c *MySQLCheck) config() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	cfg.DBName = c.Database
	return cfg
}

func (c *MySQLCheck) Check(ctx context.Context) error {
	cfg := c.config()
	if deadline, ok := ctx.Deadline(); ok {
		cfg.Timeout = timeUntil(deadline)
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return fmt.Errorf("invalid database configuration: %w", err)
	}
	db := sql.OpenDB(connector)
	defer db.Close()
	db.SetMaxOpenConns(1)

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database query failed: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("unexpected SELECT 1 result: %d", one)
	}
	return nil
}

// HTTPCheck is ready on any 2xx response.
type HTTPCheck struct {
	URL     string
	Method  string
	Headers map[string]string
	Client  *http.Client
}

func (c *HTTPCheck) Name() string {
	return c.URL
}

func (c *HTTPCheck) Check(ctx context.Context) error {
	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("HTTP health check failed: %s", resp.Status)
}

// GRPCCheck is ready when the standard gRPC health service reports SERVING
// for Service ("" means the whole server).
type GRPCCheck struct {
	Address string
	Service string
}

func (c *GRPCCheck) Name() string {
	if c.Service == "" {
		return "grpc://" + c.Address
	}
	return "grpc://" + c.Address + "/" + c.Service
}

func (c *GRPCCheck) Check(ctx context.Context) error {
	conn, err := grpc.DialContext(ctx, c.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("gRPC connection failed: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: c.Service})
	if err != nil {
		return fmt.Errorf("gRPC health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("gRPC service not serving: %s", resp.GetStatus())
	}
	return nil
}

// ExecCheck is ready when the command exits zero, e.g. "nginx -t".
type ExecCheck struct {
	Command string
	Args    []string
}

func (c *ExecCheck) Name() string {
	return strings.TrimSpace("exec:" + c.Command + " " + strings.Join(c.Args, " "))
}

func (c *ExecCheck) Check(ctx context.Context) error {
	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return fmt.Errorf("command failed: %w, output: %s", err, strings.TrimSpace(output.String()))
	}
	return nil
}
