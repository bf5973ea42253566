package readiness

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/core-tools/hsu-entrypoint/pkg/errors"
)

type CheckType string

const (
	CheckTypeTCP   CheckType = "tcp"
	CheckTypeMySQL CheckType = "mysql"
	CheckTypeHTTP  CheckType = "http"
	CheckTypeGRPC  CheckType = "grpc"
	CheckTypeExec  CheckType = "exec"

	CheckTypeProcess CheckType = "process"
)

type TCPCheckConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type MySQLCheckConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type HTTPCheckConfig struct {
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

type GRPCCheckConfig struct {
	Address string `yaml:"address"`
	Service string `yaml:"service,omitempty"`
}

type ExecCheckConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args,omitempty"`
}

type ProcessCheckConfig struct {
	PIDFile string `yaml:"pid_file"`
}

// CheckConfig declares one dependency. Only the section matching Type is read.
type CheckConfig struct {
	Name  string           `yaml:"name,omitempty"`
	Type  CheckType        `yaml:"type"`
	TCP   TCPCheckConfig   `yaml:"tcp,omitempty"`
	MySQL MySQLCheckConfig `yaml:"mysql,omitempty"`
	HTTP  HTTPCheckConfig  `yaml:"http,omitempty"`
	GRPC  GRPCCheckConfig  `yaml:"grpc,omitempty"`
	Exec  ExecCheckConfig  `yaml:"exec,omitempty"`
	Retry RetryPolicy      `yaml:"retry,omitempty"`

	Process ProcessCheckConfig `yaml:"process,omitempty"`
}

const defaultMySQLPort = 3306

// NewCheck builds the check described by config. dialer is only used by
// TCP checks and may be nil.
func NewCheck(config CheckConfig, dialer Dialer) (Check, error) {
	if err := ValidateCheckConfig(config); err != nil {
		return nil, err
	}

	var check Check
	switch config.Type {
	case CheckTypeTCP:
		check = NewTCPCheck(config.TCP.Host, config.TCP.Port, dialer)
	case CheckTypeMySQL:
		port := config.MySQL.Port
		if port == 0 {
			port = defaultMySQLPort
		}
		check = &MySQLCheck{
			Host:     config.MySQL.Host,
			Port:     port,
			User:     config.MySQL.User,
			Password: config.MySQL.Password,
			Database: config.MySQL.Database,
		}
	case CheckTypeHTTP:
		check = &HTTPCheck{URL: config.HTTP.URL, Method: config.HTTP.Method, Headers: config.HTTP.Headers}
	case CheckTypeGRPC:
		check = &GRPCCheck{Address: config.GRPC.Address, Service: config.GRPC.Service}
	case CheckTypeExec:
		check = &ExecCheck{Command: config.Exec.Command, Args: config.Exec.Args}
	case CheckTypeProcess:
		check = &ProcessCheck{PIDFile: config.Process.PIDFile}
	}

	if config.Name != "" {
		check = &namedCheck{inner: check, name: config.Name}
	}
	return check, nil
}

// namedCheck replaces the generated name with the one from the profile.
type namedCheck struct {
	inner Check
	name  string
}

func (n *namedCheck) Name() string {
	return n.name
}

func (n *namedCheck) Check(ctx context.Context) error {
	return n.inner.Check(ctx)
}

// ValidateCheckConfig validates check configuration
func ValidateCheckConfig(config CheckConfig) error {
	if config.Retry != (RetryPolicy{}) {
		if err := ValidateRetryPolicy(config.Retry.WithDefaults()); err != nil {
			return errors.NewValidationError("invalid retry policy", err)
		}
	}

	switch config.Type {
	case CheckTypeTCP:
		if config.TCP.Host == "" {
			return errors.NewValidationError("host is required for TCP check", nil)
		}
		if err := validatePort(config.TCP.Port); err != nil {
			return err
		}

	case CheckTypeMySQL:
		if config.MySQL.Host == "" {
			return errors.NewValidationError("host is required for mysql check", nil)
		}
		if config.MySQL.Port != 0 {
			if err := validatePort(config.MySQL.Port); err != nil {
				return err
			}
		}
		if config.MySQL.User == "" {
			return errors.NewValidationError("user is required for mysql check", nil)
		}
		if config.MySQL.Database == "" {
			return errors.NewValidationError("database is required for mysql check", nil)
		}

	case CheckTypeHTTP:
		if config.HTTP.URL == "" {
			return errors.NewValidationError("URL is required for HTTP check", nil)
		}
		parsed, err := url.Parse(config.HTTP.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return errors.NewValidationError("HTTP check URL must be an http(s) URL: "+config.HTTP.URL, err)
		}

	case CheckTypeGRPC:
		if config.GRPC.Address == "" {
			return errors.NewValidationError("address is required for gRPC check", nil)
		}
		if _, _, err := net.SplitHostPort(config.GRPC.Address); err != nil {
			return errors.NewValidationError("invalid gRPC address format (missing port)", err)
		}

	case CheckTypeExec:
		if strings.TrimSpace(config.Exec.Command) == "" {
			return errors.NewValidationError("command is required for exec check", nil)
		}

	case CheckTypeProcess:
		if config.Process.PIDFile == "" {
			return errors.NewValidationError("pid_file is required for process check", nil)
		}

	default:
		return errors.NewValidationError("unsupported check type: "+string(config.Type), nil).
			WithContext("supported_types", "tcp, mysql, http, grpc, exec, process")
	}

	return nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError(fmt.Sprintf("invalid port number: %d", port), nil).
			WithContext("valid_range", "1-65535")
	}
	return nil
}

func timeUntil(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}
