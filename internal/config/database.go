package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "content-graphql-custom"

// DSN returns a MySQL data source name. A configured ConnectionString is used
// as given, with parseTime, UTC and the TLS mode filled in when missing;
// otherwise the DSN is built from the discrete fields.
func (d *DatabaseConfig) DSN() string {
	if d.ConnectionString == "" {
		mc := mysql.NewConfig()
		mc.User = d.User
		mc.Passwd = d.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		mc.DBName = d.Database
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.TLSConfig = d.effectiveTLSParam()
		return mc.FormatDSN()
	}

	dsn := d.ConnectionString
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "parseTime") {
		dsn += sep + "parseTime=true"
		sep = "&"
	}
	if !strings.Contains(dsn, "loc=") {
		dsn += sep + "loc=UTC"
		sep = "&"
	}
	if tlsParam := d.effectiveTLSParam(); tlsParam != "" && !strings.Contains(dsn, "tls=") {
		dsn += sep + "tls=" + tlsParam
	}
	return dsn
}

// DatabaseName returns the schema the store writes to: database.database, or
// the database named in the DSN.
func (d *DatabaseConfig) DatabaseName() (string, error) {
	name := strings.TrimSpace(d.Database)
	dsnName, err := parseDSNDatabaseName(d.ConnectionString)
	if err != nil {
		return "", err
	}
	if name != "" && dsnName != "" && name != dsnName {
		return "", fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", name, dsnName)
	}
	if name == "" {
		name = dsnName
	}
	if name == "" {
		return "", fmt.Errorf("no database configured: set database.database or include /<database> in database.dsn")
	}
	return name, nil
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// effectiveTLSParam maps the TLS mode to the driver's tls parameter. Modes
// that need a CA use the config registered by RegisterTLS.
func (d *DatabaseConfig) effectiveTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the verify-ca/verify-full TLS config with the MySQL
// driver. It must run before the connection is opened.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}
	tlsCfg, err := d.TLS.build()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (t *DatabaseTLSConfig) build() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile := t.caFile(); caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = pool
	}

	certFile, keyFile := t.certFile(), t.keyFile()
	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case certFile != "" || keyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if t.Mode == "verify-full" && t.ServerName != "" {
		tlsCfg.ServerName = t.ServerName
	}
	return tlsCfg, nil
}

func (t *DatabaseTLSConfig) caFile() string   { return fromEnv(t.CAFileEnv, t.CAFile) }
func (t *DatabaseTLSConfig) certFile() string { return fromEnv(t.CertFileEnv, t.CertFile) }
func (t *DatabaseTLSConfig) keyFile() string  { return fromEnv(t.KeyFileEnv, t.KeyFile) }

// fromEnv prefers the path stored in the named environment variable.
func fromEnv(name, fallback string) string {
	if name != "" {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return fallback
}
