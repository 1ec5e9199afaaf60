package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	ErrArgCount     = errors.New("please provide 3 command-line arguments")
	ErrUsage        = errors.New("please provide 3 mandatory command-line arguments (-webRoot, -webIP, -webPort)")
	ErrWebRoot      = errors.New("the provided webRoot does not exist")
	ErrInvalidIP    = errors.New("the provided IP address is invalid")
	ErrIPNotOnHost  = errors.New("the provided IP address is not available on the current machine")
	ErrInvalidPort  = errors.New("the provided port is invalid")
	errAlreadyGiven = errors.New("given more than once")
)

// ServerConfig is the immutable configuration of one server instance
type ServerConfig struct {
	WebRoot  string // absolute
	IP       net.IP
	Port     int
	Settings Settings
}

// Addr returns ip:port for the listener and the Server header
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.IP.String(), strconv.Itoa(c.Port))
}

// AddrLister enumerates the host's local addresses
type AddrLister func() ([]net.Addr, error)

// onceValue is a flag.Value that refuses a second assignment
type onceValue struct {
	value string
	set   bool
}

func (v *onceValue) String() string {
	return v.value
}

func (v *onceValue) Set(s string) error {
	if v.set {
		return errAlreadyGiven
	}
	v.value = s
	v.set = true
	return nil
}

// Parse builds a ServerConfig from exactly three arguments of the form
// -webRoot=<dir> -webIP=<addr> -webPort=<port>, in any order. A nil
// lister uses net.InterfaceAddrs.
func Parse(args []string, lister AddrLister) (*ServerConfig, error) {
	if len(args) != 3 {
		return nil, ErrArgCount
	}
	if lister == nil {
		lister = net.InterfaceAddrs
	}

	for _, arg := range args {
		if !isFlagAssignment(arg) {
			return nil, fmt.Errorf("%w: %q", ErrUsage, arg)
		}
	}

	var root, ip, port onceValue
	fs := flag.NewFlagSet("myownwebserver", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Var(&root, "webRoot", "directory to serve")
	fs.Var(&ip, "webIP", "local address to bind")
	fs.Var(&port, "webPort", "TCP port to listen on")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 0 || !root.set || !ip.set || !port.set {
		return nil, ErrUsage
	}

	cfg := &ServerConfig{}
	var err error

	if cfg.WebRoot, err = validateWebRoot(root.value); err != nil {
		return nil, err
	}
	if cfg.IP, err = validateIP(ip.value, lister); err != nil {
		return nil, err
	}
	if cfg.Port, err = validatePort(port.value); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isFlagAssignment accepts only the single-dash -name=value form
func isFlagAssignment(arg string) bool {
	if !strings.HasPrefix(arg, "-") || strings.HasPrefix(arg, "--") {
		return false
	}
	return strings.Contains(arg, "=")
}

func validateWebRoot(dir string) (string, error) {
	if dir == "" {
		return "", ErrWebRoot
	}
	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrWebRoot, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWebRoot, err)
	}
	if err := checkReadable(abs); err != nil {
		return "", fmt.Errorf("the provided webRoot is not readable: %w", err)
	}
	return abs, nil
}

func validateIP(s string, lister AddrLister) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIP, s)
	}

	addrs, err := lister()
	if err != nil {
		return nil, fmt.Errorf("list host addresses: %w", err)
	}
	for _, a := range addrs {
		var hostIP net.IP
		switch v := a.(type) {
		case *net.IPNet:
			hostIP = v.IP
		case *net.IPAddr:
			hostIP = v.IP
		}
		if hostIP != nil && hostIP.Equal(ip) {
			return ip, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrIPNotOnHost, ip)
}

func validatePort(s string) (int, error) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	return port, nil
}
