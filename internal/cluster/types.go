package cluster

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// WorkerInfo is the immutable network identity of one index-building worker.
type WorkerInfo struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Validate reports whether the descriptor can be dialed.
func (w WorkerInfo) Validate() error {
	if strings.TrimSpace(w.Host) == "" {
		return &ConfigurationError{Reason: "worker host is empty"}
	}
	if w.Port < 1 || w.Port > 65535 {
		return &ConfigurationError{Reason: fmt.Sprintf("worker %s has invalid port %d", w.Host, w.Port)}
	}
	return nil
}

// Addr returns the host:port form of the worker address.
func (w WorkerInfo) Addr() string {
	return net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
}

// BaseURL returns the root URL of the worker's HTTP surface.
func (w WorkerInfo) BaseURL() string {
	return "http://" + w.Addr()
}

func (w WorkerInfo) String() string {
	return w.Addr()
}

// ParseWorker parses a single "host:port" descriptor.
func ParseWorker(s string) (WorkerInfo, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "http://")
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return WorkerInfo{}, &ConfigurationError{Reason: fmt.Sprintf("invalid worker address %q: %v", s, err)}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return WorkerInfo{}, &ConfigurationError{Reason: fmt.Sprintf("invalid worker port in %q", s)}
	}
	w := WorkerInfo{Host: host, Port: port}
	if err := w.Validate(); err != nil {
		return WorkerInfo{}, err
	}
	return w, nil
}

// ParseWorkerList parses the comma separated form used by the WORKERS variable.
func ParseWorkerList(s string) ([]WorkerInfo, error) {
	var workers []WorkerInfo
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		w, err := ParseWorker(part)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, ValidateWorkers(workers)
}

// workersFile is the on-disk layout of a worker list.
type workersFile struct {
	Workers []WorkerInfo `yaml:"workers"`
}

// LoadWorkers reads a YAML worker list from path.
func LoadWorkers(path string) ([]WorkerInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("read worker file %s: %v", path, err)}
	}
	var f workersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("parse worker file %s: %v", path, err)}
	}
	return f.Workers, ValidateWorkers(f.Workers)
}

// ValidateWorkers checks that the list is non-empty, every entry is valid and
// no worker appears twice.
func ValidateWorkers(workers []WorkerInfo) error {
	if len(workers) == 0 {
		return &ConfigurationError{Reason: "worker list is empty"}
	}
	for i, w := range workers {
		if err := w.Validate(); err != nil {
			return err
		}
		if idx := slices.IndexFunc(workers[:i], func(o WorkerInfo) bool { return o.Addr() == w.Addr() }); idx >= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("worker %s listed twice", w)}
		}
	}
	return nil
}
