// Package version хранит сведения о сборке chargemock.
//
// Значения подставляются линкером:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/chargemock/internal/version.version=v0.4.0 \
//	  -X github.com/vladislavdragonenkov/chargemock/internal/version.commit=$(git rev-parse --short HEAD)"
package version

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	serviceName = "chargemock"
	devVersion  = "dev"
)

var (
	version = devVersion
	commit  = "unknown"
	date    = "unknown"
)

// Build описывает конкретную сборку.
type Build struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current возвращает сведения о текущем бинарнике. Пустые ldflags заменяются
// значениями по умолчанию.
func Current() Build {
	return Build{
		Service: serviceName,
		Version: orDefault(version, devVersion),
		Commit:  orDefault(commit, "unknown"),
		Date:    orDefault(date, "unknown"),
	}
}

// IsRelease сообщает, что версия проставлена при сборке.
func (b Build) IsRelease() bool {
	return b.Version != devVersion
}

func (b Build) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", b.Service, b.Version, b.Commit, b.Date)
}

// Fields возвращает поля для стартового лога.
func (b Build) Fields() log.Fields {
	return log.Fields{
		"service": b.Service,
		"version": b.Version,
		"commit":  b.Commit,
		"built":   b.Date,
	}
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
