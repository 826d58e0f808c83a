// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package mage holds the build targets of the module's magefile.
package mage

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/princjef/mageutil/bintool"
	"github.com/princjef/mageutil/shellcmd"
)

// Tester runs the package tests.
type Tester struct {
	// Clean drops the test cache first.
	Clean bool

	// NoRace disables the race detector.
	NoRace bool

	// CoverPkg lists the packages coverage is reported for; all tested
	// packages when empty.
	CoverPkg []string

	// Timeout bounds the whole run; DefaultTestTimeout when zero.
	Timeout time.Duration
}

// DefaultTestTimeout leaves room for the MQTT tests, which dial an
// embedded broker and wait out short message timeouts.
const DefaultTestTimeout = time.Minute

// CoverPkg are the packages whose coverage matters to users of the module.
var CoverPkg = []string{
	"github.com/Azure/iothub-client-go/confirm",
	"github.com/Azure/iothub-client-go/dispatch",
	"github.com/Azure/iothub-client-go/identity",
	"github.com/Azure/iothub-client-go/iothub",
	"github.com/Azure/iothub-client-go/message",
	"github.com/Azure/iothub-client-go/native/hubmqtt/...",
	"github.com/Azure/iothub-client-go/retry",
	"github.com/Azure/iothub-client-go/transport",
}

//go:embed golangci.yml
var golangci string

var (
	golines = bintool.Must(bintool.NewGo(
		"github.com/segmentio/golines",
		"v0.12.2",
	))
	linter = bintool.Must(bintool.New(
		"golangci-lint{{.BinExt}}",
		"1.61.0",
		"https://github.com/golangci/golangci-lint/releases/download/v{{.Version}}/golangci-lint-{{.Version}}-{{.GOOS}}-{{.GOARCH}}{{.ArchiveExt}}",
	))
	documenter = bintool.Must(bintool.New(
		"gomarkdoc{{.BinExt}}",
		"1.1.0",
		"https://github.com/princjef/gomarkdoc/releases/download/v{{.Version}}/gomarkdoc_{{.Version}}_{{.GOOS}}_{{.GOARCH}}{{.ArchiveExt}}",
	))
)

// Run runs go test with the configured flags.
func (t Tester) Run() error {
	timeout := t.Timeout
	if timeout == 0 {
		timeout = DefaultTestTimeout
	}

	args := []string{"go test -cover", "-timeout " + timeout.String()}
	if !t.NoRace {
		args = append(args, "-race")
	}
	if len(t.CoverPkg) > 0 {
		args = append(args, "-coverpkg "+strings.Join(t.CoverPkg, ","))
	}
	args = append(args, "./...")

	cmds := []shellcmd.Command{shellcmd.Command(strings.Join(args, " "))}
	if t.Clean {
		cmds = append([]shellcmd.Command{`go clean -testcache`}, cmds...)
	}
	return shellcmd.RunAll(cmds...)
}

// Format wraps long lines at 80 columns.
func Format() error {
	if err := golines.Ensure(); err != nil {
		return err
	}
	return golines.Command("-m 80 --no-reformat-tags -w .").Run()
}

// Lint runs golangci-lint with the module's embedded configuration.
func Lint() error {
	if err := linter.Ensure(); err != nil {
		return err
	}

	done, err := tmpFile(".golangci.yml", golangci)
	if err != nil {
		return err
	}
	defer done()

	return linter.Command(`run`).Run()
}

// Doc writes an API.md next to each public package.
func Doc() error {
	if err := documenter.Ensure(); err != nil {
		return err
	}
	return documenter.Command(
		`--output '{{.Dir}}/API.md' --exclude-dirs ./internal/...,./samples/... ./...`,
	).Run()
}

// Samples checks that the samples build.
func Samples() error {
	return shellcmd.Command(`go build -o /dev/null ./samples/...`).Run()
}

// CI formats, lints, documents, builds the samples and tests.
func CI(t Tester) error {
	for _, step := range []func() error{Format, Lint, Doc, Samples} {
		if err := step(); err != nil {
			return err
		}
	}
	return t.Run()
}

// Verify fails if the working tree has modified files, i.e. a CI step
// rewrote something that should have been committed.
func Verify() error {
	modified, err := shellcmd.Command(`git ls-files -mz`).Output()
	if err != nil {
		return err
	}
	if len(modified) == 0 {
		return nil
	}
	files := bytes.Split(bytes.TrimSuffix(modified, []byte{0}), []byte{0})
	return fmt.Errorf(
		`found modified files - %s`,
		bytes.Join(files, []byte(", ")),
	)
}

func tmpFile(name, contents string) (func(), error) {
	if err := os.WriteFile(name, []byte(contents), 0o600); err != nil {
		return nil, err
	}
	return func() { os.Remove(name) }, nil
}
