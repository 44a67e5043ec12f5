//go:build mage

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/magefile/mage/mg"
)

type cmdOptions struct {
	args   []string
	dir    string
	env    []string
	stream bool
}

type cmdOption func(*cmdOptions)

func withArgs(args ...string) cmdOption {
	return func(o *cmdOptions) {
		o.args = append(o.args, args...)
	}
}

// withDir runs the command from dir instead of the repository root.
func withDir(dir string) cmdOption {
	return func(o *cmdOptions) {
		o.dir = dir
	}
}

// withEnv adds KEY=VALUE pairs on top of the current environment.
func withEnv(kv ...string) cmdOption {
	return func(o *cmdOptions) {
		o.env = append(o.env, kv...)
	}
}

func withStream() cmdOption {
	return func(o *cmdOptions) {
		o.stream = true
	}
}

// executeCmd runs command and returns its combined output. Output is echoed
// when streaming was asked for or mage runs verbose, otherwise it is only
// printed on failure.
func executeCmd(command string, options ...cmdOption) (string, error) {
	opts := &cmdOptions{}
	for _, o := range options {
		o(opts)
	}

	where := ""
	if opts.dir != "" {
		where = fmt.Sprintf(" (in %s)", opts.dir)
	}
	fmt.Printf("Executing: %s %s%s\n", command, strings.Join(opts.args, " "), where)

	cmd := exec.Command(command, opts.args...)
	cmd.Dir = opts.dir
	if len(opts.env) > 0 {
		cmd.Env = append(os.Environ(), opts.env...)
	}

	var out bytes.Buffer
	streamOutput := mg.Verbose() || opts.stream
	if streamOutput {
		cmd.Stdout = io.MultiWriter(&out, os.Stdout)
		cmd.Stderr = io.MultiWriter(&out, os.Stderr)
	} else {
		cmd.Stdout = &out
		cmd.Stderr = &out
	}

	if err := cmd.Run(); err != nil {
		if !streamOutput {
			fmt.Println("... failed command output:")
			fmt.Println(out.String())
		}
		if code := mg.ExitStatus(err); code != 0 {
			return "", mg.Fatalf(code, "%s exited with %d", command, code)
		}
		return "", fmt.Errorf("error executing %s: %w", command, err)
	}
	return out.String(), nil
}
