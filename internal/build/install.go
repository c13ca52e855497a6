// Copyright (c) 2026 Launchpad Team
// Launchpad - service build and launch manager
// This source code is licensed under the MIT license found in the LICENSE file.

package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ShellInstaller runs build commands through `sh -c` in Dir.
type ShellInstaller struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	// Shell defaults to "sh".
	Shell string
}

// Install runs command. env is appended to the current process environment.
func (s ShellInstaller) Install(ctx context.Context, command string, env []string) error {
	shell := s.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("build command interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("build command %q: %w", command, err)
	}
	return nil
}
