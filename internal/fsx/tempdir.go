/*
 * mlinstall: modlist installer engine
 * Copyright © 2026 Mario Finelli
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"
)

// TempManager hands out scoped temporary directories under a single
// root, tagged with the owning process's PID so that residue from a
// crashed run can be recognised and swept on the next startup.
type TempManager struct {
	root string
	pid  int
}

// NewTempManager ensures root exists and returns a manager rooted there.
func NewTempManager(root string) (*TempManager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir temp root %s: %w", root, err)
	}
	return &TempManager{root: root, pid: os.Getpid()}, nil
}

// Scope is one acquired temporary directory. Release removes it; it is
// safe to call Release more than once.
type Scope struct {
	Dir      AbsolutePath
	released bool
}

// Acquire creates a new temp directory named "<pid>-<label>-<uuid>"
// under the manager's root. The caller must Release it on every exit
// path (defer scope.Release()).
func (m *TempManager) Acquire(label string) (*Scope, error) {
	name := strconv.Itoa(m.pid) + "-" + label + "-" + uuid.NewString()
	dir := filepath.Join(m.root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir scope %s: %w", dir, err)
	}
	return &Scope{Dir: AbsolutePath(dir)}, nil
}

// Release removes the scope's directory tree.
func (s *Scope) Release() error {
	if s == nil || s.released {
		return nil
	}
	s.released = true
	return os.RemoveAll(string(s.Dir))
}

// SweepCrashResidue deletes child directories whose PID prefix no
// longer corresponds to a live process. It is meant to be called once
// at startup, before any scope is acquired.
func (m *TempManager) SweepCrashResidue() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read temp root %s: %w", m.root, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pid, ok := leadingPID(e.Name())
		if !ok {
			continue
		}
		if pid == m.pid {
			continue
		}
		if processAlive(pid) {
			continue
		}
		_ = os.RemoveAll(filepath.Join(m.root, e.Name()))
	}
	return nil
}

func leadingPID(name string) (int, bool) {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(name) || name[i] != '-' {
		return 0, false
	}
	pid, err := strconv.Atoi(name[:i])
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; Signal(0) is the actual
	// liveness probe and does not affect the target process.
	return proc.Signal(syscall.Signal(0)) == nil
}
