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

package nativetool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternVariantsMixedCase(t *testing.T) {
	t.Parallel()

	variants := PatternVariants("Textures/a.dds", nil)

	assert.Contains(t, variants, "Textures/a.dds")
	assert.Contains(t, variants, "textures/a.dds")
	assert.Contains(t, variants, `Textures\a.dds`)
	assert.Contains(t, variants, `textures\a.dds`)
}

func TestPatternVariantsNonWellKnownRoot(t *testing.T) {
	t.Parallel()

	variants := PatternVariants("Custom/a.dds", nil)
	// No case-folding applied outside the well-known roots; only
	// separator variants are produced.
	assert.Contains(t, variants, "Custom/a.dds")
	assert.NotContains(t, variants, "custom/a.dds")
}

func TestHostToolRunSuccess(t *testing.T) {
	t.Parallel()

	var tool NativeTool = HostTool{}
	res, err := tool.Run(context.Background(), "/bin/true", nil, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestHostToolRunNonZeroExit(t *testing.T) {
	t.Parallel()

	var tool NativeTool = HostTool{}
	res, err := tool.Run(context.Background(), "/bin/false", nil, "", nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRunWithRetrySucceedsFirstTry(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	var tool NativeTool = HostTool{}
	res, err := RunWithRetry(context.Background(), tool, "/bin/true", nil, "", dest, "/dev/null")
	assert.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRunWithRetryExhaustsAndReturnsExitCodeError(t *testing.T) {
	t.Parallel()

	dest := t.TempDir()
	var tool NativeTool = HostTool{}
	_, err := RunWithRetry(context.Background(), tool, "/bin/false", nil, "", dest, "/dev/null")
	assert.Error(t, err)

	var exitErr *ExitCodeError
	assert.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}
