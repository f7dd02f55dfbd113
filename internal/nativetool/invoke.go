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
	"fmt"
	"os"
	"time"
)

// ExitCodeError carries a non-zero, non-retriable native-tool exit.
type ExitCodeError struct {
	Code    int
	Message string
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("native tool exit %d: %s", e.Code, e.Message)
}

// exitMeaning maps the §4.4.3 conventional exit codes to a human
// description; used to enrich ExitCodeError.Message.
func exitMeaning(code int) string {
	switch code {
	case 1:
		return "warning"
	case 2:
		return "fatal"
	case 7:
		return "command-line error"
	case 8:
		return "out of memory"
	case 255:
		return "corruption or insufficient space"
	default:
		return "unspecified error"
	}
}

// ExtractArgs returns the canonical invocation argument list for
// archive extraction: `extract -recursive-off -batch-yes -output=<dest>
// <source> @<pattern-file> -multithread-off`.
func ExtractArgs(dest, source, patternFile string) []string {
	args := []string{"-recursive-off", "-batch-yes", "-output=" + dest, source}
	if patternFile != "" {
		args = append(args, "@"+patternFile)
	}
	return append(args, "-multithread-off")
}

// RunWithRetry invokes tool at toolPath with args, retrying up to twice
// with a 1s back-off on non-zero exit, cleaning dest between attempts,
// per §4.4.3's exit-code policy. A persistent failure returns
// *ExitCodeError carrying the final exit code; for code 255 the error
// message includes source size and destination free space.
func RunWithRetry(ctx context.Context, tool NativeTool, toolPath string, args []string, workingDir, dest, source string) (RunResult, error) {
	const maxAttempts = 3 // initial try + two retries
	var last RunResult
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			_ = os.RemoveAll(dest)
			_ = os.MkdirAll(dest, 0o755)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return last, ctx.Err()
			}
		}

		res, err := tool.Run(ctx, toolPath, args, workingDir, nil)
		if err != nil {
			lastErr = err
			continue
		}
		last = res
		if res.ExitCode == 0 {
			return res, nil
		}
		lastErr = buildExitError(res.ExitCode, source, dest)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("native tool failed with no diagnostics")
	}
	return last, lastErr
}

func buildExitError(code int, source, dest string) error {
	msg := exitMeaning(code)
	if code == 255 {
		size := int64(-1)
		if info, err := os.Stat(source); err == nil {
			size = info.Size()
		}
		free := freeSpace(dest)
		msg = fmt.Sprintf("%s (archive size=%d, destination free space=%d)", msg, size, free)
	}
	return &ExitCodeError{Code: code, Message: msg}
}
