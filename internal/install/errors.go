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

package install

import "errors"

// Sentinel errors for the five ways a phase can terminate the install
// run short of success (§7). cmd/root.go's Execute maps these to process exit
// codes (§6.2): ErrManualDownloads to 1, everything else to 2.
var (
	// ErrGameMissing is returned when the configured or auto-resolved
	// game directory does not exist.
	ErrGameMissing = errors.New("install: game directory not found")

	// ErrGameInvalid is returned when the install or downloads directory
	// cannot be created or is not writable.
	ErrGameInvalid = errors.New("install: install environment invalid")

	// ErrDownloadFailed is returned when an archive is still missing or
	// still hash-mismatched after phase 6's single re-download attempt.
	ErrDownloadFailed = errors.New("install: download failed")

	// ErrManualDownloads is returned by the manual-download gate (phase
	// 5) when one or more archives require the user to fetch them by
	// hand. The caller inspects Result.ManualDownloads for the list.
	ErrManualDownloads = errors.New("install: manual downloads required")

	// ErrCancelled is returned when the context is cancelled at a phase
	// boundary. No phase is re-entered once passed (§7).
	ErrCancelled = errors.New("install: cancelled")
)
