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

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/forgemods/mlinstall/internal/fsx"
	"github.com/forgemods/mlinstall/internal/modlist"
)

// portableMarkerName is the sentinel file that forces the mod manager
// into portable mode (§4.7 phase 15, glossary "Portable marker").
const portableMarkerName = "portable.txt"

// managerConfigName is the mod manager's own configuration file, whose
// download_directory key is remapped to the resolved downloads
// directory.
const managerConfigName = "ModOrganizer.ini"

// screenTweakConfigs names the known configuration INIs that receive
// screen-size and video-memory tweaks.
var screenTweakConfigs = []string{"SkyrimPrefs.ini", "Skyrim.ini", "Fallout4Prefs.ini", "Fallout4.ini"}

// phaseFinalise writes the portable marker, remaps the manager's
// download_directory, substitutes path tokens inside remapped inline
// files, and writes screen-size tweaks into known configuration INIs
// (§4.7 phase 15).
func (e *Engine) phaseFinalise(ctx context.Context) error {
	markerPath := string(e.installDir.Join(fsx.RelativePath(portableMarkerName)))
	if err := fsx.AtomicWriteFile(markerPath, nil, 0o644); err != nil {
		return fmt.Errorf("write portable marker: %w", err)
	}

	if err := e.remapDownloadDirectory(); err != nil {
		return fmt.Errorf("remap download directory: %w", err)
	}

	if err := e.substituteRemappedInlineFiles(); err != nil {
		return fmt.Errorf("remap inline files: %w", err)
	}

	if err := e.writeScreenTweaks(); err != nil {
		return fmt.Errorf("write screen tweaks: %w", err)
	}
	return nil
}

// remapDownloadDirectory rewrites managerConfigName's download_directory
// key to the resolved downloads directory, if the file exists.
func (e *Engine) remapDownloadDirectory() error {
	path := string(e.installDir.Join(fsx.RelativePath(managerConfigName)))
	return setIniKey(path, "Settings", "download_directory", string(e.downloadsDir))
}

// substituteRemappedInlineFiles replaces the install/downloads/game
// directory tokens inside every RemappedInlineFile directive's
// already-installed bytes with the resolved absolute paths.
func (e *Engine) substituteRemappedInlineFiles() error {
	replacer := strings.NewReplacer(
		"{{INSTALL_DIR}}", string(e.installDir),
		"{{DOWNLOADS_DIR}}", string(e.downloadsDir),
		"{{GAME_DIR}}", string(e.gameDir),
	)

	for _, d := range e.directives {
		remapped, ok := d.(modlist.RemappedInlineFile)
		if !ok {
			continue
		}
		target := string(e.installDir.Join(fsx.RelativePath(remapped.To)))
		data, err := os.ReadFile(target)
		if err != nil {
			return fmt.Errorf("read remapped inline file %s: %w", remapped.To, err)
		}
		substituted := replacer.Replace(string(data))
		if err := fsx.AtomicWriteFile(target, []byte(substituted), 0o644); err != nil {
			return fmt.Errorf("rewrite remapped inline file %s: %w", remapped.To, err)
		}
	}
	return nil
}

// writeScreenTweaks patches iSize W / iSize H / iVRAMSize into whichever
// of screenTweakConfigs exists under the install directory, when the
// corresponding configuration values are non-zero.
func (e *Engine) writeScreenTweaks() error {
	for _, name := range screenTweakConfigs {
		path := string(e.installDir.Join(fsx.RelativePath(name)))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if e.cfg.ScreenWidth > 0 {
			if err := setIniKey(path, "Display", "iSize W", strconv.Itoa(e.cfg.ScreenWidth)); err != nil {
				return err
			}
		}
		if e.cfg.ScreenHeight > 0 {
			if err := setIniKey(path, "Display", "iSize H", strconv.Itoa(e.cfg.ScreenHeight)); err != nil {
				return err
			}
		}
		if e.cfg.VideoMemorySizeMB > 0 {
			if err := setIniKey(path, "Display", "iVRAMSize", strconv.FormatInt(e.cfg.VideoMemorySizeMB, 10)); err != nil {
				return err
			}
		}
	}
	return nil
}

// setIniKey rewrites key=value under [section] in the INI file at path,
// appending the section and/or key if absent. A minimal line-based
// editor rather than a full parser: the engine only ever needs to set
// one key at a time in files it does not otherwise own.
func setIniKey(path, section, key, value string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	lines := strings.Split(string(data), "\n")
	sectionHeader := "[" + section + "]"
	keyPrefix := strings.ToLower(key) + "="

	sectionStart := -1
	sectionEnd := len(lines)
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.EqualFold(trimmed, sectionHeader) {
			sectionStart = i
			for j := i + 1; j < len(lines); j++ {
				t := strings.TrimSpace(lines[j])
				if strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]") {
					sectionEnd = j
					break
				}
			}
			break
		}
	}

	newLine := key + "=" + value
	if sectionStart == -1 {
		lines = append(lines, sectionHeader, newLine)
	} else {
		replaced := false
		for i := sectionStart + 1; i < sectionEnd; i++ {
			if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lines[i]))+"=", keyPrefix) {
				lines[i] = newLine
				replaced = true
				break
			}
		}
		if !replaced {
			out := make([]string, 0, len(lines)+1)
			out = append(out, lines[:sectionEnd]...)
			out = append(out, newLine)
			out = append(out, lines[sectionEnd:]...)
			lines = out
		}
	}

	return fsx.AtomicWriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}
