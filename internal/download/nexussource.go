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

package download

import (
	"context"
	"fmt"
	"net/http"

	"github.com/forgemods/mlinstall/internal/modlist"
)

// nexusSource fetches modlist.NexusState archives. Resolving a Nexus
// game-domain/mod-id/file-id triple to a signed download URL is a
// catalogue/auth concern the core consumes rather than implements (§1
// non-goals): nexusSource expects the signed URL to have already been
// attached to the archive's Headers via a "X-Resolved-URL" entry by the
// collaborator that owns Nexus API credentials, and otherwise behaves
// exactly like httpSource.
type nexusSource struct {
	client *http.Client
}

func (s *nexusSource) Fetch(ctx context.Context, archive modlist.Archive, targetPath string, progress func(processed, total int64)) error {
	state, ok := archive.State.(modlist.NexusState)
	if !ok {
		return fmt.Errorf("nexusSource: unsupported state %T", archive.State)
	}

	resolved, ok := nexusResolvedURL(archive)
	if !ok {
		return fmt.Errorf("nexus archive %s/%d/%d has no resolved download URL", state.GameDomain, state.ModID, state.FileID)
	}

	delegate := &httpSource{client: s.client}
	return delegate.Fetch(ctx, modlist.Archive{
		Name: archive.Name,
		Hash: archive.Hash,
		Size: archive.Size,
		State: modlist.HTTPState{
			URL:     resolved,
			Headers: nexusHeaders(archive),
		},
	}, targetPath, progress)
}

const nexusResolvedURLHeader = "X-Resolved-URL"

func nexusResolvedURL(archive modlist.Archive) (string, bool) {
	state, ok := archive.State.(modlist.NexusState)
	if !ok {
		return "", false
	}
	url, ok := state.Headers[nexusResolvedURLHeader]
	return url, ok
}

func nexusHeaders(archive modlist.Archive) map[string]string {
	state, ok := archive.State.(modlist.NexusState)
	if !ok {
		return nil
	}
	headers := make(map[string]string, len(state.Headers))
	for k, v := range state.Headers {
		if k != nexusResolvedURLHeader {
			headers[k] = v
		}
	}
	return headers
}

func (s *nexusSource) MetaINILines(archive modlist.Archive) []string {
	state, ok := archive.State.(modlist.NexusState)
	if !ok {
		return nil
	}
	return []string{
		fmt.Sprintf("gameName=%s", state.GameDomain),
		fmt.Sprintf("modID=%d", state.ModID),
		fmt.Sprintf("fileID=%d", state.FileID),
	}
}
