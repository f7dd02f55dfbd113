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

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgemods/mlinstall/internal/store"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "initializes mlinstall's local state",
	Long: `Initialize mlinstall's local state.

Creates the required data directories (temp scratch space, the patch
cache) and initializes or upgrades the internal sqlite store. This
command is safe to run multiple times and will not overwrite existing
data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		if err := os.MkdirAll(viper.GetString("tmp_dir"), 0o755); err != nil {
			return fmt.Errorf("error creating temp directory: %w", err)
		}
		if err := os.MkdirAll(viper.GetString("patch_cache_dir"), 0o755); err != nil {
			return fmt.Errorf("error creating patch cache directory: %w", err)
		}

		st, err := store.Open(ctx, viper.GetString("store"), 0)
		if err != nil {
			return fmt.Errorf("error opening store: %w", err)
		}
		defer st.Close()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
