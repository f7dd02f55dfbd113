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
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// resourcesCmd represents the resources command
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "show the named resources an install run will use",
	Long: `Print the configured task-slot limit of each named resource (§5's
resources table). An install run constructs the downloads, vfs,
fileHashing, fileExtractor and installer resources with these limits;
webRequests and userIntervention are listed but no install run
constructs them.

Each resource's limit comes from resources.<name> in config, defaulting
to the number of logical CPUs (runtime.NumCPU) when unset. userIntervention
is fixed at 1 and is not configurable: only one manual-download prompt is
ever outstanding at a time.

This reports configuration, not a live run: resources are constructed
fresh for each "install" invocation and don't persist between commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ncpu := runtime.NumCPU()

		type row struct {
			name         string
			fixedDefault int
			configurable bool
		}
		resources := []row{
			{"downloads", ncpu, true},
			{"webRequests", ncpu, true},
			{"vfs", ncpu, true},
			{"fileHashing", ncpu, true},
			{"fileExtractor", ncpu, true},
			{"installer", ncpu, true},
			{"userIntervention", 1, false},
		}

		rows := [][]string{}
		for _, r := range resources {
			key := "resources." + r.name
			limit := r.fixedDefault
			source := "default"
			if r.configurable && viper.IsSet(key) {
				limit = viper.GetInt(key)
				source = "config"
			} else if !r.configurable {
				limit = r.fixedDefault
				source = "fixed"
			}

			rows = append(rows, []string{
				fmt.Sprintf(" %s ", r.name),
				fmt.Sprintf(" %d ", limit),
				fmt.Sprintf(" %s ", source),
			})
		}

		t := table.New().
			Headers(" Resource ", " Max Tasks ", " Source ").
			Rows(rows...)

		fmt.Println(t)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(resourcesCmd)
}
