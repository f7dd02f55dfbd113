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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forgemods/mlinstall/internal/install"
	"github.com/forgemods/mlinstall/internal/nativetool"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mlinstall",
	Short: "mlinstall: modlist installer engine",
	Long: `mlinstall installs a packaged modlist bundle into a game's mod-staging
directory, resolving, downloading, extracting, and patching every archive
the bundle's directives reference.

mlinstall  Copyright © 2026  Mario Finelli
This program comes with ABSOLUTELY NO WARRANTY; This program is free
software, and you are welcome to redistribute it under certain conditions;
You should have received a copy of the GNU General Public License (version
3) along with this program. If not, see https://www.gnu.org/licenses/.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command, runs it, and
// maps the resulting error to the exit codes §6.2 names: 0 success, 1
// when manual downloads are required, 2 for every other failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if errors.Is(err, install.ErrManualDownloads) {
		os.Exit(1)
	}
	os.Exit(2)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is $XDG_CONFIG_HOME/mlinstall/config.toml",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"enable verbose output",
	)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	ncpu := runtime.NumCPU()
	viper.SetDefault("resources.downloads", ncpu)
	viper.SetDefault("resources.webRequests", ncpu)
	viper.SetDefault("resources.vfs", ncpu)
	viper.SetDefault("resources.fileHashing", ncpu)
	viper.SetDefault("resources.fileExtractor", ncpu)
	viper.SetDefault("resources.installer", ncpu)
	viper.SetDefault("resources.userIntervention", 1)

	viper.SetDefault("nativetool.archiveTool", "7z")
	viper.SetDefault("nativetool.payloadTool", "7z")
	viper.SetDefault("nativetool.caseRoots", nativetool.DefaultCaseRoots)

	dbPath, err := xdg.DataFile("mlinstall/store.db")
	cobra.CheckErr(err)
	viper.SetDefault("store", dbPath)

	viper.SetDefault("tmp_dir", filepath.Join(xdg.CacheHome, "mlinstall", "tmp"))
	viper.SetDefault("patch_cache_dir", filepath.Join(xdg.DataHome, "mlinstall", "patches"))

	if cfgFile != "" {
		// User explicitly provided a config file: it must work.
		viper.SetConfigFile(cfgFile)
		viper.SetConfigType("toml")

		if err := viper.ReadInConfig(); err != nil {
			cobra.CheckErr(err)
		}

		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file: ",
				viper.ConfigFileUsed())
		}

		return
	}

	defaultPath, err := xdg.ConfigFile("mlinstall/config.toml")
	cobra.CheckErr(err)

	if _, err := os.Stat(defaultPath); errors.Is(err, os.ErrNotExist) {
		return // default config file doesn't exist -- use defaults
	}

	viper.SetConfigFile(defaultPath)
	viper.SetConfigType("toml")

	if err := viper.ReadInConfig(); err != nil {
		// missing config file is fine -- use the built-in defaults
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return
		}

		// parse/permission errors should fail loudly
		cobra.CheckErr(err)
		return
	}

	if verbose {
		fmt.Fprintln(os.Stderr, "Using config file: ",
			viper.ConfigFileUsed())
	}
}
