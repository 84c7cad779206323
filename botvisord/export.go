// Copyright 2026 The Botvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/config"
	"github.com/botbotme/botvisor/stack"
	"github.com/botbotme/botvisor/upstart"
)

const (
	formatUpstart = "upstart"
	formatJson    = "json"
)

// export writes one file per job of the default stack into dir.
func export(dir, format string, settings *config.Settings, opts stack.Options) ([]string, error) {
	manifests, err := stack.Manifests(settings, opts)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	var written []string
	for _, m := range manifests {
		var path string
		switch format {
		case formatUpstart:
			path = filepath.Join(dir, m.Name+upstart.Suffix)
		case formatJson:
			path = filepath.Join(dir, m.Name+".json")
		default:
			return nil, fmt.Errorf("unknown format %q", format)
		}
		if err := writeManifest(path, format, m); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeManifest(path, format string, m botvisor.ProcessManifest) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if format == formatJson {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(m)
	} else {
		err = upstart.Render(f, m)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func newExportCmd(sf *stackFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export DIR",
		Short: "Write the web, plugins and bot jobs to DIR",
		Long: `export writes the built in jobs to DIR, as upstart jobs suitable for
/etc/init or as JSON manifests suitable for DIR/services.  The
environment is captured at the time of export.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.FromEnv()
			if err != nil {
				return err
			}
			files, err := export(args[0], format, settings, sf.options())
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatUpstart, "output format: upstart or json")
	return cmd
}
