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
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/botbotme/botvisor"
	"github.com/botbotme/botvisor/upstart"
)

// loadDir adds the services described under dir/services.  Files that
// fail to load are logged and skipped.  It returns how many were added.
func loadDir(m *botvisor.Manager, dir string) int {
	svcDir := filepath.Join(dir, "services")
	files, e := os.ReadDir(svcDir)
	if e != nil {
		if !os.IsNotExist(e) {
			log.Printf("Failed to scan services: %v", e)
		}
		return 0
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		if !f.IsDir() {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	n := 0
	for _, f := range names {
		fname := filepath.Join(svcDir, f)
		var p *botvisor.Service
		switch filepath.Ext(f) {
		case ".json":
			p, e = loadJson(fname)
		case upstart.Suffix:
			p, e = upstart.NewService(fname)
		default:
			continue
		}
		if e != nil {
			log.Printf("Failed to load manifest %s: %v", fname, e)
			continue
		}
		if _, e := m.FindService(p.Name()); e == nil {
			log.Printf("Skipping manifest %s: service %s exists", fname, p.Name())
			continue
		}
		m.AddService(p)
		n++
	}
	return n
}

func loadJson(fname string) (*botvisor.Service, error) {
	mf, e := os.Open(fname)
	if e != nil {
		return nil, e
	}
	defer mf.Close()
	return botvisor.NewProcessFromJson(mf)
}
