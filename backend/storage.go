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

package backend

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/botbotme/botvisor"
)

type storage struct {
	dialector gorm.Dialector
	db        *gorm.DB
}

// Dialector picks the gorm driver for a STORAGE_URL.  postgres:// and
// postgresql:// URLs are passed to the postgres driver as they are;
// sqlite:///path and sqlite://:memory: name an sqlite database.
func Dialector(rawURL string) (gorm.Dialector, string, error) {
	switch s := scheme(rawURL); s {
	case "postgres", "postgresql":
		return postgres.Open(rawURL), "postgres", nil
	case "sqlite", "sqlite3":
		path := rawURL[len(s)+len("://"):]
		if path == "" {
			return nil, "", fmt.Errorf("%s: no database path", rawURL)
		}
		return sqlite.Open(path), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, s)
	}
}

func (s *storage) open(ctx context.Context) error {
	db, err := gorm.Open(s.dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return err
	}
	s.db = db.WithContext(ctx)
	return nil
}

func (s *storage) ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *storage) close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewStorage returns a service named storage:<driver> that is running
// while the database at rawURL answers.
func NewStorage(rawURL string) (*botvisor.Service, error) {
	d, driver, err := Dialector(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	return newBackend(StorageName+":"+driver, rawURL, &storage{dialector: d}), nil
}
