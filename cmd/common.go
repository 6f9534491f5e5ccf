/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/valpere/infinitran/internal/settings"
	"github.com/valpere/infinitran/internal/store"
	"github.com/valpere/infinitran/internal/validator"
)

// loadSettings reads the settings file named by --config, or the default
// one, together with the .env credentials.
func loadSettings() (*settings.Settings, error) {
	st, err := settings.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return st, nil
}

// openStore opens the database at path, falling back to the configured
// database when path is empty.
func openStore(st *settings.Settings, path string) (*store.Store, error) {
	if path == "" {
		path = st.Config().Database
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// newLogger returns a stderr logger, silenced unless --verbose is set.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	return log.New(w, prefix, log.LstdFlags)
}

// newChecker builds a language validator limited to the configured language
// list, the target language and any extra tags.
func newChecker(st *settings.Settings, extra ...string) *validator.Validator {
	tags := []string{st.TargetLanguage()}
	for _, l := range st.Languages() {
		tags = append(tags, l.Code)
	}
	return validator.New(append(tags, extra...)...)
}
