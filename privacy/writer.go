/*
AUTHORS
  Open LMS (https://www.openlms.net)

LICENSE
  Copyright (C) 2018-2026 Open LMS (https://www.openlms.net)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package privacy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// FileWriter writes exported data as JSON files below a directory
// named by a fresh UUID, one directory per context.
type FileWriter struct {
	Dir string // Export directory.
}

// NewFileWriter creates a new export directory below base.
func NewFileWriter(base string) (*FileWriter, error) {
	dir := filepath.Join(base, uuid.NewString())
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("could not create export directory: %w", err)
	}
	return &FileWriter{Dir: dir}, nil
}

// Path returns the file that data exported for c and subcontext is written to.
func (w *FileWriter) Path(c Context, subcontext []string) string {
	parts := append([]string{w.Dir, strconv.FormatInt(c.ID, 10)}, subcontext...)
	return filepath.Join(append(parts, "data.json")...)
}

// Export implements Writer.
func (w *FileWriter) Export(ctx context.Context, c Context, subcontext []string, data interface{}) error {
	path := w.Path(c, subcontext)
	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return fmt.Errorf("could not create export directory: %w", err)
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("could not encode export data: %w", err)
	}
	return os.WriteFile(path, b, 0o640)
}
