package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

var audioExt = map[string]bool{".wav": true, ".mp3": true, ".m4a": true, ".flac": true, ".ogg": true, ".webm": true}

// LoadManifest reads audio file names from the first sheet of an xlsx file.
// The column is picked by header heuristics; without a matching header every
// cell that looks like an audio file name is taken from the first column.
func LoadManifest(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("empty manifest")
	}

	col, start := -1, 0
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		if strings.Contains(l, "file") || strings.Contains(l, "audio") || strings.Contains(l, "record") || l == "name" {
			col, start = i, 1
			break
		}
	}
	strict := col == -1
	if strict {
		col = 0
	}

	var out []string
	for _, r := range rows[start:] {
		if col >= len(r) {
			continue
		}
		name := strings.TrimSpace(r[col])
		if name == "" {
			continue
		}
		if strict && !audioExt[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, errors.New("no audio files in manifest")
	}
	return out, nil
}
