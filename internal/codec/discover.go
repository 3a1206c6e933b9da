package codec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"
)

// volumeSuffix strips a PAR2 volume-numbering suffix such as
// ".vol000+001" from a base name, so that "foo.vol012+034.par2" and
// "foo.par2" are recognized as siblings of "foo".
var volumeSuffix = regexp.MustCompile(`(?i)\.vol\d+\+\d+$`)

// baseName derives the sibling-matching base name from a named index file:
// its final .par2 extension (case-insensitively) and any trailing volume
// suffix are stripped.
func baseName(indexPath string) string {
	name := filepath.Base(indexPath)
	ext := filepath.Ext(name)

	if strings.EqualFold(ext, ".par2") {
		name = strings.TrimSuffix(name, ext)
	}

	name = volumeSuffix.ReplaceAllString(name, "")

	return name
}

// Discover returns the sorted list of candidate .par2 paths for the given
// named index file: the file itself plus every sibling in the same
// directory whose name starts with its base name and ends in .par2
// (spec §4.2 "File discovery collaborator"). Order is significant only in
// that it is deterministic; packet-level ordering is governed entirely by
// the Main packet's file_ids list.
func Discover(fsys afero.Fs, indexPath string) ([]string, error) {
	dir := filepath.Dir(indexPath)
	base := baseName(indexPath)

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("codec: failed to read directory %q: %w", dir, err)
	}

	pattern := doublestar.QuoteMeta(base) + "*.[pP][aA][rR]2"

	seen := make(map[string]struct{})
	results := make([]string, 0, len(entries)+1)

	addIfNew := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			results = append(results, p)
		}
	}

	addIfNew(filepath.Join(dir, filepath.Base(indexPath)))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matched, err := doublestar.Match(pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("codec: bad glob pattern %q: %w", pattern, err)
		}

		if matched {
			addIfNew(filepath.Join(dir, entry.Name()))
		}
	}

	sort.Strings(results)

	return results, nil
}
