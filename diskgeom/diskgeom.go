// Package diskgeom holds named image-size presets for mkfs, the same way
// the teacher's disks package holds named floppy/drive geometries: an
// embedded CSV parsed once at init time via gocsv, keyed by a short slug.
// Where the teacher's geometries describe bits-per-sector/heads/tracks for
// emulating real floppy hardware, these describe (TotalBlocks,
// InodeBitmapBlocks) pairs sized for this package's fixed 512-byte block.
package diskgeom

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
)

// Preset names one image-size configuration accepted by fsys.Create.
type Preset struct {
	Slug             string `csv:"slug"`
	Name             string `csv:"name"`
	TotalBlocks      uint32 `csv:"total_blocks"`
	InodeBitmapBlock uint32 `csv:"inode_bitmap_blocks"`
	Notes            string `csv:"notes"`
}

//go:embed presets.csv
var presetsRawCSV string

var presets map[string]Preset

func init() {
	presets = make(map[string]Preset)
	reader := strings.NewReader(presetsRawCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Preset) error {
		if _, exists := presets[row.Slug]; exists {
			return fmt.Errorf("duplicate preset slug %q", row.Slug)
		}
		presets[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// Get looks up a preset by slug.
func Get(slug string) (Preset, error) {
	preset, ok := presets[slug]
	if !ok {
		return Preset{}, fmt.Errorf("no predefined image preset exists with slug %q", slug)
	}
	return preset, nil
}

// Slugs returns every known preset slug, sorted for stable CLI help text.
func Slugs() []string {
	out := make([]string, 0, len(presets))
	for slug := range presets {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}
