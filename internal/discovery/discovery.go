// Package discovery finds the clips to compare and pairs each primary
// (source) clip with its secondary (encoded) counterpart.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/util"
)

// Pair is one primary/secondary comparison.
type Pair struct {
	Primary   string
	Secondary string
}

// Result contains the pairs found plus files that were left out.
type Result struct {
	Pairs []Pair
	// Unmatched lists video files with no counterpart in the other directory.
	Unmatched    []string
	SkippedCount int
}

// skipExtensions are artifacts of earlier runs that sit next to the clips.
var skipExtensions = map[string]bool{
	".vpy": true,
	".lwi": true,
	".rpc": true,
	".log": true,
}

// IsVideo reports whether path is a video file, by extension first and by
// sniffing the content for unfamiliar extensions.
func IsVideo(path string) bool {
	if util.IsVideoFile(path) {
		return true
	}
	if !util.FileExists(path) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if skipExtensions[ext] {
		return false
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	for ; mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "video/") {
			return true
		}
	}
	return false
}

// FindVideoFiles finds video files in the given directory.
// Returns files sorted alphabetically by filename.
func FindVideoFiles(dir string) ([]string, int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, 0, rperrors.NewPathError(fmt.Sprintf("directory does not exist: %s", dir))
	}
	if !info.IsDir() {
		return nil, 0, rperrors.NewPathError(fmt.Sprintf("%s is not a directory", dir))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, rperrors.NewIOError("cannot read directory "+dir, err)
	}

	var files []string
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Skip hidden files
		if strings.HasPrefix(name, ".") {
			continue
		}

		fullPath := filepath.Join(dir, name)
		if IsVideo(fullPath) {
			files = append(files, fullPath)
		} else {
			skipped++
		}
	}

	if len(files) == 0 {
		return nil, skipped, rperrors.NewNoFilesFoundError(dir)
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(files[i])) < strings.ToLower(filepath.Base(files[j]))
	})
	return files, skipped, nil
}

// Resolve pairs primary with secondary. Two files make a single pair; two
// directories are paired with PairDirectories. Mixing a file and a
// directory is an error.
func Resolve(primary, secondary string) (*Result, error) {
	pInfo, err := os.Stat(primary)
	if err != nil {
		return nil, rperrors.NewPathError(fmt.Sprintf("primary input does not exist: %s", primary))
	}
	sInfo, err := os.Stat(secondary)
	if err != nil {
		return nil, rperrors.NewPathError(fmt.Sprintf("secondary input does not exist: %s", secondary))
	}

	switch {
	case pInfo.IsDir() && sInfo.IsDir():
		return PairDirectories(primary, secondary)
	case !pInfo.IsDir() && !sInfo.IsDir():
		if !IsVideo(primary) {
			return nil, rperrors.NewPathError(fmt.Sprintf("not a video file: %s", primary))
		}
		if !IsVideo(secondary) {
			return nil, rperrors.NewPathError(fmt.Sprintf("not a video file: %s", secondary))
		}
		return &Result{Pairs: []Pair{{Primary: primary, Secondary: secondary}}}, nil
	default:
		return nil, rperrors.NewPathError("primary and secondary must both be files or both be directories")
	}
}

// PairDirectories matches files by name stem. When no stems match but both
// directories hold the same number of clips, they are paired in sorted order.
func PairDirectories(primaryDir, secondaryDir string) (*Result, error) {
	primaries, pSkipped, err := FindVideoFiles(primaryDir)
	if err != nil {
		return nil, err
	}
	secondaries, sSkipped, err := FindVideoFiles(secondaryDir)
	if err != nil {
		return nil, err
	}

	res := &Result{SkippedCount: pSkipped + sSkipped}

	byStem := make(map[string]string, len(secondaries))
	for _, s := range secondaries {
		byStem[strings.ToLower(util.GetFileStem(s))] = s
	}

	used := make(map[string]bool)
	for _, p := range primaries {
		if s, ok := byStem[strings.ToLower(util.GetFileStem(p))]; ok && !used[s] {
			res.Pairs = append(res.Pairs, Pair{Primary: p, Secondary: s})
			used[s] = true
		} else {
			res.Unmatched = append(res.Unmatched, p)
		}
	}

	if len(res.Pairs) == 0 && len(primaries) == len(secondaries) {
		res.Unmatched = nil
		for i := range primaries {
			res.Pairs = append(res.Pairs, Pair{Primary: primaries[i], Secondary: secondaries[i]})
		}
		return res, nil
	}

	for _, s := range secondaries {
		if !used[s] {
			res.Unmatched = append(res.Unmatched, s)
		}
	}

	if len(res.Pairs) == 0 {
		return nil, rperrors.NewNoFilesFoundError(fmt.Sprintf("%s and %s (no matching file names)", primaryDir, secondaryDir))
	}
	return res, nil
}
