package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	rperrors "github.com/five82/rpcheck/internal/errors"
	"github.com/five82/rpcheck/internal/util"
)

// FileExtension is the extension of saved result files.
const FileExtension = ".rpc"

// FileName returns the results file name for t: "[RPCR] yyyyMMddHHmmssffff.rpc",
// where ffff is ten-thousandths of a second.
func FileName(t time.Time) string {
	return fmt.Sprintf("[RPCR] %s%04d%s", t.Format("20060102150405"), t.Nanosecond()/100000, FileExtension)
}

type resultsFile struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`
	Results []*Result `json:"results"`
}

const resultsFileVersion = 1

// Save writes results to a new timestamped file in dir and returns its path.
func Save(dir string, results []*Result) (string, error) {
	if err := util.EnsureDirectory(dir); err != nil {
		return "", rperrors.NewResultsFileError(dir, err)
	}

	now := time.Now()
	path := filepath.Join(dir, FileName(now))
	data, err := json.MarshalIndent(resultsFile{
		Version: resultsFileVersion,
		Created: now,
		Results: results,
	}, "", "  ")
	if err != nil {
		return "", rperrors.NewResultsFileError(path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", rperrors.NewResultsFileError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", rperrors.NewResultsFileError(path, err)
	}
	return path, nil
}

// Load reads a results file written by Save. A bare JSON array of results
// is accepted as well.
func Load(path string) ([]*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rperrors.NewResultsFileError(path, err)
	}

	var file resultsFile
	if err := json.Unmarshal(data, &file); err == nil {
		if file.Version > resultsFileVersion {
			return nil, rperrors.NewResultsFileError(path, fmt.Errorf("unsupported version %d", file.Version))
		}
		return file.Results, nil
	}

	var list []*Result
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, rperrors.NewResultsFileError(path, err)
	}
	return list, nil
}
