package utils

import (
	"os"
	"path/filepath"
)

// PathInfo describes an input path after resolution.
type PathInfo struct {
	FullPath  string // absolute, cleaned
	ParentDir string // directory containing FullPath
	Base      string // last element of FullPath
	IsDir     bool
}

func GetPathInfo(relPath string) (PathInfo, error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err := filepath.Abs(relPath)
	if err != nil {
		return PathInfo{}, err
	}

	st, err := os.Stat(fullPath)
	if err != nil {
		return PathInfo{}, err
	}

	return PathInfo{
		FullPath:  fullPath,
		ParentDir: filepath.Dir(fullPath),
		Base:      filepath.Base(fullPath),
		IsDir:     st.IsDir(),
	}, nil
}
