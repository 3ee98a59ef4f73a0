package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ReadConfigFiles finds every yaml file under path in the same lexical
// order Load would apply them and returns each one's raw contents,
// unmerged. It backs the "config-test" command's dump of exactly what
// went into an endpoint.* settings resolution, before mergo folded the
// files together and any per-key defaulting in options.go ran.
func ReadConfigFiles(path string) ([]string, error) {
	files, err := resolveFilePaths(path, true)
	if err != nil {
		return nil, err
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no config files found at %s", path)
	}

	sort.Strings(files)

	readFiles := []string{}
	for _, file := range files {
		f, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		readFiles = append(readFiles, string(f))
	}

	return readFiles, nil
}

// resolveFilePaths mirrors C.resolve but returns the matched paths
// directly instead of appending them onto a *C, so ReadConfigFiles can
// run without constructing a config at all. direct signifies this is the
// path directly specified by the caller, versus a file/dir found by
// recursing into that path.
func resolveFilePaths(path string, direct bool) ([]string, error) {
	files := []string{}

	i, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !i.IsDir() {
		f, shouldAdd := checkFile(path, direct)
		if !shouldAdd {
			return files, err
		}

		return append(files, f), nil
	}

	paths, err := readDirNames(path)
	if err != nil {
		return nil, fmt.Errorf("problem while reading directory %s: %s", path, err)
	}

	for _, p := range paths {
		f, err := resolveFilePaths(filepath.Join(path, p), false)
		if err != nil {
			return nil, err
		}

		files = append(files, f...)
	}

	return files, nil
}

// checkFile returns the absolute path of the file and whether it should
// be added to the list of configs: a directly-named file is always taken
// regardless of extension, one found by recursing into a directory must
// end in .yaml/.yml.
func checkFile(path string, direct bool) (string, bool) {
	ext := filepath.Ext(path)

	if !direct && ext != ".yaml" && ext != ".yml" {
		return "", false
	}

	ap, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}

	return ap, true
}
