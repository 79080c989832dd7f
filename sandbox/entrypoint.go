package sandbox

import (
	"errors"
	"strings"
)

// ErrNoEntryPoint is returned when no file can be identified as the program
// entry point
var ErrNoEntryPoint = errors.New("unable to detect an entry point")

// DetectEntryPoint picks the file to execute when the caller does not name
// one. Preference order: main.py, then app.py, then the first file guarded
// by a __main__ check, then the only Python file present.
func DetectEntryPoint(files FileSet) (string, error) {
	if _, ok := files["main.py"]; ok {
		return "main.py", nil
	}
	if _, ok := files["app.py"]; ok {
		return "app.py", nil
	}

	pyFiles := files.PythonFiles()
	for _, path := range pyFiles {
		content := files[path]
		if strings.Contains(content, `__name__ == "__main__"`) ||
			strings.Contains(content, `__name__ == '__main__'`) {
			return path, nil
		}
	}

	if len(pyFiles) == 1 {
		return pyFiles[0], nil
	}
	return "", ErrNoEntryPoint
}
