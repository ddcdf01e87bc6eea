package creds

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// File is a credentials file mapping file names to passwords. Two layouts
// are accepted:
//
//	{"default": "pw", "files": {"report.pdf": "pw1", "notes.txt": {"password": "pw2"}}}
//	{"report.pdf": "pw1", "notes.txt": "pw2"}
type File struct {
	Default string
	Files   map[string]string
}

type fileLayout struct {
	Default string                     `json:"default"`
	Files   map[string]json.RawMessage `json:"files"`
}

// ParseFile parses credentials JSON.
func ParseFile(data []byte) (*File, error) {
	var layout fileLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	f := &File{Default: layout.Default, Files: make(map[string]string)}

	if layout.Files != nil {
		for name, raw := range layout.Files {
			pw, err := parseEntry(raw)
			if err != nil {
				return nil, fmt.Errorf("parse credentials for %q: %w", name, err)
			}
			f.Files[name] = pw
		}
		return f, nil
	}

	// flat format
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	for name, raw := range flat {
		if name == "default" {
			continue
		}
		pw, err := parseEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("parse credentials for %q: %w", name, err)
		}
		f.Files[name] = pw
	}

	return f, nil
}

// parseEntry accepts "pw" or {"password": "pw"}.
func parseEntry(raw json.RawMessage) (string, error) {
	var pw string
	if err := json.Unmarshal(raw, &pw); err == nil {
		return pw, nil
	}

	var nested struct {
		Password string `json:"password"`
	}
	if err := json.Unmarshal(raw, &nested); err != nil {
		return "", fmt.Errorf("expected a string or an object with a password")
	}
	return nested.Password, nil
}

// LoadFile loads credentials from path. On Unix the file must not be
// accessible to group or others.
func LoadFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("credentials file %s has permissions %o, want 0600", path, info.Mode().Perm())
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFile(b)
}

// Password returns the password for name, falling back to the default.
func (f *File) Password(name string) string {
	if f == nil {
		return ""
	}
	if pw, ok := f.Files[name]; ok && pw != "" {
		return pw
	}
	return f.Default
}
