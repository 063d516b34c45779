package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// FileRepository stores the allowlist as a JSON object mapping guild id to
// an integer channel id. The whole file is rewritten on every save.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

// Load returns the stored entries. A missing, empty or malformed file yields
// an empty map; entries whose channel id is neither an integer nor a numeric
// string are skipped.
func (r *FileRepository) Load() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// empty or malformed -> start fresh
		return out, nil
	}
	for guild, v := range raw {
		if id, ok := parseChannelID(v); ok {
			out[guild] = id
		}
	}
	return out, nil
}

// Save rewrites the file with every entry whose channel id is an unsigned
// integer. Other entries are skipped so one bad id cannot block the rest.
func (r *FileRepository) Save(entries map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]uint64, len(entries))
	for guild, channel := range entries {
		id, err := strconv.ParseUint(channel, 10, 64)
		if err != nil {
			continue
		}
		out[guild] = id
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func parseChannelID(v json.RawMessage) (string, bool) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		if _, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return n.String(), true
		}
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if _, err := strconv.ParseUint(s, 10, 64); err == nil {
			return s, true
		}
	}
	return "", false
}
