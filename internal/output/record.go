package output

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path/filepath"

	"tomohub/internal/apperrors"
)

// RecordFile is the job record written into a finished working directory.
const RecordFile = "job_data.json"

// JobRecord describes a finished centre sweep.
type JobRecord struct {
	Start        int               `json:"start"`
	Stop         int               `json:"stop"`
	Step         int               `json:"step"`
	Filename     string            `json:"filename"`
	CenterImages map[string]string `json:"center_images"`
	LogPath      string            `json:"log_path"`
}

// WriteJobRecord stores rec in dir.
func WriteJobRecord(fsys Filesystem, dir string, rec JobRecord) error {
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return err
	}
	return fsys.WriteFile(filepath.Join(dir, RecordFile), data, 0o644)
}

// ReadJobRecord loads the record stored in dir.
func ReadJobRecord(fsys Filesystem, dir string) (*JobRecord, error) {
	data, err := fsys.ReadFile(filepath.Join(dir, RecordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NotFound("job record", dir)
	}
	if err != nil {
		return nil, apperrors.Internal("output.read_record", err)
	}
	var rec JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, apperrors.Internal("output.read_record", err)
	}
	return &rec, nil
}
