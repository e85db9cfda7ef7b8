package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// fileRecord is one profile's entry in the token file.
type fileRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
	Profile      string    `json:"profile"`
}

// fileRecordMap is the on-disk layout: several profiles can share one file.
type fileRecordMap struct {
	Tokens map[string]*fileRecord `json:"tokens"` // key = profile
}

// File stores tokens in a JSON file keyed by profile. Writes take a lock file and
// replace the file atomically, so concurrent processes never observe a torn pair.
type File struct {
	Path    string
	Profile string
}

// NewFile returns a File store for profile at path.
func NewFile(path, profile string) *File {
	return &File{Path: path, Profile: profile}
}

func (f *File) Load(_ context.Context) (Credentials, error) {
	storageMap, err := f.read()
	if err != nil {
		return Credentials{}, err
	}
	rec, ok := storageMap.Tokens[f.Profile]
	if !ok || rec == nil {
		return Credentials{}, nil
	}
	return Credentials{AccessToken: rec.AccessToken, RefreshToken: rec.RefreshToken}, nil
}

// Save merges the pair into the file without touching other profiles.
func (f *File) Save(_ context.Context, creds Credentials) error {
	return f.update(func(m *fileRecordMap) {
		m.Tokens[f.Profile] = &fileRecord{
			AccessToken:  creds.AccessToken,
			RefreshToken: creds.RefreshToken,
			UpdatedAt:    time.Now().UTC(),
			Profile:      f.Profile,
		}
	})
}

func (f *File) Clear(_ context.Context) error {
	return f.update(func(m *fileRecordMap) {
		delete(m.Tokens, f.Profile)
	})
}

func (f *File) read() (*fileRecordMap, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return &fileRecordMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var storageMap fileRecordMap
	if err := json.Unmarshal(data, &storageMap); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}
	return &storageMap, nil
}

// update runs fn on the current map while holding the file lock and writes the result back.
func (f *File) update(fn func(*fileRecordMap)) error {
	lock, err := acquireFileLock(f.Path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			fmt.Fprintf(os.Stderr, "failed to release lock: %v\n", releaseErr)
		}
	}()

	// A corrupt file is replaced rather than blocking every future login; an unreadable one
	// is left alone, since other profiles may still live in it.
	storageMap, err := f.read()
	if err != nil {
		if !isCorrupt(err) {
			return err
		}
		storageMap = &fileRecordMap{}
	}
	if storageMap.Tokens == nil {
		storageMap.Tokens = make(map[string]*fileRecord)
	}

	fn(storageMap)

	data, err := json.MarshalIndent(storageMap, "", "  ")
	if err != nil {
		return err
	}

	tempFile := f.Path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, f.Path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func isCorrupt(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
