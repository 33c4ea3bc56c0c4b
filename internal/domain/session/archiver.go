package session

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// profileDir is the Chromium profile directory inside the session
// working directory. Pairing state lives under it.
const profileDir = "Default"

// authPaths are the profile entries that constitute authentication
// state. Everything else (caches, logs, GPU state) is regenerable and
// only inflates the blob.
var authPaths = []string{
	"Cookies",
	"Cookies-journal",
	"Local Storage",
	"IndexedDB",
}

// storageDirs are the entries of which at least one must survive an
// unpack for the session to be usable, alongside the cookie store.
var storageDirs = []string{
	"Local Storage",
	"IndexedDB",
}

// StructuralError indicates an unpacked archive is missing required
// profile structure. It is not retryable; the caller must fall back to
// fresh pairing.
type StructuralError struct {
	Missing string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("session archive missing %s", e.Missing)
}

// Archiver converts between the session working directory and a single
// compressed blob.
type Archiver struct{}

// NewArchiver creates an archiver.
func NewArchiver() *Archiver {
	return &Archiver{}
}

// Pack archives the auth-state subset of sessionDir into a tar.gz
// blob. Missing optional entries are skipped; an entirely absent
// profile directory is an error.
func (a *Archiver) Pack(sessionDir string) ([]byte, error) {
	profile := filepath.Join(sessionDir, profileDir)
	if _, err := os.Stat(profile); err != nil {
		return nil, fmt.Errorf("pack: no profile directory at %s: %w", profile, err)
	}

	var buf bytes.Buffer
	gzWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzWriter)

	packed := 0
	for _, name := range authPaths {
		root := filepath.Join(profile, name)
		if _, err := os.Stat(root); err != nil {
			continue
		}
		n, err := addTree(tarWriter, sessionDir, root)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", name, err)
		}
		packed += n
	}
	if packed == 0 {
		return nil, &StructuralError{Missing: "authentication state under " + profileDir}
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack clears targetDir, extracts the blob into it, and verifies the
// restored structure. On verification failure the target is left in
// place for inspection but the error forces the caller onto the fresh
// pairing path.
func (a *Archiver) Unpack(blob []byte, targetDir string) error {
	if err := os.RemoveAll(targetDir); err != nil {
		return fmt.Errorf("unpack: clear target: %w", err)
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("unpack: create target: %w", err)
	}

	gzReader, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	cleanTarget := filepath.Clean(targetDir)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("unpack: %w", err)
		}

		destPath := filepath.Join(targetDir, header.Name)
		if !strings.HasPrefix(destPath, cleanTarget+string(os.PathSeparator)) {
			// Entry escapes the target; never extract it.
			continue
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return fmt.Errorf("unpack %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return fmt.Errorf("unpack %s: %w", header.Name, err)
			}
			outFile, err := os.Create(destPath)
			if err != nil {
				return fmt.Errorf("unpack %s: %w", header.Name, err)
			}
			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return fmt.Errorf("unpack %s: %w", header.Name, err)
			}
			outFile.Close()
		}
	}

	return a.Verify(targetDir)
}

// Verify checks a session tree for the structure the browser session
// needs: the profile directory with its cookie store plus at least one
// storage directory. It serves double duty as the post-unpack check
// and the local-presence probe before restoration.
func (a *Archiver) Verify(targetDir string) error {
	profile := filepath.Join(targetDir, profileDir)
	if info, err := os.Stat(profile); err != nil || !info.IsDir() {
		return &StructuralError{Missing: profileDir + " directory"}
	}

	if _, err := os.Stat(filepath.Join(profile, "Cookies")); err != nil {
		return &StructuralError{Missing: "cookie store"}
	}

	for _, name := range storageDirs {
		if info, err := os.Stat(filepath.Join(profile, name)); err == nil && info.IsDir() {
			return nil
		}
	}
	return &StructuralError{Missing: "storage directory (Local Storage or IndexedDB)"}
}

// addTree writes one file or directory tree into the archive, with
// entry names relative to baseDir.
func addTree(tarWriter *tar.Writer, baseDir, root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if !d.IsDir() {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			if _, err := io.Copy(tarWriter, file); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}
