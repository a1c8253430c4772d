package backup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Dir is the directory, relative to the project root, holding backups.
const Dir = ".tag2sha"

const prefix = ".backup-"

type BackupInfo struct {
	Path      string
	Timestamp string
	FileCount int
}

// CreateBackup copies files into a new timestamped directory under
// root/.tag2sha, keeping their paths relative to root.
func CreateBackup(root string, files []string, now time.Time) (string, error) {
	backupDir := filepath.Join(root, Dir, prefix+now.Format("20060102-150405"))

	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	for _, file := range files {
		rel, err := relativeTo(root, file)
		if err != nil {
			return "", err
		}
		dst := filepath.Join(backupDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return "", fmt.Errorf("failed to backup %s: %w", file, err)
		}
		if err := copyFile(file, dst); err != nil {
			return "", fmt.Errorf("failed to backup %s: %w", file, err)
		}
	}

	return backupDir, nil
}

// ListBackups returns the backups under root, newest first.
func ListBackups(root string) ([]BackupInfo, error) {
	dir := filepath.Join(root, Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			if info, err := validateBackup(filepath.Join(dir, entry.Name())); err == nil {
				backups = append(backups, info)
			}
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp > backups[j].Timestamp
	})
	return backups, nil
}

func validateBackup(backupPath string) (BackupInfo, error) {
	info := BackupInfo{
		Path:      backupPath,
		Timestamp: strings.TrimPrefix(filepath.Base(backupPath), prefix),
	}

	files, err := backupFiles(backupPath)
	if err != nil {
		return info, fmt.Errorf("failed to read backup directory: %w", err)
	}
	if len(files) == 0 {
		return info, fmt.Errorf("no workflow files found in backup")
	}

	info.FileCount = len(files)
	return info, nil
}

// RestoreBackup copies every file of the backup back to its place under
// root.
func RestoreBackup(root, backupPath string) error {
	if backupPath == "" {
		return fmt.Errorf("no backup path provided")
	}

	if _, err := validateBackup(backupPath); err != nil {
		return fmt.Errorf("invalid backup: %w", err)
	}

	files, err := backupFiles(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup directory: %w", err)
	}

	for _, rel := range files {
		dst := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to restore %s: %w", rel, err)
		}
		if err := copyFile(filepath.Join(backupPath, rel), dst); err != nil {
			return fmt.Errorf("failed to restore %s: %w", rel, err)
		}
	}

	return nil
}

func DeleteBackup(backupPath string) error {
	if backupPath == "" {
		return fmt.Errorf("no backup path provided")
	}

	if err := os.RemoveAll(backupPath); err != nil {
		return fmt.Errorf("failed to delete backup directory: %w", err)
	}

	return nil
}

// backupFiles lists the YAML files of a backup relative to its directory.
func backupFiles(backupPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(backupPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(path)
		if d.IsDir() || (ext != ".yml" && ext != ".yaml") {
			return nil
		}
		rel, err := filepath.Rel(backupPath, path)
		if err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	return files, err
}

func relativeTo(root, file string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absFile, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", file, root)
	}
	return rel, nil
}

func copyFile(src, dst string) (err error) {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := source.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := destination.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	_, err = io.Copy(destination, source)
	return err
}
