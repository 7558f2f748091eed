package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func (s *Store) ListFolders() ([]Folder, error) {
	var folders []Folder
	err := s.db.Select(&folders, `SELECT id, owner_id, name, created_at FROM folders WHERE owner_id = ? ORDER BY name`, s.owner)
	return folders, err
}

// FolderNames returns just the names, in the order offered to the synthesizer.
func (s *Store) FolderNames() ([]string, error) {
	var names []string
	err := s.db.Select(&names, `SELECT name FROM folders WHERE owner_id = ? ORDER BY name`, s.owner)
	return names, err
}

func (s *Store) CreateFolder(name string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("folder name is empty")
	}
	f := &Folder{
		ID:        uuid.NewString(),
		OwnerID:   s.owner,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.NamedExec(`INSERT INTO folders (id, owner_id, name, created_at) VALUES (:id, :owner_id, :name, :created_at)`, f)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("folder %s: %w", name, ErrConflict)
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) DeleteFolder(name string) error {
	res, err := s.db.Exec(`DELETE FROM folders WHERE owner_id = ? AND name = ?`, s.owner, name)
	if err != nil {
		return err
	}
	return requireRow(res, "folder", name)
}

// RenameFolder renames a folder and moves bookmarks filed under the old name.
func (s *Store) RenameFolder(oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return fmt.Errorf("folder name is empty")
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE folders SET name = ? WHERE owner_id = ? AND name = ?`, newName, s.owner, oldName)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("folder %s: %w", newName, ErrConflict)
		}
		return err
	}
	if err := requireRow(res, "folder", oldName); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE bookmarks SET suggested_folder = ?, updated_at = ? WHERE owner_id = ? AND suggested_folder = ?`,
		newName, time.Now().UTC(), s.owner, oldName); err != nil {
		return err
	}
	return tx.Commit()
}
