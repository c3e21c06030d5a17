package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestSongsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_songs.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS songs",
		"CONSTRAINT songs_audio_key_key UNIQUE (audio_key)",
		"CHECK (price >= 0)",
		"CHECK (duration_seconds >= 0)",
		"FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE SET NULL",
		"DROP TABLE IF EXISTS songs",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestAlbumsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_albums.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS albums",
		"CHECK (price >= 0)",
		"DROP TABLE IF EXISTS albums",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestUsersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_users.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS users",
		"CONSTRAINT users_subject_id_key UNIQUE (subject_id)",
		"CHECK (role IN ('user', 'admin'))",
		"DROP TABLE IF EXISTS users",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
