package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/soundcheck/internal/db"
	"github.com/zulandar/soundcheck/internal/dbtest"
	"github.com/zulandar/soundcheck/internal/models"
	"gorm.io/gorm"
)

// writeConfig writes a sqlite config into a temp dir and returns its path
// and the database file path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sc.db")
	cfgPath := filepath.Join(dir, "soundcheck.yaml")
	yaml := "database:\n  driver: sqlite\n  path: " + dbPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, dbPath
}

func migrated(t *testing.T) (string, string) {
	t.Helper()
	cfgPath, dbPath := writeConfig(t)
	if out, err := run(t, "db", "migrate", "-c", cfgPath); err != nil {
		t.Fatalf("db migrate: %v\n%s", err, out)
	}
	return cfgPath, dbPath
}

func openFile(t *testing.T, path string) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	t.Cleanup(func() { db.Close(gdb) })
	return gdb
}

func TestCommands_MissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	for _, args := range [][]string{
		{"db", "migrate", "-c", missing},
		{"reap", "-c", missing},
		{"track", "verify", "-c", missing},
		{"stats", "-c", missing},
		{"worker", "-c", missing},
	} {
		if _, err := run(t, args...); err == nil {
			t.Errorf("%v: expected error for missing config", args)
		}
	}
}

func TestDBMigrate_Idempotent(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, "db", "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	if !strings.Contains(out, "Applied") {
		t.Errorf("first migrate output = %q, want applied migrations", out)
	}

	out, err = run(t, "db", "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !strings.Contains(out, "Schema is up to date.") {
		t.Errorf("second migrate output = %q", out)
	}
}

func TestDBReset(t *testing.T) {
	cfgPath, dbPath := migrated(t)
	gdb := openFile(t, dbPath)
	dbtest.Artist(t, gdb, 5)
	db.Close(gdb)

	out, err := run(t, "db", "reset", "--yes", "-c", cfgPath)
	if err != nil {
		t.Fatalf("reset: %v\n%s", err, out)
	}
	if !strings.Contains(out, "reset and re-initialized") {
		t.Errorf("reset output = %q", out)
	}

	gdb = openFile(t, dbPath)
	if n := dbtest.Count(t, gdb, &models.ArtistProfile{}, "1 = 1"); n != 0 {
		t.Errorf("artists after reset = %d, want 0", n)
	}
}

func TestDBReset_Confirmation(t *testing.T) {
	cfgPath, _ := migrated(t)

	cmd := newRootCmd()
	buf := new(strings.Builder)
	cmd.SetOut(buf)
	cmd.SetIn(strings.NewReader("no\n"))
	cmd.SetArgs([]string{"db", "reset", "-c", cfgPath})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(buf.String(), "Aborted.") {
		t.Errorf("output = %q, want Aborted.", buf.String())
	}
}

func TestTrackLifecycle(t *testing.T) {
	cfgPath, dbPath := migrated(t)
	gdb := openFile(t, dbPath)
	artist := dbtest.Artist(t, gdb, 0, "rock")
	track := dbtest.Track(t, gdb, artist, "STANDARD", models.TrackUploaded, 0, "rock")

	out, err := run(t, "track", "queue", track.ID, "--amount", "1500", "-c", cfgPath)
	if err != nil {
		t.Fatalf("queue: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Queued track "+track.ID) {
		t.Errorf("queue output = %q", out)
	}

	out, err = run(t, "track", "queue", track.ID, "--amount", "1500", "-c", cfgPath)
	if err != nil {
		t.Fatalf("second queue: %v", err)
	}
	if !strings.Contains(out, "already queued") {
		t.Errorf("second queue output = %q", out)
	}

	out, err = run(t, "track", "verify", track.ID, "-c", cfgPath)
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, track.ID) {
		t.Errorf("verify output = %q, want report row", out)
	}

	out, err = run(t, "track", "dequeue", track.ID, "-c", cfgPath)
	if err != nil {
		t.Fatalf("dequeue: %v\n%s", err, out)
	}
	if !strings.Contains(out, models.TrackUploaded) {
		t.Errorf("dequeue output = %q, want %s", out, models.TrackUploaded)
	}

	got := dbtest.Reload[models.ArtistProfile](t, gdb, artist.ID)
	if got.ReviewCredits == 0 {
		t.Errorf("credits after dequeue = 0, want refund")
	}
}

func TestTrackVerify_AllConsistent(t *testing.T) {
	cfgPath, _ := migrated(t)
	out, err := run(t, "track", "verify", "-c", cfgPath)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "All counters are consistent.") {
		t.Errorf("verify output = %q", out)
	}
}

func TestTrackVerify_ReportsDrift(t *testing.T) {
	cfgPath, dbPath := migrated(t)
	gdb := openFile(t, dbPath)
	artist := dbtest.Artist(t, gdb, 0, "rock")
	track := dbtest.Track(t, gdb, artist, "STANDARD", models.TrackInProgress, 5, "rock")
	gdb.Model(&models.Track{}).Where("id = ?", track.ID).Update("reviews_completed", 2)

	out, err := run(t, "track", "verify", "-c", cfgPath)
	if err == nil {
		t.Fatal("expected drift error")
	}
	if !strings.Contains(out, track.ID) {
		t.Errorf("verify output = %q, want drifted track listed", out)
	}
}

func TestReapCmd(t *testing.T) {
	cfgPath, _ := migrated(t)
	out, err := run(t, "reap", "-c", cfgPath)
	if err != nil {
		t.Fatalf("reap: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Expired 0 review(s)") {
		t.Errorf("reap output = %q", out)
	}
	if !strings.Contains(out, "Removed 0 abandoned upload(s).") {
		t.Errorf("reap output = %q", out)
	}
}

func TestAssignCmd_UnknownTrack(t *testing.T) {
	cfgPath, _ := migrated(t)
	if _, err := run(t, "assign", "missing", "-c", cfgPath); err == nil {
		t.Fatal("expected error for unknown track")
	}
}

func TestStatsCmd(t *testing.T) {
	cfgPath, _ := migrated(t)
	out, err := run(t, "stats", "--fresh", "-c", cfgPath)
	if err != nil {
		t.Fatalf("stats: %v\n%s", err, out)
	}
	for _, key := range []string{`"activeListeners"`, `"topGenres"`} {
		if !strings.Contains(out, key) {
			t.Errorf("stats output missing %s: %s", key, out)
		}
	}
}

func TestServe_RequiresJWTSecret(t *testing.T) {
	cfgPath, _ := migrated(t)
	t.Setenv("SOUNDCHECK_JWT_SECRET", "")
	if _, err := run(t, "serve", "-c", cfgPath); err == nil {
		t.Fatal("expected error without jwt secret")
	}
}
