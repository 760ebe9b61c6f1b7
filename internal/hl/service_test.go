package hl_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mdhl/internal/hl"
	"mdhl/internal/testutil"
)

// writeFile creates a file under a temp dir and returns its absolute path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestService_CreateHighlight(t *testing.T) {
	t.Run("records exact offsets", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "The quick brown fox")

		h, err := fx.Service.CreateHighlight(path, "brown fox", 0, "")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if h.StartOffset != 10 || h.EndOffset != 19 {
			t.Errorf("offsets = {%d, %d}, want {10, 19}", h.StartOffset, h.EndOffset)
		}
		if h.IsStale {
			t.Error("fresh highlight flagged stale")
		}
		if h.ContentHash != hl.HashContent("The quick brown fox") {
			t.Error("stored hash does not match file content")
		}
	})

	t.Run("uses the occurrence index", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "brown fox and brown dog")

		h, err := fx.Service.CreateHighlight(path, "brown", 1, "")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if h.StartOffset != 14 {
			t.Errorf("StartOffset = %d, want 14", h.StartOffset)
		}
	})

	t.Run("fails when text is absent", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "nothing here")

		_, err := fx.Service.CreateHighlight(path, "absent passage", 0, "")
		if !errors.Is(err, hl.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("fails when file is unreadable", func(t *testing.T) {
		fx := testutil.NewTestService(t)

		_, err := fx.Service.CreateHighlight(filepath.Join(t.TempDir(), "missing.md"), "text", 0, "")
		if err == nil {
			t.Error("CreateHighlight() succeeded on a missing file")
		}
	})

	t.Run("creates the resource row on first highlight", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "some highlighted text")

		if _, err := fx.Service.CreateHighlight(path, "highlighted", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		res, err := fx.Store.FindResourceByPath(path)
		if err != nil {
			t.Fatalf("FindResourceByPath() error = %v", err)
		}
		if res == nil {
			t.Fatal("resource row was not created")
		}
		if res.Kind != hl.KindFile {
			t.Errorf("Kind = %q, want %q", res.Kind, hl.KindFile)
		}
		if res.BackupPath == "" || res.ContentHash == "" {
			t.Error("backup path and content hash were not recorded")
		}
	})

	t.Run("creates exactly one backup per resource", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "first phrase and second phrase")

		if _, err := fx.Service.CreateHighlight(path, "first phrase", 0, ""); err != nil {
			t.Fatalf("first CreateHighlight() error = %v", err)
		}
		res, _ := fx.Store.FindResourceByPath(path)
		firstBackup := res.BackupPath

		fx.Clock.Advance(time.Minute)
		if _, err := fx.Service.CreateHighlight(path, "second phrase", 0, ""); err != nil {
			t.Fatalf("second CreateHighlight() error = %v", err)
		}

		infos, err := fx.Backups.List()
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(infos) != 1 {
			t.Fatalf("backup count = %d, want 1", len(infos))
		}

		res, _ = fx.Store.FindResourceByPath(path)
		if res.BackupPath != firstBackup {
			t.Error("backup path changed on second highlight")
		}
	})

	t.Run("stores notes", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "annotated passage")

		h, err := fx.Service.CreateHighlight(path, "annotated", 0, "check later")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		stored, err := fx.Store.GetHighlight(h.ID)
		if err != nil {
			t.Fatalf("GetHighlight() error = %v", err)
		}
		if stored.Notes != "check later" {
			t.Errorf("Notes = %q, want %q", stored.Notes, "check later")
		}
	})
}

func TestService_ListByResource(t *testing.T) {
	t.Run("round trip with unchanged file", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "The quick brown fox")

		created, err := fx.Service.CreateHighlight(path, "brown fox", 0, "")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		if len(listed) != 1 {
			t.Fatalf("highlight count = %d, want 1", len(listed))
		}
		h := listed[0]
		if h.IsStale {
			t.Error("highlight became stale without any file change")
		}
		if h.StartOffset != created.StartOffset || h.EndOffset != created.EndOffset {
			t.Error("offsets changed without any file change")
		}
	})

	t.Run("relocates after drift", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "The quick brown fox")

		if _, err := fx.Service.CreateHighlight(path, "brown fox", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		// Prepend an unrelated paragraph; the highlighted text shifts by 15.
		newContent := "New paragraph.\nThe quick brown fox"
		writeFile(t, dir, "doc.md", newContent)

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		h := listed[0]
		if h.IsStale {
			t.Error("relocatable highlight flagged stale")
		}
		if h.StartOffset != 25 || h.EndOffset != 34 {
			t.Errorf("offsets = {%d, %d}, want {25, 34}", h.StartOffset, h.EndOffset)
		}
		if h.ContentHash != hl.HashContent(newContent) {
			t.Error("hash was not updated to the new content")
		}
	})

	t.Run("marks stale when text is gone", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "The quick brown fox")

		created, err := fx.Service.CreateHighlight(path, "brown fox", 0, "")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		writeFile(t, dir, "doc.md", "Entirely different content now")

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		h := listed[0]
		if !h.IsStale {
			t.Error("lost highlight not flagged stale")
		}
		// Old offsets are kept for audit and restore.
		if h.StartOffset != created.StartOffset || h.EndOffset != created.EndOffset {
			t.Error("offsets were invented for a lost highlight")
		}
	})

	t.Run("survives formatting-only edits via fallback", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "The quick brown fox jumps over")

		if _, err := fx.Service.CreateHighlight(path, "brown fox jumps", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		// Re-wrap the paragraph: a newline now splits the highlighted span.
		writeFile(t, dir, "doc.md", "The quick brown\nfox jumps over")

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		if listed[0].IsStale {
			t.Error("re-wrapped highlight flagged stale")
		}
	})

	t.Run("unreadable file marks all highlights stale", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "first phrase and second phrase")

		if _, err := fx.Service.CreateHighlight(path, "first phrase", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if _, err := fx.Service.CreateHighlight(path, "second phrase", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		if err := os.Remove(path); err != nil {
			t.Fatalf("removing file: %v", err)
		}

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v, want graceful degradation", err)
		}
		if len(listed) != 2 {
			t.Fatalf("highlight count = %d, want 2", len(listed))
		}
		for _, h := range listed {
			if !h.IsStale {
				t.Error("highlight on unreadable file not flagged stale")
			}
		}
	})

	t.Run("returns nil for an unknown resource", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		listed, err := fx.Service.ListByResource("/nowhere/doc.md")
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		if len(listed) != 0 {
			t.Errorf("highlight count = %d, want 0", len(listed))
		}
	})

	t.Run("orders by start offset after relocation", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "alpha then beta")

		if _, err := fx.Service.CreateHighlight(path, "beta", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		fx.Clock.Advance(time.Second)
		if _, err := fx.Service.CreateHighlight(path, "alpha", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		// Swap the order of the two snippets.
		writeFile(t, dir, "doc.md", "beta then alpha")

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		if len(listed) != 2 {
			t.Fatalf("highlight count = %d, want 2", len(listed))
		}
		if listed[0].Text != "beta" || listed[1].Text != "alpha" {
			t.Errorf("order = [%q, %q], want [beta, alpha]", listed[0].Text, listed[1].Text)
		}
	})

	t.Run("relocation always restarts from occurrence zero", func(t *testing.T) {
		// Known limitation: a highlight on the second of two identical
		// snippets snaps to the first occurrence after any drift.
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "stop. Then stop.")

		h, err := fx.Service.CreateHighlight(path, "stop.", 1, "")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if h.StartOffset != 11 {
			t.Fatalf("StartOffset = %d, want 11", h.StartOffset)
		}

		writeFile(t, dir, "doc.md", "x stop. Then stop.")

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		if listed[0].StartOffset != 2 {
			t.Errorf("StartOffset = %d, want 2 (first occurrence)", listed[0].StartOffset)
		}
	})
}

func TestService_CleanupResource(t *testing.T) {
	t.Run("deletes highlights whose text is gone", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "keep this and drop that")

		if _, err := fx.Service.CreateHighlight(path, "keep this", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if _, err := fx.Service.CreateHighlight(path, "drop that", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}

		writeFile(t, dir, "doc.md", "prefix keep this and nothing else")

		removed, err := fx.Service.CleanupResource(path)
		if err != nil {
			t.Fatalf("CleanupResource() error = %v", err)
		}
		if removed != 1 {
			t.Errorf("removed = %d, want 1", removed)
		}

		listed, err := fx.Service.ListByResource(path)
		if err != nil {
			t.Fatalf("ListByResource() error = %v", err)
		}
		if len(listed) != 1 {
			t.Fatalf("highlight count = %d, want 1", len(listed))
		}
		if listed[0].Text != "keep this" || listed[0].IsStale {
			t.Error("surviving highlight was not relocated cleanly")
		}
	})

	t.Run("deletes all highlights of an unreadable file", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "some text here")

		if _, err := fx.Service.CreateHighlight(path, "some text", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if err := os.Remove(path); err != nil {
			t.Fatalf("removing file: %v", err)
		}

		removed, err := fx.Service.CleanupResource(path)
		if err != nil {
			t.Fatalf("CleanupResource() error = %v", err)
		}
		if removed != 1 {
			t.Errorf("removed = %d, want 1", removed)
		}
	})

	t.Run("is a no-op for unknown resources", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		removed, err := fx.Service.CleanupResource("/nowhere/doc.md")
		if err != nil {
			t.Fatalf("CleanupResource() error = %v", err)
		}
		if removed != 0 {
			t.Errorf("removed = %d, want 0", removed)
		}
	})
}

func TestService_DeleteHighlight(t *testing.T) {
	t.Run("deletes an existing highlight", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "delete me soon")

		h, err := fx.Service.CreateHighlight(path, "delete me", 0, "")
		if err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		if err := fx.Service.DeleteHighlight(h.ID); err != nil {
			t.Fatalf("DeleteHighlight() error = %v", err)
		}

		stored, err := fx.Store.GetHighlight(h.ID)
		if err != nil {
			t.Fatalf("GetHighlight() error = %v", err)
		}
		if stored != nil {
			t.Error("highlight still present after delete")
		}
	})

	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		err := fx.Service.DeleteHighlight("no-such-id")
		if !errors.Is(err, hl.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_RestoreResource(t *testing.T) {
	t.Run("in place overwrites the original", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		original := "original content with a phrase"
		path := writeFile(t, dir, "doc.md", original)

		if _, err := fx.Service.CreateHighlight(path, "a phrase", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		writeFile(t, dir, "doc.md", "mangled beyond recognition")

		outPath, err := fx.Service.RestoreResource(path, false)
		if err != nil {
			t.Fatalf("RestoreResource() error = %v", err)
		}
		if outPath != path {
			t.Errorf("outPath = %q, want the original path", outPath)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading restored file: %v", err)
		}
		if string(data) != original {
			t.Error("file content was not restored")
		}
	})

	t.Run("timestamped leaves the original and registers a new resource", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		dir := t.TempDir()
		path := writeFile(t, dir, "doc.md", "original content with a phrase")

		if _, err := fx.Service.CreateHighlight(path, "a phrase", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		edited := "edited content"
		writeFile(t, dir, "doc.md", edited)

		outPath, err := fx.Service.RestoreResource(path, true)
		if err != nil {
			t.Fatalf("RestoreResource() error = %v", err)
		}
		if outPath == path {
			t.Fatal("timestamped restore returned the original path")
		}
		if !strings.HasPrefix(filepath.Base(outPath), "doc.") || !strings.HasSuffix(outPath, ".md") {
			t.Errorf("unexpected copy name %q", filepath.Base(outPath))
		}

		data, _ := os.ReadFile(path)
		if string(data) != edited {
			t.Error("original file was modified by timestamped restore")
		}

		res, err := fx.Store.FindResourceByPath(outPath)
		if err != nil {
			t.Fatalf("FindResourceByPath() error = %v", err)
		}
		if res == nil {
			t.Error("no resource row registered for the restored copy")
		}
	})

	t.Run("fails without a backup", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "content")

		if _, err := fx.Service.RegisterResource(path, hl.KindFile); err != nil {
			t.Fatalf("RegisterResource() error = %v", err)
		}
		_, err := fx.Service.RestoreResource(path, false)
		if !errors.Is(err, hl.ErrNoBackup) {
			t.Errorf("error = %v, want ErrNoBackup", err)
		}
	})

	t.Run("fails for unknown resource", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		_, err := fx.Service.RestoreResource("/nowhere/doc.md", false)
		if !errors.Is(err, hl.ErrNotFound) {
			t.Errorf("error = %v, want ErrNotFound", err)
		}
	})

	t.Run("fails when the backup file is missing", func(t *testing.T) {
		fx := testutil.NewTestService(t)
		path := writeFile(t, t.TempDir(), "doc.md", "content with phrase")

		if _, err := fx.Service.CreateHighlight(path, "phrase", 0, ""); err != nil {
			t.Fatalf("CreateHighlight() error = %v", err)
		}
		res, _ := fx.Store.FindResourceByPath(path)
		if err := os.Remove(res.BackupPath); err != nil {
			t.Fatalf("removing backup: %v", err)
		}

		_, err := fx.Service.RestoreResource(path, false)
		if !errors.Is(err, hl.ErrBackupMissing) {
			t.Errorf("error = %v, want ErrBackupMissing", err)
		}
	})
}

func TestService_Export(t *testing.T) {
	fx := testutil.NewTestService(t)
	dir := t.TempDir()
	pathA := writeFile(t, dir, "a.md", "alpha passage here")
	pathB := writeFile(t, dir, "b.md", "beta passage here")

	if _, err := fx.Service.CreateHighlight(pathA, "alpha passage", 0, "note A"); err != nil {
		t.Fatalf("CreateHighlight(a) error = %v", err)
	}
	fx.Clock.Advance(time.Minute)
	if _, err := fx.Service.CreateHighlight(pathB, "beta passage", 0, ""); err != nil {
		t.Fatalf("CreateHighlight(b) error = %v", err)
	}

	result, err := fx.Service.Export(dir, "notes")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.Count != 2 {
		t.Errorf("Count = %d, want 2", result.Count)
	}
	if filepath.Dir(result.Path) != fx.ExportDir {
		t.Errorf("export written to %q, want under %q", result.Path, fx.ExportDir)
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	doc := string(data)
	if !strings.Contains(doc, "alpha passage") || !strings.Contains(doc, "beta passage") {
		t.Error("export missing highlight text")
	}
	if !strings.Contains(doc, "note A") {
		t.Error("export missing notes")
	}
}

func TestService_ListByDirectory(t *testing.T) {
	fx := testutil.NewTestService(t)
	dir := t.TempDir()
	pathA := writeFile(t, dir, "a.md", "older passage")
	pathB := writeFile(t, dir, "b.md", "newer passage")

	if _, err := fx.Service.CreateHighlight(pathA, "older passage", 0, ""); err != nil {
		t.Fatalf("CreateHighlight(a) error = %v", err)
	}
	fx.Clock.Advance(time.Minute)
	if _, err := fx.Service.CreateHighlight(pathB, "newer passage", 0, ""); err != nil {
		t.Fatalf("CreateHighlight(b) error = %v", err)
	}

	// Directory listing does not reconcile; mangle one file to prove it.
	writeFile(t, dir, "a.md", "completely different")

	rows, err := fx.Service.ListByDirectory(dir)
	if err != nil {
		t.Fatalf("ListByDirectory() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count = %d, want 2", len(rows))
	}
	if rows[0].Text != "newer passage" {
		t.Errorf("first row = %q, want the newest highlight", rows[0].Text)
	}
	if rows[1].IsStale {
		t.Error("directory listing ran reconciliation")
	}

	has, err := fx.Service.DirectoryHasHighlights(dir)
	if err != nil {
		t.Fatalf("DirectoryHasHighlights() error = %v", err)
	}
	if !has {
		t.Error("DirectoryHasHighlights() = false, want true")
	}
}

func TestService_EndToEnd(t *testing.T) {
	// Three files, one highlight, one edit above the highlighted text:
	// the highlight survives with shifted offsets and a backup on disk.
	fx := testutil.NewTestService(t)
	dir := t.TempDir()
	pathA := writeFile(t, dir, "a.md", "intro\nalpha\noutro")
	writeFile(t, dir, "b.md", "beta")
	writeFile(t, dir, "c.md", "gamma")

	h, err := fx.Service.CreateHighlight(pathA, "alpha", 0, "")
	if err != nil {
		t.Fatalf("CreateHighlight() error = %v", err)
	}
	if h.IsStale {
		t.Fatal("fresh highlight flagged stale")
	}

	writeFile(t, dir, "a.md", "inserted paragraph\n\nintro\nalpha\noutro")

	listed, err := fx.Service.ListByResource(pathA)
	if err != nil {
		t.Fatalf("ListByResource() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("highlight count = %d, want 1", len(listed))
	}
	got := listed[0]
	if got.IsStale {
		t.Error("highlight flagged stale after relocatable edit")
	}
	wantStart := len("inserted paragraph\n\nintro\n")
	if got.StartOffset != wantStart || got.EndOffset != wantStart+len("alpha") {
		t.Errorf("offsets = {%d, %d}, want {%d, %d}",
			got.StartOffset, got.EndOffset, wantStart, wantStart+len("alpha"))
	}

	res, _ := fx.Store.FindResourceByPath(pathA)
	infos, err := fx.Backups.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("backup count = %d, want 1", len(infos))
	}
	if infos[0].ResourceID != res.ID || infos[0].OriginalName != "a.md" {
		t.Errorf("backup metadata = %+v, want resource %s / a.md", infos[0], res.ID)
	}

	content, err := fx.Service.BackupContent(pathA)
	if err != nil {
		t.Fatalf("BackupContent() error = %v", err)
	}
	if string(content) != "intro\nalpha\noutro" {
		t.Error("backup content is not the original file bytes")
	}
}
