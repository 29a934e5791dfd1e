package vault

import "testing"

func TestNewNoteDerivesFields(t *testing.T) {
	n := NewNote("id-1", "Projects/Sub/Idea.md", "body", "{}", 10, 1000, 2000)
	if n.Name != "Idea" {
		t.Errorf("Name = %q, want %q", n.Name, "Idea")
	}
	if n.FolderPath != "Projects/Sub/" {
		t.Errorf("FolderPath = %q, want %q", n.FolderPath, "Projects/Sub/")
	}
	if n.Depth != 2 {
		t.Errorf("Depth = %d, want 2", n.Depth)
	}
}

func TestNewNoteRootLevel(t *testing.T) {
	n := NewNote("id-1", "Idea.md", "body", "{}", 0, 0, 0)
	if n.Name != "Idea" {
		t.Errorf("Name = %q, want %q", n.Name, "Idea")
	}
	if n.FolderPath != "" {
		t.Errorf("FolderPath = %q, want empty", n.FolderPath)
	}
	if n.Depth != 0 {
		t.Errorf("Depth = %d, want 0", n.Depth)
	}
}

func TestNewFolderDerivesFields(t *testing.T) {
	f := NewFolder("Projects/Sub")
	if f.Name != "Sub" {
		t.Errorf("Name = %q, want %q", f.Name, "Sub")
	}
	if f.Depth != 1 {
		t.Errorf("Depth = %d, want 1", f.Depth)
	}
}

func TestNewFolderTopLevel(t *testing.T) {
	f := NewFolder("Projects")
	if f.Name != "Projects" {
		t.Errorf("Name = %q, want %q", f.Name, "Projects")
	}
	if f.Depth != 0 {
		t.Errorf("Depth = %d, want 0", f.Depth)
	}
}
