package gitops

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseOneline(t *testing.T) {
	output := "abc1234 Add login form\n\ndef5678 Fix: trailing  spaces\n0a0a0a0\n"
	want := []Commit{
		{SHA: "abc1234", Subject: "Add login form"},
		{SHA: "def5678", Subject: "Fix: trailing  spaces"},
		{SHA: "0a0a0a0"},
	}
	got := ParseOneline(output)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseOneline() = %+v, want %+v", got, want)
	}
	if lines := Onelines(got); lines[0] != "abc1234 Add login form" || lines[2] != "0a0a0a0" {
		t.Errorf("Onelines() = %v", lines)
	}
}

func TestRepoInTempDir(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	dir := t.TempDir()
	ctx := context.Background()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}

	run("init", "-b", "agent-runtime")
	run("config", "user.email", "test@test.com")
	run("config", "user.name", "Test User")
	for _, name := range []string{"one", "two", "three"} {
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
		run("add", ".")
		run("commit", "-m", "Add "+name)
	}

	repo := NewRepo(dir)

	commits, err := repo.RecentCommits(ctx, 2)
	if err != nil {
		t.Fatalf("RecentCommits() error = %v", err)
	}
	if len(commits) != 2 || commits[0].Subject != "Add three" || commits[1].Subject != "Add two" {
		t.Errorf("RecentCommits() = %+v", commits)
	}

	branch, err := repo.CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch() error = %v", err)
	}
	if branch != "agent-runtime" {
		t.Errorf("CurrentBranch() = %q", branch)
	}
}

func TestRecentCommitsNotARepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	if _, err := NewRepo(t.TempDir()).RecentCommits(context.Background(), 20); err == nil {
		t.Error("RecentCommits() outside a repo should fail")
	}
}
