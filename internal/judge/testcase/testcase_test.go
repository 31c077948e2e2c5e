package testcase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"judged/internal/judge/model"
	appErr "judged/pkg/errors"
)

func writeSet(t *testing.T, root, id string, m manifest, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), data, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLocalRepositoryResolvesInNumericOrder(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "set-1", manifest{
		TestCaseNumber: 3,
		TestCases: map[string]manifestEntry{
			"10": {InputName: "10.in", OutputName: "10.out"},
			"2":  {InputName: "2.in", OutputName: "2.out"},
			"1":  {InputName: "1.in", OutputName: "1.out"},
		},
	}, map[string]string{
		"1.in": "a", "1.out": "A",
		"2.in": "b", "2.out": "B",
		"10.in": "c", "10.out": "C",
	})

	repo, err := NewLocalRepository(root)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	cases, err := repo.Resolve(context.Background(), "set-1")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	want := []string{"1", "2", "10"}
	if len(cases) != len(want) {
		t.Fatalf("got %d cases, want %d", len(cases), len(want))
	}
	for i, name := range want {
		if cases[i].Name != name {
			t.Fatalf("case %d is %q, want %q", i, cases[i].Name, name)
		}
	}
}

func TestLocalRepositoryUnknownSet(t *testing.T) {
	repo, err := NewLocalRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	_, err = repo.Resolve(context.Background(), "missing")
	if !appErr.Is(err, appErr.TestCaseNotFound) {
		t.Fatalf("got %v, want TestCaseNotFound", err)
	}
}

func TestLocalRepositoryRejectsTraversalIDs(t *testing.T) {
	repo, err := NewLocalRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	for _, id := range []string{"../etc", "a/b", "..", ""} {
		if _, err := repo.Resolve(context.Background(), id); err == nil {
			t.Fatalf("id %q accepted", id)
		}
	}
}

func TestLocalRepositoryMissingOutputWithoutSpj(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "broken", manifest{
		TestCases: map[string]manifestEntry{
			"1": {InputName: "1.in"},
		},
	}, map[string]string{"1.in": "a"})

	repo, _ := NewLocalRepository(root)
	if _, err := repo.Resolve(context.Background(), "broken"); !appErr.Is(err, appErr.TestCaseInvalid) {
		t.Fatalf("got %v, want TestCaseInvalid", err)
	}
}

func TestLocalRepositorySpjSetWithoutOutputs(t *testing.T) {
	root := t.TempDir()
	writeSet(t, root, "spj-set", manifest{
		Spj: true,
		TestCases: map[string]manifestEntry{
			"1": {InputName: "1.in"},
		},
	}, map[string]string{"1.in": "a"})

	repo, _ := NewLocalRepository(root)
	cases, err := repo.Resolve(context.Background(), "spj-set")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if cases[0].OutputPath != "" {
		t.Fatal("spj-only case should have no output path")
	}
}

func TestMaterializeWritesInlineCases(t *testing.T) {
	dir := t.TempDir()
	cases, err := Materialize(dir, []model.TestCase{
		{Input: "in-1", Output: "out-1"},
		{Input: "in-2"},
	})
	if err != nil {
		t.Fatalf("materialize failed: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("got %d cases", len(cases))
	}
	if cases[0].Name != "1" || cases[1].Name != "2" {
		t.Fatalf("case names = %q, %q", cases[0].Name, cases[1].Name)
	}
	data, err := os.ReadFile(cases[0].InputPath)
	if err != nil || string(data) != "in-1" {
		t.Fatalf("input content = %q, err %v", data, err)
	}
	if cases[1].OutputPath != "" {
		t.Fatal("case without expected output should have empty output path")
	}
	if _, err := Materialize(dir, nil); err == nil {
		t.Fatal("empty inline set must be rejected")
	}
}
