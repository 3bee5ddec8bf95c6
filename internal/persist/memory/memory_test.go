package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/davgate/davgate/internal/persist"
)

func TestFileRoundtrip(t *testing.T) {
	ctx := context.Background()
	a := New()

	if err := a.WriteFile(ctx, []string{"a.txt"}, []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := a.ReadFile(ctx, []string{"a.txt"})
	if err != nil || string(b) != "hello" {
		t.Fatalf("ReadFile = %q, %v", b, err)
	}
	info, err := a.Stat(ctx, []string{"a.txt"})
	if err != nil || info.Dir || info.Size != 5 || info.MIME != "text/plain" {
		t.Fatalf("Stat = %+v, %v", info, err)
	}

	// returned slice must not alias the stored data
	b[0] = 'X'
	b2, _ := a.ReadFile(ctx, []string{"a.txt"})
	if string(b2) != "hello" {
		t.Fatalf("stored data mutated: %q", b2)
	}
}

func TestWriteFileErrors(t *testing.T) {
	ctx := context.Background()
	a := New()

	if err := a.WriteFile(ctx, nil, []byte("x"), ""); !errors.Is(err, persist.ErrIsDir) {
		t.Fatalf("write to root: %v", err)
	}
	if err := a.WriteFile(ctx, []string{"missing", "a.txt"}, []byte("x"), ""); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("write under missing parent: %v", err)
	}
	if err := a.EnsureDir(ctx, []string{"d"}); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteFile(ctx, []string{"d"}, []byte("x"), ""); !errors.Is(err, persist.ErrIsDir) {
		t.Fatalf("write over dir: %v", err)
	}
}

func TestEnsureDirAndReadDir(t *testing.T) {
	ctx := context.Background()
	a := New()

	if err := a.EnsureDir(ctx, []string{"a", "b", "c"}); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	// idempotent
	if err := a.EnsureDir(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("EnsureDir again: %v", err)
	}
	if err := a.WriteFile(ctx, []string{"a", "z.txt"}, []byte("z"), ""); err != nil {
		t.Fatal(err)
	}
	names, err := a.ReadDir(ctx, []string{"a"})
	if err != nil || !reflect.DeepEqual(names, []string{"b", "z.txt"}) {
		t.Fatalf("ReadDir = %v, %v", names, err)
	}
	if _, err := a.ReadDir(ctx, []string{"a", "z.txt"}); !errors.Is(err, persist.ErrNotDir) {
		t.Fatalf("ReadDir on file: %v", err)
	}
	if err := a.EnsureDir(ctx, []string{"a", "z.txt"}); !errors.Is(err, persist.ErrNotDir) {
		t.Fatalf("EnsureDir over file: %v", err)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	a := New()
	if err := a.EnsureDir(ctx, []string{"d"}); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteFile(ctx, []string{"d", "a.txt"}, []byte("x"), ""); err != nil {
		t.Fatal(err)
	}

	if err := a.Remove(ctx, []string{"d"}, false); !errors.Is(err, persist.ErrNotEmpty) {
		t.Fatalf("non-recursive remove of non-empty dir: %v", err)
	}
	if err := a.Remove(ctx, []string{"d"}, true); err != nil {
		t.Fatalf("recursive remove: %v", err)
	}
	if ok, _ := a.Exists(ctx, []string{"d", "a.txt"}); ok {
		t.Fatal("child survived recursive remove")
	}
	if err := a.Remove(ctx, []string{"d"}, false); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("remove missing: %v", err)
	}
	if err := a.Remove(ctx, nil, true); !errors.Is(err, persist.ErrPermission) {
		t.Fatalf("remove root: %v", err)
	}
}

func TestMoveAndCopyTree(t *testing.T) {
	ctx := context.Background()
	a := New()
	if err := a.EnsureDir(ctx, []string{"src", "sub"}); err != nil {
		t.Fatal(err)
	}
	if err := a.WriteFile(ctx, []string{"src", "sub", "f.txt"}, []byte("f"), ""); err != nil {
		t.Fatal(err)
	}

	if err := a.Copy(ctx, []string{"src"}, []string{"cp"}); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if b, err := a.ReadFile(ctx, []string{"cp", "sub", "f.txt"}); err != nil || string(b) != "f" {
		t.Fatalf("copied child = %q, %v", b, err)
	}
	if ok, _ := a.Exists(ctx, []string{"src", "sub", "f.txt"}); !ok {
		t.Fatal("copy removed the source")
	}

	if err := a.Move(ctx, []string{"src"}, []string{"mv"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ok, _ := a.Exists(ctx, []string{"src"}); ok {
		t.Fatal("move kept the source")
	}
	if b, err := a.ReadFile(ctx, []string{"mv", "sub", "f.txt"}); err != nil || string(b) != "f" {
		t.Fatalf("moved child = %q, %v", b, err)
	}

	if err := a.Move(ctx, []string{"mv"}, []string{"cp"}); !errors.Is(err, persist.ErrExists) {
		t.Fatalf("move onto existing target: %v", err)
	}
	if err := a.Move(ctx, []string{"ghost"}, []string{"x"}); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("move missing source: %v", err)
	}
}
