//go:build failpoint

// Created by Yanjunhui

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/monolite/monoidx/internal/failpoint"
)

func TestFileWriteFailpoint(t *testing.T) {
	defer failpoint.DisableAll()

	f, err := OpenPageFile(filepath.Join(t.TempDir(), "fp.db"), true)
	if err != nil {
		t.Fatalf("Failed to create page file: %v", err)
	}
	defer f.Close()

	failpoint.Enable("file.write", failpoint.FailOnce)
	if _, err := f.AllocatePage(); !errors.Is(err, failpoint.ErrInjected) {
		t.Fatalf("Expected injected error, got %v", err)
	}
	// 只失败一次，重试成功且页号不跳号
	id, err := f.AllocatePage()
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if id != 1 {
		t.Errorf("Allocated page %d after failed attempt, want 1", id)
	}
}

func TestEvictionFailpoint(t *testing.T) {
	defer failpoint.DisableAll()

	f, err := OpenPageFile(filepath.Join(t.TempDir(), "fp2.db"), true)
	if err != nil {
		t.Fatalf("Failed to create page file: %v", err)
	}
	defer f.Close()
	bm := NewBufferManager(1)

	id, _, err := bm.AllocatePage(f)
	if err != nil {
		t.Fatalf("Failed to allocate: %v", err)
	}
	if err := bm.UnPinPage(f, id, true); err != nil {
		t.Fatalf("Failed to unpin: %v", err)
	}

	// 唯一的帧是脏的，下一次分配必须先写回受害者；注入写回失败
	failpoint.Enable("buffer.evict", failpoint.AlwaysError)
	if _, _, err := bm.AllocatePage(f); !errors.Is(err, failpoint.ErrInjected) {
		t.Fatalf("Expected injected eviction error, got %v", err)
	}
}
