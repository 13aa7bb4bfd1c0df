// Created by Yanjunhui

package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestPageFileCreateOpen(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "test.idx")

	f, err := OpenPageFile(path, true)
	if err != nil {
		t.Fatalf("Failed to create page file: %v", err)
	}
	if f.Name() != path {
		t.Errorf("Name mismatch: %s", f.Name())
	}
	if f.PageCount() != 0 {
		t.Errorf("New file should have 0 pages, got %d", f.PageCount())
	}

	// 重复创建必须失败
	if _, err := OpenPageFile(path, true); !errors.Is(err, ErrFileExists) {
		t.Errorf("Expected ErrFileExists, got %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// 重新打开
	f, err = OpenPageFile(path, false)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	f.Close()

	// 打开不存在的文件必须失败
	missing := filepath.Join(tmpDir, "missing.idx")
	if _, err := OpenPageFile(missing, false); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound, got %v", err)
	}

	// 删除
	if err := RemoveFile(path); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	if err := RemoveFile(path); !errors.Is(err, ErrFileNotFound) {
		t.Errorf("Expected ErrFileNotFound after remove, got %v", err)
	}
}

func TestPageFileAllocateReadWrite(t *testing.T) {
	tmpDir := t.TempDir()
	f, err := OpenPageFile(filepath.Join(tmpDir, "test.idx"), true)
	if err != nil {
		t.Fatalf("Failed to create page file: %v", err)
	}
	defer f.Close()

	// 页号从 1 开始密集递增
	for want := PageId(1); want <= 3; want++ {
		id, err := f.AllocatePage()
		if err != nil {
			t.Fatalf("Failed to allocate page: %v", err)
		}
		if id != want {
			t.Errorf("Allocated page %d, want %d", id, want)
		}
	}
	if f.PageCount() != 3 {
		t.Errorf("PageCount = %d, want 3", f.PageCount())
	}

	// 写入后读回
	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = byte(i % 251)
	}
	if err := f.WritePage(2, buf); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}
	got := make([]byte, PageSize)
	if err := f.ReadPage(2, got); err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if !bytes.Equal(buf, got) {
		t.Error("Page contents mismatch after round trip")
	}

	// 新分配的页必须是全零
	if err := f.ReadPage(3, got); err != nil {
		t.Fatalf("Failed to read fresh page: %v", err)
	}
	for i, b := range got {
		if b != 0 {
			t.Fatalf("Fresh page has non-zero byte at %d", i)
		}
	}

	// 无效页号
	if err := f.ReadPage(InvalidPageId, got); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("Expected ErrInvalidPage for page 0, got %v", err)
	}
	if err := f.ReadPage(4, got); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("Expected ErrInvalidPage past end, got %v", err)
	}
}

func TestRecordIdRoundTrip(t *testing.T) {
	rid := RecordId{PageNo: 1234, Slot: 56}
	buf := make([]byte, RecordIdSize)
	MarshalRecordId(buf, rid)
	if got := UnmarshalRecordId(buf); got != rid {
		t.Errorf("RecordId round trip: got %v, want %v", got, rid)
	}
	if !rid.Valid() {
		t.Error("RecordId should be valid")
	}
	if (RecordId{}).Valid() {
		t.Error("Zero RecordId should be invalid")
	}
}
