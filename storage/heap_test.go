// Created by Yanjunhui

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
)

func TestHeapAppendRead(t *testing.T) {
	tmpDir := t.TempDir()
	bm := NewBufferManager(20)

	heap, err := CreateHeapFile(filepath.Join(tmpDir, "relA"), bm)
	if err != nil {
		t.Fatalf("Failed to create heap file: %v", err)
	}
	defer heap.Close()

	records := [][]byte{
		[]byte("short"),
		bytes.Repeat([]byte{0x42}, 1000),
		[]byte("another record with some content"),
	}
	rids := make([]RecordId, len(records))
	for i, rec := range records {
		rid, err := heap.Append(rec)
		if err != nil {
			t.Fatalf("Failed to append record %d: %v", i, err)
		}
		if !rid.Valid() {
			t.Fatalf("Append returned invalid rid %v", rid)
		}
		rids[i] = rid
	}

	for i, rid := range rids {
		got, err := heap.Read(rid)
		if err != nil {
			t.Fatalf("Failed to read record %d: %v", i, err)
		}
		if !bytes.Equal(got, records[i]) {
			t.Errorf("Record %d mismatch", i)
		}
	}

	// 超大记录必须被拒绝
	if _, err := heap.Append(make([]byte, PageSize)); !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("Expected ErrRecordTooLarge, got %v", err)
	}
	// 无效槽位
	if _, err := heap.Read(RecordId{PageNo: rids[0].PageNo, Slot: 200}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
	if bm.PinnedPages(heap.File()) != 0 {
		t.Errorf("Pin leak: %d pages pinned", bm.PinnedPages(heap.File()))
	}
}

func TestHeapScannerAll(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "relA")
	bm := NewBufferManager(20)

	heap, err := CreateHeapFile(path, bm)
	if err != nil {
		t.Fatalf("Failed to create heap file: %v", err)
	}

	const n = 1000
	want := make(map[RecordId]string, n)
	for i := 0; i < n; i++ {
		rec := fmt.Sprintf("record %04d with trailing payload", i)
		rid, err := heap.Append([]byte(rec))
		if err != nil {
			t.Fatalf("Failed to append record %d: %v", i, err)
		}
		want[rid] = rec
	}
	if heap.File().PageCount() < 2 {
		t.Fatalf("Expected multi-page heap, got %d pages", heap.File().PageCount())
	}
	if err := heap.Close(); err != nil {
		t.Fatalf("Failed to close heap: %v", err)
	}

	// 重新打开并全量扫描
	fscan, err := NewFileScanner(path, bm)
	if err != nil {
		t.Fatalf("Failed to open scanner: %v", err)
	}
	defer fscan.Close()

	seen := 0
	for {
		rid, err := fscan.ScanNext()
		if errors.Is(err, ErrEndOfFile) {
			break
		}
		if err != nil {
			t.Fatalf("ScanNext failed: %v", err)
		}
		rec, err := fscan.GetRecord()
		if err != nil {
			t.Fatalf("GetRecord failed: %v", err)
		}
		if want[rid] != string(rec) {
			t.Fatalf("Record %v mismatch: %q", rid, rec)
		}
		seen++
	}
	if seen != n {
		t.Errorf("Scanned %d records, want %d", seen, n)
	}
}

func TestHeapScannerEdgeCases(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "empty")
	bm := NewBufferManager(10)

	heap, err := CreateHeapFile(path, bm)
	if err != nil {
		t.Fatalf("Failed to create heap file: %v", err)
	}
	if err := heap.Close(); err != nil {
		t.Fatalf("Failed to close heap: %v", err)
	}

	fscan, err := NewFileScanner(path, bm)
	if err != nil {
		t.Fatalf("Failed to open scanner: %v", err)
	}
	defer fscan.Close()

	// 定位前取记录
	if _, err := fscan.GetRecord(); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord before first ScanNext, got %v", err)
	}
	// 空文件立即到达末尾
	if _, err := fscan.ScanNext(); !errors.Is(err, ErrEndOfFile) {
		t.Errorf("Expected ErrEndOfFile, got %v", err)
	}
	// 到达末尾后保持 EOF
	if _, err := fscan.ScanNext(); !errors.Is(err, ErrEndOfFile) {
		t.Errorf("Expected ErrEndOfFile on repeat, got %v", err)
	}
}
