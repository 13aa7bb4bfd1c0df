// Created by Yanjunhui

package index

import (
	"errors"
	"testing"

	"github.com/monolite/monoidx/internal/testkit"
	"github.com/monolite/monoidx/storage"
)

func TestScanExceptions(t *testing.T) {
	ti := buildTestIndex(t, 100, testkit.Forward, debugOpts())
	defer ti.ix.Close()

	// 下界大于上界
	if err := ti.ix.StartScan(testkit.Key(10), GT, testkit.Key(5), LT); !errors.Is(err, ErrBadScanrange) {
		t.Errorf("Expected ErrBadScanrange, got %v", err)
	}
	// 操作符用反
	if err := ti.ix.StartScan(testkit.Key(5), LT, testkit.Key(10), LT); !errors.Is(err, ErrBadOpcodes) {
		t.Errorf("Expected ErrBadOpcodes for low LT, got %v", err)
	}
	if err := ti.ix.StartScan(testkit.Key(5), GTE, testkit.Key(10), GT); !errors.Is(err, ErrBadOpcodes) {
		t.Errorf("Expected ErrBadOpcodes for high GT, got %v", err)
	}

	// 没有扫描时 ScanNext / EndScan 必须报未初始化
	var rid storage.RecordId
	if err := ti.ix.ScanNext(&rid); !errors.Is(err, ErrScanNotInitialized) {
		t.Errorf("Expected ErrScanNotInitialized from ScanNext, got %v", err)
	}
	if err := ti.ix.EndScan(); !errors.Is(err, ErrScanNotInitialized) {
		t.Errorf("Expected ErrScanNotInitialized from EndScan, got %v", err)
	}
	if pinned := ti.bufMgr.PinnedPages(ti.ix.File()); pinned != 0 {
		t.Errorf("Failed StartScan leaked %d pins", pinned)
	}
}

func TestScanOperatorBoundaries(t *testing.T) {
	ti := buildTestIndex(t, 100, testkit.Random, debugOpts())
	defer ti.ix.Close()

	// GT 排除相等键，GTE 包含；上界同理
	if got := scanCount(t, ti.ix, testkit.Key(10), GT, testkit.Key(20), LT); got != 9 {
		t.Errorf("(10 GT, 20 LT) = %d, want 9", got)
	}
	if got := scanCount(t, ti.ix, testkit.Key(10), GTE, testkit.Key(20), LT); got != 10 {
		t.Errorf("(10 GTE, 20 LT) = %d, want 10", got)
	}
	if got := scanCount(t, ti.ix, testkit.Key(10), GT, testkit.Key(20), LTE); got != 10 {
		t.Errorf("(10 GT, 20 LTE) = %d, want 10", got)
	}
	if got := scanCount(t, ti.ix, testkit.Key(10), GTE, testkit.Key(20), LTE); got != 11 {
		t.Errorf("(10 GTE, 20 LTE) = %d, want 11", got)
	}

	// 单点扫描命中对应记录
	rids := scanRids(t, ti.ix, testkit.Key(42), GTE, testkit.Key(42), LTE)
	if len(rids) != 1 || rids[0] != ti.rids[42] {
		t.Errorf("Point scan = %v, want [%v]", rids, ti.rids[42])
	}
}

func TestScanYieldsAscendingOrder(t *testing.T) {
	ti := buildTestIndex(t, 300, testkit.Random, debugOpts())
	defer ti.ix.Close()

	rids := scanRids(t, ti.ix, testkit.Key(50), GTE, testkit.Key(249), LTE)
	if len(rids) != 200 {
		t.Fatalf("Scan count = %d, want 200", len(rids))
	}
	// 键升序对应记录号升序（每个键只插入了一次）
	for i, rid := range rids {
		if want := ti.rids[50+i]; rid != want {
			t.Fatalf("Position %d rid = %v, want %v", i, rid, want)
		}
	}
}

func TestScanDuplicateKeys(t *testing.T) {
	ti := emptyIndex(t, debugOpts())
	defer ti.ix.Close()

	// 重复键全部可达，等值扫描全部返回
	const dups = 5
	key := testkit.Key(7)
	for s := 1; s <= dups; s++ {
		if err := ti.ix.Insert(key, storage.RecordId{PageNo: 9, Slot: uint16(s)}); err != nil {
			t.Fatalf("Insert dup %d failed: %v", s, err)
		}
	}
	for i := 0; i < 20; i++ {
		if i == 7 {
			continue
		}
		if err := ti.ix.Insert(testkit.Key(i), storage.RecordId{PageNo: 10, Slot: uint16(i + 1)}); err != nil {
			t.Fatalf("Insert %d failed: %v", i, err)
		}
	}
	if err := ti.ix.Verify(); err != nil {
		t.Fatalf("Tree verification failed: %v", err)
	}

	rids := scanRids(t, ti.ix, key, GTE, key, LTE)
	if len(rids) != dups {
		t.Fatalf("Equality scan on duplicate key = %d hits, want %d", len(rids), dups)
	}
	seen := make(map[storage.RecordId]bool)
	for _, rid := range rids {
		if rid.PageNo != 9 || seen[rid] {
			t.Fatalf("Unexpected or repeated rid %v", rid)
		}
		seen[rid] = true
	}

	// GT 排除等值键
	if got := scanCount(t, ti.ix, key, GT, key, LTE); got != 0 {
		t.Errorf("(k GT, k LTE) on duplicates = %d, want 0", got)
	}
}

func TestScanCompletedTearsDown(t *testing.T) {
	ti := buildTestIndex(t, 50, testkit.Forward, debugOpts())
	defer ti.ix.Close()

	if err := ti.ix.StartScan(testkit.Key(10), GTE, testkit.Key(10), LTE); err != nil {
		t.Fatalf("StartScan failed: %v", err)
	}
	var rid storage.RecordId
	if err := ti.ix.ScanNext(&rid); err != nil {
		t.Fatalf("ScanNext failed: %v", err)
	}
	if rid != ti.rids[10] {
		t.Errorf("ScanNext rid = %v, want %v", rid, ti.rids[10])
	}
	if err := ti.ix.ScanNext(&rid); !errors.Is(err, ErrIndexScanCompleted) {
		t.Fatalf("Expected ErrIndexScanCompleted, got %v", err)
	}

	// 范围耗尽时扫描状态已被内部清理
	if err := ti.ix.ScanNext(&rid); !errors.Is(err, ErrScanNotInitialized) {
		t.Errorf("Expected ErrScanNotInitialized after completion, got %v", err)
	}
	if err := ti.ix.EndScan(); !errors.Is(err, ErrScanNotInitialized) {
		t.Errorf("Expected ErrScanNotInitialized after completion, got %v", err)
	}
	if pinned := ti.bufMgr.PinnedPages(ti.ix.File()); pinned != 0 {
		t.Errorf("Pins after completion = %d", pinned)
	}
}

func TestScanOverride(t *testing.T) {
	ti := buildTestIndex(t, 200, testkit.Forward, debugOpts())
	defer ti.ix.Close()

	if err := ti.ix.StartScan(testkit.Key(0), GTE, testkit.Key(199), LTE); err != nil {
		t.Fatalf("First StartScan failed: %v", err)
	}
	var rid storage.RecordId
	if err := ti.ix.ScanNext(&rid); err != nil {
		t.Fatalf("ScanNext failed: %v", err)
	}

	// 第二次 StartScan 自动终止前一个扫描
	if err := ti.ix.StartScan(testkit.Key(100), GTE, testkit.Key(110), LT); err != nil {
		t.Fatalf("Second StartScan failed: %v", err)
	}
	if pinned := ti.bufMgr.PinnedPages(ti.ix.File()); pinned != 1 {
		t.Errorf("Pins after scan override = %d, want 1", pinned)
	}
	n := 0
	for {
		err := ti.ix.ScanNext(&rid)
		if errors.Is(err, ErrIndexScanCompleted) {
			break
		}
		if err != nil {
			t.Fatalf("ScanNext failed: %v", err)
		}
		n++
	}
	if n != 10 {
		t.Errorf("Second scan count = %d, want 10", n)
	}
}

func TestScanNoSuchKey(t *testing.T) {
	ti := buildTestIndex(t, 100, testkit.Forward, debugOpts())
	defer ti.ix.Close()

	// 整个范围落在最大键之后
	if err := ti.ix.StartScan(testkit.Key(9000), GTE, testkit.Key(9999), LTE); !errors.Is(err, ErrNoSuchKeyFound) {
		t.Errorf("Expected ErrNoSuchKeyFound past max key, got %v", err)
	}
	// 两个现有键之间的开区间
	if err := ti.ix.StartScan(testkit.Key(0), GT, testkit.Key(1), LT); !errors.Is(err, ErrNoSuchKeyFound) {
		t.Errorf("Expected ErrNoSuchKeyFound in open gap, got %v", err)
	}
	if pinned := ti.bufMgr.PinnedPages(ti.ix.File()); pinned != 0 {
		t.Errorf("NoSuchKeyFound leaked %d pins", pinned)
	}
}
