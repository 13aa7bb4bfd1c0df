// Created by Yanjunhui

package index

import (
	"bytes"
	"fmt"

	"github.com/monolite/monoidx/storage"
)

// Operator 扫描比较操作符
// 下界只接受 GT/GTE，上界只接受 LT/LTE
type Operator int

const (
	// LT 小于
	LT Operator = iota
	// LTE 小于等于
	LTE
	// GTE 大于等于
	GTE
	// GT 大于
	GT
)

// String 返回操作符名称
func (op Operator) String() string {
	switch op {
	case LT:
		return "LT"
	case LTE:
		return "LTE"
	case GTE:
		return "GTE"
	case GT:
		return "GT"
	default:
		return fmt.Sprintf("Operator(%d)", int(op))
	}
}

// StartScan 开始一次范围扫描
// 已有扫描先被终止。定位到第一片含合格键的叶子并保持其钉住；
// 范围内没有任何键时返回 ErrNoSuchKeyFound 并清理状态。
func (ix *BTreeIndex) StartScan(lowVal []byte, lowOp Operator, highVal []byte, highOp Operator) error {
	if ix.scanExecuting {
		ix.endScanInternal()
	}

	var lo, hi [KeySize]byte
	copy(lo[:], lowVal)
	copy(hi[:], highVal)

	if bytes.Compare(lo[:], hi[:]) > 0 {
		return fmt.Errorf("%w: low %q > high %q", ErrBadScanrange, lo[:], hi[:])
	}
	if lowOp != GT && lowOp != GTE {
		return fmt.Errorf("%w: low operator %s", ErrBadOpcodes, lowOp)
	}
	if highOp != LT && highOp != LTE {
		return fmt.Errorf("%w: high operator %s", ErrBadOpcodes, highOp)
	}

	ix.lowVal = lo
	ix.highVal = hi
	ix.lowOp = lowOp
	ix.highOp = highOp
	ix.nextEntry = 0
	ix.currentPageNo = storage.InvalidPageId
	ix.currentPage = nil

	if ix.rootPageNo == storage.InvalidPageId {
		return ErrNoSuchKeyFound
	}

	// 自根下降到可能含首个合格键的叶子
	pageNo := ix.rootPageNo
	for {
		data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
		if err != nil {
			return err
		}
		node := nonLeafNode{data, ix.nonLeafCap}
		count := node.keyCount()

		i := 0
		for i < count {
			c := compareKeys(node.key(i), ix.lowVal[:])
			if (ix.lowOp == GT && c > 0) || (ix.lowOp == GTE && c >= 0) {
				break
			}
			i++
		}
		child := node.child(i)
		level := node.level()
		if err := ix.bufMgr.UnPinPage(ix.file, pageNo, false); err != nil {
			return err
		}
		if level == 1 {
			return ix.seekInLeaves(child)
		}
		pageNo = child
	}
}

// seekInLeaves 从 pageNo 起沿兄弟链寻找第一个合格键
// 命中后保持该叶钉住并标记扫描生效；链走完仍未命中返回 ErrNoSuchKeyFound
func (ix *BTreeIndex) seekInLeaves(pageNo storage.PageId) error {
	for pageNo != storage.InvalidPageId {
		data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
		if err != nil {
			return err
		}
		leaf := leafNode{data, ix.leafCap}
		count := leaf.keyCount()

		for i := 0; i < count; i++ {
			key := leaf.key(i)
			if ix.matchRange(key) {
				ix.currentPageNo = pageNo
				ix.currentPage = data
				ix.nextEntry = i
				ix.scanExecuting = true
				return nil
			}
			if compareKeys(key, ix.highVal[:]) > 0 {
				// 键已越过上界，链上不会再有合格键
				ix.bufMgr.UnPinPage(ix.file, pageNo, false)
				return ErrNoSuchKeyFound
			}
		}

		next := leaf.rightSib()
		if err := ix.bufMgr.UnPinPage(ix.file, pageNo, false); err != nil {
			return err
		}
		pageNo = next
	}
	return ErrNoSuchKeyFound
}

// ScanNext 取出下一条满足范围的 RecordId
// 没有进行中的扫描返回 ErrScanNotInitialized；
// 范围耗尽时先清理扫描状态再返回 ErrIndexScanCompleted。
func (ix *BTreeIndex) ScanNext(outRid *storage.RecordId) error {
	if !ix.scanExecuting {
		return ErrScanNotInitialized
	}
	if ix.currentPageNo == storage.InvalidPageId || ix.currentPage == nil {
		ix.endScanInternal()
		return ErrIndexScanCompleted
	}

	leaf := leafNode{ix.currentPage, ix.leafCap}
	count := leaf.keyCount()
	if ix.nextEntry >= count || !ix.matchRange(leaf.key(ix.nextEntry)) {
		ix.endScanInternal()
		return ErrIndexScanCompleted
	}

	*outRid = leaf.rid(ix.nextEntry)

	// 推进：叶内还有槽位就进一格，否则交棒给右兄弟
	if ix.nextEntry == count-1 {
		next := leaf.rightSib()
		if err := ix.bufMgr.UnPinPage(ix.file, ix.currentPageNo, false); err != nil {
			return err
		}
		ix.currentPageNo = next
		ix.currentPage = nil
		ix.nextEntry = 0
		if next != storage.InvalidPageId {
			data, err := ix.bufMgr.ReadPage(ix.file, next)
			if err != nil {
				return err
			}
			ix.currentPage = data
		}
	} else {
		ix.nextEntry++
	}
	return nil
}

// EndScan 终止当前扫描，释放钉住的叶子
func (ix *BTreeIndex) EndScan() error {
	if !ix.scanExecuting {
		return ErrScanNotInitialized
	}
	ix.endScanInternal()
	return nil
}

// endScanInternal 清理扫描状态；扫描路径只读，叶子按干净页释放
func (ix *BTreeIndex) endScanInternal() {
	if ix.currentPageNo != storage.InvalidPageId && ix.currentPage != nil {
		ix.bufMgr.UnPinPage(ix.file, ix.currentPageNo, false)
	}
	ix.scanExecuting = false
	ix.currentPageNo = storage.InvalidPageId
	ix.currentPage = nil
	ix.nextEntry = 0
}

// matchRange 检查键是否同时满足上下界操作符
func (ix *BTreeIndex) matchRange(key []byte) bool {
	cl := compareKeys(key, ix.lowVal[:])
	if ix.lowOp == GT {
		if cl <= 0 {
			return false
		}
	} else if cl < 0 {
		return false
	}
	ch := compareKeys(key, ix.highVal[:])
	if ix.highOp == LT {
		return ch < 0
	}
	return ch <= 0
}
