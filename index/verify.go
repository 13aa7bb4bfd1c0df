// Created by Yanjunhui

package index

import (
	"fmt"

	"github.com/monolite/monoidx/storage"
)

// subtreeInfo 子树校验结果
type subtreeInfo struct {
	hasKeys   bool
	minKey    [KeySize]byte
	maxKey    [KeySize]byte
	leafDepth int
	leaves    []storage.PageId
}

// Verify 校验树的结构不变式
//   - 节点内键有序，占用槽位与长度字段一致，空槽位保持哨兵
//   - 分隔键等于其右子树下的最小键，左子树所有键不大于分隔键（重复键可留在左侧）
//   - 所有叶子深度一致，level 随深度递减
//   - 兄弟链自最左叶起恰好按键序覆盖每片叶子一次
//
// 校验过程同一时刻至多钉住一个页面，返回时不持有任何 pin。
func (ix *BTreeIndex) Verify() error {
	if ix.rootPageNo == storage.InvalidPageId {
		return nil
	}

	info, err := ix.verifySubtree(ix.rootPageNo, 0)
	if err != nil {
		return err
	}

	// 沿兄弟链重放叶子序列，必须与递归收集的顺序完全一致
	if len(info.leaves) == 0 {
		return fmt.Errorf("index: verify: tree has no leaves")
	}
	pageNo := info.leaves[0]
	for i, want := range info.leaves {
		if pageNo != want {
			return fmt.Errorf("index: verify: sibling chain visits page %d at position %d, want %d", pageNo, i, want)
		}
		data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
		if err != nil {
			return err
		}
		next := leafNode{data, ix.leafCap}.rightSib()
		if err := ix.bufMgr.UnPinPage(ix.file, pageNo, false); err != nil {
			return err
		}
		pageNo = next
	}
	if pageNo != storage.InvalidPageId {
		return fmt.Errorf("index: verify: sibling chain continues past rightmost leaf to page %d", pageNo)
	}
	return nil
}

// verifySubtree 校验以 pageNo 为根的内部节点子树
// wantLevel 为 0 表示层级未知（树根），否则必须与节点自述一致
func (ix *BTreeIndex) verifySubtree(pageNo storage.PageId, wantLevel int) (*subtreeInfo, error) {
	data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
	if err != nil {
		return nil, err
	}
	node := nonLeafNode{data, ix.nonLeafCap}
	count := node.keyCount()
	level := node.level()

	check := func(cond bool, format string, args ...interface{}) error {
		if cond {
			return nil
		}
		ix.bufMgr.UnPinPage(ix.file, pageNo, false)
		return fmt.Errorf("index: verify: node %d: %s", pageNo, fmt.Sprintf(format, args...))
	}

	if err := check(count >= 1 && count <= ix.nonLeafCap, "key count %d out of range", count); err != nil {
		return nil, err
	}
	if err := check(wantLevel == 0 || level == wantLevel, "level %d, want %d", level, wantLevel); err != nil {
		return nil, err
	}
	if err := check(level >= 1, "level %d below leaf parents", level); err != nil {
		return nil, err
	}

	// 复制键和子指针后立刻放掉 pin，再递归
	keys := make([][KeySize]byte, count)
	for i := 0; i < count; i++ {
		copy(keys[i][:], node.key(i))
		if i > 0 {
			if err := check(compareKeys(keys[i-1][:], keys[i][:]) <= 0, "keys out of order at slot %d", i); err != nil {
				return nil, err
			}
		}
	}
	children := make([]storage.PageId, count+1)
	for i := 0; i <= count; i++ {
		children[i] = node.child(i)
		if err := check(children[i] != storage.InvalidPageId, "missing child %d", i); err != nil {
			return nil, err
		}
	}
	for i := count + 1; i <= ix.nonLeafCap; i++ {
		if err := check(node.child(i) == storage.InvalidPageId, "stale child pointer at slot %d", i); err != nil {
			return nil, err
		}
	}
	if err := ix.bufMgr.UnPinPage(ix.file, pageNo, false); err != nil {
		return nil, err
	}

	info := &subtreeInfo{}
	for i, child := range children {
		var sub *subtreeInfo
		var err error
		if level == 1 {
			sub, err = ix.verifyLeaf(child)
		} else {
			sub, err = ix.verifySubtree(child, level-1)
		}
		if err != nil {
			return nil, err
		}

		if i == 0 {
			info.leafDepth = sub.leafDepth + 1
		} else if sub.leafDepth+1 != info.leafDepth {
			return nil, fmt.Errorf("index: verify: node %d: child %d at leaf depth %d, want %d",
				pageNo, child, sub.leafDepth+1, info.leafDepth)
		}

		if sub.hasKeys {
			// 左侧子树不超过分隔键（相等键可留在左侧），右侧子树的最小键恰好等于它
			if i < count && compareKeys(sub.maxKey[:], keys[i][:]) > 0 {
				return nil, fmt.Errorf("index: verify: node %d: child %d max key %q not below separator %q",
					pageNo, child, sub.maxKey[:], keys[i][:])
			}
			if i > 0 && compareKeys(sub.minKey[:], keys[i-1][:]) != 0 {
				return nil, fmt.Errorf("index: verify: node %d: child %d min key %q != separator %q",
					pageNo, child, sub.minKey[:], keys[i-1][:])
			}
			if !info.hasKeys {
				info.hasKeys = true
				info.minKey = sub.minKey
			}
			info.maxKey = sub.maxKey
		} else if i > 0 {
			// 只有最左叶允许为空（引导种子状态遗留）
			return nil, fmt.Errorf("index: verify: node %d: empty subtree under child %d", pageNo, child)
		}
		info.leaves = append(info.leaves, sub.leaves...)
	}
	return info, nil
}

// verifyLeaf 校验单片叶子
func (ix *BTreeIndex) verifyLeaf(pageNo storage.PageId) (*subtreeInfo, error) {
	data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
	if err != nil {
		return nil, err
	}
	leaf := leafNode{data, ix.leafCap}
	count := leaf.keyCount()

	check := func(cond bool, format string, args ...interface{}) error {
		if cond {
			return nil
		}
		ix.bufMgr.UnPinPage(ix.file, pageNo, false)
		return fmt.Errorf("index: verify: leaf %d: %s", pageNo, fmt.Sprintf(format, args...))
	}

	if err := check(count >= 0 && count <= ix.leafCap, "key count %d out of range", count); err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		if err := check(leaf.rid(i).Valid(), "invalid rid at slot %d", i); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := check(compareKeys(leaf.key(i-1), leaf.key(i)) <= 0, "keys out of order at slot %d", i); err != nil {
				return nil, err
			}
		}
	}
	for i := count; i < ix.leafCap; i++ {
		if err := check(leaf.rid(i).PageNo == storage.InvalidPageId, "stale rid at slot %d", i); err != nil {
			return nil, err
		}
	}

	info := &subtreeInfo{leaves: []storage.PageId{pageNo}}
	if count > 0 {
		info.hasKeys = true
		copy(info.minKey[:], leaf.key(0))
		copy(info.maxKey[:], leaf.key(count-1))
	}
	return info, ix.bufMgr.UnPinPage(ix.file, pageNo, false)
}
