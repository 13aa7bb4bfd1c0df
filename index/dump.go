// Created by Yanjunhui

package index

import (
	"fmt"
	"io"

	"github.com/monolite/monoidx/storage"
)

// Dump 把整棵树按层次打印到 w，用于调试
func (ix *BTreeIndex) Dump(w io.Writer) error {
	fmt.Fprintf(w, "====BEGIN DUMP %s====\n", ix.indexName)
	if ix.rootPageNo == storage.InvalidPageId {
		fmt.Fprintf(w, "\t(empty tree)\n")
	} else if err := ix.dumpSubtree(w, ix.rootPageNo); err != nil {
		return err
	}
	fmt.Fprintf(w, "====END DUMP %s====\n", ix.indexName)
	return nil
}

func (ix *BTreeIndex) dumpSubtree(w io.Writer, pageNo storage.PageId) error {
	data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
	if err != nil {
		return err
	}
	node := nonLeafNode{data, ix.nonLeafCap}
	count := node.keyCount()
	level := node.level()

	fmt.Fprintf(w, "***NON-LEAF***\tlevel: %d, pageId: %d, length: %d\n", level, pageNo, count)
	for i := 0; i < count; i++ {
		fmt.Fprintf(w, " {%d} | (%.10s) |", node.child(i), node.key(i))
	}
	fmt.Fprintf(w, " {%d}\n", node.child(count))

	// 复制子指针后放掉 pin 再递归，同一时刻只钉住一个页面
	children := make([]storage.PageId, count+1)
	for i := 0; i <= count; i++ {
		children[i] = node.child(i)
	}
	if err := ix.bufMgr.UnPinPage(ix.file, pageNo, false); err != nil {
		return err
	}

	for _, child := range children {
		if level == 1 {
			if err := ix.dumpLeaf(w, child); err != nil {
				return err
			}
		} else {
			if err := ix.dumpSubtree(w, child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *BTreeIndex) dumpLeaf(w io.Writer, pageNo storage.PageId) error {
	data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
	if err != nil {
		return err
	}
	leaf := leafNode{data, ix.leafCap}
	count := leaf.keyCount()

	fmt.Fprintf(w, "\t***LEAF***\tpageId: %d, rightSibPageNo: %d, length: %d\n", pageNo, leaf.rightSib(), count)
	if count == 0 {
		fmt.Fprintf(w, "\t(empty)\n")
	} else {
		fmt.Fprintf(w, "\t")
		for i := 0; i < count; i++ {
			rid := leaf.rid(i)
			fmt.Fprintf(w, "(%.10s, [%d, %d]) | ", leaf.key(i), rid.PageNo, rid.Slot)
		}
		fmt.Fprintf(w, "\n")
	}
	return ix.bufMgr.UnPinPage(ix.file, pageNo, false)
}
