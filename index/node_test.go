// Created by Yanjunhui

package index

import (
	"bytes"
	"testing"

	"github.com/monolite/monoidx/storage"
)

func key10(s string) []byte {
	k := make([]byte, KeySize)
	copy(k, s)
	return k
}

func TestDefaultCapacities(t *testing.T) {
	// 叶子：页面减去长度字段和兄弟指针，每条目 10+6 字节
	if want := (storage.PageSize - leafHeaderSize) / leafEntrySize; DefaultLeafCapacity != want {
		t.Errorf("DefaultLeafCapacity = %d, want %d", DefaultLeafCapacity, want)
	}
	// 内部：页面减去长度、level 和多出的一个子指针，每条目 10+4 字节
	if want := (storage.PageSize - nonLeafHeaderSize - childPtrSize) / (KeySize + childPtrSize); DefaultNonLeafCapacity != want {
		t.Errorf("DefaultNonLeafCapacity = %d, want %d", DefaultNonLeafCapacity, want)
	}
	if err := validateFanOut(DefaultLeafCapacity, DefaultNonLeafCapacity); err != nil {
		t.Errorf("Default fan-out does not fit a page: %v", err)
	}
	if err := validateFanOut(DebugLeafCapacity, DebugNonLeafCapacity); err != nil {
		t.Errorf("Debug fan-out rejected: %v", err)
	}
	if err := validateFanOut(2, 2); err == nil {
		t.Error("Fan-out 2/2 should be rejected")
	}
	if err := validateFanOut(10000, 4); err == nil {
		t.Error("Oversized leaf fan-out should be rejected")
	}
}

func TestLeafInsertOrdering(t *testing.T) {
	leaf := leafNode{make([]byte, storage.PageSize), 4}

	rid := func(slot uint16) storage.RecordId {
		return storage.RecordId{PageNo: 7, Slot: slot}
	}
	leaf.insert(key10("mango"), rid(1))
	leaf.insert(key10("apple"), rid(2))
	leaf.insert(key10("zebra"), rid(3))
	leaf.insert(key10("grape"), rid(4))

	if leaf.keyCount() != 4 {
		t.Fatalf("keyCount = %d, want 4", leaf.keyCount())
	}
	wantOrder := []string{"apple", "grape", "mango", "zebra"}
	wantSlots := []uint16{2, 4, 1, 3}
	for i, w := range wantOrder {
		if !bytes.Equal(leaf.key(i), key10(w)) {
			t.Errorf("Slot %d key = %q, want %q", i, leaf.key(i), w)
		}
		if leaf.rid(i).Slot != wantSlots[i] {
			t.Errorf("Slot %d rid slot = %d, want %d", i, leaf.rid(i).Slot, wantSlots[i])
		}
	}
	if !leaf.full() {
		t.Error("Leaf with 4/4 keys should be full")
	}
}

func TestLeafInsertDuplicatesStable(t *testing.T) {
	leaf := leafNode{make([]byte, storage.PageSize), 8}

	// 相等键按插入顺序排在已有相等键之后
	leaf.insert(key10("dup"), storage.RecordId{PageNo: 1, Slot: 1})
	leaf.insert(key10("dup"), storage.RecordId{PageNo: 1, Slot: 2})
	leaf.insert(key10("aaa"), storage.RecordId{PageNo: 1, Slot: 3})
	leaf.insert(key10("dup"), storage.RecordId{PageNo: 1, Slot: 4})

	wantSlots := []uint16{3, 1, 2, 4}
	for i, w := range wantSlots {
		if got := leaf.rid(i).Slot; got != w {
			t.Errorf("Slot %d rid = %d, want %d", i, got, w)
		}
	}
}

func TestLeafSentinels(t *testing.T) {
	leaf := leafNode{make([]byte, storage.PageSize), 4}
	leaf.insert(key10("k1"), storage.RecordId{PageNo: 3, Slot: 1})
	leaf.insert(key10("k2"), storage.RecordId{PageNo: 3, Slot: 2})

	// 占用槽位之外必须保持无效哨兵
	for i := leaf.keyCount(); i < 4; i++ {
		if leaf.rid(i).PageNo != storage.InvalidPageId {
			t.Errorf("Slot %d rid should be invalid", i)
		}
	}
	leaf.clearEntry(1)
	if leaf.rid(1).PageNo != storage.InvalidPageId {
		t.Error("clearEntry left a valid rid behind")
	}
}

func TestNonLeafInsert(t *testing.T) {
	node := nonLeafNode{make([]byte, storage.PageSize), 4}
	node.setLevel(1)
	node.setKeyCount(1)
	node.setKey(0, key10("mmm"))
	node.setChild(0, 10)
	node.setChild(1, 11)

	node.insert(key10("ccc"), 12)
	node.insert(key10("xxx"), 13)

	if node.keyCount() != 3 {
		t.Fatalf("keyCount = %d, want 3", node.keyCount())
	}
	wantKeys := []string{"ccc", "mmm", "xxx"}
	for i, w := range wantKeys {
		if !bytes.Equal(node.key(i), key10(w)) {
			t.Errorf("Key %d = %q, want %q", i, node.key(i), w)
		}
	}
	// 键落在 i，右指针落在 i+1
	wantChildren := []storage.PageId{10, 12, 11, 13}
	for i, w := range wantChildren {
		if node.child(i) != w {
			t.Errorf("Child %d = %d, want %d", i, node.child(i), w)
		}
	}
	if node.level() != 1 {
		t.Errorf("level = %d, want 1", node.level())
	}
}
