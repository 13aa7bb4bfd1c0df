// Created by Yanjunhui

package index

import (
	"bytes"
	"encoding/binary"

	"github.com/monolite/monoidx/storage"
)

// KeySize 键前缀长度：从记录中截取的 10 个字节，按字节序逐字节比较
const KeySize = 10

// 节点页内布局（小端）
//
// 叶子节点：
//
//	[keyCount u16][rightSib u32][entry × cap]，entry = key[10] + rid[6]
//
// 内部节点：
//
//	[keyCount u16][level u16][key[10] × cap][child u32 × (cap+1)]
//
// keyCount 是权威长度；未占用槽位仍然保持哨兵值
// （叶子 rid.PageNo == InvalidPageId，内部 child == InvalidPageId），
// 这样结构校验可以独立于长度字段交叉检查占用情况。
const (
	leafHeaderSize    = 6
	leafEntrySize     = KeySize + storage.RecordIdSize
	nonLeafHeaderSize = 4
	childPtrSize      = 4
)

// 默认扇出由页面大小推出；调试扇出用 4 强制频繁分裂
const (
	DefaultLeafCapacity    = (storage.PageSize - leafHeaderSize) / leafEntrySize
	DefaultNonLeafCapacity = (storage.PageSize - nonLeafHeaderSize - childPtrSize) / (KeySize + childPtrSize)

	DebugLeafCapacity    = 4
	DebugNonLeafCapacity = 4
)

// compareKeys 比较两个 10 字节键，语义为"逐字节比较全部 K 字节"
func compareKeys(a, b []byte) int {
	return bytes.Compare(a[:KeySize], b[:KeySize])
}

// leafNode 把一个 8KB 页解释为叶子节点
type leafNode struct {
	data []byte
	cap  int
}

func (n leafNode) keyCount() int {
	return int(binary.LittleEndian.Uint16(n.data[0:2]))
}

func (n leafNode) setKeyCount(c int) {
	binary.LittleEndian.PutUint16(n.data[0:2], uint16(c))
}

func (n leafNode) rightSib() storage.PageId {
	return storage.PageId(binary.LittleEndian.Uint32(n.data[2:6]))
}

func (n leafNode) setRightSib(id storage.PageId) {
	binary.LittleEndian.PutUint32(n.data[2:6], uint32(id))
}

func (n leafNode) entryOffset(i int) int {
	return leafHeaderSize + i*leafEntrySize
}

func (n leafNode) key(i int) []byte {
	off := n.entryOffset(i)
	return n.data[off : off+KeySize]
}

func (n leafNode) rid(i int) storage.RecordId {
	off := n.entryOffset(i) + KeySize
	return storage.UnmarshalRecordId(n.data[off : off+storage.RecordIdSize])
}

func (n leafNode) setEntry(i int, key []byte, rid storage.RecordId) {
	off := n.entryOffset(i)
	copy(n.data[off:off+KeySize], key[:KeySize])
	storage.MarshalRecordId(n.data[off+KeySize:off+leafEntrySize], rid)
}

// clearEntry 清空槽位：键清零，rid 回到无效哨兵
func (n leafNode) clearEntry(i int) {
	off := n.entryOffset(i)
	for j := off; j < off+leafEntrySize; j++ {
		n.data[j] = 0
	}
}

func (n leafNode) full() bool {
	return n.keyCount() >= n.cap
}

// insert 把 (key, rid) 插入有序位置
// 相等键落在已有相等键之后，保持插入顺序稳定；调用方保证未满
func (n leafNode) insert(key []byte, rid storage.RecordId) {
	count := n.keyCount()
	pos := count
	for i := 0; i < count; i++ {
		if compareKeys(n.key(i), key) > 0 {
			pos = i
			break
		}
	}
	for j := count - 1; j >= pos; j-- {
		n.setEntry(j+1, n.key(j), n.rid(j))
	}
	n.setEntry(pos, key, rid)
	n.setKeyCount(count + 1)
}

// nonLeafNode 把一个 8KB 页解释为内部节点
// level == 1 表示子节点是叶子
type nonLeafNode struct {
	data []byte
	cap  int
}

func (n nonLeafNode) keyCount() int {
	return int(binary.LittleEndian.Uint16(n.data[0:2]))
}

func (n nonLeafNode) setKeyCount(c int) {
	binary.LittleEndian.PutUint16(n.data[0:2], uint16(c))
}

func (n nonLeafNode) level() int {
	return int(binary.LittleEndian.Uint16(n.data[2:4]))
}

func (n nonLeafNode) setLevel(l int) {
	binary.LittleEndian.PutUint16(n.data[2:4], uint16(l))
}

func (n nonLeafNode) keyOffset(i int) int {
	return nonLeafHeaderSize + i*KeySize
}

func (n nonLeafNode) childOffset(i int) int {
	return nonLeafHeaderSize + n.cap*KeySize + i*childPtrSize
}

func (n nonLeafNode) key(i int) []byte {
	off := n.keyOffset(i)
	return n.data[off : off+KeySize]
}

func (n nonLeafNode) setKey(i int, key []byte) {
	off := n.keyOffset(i)
	copy(n.data[off:off+KeySize], key[:KeySize])
}

func (n nonLeafNode) clearKey(i int) {
	off := n.keyOffset(i)
	for j := off; j < off+KeySize; j++ {
		n.data[j] = 0
	}
}

func (n nonLeafNode) child(i int) storage.PageId {
	off := n.childOffset(i)
	return storage.PageId(binary.LittleEndian.Uint32(n.data[off : off+childPtrSize]))
}

func (n nonLeafNode) setChild(i int, id storage.PageId) {
	off := n.childOffset(i)
	binary.LittleEndian.PutUint32(n.data[off:off+childPtrSize], uint32(id))
}

func (n nonLeafNode) full() bool {
	return n.keyCount() >= n.cap
}

// insert 把分隔键和它右侧的子指针插入有序位置；调用方保证未满
// 键落在位置 i，子指针落在 i+1
func (n nonLeafNode) insert(key []byte, rightChild storage.PageId) {
	count := n.keyCount()
	pos := count
	for i := 0; i < count; i++ {
		if compareKeys(n.key(i), key) > 0 {
			pos = i
			break
		}
	}
	for j := count - 1; j >= pos; j-- {
		n.setKey(j+1, n.key(j))
		n.setChild(j+2, n.child(j+1))
	}
	n.setKey(pos, key)
	n.setChild(pos+1, rightChild)
	n.setKeyCount(count + 1)
}
