// Created by Yanjunhui

// Package testkit 为索引测试和命令行工具生成基表
// 记录布局固定为 i int32 | d float64 | s [64]byte，
// 字符串字段形如 "00042 string record"，索引键是它的前 10 个字节。
package testkit

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/monolite/monoidx/storage"
)

// 记录布局常量
const (
	// RecordSize 单条记录字节数：4 + 8 + 64
	RecordSize = 76
	// AttrByteOffset 字符串字段（索引键）在记录内的偏移
	AttrByteOffset = 12
	// KeyPrefixSize 索引键前缀长度
	KeyPrefixSize = 10

	stringFieldSize = 64
)

// Order 基表记录的生成顺序
type Order int

const (
	// Forward 键值升序
	Forward Order = iota
	// Backward 键值降序
	Backward
	// Random 随机乱序
	Random
)

// String 返回顺序名称
func (o Order) String() string {
	switch o {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Random:
		return "random"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// ParseOrder 解析顺序名称
func ParseOrder(s string) (Order, error) {
	switch s {
	case "forward":
		return Forward, nil
	case "backward":
		return Backward, nil
	case "random":
		return Random, nil
	default:
		return Forward, fmt.Errorf("testkit: unknown order %q", s)
	}
}

// Record 生成第 i 条记录的字节序列
func Record(i int) []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(i)))
	binary.LittleEndian.PutUint64(buf[4:12], math.Float64bits(float64(i)))
	copy(buf[AttrByteOffset:], fmt.Sprintf("%05d string record", i))
	return buf
}

// Key 返回第 i 条记录的索引键（字符串字段前 10 字节，如 "00042 stri"）
func Key(i int) []byte {
	return Record(i)[AttrByteOffset : AttrByteOffset+KeyPrefixSize]
}

// MinKey 全零键，任何真实键都不小于它
func MinKey() []byte {
	return make([]byte, KeyPrefixSize)
}

// MaxKey 全 0xFF 键，任何真实键都不大于它
func MaxKey() []byte {
	k := make([]byte, KeyPrefixSize)
	for i := range k {
		k[i] = 0xFF
	}
	return k
}

// BuildRelation 生成一个 size 条记录的基表堆文件
// 返回 rids[i] = 第 i 号记录的 RecordId。Random 顺序由 seed 决定。
func BuildRelation(name string, bufMgr *storage.BufferManager, size int, order Order, seed int64) ([]storage.RecordId, error) {
	perm := make([]int, size)
	for i := range perm {
		perm[i] = i
	}
	switch order {
	case Backward:
		for l, r := 0, size-1; l < r; l, r = l+1, r-1 {
			perm[l], perm[r] = perm[r], perm[l]
		}
	case Random:
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(size, func(a, b int) {
			perm[a], perm[b] = perm[b], perm[a]
		})
	}

	heap, err := storage.CreateHeapFile(name, bufMgr)
	if err != nil {
		return nil, err
	}

	rids := make([]storage.RecordId, size)
	for _, v := range perm {
		rid, err := heap.Append(Record(v))
		if err != nil {
			heap.Close()
			return nil, err
		}
		rids[v] = rid
	}
	if err := heap.Close(); err != nil {
		return nil, err
	}
	return rids, nil
}
