// Created by Yanjunhui

package storage

import "encoding/binary"

// 页面大小常量
const (
	// PageSize 8KB 页大小
	PageSize = 8192
)

// PageId 页面在文件内的编号，从 1 开始密集递增
type PageId uint32

// InvalidPageId 无效页号哨兵
// 表示"无子节点 / 链表结束 / 空槽位"，页号 0 永不分配
const InvalidPageId PageId = 0

// InvalidSlot 无效槽号哨兵，记录槽位从 1 开始编号
const InvalidSlot uint16 = 0

// RecordId 记录标识符，定位堆文件中的一条记录
type RecordId struct {
	PageNo PageId // 页号
	Slot   uint16 // 槽号，从 1 开始
}

// RecordIdSize RecordId 的磁盘字节大小
const RecordIdSize = 6

// Valid 检查记录标识符是否有效
func (r RecordId) Valid() bool {
	return r.PageNo != InvalidPageId && r.Slot != InvalidSlot
}

// MarshalRecordId 将 RecordId 序列化到 buf（小端，6 字节）
func MarshalRecordId(buf []byte, rid RecordId) {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rid.PageNo))
	binary.LittleEndian.PutUint16(buf[4:6], rid.Slot)
}

// UnmarshalRecordId 从 buf 反序列化 RecordId
func UnmarshalRecordId(buf []byte) RecordId {
	return RecordId{
		PageNo: PageId(binary.LittleEndian.Uint32(buf[0:4])),
		Slot:   binary.LittleEndian.Uint16(buf[4:6]),
	}
}
