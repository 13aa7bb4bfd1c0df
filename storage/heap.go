// Created by Yanjunhui

package storage

import (
	"fmt"

	"github.com/monolite/monoidx/internal/failpoint"
)

// 堆文件槽页布局
// [itemCount u16][freeEnd u16][槽目录 (offset u16, length u16) × itemCount]
// 记录从页尾向前紧密排列，freeEnd 指向最后写入记录的起始偏移。
// 槽号从 1 开始，槽 i 的目录项位于 4 + (i-1)*4。
const (
	heapPageHeaderSize = 4
	heapSlotSize       = 4
)

type heapPage struct {
	data []byte
}

func (p heapPage) itemCount() uint16 {
	return uint16(p.data[0]) | uint16(p.data[1])<<8
}

func (p heapPage) setItemCount(n uint16) {
	p.data[0] = byte(n)
	p.data[1] = byte(n >> 8)
}

func (p heapPage) freeEnd() uint16 {
	return uint16(p.data[2]) | uint16(p.data[3])<<8
}

func (p heapPage) setFreeEnd(off uint16) {
	p.data[2] = byte(off)
	p.data[3] = byte(off >> 8)
}

// init 初始化空槽页；freeEnd == 0 表示页尾（尚无记录，全零的新页即为空槽页）
func (p heapPage) init() {
	p.setItemCount(0)
	p.setFreeEnd(0)
}

func (p heapPage) freeEndOffset() int {
	if p.freeEnd() == 0 {
		return PageSize
	}
	return int(p.freeEnd())
}

func (p heapPage) slotEntry(slot uint16) (offset, length int) {
	base := heapPageHeaderSize + int(slot-1)*heapSlotSize
	offset = int(uint16(p.data[base]) | uint16(p.data[base+1])<<8)
	length = int(uint16(p.data[base+2]) | uint16(p.data[base+3])<<8)
	return
}

func (p heapPage) setSlotEntry(slot uint16, offset, length int) {
	base := heapPageHeaderSize + int(slot-1)*heapSlotSize
	p.data[base] = byte(offset)
	p.data[base+1] = byte(offset >> 8)
	p.data[base+2] = byte(length)
	p.data[base+3] = byte(length >> 8)
}

// freeSpace 槽目录尾与记录区头之间的空隙
func (p heapPage) freeSpace() int {
	dirEnd := heapPageHeaderSize + int(p.itemCount())*heapSlotSize
	return p.freeEndOffset() - dirEnd
}

// insertRecord 插入一条记录，返回槽号；空间不足返回 false
func (p heapPage) insertRecord(record []byte) (uint16, bool) {
	if p.freeSpace() < heapSlotSize+len(record) {
		return InvalidSlot, false
	}
	newEnd := p.freeEndOffset() - len(record)
	copy(p.data[newEnd:], record)
	slot := p.itemCount() + 1
	p.setSlotEntry(slot, newEnd, len(record))
	p.setItemCount(slot)
	p.setFreeEnd(uint16(newEnd))
	return slot, true
}

// record 读取槽内记录
func (p heapPage) record(slot uint16) ([]byte, error) {
	if slot == InvalidSlot || slot > p.itemCount() {
		return nil, fmt.Errorf("%w: slot %d of %d", ErrInvalidRecord, slot, p.itemCount())
	}
	off, length := p.slotEntry(slot)
	if off < heapPageHeaderSize || off+length > PageSize {
		return nil, fmt.Errorf("%w: slot %d offset %d length %d", ErrInvalidRecord, slot, off, length)
	}
	return p.data[off : off+length], nil
}

// HeapFile 基表堆文件：定长页上的变长记录，只追加
type HeapFile struct {
	file     *PageFile
	bufMgr   *BufferManager
	lastPage PageId
}

// CreateHeapFile 创建堆文件
func CreateHeapFile(name string, bufMgr *BufferManager) (*HeapFile, error) {
	f, err := OpenPageFile(name, true)
	if err != nil {
		return nil, err
	}
	return &HeapFile{file: f, bufMgr: bufMgr}, nil
}

// OpenHeapFile 打开已有堆文件
func OpenHeapFile(name string, bufMgr *BufferManager) (*HeapFile, error) {
	f, err := OpenPageFile(name, false)
	if err != nil {
		return nil, err
	}
	return &HeapFile{
		file:     f,
		bufMgr:   bufMgr,
		lastPage: PageId(f.PageCount()),
	}, nil
}

// File 返回底层页文件
func (h *HeapFile) File() *PageFile {
	return h.file
}

// Append 追加一条记录，返回其 RecordId
// 当前尾页放不下时分配新页；单条记录不能超过一页的可用空间
func (h *HeapFile) Append(record []byte) (RecordId, error) {
	if len(record) > PageSize-heapPageHeaderSize-heapSlotSize {
		return RecordId{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(record))
	}
	if err := failpoint.Hit("heap.append"); err != nil {
		return RecordId{}, fmt.Errorf("failpoint: heap.append: %w", err)
	}

	if h.lastPage != InvalidPageId {
		data, err := h.bufMgr.ReadPage(h.file, h.lastPage)
		if err != nil {
			return RecordId{}, err
		}
		if slot, ok := (heapPage{data}).insertRecord(record); ok {
			rid := RecordId{PageNo: h.lastPage, Slot: slot}
			return rid, h.bufMgr.UnPinPage(h.file, h.lastPage, true)
		}
		if err := h.bufMgr.UnPinPage(h.file, h.lastPage, false); err != nil {
			return RecordId{}, err
		}
	}

	id, data, err := h.bufMgr.AllocatePage(h.file)
	if err != nil {
		return RecordId{}, err
	}
	page := heapPage{data}
	page.init()
	slot, ok := page.insertRecord(record)
	if !ok {
		// 空页插入失败只可能是记录超限，上面已经挡掉
		h.bufMgr.UnPinPage(h.file, id, true)
		return RecordId{}, fmt.Errorf("%w: %d bytes", ErrRecordTooLarge, len(record))
	}
	h.lastPage = id
	return RecordId{PageNo: id, Slot: slot}, h.bufMgr.UnPinPage(h.file, id, true)
}

// Read 按 RecordId 读取记录内容（副本）
func (h *HeapFile) Read(rid RecordId) ([]byte, error) {
	data, err := h.bufMgr.ReadPage(h.file, rid.PageNo)
	if err != nil {
		return nil, err
	}
	rec, err := heapPage{data}.record(rid.Slot)
	if err != nil {
		h.bufMgr.UnPinPage(h.file, rid.PageNo, false)
		return nil, err
	}
	out := make([]byte, len(rec))
	copy(out, rec)
	return out, h.bufMgr.UnPinPage(h.file, rid.PageNo, false)
}

// Flush 将堆文件脏页写回磁盘
func (h *HeapFile) Flush() error {
	return h.bufMgr.FlushFile(h.file)
}

// Close 刷盘并关闭堆文件
func (h *HeapFile) Close() error {
	if err := h.bufMgr.FlushFile(h.file); err != nil {
		h.file.Close()
		return err
	}
	return h.file.Close()
}

// FileScanner 顺序扫描堆文件中的全部记录
// 扫描期间最多钉住一个页面；到达文件尾返回 ErrEndOfFile 并释放所有 pin。
type FileScanner struct {
	heap     *HeapFile
	ownsFile bool
	pageNo   PageId
	pageData []byte
	slot     uint16
	current  RecordId
}

// NewFileScanner 打开名为 relationName 的堆文件并创建扫描器
func NewFileScanner(relationName string, bufMgr *BufferManager) (*FileScanner, error) {
	heap, err := OpenHeapFile(relationName, bufMgr)
	if err != nil {
		return nil, err
	}
	return &FileScanner{heap: heap, ownsFile: true}, nil
}

// NewHeapScanner 在已打开的堆文件上创建扫描器
func NewHeapScanner(heap *HeapFile) *FileScanner {
	return &FileScanner{heap: heap}
}

// ScanNext 推进到下一条记录并返回其 RecordId
// 文件尾返回 ErrEndOfFile
func (s *FileScanner) ScanNext() (RecordId, error) {
	for {
		if s.pageData == nil {
			next := s.pageNo + 1
			if uint32(next) > s.heap.file.PageCount() {
				s.current = RecordId{}
				return RecordId{}, ErrEndOfFile
			}
			data, err := s.heap.bufMgr.ReadPage(s.heap.file, next)
			if err != nil {
				return RecordId{}, err
			}
			s.pageNo = next
			s.pageData = data
			s.slot = 0
		}

		page := heapPage{s.pageData}
		if s.slot < page.itemCount() {
			s.slot++
			s.current = RecordId{PageNo: s.pageNo, Slot: s.slot}
			return s.current, nil
		}

		// 本页扫完，释放并推进
		if err := s.heap.bufMgr.UnPinPage(s.heap.file, s.pageNo, false); err != nil {
			return RecordId{}, err
		}
		s.pageData = nil
	}
}

// GetRecord 返回当前记录内容的副本
// 必须在一次成功的 ScanNext 之后调用
func (s *FileScanner) GetRecord() ([]byte, error) {
	if !s.current.Valid() || s.pageData == nil {
		return nil, fmt.Errorf("%w: no current record", ErrInvalidRecord)
	}
	rec, err := heapPage{s.pageData}.record(s.current.Slot)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(rec))
	copy(out, rec)
	return out, nil
}

// Close 释放扫描持有的 pin；扫描器自己打开的文件一并关闭
func (s *FileScanner) Close() error {
	if s.pageData != nil {
		if err := s.heap.bufMgr.UnPinPage(s.heap.file, s.pageNo, false); err != nil {
			return err
		}
		s.pageData = nil
	}
	if s.ownsFile {
		return s.heap.file.Close()
	}
	return nil
}
