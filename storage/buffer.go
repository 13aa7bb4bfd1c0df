// Created by Yanjunhui

package storage

import (
	"fmt"
	"sync"

	"github.com/monolite/monoidx/internal/failpoint"
)

// DefaultBufferFrames 缓冲池默认帧数
const DefaultBufferFrames = 1000

// bufKey 缓冲池查找键：文件 + 页号
type bufKey struct {
	file   *PageFile
	pageNo PageId
}

// frameDesc 帧描述符
// pinCnt > 0 的帧不可被置换；refbit 实现时钟算法的二次机会
type frameDesc struct {
	file   *PageFile
	pageNo PageId
	pinCnt int
	dirty  bool
	valid  bool
	refbit bool
}

// BufferManager 页面缓冲池
// 采用时钟置换算法。每次读取或分配都会钉住页面，调用方必须配对 UnPinPage，
// 否则帧无法被置换，最终耗尽缓冲池。
type BufferManager struct {
	frames [][]byte
	descs  []frameDesc
	table  map[bufKey]int
	hand   int
	mu     sync.Mutex
}

// NewBufferManager 创建缓冲池，预分配 numFrames 个 8KB 帧
func NewBufferManager(numFrames int) *BufferManager {
	if numFrames <= 0 {
		numFrames = DefaultBufferFrames
	}
	backing := make([]byte, numFrames*PageSize)
	frames := make([][]byte, numFrames)
	for i := range frames {
		frames[i] = backing[i*PageSize : (i+1)*PageSize : (i+1)*PageSize]
	}
	return &BufferManager{
		frames: frames,
		descs:  make([]frameDesc, numFrames),
		table:  make(map[bufKey]int),
	}
}

// NumFrames 返回帧数
func (bm *BufferManager) NumFrames() int {
	return len(bm.frames)
}

// allocFrame 用时钟算法腾出一个帧
// 两圈之内找不到未钉住的帧则返回 ErrBufferExceeded；
// 脏的受害者帧先写回其文件
func (bm *BufferManager) allocFrame() (int, error) {
	for i := 0; i < 2*len(bm.descs); i++ {
		d := &bm.descs[bm.hand]
		idx := bm.hand
		bm.hand = (bm.hand + 1) % len(bm.descs)

		if !d.valid {
			return idx, nil
		}
		if d.refbit {
			d.refbit = false
			continue
		}
		if d.pinCnt > 0 {
			continue
		}
		// 受害者：写回脏页，从查找表摘除
		if d.dirty {
			if err := failpoint.Hit("buffer.evict"); err != nil {
				return -1, fmt.Errorf("failpoint: buffer.evict: %w", err)
			}
			if err := d.file.WritePage(d.pageNo, bm.frames[idx]); err != nil {
				return -1, fmt.Errorf("failed to write back victim page %d: %w", d.pageNo, err)
			}
		}
		delete(bm.table, bufKey{d.file, d.pageNo})
		d.valid = false
		return idx, nil
	}
	return -1, ErrBufferExceeded
}

// AllocatePage 在文件中分配新页并钉住，返回页号和帧内容（已清零）
func (bm *BufferManager) AllocatePage(f *PageFile) (PageId, []byte, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	id, err := f.AllocatePage()
	if err != nil {
		return InvalidPageId, nil, err
	}

	idx, err := bm.allocFrame()
	if err != nil {
		return InvalidPageId, nil, err
	}

	frame := bm.frames[idx]
	for i := range frame {
		frame[i] = 0
	}
	bm.descs[idx] = frameDesc{file: f, pageNo: id, pinCnt: 1, valid: true, refbit: true}
	bm.table[bufKey{f, id}] = idx
	return id, frame, nil
}

// ReadPage 读取页面并钉住
// 页面已在池中时只增加 pin 计数，不触发 I/O
func (bm *BufferManager) ReadPage(f *PageFile, id PageId) ([]byte, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if idx, ok := bm.table[bufKey{f, id}]; ok {
		bm.descs[idx].pinCnt++
		bm.descs[idx].refbit = true
		return bm.frames[idx], nil
	}

	idx, err := bm.allocFrame()
	if err != nil {
		return nil, err
	}
	if err := f.ReadPage(id, bm.frames[idx]); err != nil {
		return nil, err
	}
	bm.descs[idx] = frameDesc{file: f, pageNo: id, pinCnt: 1, valid: true, refbit: true}
	bm.table[bufKey{f, id}] = idx
	return bm.frames[idx], nil
}

// UnPinPage 释放一个 pin，dirty 表示调用方是否修改过页面
// 脏标记只增不减：任何一次带 dirty 的 unpin 都使帧保持脏直到写回
func (bm *BufferManager) UnPinPage(f *PageFile, id PageId, dirty bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	idx, ok := bm.table[bufKey{f, id}]
	if !ok {
		return fmt.Errorf("%w: page %d of %s", ErrPageNotInBuffer, id, f.Name())
	}
	d := &bm.descs[idx]
	if d.pinCnt == 0 {
		return fmt.Errorf("%w: page %d of %s", ErrPageNotPinned, id, f.Name())
	}
	d.pinCnt--
	if dirty {
		d.dirty = true
	}
	return nil
}

// FlushFile 将文件的所有脏帧写回并同步
// 仍被钉住的帧说明上层泄漏了 pin，返回 ErrPagePinned
func (bm *BufferManager) FlushFile(f *PageFile) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for i := range bm.descs {
		d := &bm.descs[i]
		if !d.valid || d.file != f {
			continue
		}
		if d.pinCnt > 0 {
			return fmt.Errorf("%w: page %d of %s (pin count %d)", ErrPagePinned, d.pageNo, f.Name(), d.pinCnt)
		}
		if d.dirty {
			if err := d.file.WritePage(d.pageNo, bm.frames[i]); err != nil {
				return err
			}
			d.dirty = false
		}
	}
	return f.Sync()
}

// DisposeFile 直接丢弃文件的所有帧，不写回
// 用于文件被删除后的清理
func (bm *BufferManager) DisposeFile(f *PageFile) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	for i := range bm.descs {
		d := &bm.descs[i]
		if d.valid && d.file == f {
			delete(bm.table, bufKey{d.file, d.pageNo})
			d.valid = false
		}
	}
}

// PinnedPages 返回文件当前被钉住的页面数
// 公共操作返回后该值应为 0（活动扫描持有的一片叶子除外）
func (bm *BufferManager) PinnedPages(f *PageFile) int {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	n := 0
	for i := range bm.descs {
		d := &bm.descs[i]
		if d.valid && d.file == f && d.pinCnt > 0 {
			n++
		}
	}
	return n
}
