// Created by Yanjunhui

package storage

import (
	"fmt"
	"os"
	"sync"

	"github.com/monolite/monoidx/internal/failpoint"
)

// PageFile 定长页文件
// 文件由 8KB 页紧密排列而成：页 p 位于偏移 (p-1)*PageSize，无额外文件头。
// 页号从 1 开始密集递增，分配只追加，不回收。
type PageFile struct {
	file      *os.File
	name      string
	pageCount uint32
	mu        sync.Mutex
}

// OpenPageFile 打开或创建页文件
// create=false 时文件必须已存在，否则返回 ErrFileNotFound；
// create=true 时文件必须不存在，否则返回 ErrFileExists。
func OpenPageFile(name string, create bool) (*PageFile, error) {
	if create {
		if _, err := os.Stat(name); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, name)
		}
		file, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to create page file %s: %w", name, err)
		}
		return &PageFile{file: file, name: name}, nil
	}

	file, err := os.OpenFile(name, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("failed to open page file %s: %w", name, err)
	}

	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat page file %s: %w", name, err)
	}

	return &PageFile{
		file:      file,
		name:      name,
		pageCount: uint32(fi.Size() / PageSize),
	}, nil
}

// RemoveFile 删除页文件
func RemoveFile(name string) error {
	if _, err := os.Stat(name); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to remove %s: %w", name, err)
	}
	return nil
}

// Name 返回文件名
func (f *PageFile) Name() string {
	return f.name
}

// PageCount 返回当前页数
func (f *PageFile) PageCount() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCount
}

// pageOffset 计算页号对应的文件偏移
func pageOffset(id PageId) int64 {
	return int64(id-1) * PageSize
}

// checkPageId 校验页号有效且已分配
func (f *PageFile) checkPageId(id PageId) error {
	if id == InvalidPageId || uint32(id) > f.pageCount {
		return fmt.Errorf("%w: page %d of %d in %s", ErrInvalidPage, id, f.pageCount, f.name)
	}
	return nil
}

// AllocatePage 在文件尾部追加一个全零页，返回新页号
func (f *PageFile) AllocatePage() (PageId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := PageId(f.pageCount + 1)
	zero := make([]byte, PageSize)
	if err := failpoint.Hit("file.write"); err != nil {
		return InvalidPageId, fmt.Errorf("failpoint: file.write: %w", err)
	}
	if _, err := f.file.WriteAt(zero, pageOffset(id)); err != nil {
		return InvalidPageId, fmt.Errorf("failed to extend %s to page %d: %w", f.name, id, err)
	}
	f.pageCount++
	return id, nil
}

// ReadPage 读取页内容到 buf，buf 长度必须为 PageSize
func (f *PageFile) ReadPage(id PageId, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkPageId(id); err != nil {
		return err
	}
	if len(buf) != PageSize {
		return fmt.Errorf("%w: read buffer size %d", ErrInvalidPage, len(buf))
	}
	if err := failpoint.Hit("file.read"); err != nil {
		return fmt.Errorf("failpoint: file.read: %w", err)
	}
	if _, err := f.file.ReadAt(buf, pageOffset(id)); err != nil {
		return fmt.Errorf("failed to read page %d of %s: %w", id, f.name, err)
	}
	return nil
}

// WritePage 将 buf 写入指定页
func (f *PageFile) WritePage(id PageId, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.checkPageId(id); err != nil {
		return err
	}
	if len(buf) != PageSize {
		return fmt.Errorf("%w: write buffer size %d", ErrInvalidPage, len(buf))
	}
	if err := failpoint.Hit("file.write"); err != nil {
		return fmt.Errorf("failpoint: file.write: %w", err)
	}
	if _, err := f.file.WriteAt(buf, pageOffset(id)); err != nil {
		return fmt.Errorf("failed to write page %d of %s: %w", id, f.name, err)
	}
	return nil
}

// Sync 将文件内容同步到磁盘
func (f *PageFile) Sync() error {
	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", f.name, err)
	}
	return nil
}

// Close 关闭文件句柄
func (f *PageFile) Close() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", f.name, err)
	}
	return nil
}
