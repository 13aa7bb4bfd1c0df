// Created by Yanjunhui

package storage

import "errors"

// 存储层哨兵错误
// 上层通过 errors.Is 判别，包装时使用 %w 保留错误链
var (
	// ErrFileNotFound 以 create=false 打开不存在的文件
	ErrFileNotFound = errors.New("storage: file not found")

	// ErrFileExists 以 create=true 打开已存在的文件
	ErrFileExists = errors.New("storage: file already exists")

	// ErrInvalidPage 页号越界或为无效哨兵
	ErrInvalidPage = errors.New("storage: invalid page number")

	// ErrBufferExceeded 缓冲池所有帧都被钉住，无法腾出帧
	ErrBufferExceeded = errors.New("storage: buffer pool exceeded, all frames pinned")

	// ErrPageNotPinned 对 pin 计数为零的页面执行 unpin
	ErrPageNotPinned = errors.New("storage: page not pinned")

	// ErrPagePinned 刷盘时仍有页面被钉住
	ErrPagePinned = errors.New("storage: page still pinned")

	// ErrPageNotInBuffer 页面不在缓冲池中
	ErrPageNotInBuffer = errors.New("storage: page not in buffer pool")

	// ErrEndOfFile 文件扫描到达末尾
	ErrEndOfFile = errors.New("storage: end of file")

	// ErrInvalidRecord 记录槽位无效或尚未定位到记录
	ErrInvalidRecord = errors.New("storage: invalid record")

	// ErrRecordTooLarge 单条记录超过页面可用空间
	ErrRecordTooLarge = errors.New("storage: record exceeds page capacity")
)
