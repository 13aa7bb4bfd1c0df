// Created by Yanjunhui

package index

import "errors"

// 索引公共操作的哨兵错误
// EN: Sentinel errors for the public index operations.
var (
	// ErrBadIndexInfo 已有索引文件的头部元数据与调用参数不一致
	// EN: ErrBadIndexInfo means an existing index file's header metadata
	// disagrees with the caller's arguments; nothing is mutated.
	ErrBadIndexInfo = errors.New("index: bad index info")

	// ErrBadScanrange 扫描下界大于上界
	// EN: ErrBadScanrange means lowVal > highVal; the scan is not started.
	ErrBadScanrange = errors.New("index: bad scan range")

	// ErrBadOpcodes 扫描操作符不在 {GT,GTE}×{LT,LTE} 之内
	// EN: ErrBadOpcodes means an operator outside {GT,GTE}x{LT,LTE};
	// the scan is not started.
	ErrBadOpcodes = errors.New("index: bad operator codes")

	// ErrNoSuchKeyFound 范围合法但树中没有满足条件的键
	// EN: ErrNoSuchKeyFound means the range is well-formed but no key in
	// the tree qualifies; scan state is cleaned up before returning.
	ErrNoSuchKeyFound = errors.New("index: no such key found")

	// ErrScanNotInitialized 没有进行中的扫描
	// EN: ErrScanNotInitialized means there is no live scan.
	ErrScanNotInitialized = errors.New("index: scan not initialized")

	// ErrIndexScanCompleted 扫描范围已耗尽，内部状态已清理
	// EN: ErrIndexScanCompleted means the range is exhausted; internal
	// scan state is torn down before this is returned.
	ErrIndexScanCompleted = errors.New("index: scan completed")
)
