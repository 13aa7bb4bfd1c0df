// Created by Yanjunhui

package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/monolite/monoidx/internal/failpoint"
	"github.com/monolite/monoidx/storage"
)

// 索引文件格式常量
// 页 1 是头页，根节点从页 2 开始，随根分裂而迁移
const (
	indexMagic   uint32 = 0x4D494458 // "MIDX" 小端
	indexVersion uint16 = 1

	relationNameSize = 20

	headerPageNo storage.PageId = 1
)

// 头页布局（小端）
// [magic u32][version u16][relationName 20B 零填充][attrByteOffset u32]
// [rootPageNo u32][leafCap u16][nonLeafCap u16]
const (
	hdrOffMagic      = 0
	hdrOffVersion    = 4
	hdrOffRelation   = 6
	hdrOffAttrOffset = 26
	hdrOffRoot       = 30
	hdrOffLeafCap    = 34
	hdrOffNonLeafCap = 36
)

// Options 索引创建选项
// 扇出在创建时固化进头页，重新打开时校验
type Options struct {
	// LeafCapacity 每个叶子的 (key, rid) 容量；0 表示按页面大小推算
	LeafCapacity int
	// NonLeafCapacity 每个内部节点的分隔键容量；0 表示按页面大小推算
	NonLeafCapacity int
	// Logger 为空时使用全局日志器
	Logger *Logger
}

// splitRecord 子节点分裂后向父节点上交的 (键, 新页) 对
type splitRecord struct {
	key    [KeySize]byte
	pageNo storage.PageId
}

// BTreeIndex 建立在基表单个字符串属性上的 B+Tree 索引
// 键是记录内偏移 attrByteOffset 处的 10 字节前缀。
// 同一索引实例上最多存在一个进行中的扫描。
type BTreeIndex struct {
	file   *storage.PageFile
	bufMgr *storage.BufferManager
	log    *Logger

	indexName      string
	relationName   string
	attrByteOffset int
	rootPageNo     storage.PageId
	leafCap        int
	nonLeafCap     int

	// 扫描状态；currentPage 指向扫描期间一直钉住的叶子
	scanExecuting bool
	nextEntry     int
	currentPageNo storage.PageId
	currentPage   []byte
	lowVal        [KeySize]byte
	highVal       [KeySize]byte
	lowOp         Operator
	highOp        Operator
}

// Open 打开或创建基表 relationName 上偏移 attrByteOffset 处的索引
// 索引文件名固定为 "<relationName>.<attrByteOffset>"。
// 文件已存在时校验头页元数据，不一致返回 ErrBadIndexInfo；
// 不存在时创建文件并扫描基表批量建树。
func Open(relationName string, bufMgr *storage.BufferManager, attrByteOffset int, opts *Options) (*BTreeIndex, error) {
	ix := &BTreeIndex{
		bufMgr:         bufMgr,
		log:            defaultLogger,
		indexName:      fmt.Sprintf("%s.%d", relationName, attrByteOffset),
		relationName:   relationName,
		attrByteOffset: attrByteOffset,
		rootPageNo:     storage.InvalidPageId,
		leafCap:        DefaultLeafCapacity,
		nonLeafCap:     DefaultNonLeafCapacity,
	}
	if opts != nil {
		if opts.LeafCapacity > 0 {
			ix.leafCap = opts.LeafCapacity
		}
		if opts.NonLeafCapacity > 0 {
			ix.nonLeafCap = opts.NonLeafCapacity
		}
		if opts.Logger != nil {
			ix.log = opts.Logger
		}
	}

	if err := validateFanOut(ix.leafCap, ix.nonLeafCap); err != nil {
		return nil, err
	}

	f, err := storage.OpenPageFile(ix.indexName, false)
	switch {
	case err == nil:
		return ix.load(f)
	case errors.Is(err, storage.ErrFileNotFound):
		return ix.build()
	default:
		return nil, err
	}
}

// Name 返回索引文件名
func (ix *BTreeIndex) Name() string {
	return ix.indexName
}

// RelationName 返回基表名
func (ix *BTreeIndex) RelationName() string {
	return ix.relationName
}

// AttrByteOffset 返回键在记录内的字节偏移
func (ix *BTreeIndex) AttrByteOffset() int {
	return ix.attrByteOffset
}

// File 返回底层索引页文件
func (ix *BTreeIndex) File() *storage.PageFile {
	return ix.file
}

// RootPage 返回当前根页号
func (ix *BTreeIndex) RootPage() storage.PageId {
	return ix.rootPageNo
}

// validateFanOut 校验扇出下限（分裂协议要求）和页内布局上限
func validateFanOut(leafCap, nonLeafCap int) error {
	if leafCap < DebugLeafCapacity || nonLeafCap < DebugNonLeafCapacity {
		return fmt.Errorf("index: fan-out %d/%d below minimum %d/%d",
			leafCap, nonLeafCap, DebugLeafCapacity, DebugNonLeafCapacity)
	}
	if leafHeaderSize+leafCap*leafEntrySize > storage.PageSize {
		return fmt.Errorf("index: leaf fan-out %d does not fit a page", leafCap)
	}
	if nonLeafHeaderSize+nonLeafCap*KeySize+(nonLeafCap+1)*childPtrSize > storage.PageSize {
		return fmt.Errorf("index: non-leaf fan-out %d does not fit a page", nonLeafCap)
	}
	return nil
}

// padRelationName 把表名零填充/截断到头页的定长字段
func padRelationName(name string) [relationNameSize]byte {
	var out [relationNameSize]byte
	copy(out[:], name)
	return out
}

// load 打开已有索引文件并校验头页
func (ix *BTreeIndex) load(f *storage.PageFile) (*BTreeIndex, error) {
	ix.file = f
	data, err := ix.bufMgr.ReadPage(f, headerPageNo)
	if err != nil {
		f.Close()
		return nil, err
	}

	fail := func(format string, args ...interface{}) (*BTreeIndex, error) {
		ix.bufMgr.UnPinPage(f, headerPageNo, false)
		f.Close()
		return nil, fmt.Errorf("%w: "+format, append([]interface{}{ErrBadIndexInfo}, args...)...)
	}

	if magic := binary.LittleEndian.Uint32(data[hdrOffMagic:]); magic != indexMagic {
		return fail("bad magic %#x in %s", magic, ix.indexName)
	}
	if ver := binary.LittleEndian.Uint16(data[hdrOffVersion:]); ver != indexVersion {
		return fail("unsupported version %d in %s", ver, ix.indexName)
	}
	want := padRelationName(ix.relationName)
	if !bytes.Equal(data[hdrOffRelation:hdrOffRelation+relationNameSize], want[:]) {
		return fail("relation name mismatch in %s", ix.indexName)
	}
	if off := int(binary.LittleEndian.Uint32(data[hdrOffAttrOffset:])); off != ix.attrByteOffset {
		return fail("attribute byte offset %d != %d in %s", off, ix.attrByteOffset, ix.indexName)
	}
	leafCap := int(binary.LittleEndian.Uint16(data[hdrOffLeafCap:]))
	nonLeafCap := int(binary.LittleEndian.Uint16(data[hdrOffNonLeafCap:]))
	if leafCap != ix.leafCap || nonLeafCap != ix.nonLeafCap {
		return fail("fan-out %d/%d != %d/%d in %s", leafCap, nonLeafCap, ix.leafCap, ix.nonLeafCap, ix.indexName)
	}

	ix.rootPageNo = storage.PageId(binary.LittleEndian.Uint32(data[hdrOffRoot:]))
	if err := ix.bufMgr.UnPinPage(f, headerPageNo, false); err != nil {
		f.Close()
		return nil, err
	}

	ix.log.Info("index opened", map[string]interface{}{
		"index":    ix.indexName,
		"relation": ix.relationName,
		"root":     uint32(ix.rootPageNo),
	})
	return ix, nil
}

// build 创建索引文件并扫描基表批量建树
func (ix *BTreeIndex) build() (*BTreeIndex, error) {
	start := time.Now()

	f, err := storage.OpenPageFile(ix.indexName, true)
	if err != nil {
		return nil, err
	}
	ix.file = f

	id, data, err := ix.bufMgr.AllocatePage(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if id != headerPageNo {
		ix.bufMgr.UnPinPage(f, id, false)
		f.Close()
		return nil, fmt.Errorf("index: header page allocated as page %d, want %d", id, headerPageNo)
	}
	binary.LittleEndian.PutUint32(data[hdrOffMagic:], indexMagic)
	binary.LittleEndian.PutUint16(data[hdrOffVersion:], indexVersion)
	rel := padRelationName(ix.relationName)
	copy(data[hdrOffRelation:], rel[:])
	binary.LittleEndian.PutUint32(data[hdrOffAttrOffset:], uint32(ix.attrByteOffset))
	binary.LittleEndian.PutUint32(data[hdrOffRoot:], uint32(storage.InvalidPageId))
	binary.LittleEndian.PutUint16(data[hdrOffLeafCap:], uint16(ix.leafCap))
	binary.LittleEndian.PutUint16(data[hdrOffNonLeafCap:], uint16(ix.nonLeafCap))
	if err := ix.bufMgr.UnPinPage(f, headerPageNo, true); err != nil {
		f.Close()
		return nil, err
	}

	// 批量建树半途而废时不留下残缺的索引文件
	abort := func(err error) (*BTreeIndex, error) {
		ix.bufMgr.DisposeFile(f)
		f.Close()
		storage.RemoveFile(ix.indexName)
		return nil, err
	}

	fscan, err := storage.NewFileScanner(ix.relationName, ix.bufMgr)
	if err != nil {
		return abort(fmt.Errorf("index: failed to scan relation %s: %w", ix.relationName, err))
	}
	defer fscan.Close()

	count := 0
	for {
		rid, err := fscan.ScanNext()
		if errors.Is(err, storage.ErrEndOfFile) {
			break
		}
		if err != nil {
			return abort(err)
		}
		record, err := fscan.GetRecord()
		if err != nil {
			return abort(err)
		}
		if len(record) < ix.attrByteOffset+KeySize {
			return abort(fmt.Errorf("index: record %v of %s too short for key at offset %d",
				rid, ix.relationName, ix.attrByteOffset))
		}
		if err := ix.Insert(record[ix.attrByteOffset:ix.attrByteOffset+KeySize], rid); err != nil {
			return abort(err)
		}
		count++
	}

	ix.log.InfoDuration("index built", map[string]interface{}{
		"index":    ix.indexName,
		"relation": ix.relationName,
		"entries":  count,
		"root":     uint32(ix.rootPageNo),
	}, time.Since(start))
	return ix, nil
}

// Close 结束进行中的扫描，刷盘并关闭索引文件
// 清理过程遇错不中断，返回第一个错误
func (ix *BTreeIndex) Close() error {
	var firstErr error
	if ix.scanExecuting {
		ix.endScanInternal()
	}
	if err := ix.bufMgr.FlushFile(ix.file); err != nil {
		firstErr = err
	}
	if err := ix.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// commitRoot 把新根页号写入头页并更新内存副本
func (ix *BTreeIndex) commitRoot(root storage.PageId) error {
	data, err := ix.bufMgr.ReadPage(ix.file, headerPageNo)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(data[hdrOffRoot:], uint32(root))
	ix.rootPageNo = root
	return ix.bufMgr.UnPinPage(ix.file, headerPageNo, true)
}

// Insert 插入一条 (key, rid)
// key 取前 10 字节，不足零填充。允许重复键。
// 缓冲管理失败原样上抛，此时部分页面可能仍处于钉住状态。
func (ix *BTreeIndex) Insert(key []byte, rid storage.RecordId) error {
	if err := failpoint.Hit("index.insert"); err != nil {
		return fmt.Errorf("failpoint: index.insert: %w", err)
	}

	var k [KeySize]byte
	copy(k[:], key)

	if ix.rootPageNo == storage.InvalidPageId {
		return ix.bootstrap(k[:], rid)
	}
	_, err := ix.insertInSubtree(k[:], rid, ix.rootPageNo)
	return err
}

// bootstrap 首次插入：建一个 level-1 内部根和两片叶子
// 左叶为空，右叶持有首条记录，分隔键等于首个键。
// 根从此永远是内部节点，后续分裂无需区分根的形态。
func (ix *BTreeIndex) bootstrap(key []byte, rid storage.RecordId) error {
	rootID, rootData, err := ix.bufMgr.AllocatePage(ix.file)
	if err != nil {
		return err
	}
	root := nonLeafNode{rootData, ix.nonLeafCap}
	root.setLevel(1)
	root.setKeyCount(1)
	root.setKey(0, key)

	leftID, leftData, err := ix.bufMgr.AllocatePage(ix.file)
	if err != nil {
		return err
	}
	left := leafNode{leftData, ix.leafCap}

	rightID, rightData, err := ix.bufMgr.AllocatePage(ix.file)
	if err != nil {
		return err
	}
	right := leafNode{rightData, ix.leafCap}

	root.setChild(0, leftID)
	root.setChild(1, rightID)
	left.setRightSib(rightID)
	right.setRightSib(storage.InvalidPageId)
	right.insert(key, rid)

	if err := ix.commitRoot(rootID); err != nil {
		return err
	}
	ix.log.Debug("index bootstrapped", map[string]interface{}{
		"index": ix.indexName,
		"root":  uint32(rootID),
	})

	if err := ix.bufMgr.UnPinPage(ix.file, rootID, true); err != nil {
		return err
	}
	if err := ix.bufMgr.UnPinPage(ix.file, leftID, true); err != nil {
		return err
	}
	return ix.bufMgr.UnPinPage(ix.file, rightID, true)
}

// insertInSubtree 递归下降插入；pageNo 必须是内部节点
// 子节点分裂时把 (键, 新页) 合并进当前节点，当前节点满则继续分裂。
// 当前节点就是根时在此完成根生长，不再向上传递。
func (ix *BTreeIndex) insertInSubtree(key []byte, rid storage.RecordId, pageNo storage.PageId) (*splitRecord, error) {
	data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
	if err != nil {
		return nil, err
	}
	node := nonLeafNode{data, ix.nonLeafCap}
	count := node.keyCount()

	// 三段式选路：小于首键走最左，不小于末键走最右，否则找所属键带
	childIdx := count
	if compareKeys(key, node.key(0)) < 0 {
		childIdx = 0
	} else if compareKeys(key, node.key(count-1)) >= 0 {
		childIdx = count
	} else {
		for i := 0; i < count-1; i++ {
			if compareKeys(node.key(i), key) <= 0 && compareKeys(key, node.key(i+1)) < 0 {
				childIdx = i + 1
				break
			}
		}
	}

	var split *splitRecord
	if node.level() == 1 {
		split, err = ix.insertInLeaf(key, rid, node.child(childIdx))
	} else {
		split, err = ix.insertInSubtree(key, rid, node.child(childIdx))
	}
	if err != nil {
		return nil, err
	}

	if split == nil {
		return nil, ix.bufMgr.UnPinPage(ix.file, pageNo, false)
	}

	if !node.full() {
		node.insert(split.key[:], split.pageNo)
		return nil, ix.bufMgr.UnPinPage(ix.file, pageNo, true)
	}

	return ix.splitNonLeaf(node, pageNo, split)
}

// splitNonLeaf 分裂已满的内部节点并上推中间键
// 上半区分隔键连同右侧指针移入新节点；与叶子的"复制上推"不同，
// 被上推的键从本层移除。
func (ix *BTreeIndex) splitNonLeaf(node nonLeafNode, pageNo storage.PageId, split *splitRecord) (*splitRecord, error) {
	newID, newData, err := ix.bufMgr.AllocatePage(ix.file)
	if err != nil {
		return nil, err
	}
	newNode := nonLeafNode{newData, ix.nonLeafCap}
	newNode.setLevel(node.level())

	half := ix.nonLeafCap / 2
	for i := half; i < ix.nonLeafCap; i++ {
		newNode.setKey(i-half, node.key(i))
		node.clearKey(i)
	}
	// 子指针 [half..cap] 随键移入新节点；child(half) 暂时两边各留一份，
	// 下面的上推会覆盖掉新节点的这份
	for i := half; i <= ix.nonLeafCap; i++ {
		newNode.setChild(i-half, node.child(i))
		if i > half {
			node.setChild(i, storage.InvalidPageId)
		}
	}
	node.setKeyCount(half)
	newNode.setKeyCount(ix.nonLeafCap - half)

	var pushKey [KeySize]byte
	if compareKeys(split.key[:], newNode.key(0)) < 0 {
		// 键落在旧节点：上推旧节点的末键，其右指针成为新节点的最左孩子
		node.insert(split.key[:], split.pageNo)
		last := node.keyCount() - 1
		copy(pushKey[:], node.key(last))
		node.clearKey(last)
		newNode.setChild(0, node.child(last+1))
		node.setChild(last+1, storage.InvalidPageId)
		node.setKeyCount(last)
	} else {
		// 键落在新节点：上推新节点的首键，整体左移一格
		newNode.insert(split.key[:], split.pageNo)
		cnt := newNode.keyCount()
		copy(pushKey[:], newNode.key(0))
		for i := 0; i < cnt-1; i++ {
			newNode.setKey(i, newNode.key(i+1))
			newNode.setChild(i, newNode.child(i+1))
		}
		newNode.setChild(cnt-1, newNode.child(cnt))
		newNode.clearKey(cnt - 1)
		newNode.setChild(cnt, storage.InvalidPageId)
		newNode.setKeyCount(cnt - 1)
	}

	if pageNo == ix.rootPageNo {
		// 根分裂：长出新根，树高加一
		newRootID, newRootData, err := ix.bufMgr.AllocatePage(ix.file)
		if err != nil {
			return nil, err
		}
		newRoot := nonLeafNode{newRootData, ix.nonLeafCap}
		newRoot.setLevel(node.level() + 1)
		newRoot.setKeyCount(1)
		newRoot.setKey(0, pushKey[:])
		newRoot.setChild(0, pageNo)
		newRoot.setChild(1, newID)
		if err := ix.commitRoot(newRootID); err != nil {
			return nil, err
		}
		ix.log.Debug("root grown", map[string]interface{}{
			"index": ix.indexName,
			"root":  uint32(newRootID),
			"level": newRoot.level(),
		})
		if err := ix.bufMgr.UnPinPage(ix.file, newRootID, true); err != nil {
			return nil, err
		}
		if err := ix.bufMgr.UnPinPage(ix.file, pageNo, true); err != nil {
			return nil, err
		}
		return nil, ix.bufMgr.UnPinPage(ix.file, newID, true)
	}

	if err := ix.bufMgr.UnPinPage(ix.file, pageNo, true); err != nil {
		return nil, err
	}
	if err := ix.bufMgr.UnPinPage(ix.file, newID, true); err != nil {
		return nil, err
	}
	return &splitRecord{key: pushKey, pageNo: newID}, nil
}

// insertInLeaf 叶子插入；有空位直接有序落位，满则对半分裂
// 分裂采用"复制上推"：分隔键是新叶首键，并保留在新叶中。
func (ix *BTreeIndex) insertInLeaf(key []byte, rid storage.RecordId, pageNo storage.PageId) (*splitRecord, error) {
	data, err := ix.bufMgr.ReadPage(ix.file, pageNo)
	if err != nil {
		return nil, err
	}
	leaf := leafNode{data, ix.leafCap}

	if !leaf.full() {
		leaf.insert(key, rid)
		return nil, ix.bufMgr.UnPinPage(ix.file, pageNo, true)
	}

	newID, newData, err := ix.bufMgr.AllocatePage(ix.file)
	if err != nil {
		return nil, err
	}
	newLeaf := leafNode{newData, ix.leafCap}

	half := ix.leafCap / 2
	for i := half; i < ix.leafCap; i++ {
		newLeaf.setEntry(i-half, leaf.key(i), leaf.rid(i))
		leaf.clearEntry(i)
	}
	leaf.setKeyCount(half)
	newLeaf.setKeyCount(ix.leafCap - half)

	// 两半都有富余，按与新叶首键的比较决定落点
	if compareKeys(key, newLeaf.key(0)) < 0 {
		leaf.insert(key, rid)
	} else {
		newLeaf.insert(key, rid)
	}

	newLeaf.setRightSib(leaf.rightSib())
	leaf.setRightSib(newID)

	var sp splitRecord
	copy(sp.key[:], newLeaf.key(0))
	sp.pageNo = newID

	if err := ix.bufMgr.UnPinPage(ix.file, pageNo, true); err != nil {
		return nil, err
	}
	if err := ix.bufMgr.UnPinPage(ix.file, newID, true); err != nil {
		return nil, err
	}
	return &sp, nil
}
