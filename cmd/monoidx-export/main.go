// Created by Yanjunhui
//
// monoidx-export: 索引导出工具
// 把索引中的全部 (键, RecordId) 条目按键序导出为 BSON（MongoDB 兼容）或 JSON 格式

package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/monolite/monoidx/index"
	"github.com/monolite/monoidx/storage"
)

var (
	relation = flag.String("relation", "", "基表名（必需，索引文件名由它和 -offset 推导）")
	offset   = flag.Int("offset", 12, "索引键在记录内的字节偏移")
	output   = flag.String("out", "", "输出文件路径，默认标准输出")
	format   = flag.String("format", "jsonl", "输出格式: jsonl, bson")
	frames   = flag.Int("frames", 1000, "缓冲池帧数")
	debugFan = flag.Bool("debug-fanout", false, "索引使用调试扇出 4/4 时必须指定")
	verbose  = flag.Bool("v", false, "显示详细输出")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "MonoIdx Export Tool - 索引导出工具\n\n")
		fmt.Fprintf(os.Stderr, "用法:\n")
		fmt.Fprintf(os.Stderr, "  monoidx-export -relation <基表名> [-offset <偏移>] [-out <输出文件>]\n\n")
		fmt.Fprintf(os.Stderr, "输出格式:\n")
		fmt.Fprintf(os.Stderr, "  jsonl - 每行一个条目（MongoDB 规范扩展 JSON）\n")
		fmt.Fprintf(os.Stderr, "  bson  - 原始 BSON 文档流\n\n")
		fmt.Fprintf(os.Stderr, "选项:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *relation == "" {
		fmt.Fprintln(os.Stderr, "错误: 必须指定基表名 (-relation)")
		flag.Usage()
		os.Exit(1)
	}

	indexName := fmt.Sprintf("%s.%d", *relation, *offset)
	if _, err := os.Stat(indexName); err != nil {
		log.Fatalf("索引文件 %s 不存在: %v", indexName, err)
	}

	bufMgr := storage.NewBufferManager(*frames)
	var opts *index.Options
	if *debugFan {
		opts = &index.Options{
			LeafCapacity:    index.DebugLeafCapacity,
			NonLeafCapacity: index.DebugNonLeafCapacity,
		}
	}
	ix, err := index.Open(*relation, bufMgr, *offset, opts)
	if err != nil {
		log.Fatalf("打开索引失败: %v", err)
	}
	defer ix.Close()

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("创建输出文件失败: %v", err)
		}
		defer f.Close()
		out = f
	}

	// 基表可用时一并导出键内容
	var heap *storage.HeapFile
	if h, err := storage.OpenHeapFile(*relation, bufMgr); err == nil {
		heap = h
		defer heap.Close()
	} else if *verbose {
		log.Printf("基表 %s 不可读，导出将省略键内容: %v", *relation, err)
	}

	n, err := exportEntries(ix, heap, out, *format)
	if err != nil {
		log.Fatalf("导出失败: %v", err)
	}
	if *verbose {
		log.Printf("导出 %d 条目自 %s", n, ix.Name())
	}
}

// exportEntries 全范围扫描索引并逐条写出
// heap 非空时按 rid 回表取出键内容
func exportEntries(ix *index.BTreeIndex, heap *storage.HeapFile, out *os.File, format string) (int, error) {
	if format != "jsonl" && format != "bson" {
		return 0, fmt.Errorf("unknown format %q", format)
	}

	low := make([]byte, index.KeySize)
	high := make([]byte, index.KeySize)
	for i := range high {
		high[i] = 0xFF
	}

	err := ix.StartScan(low, index.GTE, high, index.LTE)
	if errors.Is(err, index.ErrNoSuchKeyFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	w := bufio.NewWriter(out)
	defer w.Flush()

	n := 0
	var rid storage.RecordId
	for {
		err := ix.ScanNext(&rid)
		if errors.Is(err, index.ErrIndexScanCompleted) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		doc := bson.D{
			{Key: "seq", Value: int32(n)},
			{Key: "rid", Value: bson.D{
				{Key: "page", Value: int64(rid.PageNo)},
				{Key: "slot", Value: int32(rid.Slot)},
			}},
			{Key: "raw", Value: primitive.Binary{Data: ridBytes(rid)}},
		}
		if heap != nil {
			record, err := heap.Read(rid)
			if err != nil {
				return n, fmt.Errorf("failed to read record %v: %w", rid, err)
			}
			off := ix.AttrByteOffset()
			if off+index.KeySize <= len(record) {
				doc = append(doc, bson.E{Key: "key", Value: primitive.Binary{Data: record[off : off+index.KeySize]}})
			}
		}

		switch format {
		case "jsonl":
			line, err := bson.MarshalExtJSON(doc, true, false)
			if err != nil {
				return n, err
			}
			if _, err := w.Write(append(line, '\n')); err != nil {
				return n, err
			}
		case "bson":
			raw, err := bson.Marshal(doc)
			if err != nil {
				return n, err
			}
			if _, err := w.Write(raw); err != nil {
				return n, err
			}
		}
		n++
	}
}

// ridBytes 返回 RecordId 的磁盘序列化形式
func ridBytes(rid storage.RecordId) []byte {
	buf := make([]byte, storage.RecordIdSize)
	storage.MarshalRecordId(buf, rid)
	return buf
}
