// Created by Yanjunhui

package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/monolite/monoidx/index"
	"github.com/monolite/monoidx/internal/testkit"
	"github.com/monolite/monoidx/storage"
)

func main() {
	// 命令行参数
	// EN: Command-line flags.
	var (
		relation = flag.String("relation", "relA", "基表名（堆文件路径）")
		size     = flag.Int("size", 5000, "生成的基表记录数；0 表示复用已有基表")
		order    = flag.String("order", "forward", "基表生成顺序: forward|backward|random")
		seed     = flag.Int64("seed", 1, "random 顺序的随机种子")
		frames   = flag.Int("frames", 1000, "缓冲池帧数")
		debugFan = flag.Bool("debug-fanout", false, "使用调试扇出 4/4，便于观察分裂")
		dump     = flag.Bool("dump", false, "建树后打印整棵树")
		scan     = flag.String("scan", "", "范围扫描，形如 lo:hi（含义为 GTE lo 且 LTE hi）")
	)
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("monoidx starting...")
	log.Printf("Relation: %s, order: %s, size: %d", *relation, *order, *size)

	bufMgr := storage.NewBufferManager(*frames)

	if *size > 0 {
		ord, err := testkit.ParseOrder(*order)
		if err != nil {
			log.Fatalf("Bad -order: %v", err)
		}
		if err := storage.RemoveFile(*relation); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			log.Fatalf("Failed to remove old relation: %v", err)
		}
		indexName := fmt.Sprintf("%s.%d", *relation, testkit.AttrByteOffset)
		if err := storage.RemoveFile(indexName); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			log.Fatalf("Failed to remove old index: %v", err)
		}
		if _, err := testkit.BuildRelation(*relation, bufMgr, *size, ord, *seed); err != nil {
			log.Fatalf("Failed to build relation: %v", err)
		}
		log.Printf("Relation built: %d records", *size)
	}

	// 打开（或建立）索引
	// EN: Open or build the index.
	var opts *index.Options
	if *debugFan {
		opts = &index.Options{
			LeafCapacity:    index.DebugLeafCapacity,
			NonLeafCapacity: index.DebugNonLeafCapacity,
		}
	}
	ix, err := index.Open(*relation, bufMgr, testkit.AttrByteOffset, opts)
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	defer func() {
		if err := ix.Close(); err != nil {
			log.Printf("Error closing index: %v", err)
		}
	}()
	log.Printf("Index ready: %s (root page %d)", ix.Name(), ix.RootPage())

	if err := ix.Verify(); err != nil {
		log.Fatalf("Tree verification failed: %v", err)
	}
	log.Printf("Tree verified OK")

	if *dump {
		if err := ix.Dump(os.Stdout); err != nil {
			log.Fatalf("Dump failed: %v", err)
		}
	}

	if *scan != "" {
		var lo, hi int
		if _, err := fmt.Sscanf(*scan, "%d:%d", &lo, &hi); err != nil {
			log.Fatalf("Bad -scan %q, want lo:hi: %v", *scan, err)
		}
		n, err := countRange(ix, lo, hi)
		if err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("scan [%d, %d]: %d records\n", lo, hi, n)
	}
}

// countRange 统计 [lo, hi] 闭区间内的记录数
// EN: countRange counts records in the closed range [lo, hi].
func countRange(ix *index.BTreeIndex, lo, hi int) (int, error) {
	err := ix.StartScan(testkit.Key(lo), index.GTE, testkit.Key(hi), index.LTE)
	if errors.Is(err, index.ErrNoSuchKeyFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

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
		n++
	}
}
