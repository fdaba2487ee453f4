// kerneldemo wires up an in-memory vaultdb Kernel, runs a transaction
// that inserts into a B+Tree index while holding row locks, and prints
// what it finds. It plays the same role as the teacher's cmd/seed: a
// runnable demonstration of the wiring, not a test.
package main

import (
	"fmt"
	"log"

	"vaultdb"
	"vaultdb/rid"
	"vaultdb/txn"
)

func main() {
	k, err := vaultdb.Open(vaultdb.WithPoolSize(16))
	if err != nil {
		log.Fatalf("open kernel: %v", err)
	}
	defer k.Close()

	idx, err := k.Index("students_pkey")
	if err != nil {
		log.Fatalf("open index: %v", err)
	}

	tx := k.Transactions().Begin(txn.RepeatableRead)

	rows := map[string]rid.RID{
		"S001": {PageID: 10, Slot: 0},
		"S002": {PageID: 10, Slot: 1},
		"S003": {PageID: 11, Slot: 0},
	}
	for key, row := range rows {
		if err := k.Locks().LockExclusive(tx, row); err != nil {
			log.Fatalf("lock %s: %v", key, err)
		}
		if _, err := idx.Insert([]byte(key), row); err != nil {
			log.Fatalf("insert %s: %v", key, err)
		}
	}

	if err := k.Transactions().Commit(tx); err != nil {
		log.Fatalf("commit: %v", err)
	}

	it := idx.Begin()
	defer it.Close()
	for it.Valid() {
		fmt.Printf("%s -> %s\n", it.Key(), it.Value())
		it.Next()
	}
}
