// Package blockfirst is a concurrency stress harness for transactional,
// cursor-based key-value stores.
//
// It verifies one locking contract: a cursor seek to the first key of an
// empty table, made under an exclusive lock, must lock the full range from
// -inf to +inf, and that lock must block every other transaction making the
// same request until the holder commits.
//
// Key features:
//   - One worker loop per OS thread: begin, open cursor, seek first for
//     update (expect not found), hold, close cursor, commit
//   - A task-group coordinator that runs one loop inline and fails fast on
//     the first error from any worker
//   - A closed outcome taxonomy: setup, protocol and correctness failures
//   - Oracles for mutual exclusion (overlapping holders) and serialization
//     (wall time below Threads*Rows*Sleep)
//   - Store adapters for libmdbx, bbolt, RocksDB, Badger, SQLite, MySQL and
//     PostgreSQL, registered by name
//
// Basic usage:
//
//	env, err := blockfirst.Open(ctx, "bolt", blockfirst.Options{Dir: dir})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	table, err := env.OpenTable(ctx, blockfirst.DefaultTable)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := blockfirst.Run(ctx, env, table, blockfirst.DefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Seeks(), report.Elapsed)
package blockfirst
