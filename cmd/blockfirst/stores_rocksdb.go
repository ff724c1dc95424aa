//go:build rocksdb

package main

import _ "github.com/Giulio2002/blockfirst/store/rocksstore"
