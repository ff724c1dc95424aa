package main

// Stores available in every build.
import (
	_ "github.com/Giulio2002/blockfirst/internal/memstore"
	_ "github.com/Giulio2002/blockfirst/store/badgerstore"
	_ "github.com/Giulio2002/blockfirst/store/boltstore"
	_ "github.com/Giulio2002/blockfirst/store/mdbxstore"
	_ "github.com/Giulio2002/blockfirst/store/sqlstore"
)
