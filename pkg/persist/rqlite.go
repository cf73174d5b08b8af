package persist

import (
	"database/sql"
	"time"

	_ "github.com/rqlite/gorqlite/stdlib" // Import the database/sql driver

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
)

// OpenRQLite connects to the rqlite cluster at url, e.g.
// http://10.0.0.1:4001, so that nodes on different hosts can share one store.
func OpenRQLite(url string) (*SQLStore, error) {
	db, err := sql.Open("rqlite", url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open rqlite store")
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Second)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to reach rqlite at %s", url)
	}
	return newSQLStore(db, true)
}
