package database

/*
	EdgeProxy Database Access Module

	Thin facade over a key-value backend. Values are stored as JSON
	under (table, key) pairs.
*/

import (
	"errors"
	"sort"

	"imuslab.com/edgeproxy/mod/database/dbbolt"
	"imuslab.com/edgeproxy/mod/database/dbinc"
	"imuslab.com/edgeproxy/mod/database/dbleveldb"
)

var ErrReadOnly = errors.New("database is in read only mode")

type Database struct {
	Db          dbinc.Backend
	BackendType dbinc.BackendType
	ReadOnly    bool
}

// NewDatabase open the database file with the given backend
func NewDatabase(dbfile string, backendType dbinc.BackendType) (*Database, error) {
	var backend dbinc.Backend
	var err error
	switch backendType {
	case dbinc.BackendLevelDB:
		backend, err = dbleveldb.NewDB(dbfile)
	default:
		backendType = dbinc.BackendBoltDB
		backend, err = dbbolt.NewBoltDatabase(dbfile)
	}
	if err != nil {
		return nil, err
	}

	return &Database{
		Db:          backend,
		BackendType: backendType,
	}, nil
}

func (d *Database) UpdateReadWriteMode(readOnly bool) {
	d.ReadOnly = readOnly
}

// Create a new table
func (d *Database) NewTable(tableName string) error {
	if d.ReadOnly {
		return ErrReadOnly
	}
	return d.Db.NewTable(tableName)
}

// Check is table exists
func (d *Database) TableExists(tableName string) bool {
	return d.Db.TableExists(tableName)
}

// Drop the given table
func (d *Database) DropTable(tableName string) error {
	if d.ReadOnly {
		return ErrReadOnly
	}
	return d.Db.DropTable(tableName)
}

/*
Write to database with given tablename and key. Example Usage:

	type demo struct{
		content string
	}
	thisDemo := demo{
		content: "Hello World",
	}
	err := sysdb.Write("MyTable", "username/message",thisDemo);
*/
func (d *Database) Write(tableName string, key string, value interface{}) error {
	if d.ReadOnly {
		return ErrReadOnly
	}
	return d.Db.Write(tableName, key, value)
}

/*
Read from database and assign the content to a given datatype. Example Usage:

	thisDemo := new(demo)
	err := sysdb.Read("MyTable", "username/message",&thisDemo);
*/
func (d *Database) Read(tableName string, key string, assignee interface{}) error {
	return d.Db.Read(tableName, key, assignee)
}

func (d *Database) KeyExists(tableName string, key string) bool {
	return d.Db.KeyExists(tableName, key)
}

func (d *Database) Delete(tableName string, key string) error {
	if d.ReadOnly {
		return ErrReadOnly
	}
	return d.Db.Delete(tableName, key)
}

/*
ListTable return all key value pairs of a table, sorted by key

	entries, _ := sysdb.ListTable("stats")
	for _, keypairs := range entries {
		key := string(keypairs[0])
		value := keypairs[1]
	}
*/
func (d *Database) ListTable(tableName string) ([][][]byte, error) {
	results, err := d.Db.ListTable(tableName)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		return string(results[i][0]) < string(results[j][0])
	})
	return results, nil
}

func (d *Database) Close() {
	d.Db.Close()
}
