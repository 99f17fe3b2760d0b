package dbleveldb

import (
	"encoding/json"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"imuslab.com/edgeproxy/mod/database/dbinc"
)

// Ensure the DB struct implements the Backend interface
var _ dbinc.Backend = (*DB)(nil)

type DB struct {
	db    *leveldb.DB
	Table sync.Map //For emulating table creation
}

func NewDB(dbpath string) (*DB, error) {
	//If the path is not a directory (e.g. /tmp/dbfile.db), convert the filename to directory
	if ext := filepath.Ext(dbpath); ext != "" {
		dbpath = strings.TrimSuffix(dbpath, ext) + "_" + ext[1:]
	}

	db, err := leveldb.OpenFile(dbpath, nil)
	if err != nil {
		return nil, err
	}
	thisDB := &DB{db: db}

	//Rebuild the emulated table list from existing keys
	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		if tableName, _, ok := strings.Cut(string(iter.Key()), "/"); ok {
			thisDB.Table.Store(tableName, true)
		}
	}
	iter.Release()
	return thisDB, iter.Error()
}

func tableKey(tableName string, key string) []byte {
	return []byte(path.Join(tableName, key))
}

func (d *DB) NewTable(tableName string) error {
	//Create a table entry in the sync.Map
	d.Table.Store(tableName, true)
	return nil
}

func (d *DB) TableExists(tableName string) bool {
	_, ok := d.Table.Load(tableName)
	return ok
}

func (d *DB) DropTable(tableName string) error {
	d.Table.Delete(tableName)
	iter := d.db.NewIterator(util.BytesPrefix([]byte(tableName+"/")), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(append([]byte{}, iter.Key()...))
	}
	if err := iter.Error(); err != nil {
		return err
	}
	return d.db.Write(batch, nil)
}

func (d *DB) Write(tableName string, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	d.Table.Store(tableName, true)
	return d.db.Put(tableKey(tableName, key), data, nil)
}

func (d *DB) Read(tableName string, key string, assignee interface{}) error {
	data, err := d.db.Get(tableKey(tableName, key), nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, assignee)
}

func (d *DB) KeyExists(tableName string, key string) bool {
	ok, err := d.db.Has(tableKey(tableName, key), nil)
	return err == nil && ok
}

func (d *DB) Delete(tableName string, key string) error {
	return d.db.Delete(tableKey(tableName, key), nil)
}

func (d *DB) ListTable(tableName string) ([][][]byte, error) {
	iter := d.db.NewIterator(util.BytesPrefix([]byte(tableName+"/")), nil)
	defer iter.Release()

	var result [][][]byte
	for iter.Next() {
		//The key contains the table name as prefix. Trim it before returning
		key := strings.TrimPrefix(string(iter.Key()), tableName+"/")
		value := append([]byte{}, iter.Value()...)
		result = append(result, [][]byte{[]byte(key), value})
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}
	return result, nil
}

func (d *DB) Close() {
	d.db.Close()
}
