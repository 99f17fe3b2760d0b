package dbbolt

import (
	"encoding/json"
	"errors"

	"github.com/boltdb/bolt"
	"imuslab.com/edgeproxy/mod/database/dbinc"
)

// Ensure the Database struct implements the Backend interface
var _ dbinc.Backend = (*Database)(nil)

type Database struct {
	Db *bolt.DB //This is the bolt database object
}

func NewBoltDatabase(dbfile string) (*Database, error) {
	db, err := bolt.Open(dbfile, 0600, nil)
	if err != nil {
		return nil, err
	}

	return &Database{
		Db: db,
	}, nil
}

// Create a new table
func (d *Database) NewTable(tableName string) error {
	return d.Db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tableName))
		return err
	})
}

// Check is table exists
func (d *Database) TableExists(tableName string) bool {
	return d.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tableName))
		if b == nil {
			return errors.New("table not exists")
		}
		return nil
	}) == nil
}

// Drop the given table
func (d *Database) DropTable(tableName string) error {
	return d.Db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket([]byte(tableName))
	})
}

// Write to table
func (d *Database) Write(tableName string, key string, value interface{}) error {
	jsonString, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return d.Db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(tableName))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), jsonString)
	})
}

func (d *Database) Read(tableName string, key string, assignee interface{}) error {
	return d.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tableName))
		if b == nil {
			return errors.New("table not exists")
		}
		v := b.Get([]byte(key))
		if v == nil {
			return errors.New("key not exists")
		}
		return json.Unmarshal(v, assignee)
	})
}

func (d *Database) KeyExists(tableName string, key string) bool {
	found := false
	d.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tableName))
		if b == nil {
			return nil
		}
		found = b.Get([]byte(key)) != nil
		return nil
	})
	return found
}

func (d *Database) Delete(tableName string, key string) error {
	return d.Db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tableName))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (d *Database) ListTable(tableName string) ([][][]byte, error) {
	var results [][][]byte
	err := d.Db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(tableName))
		if b == nil {
			return errors.New("table not exists")
		}
		return b.ForEach(func(k, v []byte) error {
			//Values are only valid inside the transaction
			key := append([]byte{}, k...)
			value := append([]byte{}, v...)
			results = append(results, [][]byte{key, value})
			return nil
		})
	})
	return results, err
}

func (d *Database) Close() {
	d.Db.Close()
}
