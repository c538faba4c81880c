package store

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// Migrate moves a store to the schema version want. It does not rewrite
// values and does not read or compare the stored version: it deletes every
// fp/ and sim/ entry, keeps tok/ streams and idx/ entries as they are, and
// writes want as the new schema sentinel. It returns the number of deleted
// entries. Fingerprints and similarity results are not recomputed here;
// they are rebuilt only when submissions are run through the pipeline again. This mirrors the spec's requirement that opening a
// mismatched store needs either a migration step or a clear error.
func Migrate(path string, want SchemaVersion) (dropped int, err error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return 0, fmt.Errorf("opening store for migration: %w", err)
	}
	defer db.Close()

	err = db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(kvBucket)
		if b == nil {
			return nil
		}

		var toDelete [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if hasPrefix(k, []byte("fp/")) || hasPrefix(k, []byte("sim/")) {
				toDelete = append(toDelete, append([]byte(nil), k...))
			}
		}
		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		dropped = len(toDelete)

		return b.Put([]byte(schemaVersionKey), encodeSchemaVersion(want))
	})
	if err != nil {
		return 0, fmt.Errorf("migrating store: %w", err)
	}
	return dropped, nil
}
