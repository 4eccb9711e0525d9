package dbmigs

import (
	"github.com/go-pg/migrations/v8"
)

func init() {
	migrations.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(`
             -- Host to which the engine mirrors all SIP traffic for debugging.
             ALTER TABLE ps_globals ADD COLUMN debug VARCHAR(40);
        `)
		return err
	}, func(db migrations.DB) error {
		_, err := db.Exec(`
             ALTER TABLE ps_globals DROP COLUMN debug;
        `)
		return err
	})
}
