package dbmigs

import (
	"github.com/go-pg/migrations/v8"
)

func init() {
	migrations.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(`
             -- Interval in seconds between keep-alive packets sent on
             -- connection-oriented transports.
             ALTER TABLE ps_globals ADD COLUMN keep_alive_interval INTEGER;
        `)
		return err
	}, func(db migrations.DB) error {
		_, err := db.Exec(`
             ALTER TABLE ps_globals DROP COLUMN keep_alive_interval;
        `)
		return err
	})
}
