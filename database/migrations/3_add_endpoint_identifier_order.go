package dbmigs

import (
	"github.com/go-pg/migrations/v8"
)

func init() {
	migrations.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(`
             -- Comma-separated list deciding in which order the endpoint
             -- identifiers (ip, username, anonymous) are tried for an
             -- incoming request.
             ALTER TABLE ps_globals ADD COLUMN endpoint_identifier_order VARCHAR(40);
        `)
		return err
	}, func(db migrations.DB) error {
		_, err := db.Exec(`
             ALTER TABLE ps_globals DROP COLUMN endpoint_identifier_order;
        `)
		return err
	})
}
