package dbmigs

import (
	"github.com/go-pg/migrations/v8"
)

func init() {
	migrations.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(`
             -- Dialplan context in which the engine creates an extension for
             -- every registered endpoint. NULL disables the feature; existing
             -- rows are left unset until configured by the operator.
             ALTER TABLE ps_globals ADD COLUMN regcontext VARCHAR(80);
        `)
		return err
	}, func(db migrations.DB) error {
		_, err := db.Exec(`
             ALTER TABLE ps_globals DROP COLUMN regcontext;
        `)
		return err
	})
}
