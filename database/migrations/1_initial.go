package dbmigs

import (
	"github.com/go-pg/migrations/v8"
)

func init() {
	migrations.MustRegisterTx(func(db migrations.DB) error {
		_, err := db.Exec(`
             -- Global options of the SIP signaling engine. The engine reads
             -- a single row selected by id.
             CREATE TABLE ps_globals (
                 id VARCHAR(40) NOT NULL,
                 max_forwards INTEGER,
                 user_agent VARCHAR(255),
                 default_outbound_endpoint VARCHAR(40),
                 CONSTRAINT ps_globals_id_key UNIQUE (id)
             );

             -- SIP transport definitions (UDP/TCP/TLS/WebSocket listeners).
             CREATE TABLE ps_transports (
                 id VARCHAR(40) NOT NULL,
                 async_operations INTEGER,
                 bind VARCHAR(40),
                 ca_list_file VARCHAR(200),
                 cert_file VARCHAR(200),
                 cipher VARCHAR(200),
                 domain VARCHAR(40),
                 external_media_address VARCHAR(40),
                 external_signaling_address VARCHAR(40),
                 external_signaling_port INTEGER CHECK (external_signaling_port BETWEEN 0 AND 65535),
                 method VARCHAR(40),
                 local_net VARCHAR(40),
                 password VARCHAR(40),
                 priv_key_file VARCHAR(200),
                 protocol VARCHAR(40),
                 require_client_cert VARCHAR(3) CHECK (require_client_cert IN ('yes', 'no')),
                 verify_client VARCHAR(3) CHECK (verify_client IN ('yes', 'no')),
                 verify_server VARCHAR(3) CHECK (verify_server IN ('yes', 'no')),
                 tos VARCHAR(10),
                 cos INTEGER,
                 CONSTRAINT ps_transports_id_key UNIQUE (id)
             );

             -- Outbound registrations maintained by the engine.
             CREATE TABLE ps_registrations (
                 id VARCHAR(40) NOT NULL,
                 auth_rejection_permanent VARCHAR(3) CHECK (auth_rejection_permanent IN ('yes', 'no')),
                 client_uri VARCHAR(255),
                 contact_user VARCHAR(40),
                 expiration INTEGER,
                 max_retries INTEGER,
                 outbound_auth VARCHAR(40),
                 outbound_proxy VARCHAR(40),
                 retry_interval INTEGER,
                 forbidden_retry_interval INTEGER,
                 server_uri VARCHAR(255),
                 transport VARCHAR(40),
                 support_path VARCHAR(3) CHECK (support_path IN ('yes', 'no')),
                 CONSTRAINT ps_registrations_id_key UNIQUE (id)
             );
        `)
		return err
	}, func(db migrations.DB) error {
		_, err := db.Exec(`
             DROP TABLE IF EXISTS ps_registrations;
             DROP TABLE IF EXISTS ps_transports;
             DROP TABLE IF EXISTS ps_globals;
        `)
		return err
	})
}
