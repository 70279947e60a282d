// Package transport defines the push channel a subscription runs on, and
// provides an in-memory implementation and a PostgreSQL LISTEN/NOTIFY
// implementation.
//
// The transport layer handles:
//   - Opening one channel per (resource, event mask, predicate)
//   - Reporting the channel outcome: open, error or clean close
//   - Delivering raw notification payloads while open
//   - Liveness checks on idle channels
//
// # Channel Contract
//
//	OpenChannel ──► OnOpen ──► OnMessage* ──► OnError | OnClosed
//	            └─► OnError | OnClosed
//
// OpenChannel is asynchronous: it returns a Channel immediately and later
// invokes exactly one of OnOpen, OnError or OnClosed. After OnOpen the
// handler receives zero or more OnMessage calls in delivery order, and
// possibly one final OnError or OnClosed when the channel drops. A
// synchronous error from OpenChannel is equivalent to OnError.
//
// Channel.Close is idempotent. No handler method is called once Close
// returns, except one that was already running.
//
// # PostgreSQL
//
// Postgres listens on "<resource>_realtime" using one pooled connection per
// channel. Notification payloads are expected in the JSON shape documented
// in package feed. Event masks and predicates are evaluated client-side.
//
// Each table needs a row trigger that publishes its changes. TriggerSQL
// returns the statements and Postgres.InstallTriggers runs them; for
// public.positions they are:
//
//	CREATE OR REPLACE FUNCTION "public"."livesync_notify_positions"() RETURNS trigger AS $trigger$
//	BEGIN
//	  IF TG_OP <> 'UPDATE' OR NEW IS DISTINCT FROM OLD THEN
//	    PERFORM pg_notify('positions_realtime', json_build_object(
//	      'type', TG_OP,
//	      'table', TG_TABLE_NAME,
//	      'schema', TG_TABLE_SCHEMA,
//	      'new', CASE WHEN TG_OP = 'DELETE' THEN '{}'::json ELSE row_to_json(NEW) END,
//	      'old', CASE WHEN TG_OP = 'INSERT' THEN '{}'::json ELSE row_to_json(OLD) END
//	    )::text);
//	  END IF;
//	  RETURN COALESCE(NEW, OLD);
//	END;
//	$trigger$ LANGUAGE plpgsql VOLATILE;
//
//	CREATE OR REPLACE TRIGGER "livesync_notify_positions" AFTER INSERT OR UPDATE OR DELETE
//	  ON "public"."positions" FOR EACH ROW EXECUTE FUNCTION "public"."livesync_notify_positions"();
//
// PostgresLoader reads the initial snapshot and converts driver values
// (uuid, numeric) to the forms the JSON notifications carry.
package transport
