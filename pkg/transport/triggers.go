package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/fundingarb/livesync/pkg/feed"
)

// triggerPrefix names the notify functions and triggers this package owns.
const triggerPrefix = "livesync_notify_"

// TriggerSQL returns the statements that make table schema.resource
// publish its row changes on the resource's channel, in the payload shape
// package feed decodes:
//
//	{"type": "INSERT|UPDATE|DELETE", "table": ..., "schema": ..., "new": {...}, "old": {...}}
//
// The side that does not apply is sent as an empty object. Updates that
// leave the row unchanged are not published. pg_notify rejects payloads
// over 8000 bytes, so very wide rows need a narrower trigger.
func TriggerSQL(schema, resource string) []string {
	if schema == "" {
		schema = feed.DefaultSchema
	}
	function := pgx.Identifier{schema, triggerPrefix + resource}.Sanitize()
	trigger := pgx.Identifier{triggerPrefix + resource}.Sanitize()
	table := pgx.Identifier{schema, resource}.Sanitize()

	return []string{
		fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %s() RETURNS trigger AS $trigger$
BEGIN
  IF TG_OP <> 'UPDATE' OR NEW IS DISTINCT FROM OLD THEN
    PERFORM pg_notify(%s, json_build_object(
      'type', TG_OP,
      'table', TG_TABLE_NAME,
      'schema', TG_TABLE_SCHEMA,
      'new', CASE WHEN TG_OP = 'DELETE' THEN '{}'::json ELSE row_to_json(NEW) END,
      'old', CASE WHEN TG_OP = 'INSERT' THEN '{}'::json ELSE row_to_json(OLD) END
    )::text);
  END IF;
  RETURN COALESCE(NEW, OLD);
END;
$trigger$ LANGUAGE plpgsql VOLATILE;`, function, quoteLiteral(feed.ChannelName(resource))),
		fmt.Sprintf(`CREATE OR REPLACE TRIGGER %s AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION %s();`,
			trigger, table, function),
	}
}

// InstallTriggers creates or replaces the notify trigger of each resource.
func (p *Postgres) InstallTriggers(ctx context.Context, schema string, resources ...string) error {
	for _, resource := range resources {
		for _, sql := range TriggerSQL(schema, resource) {
			if _, err := p.pool.Exec(ctx, sql); err != nil {
				return fmt.Errorf("transport: install trigger on %s: %w", resource, err)
			}
		}
		if p.logger != nil {
			p.logger.Info("Postgres: notify trigger installed", "schema", schema, "resource", resource)
		}
	}
	return nil
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
