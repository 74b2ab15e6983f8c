package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// EnsureEventLineageTrigger installs the BEFORE INSERT trigger on the events
// table that derives depth and root_uuid from the parent row and rejects
// inserts that would close a cycle (spec invariants 3.b/3.c). Not expressible
// in the ent schema DSL, so it is applied here the same way the teacher
// applies custom SQL not handled by ent schema (full-text GIN indexes).
func EnsureEventLineageTrigger(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx, eventLineageFunctionSQL)
	if err != nil {
		return fmt.Errorf("failed to create event lineage function: %w", err)
	}

	_, err = db.ExecContext(ctx, eventLineageTriggerSQL)
	if err != nil {
		return fmt.Errorf("failed to create event lineage trigger: %w", err)
	}

	return nil
}

const eventLineageFunctionSQL = `
CREATE OR REPLACE FUNCTION overseer_event_lineage() RETURNS trigger AS $$
DECLARE
	parent_depth     integer;
	parent_root      text;
	walk_id          text;
	walk_depth       integer := 0;
BEGIN
	IF NEW.parent_uuid IS NULL THEN
		NEW.depth := 0;
		NEW.root_uuid := NEW.event_id;
		RETURN NEW;
	END IF;

	SELECT depth, root_uuid INTO parent_depth, parent_root
	FROM events WHERE event_id = NEW.parent_uuid;

	IF NOT FOUND THEN
		RAISE EXCEPTION 'parent not found: %', NEW.parent_uuid
			USING ERRCODE = 'foreign_key_violation';
	END IF;

	-- Bounded cycle-detection walk: follow parent_uuid toward the root and
	-- fail if the new row's own id is encountered (would close a loop).
	walk_id := NEW.parent_uuid;
	WHILE walk_id IS NOT NULL AND walk_depth <= 1000 LOOP
		IF walk_id = NEW.event_id THEN
			RAISE EXCEPTION 'cycle detected inserting event %', NEW.event_id
				USING ERRCODE = 'integrity_constraint_violation';
		END IF;
		SELECT parent_uuid INTO walk_id FROM events WHERE event_id = walk_id;
		walk_depth := walk_depth + 1;
	END LOOP;

	NEW.depth := parent_depth + 1;
	NEW.root_uuid := parent_root;
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
`

const eventLineageTriggerSQL = `
DROP TRIGGER IF EXISTS events_lineage_trigger ON events;
CREATE TRIGGER events_lineage_trigger
	BEFORE INSERT ON events
	FOR EACH ROW
	EXECUTE FUNCTION overseer_event_lineage();
`
